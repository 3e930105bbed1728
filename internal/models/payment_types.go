package models

import "time"

// Payment attempt statuses.
const (
	AttemptInitialized = "initialized"
	AttemptSuccess     = "success"
	AttemptFailed      = "failed"
	AttemptMismatch    = "mismatch"
)

// PaymentAttempt is the model for the 'payment_attempts' table.
// One row per gateway initialize call; it maps a gateway reference back to an order.
type PaymentAttempt struct {
	ID          int64      `json:"id" db:"id"`
	OrderID     int64      `json:"orderId" db:"order_id"`
	Reference   string     `json:"reference" db:"reference"`
	AmountMinor int64      `json:"amount" db:"amount_minor"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	CheckedAt   *time.Time `json:"checkedAt,omitempty" db:"checked_at"` // last sweeper re-check
}
