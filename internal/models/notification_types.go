package models

import "time"

// Notification event names.
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventPaymentFailed      = "payment.failed"
	EventPaymentRefunded    = "payment.refunded"
	EventOrderStatusChanged = "order.status_changed"
)

// Notification is a fire-and-forget message about an order.
type Notification struct {
	Event       string         `json:"event"`
	Recipient   string         `json:"recipient"`
	OrderNumber string         `json:"orderNumber"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}
