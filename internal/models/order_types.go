package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Fulfillment statuses, in the order an order moves through them.
const (
	FulfillmentPending    = "pending"
	FulfillmentConfirmed  = "confirmed"
	FulfillmentProcessing = "processing"
	FulfillmentShipped    = "shipped"
	FulfillmentDelivered  = "delivered"
	FulfillmentCancelled  = "cancelled"
)

// Customer holds the contact and delivery fields captured at checkout.
type Customer struct {
	Name    string `json:"customer_name" db:"customer_name" validate:"required,min=2,max=100"`
	Email   string `json:"customer_email" db:"customer_email" validate:"required,email"`
	Phone   string `json:"customer_phone" db:"customer_phone" validate:"required,phone"`
	Address string `json:"delivery_address" db:"delivery_address" validate:"required,min=10,max=500"`
	State   string `json:"delivery_state" db:"delivery_state" validate:"required,region"`
	City    string `json:"delivery_city" db:"delivery_city" validate:"required,min=2,max=100"`
}

// Order is the model for the 'orders' table.
// Totals are frozen at creation; only payment and fulfillment status move afterwards.
type Order struct {
	ID                int64           `json:"id" db:"id"`
	OrderNumber       string          `json:"orderNumber" db:"order_number"`
	Customer          Customer        `json:"customer"`
	Subtotal          decimal.Decimal `json:"subtotal" db:"subtotal"`
	CommissionAmount  decimal.Decimal `json:"commissionAmount" db:"commission_amount"`
	SellerAmount      decimal.Decimal `json:"sellerAmount" db:"seller_amount"`
	PaymentStatus     string          `json:"paymentStatus" db:"payment_status"`
	FulfillmentStatus string          `json:"fulfillmentStatus" db:"fulfillment_status"`
	PaymentReference  *string         `json:"paymentReference,omitempty" db:"payment_reference"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`

	Lines []OrderItem `json:"items,omitempty" db:"-"`
}

// OrderItem is the model for the 'order_items' table. Rows are never updated.
type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"orderId" db:"order_id"`
	ProductID   int64           `json:"productId" db:"product_id"`
	SellerID    int64           `json:"sellerId" db:"seller_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"` // Price at the time of purchase
	LineTotal   decimal.Decimal `json:"lineTotal" db:"line_total"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// OrderFilter narrows a seller's order listing. Empty fields match everything.
type OrderFilter struct {
	FulfillmentStatus string
	PaymentStatus     string
	Page              int
	Limit             int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// SellerOrder is an order as one seller sees it: only that seller's lines and split.
type SellerOrder struct {
	Order
	SellerSubtotal   decimal.Decimal `json:"sellerSubtotal"`
	SellerCommission decimal.Decimal `json:"sellerCommission"`
	SellerPayout     decimal.Decimal `json:"sellerPayout"`
}

// CheckoutResult is returned to the shopper after a committed checkout.
type CheckoutResult struct {
	OrderID          int64           `json:"orderId"`
	OrderNumber      string          `json:"orderNumber"`
	Subtotal         decimal.Decimal `json:"totalAmount"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	SellerAmount     decimal.Decimal `json:"sellerAmount"`
	ItemCount        int             `json:"itemCount"`
	PaymentStatus    string          `json:"paymentStatus"`
}

var fulfillmentRank = map[string]int{
	FulfillmentPending:    0,
	FulfillmentConfirmed:  1,
	FulfillmentProcessing: 2,
	FulfillmentShipped:    3,
	FulfillmentDelivered:  4,
}

// IsFulfillmentStatus reports whether s is a known fulfillment status.
func IsFulfillmentStatus(s string) bool {
	_, ok := fulfillmentRank[s]
	return ok || s == FulfillmentCancelled
}

// IsPaymentStatus reports whether s is a known payment status.
func IsPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// FulfillmentPredecessors returns the statuses an order may move to `to` from.
// Movement is forward only; cancellation is only possible before shipping.
func FulfillmentPredecessors(to string) []string {
	if to == FulfillmentCancelled {
		return []string{FulfillmentPending, FulfillmentConfirmed, FulfillmentProcessing}
	}
	rank, ok := fulfillmentRank[to]
	if !ok {
		return nil
	}
	var from []string
	for _, s := range []string{FulfillmentPending, FulfillmentConfirmed, FulfillmentProcessing, FulfillmentShipped} {
		if fulfillmentRank[s] < rank {
			from = append(from, s)
		}
	}
	return from
}

// PaymentPredecessors returns the statuses a payment may move to `to` from.
// Nothing ever returns to pending; refunds only follow a successful payment.
func PaymentPredecessors(to string) []string {
	switch to {
	case PaymentPaid:
		return []string{PaymentPending, PaymentFailed}
	case PaymentFailed:
		return []string{PaymentPending}
	case PaymentRefunded:
		return []string{PaymentPaid}
	}
	return nil
}
