// Package payment reconciles orders with the external payment gateway.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway transaction statuses the reconciler acts on. Anything else is
// treated as still in flight.
const (
	TxSuccess   = "success"
	TxFailed    = "failed"
	TxAbandoned = "abandoned"
)

type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

type InitializeResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
}

// Transaction is the gateway's view of one payment.
type Transaction struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	OrderNumber     string
	GatewayResponse string
	PaidAt          *time.Time
}

// Gateway is the external payment processor.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error)
	Verify(ctx context.Context, reference string) (Transaction, error)
}

// ToMinor converts a major-unit amount to integer minor units (kobo).
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinor converts minor units back to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
