package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quantity bounds for a single cart line.
const (
	MinLineQuantity = 1
	MaxLineQuantity = 100
)

// CartItem defines the struct for the 'cart_items' table.
// A cart is nothing more than the set of lines sharing a session token.
type CartItem struct {
	ID           int64     `json:"id" db:"id"`
	SessionToken string    `json:"-" db:"session_token"`
	ProductID    int64     `json:"productId" db:"product_id"`
	Quantity     int       `json:"quantity" db:"quantity"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// CartLine is a cart item joined with the live product fields.
type CartLine struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"productId"`
	SellerID      int64           `json:"sellerId"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock"`
	Status        string          `json:"status"`
	Quantity      int             `json:"quantity"`
	LineTotal     decimal.Decimal `json:"lineTotal"`
}

// CartSnapshot is what a shopper sees: active lines only, ordered by line id.
type CartSnapshot struct {
	Lines       []CartLine      `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ItemCount   int             `json:"itemCount"`
	HiddenLines int             `json:"hiddenLines"`
}

// IsEmpty reports whether the snapshot has nothing purchasable.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}
