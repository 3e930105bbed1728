package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product statuses. Checkout only accepts ProductActive.
const (
	ProductActive   = "active"
	ProductSoldOut  = "sold_out"
	ProductInactive = "inactive"
)

// Product is the model for the 'products' table.
// Catalog management lives elsewhere; this is the snapshot consumed by cart and checkout.
type Product struct {
	ID            int64           `json:"id" db:"id"`
	SellerID      int64           `json:"sellerId" db:"seller_id"`
	Name          string          `json:"name" db:"name"`
	Price         decimal.Decimal `json:"price" db:"price"`
	StockQuantity int             `json:"stock" db:"stock_quantity"`
	Status        string          `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsActive reports whether the product can be added to a cart or sold.
func (p Product) IsActive() bool {
	return p.Status == ProductActive
}
