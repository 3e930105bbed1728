// Package commission splits an order subtotal between the platform and sellers.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/models"
)

// Policy holds the platform's commission rate.
type Policy struct {
	rate decimal.Decimal
}

// NewPolicy returns a policy for rate, which must lie in [0, 1).
func NewPolicy(rate decimal.Decimal) (Policy, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Policy{}, fmt.Errorf("commission rate %s out of range [0, 1)", rate)
	}
	return Policy{rate: rate}, nil
}

// Rate returns the configured rate.
func (p Policy) Rate() decimal.Decimal { return p.rate }

// Split returns the commission, rounded half away from zero to cents, and the
// seller amount. The two always add back up to subtotal.
func (p Policy) Split(subtotal decimal.Decimal) (commission, seller decimal.Decimal) {
	commission = subtotal.Mul(p.rate).Round(2)
	seller = subtotal.Sub(commission)
	return commission, seller
}

// SellerShare is one seller's portion of an order.
type SellerShare struct {
	SellerID   int64           `json:"sellerId"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Commission decimal.Decimal `json:"commission"`
	Payout     decimal.Decimal `json:"payout"`
}

// PerSeller groups order lines by seller and splits each seller's subtotal.
// Shares are returned in the order sellers first appear in lines.
func (p Policy) PerSeller(lines []models.OrderItem) []SellerShare {
	index := make(map[int64]int)
	var shares []SellerShare
	for _, l := range lines {
		i, ok := index[l.SellerID]
		if !ok {
			i = len(shares)
			index[l.SellerID] = i
			shares = append(shares, SellerShare{SellerID: l.SellerID})
		}
		shares[i].Subtotal = shares[i].Subtotal.Add(l.LineTotal)
	}
	for i := range shares {
		shares[i].Commission, shares[i].Payout = p.Split(shares[i].Subtotal)
	}
	return shares
}
