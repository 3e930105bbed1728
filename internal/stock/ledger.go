// Package stock reserves inventory for checkout.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// Ledger performs the check-and-decrement for one product at a time. It never
// opens transactions of its own; callers pass the checkout transaction.
type Ledger struct{}

// Reserve decrements qty units of productID and returns the product as read
// under its row lock, whose price is the one to charge.
func (Ledger) Reserve(ctx context.Context, tx store.Tx, productID int64, qty int) (models.Product, error) {
	if qty < models.MinLineQuantity {
		return models.Product{}, apperr.Invalid("quantity", "Quantity must be at least 1")
	}

	// 1. --- Lock the product row ---
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Product{}, apperr.ProductUnavailable(fmt.Sprintf("Product %d", productID))
		}
		return models.Product{}, fmt.Errorf("lock product %d: %w", productID, err)
	}

	// 2. --- Check status and availability ---
	switch p.Status {
	case models.ProductInactive:
		return p, apperr.ProductUnavailable(p.Name)
	case models.ProductSoldOut:
		return p, apperr.InsufficientStock(p.Name)
	}
	if p.StockQuantity < qty {
		return p, apperr.InsufficientStock(p.Name)
	}

	// 3. --- Conditional decrement ---
	ok, err := tx.DecrementStock(ctx, productID, qty)
	if err != nil {
		return p, fmt.Errorf("decrement product %d: %w", productID, err)
	}
	if !ok {
		return p, apperr.InsufficientStock(p.Name)
	}

	p.StockQuantity -= qty
	if p.StockQuantity == 0 {
		p.Status = models.ProductSoldOut
	}
	return p, nil
}
