// Package cart manages session-scoped shopping carts.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// Service owns every cart mutation. Possession of the session token is the
// only ownership check.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

func checkQuantity(qty int) error {
	if qty < models.MinLineQuantity || qty > models.MaxLineQuantity {
		return apperr.Invalid("quantity", fmt.Sprintf("Quantity must be between %d and %d", models.MinLineQuantity, models.MaxLineQuantity))
	}
	return nil
}

func checkSession(session string) error {
	if session == "" {
		return apperr.Invalid("session", "Session token is required")
	}
	return nil
}

func overLineMaximum() error {
	return apperr.Invalid("quantity", fmt.Sprintf("Cart cannot hold more than %d of one product", models.MaxLineQuantity))
}

func exceedsStock(name string, stock int) error {
	return apperr.Conflict(apperr.CodeExceedsStock, fmt.Sprintf("Only %d of %s in stock", stock, name))
}

// Add puts qty units of a product in the cart, merging with an existing line.
// The merged quantity is bounded by the store (at most MaxLineQuantity) and
// re-checked against stock before commit.
func (s *Service) Add(ctx context.Context, session string, productID int64, qty int) (models.CartLine, error) {
	if err := checkSession(session); err != nil {
		return models.CartLine{}, err
	}
	if err := checkQuantity(qty); err != nil {
		return models.CartLine{}, err
	}

	var line models.CartLine
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		p, err := tx.Product(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("Product not found")
			}
			return err
		}
		if !p.IsActive() {
			return apperr.ProductUnavailable(p.Name)
		}
		if qty > p.StockQuantity {
			return exceedsStock(p.Name, p.StockQuantity)
		}

		id, err := tx.UpsertCartLine(ctx, session, productID, qty)
		if err != nil {
			if errors.Is(err, store.ErrQuantityOutOfRange) {
				return overLineMaximum()
			}
			return err
		}
		line, err = tx.CartLine(ctx, session, id)
		if err != nil {
			return fmt.Errorf("read merged cart line: %w", err)
		}
		if line.Quantity > line.StockQuantity {
			return exceedsStock(line.Name, line.StockQuantity)
		}
		return nil
	})
	if err != nil {
		return models.CartLine{}, err
	}
	return line, nil
}

// Update sets a line's quantity outright.
func (s *Service) Update(ctx context.Context, session string, lineID int64, qty int) (models.CartLine, error) {
	if err := checkSession(session); err != nil {
		return models.CartLine{}, err
	}
	if err := checkQuantity(qty); err != nil {
		return models.CartLine{}, err
	}

	var line models.CartLine
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		line, err = tx.CartLine(ctx, session, lineID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("Cart item not found")
			}
			return err
		}
		if line.Status != models.ProductActive {
			return apperr.ProductUnavailable(line.Name)
		}
		if qty > line.StockQuantity {
			return exceedsStock(line.Name, line.StockQuantity)
		}
		if _, err := tx.SetCartLineQuantity(ctx, session, lineID, qty); err != nil {
			if errors.Is(err, store.ErrQuantityOutOfRange) {
				return overLineMaximum()
			}
			return err
		}
		line.Quantity = qty
		line.LineTotal = line.Price.Mul(decimal.NewFromInt(int64(qty)))
		return nil
	})
	if err != nil {
		return models.CartLine{}, err
	}
	return line, nil
}

// Remove deletes one line.
func (s *Service) Remove(ctx context.Context, session string, lineID int64) error {
	if err := checkSession(session); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(tx store.Tx) error {
		ok, err := tx.DeleteCartLine(ctx, session, lineID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("Cart item not found")
		}
		return nil
	})
}

// Clear empties the cart and reports how many lines were removed.
func (s *Service) Clear(ctx context.Context, session string) (int64, error) {
	if err := checkSession(session); err != nil {
		return 0, err
	}
	var n int64
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.ClearCart(ctx, session)
		return err
	})
	return n, err
}

// Snapshot returns the cart with live prices. Lines whose product was
// deactivated are left in place but hidden from the lines and the totals.
func (s *Service) Snapshot(ctx context.Context, session string) (models.CartSnapshot, error) {
	if err := checkSession(session); err != nil {
		return models.CartSnapshot{}, err
	}
	lines, err := s.store.CartLines(ctx, session)
	if err != nil {
		return models.CartSnapshot{}, fmt.Errorf("load cart: %w", err)
	}
	return Summarize(lines), nil
}

// Count returns the total number of units in the cart.
func (s *Service) Count(ctx context.Context, session string) (int, error) {
	snap, err := s.Snapshot(ctx, session)
	if err != nil {
		return 0, err
	}
	return snap.ItemCount, nil
}

// Summarize builds a snapshot from raw joined lines.
func Summarize(lines []models.CartLine) models.CartSnapshot {
	snap := models.CartSnapshot{Lines: []models.CartLine{}, Subtotal: decimal.Zero}
	for _, l := range lines {
		if l.Status == models.ProductInactive {
			snap.HiddenLines++
			continue
		}
		snap.Lines = append(snap.Lines, l)
		snap.Subtotal = snap.Subtotal.Add(l.LineTotal)
		snap.ItemCount += l.Quantity
	}
	return snap
}
