package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

func (s *MemoryStore) Orders(ctx context.Context, f models.AdminOrderFilter) ([]models.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Order
	for _, o := range s.st.orders {
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		if f.FulfillmentStatus != "" && o.FulfillmentStatus != f.FulfillmentStatus {
			continue
		}
		if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
			continue
		}
		matched = append(matched, o)
	}
	sortNewestFirst(matched)

	total := len(matched)
	_, limit, offset := store.PageBounds(f.Page, f.Limit)
	if offset >= total {
		return nil, total, nil
	}
	return matched[offset:min(offset+limit, total)], total, nil
}

func (s *MemoryStore) OrderStats(ctx context.Context, topSellers int) (models.OrderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.OrderStats{TopSellers: []models.SellerSales{}}
	sellers := make(map[int64]*models.SellerSales)
	for id, o := range s.st.orders {
		st.TotalOrders++
		switch o.PaymentStatus {
		case models.PaymentPending:
			st.PendingOrders++
			continue
		case models.PaymentPaid:
		default:
			continue
		}
		st.PaidOrders++
		st.TotalSales = st.TotalSales.Add(o.Subtotal)
		st.CommissionEarned = st.CommissionEarned.Add(o.CommissionAmount)

		counted := make(map[int64]bool)
		for _, l := range s.st.lines[id] {
			ss, ok := sellers[l.SellerID]
			if !ok {
				ss = &models.SellerSales{SellerID: l.SellerID}
				sellers[l.SellerID] = ss
			}
			ss.Sales = ss.Sales.Add(l.LineTotal)
			if !counted[l.SellerID] {
				counted[l.SellerID] = true
				ss.Orders++
			}
		}
	}

	for _, ss := range sellers {
		st.TopSellers = append(st.TopSellers, *ss)
	}
	slices.SortFunc(st.TopSellers, func(a, b models.SellerSales) int {
		if c := b.Sales.Cmp(a.Sales); c != 0 {
			return c
		}
		return cmp.Compare(a.SellerID, b.SellerID)
	})
	if len(st.TopSellers) > topSellers {
		st.TopSellers = st.TopSellers[:topSellers]
	}
	return st, nil
}

func (s *MemoryStore) DailyRevenue(ctx context.Context, since time.Time) ([]models.RevenueDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]*models.RevenueDay)
	for _, o := range s.st.orders {
		if o.PaymentStatus != models.PaymentPaid || o.CreatedAt.Before(since) {
			continue
		}
		day := o.CreatedAt.UTC().Format(time.DateOnly)
		d, ok := byDay[day]
		if !ok {
			d = &models.RevenueDay{Date: day, Sales: decimal.Zero, Commission: decimal.Zero}
			byDay[day] = d
		}
		d.Orders++
		d.Sales = d.Sales.Add(o.Subtotal)
		d.Commission = d.Commission.Add(o.CommissionAmount)
	}

	days := make([]models.RevenueDay, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	slices.SortFunc(days, func(a, b models.RevenueDay) int { return cmp.Compare(b.Date, a.Date) })
	return days, nil
}

// SetOrderCreatedAt backdates a committed order.
func (s *MemoryStore) SetOrderCreatedAt(id int64, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[id]
	if !ok {
		return false
	}
	o.CreatedAt = at
	s.st.orders[id] = o
	return true
}

func sortNewestFirst(orders []models.Order) {
	slices.SortFunc(orders, func(a, b models.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
