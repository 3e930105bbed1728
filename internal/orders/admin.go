package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

const (
	adminPageSize     = 50
	dashboardTopN     = 10
	defaultRevenueWin = 30
	maxRevenueWin     = 366
)

// AdminOrders lists every order on the platform, newest first.
func (s *Service) AdminOrders(ctx context.Context, f models.AdminOrderFilter) ([]models.Order, models.Pagination, error) {
	if f.PaymentStatus != "" && !models.IsPaymentStatus(f.PaymentStatus) {
		return nil, models.Pagination{}, apperr.Invalid("payment_status", "Invalid payment status")
	}
	if f.FulfillmentStatus != "" && !models.IsFulfillmentStatus(f.FulfillmentStatus) {
		return nil, models.Pagination{}, apperr.Invalid("status", "Invalid fulfillment status")
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, models.Pagination{}, apperr.Invalid("end_date", "End date must not be before start date")
	}
	if f.Limit < 1 {
		f.Limit = adminPageSize
	}
	f.Page, f.Limit, _ = store.PageBounds(f.Page, f.Limit)

	list, total, err := s.store.Orders(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("list orders: %w", err)
	}
	if list == nil {
		list = []models.Order{}
	}
	pages := (total + f.Limit - 1) / f.Limit
	return list, models.Pagination{Page: f.Page, Limit: f.Limit, Total: total, TotalPages: pages}, nil
}

// Stats returns the order KPIs for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (models.OrderStats, error) {
	st, err := s.store.OrderStats(ctx, dashboardTopN)
	if err != nil {
		return st, fmt.Errorf("order stats: %w", err)
	}
	recent, _, err := s.store.Orders(ctx, models.AdminOrderFilter{Page: 1, Limit: dashboardTopN})
	if err != nil {
		return st, fmt.Errorf("recent orders: %w", err)
	}
	if recent == nil {
		recent = []models.Order{}
	}
	st.RecentOrders = recent
	st.CommissionRate = s.policy.Rate()
	return st, nil
}

// Revenue reports paid sales and commission per day over the last days days,
// today included. Zero selects the default window.
func (s *Service) Revenue(ctx context.Context, days int) (models.RevenueReport, error) {
	if days == 0 {
		days = defaultRevenueWin
	}
	if days < 1 || days > maxRevenueWin {
		return models.RevenueReport{}, apperr.Invalid("days", fmt.Sprintf("Days must be between 1 and %d", maxRevenueWin))
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	daily, err := s.store.DailyRevenue(ctx, since)
	if err != nil {
		return models.RevenueReport{}, fmt.Errorf("daily revenue: %w", err)
	}
	r := models.RevenueReport{
		Days:       days,
		Daily:      daily,
		Sales:      decimal.Zero,
		Commission: decimal.Zero,
	}
	if r.Daily == nil {
		r.Daily = []models.RevenueDay{}
	}
	for _, d := range daily {
		r.Orders += d.Orders
		r.Sales = r.Sales.Add(d.Sales)
		r.Commission = r.Commission.Add(d.Commission)
	}
	return r, nil
}
