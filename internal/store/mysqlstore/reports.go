package mysqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

func (s *Store) Orders(ctx context.Context, f models.AdminOrderFilter) ([]models.Order, int, error) {
	var where predicate
	if f.PaymentStatus != "" {
		where.add("payment_status = ?", f.PaymentStatus)
	}
	if f.FulfillmentStatus != "" {
		where.add("fulfillment_status = ?", f.FulfillmentStatus)
	}
	if !f.From.IsZero() {
		where.add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		where.add("created_at < ?", f.To)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	_, limit, offset := store.PageBounds(f.Page, f.Limit)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders"+where.String()+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(where.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (s *Store) OrderStats(ctx context.Context, topSellers int) (models.OrderStats, error) {
	var st models.OrderStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(payment_status = 'paid'), 0),
			COALESCE(SUM(payment_status = 'pending'), 0),
			COALESCE(SUM(CASE WHEN payment_status = 'paid' THEN subtotal END), 0),
			COALESCE(SUM(CASE WHEN payment_status = 'paid' THEN commission_amount END), 0)
		FROM orders`).Scan(&st.TotalOrders, &st.PaidOrders, &st.PendingOrders, &st.TotalSales, &st.CommissionEarned)
	if err != nil {
		return st, fmt.Errorf("query order totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.seller_id, COUNT(DISTINCT o.id), SUM(oi.line_total)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_status = 'paid'
		GROUP BY oi.seller_id
		ORDER BY SUM(oi.line_total) DESC, oi.seller_id
		LIMIT ?`, topSellers)
	if err != nil {
		return st, fmt.Errorf("query top sellers: %w", err)
	}
	defer rows.Close()

	st.TopSellers = []models.SellerSales{}
	for rows.Next() {
		var ss models.SellerSales
		if err := rows.Scan(&ss.SellerID, &ss.Orders, &ss.Sales); err != nil {
			return st, fmt.Errorf("scan top seller: %w", err)
		}
		st.TopSellers = append(st.TopSellers, ss)
	}
	return st, rows.Err()
}

func (s *Store) DailyRevenue(ctx context.Context, since time.Time) ([]models.RevenueDay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DATE(created_at) AS day, COUNT(*), SUM(subtotal), SUM(commission_amount)
		FROM orders
		WHERE payment_status = 'paid' AND created_at >= ?
		GROUP BY DATE(created_at)
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("query daily revenue: %w", err)
	}
	defer rows.Close()

	var days []models.RevenueDay
	for rows.Next() {
		var d models.RevenueDay
		var day time.Time
		if err := rows.Scan(&day, &d.Orders, &d.Sales, &d.Commission); err != nil {
			return nil, fmt.Errorf("scan revenue day: %w", err)
		}
		d.Date = day.Format(time.DateOnly)
		days = append(days, d)
	}
	return days, rows.Err()
}
