package mysqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/netriver-marketplace/internal/models"
)

func TestOrdersAppliesAdminFilter(t *testing.T) {
	s, mock := newMock(t)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM orders WHERE payment_status = ? AND fulfillment_status = ? AND created_at >= ? AND created_at < ?")).
		WithArgs(models.PaymentPaid, models.FulfillmentShipped, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	rows := sqlmock.NewRows(orderCols)
	orderRow(rows, 9, "NR9", "NR9_a")
	mock.ExpectQuery(q("FROM orders WHERE payment_status = ? AND fulfillment_status = ? AND created_at >= ? AND created_at < ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(models.PaymentPaid, models.FulfillmentShipped, from, to, 2, 2).
		WillReturnRows(rows)

	orders, total, err := s.Orders(context.Background(), models.AdminOrderFilter{
		PaymentStatus:     models.PaymentPaid,
		FulfillmentStatus: models.FulfillmentShipped,
		From:              from,
		To:                to,
		Page:              2,
		Limit:             2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, orders, 1)
	assert.Equal(t, "NR9", orders[0].OrderNumber)
}

func TestOrdersWithoutFilterSkipsEmptyPage(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(q("SELECT COUNT(*) FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	orders, total, err := s.Orders(context.Background(), models.AdminOrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestOrderStats(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(q("COALESCE(SUM(CASE WHEN payment_status = 'paid' THEN commission_amount END), 0) FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "paid", "pending", "sales", "commission"}).
			AddRow(12, 7, 4, "8400.00", "840.00"))
	mock.ExpectQuery(q("WHERE o.payment_status = 'paid' GROUP BY oi.seller_id ORDER BY SUM(oi.line_total) DESC, oi.seller_id LIMIT ?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id", "orders", "sales"}).
			AddRow(4, 5, "6000.00").
			AddRow(2, 3, "2400.00"))

	st, err := s.OrderStats(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 12, st.TotalOrders)
	assert.Equal(t, 7, st.PaidOrders)
	assert.Equal(t, 4, st.PendingOrders)
	assert.Equal(t, "8400", st.TotalSales.String())
	assert.Equal(t, "840", st.CommissionEarned.String())
	require.Len(t, st.TopSellers, 2)
	assert.Equal(t, int64(4), st.TopSellers[0].SellerID)
	assert.Equal(t, 5, st.TopSellers[0].Orders)
}

func TestDailyRevenue(t *testing.T) {
	s, mock := newMock(t)
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("WHERE payment_status = 'paid' AND created_at >= ? GROUP BY DATE(created_at) ORDER BY day DESC")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"day", "orders", "sales", "commission"}).
			AddRow(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), 2, "500.00", "50.00").
			AddRow(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), 1, "120.00", "12.00"))

	days, err := s.DailyRevenue(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-02-28", days[0].Date)
	assert.Equal(t, 2, days[0].Orders)
	assert.Equal(t, "12", days[1].Commission.String())
}
