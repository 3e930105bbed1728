// Package mysqlstore implements store.Store on MySQL 8.
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// Store is the MySQL-backed store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithinTx runs fn in a READ COMMITTED transaction. Correctness comes from
// row locks and conditional updates, not from the isolation level.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	if err := fn(&sqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapErr(err))
	}
	return nil
}

func (s *Store) CartLines(ctx context.Context, session string) ([]models.CartLine, error) {
	lines, err := queryCartLines(ctx, s.db, cartLineSelect+" WHERE ci.session_token = ? ORDER BY ci.id", session)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	return lines, nil
}

func (s *Store) OrderByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_number = ?", orderNumber))
	if err != nil {
		return o, notFound(err)
	}
	return o, nil
}

func (s *Store) OrderByID(ctx context.Context, id int64) (models.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
	if err != nil {
		return o, notFound(err)
	}
	return o, nil
}

func (s *Store) OrderLines(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items, err := queryOrderItems(ctx, s.db, "SELECT "+orderItemColumns+" FROM order_items WHERE order_id = ? ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return items, nil
}

func (s *Store) SellerOrders(ctx context.Context, sellerID int64, f models.OrderFilter) ([]models.Order, int, error) {
	var where predicate
	where.add("oi.seller_id = ?", sellerID)
	if f.FulfillmentStatus != "" {
		where.add("o.fulfillment_status = ?", f.FulfillmentStatus)
	}
	if f.PaymentStatus != "" {
		where.add("o.payment_status = ?", f.PaymentStatus)
	}
	from := " FROM orders o JOIN order_items oi ON oi.order_id = o.id"

	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT o.id)"+from+where.String(), where.args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count seller orders: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	_, limit, offset := store.PageBounds(f.Page, f.Limit)
	args := append(where.args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT "+orderColumnsPrefixed+from+where.String()+" ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query seller orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	index := make(map[int64]int)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan seller order: %w", err)
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(orders) == 0 {
		return nil, total, nil
	}

	ids := make([]any, 0, len(orders)+1)
	ids = append(ids, sellerID)
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := queryOrderItems(ctx, s.db,
		"SELECT "+orderItemColumns+" FROM order_items WHERE seller_id = ? AND order_id IN ("+placeholders(len(orders))+") ORDER BY id",
		ids...)
	if err != nil {
		return nil, 0, fmt.Errorf("query seller order items: %w", err)
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Lines = append(orders[i].Lines, item)
	}
	return orders, total, nil
}

func (s *Store) SellerOwnsOrder(ctx context.Context, sellerID, orderID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM order_items WHERE order_id = ? AND seller_id = ?)", orderID, sellerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order ownership: %w", err)
	}
	return exists, nil
}

func (s *Store) TransitionPayment(ctx context.Context, t store.PaymentTransition) (bool, error) {
	query := "UPDATE orders SET payment_status = ?, updated_at = ?"
	args := []any{t.To, s.now()}
	if t.Reference != "" && !t.MatchReference {
		query += ", payment_reference = ?"
		args = append(args, t.Reference)
	}

	var where predicate
	where.add("id = ?", t.OrderID)
	where.in("payment_status", t.From)
	if t.MatchReference {
		where.add("payment_reference = ?", t.Reference)
	}

	res, err := s.db.ExecContext(ctx, query+where.String(), append(args, where.args...)...)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", mapErr(err))
	}
	return affected(res)
}

func (s *Store) TransitionFulfillment(ctx context.Context, orderID int64, to string, from []string) (bool, error) {
	var where predicate
	where.add("id = ?", orderID)
	where.in("fulfillment_status", from)

	res, err := s.db.ExecContext(ctx, "UPDATE orders SET fulfillment_status = ?, updated_at = ?"+where.String(),
		append([]any{to, s.now()}, where.args...)...)
	if err != nil {
		return false, fmt.Errorf("update fulfillment status: %w", mapErr(err))
	}
	return affected(res)
}

func (s *Store) SetPaymentReference(ctx context.Context, orderID int64, reference string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_reference = ?, updated_at = ? WHERE id = ? AND payment_status IN ('pending', 'failed')",
		reference, s.now(), orderID)
	if err != nil {
		return false, fmt.Errorf("set payment reference: %w", mapErr(err))
	}
	return affected(res)
}

func (s *Store) CreatePaymentAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO payment_attempts (order_id, reference, amount_minor, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.OrderID, a.Reference, a.AmountMinor, a.Status, now, now)
	if err != nil {
		if isDuplicate(err) {
			return store.ErrDuplicateReference
		}
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("payment attempt id: %w", err)
	}
	a.ID, a.CreatedAt, a.UpdatedAt = id, now, now
	return nil
}

func (s *Store) PaymentAttempt(ctx context.Context, reference string) (models.PaymentAttempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, "SELECT "+attemptColumns+" FROM payment_attempts WHERE reference = ?", reference))
	if err != nil {
		return a, notFound(err)
	}
	return a, nil
}

func (s *Store) MarkPaymentAttempt(ctx context.Context, reference, status string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE payment_attempts SET status = ?, updated_at = ? WHERE reference = ?",
		status, s.now(), reference)
	if err != nil {
		return fmt.Errorf("update payment attempt: %w", err)
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) StalePaymentAttempts(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pa.id, pa.order_id, pa.reference, pa.amount_minor, pa.status, pa.created_at, pa.updated_at, pa.checked_at
		FROM payment_attempts pa
		JOIN orders o ON o.id = pa.order_id
		WHERE pa.status = 'initialized' AND pa.created_at < ? AND o.payment_status = 'pending'
		ORDER BY pa.checked_at IS NOT NULL, pa.checked_at, pa.id
		LIMIT ?`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale payment attempts: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) TouchPaymentAttempt(ctx context.Context, reference string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE payment_attempts SET checked_at = ? WHERE reference = ?", s.now(), reference)
	if err != nil {
		return fmt.Errorf("touch payment attempt: %w", err)
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// affected reports whether an UPDATE or DELETE touched at least one row.
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }
