package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// MySQL server error numbers the store translates.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
	errCheckViolated   = 3819
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapErr folds lock conflicts into store.ErrConcurrentUpdate.
func mapErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == errLockDeadlock || me.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", store.ErrConcurrentUpdate, err)
	}
	return err
}

// isCheckViolation reports a failed CHECK constraint, such as chk_cart_quantity.
func isCheckViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errCheckViolated
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// predicate accumulates AND-ed WHERE clauses with their placeholder arguments.
// Values always travel as arguments, never inside the SQL text.
type predicate struct {
	clauses []string
	args    []any
}

func (p *predicate) add(clause string, args ...any) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

func (p *predicate) in(column string, values []string) {
	if len(values) == 0 {
		p.add("1 = 0")
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	p.add(column+" IN ("+placeholders(len(values))+")", args...)
}

func (p *predicate) String() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone,
	delivery_address, delivery_state, delivery_city, subtotal, commission_amount,
	seller_amount, payment_status, fulfillment_status, payment_reference, created_at, updated_at`

const orderColumnsPrefixed = `o.id, o.order_number, o.customer_name, o.customer_email, o.customer_phone,
	o.delivery_address, o.delivery_state, o.delivery_city, o.subtotal, o.commission_amount,
	o.seller_amount, o.payment_status, o.fulfillment_status, o.payment_reference, o.created_at, o.updated_at`

const orderItemColumns = `id, order_id, product_id, seller_id, product_name, quantity, unit_price, line_total, created_at`

const cartLineSelect = `
	SELECT ci.id, ci.product_id, p.seller_id, p.name, p.price, p.stock_quantity, p.status, ci.quantity
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id`

const productSelect = `SELECT id, seller_id, name, price, stock_quantity, status, created_at, updated_at FROM products WHERE id = ?`

const attemptColumns = `id, order_id, reference, amount_minor, status, created_at, updated_at, checked_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (models.Order, error) {
	var o models.Order
	var ref sql.NullString
	err := row.Scan(
		&o.ID, &o.OrderNumber,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Customer.Address, &o.Customer.State, &o.Customer.City,
		&o.Subtotal, &o.CommissionAmount, &o.SellerAmount,
		&o.PaymentStatus, &o.FulfillmentStatus, &ref,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if ref.Valid {
		o.PaymentReference = &ref.String
	}
	return o, nil
}

func scanOrderItem(row scanner) (models.OrderItem, error) {
	var l models.OrderItem
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.SellerID, &l.ProductName,
		&l.Quantity, &l.UnitPrice, &l.LineTotal, &l.CreatedAt)
	return l, err
}

func scanProduct(row scanner) (models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.StockQuantity, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanAttempt(row scanner) (models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	var checked sql.NullTime
	err := row.Scan(&a.ID, &a.OrderID, &a.Reference, &a.AmountMinor, &a.Status, &a.CreatedAt, &a.UpdatedAt, &checked)
	if err == nil && checked.Valid {
		a.CheckedAt = &checked.Time
	}
	return a, err
}

func queryCartLines(ctx context.Context, q Querier, query string, args ...any) ([]models.CartLine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.SellerID, &l.Name, &l.Price, &l.StockQuantity, &l.Status, &l.Quantity); err != nil {
			return nil, err
		}
		l.LineTotal = l.Price.Mul(decimalFromInt(l.Quantity))
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func queryOrderItems(ctx context.Context, q Querier, query string, args ...any) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return mapErr(err)
}
