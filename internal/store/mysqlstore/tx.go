package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqlTx) Product(ctx context.Context, id int64) (models.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, productSelect, id))
	if err != nil {
		return p, notFound(err)
	}
	return p, nil
}

func (t *sqlTx) LockProduct(ctx context.Context, id int64) (models.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, productSelect+" FOR UPDATE", id))
	if err != nil {
		return p, notFound(err)
	}
	return p, nil
}

// DecrementStock relies on MySQL applying single-table SET assignments left
// to right: the status expression sees the already decremented quantity.
func (t *sqlTx) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - ?,
		    status = IF(stock_quantity = 0, 'sold_out', status),
		    updated_at = ?
		WHERE id = ? AND status = 'active' AND stock_quantity >= ?`,
		qty, t.now(), id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", mapErr(err))
	}
	return affected(res)
}

// LockCartLines locks only the cart rows; product rows are locked one by one,
// in product id order, by the stock ledger.
func (t *sqlTx) LockCartLines(ctx context.Context, session string) ([]models.CartLine, error) {
	lines, err := queryCartLines(ctx, t.tx, cartLineSelect+" WHERE ci.session_token = ? ORDER BY ci.id FOR UPDATE OF ci", session)
	if err != nil {
		return nil, fmt.Errorf("lock cart lines: %w", err)
	}
	return lines, nil
}

func (t *sqlTx) CartLine(ctx context.Context, session string, lineID int64) (models.CartLine, error) {
	lines, err := queryCartLines(ctx, t.tx, cartLineSelect+" WHERE ci.id = ? AND ci.session_token = ?", lineID, session)
	if err != nil {
		return models.CartLine{}, fmt.Errorf("query cart line: %w", err)
	}
	if len(lines) == 0 {
		return models.CartLine{}, store.ErrNotFound
	}
	return lines[0], nil
}

func (t *sqlTx) UpsertCartLine(ctx context.Context, session string, productID int64, qty int) (int64, error) {
	now := t.now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (session_token, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), quantity = quantity + VALUES(quantity), updated_at = VALUES(updated_at)`,
		session, productID, qty, now, now)
	if err != nil {
		if isCheckViolation(err) {
			return 0, store.ErrQuantityOutOfRange
		}
		return 0, fmt.Errorf("upsert cart item: %w", mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cart item id: %w", err)
	}
	return id, nil
}

func (t *sqlTx) SetCartLineQuantity(ctx context.Context, session string, lineID int64, qty int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ? AND session_token = ?",
		qty, t.now(), lineID, session)
	if err != nil {
		if isCheckViolation(err) {
			return false, store.ErrQuantityOutOfRange
		}
		return false, fmt.Errorf("update cart item: %w", mapErr(err))
	}
	return affected(res)
}

func (t *sqlTx) DeleteCartLine(ctx context.Context, session string, lineID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = ? AND session_token = ?", lineID, session)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", mapErr(err))
	}
	return affected(res)
}

func (t *sqlTx) ClearCart(ctx context.Context, session string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE session_token = ?", session)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *models.Order) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (order_number, customer_name, customer_email, customer_phone,
			delivery_address, delivery_state, delivery_city, subtotal, commission_amount,
			seller_amount, payment_status, fulfillment_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderNumber, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Customer.Address, o.Customer.State, o.Customer.City,
		o.Subtotal, o.CommissionAmount, o.SellerAmount,
		o.PaymentStatus, o.FulfillmentStatus, now, now)
	if err != nil {
		if isDuplicate(err) {
			return store.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	o.ID, o.CreatedAt, o.UpdatedAt = id, now, now
	return nil
}

func (t *sqlTx) InsertOrderLines(ctx context.Context, orderID int64, lines []models.OrderItem) error {
	now := t.now()
	for i := range lines {
		l := &lines[i]
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, seller_id, product_name, quantity, unit_price, line_total, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			orderID, l.ProductID, l.SellerID, l.ProductName, l.Quantity, l.UnitPrice, l.LineTotal, now)
		if err != nil {
			return fmt.Errorf("insert order item for product %d: %w", l.ProductID, mapErr(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("order item id: %w", err)
		}
		l.ID, l.OrderID, l.CreatedAt = id, orderID, now
	}
	return nil
}
