// Package store declares the persistence contract shared by the MySQL and
// in-memory backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/01moynul/netriver-marketplace/internal/models"
)

var (
	ErrNotFound             = errors.New("store: not found")
	ErrDuplicateOrderNumber = errors.New("store: duplicate order number")
	ErrDuplicateReference   = errors.New("store: duplicate payment reference")
	// ErrQuantityOutOfRange reports a cart line pushed outside the per-line bounds.
	ErrQuantityOutOfRange = errors.New("store: cart quantity out of range")
	// ErrConcurrentUpdate reports a deadlock or lock wait timeout; the caller may retry.
	ErrConcurrentUpdate = errors.New("store: concurrent update")
)

// PaymentTransition is a conditional move of an order's payment status.
// It applies only when the current status is one of From, and, if
// MatchReference is set, the stored reference equals Reference.
type PaymentTransition struct {
	OrderID        int64
	To             string
	From           []string
	Reference      string
	MatchReference bool
}

// Store is the non-transactional surface plus the entry point for transactions.
type Store interface {
	// WithinTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CartLines(ctx context.Context, session string) ([]models.CartLine, error)

	OrderByNumber(ctx context.Context, orderNumber string) (models.Order, error)
	OrderByID(ctx context.Context, id int64) (models.Order, error)
	OrderLines(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	// SellerOrders returns the page of orders containing at least one of the
	// seller's lines, newest first, with only that seller's lines attached.
	SellerOrders(ctx context.Context, sellerID int64, f models.OrderFilter) ([]models.Order, int, error)
	SellerOwnsOrder(ctx context.Context, sellerID, orderID int64) (bool, error)

	// TransitionPayment reports whether the transition was applied.
	TransitionPayment(ctx context.Context, t PaymentTransition) (bool, error)
	// TransitionFulfillment moves the order to `to` when its current status is one of from.
	TransitionFulfillment(ctx context.Context, orderID int64, to string, from []string) (bool, error)
	// SetPaymentReference records the latest gateway reference on an unpaid order.
	SetPaymentReference(ctx context.Context, orderID int64, reference string) (bool, error)

	CreatePaymentAttempt(ctx context.Context, a *models.PaymentAttempt) error
	PaymentAttempt(ctx context.Context, reference string) (models.PaymentAttempt, error)
	MarkPaymentAttempt(ctx context.Context, reference, status string) error
	// StalePaymentAttempts lists initialized attempts created before olderThan
	// whose order is still awaiting payment, least recently checked first.
	StalePaymentAttempts(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentAttempt, error)
	// TouchPaymentAttempt records that the attempt was just re-checked.
	TouchPaymentAttempt(ctx context.Context, reference string) error

	// Orders lists every order matching f, newest first, with the total count.
	Orders(ctx context.Context, f models.AdminOrderFilter) ([]models.Order, int, error)
	// OrderStats counts orders and sums paid sales; topSellers bounds the ranking.
	OrderStats(ctx context.Context, topSellers int) (models.OrderStats, error)
	// DailyRevenue groups paid orders created at or after since by UTC day, newest first.
	DailyRevenue(ctx context.Context, since time.Time) ([]models.RevenueDay, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional surface used by cart mutations and checkout.
type Tx interface {
	Product(ctx context.Context, id int64) (models.Product, error)
	// LockProduct reads the product and holds its row lock until the transaction ends.
	LockProduct(ctx context.Context, id int64) (models.Product, error)
	// DecrementStock subtracts qty if the product is active with enough stock,
	// flipping it to sold_out at zero. It reports whether the row was updated.
	DecrementStock(ctx context.Context, id int64, qty int) (bool, error)

	// LockCartLines returns every line of the session, including inactive
	// products, ordered by line id, and holds their row locks.
	LockCartLines(ctx context.Context, session string) ([]models.CartLine, error)
	CartLine(ctx context.Context, session string, lineID int64) (models.CartLine, error)
	// UpsertCartLine adds qty to the session's line for productID, creating it if needed.
	UpsertCartLine(ctx context.Context, session string, productID int64, qty int) (int64, error)
	SetCartLineQuantity(ctx context.Context, session string, lineID int64, qty int) (bool, error)
	DeleteCartLine(ctx context.Context, session string, lineID int64) (bool, error)
	ClearCart(ctx context.Context, session string) (int64, error)

	// InsertOrder sets o.ID. It returns ErrDuplicateOrderNumber on a number collision.
	InsertOrder(ctx context.Context, o *models.Order) error
	InsertOrderLines(ctx context.Context, orderID int64, lines []models.OrderItem) error
}

// PageBounds normalises a page/limit pair and returns the row offset.
func PageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}
