// Package checkout turns a session's cart into a persisted order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/cart"
	"github.com/01moynul/netriver-marketplace/internal/commission"
	"github.com/01moynul/netriver-marketplace/internal/metrics"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/notify"
	"github.com/01moynul/netriver-marketplace/internal/stock"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// State is the stage a checkout attempt has reached.
type State string

const (
	StateValidating   State = "validating"
	StateStockLocking State = "stock_locking"
	StatePersisting   State = "persisting"
	StateCommitted    State = "committed"
	StateAborted      State = "aborted"
)

const maxOrderNumberAttempts = 3

// NewOrderNumber returns "NR", the UTC time to the second, and eight random
// hex characters.
func NewOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "NR" + time.Now().UTC().Format("20060102150405") + suffix
}

type Deps struct {
	Store     store.Store
	Policy    commission.Policy
	Rules     Rules
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	NumberGen func() string
}

// Orchestrator runs checkout attempts. It is safe for concurrent use.
type Orchestrator struct {
	store     store.Store
	ledger    stock.Ledger
	policy    commission.Policy
	validator *CustomerValidator
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	log       *slog.Logger
	numberGen func() string
}

func New(d Deps) *Orchestrator {
	if d.NumberGen == nil {
		d.NumberGen = NewOrderNumber
	}
	return &Orchestrator{
		store:     d.Store,
		policy:    d.Policy,
		validator: NewCustomerValidator(d.Rules),
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		log:       d.Logger,
		numberGen: d.NumberGen,
	}
}

// Checkout validates the customer, reserves every cart line and writes the
// order in one transaction. On any failure nothing changes: stock, cart and
// orders are exactly as before.
func (o *Orchestrator) Checkout(ctx context.Context, session string, in models.Customer) (result models.CheckoutResult, err error) {
	start := time.Now()
	state := StateValidating
	defer func() {
		o.record(state, err, time.Since(start))
	}()

	// 1. --- Validate customer details ---
	customer, err := o.validator.Validate(in)
	if err != nil {
		return result, err
	}
	if session == "" {
		return result, apperr.Invalid("session", "Session token is required")
	}

	// 2. --- Snapshot the cart ---
	lines, err := o.store.CartLines(ctx, session)
	if err != nil {
		return result, fmt.Errorf("load cart: %w", err)
	}
	snapshot := cart.Summarize(lines)
	if snapshot.IsEmpty() {
		return result, apperr.Conflict(apperr.CodeEmptyCart, "Cart is empty")
	}
	activeBefore := make(map[int64]bool, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		activeBefore[l.ProductID] = true
	}

	// 3. --- Reserve, price and persist in one transaction ---
	var order models.Order
	var items []models.OrderItem
	err = o.store.WithinTx(ctx, func(tx store.Tx) error {
		state = StateStockLocking
		locked, err := tx.LockCartLines(ctx, session)
		if err != nil {
			return err
		}

		var reserve []models.CartLine
		for _, l := range locked {
			if l.Status == models.ProductInactive {
				if activeBefore[l.ProductID] {
					return apperr.ProductUnavailable(l.Name)
				}
				continue
			}
			reserve = append(reserve, l)
		}
		if len(reserve) == 0 {
			return apperr.Conflict(apperr.CodeEmptyCart, "Cart is empty")
		}

		// Products are locked in ascending id order so two checkouts sharing
		// products cannot deadlock on each other.
		sort.Slice(reserve, func(i, j int) bool { return reserve[i].ProductID < reserve[j].ProductID })

		subtotal := decimal.Zero
		items = make([]models.OrderItem, 0, len(reserve))
		for _, l := range reserve {
			p, err := o.ledger.Reserve(ctx, tx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			items = append(items, models.OrderItem{
				ProductID:   p.ID,
				SellerID:    p.SellerID,
				ProductName: p.Name,
				Quantity:    l.Quantity,
				UnitPrice:   p.Price,
				LineTotal:   lineTotal,
			})
			subtotal = subtotal.Add(lineTotal)
		}
		commissionAmount, sellerAmount := o.policy.Split(subtotal)

		state = StatePersisting
		order = models.Order{
			Customer:          customer,
			Subtotal:          subtotal,
			CommissionAmount:  commissionAmount,
			SellerAmount:      sellerAmount,
			PaymentStatus:     models.PaymentPending,
			FulfillmentStatus: models.FulfillmentPending,
		}
		if err := o.insertOrder(ctx, tx, &order); err != nil {
			return err
		}
		if err := tx.InsertOrderLines(ctx, order.ID, items); err != nil {
			return err
		}
		if _, err := tx.ClearCart(ctx, session); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConcurrentUpdate) {
			err = apperr.Conflict(apperr.CodeConcurrentUpdate, "Your order conflicted with another purchase, please try again")
		}
		return result, err
	}
	state = StateCommitted
	order.Lines = items

	// 4. --- Notify (fire and forget) ---
	o.notifyCreated(ctx, order)

	itemCount := 0
	for _, it := range items {
		itemCount += it.Quantity
	}
	return models.CheckoutResult{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		Subtotal:         order.Subtotal,
		CommissionAmount: order.CommissionAmount,
		SellerAmount:     order.SellerAmount,
		ItemCount:        itemCount,
		PaymentStatus:    order.PaymentStatus,
	}, nil
}

// insertOrder retries with a fresh number when the generated one collides.
func (o *Orchestrator) insertOrder(ctx context.Context, tx store.Tx, order *models.Order) error {
	for attempt := 1; ; attempt++ {
		order.OrderNumber = o.numberGen()
		err := tx.InsertOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateOrderNumber) || attempt >= maxOrderNumberAttempts {
			return fmt.Errorf("insert order: %w", err)
		}
		o.log.Warn("order number collision, regenerating", "order_number", order.OrderNumber, "attempt", attempt)
	}
}

func (o *Orchestrator) notifyCreated(ctx context.Context, order models.Order) {
	n := models.Notification{
		Event:       models.EventOrderCreated,
		Recipient:   order.Customer.Email,
		OrderNumber: order.OrderNumber,
		Payload: map[string]any{
			"orderId":     order.ID,
			"totalAmount": order.Subtotal.StringFixed(2),
			"sellers":     o.policy.PerSeller(order.Lines),
		},
	}
	if err := o.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		o.log.Warn("order notification failed", "order_number", order.OrderNumber, "error", err)
	}
}

func (o *Orchestrator) record(state State, err error, elapsed time.Duration) {
	o.metrics.CheckoutDuration.Observe(elapsed.Seconds())
	if err == nil {
		o.metrics.Checkouts.WithLabelValues("committed", string(StateCommitted), "").Inc()
		return
	}

	e := apperr.As(err)
	o.metrics.Checkouts.WithLabelValues(string(StateAborted), string(state), e.Code).Inc()
	if e.Kind == apperr.KindInternal {
		o.log.Error("checkout aborted", "state", state, "error", err)
		return
	}
	o.log.Info("checkout aborted", "state", state, "code", e.Code)
}
