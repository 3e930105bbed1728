// Package orders serves the read side of placed orders and seller fulfillment.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/commission"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/notify"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

type Service struct {
	store    store.Store
	policy   commission.Policy
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(s store.Store, policy commission.Policy, n notify.Notifier, log *slog.Logger) *Service {
	return &Service{
		store:    s,
		policy:   policy,
		notifier: n,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns an order and its lines by order number.
func (s *Service) Lookup(ctx context.Context, orderNumber string) (models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return models.Order{}, apperr.Invalid("orderNumber", "Order number is required")
	}
	order, err := s.store.OrderByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return order, apperr.NotFound("Order not found")
		}
		return order, fmt.Errorf("load order: %w", err)
	}
	lines, err := s.store.OrderLines(ctx, order.ID)
	if err != nil {
		return order, fmt.Errorf("load order lines: %w", err)
	}
	order.Lines = lines
	return order, nil
}

// SellerOrders lists orders containing the seller's products, newest first.
// Each order carries only the seller's lines and the seller's share.
func (s *Service) SellerOrders(ctx context.Context, sellerID int64, f models.OrderFilter) ([]models.SellerOrder, models.Pagination, error) {
	if f.FulfillmentStatus != "" && !models.IsFulfillmentStatus(f.FulfillmentStatus) {
		return nil, models.Pagination{}, apperr.Invalid("status", "Invalid fulfillment status")
	}
	if f.PaymentStatus != "" && !models.IsPaymentStatus(f.PaymentStatus) {
		return nil, models.Pagination{}, apperr.Invalid("payment_status", "Invalid payment status")
	}
	f.Page, f.Limit, _ = store.PageBounds(f.Page, f.Limit)

	orders, total, err := s.store.SellerOrders(ctx, sellerID, f)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("list seller orders: %w", err)
	}

	out := make([]models.SellerOrder, 0, len(orders))
	for _, o := range orders {
		so := models.SellerOrder{Order: o}
		for _, share := range s.policy.PerSeller(o.Lines) {
			if share.SellerID == sellerID {
				so.SellerSubtotal = share.Subtotal
				so.SellerCommission = share.Commission
				so.SellerPayout = share.Payout
			}
		}
		out = append(out, so)
	}

	pages := (total + f.Limit - 1) / f.Limit
	return out, models.Pagination{Page: f.Page, Limit: f.Limit, Total: total, TotalPages: pages}, nil
}

// UpdateFulfillment moves an order the seller has lines in to status.
func (s *Service) UpdateFulfillment(ctx context.Context, sellerID, orderID int64, status string) (models.Order, error) {
	if !models.IsFulfillmentStatus(status) {
		return models.Order{}, apperr.Invalid("status", "Invalid fulfillment status")
	}

	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return order, apperr.NotFound("Order not found")
		}
		return order, fmt.Errorf("load order: %w", err)
	}
	owns, err := s.store.SellerOwnsOrder(ctx, sellerID, orderID)
	if err != nil {
		return order, fmt.Errorf("check order ownership: %w", err)
	}
	if !owns {
		return order, apperr.Forbidden("You do not have permission to update this order")
	}
	if order.FulfillmentStatus == status {
		return order, nil
	}

	from := models.FulfillmentPredecessors(status)
	if !slices.Contains(from, order.FulfillmentStatus) {
		return order, apperr.Conflict(apperr.CodeInvalidTransition,
			fmt.Sprintf("Cannot change order status from %s to %s", order.FulfillmentStatus, status))
	}

	ok, err := s.store.TransitionFulfillment(ctx, orderID, status, from)
	if err != nil {
		return order, fmt.Errorf("update order status: %w", err)
	}
	current, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return order, fmt.Errorf("reload order: %w", err)
	}
	if !ok {
		if current.FulfillmentStatus == status {
			return current, nil
		}
		return current, apperr.Conflict(apperr.CodeConcurrentUpdate, "Order status changed concurrently")
	}

	s.log.Info("order status changed",
		"order_number", order.OrderNumber,
		"seller_id", sellerID,
		"from", order.FulfillmentStatus,
		"to", status,
	)
	if err := s.notifier.Notify(context.WithoutCancel(ctx), models.Notification{
		Event:       models.EventOrderStatusChanged,
		Recipient:   order.Customer.Email,
		OrderNumber: order.OrderNumber,
		Payload:     map[string]any{"from": order.FulfillmentStatus, "to": status},
	}); err != nil {
		s.log.Warn("status notification failed", "order_number", order.OrderNumber, "error", err)
	}
	return current, nil
}
