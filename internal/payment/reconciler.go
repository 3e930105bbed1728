package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/metrics"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/notify"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// Sources of payment transitions, used as a metrics label.
const (
	SourceVerify   = "verify"
	SourceWebhook  = "webhook"
	SourceOverride = "override"
	SourceSweeper  = "sweeper"
)

// Webhook event names handled by HandleWebhook.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// SignatureHeader carries the HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "x-paystack-signature"

type Config struct {
	Currency       string
	CallbackURL    string
	ToleranceMinor int64
	WebhookSecret  string
}

type Deps struct {
	Store    store.Store
	Gateway  Gateway
	Events   EventLog
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Reconciler converges an order's payment status from three independent
// signals: synchronous verification, gateway webhooks and admin overrides.
// Every mutation is a conditional update, so the signals may race or repeat.
type Reconciler struct {
	cfg      Config
	store    store.Store
	gateway  Gateway
	events   EventLog
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewReconciler(cfg Config, d Deps) *Reconciler {
	if d.Events == nil {
		d.Events = NopEventLog{}
	}
	return &Reconciler{
		cfg:      cfg,
		store:    d.Store,
		gateway:  d.Gateway,
		events:   d.Events,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      d.Logger,
	}
}

// InitializeResult is handed back to the shopper to continue on the gateway.
type InitializeResult struct {
	AuthorizationURL string          `json:"authorizationUrl"`
	AccessCode       string          `json:"accessCode"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
}

func newReference(orderNumber string) string {
	return fmt.Sprintf("%s_%s", orderNumber, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Initialize opens a gateway transaction for an unpaid order. The amount the
// client declares must match the stored total.
func (r *Reconciler) Initialize(ctx context.Context, orderNumber, email string, declared decimal.Decimal) (InitializeResult, error) {
	order, err := r.orderByNumber(ctx, orderNumber)
	if err != nil {
		return InitializeResult{}, err
	}

	switch order.PaymentStatus {
	case models.PaymentPaid:
		return InitializeResult{}, apperr.Conflict(apperr.CodeAlreadyPaid, "Order already paid")
	case models.PaymentRefunded:
		return InitializeResult{}, apperr.Conflict(apperr.CodeInvalidTransition, "Order was refunded")
	}
	if declared.Sub(order.Subtotal).Abs().GreaterThan(FromMinor(r.cfg.ToleranceMinor)) {
		return InitializeResult{}, apperr.Conflict(apperr.CodeAmountMismatch, "Amount does not match order total")
	}
	if email == "" {
		email = order.Customer.Email
	}

	ref := newReference(order.OrderNumber)
	amountMinor := ToMinor(order.Subtotal)
	resp, err := r.gateway.Initialize(ctx, InitializeRequest{
		Email:       email,
		AmountMinor: amountMinor,
		Currency:    r.cfg.Currency,
		Reference:   ref,
		CallbackURL: r.cfg.CallbackURL,
		Metadata: map[string]any{
			"orderNumber":  order.OrderNumber,
			"customerName": order.Customer.Name,
		},
	})
	r.metrics.GatewayCalls.WithLabelValues("initialize", result(err)).Inc()
	if err != nil {
		return InitializeResult{}, err
	}
	if resp.Reference != "" {
		ref = resp.Reference
	}

	attempt := models.PaymentAttempt{
		OrderID:     order.ID,
		Reference:   ref,
		AmountMinor: amountMinor,
		Status:      models.AttemptInitialized,
	}
	if err := r.store.CreatePaymentAttempt(ctx, &attempt); err != nil {
		return InitializeResult{}, fmt.Errorf("record payment attempt: %w", err)
	}
	if ok, err := r.store.SetPaymentReference(ctx, order.ID, ref); err != nil {
		return InitializeResult{}, fmt.Errorf("store payment reference: %w", err)
	} else if !ok {
		r.log.Info("payment reference not stored, order settled meanwhile", "order_number", order.OrderNumber)
	}

	return InitializeResult{
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		Reference:        ref,
		Amount:           order.Subtotal,
	}, nil
}

// Verify asks the gateway about reference and applies the outcome.
func (r *Reconciler) Verify(ctx context.Context, reference string) (models.Order, error) {
	if reference == "" {
		return models.Order{}, apperr.Invalid("reference", "Payment reference is required")
	}
	tx, err := r.gateway.Verify(ctx, reference)
	r.metrics.GatewayCalls.WithLabelValues("verify", result(err)).Inc()
	if err != nil {
		return models.Order{}, err
	}
	if tx.Reference == "" {
		tx.Reference = reference
	}

	order, err := r.resolveOrder(ctx, tx)
	if err != nil {
		return models.Order{}, err
	}
	return r.apply(ctx, SourceVerify, order, tx)
}

// apply moves the order according to a gateway transaction.
func (r *Reconciler) apply(ctx context.Context, source string, order models.Order, tx Transaction) (models.Order, error) {
	switch tx.Status {
	case TxSuccess:
		if !r.amountMatches(order, tx) {
			r.log.Warn("payment amount mismatch, order left unchanged",
				"order_number", order.OrderNumber,
				"reference", tx.Reference,
				"expected_minor", ToMinor(order.Subtotal),
				"paid_minor", tx.AmountMinor,
				"currency", tx.Currency,
				"source", source,
			)
			r.markAttempt(ctx, tx.Reference, models.AttemptMismatch)
			return order, apperr.Conflict(apperr.CodeAmountMismatch, "Paid amount does not match order total")
		}
		r.markAttempt(ctx, tx.Reference, models.AttemptSuccess)
		ok, err := r.store.TransitionPayment(ctx, store.PaymentTransition{
			OrderID:   order.ID,
			To:        models.PaymentPaid,
			From:      models.PaymentPredecessors(models.PaymentPaid),
			Reference: tx.Reference,
		})
		if err != nil {
			return order, fmt.Errorf("mark order paid: %w", err)
		}
		if ok {
			r.applied(ctx, source, order, models.PaymentPaid, map[string]any{"reference": tx.Reference})
		}
		return r.reload(ctx, order)

	case TxFailed:
		r.markAttempt(ctx, tx.Reference, models.AttemptFailed)
		ok, err := r.store.TransitionPayment(ctx, store.PaymentTransition{
			OrderID:        order.ID,
			To:             models.PaymentFailed,
			From:           models.PaymentPredecessors(models.PaymentFailed),
			Reference:      tx.Reference,
			MatchReference: true,
		})
		if err != nil {
			return order, fmt.Errorf("mark order failed: %w", err)
		}
		if ok {
			r.applied(ctx, source, order, models.PaymentFailed, map[string]any{"reason": tx.GatewayResponse})
		}
		current, err := r.reload(ctx, order)
		if err != nil {
			return order, err
		}
		if current.PaymentStatus == models.PaymentPaid {
			return current, nil
		}
		return current, apperr.Conflict(apperr.CodePaymentFailed, "Payment failed")

	default:
		if tx.Status == TxAbandoned {
			r.markAttempt(ctx, tx.Reference, models.AttemptFailed)
		}
		current, err := r.reload(ctx, order)
		if err != nil {
			return order, err
		}
		if current.PaymentStatus == models.PaymentPaid {
			return current, nil
		}
		return current, apperr.Conflict(apperr.CodePaymentIncomplete, "Payment not completed")
	}
}

func (r *Reconciler) amountMatches(order models.Order, tx Transaction) bool {
	if tx.Currency != "" && !strings.EqualFold(tx.Currency, r.cfg.Currency) {
		return false
	}
	diff := tx.AmountMinor - ToMinor(order.Subtotal)
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.cfg.ToleranceMinor
}

// webhookPayload is the subset of the gateway event the reconciler reads.
type webhookPayload struct {
	Event string     `json:"event"`
	Data  chargeData `json:"data"`
}

// VerifySignature checks the hex HMAC-SHA512 of body under the webhook secret.
func (r *Reconciler) VerifySignature(signature string, body []byte) bool {
	if r.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(r.cfg.WebhookSecret))
	mac.Write(body)
	expected := mac.Sum(nil)
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// HandleWebhook applies a signed gateway event. Unknown orders, unknown
// events and mismatched amounts are acknowledged and ignored; only storage
// failures return an error, so the gateway retries delivery.
func (r *Reconciler) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	if !r.VerifySignature(signature, body) {
		return apperr.Unauthorized("Invalid webhook signature")
	}

	var evt webhookPayload
	if err := json.Unmarshal(body, &evt); err != nil {
		return apperr.Invalid("body", "Malformed webhook payload")
	}
	if evt.Event != EventChargeSuccess && evt.Event != EventChargeFailed {
		r.log.Debug("webhook event ignored", "event", evt.Event)
		return nil
	}
	tx := evt.Data.transaction()
	if tx.Reference == "" {
		return apperr.Invalid("reference", "Webhook carries no reference")
	}
	if evt.Event == EventChargeFailed && tx.Status == "" {
		tx.Status = TxFailed
	}

	eventID := evt.Event + ":" + tx.Reference
	first, err := r.events.FirstSeen(ctx, eventID)
	if err != nil {
		r.log.Warn("webhook dedupe unavailable, processing anyway", "event_id", eventID, "error", err)
	}
	if !first {
		r.log.Info("duplicate webhook ignored", "event_id", eventID)
		return nil
	}

	order, err := r.resolveOrder(ctx, tx)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			r.log.Warn("webhook for unknown order", "reference", tx.Reference, "order_number", tx.OrderNumber)
			return nil
		}
		r.forget(ctx, eventID)
		return err
	}

	switch evt.Event {
	case EventChargeSuccess:
		tx.Status = TxSuccess
		if tx.AmountMinor == 0 {
			tx.AmountMinor = ToMinor(order.Subtotal)
		}
	case EventChargeFailed:
		tx.Status = TxFailed
	}

	_, err = r.apply(ctx, SourceWebhook, order, tx)
	if err == nil || apperr.IsKind(err, apperr.KindConflict) {
		return nil
	}
	r.forget(ctx, eventID)
	return err
}

func (r *Reconciler) forget(ctx context.Context, eventID string) {
	if err := r.events.Forget(ctx, eventID); err != nil {
		r.log.Warn("could not release webhook event", "event_id", eventID, "error", err)
	}
}

// Override applies an administrator's payment status change. Same-state
// requests are no-ops; transitions back to pending are never allowed.
func (r *Reconciler) Override(ctx context.Context, orderID int64, to string) (models.Order, error) {
	if !models.IsPaymentStatus(to) {
		return models.Order{}, apperr.Invalid("payment_status", "Invalid payment status")
	}
	order, err := r.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return order, apperr.NotFound("Order not found")
		}
		return order, fmt.Errorf("load order: %w", err)
	}
	if order.PaymentStatus == to {
		return order, nil
	}

	from := models.PaymentPredecessors(to)
	if !slices.Contains(from, order.PaymentStatus) {
		return order, apperr.Conflict(apperr.CodeInvalidTransition,
			fmt.Sprintf("Cannot change payment status from %s to %s", order.PaymentStatus, to))
	}
	ok, err := r.store.TransitionPayment(ctx, store.PaymentTransition{OrderID: order.ID, To: to, From: from})
	if err != nil {
		return order, fmt.Errorf("override payment status: %w", err)
	}
	if !ok {
		current, err := r.reload(ctx, order)
		if err == nil && current.PaymentStatus == to {
			return current, nil
		}
		return order, apperr.Conflict(apperr.CodeInvalidTransition, "Payment status changed concurrently")
	}
	r.applied(ctx, SourceOverride, order, to, nil)
	return r.reload(ctx, order)
}

// ReconcilePending re-verifies initialized attempts created before olderThan
// and reports how many orders it settled. Each attempt is stamped before the
// gateway call, so attempts the gateway keeps reporting as open rotate to the
// back of the queue.
func (r *Reconciler) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	attempts, err := r.store.StalePaymentAttempts(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale payment attempts: %w", err)
	}

	settled := 0
	for _, a := range attempts {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if err := r.store.TouchPaymentAttempt(ctx, a.Reference); err != nil {
			r.log.Warn("could not stamp payment attempt", "reference", a.Reference, "error", err)
		}
		tx, err := r.gateway.Verify(ctx, a.Reference)
		r.metrics.GatewayCalls.WithLabelValues("verify", result(err)).Inc()
		if err != nil {
			r.log.Warn("reconcile verify failed", "reference", a.Reference, "error", err)
			continue
		}
		if tx.Reference == "" {
			tx.Reference = a.Reference
		}
		order, err := r.store.OrderByID(ctx, a.OrderID)
		if err != nil {
			r.log.Warn("reconcile order lookup failed", "reference", a.Reference, "error", err)
			continue
		}
		current, err := r.apply(ctx, SourceSweeper, order, tx)
		if err != nil && !apperr.IsKind(err, apperr.KindConflict) {
			r.log.Error("reconcile apply failed", "reference", a.Reference, "error", err)
			continue
		}
		if current.PaymentStatus != order.PaymentStatus {
			settled++
		}
	}
	return settled, nil
}

// resolveOrder finds the order a transaction belongs to: by the recorded
// attempt first, then by the order number echoed in gateway metadata.
func (r *Reconciler) resolveOrder(ctx context.Context, tx Transaction) (models.Order, error) {
	attempt, err := r.store.PaymentAttempt(ctx, tx.Reference)
	switch {
	case err == nil:
		order, err := r.store.OrderByID(ctx, attempt.OrderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return order, apperr.NotFound("Order not found")
			}
			return order, fmt.Errorf("load order: %w", err)
		}
		return order, nil
	case !errors.Is(err, store.ErrNotFound):
		return models.Order{}, fmt.Errorf("load payment attempt: %w", err)
	}

	if tx.OrderNumber == "" {
		return models.Order{}, apperr.NotFound("Order not found for payment reference")
	}
	return r.orderByNumber(ctx, tx.OrderNumber)
}

func (r *Reconciler) orderByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	order, err := r.store.OrderByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return order, apperr.NotFound("Order not found")
		}
		return order, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

func (r *Reconciler) reload(ctx context.Context, order models.Order) (models.Order, error) {
	current, err := r.store.OrderByID(ctx, order.ID)
	if err != nil {
		return order, fmt.Errorf("reload order: %w", err)
	}
	return current, nil
}

func (r *Reconciler) markAttempt(ctx context.Context, reference, status string) {
	err := r.store.MarkPaymentAttempt(ctx, reference, status)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Warn("could not update payment attempt", "reference", reference, "error", err)
	}
}

var transitionEvents = map[string]string{
	models.PaymentPaid:     models.EventOrderPaid,
	models.PaymentFailed:   models.EventPaymentFailed,
	models.PaymentRefunded: models.EventPaymentRefunded,
}

func (r *Reconciler) applied(ctx context.Context, source string, order models.Order, to string, payload map[string]any) {
	r.metrics.PaymentTransitions.WithLabelValues(source, to).Inc()
	r.log.Info("payment status changed",
		"order_number", order.OrderNumber,
		"from", order.PaymentStatus,
		"to", to,
		"source", source,
	)
	event, ok := transitionEvents[to]
	if !ok {
		return
	}
	if err := r.notifier.Notify(context.WithoutCancel(ctx), models.Notification{
		Event:       event,
		Recipient:   order.Customer.Email,
		OrderNumber: order.OrderNumber,
		Payload:     payload,
	}); err != nil {
		r.log.Warn("payment notification failed", "order_number", order.OrderNumber, "error", err)
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
