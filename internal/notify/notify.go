// Package notify delivers order notifications without ever blocking or
// failing the operation that triggered them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/01moynul/netriver-marketplace/internal/models"
)

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmailNotifier renders the customer email and writes it to the log.
type EmailNotifier struct {
	log  *slog.Logger
	from string
}

func NewEmailNotifier(log *slog.Logger, from string) *EmailNotifier {
	return &EmailNotifier{log: log, from: from}
}

func (e *EmailNotifier) Notify(ctx context.Context, n models.Notification) error {
	if n.Recipient == "" {
		return nil
	}
	subject, body := render(n)
	e.log.InfoContext(ctx, "email queued",
		"from", e.from,
		"to", n.Recipient,
		"subject", subject,
		"body", body,
		"event", n.Event,
	)
	return nil
}

func render(n models.Notification) (subject, body string) {
	switch n.Event {
	case models.EventOrderCreated:
		subject = fmt.Sprintf("Order %s received", n.OrderNumber)
		body = fmt.Sprintf("Thank you for your order. Total: NGN %v. We will let you know once payment is confirmed.", n.Payload["totalAmount"])
	case models.EventOrderPaid:
		subject = fmt.Sprintf("Payment confirmed for order %s", n.OrderNumber)
		body = "Your payment was received and your order is being prepared."
	case models.EventPaymentFailed:
		subject = fmt.Sprintf("Payment for order %s did not go through", n.OrderNumber)
		body = "You can retry payment from your order page."
	case models.EventPaymentRefunded:
		subject = fmt.Sprintf("Order %s refunded", n.OrderNumber)
		body = "Your payment has been refunded."
	case models.EventOrderStatusChanged:
		subject = fmt.Sprintf("Order %s is now %v", n.OrderNumber, n.Payload["to"])
		body = fmt.Sprintf("Your order status changed from %v to %v.", n.Payload["from"], n.Payload["to"])
	default:
		subject = fmt.Sprintf("Update on order %s", n.OrderNumber)
		body = strings.ReplaceAll(n.Event, ".", " ")
	}
	return subject, body
}

// Dispatcher queues notifications for a background worker. A full queue
// drops the notification with a log entry.
type Dispatcher struct {
	next    Notifier
	queue   chan models.Notification
	log     *slog.Logger
	timeout time.Duration
	onDrop  func()
	onFail  func(event string)
}

type DispatcherOption func(*Dispatcher)

// WithHooks installs callbacks for dropped and failed notifications.
func WithHooks(onDrop func(), onFail func(event string)) DispatcherOption {
	return func(d *Dispatcher) {
		if onDrop != nil {
			d.onDrop = onDrop
		}
		if onFail != nil {
			d.onFail = onFail
		}
	}
}

func NewDispatcher(next Notifier, buffer int, log *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:    next,
		queue:   make(chan models.Notification, buffer),
		log:     log,
		timeout: 10 * time.Second,
		onDrop:  func() {},
		onFail:  func(string) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify enqueues n and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	select {
	case d.queue <- n:
	default:
		d.onDrop()
		d.log.Warn("notification dropped, queue full", "event", n.Event, "order_number", n.OrderNumber)
	}
	return nil
}

// Run delivers queued notifications until ctx is cancelled, then drains
// whatever is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.next.Notify(ctx, n); err != nil {
		d.onFail(n.Event)
		d.log.Error("notification delivery failed", "event", n.Event, "order_number", n.OrderNumber, "error", err)
	}
}
