package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/netriver-marketplace/internal/logger"
	"github.com/01moynul/netriver-marketplace/internal/models"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []models.Notification
	err error
}

func (r *recordingNotifier) Notify(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.got {
		out = append(out, n.Event)
	}
	return out
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestDispatcherDeliversAndDrainsOnShutdown(t *testing.T) {
	sink := &recordingNotifier{}
	d := NewDispatcher(sink, 10, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	require.NoError(t, d.Notify(context.Background(), models.Notification{Event: models.EventOrderCreated, OrderNumber: "NR1"}))
	require.NoError(t, d.Notify(context.Background(), models.Notification{Event: models.EventOrderPaid, OrderNumber: "NR1"}))
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.ElementsMatch(t, []string{models.EventOrderCreated, models.EventOrderPaid}, sink.events())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	var dropped int
	d := NewDispatcher(&recordingNotifier{}, 1, logger.Discard(), WithHooks(func() { dropped++ }, nil))

	require.NoError(t, d.Notify(context.Background(), models.Notification{Event: "a"}))
	require.NoError(t, d.Notify(context.Background(), models.Notification{Event: "b"}))

	assert.Equal(t, 1, dropped)
}

func TestDispatcherReportsSinkFailures(t *testing.T) {
	var failed []string
	sink := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(sink, 1, logger.Discard(), WithHooks(func() {}, func(e string) { failed = append(failed, e) }))

	d.deliver(models.Notification{Event: models.EventPaymentFailed})
	assert.Equal(t, []string{models.EventPaymentFailed}, failed)
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}

	err := Multi{bad, ok}.Notify(context.Background(), models.Notification{Event: "x"})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.events(), 1)
}

func TestKafkaNotifierPublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaNotifier(w)

	err := k.Notify(context.Background(), models.Notification{
		Event:       models.EventOrderPaid,
		OrderNumber: "NR42",
		Payload:     map[string]any{"reference": "ref-1"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("NR42"), w.msgs[0].Key)
	assert.Equal(t, "event", w.msgs[0].Headers[0].Key)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.EventOrderPaid, decoded.Event)
}

func TestKafkaNotifierWrapsWriteErrors(t *testing.T) {
	k := NewKafkaNotifier(&fakeWriter{err: errors.New("leader not available")})
	err := k.Notify(context.Background(), models.Notification{Event: models.EventOrderCreated})
	assert.ErrorContains(t, err, "publish order.created")
}

func TestEmailNotifierSkipsMissingRecipient(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmailNotifier(logger.New(&buf, 0), "orders@netriver.ng")

	require.NoError(t, e.Notify(context.Background(), models.Notification{Event: models.EventOrderPaid}))
	assert.Zero(t, buf.Len())

	require.NoError(t, e.Notify(context.Background(), models.Notification{
		Event: models.EventOrderPaid, OrderNumber: "NR7", Recipient: "ada@example.com",
	}))
	assert.Contains(t, buf.String(), "Payment confirmed for order NR7")
}

func TestRenderUsesEventPayloads(t *testing.T) {
	subject, body := render(models.Notification{
		Event:       models.EventOrderStatusChanged,
		OrderNumber: "NR1",
		Payload:     map[string]any{"from": models.FulfillmentPending, "to": models.FulfillmentShipped},
	})
	assert.Equal(t, "Order NR1 is now shipped", subject)
	assert.Equal(t, "Your order status changed from pending to shipped.", body)
	assert.NotContains(t, subject+body, "<nil>")

	_, body = render(models.Notification{
		Event:       models.EventOrderCreated,
		OrderNumber: "NR2",
		Payload:     map[string]any{"totalAmount": "300.00"},
	})
	assert.Contains(t, body, "NGN 300.00")
}
