package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/logger"
	"github.com/01moynul/netriver-marketplace/internal/metrics"
	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
	"github.com/01moynul/netriver-marketplace/internal/store/memstore"
)

const webhookSecret = "sk_test_secret"

type fakeGateway struct {
	mu       sync.Mutex
	txs      map[string]Transaction
	initErr  error
	inits    []InitializeRequest
	verifies int
}

func (g *fakeGateway) Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return InitializeResponse{}, g.initErr
	}
	g.inits = append(g.inits, req)
	return InitializeResponse{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	tx, ok := g.txs[reference]
	if !ok {
		return Transaction{}, apperr.NotFound("Transaction not found")
	}
	return tx, nil
}

func (g *fakeGateway) set(tx Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.txs == nil {
		g.txs = make(map[string]Transaction)
	}
	g.txs[tx.Reference] = tx
}

type countingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *countingNotifier) Notify(ctx context.Context, n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, n.Event)
	return nil
}

type fixture struct {
	store   *memstore.MemoryStore
	gateway *fakeGateway
	notes   *countingNotifier
	metrics *metrics.Metrics
	rec     *Reconciler
}

func newFixture(t *testing.T, events EventLog) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		gateway: &fakeGateway{},
		notes:   &countingNotifier{},
		metrics: metrics.New(),
	}
	f.rec = NewReconciler(Config{
		Currency:       "NGN",
		CallbackURL:    "http://localhost/v1/payment/verify",
		ToleranceMinor: 1,
		WebhookSecret:  webhookSecret,
	}, Deps{
		Store:    f.store,
		Gateway:  f.gateway,
		Events:   events,
		Notifier: f.notes,
		Metrics:  f.metrics,
		Logger:   logger.Discard(),
	})
	return f
}

// order writes a pending order for total and returns it.
func (f *fixture) order(t *testing.T, number, total string) models.Order {
	t.Helper()
	o := models.Order{
		OrderNumber:       number,
		Customer:          models.Customer{Name: "Ngozi Eze", Email: "ngozi@example.com"},
		Subtotal:          decimal.RequireFromString(total),
		PaymentStatus:     models.PaymentPending,
		FulfillmentStatus: models.FulfillmentPending,
	}
	err := f.store.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertOrder(context.Background(), &o)
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) status(t *testing.T, id int64) string {
	t.Helper()
	o, err := f.store.OrderByID(context.Background(), id)
	require.NoError(t, err)
	return o.PaymentStatus
}

func (f *fixture) paidTransitions(source string) float64 {
	return testutil.ToFloat64(f.metrics.PaymentTransitions.WithLabelValues(source, models.PaymentPaid))
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, event, reference, orderNumber string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"status":    map[string]string{EventChargeSuccess: TxSuccess, EventChargeFailed: TxFailed}[event],
			"amount":    amount,
			"currency":  "NGN",
			"metadata":  map[string]string{"orderNumber": orderNumber},
		},
	})
	require.NoError(t, err)
	return body
}

func TestInitializeRecordsAttemptAndReference(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")

	res, err := f.rec.Initialize(ctx, "NR1", "", decimal.RequireFromString("300.00"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.AuthorizationURL)

	require.Len(t, f.gateway.inits, 1)
	assert.Equal(t, int64(30000), f.gateway.inits[0].AmountMinor)
	assert.Equal(t, "ngozi@example.com", f.gateway.inits[0].Email)
	assert.Equal(t, "NR1", f.gateway.inits[0].Metadata["orderNumber"])

	attempt, err := f.store.PaymentAttempt(ctx, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, o.ID, attempt.OrderID)
	assert.Equal(t, models.AttemptInitialized, attempt.Status)

	stored, err := f.store.OrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, res.Reference, *stored.PaymentReference)
}

func TestInitializeRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	paid := f.order(t, "NRPAID", "100.00")
	_, err := f.store.TransitionPayment(ctx, store.PaymentTransition{OrderID: paid.ID, To: models.PaymentPaid, From: []string{models.PaymentPending}})
	require.NoError(t, err)
	f.order(t, "NROPEN", "100.00")

	_, err = f.rec.Initialize(ctx, "NRPAID", "", decimal.RequireFromString("100.00"))
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyPaid))

	_, err = f.rec.Initialize(ctx, "NROPEN", "", decimal.RequireFromString("90.00"))
	assert.True(t, apperr.IsCode(err, apperr.CodeAmountMismatch))

	_, err = f.rec.Initialize(ctx, "NRMISSING", "", decimal.RequireFromString("1.00"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	f.gateway.initErr = apperr.External("down", errors.New("dial tcp: refused"))
	_, err = f.rec.Initialize(ctx, "NROPEN", "", decimal.RequireFromString("100.00"))
	assert.True(t, apperr.IsKind(err, apperr.KindExternal))
}

func TestVerifyMarksOrderPaid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 30000, Currency: "NGN", OrderNumber: "NR1"})

	got, err := f.rec.Verify(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.PaymentReference)
	assert.Equal(t, "ref-1", *got.PaymentReference)
	assert.Equal(t, models.PaymentPaid, f.status(t, o.ID))
	assert.Equal(t, []string{models.EventOrderPaid}, f.notes.events)
}

func TestVerifyRejectsUnderpayment(t *testing.T) {
	f := newFixture(t, nil)
	o := f.order(t, "NR1", "300.00")
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 25000, Currency: "NGN", OrderNumber: "NR1"})

	_, err := f.rec.Verify(context.Background(), "ref-1")
	assert.True(t, apperr.IsCode(err, apperr.CodeAmountMismatch))
	assert.Equal(t, models.PaymentPending, f.status(t, o.ID))
	assert.Empty(t, f.notes.events)
}

func TestVerifyAcceptsAmountWithinTolerance(t *testing.T) {
	f := newFixture(t, nil)
	o := f.order(t, "NR1", "300.00")
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 29999, OrderNumber: "NR1"})

	_, err := f.rec.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, f.status(t, o.ID))
}

func TestVerifyRejectsWrongCurrency(t *testing.T) {
	f := newFixture(t, nil)
	o := f.order(t, "NR1", "300.00")
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 30000, Currency: "USD", OrderNumber: "NR1"})

	_, err := f.rec.Verify(context.Background(), "ref-1")
	assert.True(t, apperr.IsCode(err, apperr.CodeAmountMismatch))
	assert.Equal(t, models.PaymentPending, f.status(t, o.ID))
}

func TestVerifyFailedPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	_, err := f.store.SetPaymentReference(ctx, o.ID, "ref-1")
	require.NoError(t, err)
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxFailed, OrderNumber: "NR1"})

	_, err = f.rec.Verify(ctx, "ref-1")
	assert.True(t, apperr.IsCode(err, apperr.CodePaymentFailed))
	assert.Equal(t, models.PaymentFailed, f.status(t, o.ID))

	// A later attempt may still succeed.
	f.gateway.set(Transaction{Reference: "ref-2", Status: TxSuccess, AmountMinor: 30000, OrderNumber: "NR1"})
	got, err := f.rec.Verify(ctx, "ref-2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestVerifyFailureForStaleReferenceLeavesOrderPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	_, err := f.store.SetPaymentReference(ctx, o.ID, "ref-new")
	require.NoError(t, err)
	f.gateway.set(Transaction{Reference: "ref-old", Status: TxFailed, OrderNumber: "NR1"})

	_, err = f.rec.Verify(ctx, "ref-old")
	assert.True(t, apperr.IsCode(err, apperr.CodePaymentFailed))
	assert.Equal(t, models.PaymentPending, f.status(t, o.ID))
}

func TestVerifyIncompletePayment(t *testing.T) {
	f := newFixture(t, nil)
	o := f.order(t, "NR1", "300.00")
	f.gateway.set(Transaction{Reference: "ref-1", Status: "ongoing", OrderNumber: "NR1"})

	_, err := f.rec.Verify(context.Background(), "ref-1")
	assert.True(t, apperr.IsCode(err, apperr.CodePaymentIncomplete))
	assert.Equal(t, models.PaymentPending, f.status(t, o.ID))
}

func TestWebhookThenVerifyIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 30000, OrderNumber: "NR1"})

	body := webhookBody(t, EventChargeSuccess, "ref-1", "NR1", 30000)
	require.NoError(t, f.rec.HandleWebhook(ctx, sign(body), body))
	assert.Equal(t, models.PaymentPaid, f.status(t, o.ID))

	got, err := f.rec.Verify(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	assert.Equal(t, 1.0, f.paidTransitions(SourceWebhook))
	assert.Equal(t, 0.0, f.paidTransitions(SourceVerify))
	assert.Equal(t, []string{models.EventOrderPaid}, f.notes.events)
}

func TestDuplicateWebhooksApplyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	body := webhookBody(t, EventChargeSuccess, "ref-1", "NR1", 30000)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.rec.HandleWebhook(ctx, sign(body), body))
		}()
	}
	wg.Wait()

	assert.Equal(t, models.PaymentPaid, f.status(t, o.ID))
	assert.Equal(t, 1.0, f.paidTransitions(SourceWebhook))
}

func TestDuplicateWebhooksShortCircuitOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newFixture(t, NewRedisEventLog(client, time.Hour))
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	body := webhookBody(t, EventChargeSuccess, "ref-1", "NR1", 30000)

	require.NoError(t, f.rec.HandleWebhook(ctx, sign(body), body))
	require.NoError(t, f.rec.HandleWebhook(ctx, sign(body), body))

	assert.Equal(t, models.PaymentPaid, f.status(t, o.ID))
	assert.True(t, mr.Exists("payment:webhook:charge.success:ref-1"))
	assert.Equal(t, 1.0, f.paidTransitions(SourceWebhook))
}

func TestFailureWebhookNeverDowngradesPaid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")

	success := webhookBody(t, EventChargeSuccess, "ref-1", "NR1", 30000)
	require.NoError(t, f.rec.HandleWebhook(ctx, sign(success), success))

	failed := webhookBody(t, EventChargeFailed, "ref-1", "NR1", 30000)
	require.NoError(t, f.rec.HandleWebhook(ctx, sign(failed), failed))

	assert.Equal(t, models.PaymentPaid, f.status(t, o.ID))

	f.gateway.set(Transaction{Reference: "ref-1", Status: TxFailed, OrderNumber: "NR1"})
	got, err := f.rec.Verify(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	f.order(t, "NR1", "300.00")
	body := webhookBody(t, EventChargeSuccess, "ref-1", "NR1", 30000)

	for _, sig := range []string{"", "deadbeef", sign([]byte("other body"))} {
		err := f.rec.HandleWebhook(context.Background(), sig, body)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized), "signature %q", sig)
	}
}

func TestWebhookIgnoresUnknownOrdersAndMismatches(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")

	unknown := webhookBody(t, EventChargeSuccess, "ref-x", "NR404", 30000)
	assert.NoError(t, f.rec.HandleWebhook(ctx, sign(unknown), unknown))

	short := webhookBody(t, EventChargeSuccess, "ref-1", "NR1", 100)
	assert.NoError(t, f.rec.HandleWebhook(ctx, sign(short), short))
	assert.Equal(t, models.PaymentPending, f.status(t, o.ID))

	other, err := json.Marshal(map[string]any{"event": "transfer.success", "data": map[string]any{}})
	require.NoError(t, err)
	assert.NoError(t, f.rec.HandleWebhook(ctx, sign(other), other))
}

func TestOverrideTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []string
		to      string
		wantErr string
		want    string
	}{
		{"pending to paid", nil, models.PaymentPaid, "", models.PaymentPaid},
		{"pending to failed", nil, models.PaymentFailed, "", models.PaymentFailed},
		{"failed to paid", []string{models.PaymentFailed}, models.PaymentPaid, "", models.PaymentPaid},
		{"paid to refunded", []string{models.PaymentPaid}, models.PaymentRefunded, "", models.PaymentRefunded},
		{"same state", []string{models.PaymentPaid}, models.PaymentPaid, "", models.PaymentPaid},
		{"paid to failed", []string{models.PaymentPaid}, models.PaymentFailed, apperr.CodeInvalidTransition, models.PaymentPaid},
		{"paid to pending", []string{models.PaymentPaid}, models.PaymentPending, apperr.CodeInvalidTransition, models.PaymentPaid},
		{"failed to pending", []string{models.PaymentFailed}, models.PaymentPending, apperr.CodeInvalidTransition, models.PaymentFailed},
		{"pending to refunded", nil, models.PaymentRefunded, apperr.CodeInvalidTransition, models.PaymentPending},
		{"refunded to paid", []string{models.PaymentPaid, models.PaymentRefunded}, models.PaymentPaid, apperr.CodeInvalidTransition, models.PaymentRefunded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			o := f.order(t, "NR1", "300.00")
			for _, step := range tt.path {
				_, err := f.store.TransitionPayment(ctx, store.PaymentTransition{
					OrderID: o.ID, To: step, From: models.PaymentPredecessors(step),
				})
				require.NoError(t, err)
			}

			_, err := f.rec.Override(ctx, o.ID, tt.to)
			if tt.wantErr != "" {
				assert.True(t, apperr.IsCode(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, f.status(t, o.ID))
		})
	}
}

func TestOverrideUnknownOrderAndStatus(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.rec.Override(context.Background(), 99, models.PaymentPaid)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.rec.Override(context.Background(), 99, "settled")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestReconcilePendingSettlesLostWebhooks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	paidLater := f.order(t, "NR1", "300.00")
	stillOpen := f.order(t, "NR2", "50.00")

	for _, a := range []models.PaymentAttempt{
		{OrderID: paidLater.ID, Reference: "ref-1", AmountMinor: 30000, Status: models.AttemptInitialized},
		{OrderID: stillOpen.ID, Reference: "ref-2", AmountMinor: 5000, Status: models.AttemptInitialized},
	} {
		require.NoError(t, f.store.CreatePaymentAttempt(ctx, &a))
	}
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 30000})
	f.gateway.set(Transaction{Reference: "ref-2", Status: TxAbandoned})

	settled, err := f.rec.ReconcilePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, models.PaymentPaid, f.status(t, paidLater.ID))
	assert.Equal(t, models.PaymentPending, f.status(t, stillOpen.ID))
	assert.Equal(t, 1.0, f.paidTransitions(SourceSweeper))

	// Both attempts are resolved, so a second pass has nothing to do.
	before := f.gateway.verifies
	settled, err = f.rec.ReconcilePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Equal(t, before, f.gateway.verifies)
}

func TestReconcilePendingRetiresMismatchedAttempts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "NR1", "300.00")
	require.NoError(t, f.store.CreatePaymentAttempt(ctx, &models.PaymentAttempt{
		OrderID: o.ID, Reference: "ref-1", AmountMinor: 30000, Status: models.AttemptInitialized,
	}))
	f.gateway.set(Transaction{Reference: "ref-1", Status: TxSuccess, AmountMinor: 25000, Currency: "NGN"})

	settled, err := f.rec.ReconcilePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Equal(t, models.PaymentPending, f.status(t, o.ID))

	attempt, err := f.store.PaymentAttempt(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptMismatch, attempt.Status)

	before := f.gateway.verifies
	_, err = f.rec.ReconcilePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, before, f.gateway.verifies, "mismatched attempts are not re-verified")
}

func TestReconcilePendingRotatesStuckAttempts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Two attempts the gateway keeps reporting as in progress fill the batch.
	for i, ref := range []string{"stuck-1", "stuck-2"} {
		o := f.order(t, fmt.Sprintf("NR%d", i+1), "100.00")
		require.NoError(t, f.store.CreatePaymentAttempt(ctx, &models.PaymentAttempt{
			OrderID: o.ID, Reference: ref, AmountMinor: 10000, Status: models.AttemptInitialized,
		}))
		f.gateway.set(Transaction{Reference: ref, Status: "ongoing"})
	}
	good := f.order(t, "NR3", "300.00")
	require.NoError(t, f.store.CreatePaymentAttempt(ctx, &models.PaymentAttempt{
		OrderID: good.ID, Reference: "ref-good", AmountMinor: 30000, Status: models.AttemptInitialized,
	}))
	f.gateway.set(Transaction{Reference: "ref-good", Status: TxSuccess, AmountMinor: 30000})

	settled, err := f.rec.ReconcilePending(ctx, time.Now().Add(time.Minute), 2)
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Equal(t, models.PaymentPending, f.status(t, good.ID))

	settled, err = f.rec.ReconcilePending(ctx, time.Now().Add(time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, models.PaymentPaid, f.status(t, good.ID))
	assert.Equal(t, 4, f.gateway.verifies)

	attempt, err := f.store.PaymentAttempt(ctx, "stuck-1")
	require.NoError(t, err)
	assert.NotNil(t, attempt.CheckedAt)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	s := NewSweeper(f.rec, 10*time.Millisecond, 0, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMinorUnitConversion(t *testing.T) {
	assert.Equal(t, int64(30000), ToMinor(decimal.RequireFromString("300.00")))
	assert.Equal(t, int64(12345), ToMinor(decimal.RequireFromString("123.45")))
	assert.True(t, decimal.RequireFromString("0.01").Equal(FromMinor(1)))
}
