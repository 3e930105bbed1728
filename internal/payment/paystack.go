package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
)

type PaystackConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Paystack is a Gateway backed by the Paystack REST API. Calls go through a
// circuit breaker that opens after consecutive transport or 5xx failures.
type Paystack struct {
	baseURL   string
	secretKey string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
}

var _ Gateway = (*Paystack)(nil)

// rejectedError is a 4xx answer: the gateway is healthy but refused the call.
type rejectedError struct {
	status  int
	message string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("paystack rejected request (%d): %s", e.status, e.message)
}

func NewPaystack(cfg PaystackConfig, log *slog.Logger) *Paystack {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "paystack",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var rej *rejectedError
			return err == nil || errors.As(err, &rej)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Paystack{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		breaker:   gobreaker.NewCircuitBreaker[[]byte](st),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	raw, err := p.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+p.secretKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("paystack returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			var env envelope
			_ = json.Unmarshal(data, &env)
			return nil, &rejectedError{status: resp.StatusCode, message: env.Message}
		}
		return data, nil
	})
	if err != nil {
		var rej *rejectedError
		switch {
		case errors.As(err, &rej) && (rej.status == http.StatusNotFound || rej.status == http.StatusBadRequest) && method == http.MethodGet:
			return nil, apperr.NotFound("Transaction not found")
		case errors.As(err, &rej):
			return nil, apperr.External("Payment gateway rejected the request", err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, apperr.External("Payment gateway temporarily unavailable", err)
		default:
			return nil, apperr.External("Payment gateway request failed", err)
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.External("Payment gateway returned an unreadable response", err)
	}
	if !env.Status {
		return nil, apperr.External("Payment gateway error: "+env.Message, nil)
	}
	return env.Data, nil
}

func (p *Paystack) Initialize(ctx context.Context, r InitializeRequest) (InitializeResponse, error) {
	body := map[string]any{
		"email":        r.Email,
		"amount":       r.AmountMinor,
		"currency":     r.Currency,
		"reference":    r.Reference,
		"callback_url": r.CallbackURL,
		"metadata":     r.Metadata,
	}
	data, err := p.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return InitializeResponse{}, err
	}
	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return InitializeResponse{}, apperr.External("Payment gateway returned an unreadable response", err)
	}
	return InitializeResponse{AuthorizationURL: out.AuthorizationURL, AccessCode: out.AccessCode, Reference: out.Reference}, nil
}

// chargeData is the transaction object shared by verify responses and webhooks.
type chargeData struct {
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"gateway_response"`
	PaidAt          *time.Time      `json:"paid_at"`
	Metadata        json.RawMessage `json:"metadata"`
}

// orderNumber reads metadata.orderNumber. Paystack echoes metadata either as
// an object or as a JSON-encoded string, and sends "" when none was given.
func (c chargeData) orderNumber() string {
	var meta struct {
		OrderNumber string `json:"orderNumber"`
	}
	raw := c.Metadata
	var encoded string
	if json.Unmarshal(raw, &encoded) == nil {
		raw = json.RawMessage(encoded)
	}
	if json.Unmarshal(raw, &meta) != nil {
		return ""
	}
	return meta.OrderNumber
}

func (c chargeData) transaction() Transaction {
	return Transaction{
		Reference:       c.Reference,
		Status:          c.Status,
		AmountMinor:     c.Amount,
		Currency:        c.Currency,
		OrderNumber:     c.orderNumber(),
		GatewayResponse: c.GatewayResponse,
		PaidAt:          c.PaidAt,
	}
}

func (p *Paystack) Verify(ctx context.Context, reference string) (Transaction, error) {
	data, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return Transaction{}, err
	}
	var c chargeData
	if err := json.Unmarshal(data, &c); err != nil {
		return Transaction{}, apperr.External("Payment gateway returned an unreadable response", err)
	}
	return c.transaction(), nil
}
