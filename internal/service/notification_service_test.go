package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func sampleEvent() domain.LedgerEvent {
	account := int64(1)
	return domain.LedgerEvent{
		Kind:      domain.EntryCharge,
		Action:    domain.ActionCreated,
		EntryID:   5,
		AccountID: &account,
		Amount:    decimal.RequireFromString("2.50"),
		Balances:  []domain.BalanceSnapshot{{AccountID: 1, Balance: decimal.RequireFromString("7.50")}},
	}
}

func TestWebhookNotifier_SignedDelivery(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, VerifySignature("hook-secret", body, r.Header.Get(SignatureHeader)))
		got.Store(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "hook-secret", srv.Client(), newTestLogger())
	n.Notify(context.Background(), sampleEvent())
	n.Wait()

	body, ok := got.Load().([]byte)
	require.True(t, ok, "webhook was not delivered")
	assert.Contains(t, string(body), `"kind":"CHARGE"`)
	assert.Contains(t, string(body), `"amount":"2.5"`)
}

func TestWebhookNotifier_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			n := calls.Add(1)
			assert.Empty(t, req.Header.Get(SignatureHeader), "no secret, no signature")
			switch n {
			case 1:
				return nil, errors.New("connection refused")
			case 2:
				return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(bytes.NewReader(nil))}, nil
			}
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}

	n := NewWebhookNotifier("http://hooks.local/ledger", "", client, newTestLogger())
	n.intervals = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	n.Notify(context.Background(), sampleEvent())
	n.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_GivesUp(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		},
	}

	n := NewWebhookNotifier("http://hooks.local/ledger", "", client, newTestLogger())
	n.intervals = []time.Duration{time.Millisecond}
	n.Notify(context.Background(), sampleEvent())
	n.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookNotifier_CancelledContextAbandons(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := NewWebhookNotifier("http://hooks.local/ledger", "", client, newTestLogger())
	n.intervals = []time.Duration{time.Hour}
	n.Notify(ctx, sampleEvent())
	time.Sleep(20 * time.Millisecond)
	cancel()
	n.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_ShutdownAbandonsPendingRetries(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		},
	}

	n := NewWebhookNotifier("http://hooks.local/ledger", "", client, newTestLogger())
	n.intervals = []time.Duration{time.Hour}
	n.Notify(context.WithoutCancel(context.Background()), sampleEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_ShutdownWithNothingPending(t *testing.T) {
	n := NewWebhookNotifier("http://hooks.local/ledger", "", &mockHTTPClient{}, newTestLogger())
	assert.NoError(t, n.Shutdown(context.Background()))
}

func TestSign(t *testing.T) {
	payload := []byte(`{"entry_id":1}`)
	sig := Sign("secret", payload)

	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("secret", payload))
	assert.NotEqual(t, sig, Sign("other", payload))
	assert.True(t, VerifySignature("secret", payload, sig))
	assert.False(t, VerifySignature("secret", []byte(`{"entry_id":2}`), sig))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	n.Notify(context.Background(), sampleEvent())

	assert.Contains(t, buf.String(), `"kind":"CHARGE"`)
	assert.Contains(t, buf.String(), `"amount":"2.50"`)
	assert.Contains(t, buf.String(), `"ledger event"`)
}
