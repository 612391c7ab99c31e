package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Kiosk-Signature"

// notifyRetryIntervals are the waits between delivery attempts.
var notifyRetryIntervals = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier implements ports.Notifier by POSTing each event as JSON.
// Delivery runs in the background; failures are logged and dropped.
type WebhookNotifier struct {
	url       string
	secret    string
	client    HTTPClient
	intervals []time.Duration
	log       zerolog.Logger

	wg      sync.WaitGroup
	stop    context.Context
	abandon context.CancelFunc
}

// NewWebhookNotifier creates a webhook notifier. An empty secret disables signing.
func NewWebhookNotifier(url, secret string, client HTTPClient, log zerolog.Logger) *WebhookNotifier {
	stop, abandon := context.WithCancel(context.Background())
	return &WebhookNotifier{
		url:       url,
		secret:    secret,
		client:    client,
		intervals: notifyRetryIntervals,
		log:       log,
		stop:      stop,
		abandon:   abandon,
	}
}

// Notify encodes the event and hands it to a delivery goroutine.
func (n *WebhookNotifier) Notify(ctx context.Context, event domain.LedgerEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.log.Error().Err(err).Str("kind", string(event.Kind)).Int64("entry_id", event.EntryID).Msg("notify: failed to marshal event")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	unhook := context.AfterFunc(n.stop, cancel)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer unhook()
		defer cancel()
		n.deliverWithRetries(ctx, body, event)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *WebhookNotifier) Wait() {
	n.wg.Wait()
}

// Shutdown waits for in-flight deliveries until ctx is done, then abandons
// the remaining ones and returns ctx.Err().
func (n *WebhookNotifier) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.abandon()
		<-done
		return ctx.Err()
	}
}

func (n *WebhookNotifier) deliverWithRetries(ctx context.Context, body []byte, event domain.LedgerEvent) {
	log := n.log.With().
		Str("kind", string(event.Kind)).
		Str("action", string(event.Action)).
		Int64("entry_id", event.EntryID).
		Logger()

	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, n.intervals[attempt-1]); err != nil {
				log.Warn().Err(err).Msg("notify: delivery abandoned")
				return
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			log.Error().Err(err).Msg("notify: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if n.secret != "" {
			req.Header.Set(SignatureHeader, Sign(n.secret, body))
		}

		resp, err := n.client.Do(req)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("notify: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Debug().Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("notify: delivered")
			return
		}
		log.Warn().Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("notify: non-2xx response, retrying")
	}

	log.Error().Msg("notify: all retry attempts exhausted")
}

// Sign computes the lowercase hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against payload in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

// LogNotifier implements ports.Notifier by logging each event. It is used when
// no webhook is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, event domain.LedgerEvent) {
	n.log.Info().
		Str("kind", string(event.Kind)).
		Str("action", string(event.Action)).
		Int64("entry_id", event.EntryID).
		Str("amount", event.Amount.StringFixed(domain.MoneyScale)).
		Interface("balances", event.Balances).
		Msg("ledger event")
}
