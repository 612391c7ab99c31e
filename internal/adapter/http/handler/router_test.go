package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"kiosk-ledger/internal/adapter/http/handler"
	"kiosk-ledger/internal/adapter/http/middleware"
	"kiosk-ledger/internal/adapter/storage/memory"
	redisStorage "kiosk-ledger/internal/adapter/storage/redis"
	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the real router, services and memory store, with Redis served by miniredis.
type testApp struct {
	server *httptest.Server
	store  *memory.Store
	redis  *miniredis.Miniredis
}

func newTestApp(t *testing.T, throttle middleware.ThrottleRule) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := memory.NewStore()
	repos := service.Repositories{
		Accounts:  memory.NewAccountRepo(store),
		Products:  memory.NewProductRepo(store),
		Purchases: memory.NewPurchaseRepo(store),
		Charges:   memory.NewChargeRepo(store),
		Transfers: memory.NewTransferRepo(store),
		Tokens:    memory.NewTokenRepo(),
	}

	log := zerolog.Nop()
	clock := service.SystemClock()
	rules := domain.DefaultLedgerPolicy()
	unknown := redisStorage.NewUnknownIdentifierLog(rdb, 10, time.Hour)

	policy := service.NewRetryPolicy(store, service.RetryConfig{Attempts: 5, BaseDelay: time.Millisecond, TxTimeout: 5 * time.Second}, log)
	guard := service.NewIdempotencyGuard(policy, repos.Tokens, redisStorage.NewIdempotencyCache(rdb), time.Hour, log)
	resolver := service.NewIdentifierResolver(repos.Accounts, repos.Products, unknown, clock, log)
	ledger := service.NewLedgerService(repos, policy, guard, resolver, service.NewLogNotifier(log), clock, rules, log)
	reporting := service.NewReportingService(repos, rules, service.ReportLimits{Purchases: 100, Charges: 10, Transfers: 10}, clock)

	router := handler.SetupRouter(handler.RouterDeps{
		LedgerSvc:      ledger,
		ReportingSvc:   reporting,
		UnknownLog:     unknown,
		Throttle:       redisStorage.NewThrottle(rdb),
		ThrottleRule:   throttle,
		HealthCheckers: []ports.HealthChecker{memory.HealthCheck{}, redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{server: srv, store: store, redis: mr}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderTerminalID, "kiosk-test")

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "body: %v", body)
	return d
}

func noThrottle() middleware.ThrottleRule { return middleware.ThrottleRule{} }

func TestAPI_Health(t *testing.T) {
	app := newTestApp(t, noThrottle())

	status, body := app.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, _ = app.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_PurchaseReplayAndAnnul(t *testing.T) {
	app := newTestApp(t, noThrottle())
	acc, err := app.store.CreateAccount("Ada", decimal.RequireFromString("10.00"),
		domain.AccountIdentifier{Type: domain.AccountIdentBarcode, Value: "A-1"})
	require.NoError(t, err)
	_, err = app.store.CreateProduct("Mate", decimal.RequireFromString("6.00"), 3,
		domain.ProductIdentifier{Type: domain.ProductIdentBarcode, Value: "400"})
	require.NoError(t, err)

	status, body := app.do(t, http.MethodPost, "/api/v1/tokens", nil)
	require.Equal(t, http.StatusCreated, status)
	token := data(t, body)["token"]

	purchase := map[string]interface{}{"account_id": acc.ID, "product_type": "BARCODE", "product": "400", "token": token}
	status, body = app.do(t, http.MethodPost, "/api/v1/purchases", purchase)
	require.Equal(t, http.StatusCreated, status)
	purchaseID := data(t, body)["purchase_id"]

	// Replay with the same token returns the same purchase and does not debit again.
	status, body = app.do(t, http.MethodPost, "/api/v1/purchases", purchase)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, purchaseID, data(t, body)["purchase_id"])

	status, body = app.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", acc.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4.00", data(t, body)["balance"])

	// A second purchase with a new token exceeds the balance.
	status, body = app.do(t, http.MethodPost, "/api/v1/purchases",
		map[string]interface{}{"account_id": acc.ID, "product_type": "BARCODE", "product": "400"})
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["kind"])

	status, _ = app.do(t, http.MethodPost, fmt.Sprintf("/api/v1/purchases/%v/annul", purchaseID), nil)
	require.Equal(t, http.StatusOK, status)

	status, body = app.do(t, http.MethodPost, fmt.Sprintf("/api/v1/purchases/%v/annul", purchaseID), nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "LED_005", body["error_code"])

	status, body = app.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d/history", acc.ID), nil)
	require.Equal(t, http.StatusOK, status)
	history := data(t, body)
	assert.Equal(t, "10.00", history["balance"])
	purchases := history["purchases"].([]interface{})
	require.Len(t, purchases, 1)
	assert.Equal(t, true, purchases[0].(map[string]interface{})["annulled"])
}

func TestAPI_TokenOfAnotherAccountRejected(t *testing.T) {
	app := newTestApp(t, noThrottle())
	ada, err := app.store.CreateAccount("Ada", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	bob, err := app.store.CreateAccount("Bob", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	_, err = app.store.CreateProduct("Mate", decimal.RequireFromString("6.00"), 3,
		domain.ProductIdentifier{Type: domain.ProductIdentBarcode, Value: "400"})
	require.NoError(t, err)

	status, body := app.do(t, http.MethodPost, "/api/v1/tokens", nil)
	require.Equal(t, http.StatusCreated, status)
	token := data(t, body)["token"]

	status, _ = app.do(t, http.MethodPost, "/api/v1/purchases",
		map[string]interface{}{"account_id": ada.ID, "product_type": "BARCODE", "product": "400", "token": token})
	require.Equal(t, http.StatusCreated, status)

	status, body = app.do(t, http.MethodPost, "/api/v1/purchases",
		map[string]interface{}{"account_id": bob.ID, "product_type": "BARCODE", "product": "400", "token": token})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "REQ_002", body["error_code"])

	status, body = app.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", bob.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "10.00", data(t, body)["balance"])
}

func TestAPI_ChargeTransferAndResolve(t *testing.T) {
	app := newTestApp(t, noThrottle())
	alice, err := app.store.CreateAccount("Alice", decimal.Zero)
	require.NoError(t, err)
	bob, err := app.store.CreateAccount("Bob", decimal.Zero,
		domain.AccountIdentifier{Type: domain.AccountIdentRFID, Value: "04:A2"})
	require.NoError(t, err)

	status, _ := app.do(t, http.MethodPost, "/api/v1/charges",
		map[string]interface{}{"account_id": alice.ID, "amount": "20.00", "comment": "cash"})
	require.Equal(t, http.StatusCreated, status)

	status, body := app.do(t, http.MethodPost, "/api/v1/transfers",
		map[string]interface{}{"sender_id": alice.ID, "receiver_type": "RFID", "receiver": "04:A2", "amount": "7.25"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(bob.ID), data(t, body)["receiver_id"])

	status, body = app.do(t, http.MethodGet, "/api/v1/accounts/resolve?type=RFID&value=04:A2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "7.25", data(t, body)["balance"])

	status, _ = app.do(t, http.MethodPost, "/api/v1/transfers",
		map[string]interface{}{"sender_id": alice.ID, "receiver_type": "PK", "receiver": fmt.Sprint(alice.ID), "amount": "1.00"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = app.do(t, http.MethodPost, "/api/v1/charges",
		map[string]interface{}{"account_id": alice.ID, "amount": "0.00"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_UnknownIdentifierRecorded(t *testing.T) {
	app := newTestApp(t, noThrottle())

	status, _ := app.do(t, http.MethodGet, "/api/v1/accounts/resolve?type=BARCODE&value=nobody", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, body := app.do(t, http.MethodGet, "/api/v1/diagnostics/unknown-identifiers", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "nobody", items[0].(map[string]interface{})["value"])
}

func TestAPI_ConcurrentPurchasesNeverOverdraw(t *testing.T) {
	app := newTestApp(t, noThrottle())
	acc, err := app.store.CreateAccount("Eve", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	product, err := app.store.CreateProduct("Bar", decimal.RequireFromString("3.00"), 100)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := app.do(t, http.MethodPost, "/api/v1/purchases",
				map[string]interface{}{"account_id": acc.ID, "product_type": "PK", "product": fmt.Sprint(product.ID)})
			if status == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	_, body := app.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", acc.ID), nil)
	assert.Equal(t, "1.00", data(t, body)["balance"])
}

func TestAPI_Throttled(t *testing.T) {
	app := newTestApp(t, middleware.ThrottleRule{Limit: 2, Window: time.Hour})

	for i := 0; i < 2; i++ {
		status, _ := app.do(t, http.MethodPost, "/api/v1/tokens", nil)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := app.do(t, http.MethodPost, "/api/v1/tokens", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_001", body["error_code"])
}
