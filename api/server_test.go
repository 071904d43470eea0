package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/api"
	"github.com/Kushagra2569/transaction-service/auth"
	"github.com/Kushagra2569/transaction-service/auth/redisession"
	"github.com/Kushagra2569/transaction-service/idempotency"
	"github.com/Kushagra2569/transaction-service/observability"
	"github.com/Kushagra2569/transaction-service/store/memory"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	ledger *ledger.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := prometheus.NewRegistry()
	factory := observability.NewPrometheusFactory(reg)

	l := ledger.New(memory.New(),
		ledger.WithLogger(logger),
		ledger.WithPlugin(observability.NewMetricsExtension(factory)),
	)
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop() })

	authSvc, err := auth.NewService(l, redisession.New(rdb), []byte("secret"),
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithLogger(logger),
	)
	require.NoError(t, err)

	idem := idempotency.New(
		idempotency.NewRedisStore(rdb),
		idempotency.NewRedisLocker(rdb, 0),
		idempotency.WithScope(api.Identity),
		idempotency.WithLogger(logger),
	)

	s := api.New(l, authSvc,
		api.WithLogger(logger),
		api.WithIdempotency(idem),
		api.WithMetrics(factory),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &harness{t: t, srv: srv, ledger: l}
}

type call struct {
	method string
	path   string
	token  string
	body   any
	header map[string]string
}

func (h *harness) do(c call) (*http.Response, map[string]any) {
	h.t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(h.t, json.NewEncoder(&body).Encode(c.body))
	}
	req, err := http.NewRequest(c.method, h.srv.URL+c.path, &body)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (h *harness) register(email, balance string) {
	h.t.Helper()
	resp, _ := h.do(call{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": email, "fullname": "User " + email, "password": "password123", "balance": balance,
	}})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)
}

func (h *harness) login(email string) string {
	h.t.Helper()
	resp, body := h.do(call{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": email, "password": "password123",
	}})
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	return body["token"].(string)
}

func (h *harness) balance(token string) string {
	h.t.Helper()
	resp, body := h.do(call{method: http.MethodGet, path: "/balance", token: token})
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	return body["balance"].(string)
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(call{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": alice, "fullname": "Alice", "password": "password123", "balance": "100.00",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, alice, body["email"])
	assert.Equal(t, "Alice", body["fullname"])
	assert.Equal(t, "100.00", body["balance"])
	assert.NotEmpty(t, resp.Header.Get(api.HeaderRequestID))

	resp, body = h.do(call{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": alice, "fullname": "Alice", "password": "password123",
	}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email is already taken", body["error"])

	resp, _ = h.do(call{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": alice, "password": "wrong-password",
	}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := h.login(alice)
	assert.Equal(t, "100.00", h.balance(token))
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"bad email", map[string]string{"email": "nope", "fullname": "A", "password": "password123"}, "email"},
		{"short password", map[string]string{"email": alice, "fullname": "A", "password": "short"}, "password"},
		{"missing name", map[string]string{"email": alice, "password": "password123"}, "fullname"},
		{"three decimals", map[string]string{"email": alice, "fullname": "A", "password": "password123", "balance": "1.005"}, "balance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(call{method: http.MethodPost, path: "/register", body: tt.body})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.field, body["field"])
		})
	}
}

func TestAuthenticationRequired(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(call{method: http.MethodGet, path: "/balance"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(call{method: http.MethodGet, path: "/balance", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.register(alice, "")
	token := h.login(alice)

	resp, _ = h.do(call{method: http.MethodPost, path: "/logout", token: token})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = h.do(call{method: http.MethodGet, path: "/balance", token: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransferScenario(t *testing.T) {
	h := newHarness(t)
	h.register(alice, "100.00")
	h.register(bob, "0")
	aliceToken := h.login(alice)
	bobToken := h.login(bob)

	resp, body := h.do(call{method: http.MethodPost, path: "/transfers", token: aliceToken, body: map[string]string{
		"to": bob, "amount": "40.00",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, alice, body["from"])
	assert.Equal(t, bob, body["to"])
	assert.Equal(t, "40.00", body["amount"])
	txnID := body["id"].(string)

	assert.Equal(t, "60.00", h.balance(aliceToken))
	assert.Equal(t, "40.00", h.balance(bobToken))

	for _, token := range []string{aliceToken, bobToken} {
		resp, body = h.do(call{method: http.MethodGet, path: "/transactions", token: token})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		txns := body["transactions"].([]any)
		require.Len(t, txns, 1)
		assert.Equal(t, txnID, txns[0].(map[string]any)["id"])
	}

	resp, _ = h.do(call{method: http.MethodGet, path: "/transactions/" + txnID, token: bobToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.register("carol@example.com", "0")
	resp, _ = h.do(call{method: http.MethodGet, path: "/transactions/" + txnID, token: h.login("carol@example.com")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, h.ledger.Reconcile(context.Background(), alice))
	require.NoError(t, h.ledger.Reconcile(context.Background(), bob))
}

func TestTransferRejections(t *testing.T) {
	h := newHarness(t)
	h.register(alice, "100.00")
	h.register(bob, "0")
	token := h.login(alice)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"insufficient funds", map[string]string{"to": bob, "amount": "100.01"}, http.StatusUnprocessableEntity},
		{"self transfer", map[string]string{"to": alice, "amount": "1.00"}, http.StatusBadRequest},
		{"zero amount", map[string]string{"to": bob, "amount": "0"}, http.StatusBadRequest},
		{"negative amount", map[string]string{"to": bob, "amount": "-5.00"}, http.StatusBadRequest},
		{"too many decimals", map[string]string{"to": bob, "amount": "1.001"}, http.StatusBadRequest},
		{"debit other account", map[string]string{"from": bob, "to": alice, "amount": "1.00"}, http.StatusForbidden},
		{"unknown recipient", map[string]string{"to": "ghost@example.com", "amount": "1.00"}, http.StatusNotFound},
		{"missing recipient", map[string]string{"amount": "1.00"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := h.do(call{method: http.MethodPost, path: "/transfers", token: token, body: tt.body})
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Equal(t, "100.00", h.balance(token))
}

func TestTransferIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	h.register(alice, "100.00")
	h.register(bob, "0")
	token := h.login(alice)

	transfer := call{
		method: http.MethodPost, path: "/transfers", token: token,
		body:   map[string]string{"to": bob, "amount": "10.00"},
		header: map[string]string{idempotency.HeaderKey: "retry-1"},
	}

	first, firstBody := h.do(transfer)
	second, secondBody := h.do(transfer)

	require.Equal(t, http.StatusCreated, first.StatusCode)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(idempotency.HeaderHit))
	assert.Equal(t, firstBody["id"], secondBody["id"])
	assert.Equal(t, "90.00", h.balance(token))
}

func TestRenameAccount(t *testing.T) {
	h := newHarness(t)
	h.register(alice, "")
	token := h.login(alice)

	resp, body := h.do(call{method: http.MethodPatch, path: "/account/name", token: token, body: map[string]string{
		"old_name": "User " + alice, "new_name": "Alice Cooper",
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alice Cooper", body["fullname"])

	resp, _ = h.do(call{method: http.MethodPatch, path: "/account/name", token: token, body: map[string]string{
		"old_name": "User " + alice, "new_name": "Alice Again",
	}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.register(alice, "1.00")
	h.register(bob, "0")
	h.do(call{method: http.MethodPost, path: "/transfers", token: h.login(alice), body: map[string]string{
		"to": bob, "amount": "1.00",
	}})

	resp, body := h.do(call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	mresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer mresp.Body.Close()

	exposition, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exposition), "ledger_transfer_completed_total 1")
	assert.Contains(t, string(exposition), "ledger_http_request_latency_ms")
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(call{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/register", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	fatal := &ledger.InconsistencyError{
		Cause:           errors.New("credit failed"),
		CompensationErr: errors.New("refund failed"),
	}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"fatal", fatal, http.StatusInternalServerError},
		{"transfer failed", fmt.Errorf("%w: %w", ledger.ErrTransferFailed, errors.New("timeout")), http.StatusServiceUnavailable},
		{"credit to vanished account", fmt.Errorf("%w: credit: %w", ledger.ErrTransferFailed, ledger.ErrUnknownAccount), http.StatusServiceUnavailable},
		{"append failure wrapping a rejection", fmt.Errorf("%w: append: %w", ledger.ErrTransferFailed, ledger.ErrInsufficientFunds), http.StatusServiceUnavailable},
		{"store closed", ledger.ErrStoreClosed, http.StatusServiceUnavailable},
		{"insufficient funds", ledger.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"unknown account", ledger.ErrUnknownAccount, http.StatusNotFound},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := api.StatusOf(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotContains(t, msg, "ledger:")
			assert.NotContains(t, msg, "credit")
			assert.NotContains(t, msg, "boom")
		})
	}
}
