package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/auth"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := log.New(log.Config{Output: &bytes.Buffer{}})
	ledger := services.NewLedgerService(store, nil, cache.NewLRUCache[core.MonthSummary](16, time.Minute))
	authSvc := auth.NewService(store, auth.NewTokenService(testSecret, time.Hour), logger)

	srv := NewServer(":0", Deps{Ledger: ledger, Auth: authSvc, Logger: logger})
	return &apiClient{t: t, handler: srv.Handler}
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(c.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

// expect performs a request, asserts its status and decodes the body.
func (c *apiClient) expect(status int, method, path string, body any) map[string]any {
	c.t.Helper()
	rec := c.do(method, path, body)
	require.Equal(c.t, status, rec.Code, "%s %s: %s", method, path, rec.Body.String())
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return out
}

func (c *apiClient) login() {
	c.t.Helper()
	c.expect(http.StatusCreated, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"login": "alice", "email": "alice@example.com", "password": "correct horse",
	})
	out := c.expect(http.StatusOK, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"login": "alice", "password": "correct horse",
	})
	c.token = out["token"].(string)
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	out := api.expect(http.StatusOK, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "ok", out["status"])
	assert.Contains(t, out, "requests")

	out = api.expect(http.StatusOK, http.MethodGet, "/readyz", nil)
	assert.Equal(t, "ready", out["status"])
}

func TestResponsesCarrySecurityHeadersAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))
}

func TestAPIRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)

	out := api.expect(http.StatusUnauthorized, http.MethodGet, "/api/v1/budgets", nil)
	assert.Equal(t, "unauthorized", out["kind"])

	api.token = "not-a-token"
	api.expect(http.StatusUnauthorized, http.MethodGet, "/api/v1/budgets", nil)
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)
	api.login()

	out := api.expect(http.StatusConflict, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"login": "alice", "email": "other@example.com", "password": "correct horse",
	})
	assert.Equal(t, string(core.KindConstraintViolation), out["kind"])

	out = api.expect(http.StatusUnauthorized, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"login": "alice", "password": "wrong password",
	})
	assert.Equal(t, "unauthorized", out["kind"])

	api.expect(http.StatusUnprocessableEntity, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"login": "bob", "email": "not-an-email", "password": "correct horse",
	})
}

func TestBudgetFlow(t *testing.T) {
	api := newTestAPI(t)
	api.login()

	budget := api.expect(http.StatusCreated, http.MethodPost, "/api/v1/budgets", map[string]string{"name": "Home"})
	base := "/api/v1/budgets/" + budget["id"].(string)

	account := api.expect(http.StatusCreated, http.MethodPost, base+"/accounts", map[string]string{"name": "Checking"})
	group := api.expect(http.StatusCreated, http.MethodPost, base+"/category-groups", map[string]string{"name": "Everyday Expenses"})
	name := api.expect(http.StatusCreated, http.MethodPost, base+"/category-names", map[string]string{"name": "Groceries"})

	api.expect(http.StatusCreated, http.MethodPost, base+"/transactions", map[string]any{
		"date": "2025-07-01", "account_id": account["id"], "amount": "1000.00", "payee": "Employer",
	})

	category := api.expect(http.StatusCreated, http.MethodPost, base+"/categories", map[string]any{
		"category_name_id": name["id"], "category_group_id": group["id"], "month": "2025-07",
	})
	again := api.expect(http.StatusOK, http.MethodPost, base+"/categories", map[string]any{
		"category_name_id": name["id"], "category_group_id": group["id"], "month": "2025-07",
	})
	assert.Equal(t, category["id"], again["id"])

	assigned := api.expect(http.StatusOK, http.MethodPut, "/api/v1/categories/"+category["id"].(string)+"/budgeted",
		map[string]any{"budgeted": "200.00"})
	assert.Equal(t, "200.00", assigned["balance"])

	spend := api.expect(http.StatusCreated, http.MethodPost, base+"/transactions", map[string]any{
		"date": "2025-07-15", "account_id": account["id"], "amount": -45.5, "payee": "Grocer",
		"category_name_id": name["id"], "category_group_id": group["id"],
	})
	assert.Equal(t, "-45.50", spend["amount"])
	assert.Equal(t, category["id"], spend["category_id"])

	july := api.expect(http.StatusOK, http.MethodGet, base+"/months/2025-07", nil)
	assert.Equal(t, "800.00", july["to_be_budgeted"])
	assert.Equal(t, "-45.50", july["activity"])
	lines := july["categories"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "154.50", lines[0].(map[string]any)["balance"])

	accounts := api.expect(http.StatusOK, http.MethodGet, base+"/accounts", nil)
	assert.Equal(t, "954.50", accounts["items"].([]any)[0].(map[string]any)["balance"])

	txnPath := "/api/v1/transactions/" + spend["id"].(string)
	updated := api.expect(http.StatusOK, http.MethodPatch, txnPath, map[string]any{"amount": "-50.00"})
	assert.Equal(t, "-50.00", updated["amount"])

	list := api.expect(http.StatusOK, http.MethodGet, base+"/transactions?from=2025-07-10&to=2025-07-31", nil)
	assert.EqualValues(t, 1, list["count"])

	api.expect(http.StatusNoContent, http.MethodDelete, txnPath, nil)
	api.expect(http.StatusNotFound, http.MethodGet, txnPath, nil)

	july = api.expect(http.StatusOK, http.MethodGet, base+"/months/2025-07", nil)
	assert.Equal(t, "200.00", july["categories"].([]any)[0].(map[string]any)["balance"])

	// An empty future month carries to_be_budgeted and creates nothing.
	sept := api.expect(http.StatusOK, http.MethodGet, base+"/months/2025-09", nil)
	assert.Equal(t, "800.00", sept["to_be_budgeted"])
	assert.Empty(t, sept["categories"])

	api.expect(http.StatusAccepted, http.MethodPost, base+"/recompute", nil)
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	api.login()

	budget := api.expect(http.StatusCreated, http.MethodPost, "/api/v1/budgets", map[string]string{"name": "Home"})
	base := "/api/v1/budgets/" + budget["id"].(string)
	account := api.expect(http.StatusCreated, http.MethodPost, base+"/accounts", map[string]string{"name": "Checking"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"sub-cent amount", http.MethodPost, base + "/transactions",
			map[string]any{"date": "2025-07-01", "account_id": account["id"], "amount": "1.005", "payee": "X"},
			http.StatusUnprocessableEntity},
		{"amount beyond range", http.MethodPost, base + "/transactions",
			map[string]any{"date": "2025-07-01", "account_id": account["id"], "amount": "-92233720368547758.00", "payee": "X"},
			http.StatusUnprocessableEntity},
		{"amount just past bound", http.MethodPost, base + "/transactions",
			map[string]any{"date": "2025-07-01", "account_id": account["id"], "amount": "100000000000.01", "payee": "X"},
			http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, base + "/transactions",
			map[string]any{"date": "2025-13-01", "account_id": account["id"], "amount": "1.00", "payee": "X"},
			http.StatusUnprocessableEntity},
		{"blank payee", http.MethodPost, base + "/transactions",
			map[string]any{"date": "2025-07-01", "account_id": account["id"], "amount": "1.00", "payee": "   "},
			http.StatusUnprocessableEntity},
		{"category without group", http.MethodPost, base + "/transactions",
			map[string]any{"date": "2025-07-01", "account_id": account["id"], "amount": "1.00", "payee": "X", "category_name_id": "abc"},
			http.StatusUnprocessableEntity},
		{"unknown field", http.MethodPost, "/api/v1/budgets", `{"name":"B","owner":"x"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/budgets", `{"name":`, http.StatusBadRequest},
		{"bad month", http.MethodGet, base + "/months/2025-13", nil, http.StatusUnprocessableEntity},
		{"unknown budget", http.MethodGet, "/api/v1/budgets/missing/months/2025-07", nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, base + "/transactions?limit=0", nil, http.StatusUnprocessableEntity},
		{"inverted range", http.MethodGet, base + "/transactions?from=2025-07-10&to=2025-07-01", nil, http.StatusUnprocessableEntity},
		{"duplicate account", http.MethodPost, base + "/accounts", map[string]string{"name": "checking"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	out := api.expect(http.StatusNotFound, http.MethodGet, "/nope", nil)
	assert.Equal(t, "not_found", out["kind"])
}
