package stock

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*fakeRepo, http.Handler) {
	t.Helper()
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	handler := NewHandler(slog.New(slog.DiscardHandler), svc, validator.New(), nil)
	router := chi.NewRouter()
	router.Route("/stock", handler.MountRoutes)
	return repo, router
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", "1")
	req.Header.Set("X-User-ID", "9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStockIn(t *testing.T) {
	_, router := newTestHandler(t)

	rec := postJSON(t, router, "/stock/in", `{
		"store_id": 10, "warehouse_id": 20, "ingredient_id": 30,
		"quantity": "10.5", "cost_per_unit": "2.40", "batch_number": "B-1",
		"expiration_date": "2026-10-01T00:00:00Z"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Transaction map[string]any `json:"transaction"`
		Balance     map[string]any `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "in", body.Transaction["type"])
	assert.Equal(t, "10.5", body.Balance["quantity"])
}

func TestHandlerStockOutInsufficient(t *testing.T) {
	_, router := newTestHandler(t)
	postJSON(t, router, "/stock/in", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"5"}`)

	rec := postJSON(t, router, "/stock/out", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"8"}`)

	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var problem struct {
		Title string         `json:"title"`
		Extra map[string]any `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Insufficient Stock", problem.Title)
	assert.Equal(t, "5", problem.Extra["available"])
	assert.Equal(t, "8", problem.Extra["requested"])
}

func TestHandlerRequiresIdentity(t *testing.T) {
	_, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/stock/in", strings.NewReader(`{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	_, router := newTestHandler(t)

	rec := postJSON(t, router, "/stock/in", `{"store_id": 0, "warehouse_id": 20, "ingredient_id": 30, "quantity": "1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/stock/in", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/stock/write-off", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"1","reason":"out"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerStockTakeNoOp(t *testing.T) {
	_, router := newTestHandler(t)
	postJSON(t, router, "/stock/in", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"10","batch_number":"B-1"}`)

	rec := postJSON(t, router, "/stock/take", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"physical_count":"10","batch_number":"B-1"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Adjusted bool `json:"adjusted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Adjusted)
}

func TestHandlerHistory(t *testing.T) {
	_, router := newTestHandler(t)
	postJSON(t, router, "/stock/in", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"10"}`)
	postJSON(t, router, "/stock/out", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"4"}`)

	req := httptest.NewRequest(http.MethodGet, "/stock/history?ingredient_id=30&page=1&limit=10", nil)
	req.Header.Set("X-Owner-ID", "1")
	req.Header.Set("X-User-ID", "9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Transactions []map[string]any `json:"transactions"`
		Pagination   map[string]any   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transactions, 2)
	assert.Equal(t, "out", body.Transactions[0]["type"])
	assert.Equal(t, float64(2), body.Pagination["total"])
}

func TestHandlerBalanceHiddenFromOtherOwner(t *testing.T) {
	_, router := newTestHandler(t)
	postJSON(t, router, "/stock/in", `{"store_id":10,"warehouse_id":20,"ingredient_id":30,"quantity":"5"}`)

	get := func(owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/stock/balances/1", nil)
		req.Header.Set("X-Owner-ID", owner)
		req.Header.Set("X-User-ID", "9")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, get("1").Code)
	assert.Equal(t, http.StatusNotFound, get("2").Code)
}

func TestHandlerGetBalanceNotFound(t *testing.T) {
	_, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stock/balances/99", nil)
	req.Header.Set("X-Owner-ID", "1")
	req.Header.Set("X-User-ID", "9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
