package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkhalloran/oraclepm/internal/analytics"
	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/storage"
)

func newTestServer(t *testing.T, token string) (*Server, storage.Interface) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := storage.NewMemoryStore()
	srv := NewServer(Config{Port: 0, AuthToken: token}, store, analytics.NewEngine(3.76), logger)
	return srv, store
}

func seedPosition(t *testing.T, store storage.Interface) *models.Position {
	t.Helper()
	pos := &models.Position{
		ID:          "pos-1",
		Symbol:      "MSTR",
		Strategy:    models.StrategyShortPut,
		Strike:      50,
		Expiration:  time.Now().UTC().AddDate(0, 0, 45),
		Status:      models.StatusOpen,
		Contracts:   -2,
		EntryPrice:  1.50,
		Mark:        0.90,
		TotalCredit: 300,
		EntryDate:   time.Now().UTC().AddDate(0, 0, -10),
		AccountSize: 100000,
	}
	require.NoError(t, store.CreatePosition(context.Background(), pos))
	return pos
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestListPositions(t *testing.T) {
	srv, store := newTestServer(t, "")
	seedPosition(t, store)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var views []PositionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "MSTR", views[0].Symbol)
	assert.Equal(t, "ShortPut", views[0].Strategy)
	assert.InDelta(t, 120.00, views[0].PL, 1e-9) // (1.50-0.90)*2*100
	assert.True(t, views[0].IsProfit)
}

func TestGetPositionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTrades(t *testing.T) {
	srv, store := newTestServer(t, "")
	pos := seedPosition(t, store)

	trade := &models.Trade{
		ID:         "t1",
		PositionID: pos.ID,
		TradeTime:  time.Now().UTC().Add(-time.Hour),
		Action:     models.ActionSellOpen,
		Contracts:  -2,
		Price:      1.50,
	}
	require.NoError(t, store.ApplyTrade(context.Background(), trade, 300, 0))

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/pos-1/trades", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var views []TradeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "SELL_OPEN", views[0].Action)
}

func TestSummaryEndpoint(t *testing.T) {
	srv, store := newTestServer(t, "")
	seedPosition(t, store)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Positions)
	assert.InDelta(t, 120.00, summary.TotalPL, 1e-9)
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, "sekrit")

	// No token: rejected.
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Header token: accepted.
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("X-Auth-Token", "sekrit")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
