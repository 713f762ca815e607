package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/cache"
	"github.com/irfndi/tradeloop/internal/database"
	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/middleware"
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/services"
	"github.com/irfndi/tradeloop/internal/services/ensemble"
	"github.com/irfndi/tradeloop/internal/strategy"
)

type fixedCycle struct {
	result services.CycleResult
	ok     bool
}

func (f fixedCycle) LastResult() (services.CycleResult, bool) { return f.result, f.ok }

type fixedStats cache.Stats

func (f fixedStats) Stats() cache.Stats { return cache.Stats(f) }

type testEnv struct {
	router *gin.Engine
	store  *database.TradeHistoryStore
}

func setupRouter(t *testing.T, mutate func(*Dependencies)) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := database.NewSQLiteConnection(ctx, filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)
	store := database.NewTradeHistoryStore(db, db.Dialect(), nil, recorder)
	require.NoError(t, store.EnsureSchema(ctx))

	optimizer, err := ensemble.NewOptimizer(ctx, nil, ensemble.NewFileStore(filepath.Join(t.TempDir(), "weights.json")), nil, recorder)
	require.NoError(t, err)
	feedback := services.NewOutcomeFeedback(optimizer, nil, services.OutcomeFeedbackConfig{MinTrades: 1, OptimizeInterval: 1}, nil)
	store.OnTradeClosed(feedback.OnTradeClosed)

	deps := Dependencies{
		DB:          db,
		Performance: store,
		Trades:      store,
		Feedback:    feedback,
		Ensemble:    optimizer,
		Catalog:     strategy.DefaultCatalog(),
		Rules:       strategy.DefaultPositionRules(),
		Loop:        fixedCycle{},
		Cache:       fixedStats{Hits: 3, Misses: 1},
		Gatherer:    reg,
		RateLimit:   middleware.DefaultRateLimitConfig(),
		Logger:      zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	router := gin.New()
	SetupRoutes(router, deps)
	return testEnv{router: router, store: store}
}

func (e testEnv) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return e.do(t, http.MethodGet, path, "")
}

func (e testEnv) post(t *testing.T, path, payload string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return e.do(t, http.MethodPost, path, payload)
}

func (e testEnv) do(t *testing.T, method, path, payload string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestSetupRoutes_Health(t *testing.T) {
	env := setupRouter(t, nil)

	w, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	checks := body["services"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "not configured", checks["redis"])

	w, body = env.get(t, "/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestSetupRoutes_Performance(t *testing.T) {
	env := setupRouter(t, nil)
	ctx := context.Background()

	w, body := env.get(t, "/api/v1/performance")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "error", body["status"])

	id, err := env.store.RecordEntry(ctx, database.EntryRequest{
		Symbol: "BTC/USDT", Strategy: models.StrategyMomentum, EntryPrice: 100, Quantity: 1,
	})
	require.NoError(t, err)
	_, err = env.store.RecordEntry(ctx, database.EntryRequest{
		Symbol: "ETH/USDT", Strategy: models.StrategyScalping, EntryPrice: 10, Quantity: 2,
	})
	require.NoError(t, err)
	_, err = env.store.RecordExit(ctx, id, 110, "take_profit")
	require.NoError(t, err)

	w, body = env.get(t, "/api/v1/performance?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["total_trades"])
	assert.EqualValues(t, 1, data["wins"])

	w, body = env.get(t, "/api/v1/trades/open/count")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["open_trades"])

	w, _ = env.get(t, "/api/v1/performance?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetupRoutes_TradeLifecycleUpdatesWeights(t *testing.T) {
	env := setupRouter(t, nil)

	w, body := env.post(t, "/api/v1/trades", `{
		"symbol": "BTC/USDT",
		"strategy": "momentum",
		"entry_price": 100,
		"quantity": 2,
		"predictions": {"advisory": "BUY", "macro": "SELL"}
	}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(body["data"].(map[string]any)["id"].(float64))

	w, body = env.get(t, "/api/v1/trades/open/count")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["open_trades"])

	w, body = env.post(t, fmt.Sprintf("/api/v1/trades/%d/exit", id), `{"exit_price": 110, "reason": "take_profit"}`)
	require.Equal(t, http.StatusOK, w.Code)
	trade := body["data"].(map[string]any)
	assert.Equal(t, "WIN", trade["outcome"])
	assert.InDelta(t, 20.0, trade["pnl_usd"], 1e-9)

	w, body = env.get(t, "/api/v1/ensemble/weights")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["optimization_count"])
	weights := data["weights"].(map[string]any)
	defaults := ensemble.DefaultWeights()
	assert.Greater(t, weights["advisory"].(float64), defaults[ensemble.SourceAdvisory])
	assert.Less(t, weights["macro"].(float64), defaults[ensemble.SourceMacro])

	w, body = env.get(t, "/api/v1/performance")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["wins"])

	// a second exit of the same trade is refused
	w, _ = env.post(t, fmt.Sprintf("/api/v1/trades/%d/exit", id), `{"exit_price": 120, "reason": "take_profit"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRoutes_EngineState(t *testing.T) {
	env := setupRouter(t, nil)

	w, _ := env.get(t, "/api/v1/cycles/last")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := env.get(t, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 75.0, body["data"].(map[string]any)["hit_rate"], 1e-9)

	w, body = env.get(t, "/api/v1/strategies")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, len(models.AllStrategies), body["data"].(map[string]any)["count"])

	w, body = env.get(t, "/api/v1/ensemble/weights")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["data"].(map[string]any)["optimization_count"])
}

func TestSetupRoutes_LastCycle(t *testing.T) {
	env := setupRouter(t, func(d *Dependencies) {
		d.Loop = fixedCycle{ok: true, result: services.CycleResult{ID: "cycle-1", Signals: 2, Duration: time.Second}}
	})

	w, body := env.get(t, "/api/v1/cycles/last")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cycle-1", body["data"].(map[string]any)["id"])
}

func TestSetupRoutes_Metrics(t *testing.T) {
	env := setupRouter(t, nil)

	w, _ := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tradeloop_ensemble_model_weight")
}

func TestSetupRoutes_RateLimitSkipsProbes(t *testing.T) {
	env := setupRouter(t, func(d *Dependencies) {
		d.RateLimit.Requests = 2
	})

	for range 2 {
		w, _ := env.get(t, "/api/v1/strategies")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, body := env.get(t, "/api/v1/strategies")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", body["error"])

	w, _ = env.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_CORS(t *testing.T) {
	env := setupRouter(t, func(d *Dependencies) {
		d.AllowedOrigins = []string{"http://localhost:3000"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/strategies", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRoutes_OptionalComponentsDisabled(t *testing.T) {
	env := setupRouter(t, func(d *Dependencies) {
		d.Performance = nil
		d.Trades = nil
		d.Ensemble = nil
		d.Gatherer = nil
	})

	w, _ := env.get(t, "/api/v1/performance")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = env.post(t, "/api/v1/trades", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = env.get(t, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
