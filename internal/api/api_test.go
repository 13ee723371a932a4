package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/internal/api/handlers"
	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/metrics"
	"github.com/wonny/stagegate/internal/s5_gate"
	"github.com/wonny/stagegate/internal/stageconfig"
	"github.com/wonny/stagegate/pkg/logger"
)

const spider = "SECTOR_TECHNOLOGY"

type memSource struct {
	recs []contracts.StageRecord
}

func (m *memSource) LoadStages(ctx context.Context) ([]contracts.StageRecord, error) {
	return m.recs, nil
}

func (m *memSource) Describe() string { return "memory" }

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func rec(d int, stage contracts.Stage) contracts.StageRecord {
	return contracts.StageRecord{
		EntityID:  spider,
		Date:      day(d),
		Stage:     stage,
		StageName: stage.Name(),
		Reasons:   []string{"trend"},
	}
}

type fixture struct {
	router  http.Handler
	source  *memSource
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, limiter *Limiter) *fixture {
	t.Helper()
	cfg := stageconfig.Default().SpiderGate
	cfg.StageRiskMultiplier = map[string]float64{"8": 1.25, "default": 0.5}

	src := &memSource{recs: []contracts.StageRecord{rec(2, 7), rec(3, 8), rec(4, 3)}}
	engine := s5_gate.NewEngine(cfg, s5_gate.NewStore(src, logger.Nop()))
	m := metrics.New(prometheus.NewRegistry())
	h := handlers.NewGateHandler(engine, engine, m, "abc123", logger.Nop())

	return &fixture{
		router:  NewRouter(h, m, limiter, logger.Nop()),
		source:  src,
		metrics: m,
	}
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w, body := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetGate(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name     string
		path     string
		code     int
		allowed  bool
		reason   string
		riskMult float64
	}{
		{"allowed stage", "/api/v1/gate/" + spider + "/2024-01-03", http.StatusOK, true, "stage_allowed", 1.25},
		{"blocked stage", "/api/v1/gate/" + spider + "/2024-01-04", http.StatusOK, false, "stage_blocked", 0.5},
		{"missing record", "/api/v1/gate/" + spider + "/2024-01-06", http.StatusOK, false, "missing_spider_stage", 0.5},
		{"unknown spider", "/api/v1/gate/SECTOR_NOPE/2024-01-03", http.StatusOK, false, "missing_spider_stage", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodGet, tt.path)
			require.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.allowed, body["allowed"])
			assert.Equal(t, tt.reason, body["reason"])
			assert.InDelta(t, tt.riskMult, body["risk_mult"], 1e-9)
			assert.Equal(t, "abc123", body["config_hash"])
		})
	}

	w, body := f.do(t, http.MethodGet, "/api/v1/gate/"+spider+"/2024-01-03")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-01-03", body["date"])
	assert.Equal(t, float64(8), body["stage"])
	assert.Equal(t, "In-Zone", body["stage_name"])
}

func TestGetGate_BadDate(t *testing.T) {
	f := newFixture(t, nil)
	w, body := f.do(t, http.MethodGet, "/api/v1/gate/"+spider+"/03-01-2024")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "YYYY-MM-DD")
}

func TestGetStages(t *testing.T) {
	f := newFixture(t, nil)

	w, body := f.do(t, http.MethodGet, "/api/v1/stages/"+spider)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["count"])

	w, body = f.do(t, http.MethodGet, "/api/v1/stages/"+spider+"?from=2024-01-03&to=2024-01-03")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), body["count"])
	first := body["records"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2024-01-03", first["date"])
	assert.Equal(t, "trend", first["stage_reason"])

	w, _ = f.do(t, http.MethodGet, "/api/v1/stages/SECTOR_NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/stages/"+spider+"?from=2024-01-05&to=2024-01-02")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRisk(t *testing.T) {
	f := newFixture(t, nil)

	w, body := f.do(t, http.MethodGet, "/api/v1/risk/8")
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 1.25, body["risk_mult"], 1e-9)
	assert.Equal(t, true, body["allowed"])

	w, body = f.do(t, http.MethodGet, "/api/v1/risk/2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.5, body["risk_mult"], 1e-9)
	assert.Equal(t, false, body["allowed"])

	w, _ = f.do(t, http.MethodGet, "/api/v1/risk/12")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshStore(t *testing.T) {
	f := newFixture(t, nil)

	w, _ := f.do(t, http.MethodGet, "/api/v1/gate/"+spider+"/2024-01-05")
	require.Equal(t, http.StatusOK, w.Code)

	f.source.recs = append(f.source.recs, rec(5, 9))
	w, body := f.do(t, http.MethodPost, "/api/v1/store/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), body["records"])
	assert.Equal(t, float64(2), body["generation"])

	_, body = f.do(t, http.MethodGet, "/api/v1/gate/"+spider+"/2024-01-05")
	assert.Equal(t, "stage_allowed", body["reason"])

	w, body = f.do(t, http.MethodGet, "/api/v1/store")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{spider}, body["entities"])
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, NewLimiter(1, 2, nil, logger.Nop()))
	path := "/api/v1/risk/8"

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w, _ := f.do(t, http.MethodGet, path)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health 는 제한 대상 아님
	w, _ := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/v1/gate/"+spider+"/2024-01-03")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	raw, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `stagegate_gate_decisions_total{reason="stage_allowed"} 1`)
	assert.Contains(t, text, `route="/api/v1/gate/{spider}/{date}"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", clientID(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientID(req))
}
