package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEntity("classify", "ok", 10*time.Millisecond)
	m.ObserveEntity("classify", "ok", 20*time.Millisecond)
	m.ObserveEntity("classify", "error", time.Millisecond)
	m.ObserveRun("classify", errors.New("x"))
	m.ObserveGate("stage_allowed")
	m.ObserveStage("spider", "8")
	m.SetStore(42, 3)

	body := scrape(t, m)
	assert.Contains(t, body, `stagegate_entities_total{job="classify",status="ok"} 2`)
	assert.Contains(t, body, `stagegate_entities_total{job="classify",status="error"} 1`)
	assert.Contains(t, body, `stagegate_runs_total{job="classify",result="error"} 1`)
	assert.Contains(t, body, `stagegate_gate_decisions_total{reason="stage_allowed"} 1`)
	assert.Contains(t, body, `stagegate_stage_records_total{kind="spider",stage="8"} 1`)
	assert.Contains(t, body, "stagegate_stage_store_records 42")
	assert.Contains(t, body, "stagegate_stage_store_generation 3")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEntity("x", "ok", time.Second)
		m.ObserveRun("x", nil)
		m.ObserveGate("x")
		m.ObserveStage("stock", "8")
		m.SetStore(1, 1)
		m.ObserveHTTP("/health", "200", time.Millisecond)
	})
}

func TestNewDefault(t *testing.T) {
	m := NewDefault()
	m.ObserveHTTP("/health", "200", time.Millisecond)
	assert.Contains(t, scrape(t, m), `stagegate_http_requests_total{code="200",route="/health"} 1`)
}
