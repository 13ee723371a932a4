package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the stage pipeline and gate API
type Metrics struct {
	// Batch runs
	EntitiesTotal  *prometheus.CounterVec   // labels: job, status
	EntityDuration *prometheus.HistogramVec // labels: job
	RunsTotal      *prometheus.CounterVec   // labels: job, result

	// Classification
	StagesTotal *prometheus.CounterVec // labels: kind, stage

	// Gate
	GateDecisions   *prometheus.CounterVec // labels: reason
	StoreRecords    prometheus.Gauge
	StoreGeneration prometheus.Gauge

	// HTTP
	HTTPRequests *prometheus.CounterVec   // labels: route, code
	HTTPDuration *prometheus.HistogramVec // labels: route

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on reg
// 테스트는 prometheus.NewRegistry() 를 넘김
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		EntitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_entities_total",
			Help: "Entities processed by batch jobs",
		}, []string{"job", "status"}),
		EntityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_entity_duration_seconds",
			Help:    "Per-entity processing latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"job"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_runs_total",
			Help: "Batch runs by outcome",
		}, []string{"job", "result"}),
		StagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_stage_records_total",
			Help: "Stage records emitted by the point-in-time driver",
		}, []string{"kind", "stage"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_gate_decisions_total",
			Help: "Gate decisions served, by reason",
		}, []string{"reason"}),
		StoreRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stagegate_stage_store_records",
			Help: "Records in the loaded stage store",
		}),
		StoreGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stagegate_stage_store_generation",
			Help: "Number of successful stage store loads",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.EntitiesTotal,
		m.EntityDuration,
		m.RunsTotal,
		m.StagesTotal,
		m.GateDecisions,
		m.StoreRecords,
		m.StoreGeneration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewDefault registers on a fresh registry that also carries the Go runtime collectors
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveEntity records one batch entity outcome
func (m *Metrics) ObserveEntity(job, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EntitiesTotal.WithLabelValues(job, status).Inc()
	m.EntityDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// ObserveRun records a finished batch run
func (m *Metrics) ObserveRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RunsTotal.WithLabelValues(job, result).Inc()
}

// ObserveStage counts one emitted stage record
func (m *Metrics) ObserveStage(kind, stage string) {
	if m == nil {
		return
	}
	m.StagesTotal.WithLabelValues(kind, stage).Inc()
}

// ObserveGate counts one served gate decision
func (m *Metrics) ObserveGate(reason string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(reason).Inc()
}

// SetStore publishes the stage store state
func (m *Metrics) SetStore(records int, generation uint64) {
	if m == nil {
		return
	}
	m.StoreRecords.Set(float64(records))
	m.StoreGeneration.Set(float64(generation))
}

// ObserveHTTP records one API request
func (m *Metrics) ObserveHTTP(route, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
