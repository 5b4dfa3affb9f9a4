package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

const namespace = "workbench"

// Metrics methods are safe on a nil receiver so callers need no enabled checks.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	llmCost     prometheus.Counter

	streams         *prometheus.CounterVec
	streamsActive   prometheus.Gauge
	persistWarnings *prometheus.CounterVec
	ledgerOps       *prometheus.CounterVec
	securityEvents  *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. Later calls return the same instance.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "HTTP requests currently being served",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Upstream model calls by mode and outcome",
		}, []string{"model", "mode", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Upstream model call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"model", "mode"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by upstream model calls",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Monetary cost of upstream model calls since start",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_sessions_total",
			Help:      "Prompt stream sessions by outcome",
		}, []string{"outcome"}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections_active",
			Help:      "Open streaming connections",
		}),
		persistWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_warnings_total",
			Help:      "Post-stream persistence steps that failed",
		}, []string{"step"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger mutations by kind and outcome",
		}, []string{"kind", "status"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Authentication and authorization failures by kind",
		}, []string{"event"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens, m.llmCost,
		m.streams, m.streamsActive, m.persistWarnings, m.ledgerOps, m.securityEvents,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveLLMRequest(model, mode, status string, dur time.Duration, inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.WithLabelValues(model, mode, status).Inc()
	m.llmLatency.WithLabelValues(model, mode).Observe(dur.Seconds())
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
	if cost > 0 {
		m.llmCost.Add(cost)
	}
}

func (m *Metrics) IncStream(outcome string) {
	if m != nil {
		m.streams.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) StreamConnOpened() {
	if m != nil {
		m.streamsActive.Inc()
	}
}

func (m *Metrics) StreamConnClosed() {
	if m != nil {
		m.streamsActive.Dec()
	}
}

func (m *Metrics) IncPersistWarning(step string) {
	if m != nil {
		m.persistWarnings.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) IncLedger(kind, status string) {
	if m != nil {
		m.ledgerOps.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) IncSecurityEvent(event string) {
	if m != nil {
		m.securityEvents.WithLabelValues(event).Inc()
	}
}
