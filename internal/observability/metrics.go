package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledger          *LedgerMetrics
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(
		requests,
		duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ledger:          newLedgerMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Ledger mengembalikan metrik mesin ledger stok.
func (m *Metrics) Ledger() *LedgerMetrics {
	if m == nil {
		return nil
	}
	return m.ledger
}

// LedgerMetrics records stock ledger activity. It satisfies inventory.Recorder.
type LedgerMetrics struct {
	applies    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	alerts     *prometheus.CounterVec
	integrity  prometheus.Counter
	expired    prometheus.Counter
	replays    *prometheus.CounterVec
	violations prometheus.Counter
}

func newLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_movements_apply_total",
			Help: "Ledger transactions by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockledger_movements_apply_duration_seconds",
			Help:    "Duration of ledger transactions including lock waits.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"type"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_low_stock_alerts_total",
			Help: "Low-stock alerts created by severity.",
		}, []string{"severity"}),
		integrity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_integrity_violations_total",
			Help: "Aggregate drift detected during reconciliation.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_batches_expired_total",
			Help: "Batches written off by the expiry sweep.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_ledger_replays_total",
			Help: "Ledger replays by result.",
		}, []string{"result"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_ledger_replay_violations_total",
			Help: "Inconsistent movement rows found by ledger replays.",
		}),
	}
	registerer.MustRegister(m.applies, m.latency, m.alerts, m.integrity, m.expired, m.replays, m.violations)
	return m
}

// ObserveApply records one ledger transaction.
func (m *LedgerMetrics) ObserveApply(txType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.applies.WithLabelValues(txType, outcome).Inc()
	m.latency.WithLabelValues(txType).Observe(elapsed.Seconds())
}

// AlertCreated counts a new low-stock alert.
func (m *LedgerMetrics) AlertCreated(severity string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(severity).Inc()
}

// IntegrityViolation counts one detected aggregate drift.
func (m *LedgerMetrics) IntegrityViolation() {
	if m == nil {
		return
	}
	m.integrity.Inc()
}

// BatchesExpired counts batches written off by a sweep.
func (m *LedgerMetrics) BatchesExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

// LedgerVerified records one replay result.
func (m *LedgerMetrics) LedgerVerified(ok bool, violations int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "mismatch"
	}
	m.replays.WithLabelValues(result).Inc()
	if violations > 0 {
		m.violations.Add(float64(violations))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
