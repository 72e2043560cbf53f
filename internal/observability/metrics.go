package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	auditFailures   *prometheus.CounterVec
	issueConflicts  *prometheus.CounterVec
	rbacFallbacks   prometheus.Counter
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik domain.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assettrack_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_audit_write_failures_total",
		Help: "Jumlah entri audit yang gagal disimpan per action.",
	}, []string{"action"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_issuance_conflicts_total",
		Help: "Jumlah issue atau scan yang ditolak karena perangkat sudah terpakai.",
	}, []string{"kind"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assettrack_rbac_fetch_failures_total",
		Help: "Jumlah kegagalan membaca role permission dari database.",
	})
	registry.MustRegister(requests, duration, auditFailures, conflicts, fallbacks)
	// Seri kosong tetap diekspos agar alert rule tidak kehilangan data.
	conflicts.WithLabelValues("issue")
	conflicts.WithLabelValues("scan")
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		auditFailures:   auditFailures,
		issueConflicts:  conflicts,
		rbacFallbacks:   fallbacks,
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

// AuditWriteFailed mencatat entri audit yang gagal ditulis.
func (m *Metrics) AuditWriteFailed(action string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(action).Inc()
}

// IssuanceConflict mencatat issue ("issue") atau scan ("scan") yang bentrok.
func (m *Metrics) IssuanceConflict(kind string) {
	if m == nil {
		return
	}
	m.issueConflicts.WithLabelValues(kind).Inc()
}

// PermissionFetchFailed mencatat kegagalan resolver membaca role permission.
func (m *Metrics) PermissionFetchFailed() {
	if m == nil {
		return
	}
	m.rbacFallbacks.Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
