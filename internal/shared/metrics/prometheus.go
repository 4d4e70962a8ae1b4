package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	reportsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_reports_created_total",
			Help: "Total number of health reports created",
		},
		[]string{"type", "status"},
	)

	reportTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_report_transitions_total",
			Help: "Total number of report status transitions",
		},
		[]string{"action", "from_status", "to_status"},
	)

	reportEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_report_escalations_total",
			Help: "Total number of report escalations",
		},
		[]string{"type"},
	)

	authzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorization_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"resource_type", "action", "decision"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	scopeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_cache_lookups_total",
			Help: "Total number of scope cache lookups",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath keeps metric cardinality bounded for long paths
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordReportCreated records a health report creation
func RecordReportCreated(reportType, status string) {
	reportsCreated.WithLabelValues(reportType, status).Inc()
}

// RecordReportTransition records a report status transition
func RecordReportTransition(action, fromStatus, toStatus string) {
	reportTransitions.WithLabelValues(action, fromStatus, toStatus).Inc()
}

// RecordReportEscalation records a report escalation
func RecordReportEscalation(reportType string) {
	reportEscalations.WithLabelValues(reportType).Inc()
}

// RecordAuthzDecision records an authorization decision
func RecordAuthzDecision(resourceType, action string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authzDecisions.WithLabelValues(resourceType, action, decision).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordScopeCacheLookup records a scope cache hit or miss
func RecordScopeCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	scopeCacheLookups.WithLabelValues(result).Inc()
}
