package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Signup counters
	SignupCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_signup_total",
			Help: "Total number of organisor signups",
		},
	)

	// Entity operation counters
	LeadOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_lead_operations_total",
			Help: "Total number of lead operations",
		},
		[]string{"operation"}, // "list", "get", "create", "update", "delete", "assign"
	)

	AgentOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_agent_operations_total",
			Help: "Total number of agent operations",
		},
		[]string{"operation"},
	)

	CategoryOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_category_operations_total",
			Help: "Total number of category operations",
		},
		[]string{"operation"},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"},
	)

	ScopeErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_scope_errors_total",
			Help: "Total number of scoping violations by entity",
		},
		[]string{"entity", "error_type"}, // error_type: "not_found", "forbidden", "validation", "integrity"
	)

	// Notification counter
	NotificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_notifications_total",
			Help: "Total number of notification dispatches",
		},
		[]string{"kind"}, // "agent_invite", "lead_created"
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active tokens
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_active_tokens",
			Help: "Number of currently active authentication tokens",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crm_info",
			Help: "Information about the CRM service",
		},
		[]string{"version"},
	)

	// Leads per tenant
	LeadsPerTenantGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crm_leads_per_tenant",
			Help: "Number of leads per tenant",
		},
		[]string{"tenant_id"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(SignupCounter)
	prometheus.MustRegister(LeadOperationCounter)
	prometheus.MustRegister(AgentOperationCounter)
	prometheus.MustRegister(CategoryOperationCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(ScopeErrorCounter)
	prometheus.MustRegister(NotificationCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ActiveTokensGauge)
	prometheus.MustRegister(InfoGauge)
	prometheus.MustRegister(LeadsPerTenantGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			// Record metrics
			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// IncreaseActiveTokens increments the active tokens gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}

// DecreaseActiveTokens decrements the active tokens gauge
func DecreaseActiveTokens() {
	ActiveTokensGauge.Dec()
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordScopeError records a scoping violation by entity and error type
func RecordScopeError(entity, errorType string) {
	ScopeErrorCounter.With(prometheus.Labels{
		"entity":     entity,
		"error_type": errorType,
	}).Inc()
}

// RecordLeadOperation records a lead operation
func RecordLeadOperation(operation string) {
	LeadOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordAgentOperation records an agent operation
func RecordAgentOperation(operation string) {
	AgentOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordCategoryOperation records a category operation
func RecordCategoryOperation(operation string) {
	CategoryOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordNotification records a notification dispatch by kind
func RecordNotification(kind string) {
	NotificationCounter.With(prometheus.Labels{"kind": kind}).Inc()
}

// UpdateLeadsPerTenant updates the leads-per-tenant gauge
func UpdateLeadsPerTenant(tenantID uint, count int64) {
	LeadsPerTenantGauge.With(prometheus.Labels{
		"tenant_id": strconv.FormatUint(uint64(tenantID), 10),
	}).Set(float64(count))
}
