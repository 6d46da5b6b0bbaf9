package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequestsTotal tracks calls to the metering and weather APIs.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energywatch_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"service", "status"},
	)

	// UpstreamRequestDuration tracks upstream call latency.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "energywatch_upstream_request_duration_seconds",
			Help:    "Duration of upstream API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// TokenRefreshesTotal counts bearer token refreshes against the
	// metering identity server.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energywatch_token_refreshes_total",
			Help: "Total number of access token refreshes",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal counts handled API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energywatch_http_requests_total",
			Help: "Total number of handled HTTP requests",
		},
		[]string{"path", "method", "code"},
	)

	// HTTPRequestDuration tracks handler latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "energywatch_http_request_duration_seconds",
			Help:    "Duration of handled HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// DBQueriesTotal tracks archive database queries.
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energywatch_db_queries_total",
			Help: "Total number of archive database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// AppInfo provides static information about the application
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "energywatch_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "energywatch_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

// RecordUpstreamRequest records one call against an upstream collaborator.
func RecordUpstreamRequest(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(service, status).Inc()
	UpstreamRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordTokenRefresh records one token refresh attempt.
func RecordTokenRefresh(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	TokenRefreshesTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records one handled API request.
func RecordHTTPRequest(path, method string, code int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
	HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordDBQuery records an archive database query execution.
func RecordDBQuery(queryType, table string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(queryType, table, status).Inc()
}
