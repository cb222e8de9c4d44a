package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts finished requests by route template.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_http_requests_in_flight",
			Help: "Requests currently being served",
		},
	)

	CacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_http_cache_results_total",
			Help: "Public response cache lookups",
		},
		[]string{"result"}, // hit|miss|error
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NotificationsSent counts finished notification dispatches by final status.
var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inkwell_notifications_total",
		Help: "Notification dispatches by final status",
	},
	[]string{"status"}, // sent|failed
)
