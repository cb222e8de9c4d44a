package mail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	emailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_emails_total",
			Help: "Emails handed to the mail provider, by outcome",
		},
		[]string{"provider", "status"}, // status: sent|failed
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_email_send_duration_seconds",
			Help:    "Mail provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"provider"},
	)

	rateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_email_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the outbound mail rate limiter",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"provider"},
	)

	// 0 closed, 1 half-open, 2 open
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inkwell_email_circuit_state",
			Help: "Mail provider circuit breaker state",
		},
		[]string{"provider"},
	)
)
