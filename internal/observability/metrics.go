package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideflow", Name: "rides_requested_total", Help: "Total ride requests accepted into the pool"})
	RidesAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideflow", Name: "rides_accepted_total", Help: "Total rides claimed by a driver"})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideflow", Name: "rides_completed_total", Help: "Total rides completed"})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideflow", Name: "rides_cancelled_total", Help: "Total rides cancelled"})
	OTPFailures    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideflow", Name: "otp_failures_total", Help: "Total failed ride-start OTP checks"})

	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "rideflow", Name: "drivers_available", Help: "Drivers currently in the available pool"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideflow", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rideflow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
