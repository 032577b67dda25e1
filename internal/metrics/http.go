package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(httpRequests, httpLatency, queueMessages)
}

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecaster_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	queueMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_queue_messages_total",
			Help: "Queue messages by direction and outcome.",
		},
		[]string{"direction", "outcome"}, // publish|consume, ok|error
	)
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveQueue records a publish or consume outcome.
func ObserveQueue(direction string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	queueMessages.WithLabelValues(norm(direction), outcome).Inc()
}
