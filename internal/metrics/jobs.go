package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsTotal, jobDuration, jobsInFlight, jobsSubmitted)
}

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_jobs_total",
			Help: "Forecast jobs that reached a terminal state, labeled by status.",
		},
		[]string{"status"}, // completed, failed
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecaster_job_duration_seconds",
			Help:    "Wall time of a forecast job run.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"status"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forecaster_jobs_in_flight",
			Help: "Forecast jobs currently being processed by this process.",
		},
	)

	jobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecaster_jobs_submitted_total",
			Help: "Forecast jobs accepted by the API.",
		},
	)
)

// JobStarted marks a job as in flight.
func JobStarted() {
	jobsInFlight.Inc()
}

// JobFinished records a terminal job state and its duration.
func JobFinished(status string, elapsed time.Duration) {
	jobsInFlight.Dec()
	jobsTotal.WithLabelValues(norm(status)).Inc()
	jobDuration.WithLabelValues(norm(status)).Observe(elapsed.Seconds())
}

// JobSubmitted counts an accepted submission.
func JobSubmitted() {
	jobsSubmitted.Inc()
}
