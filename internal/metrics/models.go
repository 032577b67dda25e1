package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(modelFits, modelFitDuration, modelSelected)
}

var (
	modelFits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_model_fits_total",
			Help: "Model fit attempts, labeled by model and success.",
		},
		[]string{"model", "success"},
	)

	modelFitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecaster_model_fit_duration_seconds",
			Help:    "Time spent fitting one model.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
		},
		[]string{"model"},
	)

	modelSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_model_selected_total",
			Help: "Times each model was selected as the best performer.",
		},
		[]string{"model"},
	)
)

// ObserveFit records one fit attempt.
func ObserveFit(model string, elapsed time.Duration, success bool) {
	modelFits.WithLabelValues(norm(model), strconv.FormatBool(success)).Inc()
	modelFitDuration.WithLabelValues(norm(model)).Observe(elapsed.Seconds())
}

// IncSelected counts a best-model selection.
func IncSelected(model string) {
	modelSelected.WithLabelValues(norm(model)).Inc()
}
