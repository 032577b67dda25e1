package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Metric names. Lower is better for all of them.
const (
	MetricMAE  = "mae"
	MetricRMSE = "rmse"
	MetricAIC  = "aic"
)

// Metrics maps metric name to score. A metric that could not be computed is
// absent from the map, never stored as 0.
type Metrics map[string]float64

// Get returns the named metric and whether it is present.
func (m Metrics) Get(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// set stores v only when it is finite.
func (m Metrics) set(name string, v float64) {
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		m[name] = v
	}
}

// aligned returns the error terms at indices where both series carry a
// finite value.
func aligned(actual, predicted []float64) []float64 {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	errs := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		a, p := actual[i], predicted[i]
		if math.IsNaN(a) || math.IsNaN(p) || math.IsInf(a, 0) || math.IsInf(p, 0) {
			continue
		}
		errs = append(errs, a-p)
	}
	return errs
}

// CalculateMAE calculates Mean Absolute Error over aligned indices.
func CalculateMAE(actual, predicted []float64) (float64, bool) {
	errs := aligned(actual, predicted)
	if len(errs) == 0 {
		return 0, false
	}
	for i, e := range errs {
		errs[i] = math.Abs(e)
	}
	return floats.Sum(errs) / float64(len(errs)), true
}

// CalculateRMSE calculates Root Mean Squared Error over aligned indices.
func CalculateRMSE(actual, predicted []float64) (float64, bool) {
	errs := aligned(actual, predicted)
	if len(errs) == 0 {
		return 0, false
	}
	return floats.Norm(errs, 2) / math.Sqrt(float64(len(errs))), true
}

// ErrorMetrics returns mae and rmse, or an empty map when nothing aligns.
func ErrorMetrics(actual, predicted []float64) Metrics {
	m := Metrics{}
	if mae, ok := CalculateMAE(actual, predicted); ok {
		m.set(MetricMAE, mae)
	}
	if rmse, ok := CalculateRMSE(actual, predicted); ok {
		m.set(MetricRMSE, rmse)
	}
	return m
}

// evaluateModel implements the shared Evaluate contract: in-sample error
// metrics when test is nil, holdout error metrics otherwise, and the
// information criterion when no error metric could be computed.
func evaluateModel(model Model, fitted, history, test []float64, aic float64) Metrics {
	var m Metrics
	if test == nil {
		m = ErrorMetrics(history, fitted)
	} else if len(test) > 0 {
		if pred, err := model.Predict(len(test), false); err == nil {
			m = ErrorMetrics(test, pred.Forecast)
		}
	}
	if len(m) == 0 {
		m = Metrics{}
		m.set(MetricAIC, aic)
	}
	return m
}
