package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/soltixdb/forecaster/internal/analytics"
	"gonum.org/v1/gonum/optimize"
)

const (
	// etsTrendMinPoints is the shortest series fitted with a trend component.
	etsTrendMinPoints = 4
	// etsOptimizeMinPoints is the shortest series whose parameters are optimized.
	etsOptimizeMinPoints = 3
	// etsDefaultAlpha is used for series too short to optimize.
	etsDefaultAlpha = 0.5
)

// ETSForecaster implements exponential smoothing. Holt's additive trend
// method is tried first, falling back to simple exponential smoothing.
// ETS models do not produce prediction intervals.
type ETSForecaster struct{}

// NewETSForecaster creates a new exponential smoothing forecaster
func NewETSForecaster() *ETSForecaster {
	return &ETSForecaster{}
}

// Name returns the algorithm name
func (f *ETSForecaster) Name() string {
	return ModelETS
}

// Fit estimates smoothing parameters by minimizing the in-sample squared
// one-step error.
func (f *ETSForecaster) Fit(series *analytics.TimeSeries, target string, _ []string) (Model, error) {
	values, err := targetValues(series, target)
	if err != nil {
		return nil, err
	}

	if len(values) >= etsTrendMinPoints {
		if model, err := fitHolt(values); err == nil {
			return model, nil
		}
	}
	return fitSES(values)
}

// Decode restores a model saved with State.
func (f *ETSForecaster) Decode(state []byte) (Model, error) {
	var m ETSModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("failed to decode ets state: %w", err)
	}
	if len(m.History) == 0 {
		return nil, errors.New("ets state has no history")
	}
	m.prepare()
	return &m, nil
}

// ETSModel is a fitted exponential smoothing model. Beta and InitialTrend
// are zero when Trend is false.
type ETSModel struct {
	Trend        bool      `json:"trend"`
	Alpha        float64   `json:"alpha"`
	Beta         float64   `json:"beta"`
	InitialLevel float64   `json:"initial_level"`
	InitialTrend float64   `json:"initial_trend"`
	AIC          float64   `json:"aic"`
	History      []float64 `json:"history"`

	fitted []float64
	level  float64
	slope  float64
}

func fitHolt(values []float64) (*ETSModel, error) {
	ys, mu, scale := standardize(values)

	objective := func(x []float64) float64 {
		fitted, _, _ := smooth(ys, logistic(x[0]), logistic(x[1]), x[2], x[3], true)
		return sse(ys, fitted)
	}
	x0 := []float64{logit(0.5), logit(0.1), ys[0], ys[1] - ys[0]}
	x, err := minimize(objective, x0)
	if err != nil {
		return nil, fmt.Errorf("holt fit failed: %w", err)
	}

	m := &ETSModel{
		Trend:        true,
		Alpha:        logistic(x[0]),
		Beta:         logistic(x[1]),
		InitialLevel: mu + scale*x[2],
		InitialTrend: scale * x[3],
		History:      append([]float64{}, values...),
	}
	m.prepare()
	m.AIC = etsAIC(values, m.fitted, 4)
	return m, nil
}

func fitSES(values []float64) (*ETSModel, error) {
	if len(values) == 0 {
		return nil, ErrInsufficientData
	}

	m := &ETSModel{
		Alpha:        etsDefaultAlpha,
		InitialLevel: values[0],
		History:      append([]float64{}, values...),
	}

	if len(values) >= etsOptimizeMinPoints {
		ys, mu, scale := standardize(values)
		objective := func(x []float64) float64 {
			fitted, _, _ := smooth(ys, logistic(x[0]), 0, x[1], 0, false)
			return sse(ys, fitted)
		}
		if x, err := minimize(objective, []float64{logit(etsDefaultAlpha), ys[0]}); err == nil {
			m.Alpha = logistic(x[0])
			m.InitialLevel = mu + scale*x[1]
		}
	}

	m.prepare()
	m.AIC = etsAIC(values, m.fitted, 2)
	return m, nil
}

func (m *ETSModel) prepare() {
	m.fitted, m.level, m.slope = smooth(m.History, m.Alpha, m.Beta, m.InitialLevel, m.InitialTrend, m.Trend)
}

// Name returns the registry name
func (m *ETSModel) Name() string {
	return ModelETS
}

// Predict extrapolates the final level and trend. Intervals are never set.
func (m *ETSModel) Predict(horizon int, _ bool) (*Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	forecast := make([]float64, horizon)
	for h := range forecast {
		forecast[h] = m.level + float64(h+1)*m.slope
	}
	return &Prediction{Forecast: forecast}, nil
}

// Evaluate returns error metrics of the one-step fit or of a holdout.
func (m *ETSModel) Evaluate(test []float64) Metrics {
	return evaluateModel(m, m.fitted, m.History, test, m.AIC)
}

// State serializes the model.
func (m *ETSModel) State() ([]byte, error) {
	return json.Marshal(m)
}

// smooth runs the smoothing recursion and returns one-step fitted values
// with the final level and slope.
func smooth(values []float64, alpha, beta, level, slope float64, trend bool) ([]float64, float64, float64) {
	if !trend {
		slope = 0
	}
	fitted := make([]float64, len(values))
	for t, y := range values {
		fitted[t] = level + slope
		prev := level
		level = alpha*y + (1-alpha)*(level+slope)
		if trend {
			slope = beta*(level-prev) + (1-beta)*slope
		}
	}
	return fitted, level, slope
}

// minimize runs Nelder-Mead and rejects non-finite optima.
func minimize(objective func([]float64) float64, x0 []float64) ([]float64, error) {
	settings := &optimize.Settings{
		FuncEvaluations: 2000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}
	result, err := optimize.Minimize(optimize.Problem{Func: objective}, x0, settings, &optimize.NelderMead{})
	if result == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return nil, err
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, errors.New("objective is not finite")
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("parameters are not finite")
		}
	}
	return result.X, nil
}

// standardize returns (values - mean) / std. The scale is 1 for constant input.
func standardize(values []float64) ([]float64, float64, float64) {
	mu := analytics.Mean(values)
	scale := 0.0
	for _, v := range values {
		scale += (v - mu) * (v - mu)
	}
	scale = math.Sqrt(scale / float64(len(values)))
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mu) / scale
	}
	return out, mu, scale
}

func sse(actual, fitted []float64) float64 {
	s := 0.0
	for i := range actual {
		d := actual[i] - fitted[i]
		s += d * d
	}
	if math.IsNaN(s) {
		return math.Inf(1)
	}
	return s
}

// etsAIC is n*log(SSE/n) + 2k with the error variance floored like ARIMA's.
func etsAIC(values, fitted []float64, k int) float64 {
	n := float64(len(values))
	variance := sse(values, fitted) / n
	if variance < minSigma2 {
		variance = minSigma2
	}
	if math.IsInf(variance, 0) {
		return math.MaxFloat64
	}
	return n*math.Log(variance) + 2*float64(k)
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
