package forecast

import (
	"errors"
	"fmt"

	"github.com/soltixdb/forecaster/internal/analytics"
)

// Registered model names.
const (
	ModelARIMA   = "arima"
	ModelETS     = "ets"
	ModelXGBoost = "xgboost"
)

var (
	// ErrInsufficientData is returned when a series is too short for a model.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidHorizon is returned for a non-positive horizon.
	ErrInvalidHorizon = errors.New("horizon must be positive")
)

// Prediction is a horizon-length forecast. Lower and Upper are nil when the
// model did not produce intervals; otherwise they have the same length as
// Forecast and bracket it.
type Prediction struct {
	Forecast []float64 `json:"forecast"`
	Lower    []float64 `json:"lower"`
	Upper    []float64 `json:"upper"`
}

// HasIntervals reports whether both bounds are present.
func (p *Prediction) HasIntervals() bool {
	return p.Lower != nil && p.Upper != nil
}

// Forecaster fits one model family to a prepared series.
type Forecaster interface {
	// Name returns the registry name of the model family
	Name() string
	// Fit trains on the target column, optionally using exogenous columns
	Fit(series *analytics.TimeSeries, target string, exogenous []string) (Model, error)
	// Decode restores a model from the state produced by Model.State
	Decode(state []byte) (Model, error)
}

// Model is a fitted forecaster. It owns a copy of its training series.
type Model interface {
	Name() string
	// Predict forecasts horizon steps past the training data
	Predict(horizon int, withIntervals bool) (*Prediction, error)
	// Evaluate scores the model in-sample when test is nil, otherwise
	// against a holdout that directly follows the training data
	Evaluate(test []float64) Metrics
	// State serializes the fitted parameters and training data
	State() ([]byte, error)
}

// Config holds model hyper-parameters.
type Config struct {
	Confidence float64 // prediction interval level (0-1)

	MaxP int // ARIMA order search bounds
	MaxD int
	MaxQ int

	NLags        int // gradient-boosted trees
	MaxDepth     int
	NEstimators  int
	LearningRate float64
	Lambda       float64
}

// DefaultConfig returns default model configuration
func DefaultConfig() Config {
	return Config{
		Confidence:   0.95,
		MaxP:         5,
		MaxD:         2,
		MaxQ:         5,
		NLags:        7,
		MaxDepth:     3,
		NEstimators:  100,
		LearningRate: 0.3,
		Lambda:       1,
	}
}

// Forecasters returns the model families in registration order.
func Forecasters(cfg Config) []Forecaster {
	return []Forecaster{
		NewARIMAForecaster(cfg),
		NewETSForecaster(),
		NewGBTForecaster(cfg),
	}
}

func targetValues(series *analytics.TimeSeries, target string) ([]float64, error) {
	if series == nil || series.Len() == 0 {
		return nil, analytics.ErrEmptySeries
	}
	values, ok := series.Column(target)
	if !ok {
		return nil, analytics.MissingColumn("target", target)
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, nil
}

func checkHorizon(horizon int) error {
	if horizon <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidHorizon, horizon)
	}
	return nil
}
