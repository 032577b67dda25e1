package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/soltixdb/forecaster/internal/analytics"
)

// GBTForecaster is a gradient-boosted regression tree model over lagged
// target values, registered as "xgboost". Each training row holds the
// previous NLags targets, oldest first, followed by the exogenous values of
// the same row. Exogenous names absent from the series are skipped.
type GBTForecaster struct {
	NLags          int
	MaxDepth       int
	NEstimators    int
	LearningRate   float64
	Lambda         float64
	MinChildWeight float64
}

// NewGBTForecaster creates a boosted-tree forecaster with hyper-parameters from cfg
func NewGBTForecaster(cfg Config) *GBTForecaster {
	return &GBTForecaster{
		NLags:          cfg.NLags,
		MaxDepth:       cfg.MaxDepth,
		NEstimators:    cfg.NEstimators,
		LearningRate:   cfg.LearningRate,
		Lambda:         cfg.Lambda,
		MinChildWeight: 1,
	}
}

// Name returns the algorithm name
func (f *GBTForecaster) Name() string {
	return ModelXGBoost
}

// Fit trains the ensemble. Series shorter than NLags+1 are rejected.
func (f *GBTForecaster) Fit(series *analytics.TimeSeries, target string, exogenous []string) (Model, error) {
	values, err := targetValues(series, target)
	if err != nil {
		return nil, err
	}
	if f.NLags <= 0 {
		return nil, fmt.Errorf("xgboost: n_lags must be positive, got %d", f.NLags)
	}
	if len(values) < f.NLags+1 {
		return nil, fmt.Errorf("%w: xgboost needs at least %d points, got %d", ErrInsufficientData, f.NLags+1, len(values))
	}

	m := &GBTModel{
		NLags:        f.NLags,
		BaseScore:    analytics.Mean(values[f.NLags:]),
		History:      values,
		LearningRate: f.LearningRate,
	}
	for _, name := range exogenous {
		col, ok := series.Column(name)
		if !ok || name == target {
			continue
		}
		m.Exogenous = append(m.Exogenous, name)
		m.ExogenousValues = append(m.ExogenousValues, append([]float64{}, col...))
	}

	rows := len(values) - f.NLags
	x := make([][]float64, rows)
	y := make([]float64, rows)
	for r := range x {
		x[r] = m.features(values, r+f.NLags, r+f.NLags)
		y[r] = values[r+f.NLags]
	}

	builder := &treeBuilder{
		x:              x,
		maxDepth:       f.MaxDepth,
		lambda:         f.Lambda,
		minChildWeight: f.MinChildWeight,
		eta:            f.LearningRate,
	}

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = m.BaseScore
	}
	builder.grad = make([]float64, rows)

	for k := 0; k < f.NEstimators; k++ {
		for i := range builder.grad {
			builder.grad[i] = pred[i] - y[i]
		}
		tree := builder.build()
		for i := range pred {
			pred[i] += tree.predict(x[i])
		}
		m.Trees = append(m.Trees, tree)
	}

	return m, nil
}

// Decode restores a model saved with State.
func (f *GBTForecaster) Decode(state []byte) (Model, error) {
	var m GBTModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("failed to decode xgboost state: %w", err)
	}
	if m.NLags <= 0 || len(m.History) < m.NLags || len(m.Exogenous) != len(m.ExogenousValues) {
		return nil, errors.New("xgboost state is inconsistent")
	}
	return &m, nil
}

// GBTModel is a fitted boosted-tree ensemble.
type GBTModel struct {
	NLags           int         `json:"n_lags"`
	BaseScore       float64     `json:"base_score"`
	LearningRate    float64     `json:"learning_rate"`
	Trees           []gbtTree   `json:"trees"`
	Exogenous       []string    `json:"exogenous,omitempty"`
	ExogenousValues [][]float64 `json:"exogenous_values,omitempty"`
	History         []float64   `json:"history"`
}

// Name returns the registry name
func (m *GBTModel) Name() string {
	return ModelXGBoost
}

// features builds the row predicting position t from the NLags values of
// target before t and the exogenous values at exoRow.
func (m *GBTModel) features(target []float64, t, exoRow int) []float64 {
	row := make([]float64, 0, m.NLags+len(m.ExogenousValues))
	row = append(row, target[t-m.NLags:t]...)
	for _, col := range m.ExogenousValues {
		row = append(row, col[exoRow])
	}
	return row
}

func (m *GBTModel) predictRow(x []float64) float64 {
	v := m.BaseScore
	for i := range m.Trees {
		v += m.Trees[i].predict(x)
	}
	return v
}

// Predict forecasts recursively, feeding each prediction back as a lag.
// Future exogenous values repeat the last observed row. Intervals are never set.
func (m *GBTModel) Predict(horizon int, _ bool) (*Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}

	n := len(m.History)
	extended := make([]float64, n, n+horizon)
	copy(extended, m.History)
	lastRow := n - 1

	forecast := make([]float64, horizon)
	for h := range forecast {
		t := len(extended)
		v := m.predictRow(m.features(extended, t, lastRow))
		forecast[h] = v
		extended = append(extended, v)
	}
	return &Prediction{Forecast: forecast}, nil
}

// fitted returns in-sample predictions, NaN for the first NLags positions.
func (m *GBTModel) fitted() []float64 {
	out := make([]float64, len(m.History))
	for t := range out {
		if t < m.NLags {
			out[t] = math.NaN()
			continue
		}
		out[t] = m.predictRow(m.features(m.History, t, t))
	}
	return out
}

// Evaluate returns error metrics of the in-sample fit or of a holdout.
func (m *GBTModel) Evaluate(test []float64) Metrics {
	return evaluateModel(m, m.fitted(), m.History, test, math.NaN())
}

// State serializes the model.
func (m *GBTModel) State() ([]byte, error) {
	return json.Marshal(m)
}
