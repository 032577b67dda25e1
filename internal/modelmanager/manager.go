// Package modelmanager fits the registered forecasters, scores them and
// picks the one used for a job. It also persists fitted models as opaque
// compressed blobs.
package modelmanager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/soltixdb/forecaster/internal/analytics"
	"github.com/soltixdb/forecaster/internal/analytics/forecast"
	"github.com/soltixdb/forecaster/internal/compression"
	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/tracing"
)

var (
	// ErrModelNotAvailable is returned for a model name that is not registered.
	ErrModelNotAvailable = errors.New("model not available")

	// ErrNoModelsFitted is returned when every registered model failed to fit.
	ErrNoModelsFitted = errors.New("no models could be fitted")
)

// DefaultModel is selected when there is nothing to compare.
const DefaultModel = forecast.ModelARIMA

// FitResult is the outcome of one model's fit attempt: Model is set on
// success, Err on failure.
type FitResult struct {
	Name     string
	Model    forecast.Model
	Err      error
	Duration time.Duration
}

// OK reports whether the fit succeeded.
func (r FitResult) OK() bool {
	return r.Err == nil && r.Model != nil
}

// FitOutcome holds one result per registered model, in registration order.
type FitOutcome struct {
	Results []FitResult
}

// Fitted returns the successful results in registration order.
func (o *FitOutcome) Fitted() []FitResult {
	out := make([]FitResult, 0, len(o.Results))
	for _, r := range o.Results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the failed results in registration order.
func (o *FitOutcome) Failed() []FitResult {
	out := make([]FitResult, 0)
	for _, r := range o.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Model returns the fitted model with the given name.
func (o *FitOutcome) Model(name string) (forecast.Model, bool) {
	for _, r := range o.Results {
		if r.Name == name && r.OK() {
			return r.Model, true
		}
	}
	return nil, false
}

// Manager owns an ordered set of forecasters. Registration order is the
// selection tie-break.
type Manager struct {
	forecasters []forecast.Forecaster
	algo        compression.Algorithm
	logger      *logging.Logger
}

// New creates a manager over forecasters, in the given order.
func New(forecasters []forecast.Forecaster, algo compression.Algorithm, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Global()
	}
	return &Manager{forecasters: forecasters, algo: algo, logger: logger}
}

// NewDefault creates a manager over arima, ets and xgboost.
func NewDefault(cfg forecast.Config, logger *logging.Logger) *Manager {
	return New(forecast.Forecasters(cfg), compression.Snappy, logger)
}

// NewFromConfig builds the default model set with the configured
// hyper-parameters and model blob compression.
func NewFromConfig(cfg config.ForecastConfig, logger *logging.Logger) (*Manager, error) {
	algo, err := compression.ParseAlgorithm(cfg.ModelCompression)
	if err != nil {
		return nil, err
	}
	return New(forecast.Forecasters(cfg.ModelConfig()), algo, logger), nil
}

// Names returns the registered model names in order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.forecasters))
	for i, f := range m.forecasters {
		names[i] = f.Name()
	}
	return names
}

// Forecaster looks up a registered forecaster.
func (m *Manager) Forecaster(name string) (forecast.Forecaster, bool) {
	for _, f := range m.forecasters {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// FitAll fits every registered model concurrently. Each failure is logged
// and kept in the outcome; the error is ErrNoModelsFitted only when no
// model fit at all.
func (m *Manager) FitAll(ctx context.Context, series *analytics.TimeSeries, target string, exogenous []string) (*FitOutcome, error) {
	outcome := &FitOutcome{Results: make([]FitResult, len(m.forecasters))}

	var wg sync.WaitGroup
	for i, f := range m.forecasters {
		wg.Add(1)
		go func(i int, f forecast.Forecaster) {
			defer wg.Done()
			outcome.Results[i] = m.fit(ctx, f, series, target, exogenous)
		}(i, f)
	}
	wg.Wait()

	for _, r := range outcome.Results {
		if !r.OK() {
			m.logger.Warn("Model fit failed", "model", r.Name, "error", r.Err)
		}
	}

	if len(outcome.Fitted()) == 0 {
		errs := make([]error, 0, len(outcome.Results))
		for _, r := range outcome.Results {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
		return outcome, fmt.Errorf("%w: %w", ErrNoModelsFitted, errors.Join(errs...))
	}
	return outcome, nil
}

// Fit fits one named model.
func (m *Manager) Fit(ctx context.Context, name string, series *analytics.TimeSeries, target string, exogenous []string) (forecast.Model, error) {
	f, ok := m.Forecaster(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrModelNotAvailable, name)
	}
	r := m.fit(ctx, f, series, target, exogenous)
	if !r.OK() {
		return nil, r.Err
	}
	return r.Model, nil
}

func (m *Manager) fit(ctx context.Context, f forecast.Forecaster, series *analytics.TimeSeries, target string, exogenous []string) (result FitResult) {
	name := f.Name()
	result.Name = name

	_, span := tracing.StartSpan(ctx, "modelmanager.fit", tracing.AttrModel.String(name))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result.Model = nil
			result.Err = fmt.Errorf("panic while fitting %s: %v", name, p)
			m.logger.Error("Model fit panicked", "model", name, "panic", p, "stack", string(debug.Stack()))
		}
		result.Duration = time.Since(start)
		metrics.ObserveFit(name, result.Duration, result.OK())
		tracing.RecordError(span, result.Err)
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}
	result.Model, result.Err = f.Fit(series, target, exogenous)
	if result.Err == nil && result.Model == nil {
		result.Err = fmt.Errorf("%s returned no model", name)
	}
	return result
}

// CompareModels evaluates every fitted model in-sample.
func (m *Manager) CompareModels(fitted []FitResult) map[string]forecast.Metrics {
	out := make(map[string]forecast.Metrics, len(fitted))
	for _, r := range fitted {
		if r.OK() {
			out[r.Name] = r.Model.Evaluate(nil)
		}
	}
	return out
}

// SelectBest returns the model with the strictly lowest score, where a
// model scores its rmse, else its mae, else its aic, else +Inf. Ties go to
// the earlier registered model; names that are not registered rank after
// all registered ones. An empty map selects DefaultModel.
func (m *Manager) SelectBest(metricsByModel map[string]forecast.Metrics) string {
	if len(metricsByModel) == 0 {
		return DefaultModel
	}

	best := ""
	bestScore := math.Inf(1)
	for _, name := range m.candidateOrder(metricsByModel) {
		s := Score(metricsByModel[name])
		if best == "" || s < bestScore {
			best, bestScore = name, s
		}
	}
	return best
}

func (m *Manager) candidateOrder(metricsByModel map[string]forecast.Metrics) []string {
	order := make([]string, 0, len(metricsByModel))
	seen := make(map[string]bool, len(metricsByModel))
	for _, f := range m.forecasters {
		if _, ok := metricsByModel[f.Name()]; ok {
			order = append(order, f.Name())
			seen[f.Name()] = true
		}
	}
	extra := make([]string, 0)
	for name := range metricsByModel {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// Score is the selection score of one model's metrics.
func Score(mt forecast.Metrics) float64 {
	for _, key := range []string{forecast.MetricRMSE, forecast.MetricMAE, forecast.MetricAIC} {
		if v, ok := mt[key]; ok && !math.IsNaN(v) {
			return v
		}
	}
	return math.Inf(1)
}
