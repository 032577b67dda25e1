package modelmanager

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/soltixdb/forecaster/internal/analytics"
	"github.com/soltixdb/forecaster/internal/analytics/forecast"
	"github.com/soltixdb/forecaster/internal/compression"
	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearSeries(t *testing.T, n int) *analytics.TimeSeries {
	t.Helper()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	values := make([]float64, n)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
		values[i] = 100 + 2*float64(i) + 3*math.Sin(float64(i))
	}
	ts, err := analytics.NewTimeSeries(times, values)
	require.NoError(t, err)
	return ts
}

// mismatchForecaster fits its inner forecaster against a column that does
// not exist.
type mismatchForecaster struct {
	forecast.Forecaster
}

func (f mismatchForecaster) Fit(series *analytics.TimeSeries, _ string, exogenous []string) (forecast.Model, error) {
	return f.Forecaster.Fit(series, "no_such_column", exogenous)
}

type panicForecaster struct {
	forecast.Forecaster
}

func (f panicForecaster) Fit(*analytics.TimeSeries, string, []string) (forecast.Model, error) {
	panic("boom")
}

func newManager(forecasters ...forecast.Forecaster) *Manager {
	return New(forecasters, compression.Snappy, logging.Nop())
}

func TestNames_RegistrationOrder(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())
	assert.Equal(t, []string{"arima", "ets", "xgboost"}, m.Names())
}

func TestFitAll_AllModels(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())

	outcome, err := m.FitAll(context.Background(), linearSeries(t, 60), analytics.TargetColumn, nil)
	require.NoError(t, err)

	require.Len(t, outcome.Results, 3)
	for i, name := range m.Names() {
		assert.Equal(t, name, outcome.Results[i].Name)
		assert.True(t, outcome.Results[i].OK(), "model %s failed: %v", name, outcome.Results[i].Err)
	}
	assert.Empty(t, outcome.Failed())
}

func TestFitAll_OneBrokenModel(t *testing.T) {
	cfg := forecast.DefaultConfig()
	m := newManager(
		forecast.NewARIMAForecaster(cfg),
		mismatchForecaster{forecast.NewETSForecaster()},
		forecast.NewGBTForecaster(cfg),
	)

	outcome, err := m.FitAll(context.Background(), linearSeries(t, 40), analytics.TargetColumn, nil)
	require.NoError(t, err)

	fitted := outcome.Fitted()
	require.Len(t, fitted, 2)
	assert.Equal(t, "arima", fitted[0].Name)
	assert.Equal(t, "xgboost", fitted[1].Name)

	failed := outcome.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "ets", failed[0].Name)
	assert.ErrorIs(t, failed[0].Err, analytics.ErrColumnNotFound)

	_, ok := outcome.Model("ets")
	assert.False(t, ok)
}

func TestFitAll_AllBroken(t *testing.T) {
	cfg := forecast.DefaultConfig()
	m := newManager(
		mismatchForecaster{forecast.NewARIMAForecaster(cfg)},
		mismatchForecaster{forecast.NewETSForecaster()},
		panicForecaster{forecast.NewGBTForecaster(cfg)},
	)

	outcome, err := m.FitAll(context.Background(), linearSeries(t, 40), analytics.TargetColumn, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoModelsFitted)
	assert.Contains(t, err.Error(), "panic while fitting xgboost")
	assert.Len(t, outcome.Failed(), 3)
}

func TestFitAll_CancelledContext(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.FitAll(ctx, linearSeries(t, 30), analytics.TargetColumn, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFit_SingleModel(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())

	model, err := m.Fit(context.Background(), "ets", linearSeries(t, 30), analytics.TargetColumn, nil)
	require.NoError(t, err)
	assert.Equal(t, "ets", model.Name())

	_, err = m.Fit(context.Background(), "prophet", linearSeries(t, 30), analytics.TargetColumn, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelNotAvailable))
	assert.Contains(t, err.Error(), "prophet")
}

func TestCompareModels(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())
	outcome, err := m.FitAll(context.Background(), linearSeries(t, 60), analytics.TargetColumn, nil)
	require.NoError(t, err)

	byModel := m.CompareModels(outcome.Fitted())
	require.Len(t, byModel, 3)
	for name, mt := range byModel {
		rmse, ok := mt.Get(forecast.MetricRMSE)
		require.True(t, ok, "%s has no rmse", name)
		assert.GreaterOrEqual(t, rmse, 0.0)
	}

	best := m.SelectBest(byModel)
	assert.Contains(t, m.Names(), best)
}

func TestSelectBest(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())

	tests := []struct {
		name    string
		metrics map[string]forecast.Metrics
		want    string
	}{
		{"empty defaults to arima", map[string]forecast.Metrics{}, "arima"},
		{"nil defaults to arima", nil, "arima"},
		{
			"lowest rmse",
			map[string]forecast.Metrics{
				"arima":   {"rmse": 3, "mae": 1},
				"ets":     {"rmse": 2, "mae": 5},
				"xgboost": {"rmse": 4},
			},
			"ets",
		},
		{
			"tie goes to registration order",
			map[string]forecast.Metrics{
				"xgboost": {"rmse": 1},
				"ets":     {"rmse": 1},
			},
			"ets",
		},
		{
			"falls back to mae then aic",
			map[string]forecast.Metrics{
				"arima": {"aic": 150},
				"ets":   {"mae": 200},
			},
			"arima",
		},
		{
			"missing metrics are worst",
			map[string]forecast.Metrics{
				"arima":   {},
				"xgboost": {"rmse": 1e9},
			},
			"xgboost",
		},
		{
			"all missing keeps first registered",
			map[string]forecast.Metrics{
				"xgboost": {},
				"ets":     {},
			},
			"ets",
		},
		{
			"unregistered names rank last on ties",
			map[string]forecast.Metrics{
				"custom":  {"rmse": 1},
				"xgboost": {"rmse": 1},
			},
			"xgboost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				assert.Equal(t, tt.want, m.SelectBest(tt.metrics))
			}
		})
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 2.0, Score(forecast.Metrics{"rmse": 2, "mae": 1, "aic": 0}))
	assert.Equal(t, 1.0, Score(forecast.Metrics{"mae": 1, "aic": 0}))
	assert.Equal(t, -5.0, Score(forecast.Metrics{"aic": -5}))
	assert.True(t, math.IsInf(Score(forecast.Metrics{"rmse": math.NaN()}), 1))
	assert.True(t, math.IsInf(Score(nil), 1))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m := NewDefault(forecast.DefaultConfig(), logging.Nop())
	outcome, err := m.FitAll(context.Background(), linearSeries(t, 50), analytics.TargetColumn, nil)
	require.NoError(t, err)

	for _, r := range outcome.Fitted() {
		t.Run(r.Name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model_"+r.Name+".bin")
			require.NoError(t, m.SaveFile(r.Model, path))

			loaded, err := m.LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, r.Name, loaded.Name())

			want, err := r.Model.Predict(7, true)
			require.NoError(t, err)
			got, err := loaded.Predict(7, true)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want.Forecast, got.Forecast, 1e-9)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	m := newManager(forecast.NewETSForecaster())

	_, err := m.Load(nil)
	assert.ErrorIs(t, err, compression.ErrEmptyFrame)

	blob, err := compression.Encode(compression.Snappy, []byte(`{"name":"arima","state":"e30="}`))
	require.NoError(t, err)
	_, err = m.Load(blob)
	assert.ErrorIs(t, err, ErrModelNotAvailable)

	blob, err = compression.Encode(compression.None, []byte(`not json`))
	require.NoError(t, err)
	_, err = m.Load(blob)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Forecast

	m, err := NewFromConfig(cfg, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"arima", "ets", "xgboost"}, m.Names())

	cfg.ModelCompression = "zstd"
	_, err = NewFromConfig(cfg, logging.Nop())
	assert.Error(t, err)
}
