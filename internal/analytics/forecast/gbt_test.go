package forecast

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/soltixdb/forecaster/internal/analytics"
)

func TestGBTForecaster_Name(t *testing.T) {
	f := NewGBTForecaster(DefaultConfig())
	if f.Name() != "xgboost" {
		t.Errorf("Expected name 'xgboost', got %s", f.Name())
	}
}

func TestGBTForecaster_InsufficientData(t *testing.T) {
	f := NewGBTForecaster(DefaultConfig())
	_, err := f.Fit(newTestSeries(t, generateLinearData(7, 1, 0)), analytics.TargetColumn, nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}

	if _, err := f.Fit(newTestSeries(t, generateLinearData(8, 1, 0)), analytics.TargetColumn, nil); err != nil {
		t.Errorf("8 points should be enough for 7 lags: %v", err)
	}
}

func TestGBTForecaster_ConstantSeries(t *testing.T) {
	model, err := NewGBTForecaster(DefaultConfig()).Fit(newTestSeries(t, generateConstantData(30, 12.5)), analytics.TargetColumn, nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	pred, err := model.Predict(10, false)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for h, v := range pred.Forecast {
		if math.Abs(v-12.5) > 1e-9 {
			t.Errorf("step %d: expected 12.5, got %f", h, v)
		}
	}
}

func TestGBTForecaster_FitsTrainingData(t *testing.T) {
	model, err := NewGBTForecaster(DefaultConfig()).Fit(newTestSeries(t, generateLinearData(60, 1, 0)), analytics.TargetColumn, nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	metrics := model.Evaluate(nil)
	rmse, ok := metrics.Get(MetricRMSE)
	if !ok {
		t.Fatalf("expected rmse, got %v", metrics)
	}
	if rmse > 1 {
		t.Errorf("in-sample rmse too large: %f", rmse)
	}

	pred, err := model.Predict(5, true)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.HasIntervals() {
		t.Error("xgboost should not produce prediction intervals")
	}
	assertFinite(t, "forecast", pred.Forecast)
}

func TestGBTForecaster_Exogenous(t *testing.T) {
	values := generateSeasonalTestData(40, 7)
	series := newTestSeries(t, values)
	temp := make([]float64, len(values))
	for i := range temp {
		temp[i] = float64(i % 7)
	}
	series.Exogenous = map[string][]float64{"temp": temp}

	model, err := NewGBTForecaster(DefaultConfig()).Fit(series, analytics.TargetColumn, []string{"temp", "missing"})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	gbt := model.(*GBTModel)
	if len(gbt.Exogenous) != 1 || gbt.Exogenous[0] != "temp" {
		t.Errorf("expected only the present exogenous column, got %v", gbt.Exogenous)
	}

	pred, err := model.Predict(14, false)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(pred.Forecast) != 14 {
		t.Errorf("expected 14 forecasts, got %d", len(pred.Forecast))
	}
	assertFinite(t, "forecast", pred.Forecast)
}

func TestGBTForecaster_Deterministic(t *testing.T) {
	series := newTestSeries(t, generateNoisyLinearData(50, 0.5, 20, 2, 7))
	f := NewGBTForecaster(DefaultConfig())

	first, err := f.Fit(series, analytics.TargetColumn, nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	second, err := f.Fit(series, analytics.TargetColumn, nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	a, _ := first.State()
	b, _ := second.State()
	if !bytes.Equal(a, b) {
		t.Error("two fits on the same data should produce identical state")
	}
}

func TestGBTTree_SplitDirection(t *testing.T) {
	tree := gbtTree{Nodes: []gbtNode{
		{Feature: 0, Threshold: 5, Left: 1, Right: 2},
		{Leaf: true, Value: -1},
		{Leaf: true, Value: 1},
	}}
	if tree.predict([]float64{4.9}) != -1 {
		t.Error("values below the threshold should go left")
	}
	if tree.predict([]float64{5}) != 1 {
		t.Error("values at the threshold should go right")
	}
}
