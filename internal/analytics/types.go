// Package analytics provides the series types shared by the forecasting
// pipeline: the prepared TimeSeries, its inferred sampling Frequency and a
// handful of descriptive statistics.
package analytics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TargetColumn is the canonical name of the forecast target after preparation.
const TargetColumn = "y"

// TimeSeriesPoint represents a single time-series data point with time and value.
type TimeSeriesPoint struct {
	Time  time.Time
	Value float64
}

// TimeSeries is an ordered series with strictly increasing, unique
// timestamps. Values holds the target column; Exogenous holds optional
// regressors aligned index-by-index with Times.
type TimeSeries struct {
	Times     []time.Time
	Values    []float64
	Exogenous map[string][]float64
	Frequency Frequency
}

// NewTimeSeries builds a series and infers its frequency.
func NewTimeSeries(times []time.Time, values []float64) (*TimeSeries, error) {
	ts := &TimeSeries{Times: times, Values: values}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	ts.Frequency = InferFrequency(times)
	return ts, nil
}

// Validate checks alignment and strict ordering.
func (ts *TimeSeries) Validate() error {
	if len(ts.Times) != len(ts.Values) {
		return fmt.Errorf("times and values length mismatch: %d != %d", len(ts.Times), len(ts.Values))
	}
	for name, col := range ts.Exogenous {
		if len(col) != len(ts.Times) {
			return fmt.Errorf("exogenous column %q has %d values, expected %d", name, len(col), len(ts.Times))
		}
	}
	for i := 1; i < len(ts.Times); i++ {
		if !ts.Times[i].After(ts.Times[i-1]) {
			return fmt.Errorf("timestamps not strictly increasing at index %d", i)
		}
	}
	return nil
}

// Len returns the number of observations.
func (ts *TimeSeries) Len() int {
	return len(ts.Values)
}

// Column returns the named column. The target is addressed by TargetColumn.
func (ts *TimeSeries) Column(name string) ([]float64, bool) {
	if name == TargetColumn {
		return ts.Values, ts.Values != nil
	}
	col, ok := ts.Exogenous[name]
	return col, ok
}

// Last returns the final timestamp, or the zero time for an empty series.
func (ts *TimeSeries) Last() time.Time {
	if len(ts.Times) == 0 {
		return time.Time{}
	}
	return ts.Times[len(ts.Times)-1]
}

// Points returns the target column as (time, value) pairs.
func (ts *TimeSeries) Points() []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, len(ts.Values))
	for i, v := range ts.Values {
		points[i] = TimeSeriesPoint{Time: ts.Times[i], Value: v}
	}
	return points
}

// Mean calculates the mean of the target values.
func (ts *TimeSeries) Mean() float64 {
	return Mean(ts.Values)
}

// StdDev calculates the sample standard deviation of the target values.
func (ts *TimeSeries) StdDev() float64 {
	if len(ts.Values) < 2 {
		return 0
	}
	return stat.StdDev(ts.Values, nil)
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// LagCorrelation is the Pearson correlation between the series and itself
// shifted by lag. It returns NaN when either side has zero variance or the
// lag leaves fewer than two pairs.
func LagCorrelation(values []float64, lag int) float64 {
	if lag <= 0 || len(values)-lag < 2 {
		return math.NaN()
	}
	x := values[lag:]
	y := values[:len(values)-lag]
	if isConstant(x) || isConstant(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// Autocorrelation returns the sample ACF for lags 1..maxLag using the
// full-series mean and variance.
func Autocorrelation(values []float64, maxLag int) []float64 {
	n := len(values)
	if n == 0 || maxLag <= 0 {
		return nil
	}
	mu := Mean(values)
	var denom float64
	for _, v := range values {
		denom += (v - mu) * (v - mu)
	}
	acf := make([]float64, maxLag)
	if denom == 0 {
		return acf
	}
	for lag := 1; lag <= maxLag && lag < n; lag++ {
		var num float64
		for t := lag; t < n; t++ {
			num += (values[t] - mu) * (values[t-lag] - mu)
		}
		acf[lag-1] = num / denom
	}
	return acf
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
