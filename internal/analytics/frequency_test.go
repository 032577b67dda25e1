package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func stepTimes(n int, step time.Duration) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * step)
	}
	return times
}

func TestInferFrequency_Regular(t *testing.T) {
	tests := []struct {
		name string
		step time.Duration
		code string
	}{
		{"daily", 24 * time.Hour, "D"},
		{"hourly", time.Hour, "H"},
		{"weekly", 7 * 24 * time.Hour, "W"},
		{"quarter-hour", 15 * time.Minute, "15min"},
		{"three days", 72 * time.Hour, "3D"},
		{"seconds", 30 * time.Second, "30S"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := InferFrequency(stepTimes(30, tt.step))
			assert.Equal(t, tt.code, f.Code)
			assert.Equal(t, tt.step, f.Step)
		})
	}
}

func TestInferFrequency_OneMissingDayStaysDaily(t *testing.T) {
	times := stepTimes(31, 24*time.Hour)
	times = append(times[:12], times[13:]...)
	require.Len(t, times, 30)

	f := InferFrequency(times)
	assert.Equal(t, Daily, f)
}

func TestInferFrequency_MonthStarts(t *testing.T) {
	times := make([]time.Time, 12)
	for i := range times {
		times[i] = time.Date(2023, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
	}
	f := InferFrequency(times)
	assert.Equal(t, "M", f.Code)
	assert.Equal(t, 1, f.Months)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), f.Next(times[11]))
}

func TestInferFrequency_MonthEnds(t *testing.T) {
	times := []time.Time{
		time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC),
	}
	f := InferFrequency(times)
	assert.Equal(t, "M", f.Code)
	assert.Equal(t, time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC), f.Next(times[3]))
}

func TestInferFrequency_BusinessDays(t *testing.T) {
	// 2023-01-02 is a Monday.
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	var times []time.Time
	for d := start; len(times) < 15; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			times = append(times, d)
		}
	}
	f := InferFrequency(times)
	assert.Equal(t, BusinessDaily, f)

	// Friday 2023-01-20 rolls to Monday 2023-01-23.
	assert.Equal(t, time.Date(2023, 1, 23, 0, 0, 0, 0, time.UTC), f.Next(time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC)))
}

func TestInferFrequency_CalendarDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	times := make([]time.Time, 20)
	for i := range times {
		times[i] = time.Date(2023, 3, 1+i, 9, 0, 0, 0, loc)
	}
	f := InferFrequency(times)
	assert.Equal(t, "D", f.Code)
	assert.Equal(t, 9, f.Next(times[19]).Hour())
}

func TestInferFrequency_MedianBuckets(t *testing.T) {
	irregular := func(gaps ...time.Duration) []time.Time {
		times := []time.Time{base}
		for _, g := range gaps {
			times = append(times, times[len(times)-1].Add(g))
		}
		return times
	}

	tests := []struct {
		name  string
		times []time.Time
		want  Frequency
	}{
		{"empty", nil, Daily},
		{"single", []time.Time{base}, Daily},
		{"seconds", irregular(10*time.Second, 20*time.Second, 11*time.Second, 90*time.Second), Minutely},
		{"minutes", irregular(5*time.Minute, 7*time.Minute, 6*time.Minute, 2*time.Hour), Hourly},
		{"hours", irregular(3*time.Hour, 5*time.Hour, 4*time.Hour, 48*time.Hour), Daily},
		{"days", irregular(2*day, 3*day, 2*day, 20*day), Weekly},
		{"weeks", irregular(10*day, 14*day, 12*day, 60*day), Monthly},
		{"quarters", irregular(90*day, 91*day, 92*day, 89*day), Daily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferFrequency(tt.times))
		})
	}
}

func TestFrequency_Dates(t *testing.T) {
	last := time.Date(2023, 2, 19, 0, 0, 0, 0, time.UTC)
	dates := Daily.Dates(last, 7)
	require.Len(t, dates, 7)
	assert.Equal(t, last.AddDate(0, 0, 1), dates[0])
	assert.Equal(t, last.AddDate(0, 0, 7), dates[6])

	assert.Nil(t, Daily.Dates(last, 0))
	assert.Equal(t, last.Add(time.Hour), Hourly.Next(last))
}

func TestTimeSeries_Validate(t *testing.T) {
	_, err := NewTimeSeries(stepTimes(3, time.Hour), []float64{1, 2})
	assert.Error(t, err)

	times := stepTimes(3, time.Hour)
	times[2] = times[1]
	_, err = NewTimeSeries(times, []float64{1, 2, 3})
	assert.Error(t, err)

	ts, err := NewTimeSeries(stepTimes(3, time.Hour), []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, Hourly, ts.Frequency)
	assert.InDelta(t, 2.0, ts.Mean(), 1e-12)
	assert.InDelta(t, 1.0, ts.StdDev(), 1e-12)

	col, ok := ts.Column(TargetColumn)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, col)
	_, ok = ts.Column("price")
	assert.False(t, ok)
}

func TestLagCorrelation(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = math.Sin(2 * math.Pi * float64(i) / 7)
	}
	assert.InDelta(t, 1.0, LagCorrelation(values, 7), 1e-9)
	assert.True(t, math.IsNaN(LagCorrelation([]float64{3, 3, 3, 3}, 1)))
	assert.True(t, math.IsNaN(LagCorrelation(values, 39)))
}
