package downsampling

import (
	"math"
	"sort"
	"testing"
	"time"
)

func sineSeries(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Sin(float64(i) * 0.05)
	}
	return values
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		mode  string
		valid bool
	}{
		{"none", true},
		{"auto", true},
		{"lttb", true},
		{"minmax", true},
		{"m4", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			if got := IsValid(tt.mode); got != tt.valid {
				t.Errorf("IsValid(%q) = %v, want %v", tt.mode, got, tt.valid)
			}
		})
	}
}

func TestIndices_BelowThreshold(t *testing.T) {
	if idx := Indices(sineSeries(50), ModeAuto, 100); idx != nil {
		t.Errorf("expected nil for short series, got %d indices", len(idx))
	}
	if idx := Indices(sineSeries(500), ModeNone, 100); idx != nil {
		t.Errorf("expected nil for ModeNone, got %d indices", len(idx))
	}
}

func TestLTTB(t *testing.T) {
	values := sineSeries(1000)
	idx := Indices(values, ModeLTTB, 100)

	if len(idx) != 100 {
		t.Fatalf("expected 100 points, got %d", len(idx))
	}
	if idx[0] != 0 || idx[len(idx)-1] != len(values)-1 {
		t.Errorf("first and last points must be kept, got %d and %d", idx[0], idx[len(idx)-1])
	}
	if !sort.IntsAreSorted(idx) {
		t.Error("indices must be ascending")
	}
}

func TestMinMax_KeepsExtremes(t *testing.T) {
	values := make([]float64, 400)
	values[123] = 50
	values[321] = -50

	idx := Indices(values, ModeMinMax, 20)
	var sawMax, sawMin bool
	for _, i := range idx {
		sawMax = sawMax || i == 123
		sawMin = sawMin || i == 321
	}
	if !sawMax || !sawMin {
		t.Errorf("spikes lost: max=%v min=%v", sawMax, sawMin)
	}
	if !sort.IntsAreSorted(idx) {
		t.Error("indices must be ascending")
	}
}

func TestSpikiness(t *testing.T) {
	if s := Spikiness(make([]float64, 100)); s != 0 {
		t.Errorf("constant series spikiness = %v, want 0", s)
	}

	alternating := make([]float64, 100)
	for i := range alternating {
		if i%2 == 0 {
			alternating[i] = 10
		}
	}
	if s := Spikiness(alternating); s <= spikinessThreshold {
		t.Errorf("alternating series spikiness = %v, want > %v", s, spikinessThreshold)
	}
}

func TestApply(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	values := sineSeries(300)
	times := make([]time.Time, len(values))
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}

	outTimes, outValues := Apply(times, values, ModeLTTB, 50)
	if len(outTimes) != 50 || len(outValues) != 50 {
		t.Fatalf("expected 50 points, got %d/%d", len(outTimes), len(outValues))
	}
	if !outTimes[0].Equal(start) || !outTimes[49].Equal(times[299]) {
		t.Error("endpoints not preserved")
	}
}
