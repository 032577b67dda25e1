package utils

import (
	"math"
	"testing"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{"integer", "42", 42, true},
		{"decimal", "3.14", 3.14, true},
		{"negative", "-2.5", -2.5, true},
		{"exponent", "1e3", 1000, true},
		{"padded", "  7 ", 7, true},

		// Missing markers
		{"empty", "", 0, false},
		{"blank", "   ", 0, false},
		{"NaN", "NaN", 0, false},
		{"null", "null", 0, false},
		{"NA", "NA", 0, false},
		{"dash", "-", 0, false},

		// Invalid
		{"text", "hello", 0, false},
		{"infinity", "Inf", 0, false},
		{"thousands separator", "1,000", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ParseFloat(tt.input)

			if ok != tt.ok {
				t.Errorf("ParseFloat(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if result != tt.expected {
				t.Errorf("ParseFloat(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRound(t *testing.T) {
	if got := Round(0.9500001, 2); got != 0.95 {
		t.Errorf("Round = %v, want 0.95", got)
	}
	if got := Round(0.15, 2); got != 0.15 {
		t.Errorf("Round = %v, want 0.15", got)
	}
}

func TestAllFinite(t *testing.T) {
	if AllFinite([]float64{1, math.NaN()}) {
		t.Error("expected false for slice containing NaN")
	}
	if AllFinite([]float64{math.Inf(-1)}) {
		t.Error("expected false for slice containing -Inf")
	}
	if !AllFinite([]float64{1, 2}) || !AllFinite(nil) {
		t.Error("expected true for finite slices")
	}
}
