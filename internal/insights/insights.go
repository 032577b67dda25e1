// Package insights writes the plain-language summary attached to a
// completed forecast.
package insights

import (
	"fmt"
	"math"
	"strings"

	"github.com/soltixdb/forecaster/internal/analytics"
	"github.com/soltixdb/forecaster/internal/analytics/forecast"
)

// Fallback is returned when no section applies.
const Fallback = "Forecast analysis completed successfully."

const (
	trendWindow         = 10
	seasonalityMinLen   = 14
	seasonalityMaxLag   = 14
	strongSeasonality   = 0.5
	moderateSeasonality = 0.3
	highConfidenceWidth = 10.0
	moderateConfWidth   = 25.0
	highlyReliableError = 5.0
	reliableError       = 15.0
)

// Input is everything the generator looks at. Models lists the attempted
// models in registration order; Lower and Upper are nil without intervals.
type Input struct {
	History  []float64
	Forecast []float64
	Lower    []float64
	Upper    []float64
	Metrics  map[string]forecast.Metrics
	Models   []string
	Best     string
}

// Generate returns the sections that apply, separated by blank lines.
func Generate(in Input) string {
	parts := make([]string, 0, 5)
	for _, section := range []func(Input) (string, bool){trend, seasonality, confidence, reliability, comparison} {
		if s, ok := section(in); ok {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return Fallback
	}
	return strings.Join(parts, "\n\n")
}

// TrendLabel classifies the direction of the history and the forecast.
func TrendLabel(history, fc []float64) string {
	var recent float64
	n := len(history)
	if n >= 2*trendWindow {
		recent = analytics.Mean(history[n-trendWindow:]) - analytics.Mean(history[n-2*trendWindow:n-trendWindow])
	} else if n > 0 {
		recent = history[n-1] - history[0]
	}
	ahead := 0.0
	if len(fc) > 1 {
		ahead = fc[len(fc)-1] - fc[0]
	}

	switch {
	case recent > 0 && ahead > 0:
		return "upward trend"
	case recent < 0 && ahead < 0:
		return "downward trend"
	case ahead > 0:
		return "recovery to upward trend"
	case ahead < 0:
		return "shift to downward trend"
	default:
		return "stable trend"
	}
}

func trend(in Input) (string, bool) {
	if len(in.History) < 2 {
		return "", false
	}
	return fmt.Sprintf("📈 **Trend Direction:** The data shows a %s. The forecast continues this pattern.",
		TrendLabel(in.History, in.Forecast)), true
}

// MaxAutocorrelation is the largest absolute lag correlation over lags
// 1..min(14, n/2). Undefined lags are skipped; 0 when none is defined.
func MaxAutocorrelation(history []float64) float64 {
	maxLag := len(history) / 2
	if maxLag > seasonalityMaxLag {
		maxLag = seasonalityMaxLag
	}
	best := 0.0
	for lag := 1; lag <= maxLag; lag++ {
		c := analytics.LagCorrelation(history, lag)
		if math.IsNaN(c) {
			continue
		}
		best = math.Max(best, math.Abs(c))
	}
	return best
}

func seasonality(in Input) (string, bool) {
	if len(in.History) < seasonalityMinLen {
		return "", false
	}
	ac := MaxAutocorrelation(in.History)
	desc := "Weak or no seasonal patterns"
	switch {
	case ac > strongSeasonality:
		desc = "Strong seasonal patterns"
	case ac > moderateSeasonality:
		desc = "Moderate seasonal patterns"
	}
	return fmt.Sprintf("🔄 **Seasonality:** %s detected in the historical data.", desc), true
}

// RelativeWidth is the mean interval width as a percentage of the mean
// forecast, 0 when the mean forecast is 0.
func RelativeWidth(fc, lower, upper []float64) float64 {
	n := len(lower)
	if len(upper) < n {
		n = len(upper)
	}
	if n == 0 {
		return 0
	}
	width := 0.0
	for i := 0; i < n; i++ {
		width += upper[i] - lower[i]
	}
	width /= float64(n)
	avg := analytics.Mean(fc)
	if avg == 0 {
		return 0
	}
	return width / avg * 100
}

func confidence(in Input) (string, bool) {
	if in.Lower == nil || in.Upper == nil {
		return "", false
	}
	rel := RelativeWidth(in.Forecast, in.Lower, in.Upper)
	desc := "Lower confidence"
	switch {
	case rel < highConfidenceWidth:
		desc = "High confidence"
	case rel < moderateConfWidth:
		desc = "Moderate confidence"
	}
	return fmt.Sprintf("🎯 **Forecast Confidence:** %s with an average confidence interval width of %.1f%%.", desc, rel), true
}

func reliability(in Input) (string, bool) {
	rmse, ok := in.Metrics[in.Best].Get(forecast.MetricRMSE)
	if !ok || rmse <= 0 {
		return "", false
	}
	rel := 0.0
	if avg := analytics.Mean(in.History); avg != 0 {
		rel = rmse / avg * 100
	}
	desc := "moderately reliable"
	switch {
	case rel < highlyReliableError:
		desc = "highly reliable"
	case rel < reliableError:
		desc = "reliable"
	}
	name := strings.ToUpper(in.Best)
	if name == "" {
		name = "Selected"
	}
	return fmt.Sprintf("✅ **Model Reliability:** The %s model shows %s performance with a %.1f%% average error.", name, desc, rel), true
}

func comparison(in Input) (string, bool) {
	if len(in.Models) <= 1 {
		return "", false
	}
	names := make([]string, len(in.Models))
	for i, m := range in.Models {
		names[i] = strings.ToUpper(m)
	}
	return fmt.Sprintf("🔬 **Model Comparison:** Compared %s. %s was selected as the best performing model.",
		strings.Join(names, ", "), strings.ToUpper(in.Best)), true
}
