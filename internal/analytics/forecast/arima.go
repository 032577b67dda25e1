package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/soltixdb/forecaster/internal/analytics"
	"gonum.org/v1/gonum/stat/distuv"
)

// autoSearchMinPoints is the series length above which the order search runs.
const autoSearchMinPoints = 10

// fallbackOrder is used for short series or when the search finds nothing.
var fallbackOrder = arimaOrder{p: 1, d: 1, q: 1}

type arimaOrder struct {
	p, d, q int
}

func (o arimaOrder) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.p, o.d, o.q)
}

// ARIMAForecaster implements ARIMA (AutoRegressive Integrated Moving Average) forecasting
// ARIMA(p, d, q) where:
// - p: order of autoregressive (AR) part
// - d: degree of differencing (I) to make series stationary
// - q: order of moving average (MA) part
//
// The order is chosen automatically: d by repeated KPSS tests, then (p, q)
// by a stepwise AIC search. Exogenous columns are not used by this family.
type ARIMAForecaster struct {
	MaxP       int
	MaxD       int
	MaxQ       int
	Confidence float64
}

// NewARIMAForecaster creates an ARIMA forecaster with search bounds from cfg
func NewARIMAForecaster(cfg Config) *ARIMAForecaster {
	return &ARIMAForecaster{
		MaxP:       cfg.MaxP,
		MaxD:       cfg.MaxD,
		MaxQ:       cfg.MaxQ,
		Confidence: cfg.Confidence,
	}
}

// Name returns the algorithm name
func (f *ARIMAForecaster) Name() string {
	return ModelARIMA
}

// Fit selects an order and estimates the model.
func (f *ARIMAForecaster) Fit(series *analytics.TimeSeries, target string, _ []string) (Model, error) {
	values, err := targetValues(series, target)
	if err != nil {
		return nil, err
	}

	if len(values) > autoSearchMinPoints {
		if model, err := f.search(values); err == nil {
			return model, nil
		}
	}

	model, err := fitARIMA(values, fallbackOrder, f.Confidence)
	if err != nil {
		return nil, fmt.Errorf("%s fit failed: %w", fallbackOrder, err)
	}
	return model, nil
}

// Decode restores a model saved with State.
func (f *ARIMAForecaster) Decode(state []byte) (Model, error) {
	var m ARIMAModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("failed to decode arima state: %w", err)
	}
	if len(m.AR) != m.P || len(m.MA) != m.Q || len(m.History) <= m.D {
		return nil, errors.New("arima state is inconsistent")
	}
	m.prepare()
	return &m, nil
}

// search runs the stepwise (p, q) search at a fixed d.
func (f *ARIMAForecaster) search(values []float64) (*ARIMAModel, error) {
	d := ndiffs(values, f.MaxD)

	evaluated := make(map[[2]int]bool)
	var best *ARIMAModel

	try := func(p, q int) bool {
		key := [2]int{p, q}
		if p < 0 || q < 0 || p > f.MaxP || q > f.MaxQ || evaluated[key] {
			return false
		}
		evaluated[key] = true

		model, err := fitARIMA(values, arimaOrder{p: p, d: d, q: q}, f.Confidence)
		if err != nil {
			return false
		}
		if best == nil || model.AIC < best.AIC {
			best = model
			return true
		}
		return false
	}

	for _, start := range [][2]int{{2, 2}, {0, 0}, {1, 0}, {0, 1}} {
		try(start[0], start[1])
	}
	if best == nil {
		return nil, errors.New("no candidate order could be fitted")
	}

	neighbours := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, -1}, {1, -1}, {-1, 1}}
	for improved := true; improved; {
		improved = false
		p, q := best.P, best.Q
		for _, step := range neighbours {
			if try(p+step[0], q+step[1]) {
				improved = true
			}
		}
	}
	return best, nil
}

// ARIMAModel is a fitted ARIMA(p, d, q). Coefficients apply to the
// differenced series after subtracting Intercept.
type ARIMAModel struct {
	P          int       `json:"p"`
	D          int       `json:"d"`
	Q          int       `json:"q"`
	AR         []float64 `json:"ar"`
	MA         []float64 `json:"ma"`
	Intercept  float64   `json:"intercept"`
	Sigma2     float64   `json:"sigma2"`
	AIC        float64   `json:"aic"`
	Confidence float64   `json:"confidence"`
	History    []float64 `json:"history"`

	centered  []float64
	residuals []float64
}

// fitARIMA estimates one order by Hannan-Rissanen followed by conditional
// sum-of-squares refinement.
func fitARIMA(values []float64, order arimaOrder, confidence float64) (*ARIMAModel, error) {
	p, d, q := order.p, order.d, order.q
	w := difference(values, d)
	if len(w)-p <= p+q+1 {
		return nil, fmt.Errorf("%w: %s needs more observations, got %d", ErrInsufficientData, order, len(values))
	}

	includeMean := d < 2
	mu := 0.0
	if includeMean {
		mu = analytics.Mean(w)
	}
	z := subtract(w, mu)

	phi, theta := initialEstimates(z, p, q)
	if q > 0 {
		phi, theta = refineCSS(z, phi, theta)
	}
	if !isStationary(phi) {
		return nil, fmt.Errorf("%s: non-stationary AR part", order)
	}
	if !isInvertible(theta) {
		return nil, fmt.Errorf("%s: non-invertible MA part", order)
	}

	resid := cssResiduals(z, phi, theta)
	nEff := len(z) - p
	sigma2 := sumSquares(resid[p:]) / float64(nEff)
	if sigma2 < minSigma2 {
		sigma2 = minSigma2
	}
	if math.IsNaN(sigma2) || math.IsInf(sigma2, 0) {
		return nil, fmt.Errorf("%s: residual variance is not finite", order)
	}

	k := p + q + 1
	if includeMean {
		k++
	}
	logLik := -0.5 * float64(nEff) * (math.Log(2*math.Pi*sigma2) + 1)

	history := make([]float64, len(values))
	copy(history, values)

	m := &ARIMAModel{
		P:          p,
		D:          d,
		Q:          q,
		AR:         phi,
		MA:         theta,
		Intercept:  mu,
		Sigma2:     sigma2,
		AIC:        -2*logLik + 2*float64(k),
		Confidence: confidence,
		History:    history,
	}
	m.prepare()
	return m, nil
}

// minSigma2 keeps the likelihood finite for perfectly explained series.
const minSigma2 = 1e-12

func (m *ARIMAModel) prepare() {
	if m.AR == nil {
		m.AR = []float64{}
	}
	if m.MA == nil {
		m.MA = []float64{}
	}
	m.centered = subtract(difference(m.History, m.D), m.Intercept)
	m.residuals = cssResiduals(m.centered, m.AR, m.MA)
}

// Name returns the registry name
func (m *ARIMAModel) Name() string {
	return ModelARIMA
}

// Order returns the fitted order as ARIMA(p,d,q).
func (m *ARIMAModel) Order() string {
	return arimaOrder{p: m.P, d: m.D, q: m.Q}.String()
}

// Predict forecasts horizon steps. Intervals are dropped, not failed, when
// their variance cannot be computed.
func (m *ARIMAModel) Predict(horizon int, withIntervals bool) (*Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}

	n := len(m.centered)
	z := make([]float64, n, n+horizon)
	copy(z, m.centered)
	e := make([]float64, n, n+horizon)
	copy(e, m.residuals)

	for h := 0; h < horizon; h++ {
		t := len(z)
		v := 0.0
		for i := 0; i < m.P && t-1-i >= 0; i++ {
			v += m.AR[i] * z[t-1-i]
		}
		for j := 0; j < m.Q && t-1-j >= 0; j++ {
			v += m.MA[j] * e[t-1-j]
		}
		z = append(z, v)
		e = append(e, 0)
	}

	diffForecast := make([]float64, horizon)
	for h := range diffForecast {
		diffForecast[h] = z[n+h] + m.Intercept
	}
	forecast := integrate(m.History, diffForecast, m.D)

	pred := &Prediction{Forecast: forecast}
	if withIntervals {
		if lower, upper, ok := m.intervals(forecast); ok {
			pred.Lower, pred.Upper = lower, upper
		}
	}
	return pred, nil
}

func (m *ARIMAModel) intervals(forecast []float64) ([]float64, []float64, bool) {
	confidence := m.Confidence
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfig().Confidence
	}
	zq := distuv.UnitNormal.Quantile(1 - (1-confidence)/2)

	psi := m.psiWeights(len(forecast))
	lower := make([]float64, len(forecast))
	upper := make([]float64, len(forecast))
	cum := 0.0
	for h, f := range forecast {
		cum += psi[h] * psi[h]
		se := math.Sqrt(m.Sigma2 * cum)
		if math.IsNaN(se) || math.IsInf(se, 0) || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil, false
		}
		lower[h] = f - zq*se
		upper[h] = f + zq*se
	}
	return lower, upper, true
}

// psiWeights returns the MA(infinity) weights of the integrated model,
// phi(B)(1-B)^d y = theta(B) e.
func (m *ARIMAModel) psiWeights(n int) []float64 {
	poly := []float64{1}
	for _, c := range m.AR {
		poly = append(poly, -c)
	}
	for k := 0; k < m.D; k++ {
		poly = polyMul(poly, []float64{1, -1})
	}
	phiStar := make([]float64, len(poly)-1)
	for i := 1; i < len(poly); i++ {
		phiStar[i-1] = -poly[i]
	}

	psi := make([]float64, n)
	if n == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < n; j++ {
		v := 0.0
		if j <= m.Q {
			v = m.MA[j-1]
		}
		for i := 1; i <= len(phiStar) && i <= j; i++ {
			v += phiStar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}

// fitted returns in-sample one-step predictions on the original scale, NaN
// where the conditional recursion has no prediction.
func (m *ARIMAModel) fitted() []float64 {
	out := make([]float64, len(m.History))
	for i := range out {
		out[i] = math.NaN()
	}
	for t := m.P; t < len(m.residuals); t++ {
		out[t+m.D] = m.History[t+m.D] - m.residuals[t]
	}
	return out
}

// Evaluate returns mae/rmse of the in-sample fit (or of a holdout), and
// aic when no residual-based metric is available.
func (m *ARIMAModel) Evaluate(test []float64) Metrics {
	return evaluateModel(m, m.fitted(), m.History, test, m.AIC)
}

// State serializes the model.
func (m *ARIMAModel) State() ([]byte, error) {
	return json.Marshal(m)
}

// difference applies differencing d times to make series stationary
func difference(values []float64, d int) []float64 {
	result := values
	for i := 0; i < d && len(result) > 0; i++ {
		diffed := make([]float64, len(result)-1)
		for j := 1; j < len(result); j++ {
			diffed[j-1] = result[j] - result[j-1]
		}
		result = diffed
	}
	out := make([]float64, len(result))
	copy(out, result)
	return out
}

// integrate reverses d rounds of differencing, anchoring on the end of history.
func integrate(history, diffs []float64, d int) []float64 {
	out := make([]float64, len(diffs))
	if d == 0 {
		copy(out, diffs)
		return out
	}

	levels := make([]float64, d)
	series := history
	for k := 0; k < d; k++ {
		levels[k] = series[len(series)-1]
		series = difference(series, 1)
	}
	for i, v := range diffs {
		for k := d - 1; k >= 0; k-- {
			levels[k] += v
			v = levels[k]
		}
		out[i] = v
	}
	return out
}

func subtract(values []float64, mu float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v - mu
	}
	return out
}

func sumSquares(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v * v
	}
	return s
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}
