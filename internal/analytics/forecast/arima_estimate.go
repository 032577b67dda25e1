package forecast

import (
	"math"
	"math/cmplx"

	"github.com/soltixdb/forecaster/internal/analytics"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// kpssCritical5 is the 5% critical value of the KPSS level-stationarity test.
const kpssCritical5 = 0.463

// ndiffs returns the number of differences needed for the KPSS test to stop
// rejecting level stationarity, capped at maxD.
func ndiffs(values []float64, maxD int) int {
	x := values
	for d := 0; d < maxD; d++ {
		if len(x) < 3 || kpssStatistic(x) < kpssCritical5 {
			return d
		}
		next := difference(x, 1)
		if len(next) < autoSearchMinPoints {
			return d
		}
		x = next
	}
	return maxD
}

// kpssStatistic computes the KPSS level statistic with a Bartlett-weighted
// long-run variance. A constant series scores 0.
func kpssStatistic(x []float64) float64 {
	n := len(x)
	e := subtract(x, analytics.Mean(x))

	var partial, eta float64
	for _, v := range e {
		partial += v
		eta += partial * partial
	}
	eta /= float64(n) * float64(n)

	lags := int(3 * math.Sqrt(float64(n)) / 13)
	lrv := sumSquares(e) / float64(n)
	for l := 1; l <= lags; l++ {
		w := 1 - float64(l)/float64(lags+1)
		cov := 0.0
		for t := l; t < n; t++ {
			cov += e[t] * e[t-l]
		}
		lrv += 2 * w * cov / float64(n)
	}
	if lrv <= 0 {
		return 0
	}
	return eta / lrv
}

// initialEstimates returns starting coefficients for the centered,
// differenced series z.
func initialEstimates(z []float64, p, q int) ([]float64, []float64) {
	theta := make([]float64, q)
	if p == 0 && q == 0 {
		return []float64{}, theta
	}

	if q == 0 {
		if phi, err := olsAR(z, p); err == nil && isStationary(phi) {
			return phi, theta
		}
		return yuleWalker(z, p), theta
	}

	if phi, th, err := hannanRissanen(z, p, q); err == nil && isStationary(phi) && isInvertible(th) {
		return phi, th
	}
	return yuleWalker(z, p), theta
}

// olsAR regresses z[t] on its p previous values.
func olsAR(z []float64, p int) ([]float64, error) {
	rows := len(z) - p
	if rows <= p {
		return nil, ErrInsufficientData
	}
	x := mat.NewDense(rows, p, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + p
		for i := 0; i < p; i++ {
			x.Set(r, i, z[t-1-i])
		}
		y.SetVec(r, z[t])
	}
	return leastSquares(x, y)
}

// hannanRissanen estimates ARMA(p, q) in two regressions: a long AR fit to
// recover the innovations, then z[t] on lagged z and lagged innovations.
func hannanRissanen(z []float64, p, q int) ([]float64, []float64, error) {
	m := len(z)
	k := int(math.Min(float64(m)/4, 10*math.Log10(float64(m))))
	if k < p+q {
		k = p + q
	}

	long, err := olsAR(z, k)
	if err != nil {
		return nil, nil, err
	}
	e := make([]float64, m)
	for t := k; t < m; t++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += long[i] * z[t-1-i]
		}
		e[t] = z[t] - pred
	}

	start := k + q
	if p > start {
		start = p
	}
	rows := m - start
	if rows <= p+q {
		return nil, nil, ErrInsufficientData
	}

	x := mat.NewDense(rows, p+q, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + start
		for i := 0; i < p; i++ {
			x.Set(r, i, z[t-1-i])
		}
		for j := 0; j < q; j++ {
			x.Set(r, p+j, e[t-1-j])
		}
		y.SetVec(r, z[t])
	}
	beta, err := leastSquares(x, y)
	if err != nil {
		return nil, nil, err
	}
	return beta[:p], beta[p:], nil
}

func leastSquares(x *mat.Dense, y *mat.VecDense) ([]float64, error) {
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, err
	}
	out := make([]float64, beta.Len())
	for i := range out {
		v := beta.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrInsufficientData
		}
		out[i] = v
	}
	return out, nil
}

// yuleWalker estimates AR coefficients from the sample autocorrelations.
func yuleWalker(z []float64, p int) []float64 {
	phi := levinsonDurbin(analytics.Autocorrelation(z, p), p)
	if len(phi) < p {
		phi = append(phi, make([]float64, p-len(phi))...)
	}
	return phi
}

// levinsonDurbin solves Yule-Walker equations using Levinson-Durbin algorithm
func levinsonDurbin(acf []float64, p int) []float64 {
	if len(acf) == 0 || p == 0 {
		return []float64{}
	}
	if len(acf) < p {
		p = len(acf)
	}

	phi := make([][]float64, p+1)
	for i := range phi {
		phi[i] = make([]float64, p+1)
	}

	phi[1][1] = acf[0]
	v := 1 - acf[0]*acf[0]

	for k := 2; k <= p; k++ {
		if v == 0 {
			break
		}
		num := acf[k-1]
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-1-j]
		}
		phi[k][k] = num / v
		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}
		v *= 1 - phi[k][k]*phi[k][k]
	}

	result := make([]float64, p)
	for i := 1; i <= p; i++ {
		result[i-1] = phi[p][i]
	}
	return result
}

// cssResiduals runs the conditional recursion with zero pre-sample errors.
// Residuals before index p are zero.
func cssResiduals(z, phi, theta []float64) []float64 {
	p, q := len(phi), len(theta)
	e := make([]float64, len(z))
	for t := p; t < len(z); t++ {
		pred := 0.0
		for i := 0; i < p; i++ {
			pred += phi[i] * z[t-1-i]
		}
		for j := 0; j < q && t-1-j >= 0; j++ {
			pred += theta[j] * e[t-1-j]
		}
		e[t] = z[t] - pred
	}
	return e
}

// cssPenalty replaces the objective outside the stationary and invertible region.
const cssPenalty = 1e300

// refineCSS minimizes the conditional sum of squares with Nelder-Mead,
// starting from the given estimates. The start is returned unchanged when
// the search does not improve on it.
func refineCSS(z, phi, theta []float64) ([]float64, []float64) {
	p, q := len(phi), len(theta)
	if !isStationary(phi) || !isInvertible(theta) {
		phi, theta = yuleWalker(z, p), make([]float64, q)
	}

	objective := func(x []float64) float64 {
		ph, th := x[:p], x[p:]
		if !isStationary(ph) || !isInvertible(th) {
			return cssPenalty
		}
		css := sumSquares(cssResiduals(z, ph, th)[p:])
		if math.IsNaN(css) || math.IsInf(css, 0) {
			return cssPenalty
		}
		return css
	}

	x0 := append(append([]float64{}, phi...), theta...)
	start := objective(x0)

	settings := &optimize.Settings{
		FuncEvaluations: 400 * (p + q),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 50,
		},
	}
	result, _ := optimize.Minimize(optimize.Problem{Func: objective}, x0, settings, &optimize.NelderMead{})
	if result == nil || result.F >= start {
		return phi, theta
	}

	best := append([]float64{}, result.X...)
	return best[:p], best[p:]
}

// isStationary reports whether all roots of 1 - c1 B - ... - cp B^p lie
// outside the unit circle.
func isStationary(c []float64) bool {
	return rootsOutsideUnitCircle(c)
}

// isInvertible checks the MA polynomial 1 + t1 B + ... + tq B^q.
func isInvertible(theta []float64) bool {
	neg := make([]float64, len(theta))
	for i, t := range theta {
		neg[i] = -t
	}
	return rootsOutsideUnitCircle(neg)
}

// rootsOutsideUnitCircle tests the companion matrix eigenvalues of
// 1 - c1 B - ... - cn B^n for modulus below one.
func rootsOutsideUnitCircle(c []float64) bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	n := len(c)
	switch n {
	case 0:
		return true
	case 1:
		return math.Abs(c[0]) < 1
	}

	companion := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		companion.Set(0, j, c[j])
	}
	for i := 1; i < n; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1 {
			return false
		}
	}
	return true
}
