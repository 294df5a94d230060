// Package stats implements the Statistics Kernel (C5): pure functions
// over finite-length real sequences used by Pair Analytics. Grounded
// on original_source/analytics/{regression,statistics,stationarity}.py
// for exact semantics (OLS with intercept, rolling mean/std with
// n-1 denominator, z-score, ADF with AIC lag selection), reimplemented
// on top of gonum.org/v1/gonum/stat and mat since nothing in the
// example pack implements cointegration statistics natively.
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// OLSResult is the output of a simple linear regression with
// intercept (spec §4.5).
type OLSResult struct {
	Intercept float64
	Slope     float64
	RSquared  float64
	PValue    float64
	StdErr    float64
}

// OLS regresses y on x with an intercept. Rows containing a non-finite
// value in either series are dropped before fitting (spec §4.5 missing
// data policy). Requires >=2 paired observations after cleaning; ok is
// false otherwise.
func OLS(y, x []float64) (OLSResult, bool) {
	ys, xs := cleanPair(y, x)
	n := len(xs)
	if n < 2 {
		return OLSResult{}, false
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)

	res := OLSResult{Intercept: alpha, Slope: beta, RSquared: r2}

	dof := n - 2
	if dof <= 0 {
		return res, true
	}

	xbar := stat.Mean(xs, nil)
	var sse, sxx float64
	for i := range xs {
		e := ys[i] - (alpha + beta*xs[i])
		sse += e * e
		d := xs[i] - xbar
		sxx += d * d
	}
	if sxx == 0 {
		return res, true
	}

	sigma2 := sse / float64(dof)
	seBeta := math.Sqrt(sigma2 / sxx)
	res.StdErr = seBeta
	if seBeta > 0 {
		t := beta / seBeta
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
		res.PValue = 2 * (1 - dist.CDF(math.Abs(t)))
	}
	return res, true
}

// RollingOLSPoint is one windowed OLS fit, indexed by the position of
// the last observation in its window.
type RollingOLSPoint struct {
	Index     int
	Intercept float64
	Slope     float64
	RSquared  float64
}

// RollingOLS fits OLS(y, x) over every window of width w, for
// i >= w-1 (spec §4.5).
func RollingOLS(y, x []float64, w int) []RollingOLSPoint {
	n := len(y)
	if w <= 0 || n < w || len(x) < w {
		return nil
	}
	out := make([]RollingOLSPoint, 0, n-w+1)
	for i := w - 1; i < n; i++ {
		res, ok := OLS(y[i-w+1:i+1], x[i-w+1:i+1])
		if !ok {
			continue
		}
		out = append(out, RollingOLSPoint{Index: i, Intercept: res.Intercept, Slope: res.Slope, RSquared: res.RSquared})
	}
	return out
}

// Returns computes simple period-over-period returns, dropping the
// first (undefined) value.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}

// LogReturns computes log returns, dropping the first (undefined)
// value.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prev))
	}
	return out
}

// RollingMeanStd computes the rolling mean and sample standard
// deviation (denominator n-1) over windows of width w. Indices < w-1
// hold NaN (spec §4.5).
func RollingMeanStd(series []float64, w int) (means, stds []float64) {
	n := len(series)
	means = make([]float64, n)
	stds = make([]float64, n)
	for i := range means {
		means[i] = math.NaN()
		stds[i] = math.NaN()
	}
	if w <= 0 {
		return means, stds
	}
	for i := w - 1; i < n; i++ {
		window := series[i-w+1 : i+1]
		mean, std := stat.MeanStdDev(window, nil)
		means[i] = mean
		stds[i] = std
	}
	return means, stds
}

// RollingCorrelation computes the Pearson correlation of x and y over
// windows of width w, aligned index-for-index. Indices < w-1 hold NaN.
func RollingCorrelation(x, y []float64, w int) []float64 {
	n := len(x)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if w <= 0 || len(y) < n {
		return out
	}
	for i := w - 1; i < n; i++ {
		xWin := x[i-w+1 : i+1]
		yWin := y[i-w+1 : i+1]
		out[i] = stat.Correlation(xWin, yWin, nil)
	}
	return out
}

// Correlation computes the Pearson correlation between x and y over
// their full (already-aligned) length. ok is false for fewer than 2
// paired observations after cleaning.
func Correlation(x, y []float64) (float64, bool) {
	xs, ys := cleanPair(x, y)
	if len(xs) < 2 {
		return 0, false
	}
	return stat.Correlation(xs, ys, nil), true
}

// ZScore computes (x - rolling_mean) / rolling_std over windows of
// width w, dropping entries where the window isn't yet full or the
// result is non-finite (spec §4.5).
func ZScore(series []float64, w int) []float64 {
	means, stds := RollingMeanStd(series, w)
	out := make([]float64, 0, len(series))
	for i, v := range series {
		if math.IsNaN(means[i]) || math.IsNaN(stds[i]) || stds[i] == 0 {
			continue
		}
		z := (v - means[i]) / stds[i]
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		out = append(out, z)
	}
	return out
}

// ADFResult is the output of an augmented Dickey-Fuller test.
type ADFResult struct {
	Statistic    float64
	PValue       float64
	UsedLag      int
	NObs         int
	Critical1    float64
	Critical5    float64
	Critical10   float64
	IsStationary bool
	Err          error
}

// Asymptotic MacKinnon critical values for the constant-only ADF
// regression (no trend term), used as fixed Critical1/5/10 fields.
const (
	adfCritical1  = -3.4335
	adfCritical5  = -2.8621
	adfCritical10 = -2.5671
)

// ADF runs an augmented Dickey-Fuller test with AIC lag selection, max
// lag floor((n-1)^(1/3)) unless maxLag > 0 overrides it. Requires >=10
// cleaned observations; ok is false otherwise. Numerical failure is
// reported via Err rather than as a Go error return (spec §4.5, §7).
func ADF(series []float64, maxLag int) (ADFResult, bool) {
	clean := dropNonFinite(series)
	n := len(clean)
	if n < 10 {
		return ADFResult{}, false
	}

	if maxLag <= 0 {
		maxLag = int(math.Floor(math.Cbrt(float64(n - 1))))
	}
	if maxLag < 0 {
		maxLag = 0
	}

	var best *adfFit
	bestLag := 0
	bestAIC := math.Inf(1)
	var lastErr error

	for lag := 0; lag <= maxLag; lag++ {
		fit, err := adfRegression(clean, lag)
		if err != nil {
			lastErr = err
			continue
		}
		if fit.aic < bestAIC {
			bestAIC = fit.aic
			best = fit
			bestLag = lag
		}
	}

	if best == nil {
		err := lastErr
		if err == nil {
			err = errors.New("adf: no lag produced a usable fit")
		}
		return ADFResult{Err: err}, true
	}

	pValue := approxADFPValue(best.statistic)
	return ADFResult{
		Statistic:    best.statistic,
		PValue:       pValue,
		UsedLag:      bestLag,
		NObs:         best.nobs,
		Critical1:    adfCritical1,
		Critical5:    adfCritical5,
		Critical10:   adfCritical10,
		IsStationary: pValue < 0.05,
	}, true
}

type adfFit struct {
	statistic float64
	aic       float64
	nobs      int
}

// adfRegression fits Δy_t = α + β·y_{t-1} + Σ γ_i·Δy_{t-i} + ε_t for
// the given lag order and returns the t-statistic on β.
func adfRegression(y []float64, lag int) (*adfFit, error) {
	n := len(y)
	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = y[i] - y[i-1]
	}

	rows := len(diff) - lag
	numParams := 2 + lag // constant, lagged level, `lag` lagged differences
	if rows < numParams+1 {
		return nil, errors.New("adf: insufficient observations for lag order")
	}

	X := mat.NewDense(rows, numParams, nil)
	Y := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		t := lag + i
		Y.SetVec(i, diff[t])
		X.Set(i, 0, 1.0)
		X.Set(i, 1, y[t])
		for l := 0; l < lag; l++ {
			X.Set(i, 2+l, diff[t-1-l])
		}
	}

	var beta mat.Dense
	if err := beta.Solve(X, Y); err != nil {
		return nil, err
	}

	var fitted mat.VecDense
	fitted.MulVec(X, beta.ColView(0))

	var sse float64
	for i := 0; i < rows; i++ {
		e := Y.AtVec(i) - fitted.AtVec(i)
		sse += e * e
	}
	if rows <= numParams {
		return nil, errors.New("adf: no residual degrees of freedom")
	}
	sigma2 := sse / float64(rows-numParams)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, err
	}
	varBeta := xtxInv.At(1, 1) * sigma2
	if varBeta <= 0 {
		return nil, errors.New("adf: non-positive variance estimate")
	}
	seBeta := math.Sqrt(varBeta)
	statistic := beta.At(1, 0) / seBeta

	aic := float64(rows)*math.Log(sse/float64(rows)) + 2*float64(numParams)

	return &adfFit{statistic: statistic, aic: aic, nobs: rows}, nil
}

// approxADFPValue interpolates an approximate p-value for an ADF test
// statistic from a fixed response table of (statistic, p) anchor
// points. Real finite-sample MacKinnon p-values require a response
// surface regression beyond what's worth hand-rolling here; this gives
// a monotonic, reasonable approximation for the is_stationary decision.
func approxADFPValue(statistic float64) float64 {
	type anchor struct {
		stat float64
		p    float64
	}
	table := []anchor{
		{-5.00, 0.0001},
		{-4.00, 0.0010},
		{adfCritical1, 0.01},
		{-3.12, 0.025},
		{adfCritical5, 0.05},
		{adfCritical10, 0.10},
		{-1.95, 0.30},
		{-1.60, 0.50},
		{-1.00, 0.75},
		{0.00, 0.95},
		{1.00, 0.99},
	}

	if statistic <= table[0].stat {
		return table[0].p
	}
	last := table[len(table)-1]
	if statistic >= last.stat {
		return last.p
	}
	for i := 1; i < len(table); i++ {
		if statistic <= table[i].stat {
			lo, hi := table[i-1], table[i]
			frac := (statistic - lo.stat) / (hi.stat - lo.stat)
			return lo.p + frac*(hi.p-lo.p)
		}
	}
	return last.p
}

// Description mirrors the auxiliary descriptive-statistics summary
// from original_source/analytics/statistics.py's calculate_statistics.
type Description struct {
	Mean        float64
	Std         float64
	Min         float64
	Max         float64
	Last        float64
	ReturnsMean float64
	ReturnsStd  float64
	HasReturns  bool
	Count       int
}

// Describe summarizes a price series. ok is false for an empty input.
func Describe(prices []float64) (Description, bool) {
	if len(prices) == 0 {
		return Description{}, false
	}
	mean, std := stat.MeanStdDev(prices, nil)
	mn, mx := minMax(prices)
	d := Description{
		Mean:  mean,
		Std:   std,
		Min:   mn,
		Max:   mx,
		Last:  prices[len(prices)-1],
		Count: len(prices),
	}
	if rets := Returns(prices); len(rets) > 0 {
		rm, rs := stat.MeanStdDev(rets, nil)
		d.ReturnsMean = rm
		d.ReturnsStd = rs
		d.HasReturns = true
	}
	return d, true
}

func minMax(xs []float64) (float64, float64) {
	mn, mx := xs[0], xs[0]
	for _, v := range xs[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

func dropNonFinite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// cleanPair drops index i from both series if either ys[i] or xs[i] is
// non-finite, preserving relative order (spec §4.5 missing-data
// policy).
func cleanPair(ys, xs []float64) ([]float64, []float64) {
	n := ys
	if len(xs) < len(n) {
		n = xs
	}
	outY := make([]float64, 0, len(n))
	outX := make([]float64, 0, len(n))
	for i := 0; i < len(ys) && i < len(xs); i++ {
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) || math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) {
			continue
		}
		outY = append(outY, ys[i])
		outX = append(outX, xs[i])
	}
	return outY, outX
}
