// Package pairs implements Pair Analytics (C6): it turns two aligned
// price series into a cointegration snapshot using the Statistics
// Kernel. Grounded on original_source/analytics/spread.py's
// calculate_pair_analytics / calculate_rolling_analytics, and on the
// AnalyzeSpreadZScore pattern in okex-books-buddy/websocket_client.go
// for the "inner-join then recompute tail statistics" shape.
package pairs

import (
	"math"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/stats"
)

// minObservations is the floor below which compute_pair returns an
// empty snapshot (spec §4.6).
const minObservations = 5

// Snapshot is the output of ComputePair.
type Snapshot = model.AnalyticsSnapshot

// ComputePair is the authoritative live-analytics computation. prices
// are aligned by the caller (equal length, same index meaning); window
// is the configured rolling window, widened to at least 5 (spec §4.6).
//
// This recomputes the hedge ratio and spread from the full aligned
// series every call, then derives tail statistics from the last
// max(window, 5) observations: the tail-recompute variant mandated for
// the live/alerting path, as opposed to ComputeRolling's historical
// walk-forward table.
func ComputePair(symbolX, symbolY string, pricesX, pricesY []float64, window int, computedAtMs int64) (Snapshot, bool) {
	n := len(pricesX)
	if n != len(pricesY) || n < minObservations {
		return Snapshot{}, false
	}

	ols, ok := stats.OLS(pricesY, pricesX)
	if !ok {
		return Snapshot{}, false
	}
	hedgeRatio := ols.Slope

	spread := make([]float64, n)
	for i := range spread {
		spread[i] = pricesY[i] - hedgeRatio*pricesX[i]
	}

	w := window
	if w < minObservations {
		w = minObservations
	}
	tailLen := w
	if tailLen > n {
		tailLen = n
	}

	spreadMean, spreadStd := meanStd(spread[n-tailLen:])
	zScoreLast := 0.0
	if spreadStd != 0 && !math.IsNaN(spreadStd) && !math.IsInf(spreadStd, 0) {
		zScoreLast = (spread[n-1] - spreadMean) / spreadStd
	}

	corrLen := tailLen
	corrLast := 1.0
	if c, ok := stats.Correlation(pricesX[n-corrLen:], pricesY[n-corrLen:]); ok && !math.IsNaN(c) {
		corrLast = c
	}

	snap := Snapshot{
		SymbolX:     symbolX,
		SymbolY:     symbolY,
		ComputedAt:  computedAtMs,
		HedgeRatio:  ptr(hedgeRatio),
		Spread:      ptr(spread[n-1]),
		SpreadMean:  ptr(spreadMean),
		SpreadStd:   ptr(spreadStd),
		ZScore:      ptr(zScoreLast),
		RollingCorr: ptr(corrLast),
	}

	if zSeries := stats.ZScore(spread, w); len(zSeries) > 0 {
		zMean, zStd := meanStd(zSeries)
		snap.ZScoreMean = ptr(zMean)
		snap.ZScoreStd = ptr(zStd)
	}

	if adf, ok := stats.ADF(spread, 0); ok && adf.Err == nil {
		snap.ADFStatistic = ptr(adf.Statistic)
		snap.PValue = ptr(adf.PValue)
		isStationary := adf.IsStationary
		snap.IsStationary = &isStationary
	}

	return snap, true
}

// RollingTableEntry is one row of a ComputeRolling walk-forward table.
type RollingTableEntry struct {
	Index    int
	Snapshot Snapshot
}

// ComputeRolling walks windows of size `window` over the joined index
// and calls ComputePair on each, producing an indexed historical
// table. Reserved for historical reads only; the live alerting path
// always uses ComputePair (spec §4.6, and the project's resolution of
// the two-variant open question).
func ComputeRolling(symbolX, symbolY string, pricesX, pricesY []float64, window int, timestamps []int64) []RollingTableEntry {
	n := len(pricesX)
	if n != len(pricesY) || n < window || window <= 0 {
		return nil
	}
	var out []RollingTableEntry
	for i := window; i <= n; i++ {
		xw := pricesX[i-window : i]
		yw := pricesY[i-window : i]
		var ts int64
		if i-1 < len(timestamps) {
			ts = timestamps[i-1]
		}
		snap, ok := ComputePair(symbolX, symbolY, xw, yw, window, ts)
		if !ok {
			continue
		}
		out = append(out, RollingTableEntry{Index: i - 1, Snapshot: snap})
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

func ptr(v float64) *float64 { return &v }
