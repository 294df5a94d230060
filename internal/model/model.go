// Package model holds the data types shared across the pipeline: ticks,
// bars, analytics snapshots, alerts, and alert firings.
package model

import "fmt"

// Timeframe is one of the enumerated bar resolutions the Resampler
// supports.
type Timeframe string

const (
	Timeframe1s Timeframe = "1s"
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"

	// TimeframeTick labels an AnalyticsSnapshot computed directly off
	// the rolling tick buffer rather than a resampled bar series
	// (spec §4.8 analytics task).
	TimeframeTick Timeframe = "tick"
)

// Millis returns the timeframe's duration in milliseconds.
func (tf Timeframe) Millis() (int64, error) {
	switch tf {
	case Timeframe1s:
		return 1000, nil
	case Timeframe1m:
		return 60_000, nil
	case Timeframe5m:
		return 300_000, nil
	default:
		return 0, fmt.Errorf("model: unknown timeframe %q", tf)
	}
}

// Tick is a single trade print.
type Tick struct {
	Timestamp int64 // event time, ms since epoch
	Symbol    string
	Price     float64
	Quantity  float64
}

// Bar is an OHLCV aggregate over [StartTime, StartTime+Timeframe).
type Bar struct {
	Symbol    string
	Timeframe Timeframe
	StartTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Key identifies the at-most-one row this bar occupies.
func (b Bar) Key() BarKey {
	return BarKey{Symbol: b.Symbol, Timeframe: b.Timeframe, StartTime: b.StartTime}
}

// BarKey is the idempotence key for bars: (symbol, timeframe, start_time).
type BarKey struct {
	Symbol    string
	Timeframe Timeframe
	StartTime int64
}

// AnalyticsSnapshot is the result of one pair computation. Every
// statistic is optional (absent when there was insufficient data); a
// closed record of *float64 fields models that directly rather than an
// untyped map, per design note 9.
type AnalyticsSnapshot struct {
	SymbolX      string
	SymbolY      string
	Timeframe    Timeframe
	ComputedAt   int64
	HedgeRatio   *float64
	Spread       *float64
	SpreadMean   *float64
	SpreadStd    *float64
	ZScore       *float64
	ZScoreMean   *float64
	ZScoreStd    *float64
	RollingCorr  *float64
	ADFStatistic *float64
	PValue       *float64
	IsStationary *bool
}

// Get returns the named metric's value and whether it is present. The
// valid names are the AnalyticsSnapshot's optional real-valued fields,
// each reachable under one or two aliases (e.g. "z_score" and
// "z_score_last"); the boolean IsStationary is not exposed here.
func (s AnalyticsSnapshot) Get(metric string) (float64, bool) {
	var p *float64
	switch metric {
	case "hedge_ratio":
		p = s.HedgeRatio
	case "spread", "spread_last":
		p = s.Spread
	case "spread_mean":
		p = s.SpreadMean
	case "spread_std":
		p = s.SpreadStd
	case "z_score", "z_score_last":
		p = s.ZScore
	case "z_score_mean":
		p = s.ZScoreMean
	case "z_score_std":
		p = s.ZScoreStd
	case "rolling_corr", "correlation":
		p = s.RollingCorr
	case "adf_statistic", "adf_stat":
		p = s.ADFStatistic
	case "p_value", "adf_p_value":
		p = s.PValue
	default:
		return 0, false
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Valid checks the invariant that a present HedgeRatio implies a present
// Spread.
func (s AnalyticsSnapshot) Valid() bool {
	if s.HedgeRatio != nil && s.Spread == nil {
		return false
	}
	return true
}

// Condition is one of the comparison operators an Alert evaluates.
type Condition string

const (
	ConditionGT  Condition = ">"
	ConditionLT  Condition = "<"
	ConditionGE  Condition = ">="
	ConditionLE  Condition = "<="
	ConditionEQ  Condition = "=="
	ConditionNEQ Condition = "!="
)

// Alert is a threshold predicate evaluated against every AnalyticsSnapshot.
type Alert struct {
	ID        int64
	Metric    string
	Condition Condition
	Threshold float64
	Active    bool
}

// Firing is emitted each time an Alert's predicate evaluates true.
// FiringID is a supplementary correlation identifier for sink
// consumers (Kafka/NATS messages); it is not part of the alert
// predicate contract itself.
type Firing struct {
	FiringID     string
	AlertID      int64
	Metric       string
	Condition    Condition
	Threshold    float64
	CurrentValue float64
	TimestampUTC string // RFC3339
	SymbolX      string
	SymbolY      string
}
