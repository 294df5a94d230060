// Package alert implements the Alert Engine (C7): active alert
// predicates evaluated against every analytics snapshot, delivered to
// pluggable sinks. Grounded on original_source/alerts/engine.py for the
// evaluate/trigger/callback-isolation shape, and on the atomic-counter
// style of Andrew50-peripheral's redis_alerts.go for the engine's own
// observability (exposed here through the shared obsmetrics package
// instead of ad hoc counters, since metrics already has a Prometheus
// home in this module).
package alert

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/obsmetrics"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
)

// equalityTolerance is the absolute-difference tolerance used for the
// == and != conditions (spec §4.7).
const equalityTolerance = 1e-6

// defaultHistoryCap bounds the in-memory firing history (spec §4.7).
const defaultHistoryCap = 100

// Sink delivers a firing to an external system. Implementations must
// be safe to call from the engine's single evaluation goroutine;
// delivery failures are isolated per sink (spec §4.7, §7).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, f model.Firing) error
}

// Engine holds the active alert set, registered sinks, and a bounded
// history of recent firings.
type Engine struct {
	store store.Store
	clock clock.Clock
	logger zerolog.Logger

	mu         sync.Mutex
	alerts     []model.Alert
	sinks      []Sink
	history    []model.Firing
	historyCap int
}

// NewEngine constructs an Engine. historyCap <= 0 uses the spec
// default of 100.
func NewEngine(st store.Store, clk clock.Clock, logger zerolog.Logger, historyCap int) *Engine {
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		store:      st,
		clock:      clk,
		logger:     logger.With().Str("component", "alert").Logger(),
		historyCap: historyCap,
	}
}

// LoadAlerts (re)loads the active alert set from the persistence port
// (spec §4.7 state (a)).
func (e *Engine) LoadAlerts(ctx context.Context) error {
	alerts, err := e.store.ListActiveAlerts(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.alerts = alerts
	e.mu.Unlock()
	e.logger.Info().Int("count", len(alerts)).Msg("alert: loaded active alerts")
	return nil
}

// AddSink registers a delivery sink.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, s)
	e.mu.Unlock()
}

// Check evaluates every active alert against snapshot, returning the
// firings produced (spec §4.7 check(snapshot)). Firings are appended to
// history and delivered to every sink before Check returns, so firings
// for one call are fully delivered before the next call begins (spec
// §5 ordering guarantee).
func (e *Engine) Check(ctx context.Context, snapshot model.AnalyticsSnapshot) []model.Firing {
	e.mu.Lock()
	alerts := append([]model.Alert(nil), e.alerts...)
	sinks := append([]Sink(nil), e.sinks...)
	e.mu.Unlock()

	var firings []model.Firing
	for _, a := range alerts {
		value, ok := snapshot.Get(a.Metric)
		if !ok {
			continue
		}
		if !evaluate(a.Condition, value, a.Threshold) {
			continue
		}

		f := model.Firing{
			FiringID:     uuid.NewString(),
			AlertID:      a.ID,
			Metric:       a.Metric,
			Condition:    a.Condition,
			Threshold:    a.Threshold,
			CurrentValue: value,
			TimestampUTC: e.clock.Now().UTC().Format(time.RFC3339),
			SymbolX:      snapshot.SymbolX,
			SymbolY:      snapshot.SymbolY,
		}
		firings = append(firings, f)
		e.appendHistory(f)
		obsmetrics.AlertFiringsTotal.WithLabelValues(a.Metric).Inc()
		e.deliver(ctx, sinks, f)
	}
	return firings
}

// evaluate implements the numeric comparison operators with the
// spec's 1e-6 equality tolerance.
func evaluate(cond model.Condition, value, threshold float64) bool {
	switch cond {
	case model.ConditionGT:
		return value > threshold
	case model.ConditionLT:
		return value < threshold
	case model.ConditionGE:
		return value >= threshold
	case model.ConditionLE:
		return value <= threshold
	case model.ConditionEQ:
		return math.Abs(value-threshold) < equalityTolerance
	case model.ConditionNEQ:
		return math.Abs(value-threshold) >= equalityTolerance
	default:
		return false
	}
}

func (e *Engine) appendHistory(f model.Firing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, f)
	if len(e.history) > e.historyCap {
		e.history = e.history[len(e.history)-e.historyCap:]
	}
}

// deliver invokes every sink, isolating failures to the failing sink
// (spec §4.7, §7: "callback exceptions are isolated per callback").
func (e *Engine) deliver(ctx context.Context, sinks []Sink, f model.Firing) {
	for _, s := range sinks {
		if err := s.Deliver(ctx, f); err != nil {
			e.logger.Error().Err(err).Str("sink", s.Name()).
				Str("metric", f.Metric).Msg("alert: sink delivery failed")
			obsmetrics.AlertSinkErrorsTotal.WithLabelValues(s.Name()).Inc()
		}
	}
}

// History returns a copy of the last n firings (all if n <= 0).
func (e *Engine) History(n int) []model.Firing {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	out := make([]model.Firing, n)
	copy(out, e.history[len(e.history)-n:])
	return out
}
