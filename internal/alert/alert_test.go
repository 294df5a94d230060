package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
)

func ptr(v float64) *float64 { return &v }

func newTestEngine(t *testing.T, alerts ...model.Alert) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	for _, a := range alerts {
		_, err := mem.CreateAlert(context.Background(), a)
		assert.NoError(t, err)
	}
	engine := NewEngine(mem, clock.NewFake(time.Unix(0, 0)), zerolog.Nop(), 0)
	assert.NoError(t, engine.LoadAlerts(context.Background()))
	return engine, mem
}

func TestAlertFiringAboveThreshold(t *testing.T) {
	// Spec §8 scenario 5.
	engine, _ := newTestEngine(t, model.Alert{Metric: "z_score_last", Condition: model.ConditionGT, Threshold: 2.0})

	firings := engine.Check(context.Background(), model.AnalyticsSnapshot{ZScore: ptr(2.5)})
	assert.Len(t, firings, 1)
	assert.Equal(t, 2.5, firings[0].CurrentValue)
}

func TestAlertNoFiringBelowThreshold(t *testing.T) {
	engine, _ := newTestEngine(t, model.Alert{Metric: "z_score_last", Condition: model.ConditionGT, Threshold: 2.0})

	firings := engine.Check(context.Background(), model.AnalyticsSnapshot{ZScore: ptr(1.9)})
	assert.Empty(t, firings)
}

func TestAlertSkipsMissingMetric(t *testing.T) {
	engine, _ := newTestEngine(t, model.Alert{Metric: "correlation", Condition: model.ConditionGT, Threshold: 0.5})
	firings := engine.Check(context.Background(), model.AnalyticsSnapshot{ZScore: ptr(3.0)})
	assert.Empty(t, firings)
}

func TestAlertEqualityToleranceOf1e6(t *testing.T) {
	engine, _ := newTestEngine(t, model.Alert{Metric: "correlation", Condition: model.ConditionEQ, Threshold: 0.5})

	firings := engine.Check(context.Background(), model.AnalyticsSnapshot{RollingCorr: ptr(0.5000001)})
	assert.Len(t, firings, 1)

	firings = engine.Check(context.Background(), model.AnalyticsSnapshot{RollingCorr: ptr(0.501)})
	assert.Empty(t, firings)
}

func TestAtMostOneFiringPerAlertPerCheck(t *testing.T) {
	engine, _ := newTestEngine(t,
		model.Alert{Metric: "z_score_last", Condition: model.ConditionGT, Threshold: 1.0},
		model.Alert{Metric: "correlation", Condition: model.ConditionGT, Threshold: 0.0},
	)

	firings := engine.Check(context.Background(), model.AnalyticsSnapshot{ZScore: ptr(5.0), RollingCorr: ptr(0.9)})
	assert.LessOrEqual(t, len(firings), 2)
	assert.Len(t, firings, 2)
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }
func (f *failingSink) Deliver(context.Context, model.Firing) error {
	f.calls++
	return errors.New("boom")
}

type countingSink struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSink) Name() string { return "counting" }
func (c *countingSink) Deliver(context.Context, model.Firing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func TestSinkFailureIsIsolated(t *testing.T) {
	engine, _ := newTestEngine(t, model.Alert{Metric: "z_score_last", Condition: model.ConditionGT, Threshold: 1.0})

	failing := &failingSink{}
	counting := &countingSink{}
	engine.AddSink(failing)
	engine.AddSink(counting)

	firings := engine.Check(context.Background(), model.AnalyticsSnapshot{ZScore: ptr(5.0)})
	assert.Len(t, firings, 1)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, counting.calls)
}

func TestHistoryIsBounded(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.CreateAlert(context.Background(), model.Alert{Metric: "z_score_last", Condition: model.ConditionGT, Threshold: 0.0})
	assert.NoError(t, err)

	engine := NewEngine(mem, clock.NewFake(time.Unix(0, 0)), zerolog.Nop(), 3)
	assert.NoError(t, engine.LoadAlerts(context.Background()))

	for i := 0; i < 10; i++ {
		engine.Check(context.Background(), model.AnalyticsSnapshot{ZScore: ptr(float64(i + 1))})
	}

	history := engine.History(0)
	assert.Len(t, history, 3)
}
