package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/quantpipe/cointegration-pipeline/internal/alert"
	"github.com/quantpipe/cointegration-pipeline/internal/buffer"
	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/config"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Symbols:              []string{"BTCUSDT", "ETHUSDT"},
		Timeframes:           []string{"1s"},
		DefaultRollingWindow: 5,
		AnalyticsInterval:    10 * time.Millisecond,
		BatchSize:            100,
		FlushInterval:        time.Second,
		FeedEndpointBase:     "wss://example.com",
		DBURL:                "postgres://localhost/db",
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

func TestNewRequiresAtLeastTwoSymbols(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	_, err := New(cfg, buffer.New(10), store.NewMemory(), nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func seedCointegratedSeries(t *testing.T, buf *buffer.Rolling, symbolX, symbolY string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ts := int64(i * 1000)
		px := 100 + float64(i)
		py := 2*px + 0.1
		buf.Add(symbolX, model.Tick{Timestamp: ts, Symbol: symbolX, Price: px, Quantity: 1})
		buf.Add(symbolY, model.Tick{Timestamp: ts, Symbol: symbolY, Price: py, Quantity: 1})
	}
}

func TestAnalyticsOncePersistsSnapshotAndFeedsAlertEngine(t *testing.T) {
	cfg := testConfig()
	buf := buffer.New(1000)
	mem := store.NewMemory()

	_, err := mem.CreateAlert(context.Background(), model.Alert{Metric: "hedge_ratio", Condition: model.ConditionGT, Threshold: 0})
	assert.NoError(t, err)

	engine := alert.NewEngine(mem, clock.NewFake(time.Unix(0, 0)), zerolog.Nop(), 0)
	assert.NoError(t, engine.LoadAlerts(context.Background()))

	seedCointegratedSeries(t, buf, "BTCUSDT", "ETHUSDT", 30)

	sched, err := New(cfg, buf, mem, engine, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	assert.NoError(t, err)

	sched.analyticsOnce(context.Background())

	rows, err := mem.ReadRecentAnalytics(context.Background(), "BTCUSDT", "ETHUSDT", model.TimeframeTick, 10)
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NotNil(t, rows[0].HedgeRatio)

	history := engine.History(0)
	assert.NotEmpty(t, history)
}

func TestAnalyticsOnceSkipsWhenTooFewTicks(t *testing.T) {
	cfg := testConfig()
	buf := buffer.New(1000)
	mem := store.NewMemory()
	sched, err := New(cfg, buf, mem, nil, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	assert.NoError(t, err)

	seedCointegratedSeries(t, buf, "BTCUSDT", "ETHUSDT", 3)
	sched.analyticsOnce(context.Background())

	rows, _ := mem.ReadRecentAnalytics(context.Background(), "BTCUSDT", "ETHUSDT", model.TimeframeTick, 10)
	assert.Empty(t, rows)
}

func TestResampleOnceUpsertsBarsAboveMinTicks(t *testing.T) {
	cfg := testConfig()
	buf := buffer.New(1000)
	mem := store.NewMemory()
	sched, err := New(cfg, buf, mem, nil, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	assert.NoError(t, err)

	for i := int64(0); i < 15; i++ {
		buf.Add("BTCUSDT", model.Tick{Timestamp: i * 100, Symbol: "BTCUSDT", Price: 100 + float64(i), Quantity: 1})
	}

	sched.resampleOnce(context.Background())

	bars, err := mem.ReadRecentBars(context.Background(), "BTCUSDT", model.Timeframe1s, 100)
	assert.NoError(t, err)
	assert.NotEmpty(t, bars)
}

func TestResampleOnceSkipsSymbolWithTooFewTicks(t *testing.T) {
	cfg := testConfig()
	buf := buffer.New(1000)
	mem := store.NewMemory()
	sched, err := New(cfg, buf, mem, nil, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	assert.NoError(t, err)

	buf.Add("BTCUSDT", model.Tick{Timestamp: 1, Symbol: "BTCUSDT", Price: 100, Quantity: 1})
	sched.resampleOnce(context.Background())

	bars, _ := mem.ReadRecentBars(context.Background(), "BTCUSDT", model.Timeframe1s, 100)
	assert.Empty(t, bars)
}

func TestSchedulerStartStopLifecycle(t *testing.T) {
	cfg := testConfig()
	buf := buffer.New(1000)
	mem := store.NewMemory()
	seedCointegratedSeries(t, buf, "BTCUSDT", "ETHUSDT", 30)

	sched, err := New(cfg, buf, mem, nil, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	assert.NoError(t, err)

	ctx := context.Background()
	sched.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	sched.Stop()
}
