package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeframeMillis(t *testing.T) {
	t.Run("KnownTimeframes", func(t *testing.T) {
		ms, err := Timeframe1s.Millis()
		assert.NoError(t, err)
		assert.Equal(t, int64(1000), ms)

		ms, err = Timeframe1m.Millis()
		assert.NoError(t, err)
		assert.Equal(t, int64(60_000), ms)

		ms, err = Timeframe5m.Millis()
		assert.NoError(t, err)
		assert.Equal(t, int64(300_000), ms)
	})

	t.Run("UnknownTimeframe", func(t *testing.T) {
		_, err := Timeframe("3m").Millis()
		assert.Error(t, err)
	})
}

func TestBarKey(t *testing.T) {
	b := Bar{Symbol: "BTCUSDT", Timeframe: Timeframe1s, StartTime: 1000}
	assert.Equal(t, BarKey{Symbol: "BTCUSDT", Timeframe: Timeframe1s, StartTime: 1000}, b.Key())
}

func TestAnalyticsSnapshotGet(t *testing.T) {
	hr := 1.5
	z := 2.5
	snap := AnalyticsSnapshot{HedgeRatio: &hr, ZScore: &z}

	t.Run("PresentField", func(t *testing.T) {
		v, ok := snap.Get("hedge_ratio")
		assert.True(t, ok)
		assert.Equal(t, 1.5, v)

		v, ok = snap.Get("z_score_last")
		assert.True(t, ok)
		assert.Equal(t, 2.5, v)
	})

	t.Run("AbsentField", func(t *testing.T) {
		_, ok := snap.Get("correlation")
		assert.False(t, ok)
	})

	t.Run("UnknownMetric", func(t *testing.T) {
		_, ok := snap.Get("not_a_metric")
		assert.False(t, ok)
	})
}

func TestAnalyticsSnapshotValid(t *testing.T) {
	hr := 1.0
	t.Run("HedgeRatioWithoutSpreadIsInvalid", func(t *testing.T) {
		snap := AnalyticsSnapshot{HedgeRatio: &hr}
		assert.False(t, snap.Valid())
	})

	t.Run("HedgeRatioWithSpreadIsValid", func(t *testing.T) {
		sp := 0.5
		snap := AnalyticsSnapshot{HedgeRatio: &hr, Spread: &sp}
		assert.True(t, snap.Valid())
	})

	t.Run("EmptySnapshotIsValid", func(t *testing.T) {
		assert.True(t, AnalyticsSnapshot{}.Valid())
	})
}
