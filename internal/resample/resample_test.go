package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

func TestResampleOneSecondBars(t *testing.T) {
	// Spec §8 scenario 1.
	ticks := []model.Tick{
		{Timestamp: 1000, Price: 10, Quantity: 1},
		{Timestamp: 1400, Price: 12, Quantity: 2},
		{Timestamp: 1900, Price: 11, Quantity: 1},
		{Timestamp: 2000, Price: 13, Quantity: 1},
	}

	bars, err := Resample(ticks, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	assert.Len(t, bars, 2)

	assert.Equal(t, model.Bar{
		Symbol: "BTCUSDT", Timeframe: model.Timeframe1s, StartTime: 1000,
		Open: 10, High: 12, Low: 10, Close: 11, Volume: 4,
	}, bars[0])
	assert.Equal(t, model.Bar{
		Symbol: "BTCUSDT", Timeframe: model.Timeframe1s, StartTime: 2000,
		Open: 13, High: 13, Low: 13, Close: 13, Volume: 1,
	}, bars[1])
}

func TestResampleSingleTickBucket(t *testing.T) {
	ticks := []model.Tick{{Timestamp: 500, Price: 42, Quantity: 3}}
	bars, err := Resample(ticks, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	assert.Len(t, bars, 1)
	b := bars[0]
	assert.Equal(t, b.Open, b.High)
	assert.Equal(t, b.Open, b.Low)
	assert.Equal(t, b.Open, b.Close)
}

func TestResampleDuplicateTimestampsBothContribute(t *testing.T) {
	ticks := []model.Tick{
		{Timestamp: 1000, Price: 10, Quantity: 1},
		{Timestamp: 1000, Price: 20, Quantity: 1},
	}
	bars, err := Resample(ticks, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 10.0, bars[0].Open)
	assert.Equal(t, 20.0, bars[0].Close)
	assert.Equal(t, 20.0, bars[0].High)
	assert.Equal(t, 10.0, bars[0].Low)
	assert.Equal(t, 2.0, bars[0].Volume)
}

func TestResampleIdempotence(t *testing.T) {
	ticks := []model.Tick{
		{Timestamp: 1000, Price: 10, Quantity: 1},
		{Timestamp: 1400, Price: 12, Quantity: 2},
		{Timestamp: 2500, Price: 9, Quantity: 1},
	}
	first, err := Resample(ticks, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	second, err := Resample(ticks, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResampleBarsAlignedAndOrdered(t *testing.T) {
	ticks := []model.Tick{
		{Timestamp: 9000, Price: 1, Quantity: 1},
		{Timestamp: 3000, Price: 2, Quantity: 1},
		{Timestamp: 6000, Price: 3, Quantity: 1},
	}
	bars, err := Resample(ticks, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	assert.Len(t, bars, 3)
	for _, b := range bars {
		assert.Equal(t, int64(0), b.StartTime%1000)
		assert.LessOrEqual(t, b.Low, b.Open)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.GreaterOrEqual(t, b.High, b.Open)
		assert.GreaterOrEqual(t, b.High, b.Close)
		assert.GreaterOrEqual(t, b.Volume, 0.0)
	}
	assert.True(t, bars[0].StartTime < bars[1].StartTime)
	assert.True(t, bars[1].StartTime < bars[2].StartTime)
}

func TestResampleEmptyTicks(t *testing.T) {
	bars, err := Resample(nil, "BTCUSDT", model.Timeframe1s)
	assert.NoError(t, err)
	assert.Nil(t, bars)
}

func TestResampleUnknownTimeframe(t *testing.T) {
	_, err := Resample([]model.Tick{{Timestamp: 1, Price: 1, Quantity: 1}}, "BTCUSDT", model.Timeframe("3m"))
	assert.Error(t, err)
}
