// Package resample implements the Resampler (C4): it partitions an
// ordered tick sequence into wall-clock-aligned timeframe buckets and
// emits OHLCV bars. Grounded on the bucketing idiom in
// RohanRaikwar-algo-sys-v1's agg.Aggregator (open=first/high=max/
// low=min/close=last/volume=sum per bucket), adapted from a streaming
// watermark aggregator into the spec's pure batch contract: the
// scheduler owns buffering and periodicity, this package only buckets.
package resample

import (
	"sort"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

type bucketState struct {
	startTime                 int64
	open, high, low, closePrc float64
	volume                    float64
}

// Resample partitions ticks (assumed already in arrival order) into
// timeframe buckets and emits one Bar per non-empty bucket in ascending
// start_time order. Duplicate-timestamp ticks are not deduplicated:
// every tick contributes to its bucket's high/low/close/volume (spec
// §4.4 edge cases).
func Resample(ticks []model.Tick, symbol string, timeframe model.Timeframe) ([]model.Bar, error) {
	tfMs, err := timeframe.Millis()
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, nil
	}

	buckets := make(map[int64]*bucketState)
	order := make([]int64, 0, len(ticks))

	for _, t := range ticks {
		bucket := floorDiv(t.Timestamp, tfMs)
		st, ok := buckets[bucket]
		if !ok {
			st = &bucketState{
				startTime: bucket * tfMs,
				open:      t.Price,
				high:      t.Price,
				low:       t.Price,
				closePrc:  t.Price,
				volume:    t.Quantity,
			}
			buckets[bucket] = st
			order = append(order, bucket)
			continue
		}
		if t.Price > st.high {
			st.high = t.Price
		}
		if t.Price < st.low {
			st.low = t.Price
		}
		st.closePrc = t.Price
		st.volume += t.Quantity
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	bars := make([]model.Bar, 0, len(order))
	for _, b := range order {
		st := buckets[b]
		bars = append(bars, model.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			StartTime: st.startTime,
			Open:      st.open,
			High:      st.high,
			Low:       st.low,
			Close:     st.closePrc,
			Volume:    st.volume,
		})
	}
	return bars, nil
}

// floorDiv performs floor division, unlike Go's truncating / operator,
// so negative timestamps still bucket correctly (not expected in
// practice but keeps the invariant start_time = bucket*tf_ms exact).
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
