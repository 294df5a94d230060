// Package buffer implements the Rolling Buffer (C2): a bounded,
// per-symbol FIFO of recent ticks served as point-in-time snapshots.
// Not persisted — rebuilt from the feed on restart (spec §3).
package buffer

import (
	"sort"
	"sync"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// DefaultCapacity is the per-symbol bound from spec §3.
const DefaultCapacity = 10_000

// PricePoint is one timestamp-indexed price sample.
type PricePoint struct {
	Timestamp int64
	Price     float64
}

// Rolling maps symbol -> bounded FIFO of ticks. Safe for a single
// producer (the feed client callback) concurrent with many readers;
// readers take a short lock to copy a snapshot and never hold the lock
// while computing (spec §5).
type Rolling struct {
	capacity int
	mu       sync.RWMutex
	series   map[string][]model.Tick
}

// New constructs a Rolling buffer with the given per-symbol capacity.
// capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Rolling {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Rolling{
		capacity: capacity,
		series:   make(map[string][]model.Tick),
	}
}

// Add appends a tick for symbol, evicting the oldest entry if the
// per-symbol buffer is at capacity.
func (r *Rolling) Add(symbol string, tick model.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.series[symbol]
	if len(s) >= r.capacity {
		// Evict oldest; reuse the backing array to avoid reallocating on
		// every insert once steady state is reached.
		copy(s, s[1:])
		s = s[:len(s)-1]
	}
	r.series[symbol] = append(s, tick)
}

// Size returns the current number of ticks buffered for symbol.
func (r *Rolling) Size(symbol string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.series[symbol])
}

// GetRecent returns the last n ticks for symbol in insertion order. n<=0
// returns all buffered ticks. The result is a copy: callers may mutate
// or hold it without affecting the buffer.
func (r *Rolling) GetRecent(symbol string, n int) []model.Tick {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.series[symbol]
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	out := make([]model.Tick, n)
	copy(out, s[len(s)-n:])
	return out
}

// GetPriceSeries returns the last n ticks for symbol as a
// timestamp-indexed ordered sequence of prices: duplicate-timestamp
// entries collapse to their last occurrence, then the result is sorted
// by timestamp ascending (spec §4.2).
func (r *Rolling) GetPriceSeries(symbol string, n int) []PricePoint {
	ticks := r.GetRecent(symbol, n)
	if len(ticks) == 0 {
		return nil
	}

	byTimestamp := make(map[int64]float64, len(ticks))
	for _, t := range ticks {
		byTimestamp[t.Timestamp] = t.Price // last occurrence wins
	}

	out := make([]PricePoint, 0, len(byTimestamp))
	for ts, price := range byTimestamp {
		out = append(out, PricePoint{Timestamp: ts, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Clear purges one symbol's buffer, or every symbol if symbol is empty.
func (r *Rolling) Clear(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if symbol == "" {
		r.series = make(map[string][]model.Tick)
		return
	}
	delete(r.series, symbol)
}

// Symbols returns the set of symbols currently tracked.
func (r *Rolling) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.series))
	for s := range r.series {
		out = append(out, s)
	}
	return out
}
