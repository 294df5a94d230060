// Package writer implements the Tick Writer (C3): it batches ticks per
// symbol and flushes them to the persistence store on a size trigger or
// an interval trigger, requeueing failed batches so no tick is lost on
// a transient store outage. The bounded drop-oldest intake queue
// between the feed callback and the batching loop is modeled on the
// teacher's WorkerPool.Submit drop-on-full idiom in worker_pool.go,
// repurposed from a task queue to a tick queue.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/obsmetrics"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
)

const (
	triggerSize     = "size"
	triggerInterval = "interval"
	triggerShutdown = "shutdown"
)

// Writer batches ticks per symbol and flushes them to a Store.
type Writer struct {
	store         store.Store
	batchSize     int
	flushInterval time.Duration
	logger        zerolog.Logger

	queue chan model.Tick

	mu      sync.Mutex
	pending map[string][]model.Tick

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Writer. queueCapacity bounds the intake queue
// between Ingest and the batching loop; ticks are dropped oldest-first
// once it fills (an explicit backpressure choice — see project notes).
func New(st store.Store, batchSize int, flushInterval time.Duration, queueCapacity int, logger zerolog.Logger) *Writer {
	if queueCapacity <= 0 {
		queueCapacity = batchSize * 4
	}
	return &Writer{
		store:         st,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger.With().Str("component", "writer").Logger(),
		queue:         make(chan model.Tick, queueCapacity),
		pending:       make(map[string][]model.Tick),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Ingest enqueues a tick for batching. If the intake queue is full, the
// oldest queued tick is dropped to make room (writer_ticks_dropped_total
// records the loss) rather than blocking the caller.
func (w *Writer) Ingest(tick model.Tick) {
	select {
	case w.queue <- tick:
		return
	default:
	}

	select {
	case <-w.queue:
		obsmetrics.WriterTicksDroppedTotal.Inc()
	default:
	}

	select {
	case w.queue <- tick:
	default:
		obsmetrics.WriterTicksDroppedTotal.Inc()
	}
}

// Run drives the intake and periodic-flush loops until ctx is
// cancelled or Stop is called, then drains synchronously.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case t := <-w.queue:
			w.addPending(ctx, t)
		case <-ticker.C:
			w.FlushAll(ctx, triggerInterval)
		case <-ctx.Done():
			w.drain(context.Background())
			return
		case <-w.stopCh:
			w.drain(context.Background())
			return
		}
	}
}

func (w *Writer) addPending(ctx context.Context, t model.Tick) {
	w.mu.Lock()
	w.pending[t.Symbol] = append(w.pending[t.Symbol], t)
	size := len(w.pending[t.Symbol])
	w.mu.Unlock()
	obsmetrics.WriterPendingSize.WithLabelValues(t.Symbol).Set(float64(size))

	if size >= w.batchSize {
		w.flushSymbol(ctx, t.Symbol, triggerSize)
	}
}

// FlushAll flushes every symbol with pending ticks.
func (w *Writer) FlushAll(ctx context.Context, trigger string) {
	w.mu.Lock()
	symbols := make([]string, 0, len(w.pending))
	for s, batch := range w.pending {
		if len(batch) > 0 {
			symbols = append(symbols, s)
		}
	}
	w.mu.Unlock()

	for _, s := range symbols {
		w.flushSymbol(ctx, s, trigger)
	}
}

// flushSymbol copies and clears one symbol's pending batch under the
// lock, performs the store call outside it, and re-queues the batch
// ahead of any newer ticks on failure (spec §4.3, §5).
func (w *Writer) flushSymbol(ctx context.Context, symbol, trigger string) {
	w.mu.Lock()
	batch := w.pending[symbol]
	if len(batch) == 0 {
		w.mu.Unlock()
		return
	}
	w.pending[symbol] = nil
	w.mu.Unlock()
	obsmetrics.WriterPendingSize.WithLabelValues(symbol).Set(0)

	if err := w.store.AppendTicks(ctx, batch); err != nil {
		w.logger.Error().Err(err).Str("symbol", symbol).Int("batch_size", len(batch)).
			Msg("writer: flush failed, requeueing batch")
		w.mu.Lock()
		w.pending[symbol] = append(append([]model.Tick{}, batch...), w.pending[symbol]...)
		w.mu.Unlock()
		obsmetrics.WriterFlushesTotal.WithLabelValues(trigger, "failure").Inc()
		return
	}
	obsmetrics.WriterFlushesTotal.WithLabelValues(trigger, "success").Inc()
}

// drain empties the intake queue and flushes every symbol synchronously
// (spec §4.3: "Shutdown drains all pending batches synchronously before
// returning").
func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case t := <-w.queue:
			w.mu.Lock()
			w.pending[t.Symbol] = append(w.pending[t.Symbol], t)
			w.mu.Unlock()
		default:
			w.FlushAll(ctx, triggerShutdown)
			return
		}
	}
}

// Stop requests a cooperative shutdown and blocks until Run has
// drained and returned.
func (w *Writer) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
