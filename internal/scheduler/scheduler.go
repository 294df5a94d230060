// Package scheduler implements the Scheduler (C8): two independent
// periodic tasks, resampling and pair analytics, each with its own
// start-delay and period (spec §4.8). Grounded on the teacher's
// ticker-driven goroutine loops (worker_pool.go's worker loop,
// broadcast.go's periodic patterns) generalized from a fixed broadcast
// interval to two independently-scheduled tasks.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantpipe/cointegration-pipeline/internal/alert"
	"github.com/quantpipe/cointegration-pipeline/internal/buffer"
	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/config"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/obsmetrics"
	"github.com/quantpipe/cointegration-pipeline/internal/pairs"
	"github.com/quantpipe/cointegration-pipeline/internal/resample"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
)

const (
	resampleStartDelay = 10 * time.Second
	resamplePeriod     = 5 * time.Second
	resampleMinTicks   = 10
	resampleReadDepth  = 5000

	analyticsStartDelay = 5 * time.Second
	analyticsReadDepth  = 1000
	analyticsKeepLast   = 200
	analyticsMinWindow  = 5
)

// Scheduler owns the resampling and analytics background tasks.
type Scheduler struct {
	cfg    *config.Config
	buf    *buffer.Rolling
	store  store.Store
	engine *alert.Engine
	clock  clock.Clock
	logger zerolog.Logger

	symbolX, symbolY string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Scheduler. PairSymbols() failing (fewer than two
// configured symbols) is a construction-time error per spec §7's fatal
// configuration taxonomy.
func New(cfg *config.Config, buf *buffer.Rolling, st store.Store, engine *alert.Engine, clk clock.Clock, logger zerolog.Logger) (*Scheduler, error) {
	x, y, err := cfg.PairSymbols()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		cfg:     cfg,
		buf:     buf,
		store:   st,
		engine:  engine,
		clock:   clk,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		symbolX: x,
		symbolY: y,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches both periodic tasks.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.runResampling(ctx)
	go s.runAnalytics(ctx)
}

// Stop cancels both tasks and waits for their current iteration to
// finish (spec §4.8 lifecycle).
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runResampling(ctx context.Context) {
	defer s.wg.Done()
	if !s.wait(ctx, resampleStartDelay) {
		return
	}

	ticker := time.NewTicker(resamplePeriod)
	defer ticker.Stop()

	s.resampleOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.resampleOnce(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) resampleOnce(ctx context.Context) {
	for _, symbol := range s.cfg.Symbols {
		ticks := s.buf.GetRecent(symbol, resampleReadDepth)
		if len(ticks) < resampleMinTicks {
			continue
		}
		for _, tf := range s.cfg.Timeframes {
			timeframe := model.Timeframe(tf)
			bars, err := resample.Resample(ticks, symbol, timeframe)
			if err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).
					Msg("scheduler: resample failed")
				continue
			}
			if len(bars) == 0 {
				continue
			}
			if err := s.store.UpsertBars(ctx, bars); err != nil {
				s.logger.Error().Err(err).Str("symbol", symbol).Str("timeframe", tf).
					Msg("scheduler: upsert bars failed")
				continue
			}
			obsmetrics.ResamplerBarsEmittedTotal.WithLabelValues(symbol, tf).Add(float64(len(bars)))
		}
	}
}

func (s *Scheduler) runAnalytics(ctx context.Context) {
	defer s.wg.Done()
	if !s.wait(ctx, analyticsStartDelay) {
		return
	}

	ticker := time.NewTicker(s.cfg.AnalyticsInterval)
	defer ticker.Stop()

	s.analyticsOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.analyticsOnce(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) analyticsOnce(ctx context.Context) {
	started := s.clock.Now()
	defer func() {
		obsmetrics.AnalyticsLatencySeconds.Observe(s.clock.Now().Sub(started).Seconds())
	}()

	xSeries := s.buf.GetPriceSeries(s.symbolX, analyticsReadDepth)
	ySeries := s.buf.GetPriceSeries(s.symbolY, analyticsReadDepth)

	xMap, yMap, joined := innerJoinKeepLast(xSeries, ySeries, analyticsKeepLast)
	if len(joined) == 0 {
		obsmetrics.AnalyticsSkippedTotal.Inc()
		return
	}

	window := s.cfg.DefaultRollingWindow
	if half := len(joined) / 2; window > half {
		window = half
	}
	if window < analyticsMinWindow {
		obsmetrics.AnalyticsSkippedTotal.Inc()
		return
	}

	pricesX := make([]float64, len(joined))
	pricesY := make([]float64, len(joined))
	for i, ts := range joined {
		pricesX[i] = xMap[ts]
		pricesY[i] = yMap[ts]
	}

	snap, ok := pairs.ComputePair(s.symbolX, s.symbolY, pricesX, pricesY, window, s.clock.NowMillis())
	if !ok {
		obsmetrics.AnalyticsSkippedTotal.Inc()
		return
	}

	_, hasZ := snap.Get("z_score_last")
	_, hasCorr := snap.Get("correlation")
	if !hasZ && !hasCorr {
		obsmetrics.AnalyticsSkippedTotal.Inc()
		return
	}

	snap.Timeframe = model.TimeframeTick
	if err := s.store.AppendAnalytics(ctx, snap); err != nil {
		s.logger.Error().Err(err).Msg("scheduler: persist analytics failed")
	}
	obsmetrics.AnalyticsSnapshotsTotal.Inc()

	if s.engine != nil {
		s.engine.Check(ctx, snap)
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	}
}

// innerJoinKeepLast returns per-series timestamp->price maps and the
// sorted common timestamps, truncated to the last `keep` entries (spec
// §4.8: "dedupe by timestamp (keep last), keep the last 200").
func innerJoinKeepLast(x, y []buffer.PricePoint, keep int) (map[int64]float64, map[int64]float64, []int64) {
	xMap := make(map[int64]float64, len(x))
	for _, p := range x {
		xMap[p.Timestamp] = p.Price
	}
	yMap := make(map[int64]float64, len(y))
	for _, p := range y {
		yMap[p.Timestamp] = p.Price
	}

	common := make([]int64, 0, len(xMap))
	for ts := range xMap {
		if _, ok := yMap[ts]; ok {
			common = append(common, ts)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })
	if keep > 0 && len(common) > keep {
		common = common[len(common)-keep:]
	}
	return xMap, yMap, common
}
