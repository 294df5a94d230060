// Package pipeline wires the Feed Client, Rolling Buffer, Tick Writer,
// Scheduler (resampling + analytics), and Alert Engine into one
// explicitly-constructed object with Start/Stop lifecycle hooks,
// following spec §9's design note: "inject the pipeline explicitly
// into the HTTP handler (construction-time dependency)" rather than
// the teacher's module-level singleton (ws/server.go's package-level
// *Server reached into by handlers).
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/quantpipe/cointegration-pipeline/internal/alert"
	"github.com/quantpipe/cointegration-pipeline/internal/buffer"
	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/config"
	"github.com/quantpipe/cointegration-pipeline/internal/feed"
	"github.com/quantpipe/cointegration-pipeline/internal/obsmetrics"
	"github.com/quantpipe/cointegration-pipeline/internal/resource"
	"github.com/quantpipe/cointegration-pipeline/internal/scheduler"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
	"github.com/quantpipe/cointegration-pipeline/internal/writer"
)

// Pipeline owns C1 (Feed Client), C2 (Rolling Buffer), C3 (Tick
// Writer), C7 (Alert Engine), and C8 (Scheduler), plus the operational
// resource sampler and metrics endpoint. The persistence Store and the
// downstream HTTP query API are external collaborators (spec §1) this
// type never assumes control over beyond the Store handle it is
// constructed with.
type Pipeline struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  clock.Clock

	store    store.Store
	buf      *buffer.Rolling
	feed     *feed.Client
	writer   *writer.Writer
	engine   *alert.Engine
	sched    *scheduler.Scheduler
	sampler  *resource.Sampler
	registry *prometheus.Registry

	metricsSrv *http.Server

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New constructs a Pipeline from configuration and a persistence Store.
// Construction-time failures (unknown timeframe, fewer than two
// symbols, non-positive window) are the "Fatal configuration" category
// of spec §7 and are returned as errors here, never panics: the
// config.Validate error wrapped with %w. Validate builds those with
// fmt.Errorf; no sentinel value or distinct error type identifies them.
func New(cfg *config.Config, st store.Store, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid configuration: %w", err)
	}

	clk := clock.Real{}
	buf := buffer.New(buffer.DefaultCapacity)

	w := writer.New(st, cfg.BatchSize, cfg.FlushInterval, 0, logger)

	engine := alert.NewEngine(st, clk, logger, 0)
	engine.AddSink(alert.NewLogSink(logger))
	if cfg.NATSURL != "" {
		sink, err := alert.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn().Err(err).Msg("pipeline: nats sink unavailable, continuing without it")
		} else {
			engine.AddSink(sink)
		}
	}
	if cfg.KafkaBrokers != "" {
		sink, err := alert.NewKafkaSink(splitCSV(cfg.KafkaBrokers), cfg.KafkaTopic)
		if err != nil {
			logger.Warn().Err(err).Msg("pipeline: kafka sink unavailable, continuing without it")
		} else {
			engine.AddSink(sink)
		}
	}

	sched, err := scheduler.New(cfg, buf, st, engine, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: scheduler: %w", err)
	}

	fc := feed.New(cfg.FeedEndpointBase, cfg.Symbols, buf, w.Ingest, nil, clk, logger)
	sampler := resource.New(cfg.ResourceSampleInterval, logger)

	return &Pipeline{
		cfg:      cfg,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		clock:    clk,
		store:    st,
		buf:      buf,
		feed:     fc,
		writer:   w,
		engine:   engine,
		sched:    sched,
		sampler:  sampler,
		registry: obsmetrics.Registry(),
	}, nil
}

// Start launches the feed, writer, scheduler, and resource sampler, and
// loads the active alert set (spec §4.8 lifecycle: "start() launches
// the feed, writer, and both periodic tasks").
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.engine.LoadAlerts(ctx); err != nil {
		return fmt.Errorf("pipeline: failed to load alerts: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.runCtx = runCtx
	p.runCancel = cancel

	go func() {
		if err := p.feed.Run(runCtx); err != nil {
			p.logger.Error().Err(err).Msg("pipeline: feed client exited with error")
		}
	}()
	go p.writer.Run(runCtx)
	go p.sampler.Run(runCtx)
	p.sched.Start(runCtx)

	if p.cfg.MetricsAddr != "" {
		p.startMetricsServer()
	}

	p.logger.Info().Msg("pipeline: started")
	return nil
}

// Stop cancels the feed, scheduler, and sampler, drains the writer, and
// closes the feed socket, in the reverse order Start launched them
// (spec §4.8: "stop() cancels them in reverse, drains the writer,
// closes the feed").
func (p *Pipeline) Stop() {
	p.sched.Stop()
	if p.runCancel != nil {
		p.runCancel()
	}
	p.writer.Stop()
	p.feed.Stop()

	if p.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.metricsSrv.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn().Err(err).Msg("pipeline: metrics server shutdown error")
		}
	}

	p.logger.Info().Msg("pipeline: stopped")
}

func (p *Pipeline) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obsmetrics.Handler(p.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	p.metricsSrv = &http.Server{Addr: p.cfg.MetricsAddr, Handler: mux}

	go func() {
		if err := p.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.logger.Error().Err(err).Msg("pipeline: metrics server failed")
		}
	}()
}

// Buffer exposes the Rolling Buffer for read-only inspection (e.g. the
// out-of-scope HTTP query API would be constructed with this handle).
func (p *Pipeline) Buffer() *buffer.Rolling { return p.buf }

// Engine exposes the Alert Engine for admin CRUD wiring.
func (p *Pipeline) Engine() *alert.Engine { return p.engine }

// Store exposes the persistence port.
func (p *Pipeline) Store() store.Store { return p.store }

// splitCSV mirrors the teacher's splitBrokers helper (ws/main.go).
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
