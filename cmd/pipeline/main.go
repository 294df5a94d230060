// Command pipeline is the process entrypoint for the cointegration
// streaming analytics pipeline, following the shape of the teacher's
// ws/main.go and ws/cmd/single/main.go: automaxprocs side-effect
// import, flag-overridable debug logging, config load, construct,
// start, wait for signal, graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/quantpipe/cointegration-pipeline/internal/config"
	"github.com/quantpipe/cointegration-pipeline/internal/logging"
	"github.com/quantpipe/cointegration-pipeline/internal/pipeline"
	"github.com/quantpipe/cointegration-pipeline/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("gomaxprocs set via automaxprocs")
	cfg.LogConfig(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to persistence store: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	p, err := pipeline.New(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("failed to construct pipeline: %w", err)
	}
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining pipeline")
	p.Stop()
	return nil
}
