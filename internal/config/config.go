// Package config loads pipeline configuration from the environment,
// following the same struct-tag + validation shape the teacher server
// used for its own configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all pipeline configuration.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
//	envSeparator: list separator for slice fields
type Config struct {
	// Instruments and resolutions (spec §6).
	Symbols    []string `env:"SYMBOLS" envDefault:"BTCUSDT,ETHUSDT" envSeparator:","`
	Timeframes []string `env:"TIMEFRAMES" envDefault:"1s,1m,5m" envSeparator:","`

	DefaultRollingWindow int           `env:"DEFAULT_ROLLING_WINDOW" envDefault:"20"`
	AnalyticsInterval    time.Duration `env:"ANALYTICS_INTERVAL" envDefault:"1s"`
	BatchSize            int           `env:"BATCH_SIZE" envDefault:"100"`
	FlushInterval        time.Duration `env:"FLUSH_INTERVAL" envDefault:"1s"`

	FeedEndpointBase string `env:"FEED_ENDPOINT_BASE" envDefault:"wss://stream.binance.com:9443/stream"`
	DBURL            string `env:"DB_URL" envDefault:"postgres://localhost:5432/cointegration?sslmode=disable"`

	// Optional alert sinks (domain stack wiring, see DESIGN.md).
	NATSURL      string `env:"NATS_URL" envDefault:""`
	NATSSubject  string `env:"NATS_ALERT_SUBJECT" envDefault:"cointegration.alerts"`
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:""`
	KafkaTopic   string `env:"KAFKA_ALERT_TOPIC" envDefault:"cointegration-alerts"`

	// Ambient: logging/metrics (carried regardless of the dashboard/HTTP
	// API being out of scope — see SPEC_FULL.md AMBIENT STACK).
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsAddr  string `env:"METRICS_ADDR" envDefault:":9090"`
	ResourceSampleInterval time.Duration `env:"RESOURCE_SAMPLE_INTERVAL" envDefault:"15s"`
}

// Load reads configuration from an optional .env file and the
// environment. Priority: env vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// PairSymbols returns the first two configured symbols, which form the
// analytics pair per spec §6.
func (c *Config) PairSymbols() (string, string, error) {
	if len(c.Symbols) < 2 {
		return "", "", fmt.Errorf("config: need at least 2 symbols, got %d", len(c.Symbols))
	}
	return strings.ToUpper(c.Symbols[0]), strings.ToUpper(c.Symbols[1]), nil
}

// Validate checks for fatal configuration errors (spec §7: unknown
// timeframe, non-positive window are construction-time errors).
func (c *Config) Validate() error {
	if len(c.Symbols) < 2 {
		return fmt.Errorf("SYMBOLS must list at least 2 instruments, got %d", len(c.Symbols))
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("TIMEFRAMES must not be empty")
	}
	allowed := map[string]bool{"1s": true, "1m": true, "5m": true}
	for _, tf := range c.Timeframes {
		if !allowed[tf] {
			return fmt.Errorf("TIMEFRAMES contains unknown timeframe %q (allowed: 1s, 1m, 5m)", tf)
		}
	}
	if c.DefaultRollingWindow < 5 {
		return fmt.Errorf("DEFAULT_ROLLING_WINDOW must be >= 5, got %d", c.DefaultRollingWindow)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be > 0, got %d", c.BatchSize)
	}
	if c.AnalyticsInterval <= 0 {
		return fmt.Errorf("ANALYTICS_INTERVAL must be > 0, got %s", c.AnalyticsInterval)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL must be > 0, got %s", c.FlushInterval)
	}
	if c.FeedEndpointBase == "" {
		return fmt.Errorf("FEED_ENDPOINT_BASE is required")
	}
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console (got %q)", c.LogFormat)
	}
	return nil
}

// LogConfig logs the loaded configuration via structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Strs("symbols", c.Symbols).
		Strs("timeframes", c.Timeframes).
		Int("default_rolling_window", c.DefaultRollingWindow).
		Dur("analytics_interval", c.AnalyticsInterval).
		Int("batch_size", c.BatchSize).
		Dur("flush_interval", c.FlushInterval).
		Str("feed_endpoint_base", c.FeedEndpointBase).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}

// Print dumps the loaded configuration to stdout for human-readable
// startup debugging, mirroring the teacher's config.go Print().
func (c *Config) Print() {
	fmt.Println("=== Pipeline Configuration ===")
	fmt.Printf("Symbols:          %s\n", strings.Join(c.Symbols, ", "))
	fmt.Printf("Timeframes:       %s\n", strings.Join(c.Timeframes, ", "))
	fmt.Println("\n=== Analytics ===")
	fmt.Printf("Rolling Window:   %d\n", c.DefaultRollingWindow)
	fmt.Printf("Interval:         %s\n", c.AnalyticsInterval)
	fmt.Println("\n=== Tick Writer ===")
	fmt.Printf("Batch Size:       %d\n", c.BatchSize)
	fmt.Printf("Flush Interval:   %s\n", c.FlushInterval)
	fmt.Println("\n=== Endpoints ===")
	fmt.Printf("Feed Endpoint:    %s\n", c.FeedEndpointBase)
	fmt.Printf("DB URL:           %s\n", c.DBURL)
	fmt.Println("\n=== Logging ===")
	fmt.Printf("Level:            %s\n", c.LogLevel)
	fmt.Printf("Format:           %s\n", c.LogFormat)
	fmt.Println("===============================")
}
