package alert

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// LogSink writes every firing as a structured warning log, mirroring
// original_source/alerts/engine.py's "ALERT TRIGGERED" log line.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "alert_log_sink").Logger()}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, f model.Firing) error {
	s.logger.Warn().
		Str("firing_id", f.FiringID).
		Int64("alert_id", f.AlertID).
		Str("metric", f.Metric).
		Str("condition", string(f.Condition)).
		Float64("threshold", f.Threshold).
		Float64("current_value", f.CurrentValue).
		Str("timestamp_utc", f.TimestampUTC).
		Msg("ALERT TRIGGERED")
	return nil
}
