// Package obsmetrics holds the Prometheus metrics for every pipeline
// component, mirroring the teacher's metrics.go but rescoped from
// connection/broadcast metrics to feed/buffer/writer/analytics metrics.
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Feed client (C1).
	FeedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_messages_total",
		Help: "Total number of decoded tick messages received from the upstream feed.",
	})
	FeedMalformedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_malformed_frames_total",
		Help: "Total number of frames dropped for failing to parse.",
	})
	FeedReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_reconnects_total",
		Help: "Total number of reconnect attempts made by the feed client.",
	})
	FeedIsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_is_running",
		Help: "1 while the feed client holds an open upstream connection, 0 otherwise.",
	})
	FeedBufferSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_buffer_size",
		Help: "Current number of ticks held in the per-symbol rolling buffer.",
	}, []string{"symbol"})

	// Tick writer (C3).
	WriterFlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "writer_flushes_total",
		Help: "Total number of flush attempts by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	WriterPendingSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "writer_pending_size",
		Help: "Current number of ticks pending flush, per symbol.",
	}, []string{"symbol"})
	WriterTicksDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "writer_ticks_dropped_total",
		Help: "Total ticks dropped from the writer's bounded intake queue under overload.",
	})

	// Resampler (C4).
	ResamplerBarsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resampler_bars_emitted_total",
		Help: "Total bars emitted by symbol and timeframe.",
	}, []string{"symbol", "timeframe"})

	// Pair analytics (C6) / scheduler (C8).
	AnalyticsSnapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_snapshots_total",
		Help: "Total analytics snapshots computed.",
	})
	AnalyticsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_skipped_total",
		Help: "Total analytics ticks skipped for insufficient data.",
	})
	AnalyticsLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analytics_compute_latency_seconds",
		Help:    "Latency of a single analytics task iteration (join, compute_pair, persist, alert check).",
		Buckets: prometheus.DefBuckets,
	})

	// Alert engine (C7).
	AlertFiringsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_firings_total",
		Help: "Total alert firings by metric.",
	}, []string{"metric"})
	AlertSinkErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_sink_errors_total",
		Help: "Total errors raised by an alert sink, isolated per sink.",
	}, []string{"sink"})

	// Resource sampler (ambient).
	ResourceCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "process_cpu_percent",
		Help: "Sampled process CPU usage percentage.",
	})
	ResourceMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "process_memory_bytes",
		Help: "Sampled process resident memory usage in bytes.",
	})
)

// Registry is a dedicated prometheus registry (not the global default)
// so tests can construct independent instances without collisions.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		FeedMessagesTotal, FeedMalformedTotal, FeedReconnectsTotal, FeedIsRunning, FeedBufferSize,
		WriterFlushesTotal, WriterPendingSize, WriterTicksDroppedTotal,
		ResamplerBarsEmittedTotal,
		AnalyticsSnapshotsTotal, AnalyticsSkippedTotal, AnalyticsLatencySeconds,
		AlertFiringsTotal, AlertSinkErrorsTotal,
		ResourceCPUPercent, ResourceMemoryBytes,
	)
	return r
}

// Handler returns the /metrics HTTP handler for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
