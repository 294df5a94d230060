// Package resource samples process CPU and memory usage on an interval
// and surfaces it through obsmetrics, grounded on the teacher's
// monitoring_collectors.go (process.NewProcess + gopsutil's mem/cpu
// packages), simplified from its container-admission-control role (not
// carried here, see DESIGN.md) down to two process gauges,
// process_cpu_percent and process_memory_bytes. The feed client's
// is_running gauge is set by internal/feed, not here.
package resource

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/quantpipe/cointegration-pipeline/internal/obsmetrics"
)

// Sampler periodically records this process's CPU and resident memory
// usage.
type Sampler struct {
	interval time.Duration
	logger   zerolog.Logger
	proc     *process.Process
}

// New constructs a Sampler. interval <= 0 defaults to 15s.
func New(interval time.Duration, logger zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &Sampler{interval: interval, logger: logger.With().Str("component", "resource").Logger()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	} else {
		s.logger.Warn().Err(err).Msg("resource: failed to open process handle, memory sampling disabled")
	}
	return s
}

// Run samples on Sampler's interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sampleOnce()
	for {
		select {
		case <-ticker.C:
			s.sampleOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sampler) sampleOnce() {
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		obsmetrics.ResourceCPUPercent.Set(pct[0])
	} else if err != nil {
		s.logger.Debug().Err(err).Msg("resource: cpu sample failed")
	}

	if s.proc == nil {
		return
	}
	info, err := s.proc.MemoryInfo()
	if err != nil {
		s.logger.Debug().Err(err).Msg("resource: memory sample failed")
		return
	}
	obsmetrics.ResourceMemoryBytes.Set(float64(info.RSS))
}
