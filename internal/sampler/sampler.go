// Package sampler produces metric snapshots for monitored servers, either
// from the local machine via gopsutil or from a pseudo-random simulator.
package sampler

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"fleetwatch/internal/model"
)

// Mode selects the snapshot source.
type Mode string

const (
	// ModeSimulated generates pseudo-random readings for every server.
	ModeSimulated Mode = "simulated"
	// ModeHost reads real metrics from the machine Fleetwatch runs on.
	ModeHost Mode = "host"
)

// Sampler produces a metric snapshot for a server.
type Sampler interface {
	Sample(ctx context.Context, serverID int64) (model.MetricSnapshot, error)
}

// Selector picks a concrete sampler per platform. On platforms where host
// sampling is not reliable it falls back to the simulator and warns once.
type Selector struct {
	mode      Mode
	host      Sampler
	simulated Sampler
	warnOnce  sync.Once
}

// NewSelector builds a selector for the given mode. minDiskMB is passed
// through to the host sampler.
func NewSelector(mode Mode, minDiskMB int64) *Selector {
	return &Selector{
		mode:      mode,
		host:      NewHost(minDiskMB),
		simulated: NewSimulated(),
	}
}

// Sample delegates to the sampler chosen for the current platform.
func (s *Selector) Sample(ctx context.Context, serverID int64) (model.MetricSnapshot, error) {
	return s.samplerFor(runtime.GOOS).Sample(ctx, serverID)
}

func (s *Selector) samplerFor(goos string) Sampler {
	if s.mode == ModeSimulated {
		return s.simulated
	}
	switch goos {
	case "linux", "darwin", "windows":
		return s.host
	default:
		s.warnOnce.Do(func() {
			slog.Warn("host sampling unsupported on this platform, using simulated data", "goos", goos)
		})
		return s.simulated
	}
}
