package sampler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"fleetwatch/internal/model"
)

const simMemoryTotal = 16 * 1024 * 1024 * 1024 // 16 GiB

// Simulated generates plausible pseudo-random readings for every server.
// Used in demos and on platforms without host sampling.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulator seeded from the current time.
func NewSimulated() *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Simulated) Sample(ctx context.Context, serverID int64) (model.MetricSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.MetricSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	memPct := s.pct(20, 85)
	memUsed := int64(simMemoryTotal * memPct / 100)

	snap := model.MetricSnapshot{
		ServerID:          serverID,
		CPUPct:            s.pct(5, 95),
		MemoryPct:         memPct,
		MemoryUsedBytes:   memUsed,
		MemoryTotalBytes:  simMemoryTotal,
		NetInBytesPerSec:  math.Round(s.rng.Float64() * 50e6),
		NetOutBytesPerSec: math.Round(s.rng.Float64() * 20e6),
		Processes:         80 + s.rng.Intn(240),
		UptimeSecs:        float64(3600 + s.rng.Intn(90*24*3600)),
		Timestamp:         now,
	}

	rootPct := s.pct(30, 90)
	dataPct := s.pct(10, 70)
	snap.Disks = []model.DiskSnapshot{
		simVolume(serverID, "/", 100*1024, rootPct, now),
		simVolume(serverID, "/data", 500*1024, dataPct, now),
	}

	var usedSum, totalSum float64
	for _, d := range snap.Disks {
		usedSum += float64(d.TotalMB) * d.UsedPct / 100
		totalSum += float64(d.TotalMB)
	}
	snap.DiskPct = math.Round(usedSum/totalSum*1000) / 10

	return snap, nil
}

func (s *Simulated) pct(min, max float64) float64 {
	return math.Round((min+s.rng.Float64()*(max-min))*10) / 10
}

func simVolume(serverID int64, mount string, totalMB int64, usedPct float64, ts time.Time) model.DiskSnapshot {
	freeMB := int64(float64(totalMB) * (100 - usedPct) / 100)
	return model.DiskSnapshot{
		ServerID:  serverID,
		Volume:    mount,
		FreeMB:    freeMB,
		TotalMB:   totalMB,
		UsedPct:   usedPct,
		Timestamp: ts,
	}
}
