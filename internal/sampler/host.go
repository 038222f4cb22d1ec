package sampler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	gohost "github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"fleetwatch/internal/model"
)

// warmupDelay spaces the two CPU readings taken on the very first sample,
// when no previous counters exist yet to diff against.
const warmupDelay = 100 * time.Millisecond

type netCounters struct {
	recv uint64
	sent uint64
}

// Host samples real metrics from the local machine. CPU usage and network
// rates are derived from counter deltas between consecutive samples, so the
// sampler is stateful and must be reused across collections.
type Host struct {
	minDiskBytes uint64

	mu        sync.Mutex
	lastCPU   *cpu.TimesStat
	lastNet   *netCounters
	lastNetAt time.Time
}

// NewHost creates a host sampler. Volumes smaller than minDiskMB are
// excluded from disk readings.
func NewHost(minDiskMB int64) *Host {
	return &Host{minDiskBytes: uint64(minDiskMB) * 1024 * 1024}
}

// Sample reads the machine's current metrics. Individual probe failures are
// logged and leave the corresponding fields zero rather than failing the
// whole snapshot.
func (h *Host) Sample(ctx context.Context, serverID int64) (model.MetricSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := model.MetricSnapshot{
		ServerID:  serverID,
		Timestamp: time.Now(),
	}

	if err := h.sampleCPU(ctx, &snap); err != nil {
		slog.Warn("cpu sampling failed", "error", err)
	}
	if err := h.sampleMemory(ctx, &snap); err != nil {
		slog.Warn("memory sampling failed", "error", err)
	}
	if err := h.sampleDisks(ctx, &snap); err != nil {
		slog.Warn("disk sampling failed", "error", err)
	}
	if err := h.sampleNetwork(ctx, &snap); err != nil {
		slog.Warn("network sampling failed", "error", err)
	}

	if pids, err := process.PidsWithContext(ctx); err == nil {
		snap.Processes = len(pids)
	} else {
		slog.Warn("process sampling failed", "error", err)
	}
	if uptime, err := gohost.UptimeWithContext(ctx); err == nil {
		snap.UptimeSecs = float64(uptime)
	} else {
		slog.Warn("uptime sampling failed", "error", err)
	}

	return snap, ctx.Err()
}

func (h *Host) sampleCPU(ctx context.Context, snap *model.MetricSnapshot) error {
	cur, err := totalCPUTimes(ctx)
	if err != nil {
		return err
	}

	if h.lastCPU == nil {
		// No previous reading: take a second one a short beat later so
		// the delta covers a real interval.
		select {
		case <-time.After(warmupDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		first := cur
		cur, err = totalCPUTimes(ctx)
		if err != nil {
			return err
		}
		snap.CPUPct = cpuUsagePercent(first, cur)
	} else {
		snap.CPUPct = cpuUsagePercent(*h.lastCPU, cur)
	}
	h.lastCPU = &cur
	return nil
}

func totalCPUTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, errors.New("no cpu times reported")
	}
	return times[0], nil
}

// cpuUsagePercent derives usage from two cumulative CPU time readings.
// Iowait counts as idle time. The result is clamped to [0, 100] and rounded
// to one decimal place.
func cpuUsagePercent(prev, cur cpu.TimesStat) float64 {
	totalDelta := cur.Total() - prev.Total()
	if totalDelta <= 0 {
		return 0
	}
	idleDelta := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	usage := (1 - idleDelta/totalDelta) * 100
	if usage < 0 {
		usage = 0
	}
	if usage > 100 {
		usage = 100
	}
	return math.Round(usage*10) / 10
}

func (h *Host) sampleMemory(ctx context.Context, snap *model.MetricSnapshot) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	// Available accounting: reclaimable caches are not "used".
	used := vm.Total - vm.Available
	snap.MemoryUsedBytes = int64(used)
	snap.MemoryTotalBytes = int64(vm.Total)
	if vm.Total > 0 {
		snap.MemoryPct = math.Round(float64(used)/float64(vm.Total)*1000) / 10
	}
	return nil
}

func (h *Host) sampleDisks(ctx context.Context, snap *model.MetricSnapshot) error {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return err
	}

	var usedSum, totalSum uint64
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total < h.minDiskBytes {
			continue
		}
		usedSum += usage.Used
		totalSum += usage.Total
		snap.Disks = append(snap.Disks, model.DiskSnapshot{
			ServerID:  snap.ServerID,
			Volume:    p.Mountpoint,
			FreeMB:    int64(usage.Free / (1024 * 1024)),
			TotalMB:   int64(usage.Total / (1024 * 1024)),
			UsedPct:   math.Round(usage.UsedPercent*10) / 10,
			Timestamp: snap.Timestamp,
		})
	}
	if totalSum > 0 {
		snap.DiskPct = math.Round(float64(usedSum)/float64(totalSum)*1000) / 10
	}
	return nil
}

func (h *Host) sampleNetwork(ctx context.Context, snap *model.MetricSnapshot) error {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return err
	}

	var cur netCounters
	for _, c := range counters {
		if strings.HasPrefix(c.Name, "lo") {
			continue
		}
		cur.recv += c.BytesRecv
		cur.sent += c.BytesSent
	}
	now := time.Now()

	if h.lastNet != nil {
		elapsed := now.Sub(h.lastNetAt).Seconds()
		if elapsed > 0 && cur.recv >= h.lastNet.recv && cur.sent >= h.lastNet.sent {
			snap.NetInBytesPerSec = math.Round(float64(cur.recv-h.lastNet.recv) / elapsed)
			snap.NetOutBytesPerSec = math.Round(float64(cur.sent-h.lastNet.sent) / elapsed)
		}
	}
	h.lastNet = &cur
	h.lastNetAt = now
	return nil
}
