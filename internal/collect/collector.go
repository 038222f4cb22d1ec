// Package collect orchestrates a single metric collection for a server:
// sample, persist, evaluate thresholds, raise alerts, update status, and
// fan out the results.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/cache"
	"fleetwatch/internal/model"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/sampler"
	"fleetwatch/internal/store"
	"fleetwatch/internal/threshold"
)

// Result is the outcome of one collection pass for one server.
type Result struct {
	Server        model.Server
	Snapshot      model.MetricSnapshot
	NewAlerts     []model.Alert
	Status        model.ServerStatus
	StatusChanged bool
}

// Collector runs the collection pipeline. Persistence failures abort the
// pass; cache and notification failures are logged and swallowed so the
// stored data always wins.
type Collector struct {
	store    *store.Store
	sampler  sampler.Sampler
	alerts   *alerting.Manager
	cache    cache.Cache
	notifier notify.Notifier
	cacheTTL time.Duration
}

// New wires up a collector. A nil cache or notifier disables that surface.
func New(s *store.Store, smp sampler.Sampler, alerts *alerting.Manager, c cache.Cache, n notify.Notifier, cacheTTL time.Duration) *Collector {
	if n == nil {
		n = notify.Discard{}
	}
	return &Collector{
		store:    s,
		sampler:  smp,
		alerts:   alerts,
		cache:    c,
		notifier: n,
		cacheTTL: cacheTTL,
	}
}

// Collect runs one collection pass for the given server.
func (c *Collector) Collect(ctx context.Context, serverID int64) (Result, error) {
	srv, err := c.store.ActiveServer(ctx, serverID)
	if err != nil {
		return Result{}, fmt.Errorf("loading server %d: %w", serverID, err)
	}

	snap, err := c.sampler.Sample(ctx, serverID)
	if err != nil {
		return Result{}, fmt.Errorf("sampling server %d: %w", serverID, err)
	}

	snapID, err := c.store.InsertMetricSnapshot(ctx, snap)
	if err != nil {
		slog.Error("persisting snapshot failed", "server_id", serverID, "error", err)
		return Result{}, fmt.Errorf("persisting snapshot for server %d: %w", serverID, err)
	}
	snap.ID = snapID

	for _, d := range snap.Disks {
		if err := c.store.InsertDiskSnapshot(ctx, d); err != nil {
			slog.Warn("persisting disk snapshot failed",
				"server_id", serverID, "volume", d.Volume, "error", err)
		}
	}

	res := Result{Server: srv, Snapshot: snap}
	res.NewAlerts = c.evaluate(ctx, srv, snap)

	res.Status = c.determineStatus(srv, snap)
	if res.Status != srv.Status {
		if err := c.store.UpdateServerStatus(ctx, srv.ID, res.Status); err != nil {
			slog.Warn("updating server status failed", "server_id", srv.ID, "error", err)
		} else {
			res.StatusChanged = true
			slog.Info("server status changed",
				"server_id", srv.ID, "from", srv.Status, "to", res.Status)
		}
	}

	c.publish(ctx, res)
	return res, nil
}

func (c *Collector) evaluate(ctx context.Context, srv model.Server, snap model.MetricSnapshot) []model.Alert {
	t := srv.Thresholds
	var alerts []model.Alert

	if check := threshold.Evaluate("CPU", snap.CPUPct, t.CPUWarning, t.CPUCritical); check.ShouldAlert {
		alerts = c.raise(ctx, alerts, model.Alert{
			ServerID:       srv.ID,
			Title:          "CPU Usage Alert",
			Message:        check.Message,
			Severity:       check.Severity,
			MetricType:     "cpu",
			MetricValue:    snap.CPUPct,
			ThresholdValue: breachedThreshold(check.Severity, t.CPUWarning, t.CPUCritical),
		})
	}

	if check := threshold.Evaluate("Memory", snap.MemoryPct, t.MemoryWarning, t.MemoryCritical); check.ShouldAlert {
		alerts = c.raise(ctx, alerts, model.Alert{
			ServerID:       srv.ID,
			Title:          "Memory Usage Alert",
			Message:        check.Message,
			Severity:       check.Severity,
			MetricType:     "memory",
			MetricValue:    snap.MemoryPct,
			ThresholdValue: breachedThreshold(check.Severity, t.MemoryWarning, t.MemoryCritical),
		})
	}

	for _, d := range snap.Disks {
		check := threshold.EvaluateDisk(d.Volume, d.UsedPct, t.DiskWarning, t.DiskCritical)
		if !check.ShouldAlert {
			continue
		}
		title := fmt.Sprintf("Disk %s Warning", d.Volume)
		if check.Severity == model.SeverityCritical {
			title = fmt.Sprintf("Disk %s Critical", d.Volume)
		}
		alerts = c.raise(ctx, alerts, model.Alert{
			ServerID:       srv.ID,
			Title:          title,
			Message:        check.Message,
			Severity:       check.Severity,
			MetricType:     "disk",
			MetricValue:    d.UsedPct,
			ThresholdValue: breachedThreshold(check.Severity, t.DiskWarning, t.DiskCritical),
		})
	}

	return alerts
}

func (c *Collector) raise(ctx context.Context, alerts []model.Alert, a model.Alert) []model.Alert {
	created, err := c.alerts.CreateIfNotSuppressed(ctx, a)
	if err != nil {
		slog.Warn("creating alert failed",
			"server_id", a.ServerID, "title", a.Title, "error", err)
		return alerts
	}
	if created == nil {
		return alerts
	}
	slog.Info("alert triggered",
		"server_id", created.ServerID, "title", created.Title, "severity", created.Severity)
	return append(alerts, *created)
}

func (c *Collector) determineStatus(srv model.Server, snap model.MetricSnapshot) model.ServerStatus {
	var disk *float64
	if len(snap.Disks) > 0 {
		disk = &snap.DiskPct
	}
	return threshold.DetermineStatus(snap.CPUPct, snap.MemoryPct, disk, srv.Thresholds)
}

func (c *Collector) publish(ctx context.Context, res Result) {
	if c.cache != nil {
		latest := model.LatestMetrics{
			MetricSnapshot: res.Snapshot,
			Status:         res.Status.String(),
		}
		if err := c.cache.Set(ctx, cache.LatestKey(res.Server.ID), latest, c.cacheTTL); err != nil {
			slog.Warn("caching latest metrics failed", "server_id", res.Server.ID, "error", err)
		}
	}

	if err := c.notifier.PublishMetricUpdate(ctx, res.Server.ID, res.Snapshot); err != nil {
		slog.Warn("metric update notification failed", "server_id", res.Server.ID, "error", err)
	}
	for _, a := range res.NewAlerts {
		if err := c.notifier.PublishAlertTriggered(ctx, a); err != nil {
			slog.Warn("alert notification failed", "alert_id", a.ID, "error", err)
		}
	}
}

func breachedThreshold(sev model.AlertSeverity, warn, crit float64) float64 {
	if sev == model.SeverityCritical {
		return crit
	}
	return warn
}
