package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetwatch/internal/model"
)

// RetentionConfig defines how long to keep data in each table.
type RetentionConfig struct {
	MetricSnapshots time.Duration // default 30d
	DiskSnapshots   time.Duration // default 30d
	ExpiredAlerts   time.Duration // default 90d
}

// DefaultRetention returns the default retention periods.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		MetricSnapshots: 30 * 24 * time.Hour,
		DiskSnapshots:   30 * 24 * time.Hour,
		ExpiredAlerts:   90 * 24 * time.Hour,
	}
}

// Pruner periodically removes old data from the store.
type Pruner struct {
	store     *Store
	retention RetentionConfig
	interval  time.Duration
}

// NewPruner creates a pruner with the given retention config.
func NewPruner(store *Store, retention RetentionConfig) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  1 * time.Hour,
	}
}

// Run starts the pruner loop. It blocks until the context is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	slog.Info("pruner started", "interval", p.interval)

	// Run once at startup
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pruner stopped")
			return ctx.Err()
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() {
	now := time.Now().Unix()
	tables := []struct {
		name      string
		tsColumn  string
		extra     string
		retention time.Duration
	}{
		{"metric_snapshots", "ts", "", p.retention.MetricSnapshots},
		{"disk_snapshots", "ts", "", p.retention.DiskSnapshots},
		{"alerts", "created_at", fmt.Sprintf(" AND status = %d", model.AlertExpired), p.retention.ExpiredAlerts},
	}

	for _, t := range tables {
		cutoff := now - int64(t.retention.Seconds())
		result, err := p.store.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s < ?%s", t.name, t.tsColumn, t.extra), cutoff)
		if err != nil {
			slog.Error("pruning failed", "table", t.name, "error", err)
			continue
		}
		rows, _ := result.RowsAffected()
		if rows > 0 {
			slog.Info("pruned old data", "table", t.name, "rows", rows)
		}
	}
}
