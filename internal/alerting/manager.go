// Package alerting owns the alert lifecycle: creation with anti-spam
// suppression, acknowledgement, resolution, and periodic cleanup.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fleetwatch/internal/model"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/store"
)

// ErrInvalidTransition is returned when an alert cannot move to the
// requested lifecycle state from its current one.
var ErrInvalidTransition = errors.New("invalid alert state transition")

// staleResolution is stamped on alerts auto-resolved by the cleanup job.
const staleResolution = "Auto-resolved by system maintenance job."

// Config holds the alert lifecycle tunables.
type Config struct {
	// SuppressionWindow is the minimum time between two alerts with the
	// same server and title. A newer breach inside the window is dropped.
	SuppressionWindow time.Duration
	// StaleCutoff is the age past which still-active informational alerts
	// are auto-resolved.
	StaleCutoff time.Duration
}

// DefaultConfig returns the standard lifecycle tunables.
func DefaultConfig() Config {
	return Config{
		SuppressionWindow: time.Hour,
		StaleCutoff:       24 * time.Hour,
	}
}

// Manager enforces the alert lifecycle rules on top of the store.
type Manager struct {
	store    *store.Store
	notifier notify.Notifier
	cfg      Config

	// mu serializes the suppression check-then-insert so two concurrent
	// collections cannot both slip the same alert past the window.
	mu sync.Mutex
}

// NewManager creates a manager. A nil notifier disables notifications.
func NewManager(s *store.Store, n notify.Notifier, cfg Config) *Manager {
	if n == nil {
		n = notify.Discard{}
	}
	return &Manager{store: s, notifier: n, cfg: cfg}
}

// CreateIfNotSuppressed persists the alert unless an active alert with the
// same server and title was created within the suppression window. It
// returns nil with no error when the alert was suppressed.
func (m *Manager) CreateIfNotSuppressed(ctx context.Context, a model.Alert) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, err := m.store.LastActiveAlert(ctx, a.ServerID, a.Title)
	if err == nil && time.Since(last.CreatedAt) < m.cfg.SuppressionWindow {
		slog.Debug("alert suppressed",
			"server_id", a.ServerID, "title", a.Title, "last_created", last.CreatedAt)
		return nil, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking alert suppression: %w", err)
	}

	a.Status = model.AlertActive
	created, err := m.store.InsertAlert(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("creating alert: %w", err)
	}
	return &created, nil
}

// Acknowledge marks an active alert as seen by an operator. Alerts that are
// already resolved or expired cannot be acknowledged.
func (m *Manager) Acknowledge(ctx context.Context, id int64, who string) (model.Alert, error) {
	a, err := m.store.Alert(ctx, id)
	if err != nil {
		return model.Alert{}, err
	}
	switch a.Status {
	case model.AlertActive:
	case model.AlertAcknowledged:
		// Re-acknowledging is harmless but pointless.
		return a, nil
	default:
		return model.Alert{}, fmt.Errorf("acknowledge alert %d in status %s: %w",
			id, a.Status, ErrInvalidTransition)
	}

	now := time.Now()
	a.Status = model.AlertAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = &who
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return model.Alert{}, err
	}
	return a, nil
}

// Resolve closes an alert. Resolved and expired alerts cannot be resolved
// again. The resolution notification is best-effort: a notifier failure
// never rolls back the state change.
func (m *Manager) Resolve(ctx context.Context, id int64, who, resolution string) (model.Alert, error) {
	a, err := m.store.Alert(ctx, id)
	if err != nil {
		return model.Alert{}, err
	}
	switch a.Status {
	case model.AlertActive, model.AlertAcknowledged:
	default:
		return model.Alert{}, fmt.Errorf("resolve alert %d in status %s: %w",
			id, a.Status, ErrInvalidTransition)
	}

	now := time.Now()
	a.Status = model.AlertResolved
	a.ResolvedAt = &now
	a.ResolvedBy = &who
	a.Resolution = resolution
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return model.Alert{}, err
	}

	if err := m.notifier.PublishAlertResolved(ctx, a); err != nil {
		slog.Warn("alert resolved notification failed", "alert_id", a.ID, "error", err)
	}
	return a, nil
}

// ArchiveResolved moves all resolved alerts to the expired status and
// returns how many were archived.
func (m *Manager) ArchiveResolved(ctx context.Context) (int64, error) {
	n, err := m.store.ArchiveResolvedAlerts(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("archived resolved alerts", "count", n)
	}
	return n, nil
}

// ResolveStale auto-resolves informational alerts that have been active
// longer than the stale cutoff.
func (m *Manager) ResolveStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.cfg.StaleCutoff)
	n, err := m.store.ResolveStaleAlerts(ctx, model.SeverityInfo, model.AlertActive,
		cutoff, "system", staleResolution)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("auto-resolved stale alerts", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
