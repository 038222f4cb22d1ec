// Package store provides SQLite persistence for Fleetwatch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleetwatch/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database for Fleetwatch data persistence.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- servers ---

// CreateServer inserts a server and returns it with the assigned ID.
func (s *Store) CreateServer(ctx context.Context, srv model.Server) (model.Server, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO servers
		(name, host_name, ip_address, description, location, os, status, is_active, is_host,
		 cpu_warning, cpu_critical, mem_warning, mem_critical, disk_warning, disk_critical,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.Name, srv.HostName, srv.IPAddress, srv.Description, srv.Location,
		srv.OperatingSystem, int(srv.Status), srv.IsActive, srv.IsHost,
		srv.Thresholds.CPUWarning, srv.Thresholds.CPUCritical,
		srv.Thresholds.MemoryWarning, srv.Thresholds.MemoryCritical,
		srv.Thresholds.DiskWarning, srv.Thresholds.DiskCritical,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return model.Server{}, fmt.Errorf("inserting server: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Server{}, fmt.Errorf("reading server id: %w", err)
	}
	srv.ID = id
	srv.CreatedAt = now
	srv.UpdatedAt = now
	return srv, nil
}

const serverColumns = `id, name, host_name, ip_address, description, location, os,
	status, is_active, is_host,
	cpu_warning, cpu_critical, mem_warning, mem_critical, disk_warning, disk_critical,
	created_at, updated_at`

func scanServer(row interface{ Scan(...any) error }) (model.Server, error) {
	var srv model.Server
	var status int
	var createdAt, updatedAt int64
	err := row.Scan(&srv.ID, &srv.Name, &srv.HostName, &srv.IPAddress,
		&srv.Description, &srv.Location, &srv.OperatingSystem,
		&status, &srv.IsActive, &srv.IsHost,
		&srv.Thresholds.CPUWarning, &srv.Thresholds.CPUCritical,
		&srv.Thresholds.MemoryWarning, &srv.Thresholds.MemoryCritical,
		&srv.Thresholds.DiskWarning, &srv.Thresholds.DiskCritical,
		&createdAt, &updatedAt)
	if err != nil {
		return model.Server{}, err
	}
	srv.Status = model.ServerStatus(status)
	srv.CreatedAt = time.Unix(createdAt, 0)
	srv.UpdatedAt = time.Unix(updatedAt, 0)
	return srv, nil
}

// Server returns the server with the given ID, active or not.
func (s *Store) Server(ctx context.Context, id int64) (model.Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Server{}, fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Server{}, fmt.Errorf("querying server %d: %w", id, err)
	}
	return srv, nil
}

// ActiveServer returns the server with the given ID only if it is active.
func (s *Store) ActiveServer(ctx context.Context, id int64) (model.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE id = ? AND is_active = 1`, id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Server{}, fmt.Errorf("active server %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Server{}, fmt.Errorf("querying server %d: %w", id, err)
	}
	return srv, nil
}

// ActiveServers returns all active servers ordered by name.
func (s *Store) ActiveServers(ctx context.Context) ([]model.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying active servers: %w", err)
	}
	defer rows.Close()

	var servers []model.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// CountServers returns the total number of server rows.
func (s *Store) CountServers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM servers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting servers: %w", err)
	}
	return n, nil
}

// UpdateServerStatus sets a server's health status and bumps updated_at.
func (s *Store) UpdateServerStatus(ctx context.Context, id int64, status model.ServerStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE servers SET status = ?, updated_at = ? WHERE id = ?`,
		int(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("updating server %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- metrics ---

// InsertMetricSnapshot records a point-in-time metric snapshot and returns
// the assigned row ID.
func (s *Store) InsertMetricSnapshot(ctx context.Context, snap model.MetricSnapshot) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO metric_snapshots
		(server_id, cpu_pct, mem_pct, disk_pct, mem_used, mem_total,
		 net_in, net_out, processes, uptime_secs, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ServerID, snap.CPUPct, snap.MemoryPct, snap.DiskPct,
		snap.MemoryUsedBytes, snap.MemoryTotalBytes,
		snap.NetInBytesPerSec, snap.NetOutBytesPerSec,
		snap.Processes, snap.UptimeSecs, snap.Timestamp.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting metric snapshot: %w", err)
	}
	return res.LastInsertId()
}

// InsertDiskSnapshot records a per-volume disk reading.
func (s *Store) InsertDiskSnapshot(ctx context.Context, snap model.DiskSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disk_snapshots (server_id, volume, free_mb, total_mb, used_pct, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ServerID, snap.Volume, snap.FreeMB, snap.TotalMB, snap.UsedPct,
		snap.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting disk snapshot: %w", err)
	}
	return nil
}

// LatestMetricSnapshot returns the most recent snapshot for a server,
// including its per-volume disk rows from the same collection.
func (s *Store) LatestMetricSnapshot(ctx context.Context, serverID int64) (model.MetricSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, server_id, cpu_pct, mem_pct, disk_pct, mem_used, mem_total,
		       net_in, net_out, processes, uptime_secs, ts
		FROM metric_snapshots WHERE server_id = ?
		ORDER BY ts DESC, id DESC LIMIT 1`, serverID)

	var snap model.MetricSnapshot
	var ts int64
	err := row.Scan(&snap.ID, &snap.ServerID, &snap.CPUPct, &snap.MemoryPct,
		&snap.DiskPct, &snap.MemoryUsedBytes, &snap.MemoryTotalBytes,
		&snap.NetInBytesPerSec, &snap.NetOutBytesPerSec,
		&snap.Processes, &snap.UptimeSecs, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MetricSnapshot{}, fmt.Errorf("metrics for server %d: %w", serverID, ErrNotFound)
	}
	if err != nil {
		return model.MetricSnapshot{}, fmt.Errorf("querying latest snapshot: %w", err)
	}
	snap.Timestamp = time.Unix(ts, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, volume, free_mb, total_mb, used_pct, ts
		FROM disk_snapshots WHERE server_id = ? AND ts = ? ORDER BY volume`,
		serverID, ts)
	if err != nil {
		return model.MetricSnapshot{}, fmt.Errorf("querying disk snapshots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d model.DiskSnapshot
		var dts int64
		if err := rows.Scan(&d.ID, &d.ServerID, &d.Volume, &d.FreeMB, &d.TotalMB, &d.UsedPct, &dts); err != nil {
			return model.MetricSnapshot{}, fmt.Errorf("scanning disk snapshot: %w", err)
		}
		d.Timestamp = time.Unix(dts, 0)
		snap.Disks = append(snap.Disks, d)
	}
	return snap, rows.Err()
}

// --- alerts ---

// InsertAlert persists a new alert and returns it with the assigned ID.
func (s *Store) InsertAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
		(server_id, title, message, status, severity, metric_type, metric_value,
		 threshold_value, created_at, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ServerID, a.Title, a.Message, int(a.Status), int(a.Severity),
		a.MetricType, a.MetricValue, a.ThresholdValue, a.CreatedAt.Unix(), a.Resolution,
	)
	if err != nil {
		return model.Alert{}, fmt.Errorf("inserting alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Alert{}, fmt.Errorf("reading alert id: %w", err)
	}
	a.ID = id
	return a, nil
}

const alertColumns = `id, server_id, title, message, status, severity, metric_type,
	metric_value, threshold_value, created_at, acked_at, acked_by,
	resolved_at, resolved_by, resolution`

func scanAlert(row interface{ Scan(...any) error }) (model.Alert, error) {
	var a model.Alert
	var status, severity int
	var createdAt int64
	var ackedAt, resolvedAt sql.NullInt64
	var ackedBy, resolvedBy sql.NullString
	err := row.Scan(&a.ID, &a.ServerID, &a.Title, &a.Message, &status, &severity,
		&a.MetricType, &a.MetricValue, &a.ThresholdValue, &createdAt,
		&ackedAt, &ackedBy, &resolvedAt, &resolvedBy, &a.Resolution)
	if err != nil {
		return model.Alert{}, err
	}
	a.Status = model.AlertStatus(status)
	a.Severity = model.AlertSeverity(severity)
	a.CreatedAt = time.Unix(createdAt, 0)
	if ackedAt.Valid {
		t := time.Unix(ackedAt.Int64, 0)
		a.AcknowledgedAt = &t
	}
	if ackedBy.Valid {
		a.AcknowledgedBy = &ackedBy.String
	}
	if resolvedAt.Valid {
		t := time.Unix(resolvedAt.Int64, 0)
		a.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		a.ResolvedBy = &resolvedBy.String
	}
	return a, nil
}

// Alert returns the alert with the given ID.
func (s *Store) Alert(ctx context.Context, id int64) (model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Alert{}, fmt.Errorf("querying alert %d: %w", id, err)
	}
	return a, nil
}

// LastActiveAlert returns the most recent active alert for a server with the
// given title, or ErrNotFound if none exists.
func (s *Store) LastActiveAlert(ctx context.Context, serverID int64, title string) (model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE server_id = ? AND title = ? AND status = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		serverID, title, int(model.AlertActive))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, ErrNotFound
	}
	if err != nil {
		return model.Alert{}, fmt.Errorf("querying last active alert: %w", err)
	}
	return a, nil
}

// UpdateAlert writes back the mutable lifecycle fields of an alert.
func (s *Store) UpdateAlert(ctx context.Context, a model.Alert) error {
	var ackedAt, resolvedAt sql.NullInt64
	var ackedBy, resolvedBy sql.NullString
	if a.AcknowledgedAt != nil {
		ackedAt = sql.NullInt64{Int64: a.AcknowledgedAt.Unix(), Valid: true}
	}
	if a.AcknowledgedBy != nil {
		ackedBy = sql.NullString{String: *a.AcknowledgedBy, Valid: true}
	}
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: a.ResolvedAt.Unix(), Valid: true}
	}
	if a.ResolvedBy != nil {
		resolvedBy = sql.NullString{String: *a.ResolvedBy, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, acked_at = ?, acked_by = ?,
		                  resolved_at = ?, resolved_by = ?, resolution = ?
		WHERE id = ?`,
		int(a.Status), ackedAt, ackedBy, resolvedAt, resolvedBy, a.Resolution, a.ID)
	if err != nil {
		return fmt.Errorf("updating alert %d: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d: %w", a.ID, ErrNotFound)
	}
	return nil
}

// AlertFilter narrows an Alerts query. Nil fields match everything.
type AlertFilter struct {
	ServerID *int64
	Status   *model.AlertStatus
	Limit    int
}

// Alerts returns alerts matching the filter, newest first.
func (s *Store) Alerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	if f.ServerID != nil {
		q += ` AND server_id = ?`
		args = append(args, *f.ServerID)
	}
	if f.Status != nil {
		q += ` AND status = ?`
		args = append(args, int(*f.Status))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ArchiveResolvedAlerts moves all resolved alerts to the expired status and
// returns how many rows changed.
func (s *Store) ArchiveResolvedAlerts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET status = ? WHERE status = ?`,
		int(model.AlertExpired), int(model.AlertResolved))
	if err != nil {
		return 0, fmt.Errorf("archiving resolved alerts: %w", err)
	}
	return res.RowsAffected()
}

// ResolveStaleAlerts resolves alerts of the given severity and status created
// before the cutoff, stamping them with the given resolution note. It returns
// how many rows changed.
func (s *Store) ResolveStaleAlerts(ctx context.Context, sev model.AlertSeverity, status model.AlertStatus, cutoff time.Time, resolvedBy, resolution string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, resolved_at = ?, resolved_by = ?, resolution = ?
		WHERE severity = ? AND status = ? AND created_at < ?`,
		int(model.AlertResolved), time.Now().Unix(), resolvedBy, resolution,
		int(sev), int(status), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("resolving stale alerts: %w", err)
	}
	return res.RowsAffected()
}

// CountAlertsByStatus returns the number of alerts per lifecycle status.
func (s *Store) CountAlertsByStatus(ctx context.Context) (map[model.AlertStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.AlertStatus]int)
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning alert count: %w", err)
		}
		counts[model.AlertStatus(status)] = n
	}
	return counts, rows.Err()
}

// --- report schedules ---

// InsertReportSchedule persists a schedule and returns it with the assigned ID.
func (s *Store) InsertReportSchedule(ctx context.Context, rs model.ReportSchedule) (model.ReportSchedule, error) {
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO report_schedules
		(server_id, name, description, cron_expr, is_active, next_run_at, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ServerID, rs.Name, rs.Description, rs.CronExpr, rs.IsActive,
		rs.NextRunAt.Unix(), rs.CreatedBy, rs.CreatedAt.Unix())
	if err != nil {
		return model.ReportSchedule{}, fmt.Errorf("inserting report schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ReportSchedule{}, fmt.Errorf("reading schedule id: %w", err)
	}
	rs.ID = id
	return rs, nil
}

// DueReportSchedules returns active schedules whose next run time has passed.
func (s *Store) DueReportSchedules(ctx context.Context, now time.Time) ([]model.ReportSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, name, description, cron_expr, is_active,
		       last_run_at, next_run_at, created_by, created_at
		FROM report_schedules
		WHERE is_active = 1 AND next_run_at <= ?
		ORDER BY next_run_at`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.ReportSchedule
	for rows.Next() {
		var rs model.ReportSchedule
		var lastRun sql.NullInt64
		var nextRun, createdAt int64
		if err := rows.Scan(&rs.ID, &rs.ServerID, &rs.Name, &rs.Description,
			&rs.CronExpr, &rs.IsActive, &lastRun, &nextRun, &rs.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		if lastRun.Valid {
			t := time.Unix(lastRun.Int64, 0)
			rs.LastRunAt = &t
		}
		rs.NextRunAt = time.Unix(nextRun, 0)
		rs.CreatedAt = time.Unix(createdAt, 0)
		schedules = append(schedules, rs)
	}
	return schedules, rows.Err()
}

// UpdateScheduleRun records a schedule execution and its next due time.
func (s *Store) UpdateScheduleRun(ctx context.Context, id int64, ranAt, nextRun time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		ranAt.Unix(), nextRun.Unix(), id)
	if err != nil {
		return fmt.Errorf("updating schedule %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// InsertReport persists a report row and returns it with the assigned ID.
func (s *Store) InsertReport(ctx context.Context, r model.Report) (model.Report, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var scheduleID sql.NullInt64
	if r.ScheduleID != nil {
		scheduleID = sql.NullInt64{Int64: *r.ScheduleID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (schedule_id, server_id, title, status, range_start, range_end, requested_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scheduleID, r.ServerID, r.Title, int(r.Status),
		r.RangeStart.Unix(), r.RangeEnd.Unix(), r.RequestedBy, r.CreatedAt.Unix())
	if err != nil {
		return model.Report{}, fmt.Errorf("inserting report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Report{}, fmt.Errorf("reading report id: %w", err)
	}
	r.ID = id
	return r, nil
}
