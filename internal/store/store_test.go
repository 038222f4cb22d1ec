package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedServer(t *testing.T, s *Store, mutate func(*model.Server)) model.Server {
	t.Helper()
	srv := model.Server{
		Name:       "web-01",
		HostName:   "web-01.internal",
		IPAddress:  "10.0.0.5",
		Status:     model.StatusUnknown,
		IsActive:   true,
		Thresholds: model.DefaultThresholds(),
	}
	if mutate != nil {
		mutate(&srv)
	}
	created, err := s.CreateServer(context.Background(), srv)
	require.NoError(t, err)
	return created
}

func TestCreateAndGetServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := seedServer(t, s, nil)
	assert.NotZero(t, srv.ID)

	got, err := s.Server(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-01", got.Name)
	assert.Equal(t, "10.0.0.5", got.IPAddress)
	assert.Equal(t, model.DefaultThresholds(), got.Thresholds)
	assert.True(t, got.IsActive)

	_, err = s.Server(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := seedServer(t, s, nil)
	inactive := seedServer(t, s, func(srv *model.Server) {
		srv.Name = "retired-01"
		srv.IsActive = false
	})

	_, err := s.ActiveServer(ctx, active.ID)
	require.NoError(t, err)

	_, err = s.ActiveServer(ctx, inactive.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	servers, err := s.ActiveServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, active.ID, servers[0].ID)

	n, err := s.CountServers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdateServerStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := seedServer(t, s, nil)
	require.NoError(t, s.UpdateServerStatus(ctx, srv.ID, model.StatusCritical))

	got, err := s.Server(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCritical, got.Status)

	err = s.UpdateServerStatus(ctx, 9999, model.StatusOnline)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetricSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, nil)

	older := model.MetricSnapshot{
		ServerID:  srv.ID,
		CPUPct:    20,
		MemoryPct: 30,
		Timestamp: time.Now().Add(-time.Minute),
	}
	_, err := s.InsertMetricSnapshot(ctx, older)
	require.NoError(t, err)

	latest := model.MetricSnapshot{
		ServerID:          srv.ID,
		CPUPct:            55.5,
		MemoryPct:         61.2,
		DiskPct:           47.3,
		MemoryUsedBytes:   8e9,
		MemoryTotalBytes:  16e9,
		NetInBytesPerSec:  1024,
		NetOutBytesPerSec: 2048,
		Processes:         180,
		UptimeSecs:        3600,
		Timestamp:         time.Now(),
	}
	id, err := s.InsertMetricSnapshot(ctx, latest)
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, s.InsertDiskSnapshot(ctx, model.DiskSnapshot{
		ServerID: srv.ID, Volume: "/", FreeMB: 10000, TotalMB: 50000,
		UsedPct: 80, Timestamp: latest.Timestamp,
	}))
	require.NoError(t, s.InsertDiskSnapshot(ctx, model.DiskSnapshot{
		ServerID: srv.ID, Volume: "/data", FreeMB: 200000, TotalMB: 400000,
		UsedPct: 50, Timestamp: latest.Timestamp,
	}))

	got, err := s.LatestMetricSnapshot(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, 55.5, got.CPUPct)
	assert.Equal(t, 61.2, got.MemoryPct)
	assert.Equal(t, 180, got.Processes)
	require.Len(t, got.Disks, 2)
	assert.Equal(t, "/", got.Disks[0].Volume)
	assert.Equal(t, "/data", got.Disks[1].Volume)

	_, err = s.LatestMetricSnapshot(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlertLifecycleFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, nil)

	a, err := s.InsertAlert(ctx, model.Alert{
		ServerID:       srv.ID,
		Title:          "CPU Usage Alert",
		Message:        "CPU usage critical: 95.0% (threshold: 90%)",
		Status:         model.AlertActive,
		Severity:       model.SeverityCritical,
		MetricType:     "cpu",
		MetricValue:    95.0,
		ThresholdValue: 90,
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	got, err := s.Alert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertActive, got.Status)
	assert.Nil(t, got.AcknowledgedAt)
	assert.Nil(t, got.ResolvedAt)

	now := time.Now().Truncate(time.Second)
	who := "ops"
	got.Status = model.AlertAcknowledged
	got.AcknowledgedAt = &now
	got.AcknowledgedBy = &who
	require.NoError(t, s.UpdateAlert(ctx, got))

	got, err = s.Alert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, got.Status)
	require.NotNil(t, got.AcknowledgedAt)
	assert.Equal(t, now.Unix(), got.AcknowledgedAt.Unix())
	require.NotNil(t, got.AcknowledgedBy)
	assert.Equal(t, "ops", *got.AcknowledgedBy)
}

func TestLastActiveAlert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, nil)

	_, err := s.LastActiveAlert(ctx, srv.ID, "CPU Usage Alert")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "CPU Usage Alert", Status: model.AlertActive,
		Severity: model.SeverityWarning, CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	second, err := s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "CPU Usage Alert", Status: model.AlertActive,
		Severity: model.SeverityCritical, CreatedAt: time.Now().Add(-5 * time.Minute),
	})
	require.NoError(t, err)

	got, err := s.LastActiveAlert(ctx, srv.ID, "CPU Usage Alert")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	// Resolving the newest makes the older one the most recent active alert.
	got.Status = model.AlertResolved
	require.NoError(t, s.UpdateAlert(ctx, got))

	got, err = s.LastActiveAlert(ctx, srv.ID, "CPU Usage Alert")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// Title mismatch does not match.
	_, err = s.LastActiveAlert(ctx, srv.ID, "Memory Usage Alert")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlertsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv1 := seedServer(t, s, nil)
	srv2 := seedServer(t, s, func(srv *model.Server) { srv.Name = "web-02" })

	for i, spec := range []struct {
		serverID int64
		status   model.AlertStatus
	}{
		{srv1.ID, model.AlertActive},
		{srv1.ID, model.AlertResolved},
		{srv2.ID, model.AlertActive},
	} {
		_, err := s.InsertAlert(ctx, model.Alert{
			ServerID: spec.serverID, Title: "Memory Usage Alert", Status: spec.status,
			Severity:  model.SeverityWarning,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	all, err := s.Alerts(ctx, AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active := model.AlertActive
	activeOnly, err := s.Alerts(ctx, AlertFilter{Status: &active})
	require.NoError(t, err)
	assert.Len(t, activeOnly, 2)

	byServer, err := s.Alerts(ctx, AlertFilter{ServerID: &srv1.ID})
	require.NoError(t, err)
	assert.Len(t, byServer, 2)

	limited, err := s.Alerts(ctx, AlertFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestArchiveResolvedAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, nil)

	for _, status := range []model.AlertStatus{
		model.AlertActive, model.AlertResolved, model.AlertResolved, model.AlertAcknowledged,
	} {
		_, err := s.InsertAlert(ctx, model.Alert{
			ServerID: srv.ID, Title: "Disk / Warning", Status: status,
			Severity: model.SeverityWarning,
		})
		require.NoError(t, err)
	}

	n, err := s.ArchiveResolvedAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	counts, err := s.CountAlertsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.AlertActive])
	assert.Equal(t, 1, counts[model.AlertAcknowledged])
	assert.Equal(t, 0, counts[model.AlertResolved])
	assert.Equal(t, 2, counts[model.AlertExpired])
}

func TestResolveStaleAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, nil)

	old, err := s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "Memory Usage Alert", Status: model.AlertActive,
		Severity: model.SeverityInfo, CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	// Recent info alert and old critical alert must both survive.
	_, err = s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "Memory Usage Alert", Status: model.AlertActive,
		Severity: model.SeverityInfo, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	_, err = s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "CPU Usage Alert", Status: model.AlertActive,
		Severity: model.SeverityCritical, CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	cutoff := time.Now().Add(-24 * time.Hour)
	n, err := s.ResolveStaleAlerts(ctx, model.SeverityInfo, model.AlertActive, cutoff,
		"system", "Auto-resolved by system maintenance job.")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Alert(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, got.Status)
	assert.Equal(t, "Auto-resolved by system maintenance job.", got.Resolution)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "system", *got.ResolvedBy)
}

func TestReportSchedules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, nil)

	due, err := s.InsertReportSchedule(ctx, model.ReportSchedule{
		ServerID:  srv.ID,
		Name:      "daily summary",
		CronExpr:  "0 8 * * *",
		IsActive:  true,
		NextRunAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = s.InsertReportSchedule(ctx, model.ReportSchedule{
		ServerID: srv.ID, Name: "future", CronExpr: "0 8 * * *",
		IsActive: true, NextRunAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = s.InsertReportSchedule(ctx, model.ReportSchedule{
		ServerID: srv.ID, Name: "disabled", CronExpr: "0 8 * * *",
		IsActive: false, NextRunAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	dueList, err := s.DueReportSchedules(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, dueList, 1)
	assert.Equal(t, due.ID, dueList[0].ID)
	assert.Nil(t, dueList[0].LastRunAt)

	ranAt := time.Now().Truncate(time.Second)
	next := ranAt.Add(24 * time.Hour)
	require.NoError(t, s.UpdateScheduleRun(ctx, due.ID, ranAt, next))

	dueList, err = s.DueReportSchedules(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, dueList)

	report, err := s.InsertReport(ctx, model.Report{
		ScheduleID: &due.ID,
		ServerID:   srv.ID,
		Title:      "daily summary",
		Status:     model.ReportPending,
		RangeStart: ranAt.Add(-24 * time.Hour),
		RangeEnd:   ranAt,
	})
	require.NoError(t, err)
	assert.NotZero(t, report.ID)
}
