package sched

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/collect"
	"fleetwatch/internal/model"
	"fleetwatch/internal/sampler"
	"fleetwatch/internal/store"
)

// recordingCollector records requested server IDs, optionally failing some.
type recordingCollector struct {
	collected []int64
	failFor   map[int64]bool
}

func (r *recordingCollector) Collect(_ context.Context, serverID int64) (collect.Result, error) {
	if r.failFor[serverID] {
		return collect.Result{}, store.ErrNotFound
	}
	r.collected = append(r.collected, serverID)
	return collect.Result{}, nil
}

func newTestScheduler(t *testing.T, mode sampler.Mode) (*Scheduler, *store.Store, *recordingCollector) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rc := &recordingCollector{failFor: map[int64]bool{}}
	manager := alerting.NewManager(s, nil, alerting.DefaultConfig())
	return New(s, rc, manager, mode), s, rc
}

func seedServer(t *testing.T, s *store.Store, name string, isHost bool) model.Server {
	t.Helper()
	srv, err := s.CreateServer(context.Background(), model.Server{
		Name:       name,
		IsActive:   true,
		IsHost:     isHost,
		Thresholds: model.DefaultThresholds(),
	})
	require.NoError(t, err)
	return srv
}

func TestCollectAllSimulatedMode(t *testing.T) {
	sched, s, rc := newTestScheduler(t, sampler.ModeSimulated)
	a := seedServer(t, s, "a", false)
	b := seedServer(t, s, "b", true)

	sched.CollectAll(context.Background())
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, rc.collected)
}

func TestCollectAllHostModeOnlyVisitsHost(t *testing.T) {
	sched, s, rc := newTestScheduler(t, sampler.ModeHost)
	seedServer(t, s, "remote", false)
	hostSrv := seedServer(t, s, "local", true)

	sched.CollectAll(context.Background())
	assert.Equal(t, []int64{hostSrv.ID}, rc.collected)
}

func TestCollectAllContainsPerServerFailures(t *testing.T) {
	sched, s, rc := newTestScheduler(t, sampler.ModeSimulated)
	bad := seedServer(t, s, "bad", false)
	good := seedServer(t, s, "good", false)
	rc.failFor[bad.ID] = true

	sched.CollectAll(context.Background())
	assert.Equal(t, []int64{good.ID}, rc.collected)
}

func TestRunAlertCleanup(t *testing.T) {
	sched, s, _ := newTestScheduler(t, sampler.ModeSimulated)
	ctx := context.Background()
	srv := seedServer(t, s, "a", false)

	_, err := s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "CPU Usage Alert", Status: model.AlertResolved,
		Severity: model.SeverityWarning,
	})
	require.NoError(t, err)
	stale, err := s.InsertAlert(ctx, model.Alert{
		ServerID: srv.ID, Title: "Memory Usage Alert", Status: model.AlertActive,
		Severity: model.SeverityInfo, CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	sched.RunAlertCleanup(ctx)

	counts, err := s.CountAlertsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.AlertExpired])

	got, err := s.Alert(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, got.Status)
}

func TestDispatchSchedules(t *testing.T) {
	sched, s, _ := newTestScheduler(t, sampler.ModeSimulated)
	ctx := context.Background()
	srv := seedServer(t, s, "a", false)

	lastRun := time.Now().Add(-25 * time.Hour).Truncate(time.Second)
	schedule, err := s.InsertReportSchedule(ctx, model.ReportSchedule{
		ServerID:  srv.ID,
		Name:      "daily summary",
		CronExpr:  "0 8 * * *",
		IsActive:  true,
		NextRunAt: time.Now().Add(-time.Minute),
		CreatedBy: "ops",
	})
	require.NoError(t, err)
	require.NoError(t, s.UpdateScheduleRun(ctx, schedule.ID, lastRun, time.Now().Add(-time.Minute)))

	now := time.Now()
	sched.DispatchSchedules(ctx, now)

	// Schedule advanced past now, so it is no longer due.
	due, err := s.DueReportSchedules(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Dispatching again creates nothing new.
	sched.DispatchSchedules(ctx, now)
}

func TestDispatchSchedulesInvalidCron(t *testing.T) {
	sched, s, _ := newTestScheduler(t, sampler.ModeSimulated)
	ctx := context.Background()
	srv := seedServer(t, s, "a", false)

	_, err := s.InsertReportSchedule(ctx, model.ReportSchedule{
		ServerID:  srv.ID,
		Name:      "broken",
		CronExpr:  "not a cron expr",
		IsActive:  true,
		NextRunAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	// Must not panic and must leave the schedule untouched.
	sched.DispatchSchedules(ctx, time.Now())

	due, err := s.DueReportSchedules(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestNextRun(t *testing.T) {
	base := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)

	next, err := nextRun("0 8 * * *", base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), next)

	_, err = nextRun("bogus", base)
	assert.Error(t, err)
}

func TestJobSpecsParse(t *testing.T) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, spec := range []string{collectSpec, cleanupSpec, dispatchSpec, heartbeatSpec} {
		_, err := parser.Parse(spec)
		assert.NoError(t, err, "spec %s", spec)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	sched, _, _ := newTestScheduler(t, sampler.ModeSimulated)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
