// Package sched runs the recurring background jobs: metric collection,
// alert cleanup, report schedule dispatch, and a daily heartbeat.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/collect"
	"fleetwatch/internal/model"
	"fleetwatch/internal/sampler"
	"fleetwatch/internal/store"
)

// Job cadences, cron specs with a seconds field.
const (
	collectSpec   = "*/30 * * * * *"
	cleanupSpec   = "0 0 * * * *"
	dispatchSpec  = "0 */5 * * * *"
	heartbeatSpec = "0 0 0 * * *"
)

// Collector is the slice of the collection pipeline the scheduler needs.
type Collector interface {
	Collect(ctx context.Context, serverID int64) (collect.Result, error)
}

// Scheduler owns the cron runner and the job bodies. Jobs never overlap
// themselves: a tick that fires while the previous run is still going is
// skipped.
type Scheduler struct {
	store     *store.Store
	collector Collector
	alerts    *alerting.Manager
	mode      sampler.Mode
	cron      *cron.Cron
}

// New creates a scheduler. The sampler mode decides which servers the
// collection job visits.
func New(s *store.Store, c Collector, a *alerting.Manager, mode sampler.Mode) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		store:     s,
		collector: c,
		alerts:    a,
		mode:      mode,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		),
	}
}

// Run registers the jobs and blocks until the context is cancelled, then
// waits for in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"collect", collectSpec, func(ctx context.Context) { s.CollectAll(ctx) }},
		{"alert-cleanup", cleanupSpec, func(ctx context.Context) { s.RunAlertCleanup(ctx) }},
		{"report-dispatch", dispatchSpec, func(ctx context.Context) { s.DispatchSchedules(ctx, time.Now()) }},
		{"heartbeat", heartbeatSpec, func(ctx context.Context) { s.Heartbeat(ctx) }},
	}

	for _, job := range jobs {
		fn := job.fn
		if _, err := s.cron.AddFunc(job.spec, func() { fn(ctx) }); err != nil {
			return fmt.Errorf("registering %s job: %w", job.name, err)
		}
	}

	slog.Info("scheduler started", "jobs", len(jobs))
	s.cron.Start()
	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	slog.Info("scheduler stopped")
	return ctx.Err()
}

// CollectAll runs one collection pass over the fleet. In host mode only the
// server flagged as the local host is visited. A failure for one server
// never stops the others.
func (s *Scheduler) CollectAll(ctx context.Context) {
	servers, err := s.store.ActiveServers(ctx)
	if err != nil {
		slog.Error("listing servers for collection failed", "error", err)
		return
	}

	collected := 0
	for _, srv := range servers {
		if s.mode == sampler.ModeHost && !srv.IsHost {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := s.collector.Collect(ctx, srv.ID); err != nil {
			slog.Error("collection failed", "server_id", srv.ID, "server", srv.Name, "error", err)
			continue
		}
		collected++
	}
	slog.Debug("collection pass finished", "servers", collected)
}

// RunAlertCleanup archives resolved alerts and auto-resolves stale ones.
func (s *Scheduler) RunAlertCleanup(ctx context.Context) {
	if _, err := s.alerts.ArchiveResolved(ctx); err != nil {
		slog.Error("archiving resolved alerts failed", "error", err)
	}
	if _, err := s.alerts.ResolveStale(ctx); err != nil {
		slog.Error("resolving stale alerts failed", "error", err)
	}
}

// DispatchSchedules turns due report schedules into pending report rows and
// advances each schedule to its next run time.
func (s *Scheduler) DispatchSchedules(ctx context.Context, now time.Time) {
	due, err := s.store.DueReportSchedules(ctx, now)
	if err != nil {
		slog.Error("listing due report schedules failed", "error", err)
		return
	}

	for _, schedule := range due {
		next, err := nextRun(schedule.CronExpr, now)
		if err != nil {
			slog.Error("report schedule has invalid cron expression",
				"schedule_id", schedule.ID, "expr", schedule.CronExpr, "error", err)
			continue
		}

		rangeStart := now.Add(-24 * time.Hour)
		if schedule.LastRunAt != nil {
			rangeStart = *schedule.LastRunAt
		}

		_, err = s.store.InsertReport(ctx, model.Report{
			ScheduleID:  &schedule.ID,
			ServerID:    schedule.ServerID,
			Title:       schedule.Name,
			Status:      model.ReportPending,
			RangeStart:  rangeStart,
			RangeEnd:    now,
			RequestedBy: schedule.CreatedBy,
		})
		if err != nil {
			slog.Error("creating report failed", "schedule_id", schedule.ID, "error", err)
			continue
		}

		if err := s.store.UpdateScheduleRun(ctx, schedule.ID, now, next); err != nil {
			slog.Error("advancing report schedule failed", "schedule_id", schedule.ID, "error", err)
			continue
		}
		slog.Info("report dispatched",
			"schedule_id", schedule.ID, "name", schedule.Name, "next_run", next)
	}
}

// Heartbeat logs a daily fleet summary.
func (s *Scheduler) Heartbeat(ctx context.Context) {
	servers, err := s.store.CountServers(ctx)
	if err != nil {
		slog.Error("heartbeat server count failed", "error", err)
		return
	}
	counts, err := s.store.CountAlertsByStatus(ctx)
	if err != nil {
		slog.Error("heartbeat alert count failed", "error", err)
		return
	}
	slog.Info("heartbeat",
		"servers", servers,
		"alerts_active", counts[model.AlertActive],
		"alerts_acknowledged", counts[model.AlertAcknowledged],
		"alerts_resolved", counts[model.AlertResolved],
		"alerts_expired", counts[model.AlertExpired])
}

// nextRun computes a schedule's next due time after now. Schedule
// expressions use the standard five-field cron format.
func nextRun(expr string, now time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now), nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	slog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	kv = append(kv, "error", err)
	slog.Error("cron: "+msg, kv...)
}
