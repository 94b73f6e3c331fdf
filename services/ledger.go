package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cronwatch/db"
	"cronwatch/metrics"
	"cronwatch/models"
)

type StartResult struct {
	Run    models.RunRecord
	Closed *models.RunRecord // previous open run, closed at Run.StartTime
	Alert  string            // set when the start is outside the scheduled window
}

// StartRun opens a run for jobID. A run that is still open is closed at the
// new start time.
func (m *Monitor) StartRun(ctx context.Context, jobID string, client models.ClientInfo) (StartResult, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return StartResult{}, err
	}
	if job.Paused {
		return StartResult{}, fmt.Errorf("start %s: %w", jobID, ErrPaused)
	}

	now := m.now().UTC()
	run := models.RunRecord{
		ID:         uuid.NewString(),
		JobID:      jobID,
		StartTime:  now,
		ClientInfo: client,
	}
	if msg := windowAlert(job, now); msg != "" {
		run.AlertMessage = msg
		run.AlertTime = &now
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	run, closed, err := m.store.StartRun(sctx, run)
	if err != nil {
		return StartResult{}, notFound(err, fmt.Sprintf("job %s", jobID))
	}

	metrics.RunEvents.WithLabelValues("start").Inc()
	if closed != nil {
		metrics.RunEvents.WithLabelValues("implicit_close").Inc()
		slog.Warn("closed open run implicitly", "job_id", jobID, "run_id", closed.ID)
	}
	if run.AlertMessage != "" {
		slog.Warn("run started outside scheduled window", "job_id", jobID, "run_id", run.ID)
	}
	m.publish(models.EventJobStatus, jobID, "run_started")
	return StartResult{Run: run, Closed: closed, Alert: run.AlertMessage}, nil
}

// windowAlert describes a start with no scheduled occurrence within the job's
// tolerance. Empty when the start is on time or the schedule cannot be evaluated.
func windowAlert(job models.JobConfig, now time.Time) string {
	sched, err := scheduleFor(job)
	if err != nil {
		return ""
	}
	ok, _, err := sched.InWindow(now, job.Tolerance())
	if ok {
		return ""
	}
	if err != nil && !errors.Is(err, ErrNoOccurrence) {
		return ""
	}

	expected, ok := nearestOccurrence(sched, now)
	if !ok {
		return fmt.Sprintf("Job %s started at %s but its schedule has no occurrence.",
			job.JobID, now.Format(time.RFC3339))
	}
	return fmt.Sprintf("Job %s started outside its scheduled window. Expected around %s, started at %s. Tolerance window: %d minutes.",
		job.JobID, expected.Format(time.RFC3339), now.Format(time.RFC3339), job.ToleranceMinutes)
}

func nearestOccurrence(sched *Schedule, t time.Time) (time.Time, bool) {
	prev, perr := sched.Prev(t)
	next, nerr := sched.Next(t)
	switch {
	case perr != nil && nerr != nil:
		return time.Time{}, false
	case perr != nil:
		return next.UTC(), true
	case nerr != nil:
		return prev.UTC(), true
	}
	if t.Sub(prev) <= next.Sub(t) {
		return prev.UTC(), true
	}
	return next.UTC(), true
}

// EndRun closes the open run of jobID.
func (m *Monitor) EndRun(ctx context.Context, jobID string) (models.RunRecord, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	if _, err := m.loadJob(ctx, jobID); err != nil {
		return models.RunRecord{}, err
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	run, err := m.store.EndRun(sctx, jobID, m.now().UTC())
	if errors.Is(err, db.ErrNotFound) {
		return run, fmt.Errorf("end %s: %w", jobID, ErrNoOpenRun)
	}
	if err != nil {
		return run, fmt.Errorf("end %s: %w", jobID, err)
	}

	metrics.RunEvents.WithLabelValues("end").Inc()
	m.publish(models.EventJobStatus, jobID, "run_ended")
	return run, nil
}

// Ping records a zero-duration run for jobs that report a single heartbeat
// instead of start/end.
func (m *Monitor) Ping(ctx context.Context, jobID string, client models.ClientInfo) (models.RunRecord, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return models.RunRecord{}, err
	}
	if job.Paused {
		return models.RunRecord{}, fmt.Errorf("ping %s: %w", jobID, ErrPaused)
	}

	now := m.now().UTC()
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	_, closed, err := m.store.StartRun(sctx, models.RunRecord{
		ID:         uuid.NewString(),
		JobID:      jobID,
		StartTime:  now,
		ClientInfo: client,
	})
	if err != nil {
		return models.RunRecord{}, notFound(err, fmt.Sprintf("job %s", jobID))
	}
	if closed != nil {
		metrics.RunEvents.WithLabelValues("implicit_close").Inc()
	}
	run, err := m.store.EndRun(sctx, jobID, now)
	if err != nil {
		return run, fmt.Errorf("ping %s: %w", jobID, err)
	}

	metrics.RunEvents.WithLabelValues("ping").Inc()
	m.publish(models.EventJobStatus, jobID, "run_pinged")
	return run, nil
}

// ListRuns returns one page of runs, newest first. Page boundaries are taken
// against q.Snapshot; pass the snapshot from page 1 to keep them stable.
func (m *Monitor) ListRuns(ctx context.Context, q db.RunQuery) (models.RunPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = m.perPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	runs, total, snapshot, err := m.store.ListRuns(sctx, q)
	if err != nil {
		return models.RunPage{}, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	return models.RunPage{
		Runs:       runs,
		Page:       q.Page,
		PerPage:    q.PerPage,
		Total:      total,
		TotalPages: (total + q.PerPage - 1) / q.PerPage,
		Snapshot:   snapshot,
	}, nil
}
