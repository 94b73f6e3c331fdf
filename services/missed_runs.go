package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cronwatch/metrics"
	"cronwatch/models"
)

// Tick runs one detection pass over every non-paused job. Jobs whose schedule
// cannot be evaluated are skipped; store failures are collected and returned
// together after all jobs were visited.
func (m *Monitor) Tick(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		metrics.DetectionDuration.Observe(time.Since(started).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.DetectionTicks.WithLabelValues(result).Inc()
	}()

	sctx, cancel := m.storeCtx(ctx)
	jobs, err := m.store.ListJobs(sctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	now := m.now().UTC()
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(m.workers)
	for _, job := range jobs {
		if job.Paused {
			continue
		}
		jobID := job.JobID
		g.Go(func() error {
			if err := m.checkJob(ctx, jobID, now); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// checkJob re-reads the job and its last run under the job's lock so a start
// arriving mid-tick is either fully visible or not at all.
func (m *Monitor) checkJob(ctx context.Context, jobID string, now time.Time) error {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detection panic recovered", "job_id", jobID, "panic", r)
		}
	}()

	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.loadJob(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return nil // deleted since the listing
	}
	if err != nil {
		return err
	}
	if job.Paused {
		return nil
	}

	sched, err := scheduleFor(job)
	if err != nil {
		metrics.JobsSkipped.Inc()
		slog.Warn("skipping job with invalid schedule", "job_id", jobID, "schedule", job.Schedule, "error", err)
		return nil
	}

	sctx, cancel := m.storeCtx(ctx)
	last, err := m.store.LastRun(sctx, jobID)
	cancel()
	if err != nil {
		return fmt.Errorf("last run of %s: %w", jobID, err)
	}

	if err := m.checkMissed(ctx, job, sched, last, now); err != nil {
		return err
	}
	return m.checkLongRunning(ctx, job, last, now)
}

// checkMissed expects the first occurrence after the job's anchor: the later of
// its activation and the occurrence its last start satisfied. While an alert for
// that anchor is open nothing further is raised, so an outage reports once.
// Acknowledging moves the anchor to the acknowledgment time.
func (m *Monitor) checkMissed(ctx context.Context, job models.JobConfig, sched *Schedule, last *models.RunRecord, now time.Time) error {
	tol := job.Tolerance()
	anchor := job.ActiveSince
	if last != nil {
		if a := satisfiedOccurrence(sched, last.StartTime, tol); a.After(anchor) {
			anchor = a
		}
	}

	sctx, cancel := m.storeCtx(ctx)
	prior, err := m.store.LatestAlert(sctx, job.JobID, models.AlertMissedJob)
	cancel()
	if err != nil {
		return fmt.Errorf("alert lookup for %s: %w", job.JobID, err)
	}
	if prior != nil && !prior.Key.Before(anchor) {
		if !prior.Acknowledged {
			return nil
		}
		if prior.CreatedAt != nil && prior.CreatedAt.After(anchor) {
			anchor = *prior.CreatedAt
		}
	}

	expected, err := sched.Next(anchor)
	if errors.Is(err, ErrNoOccurrence) {
		return nil
	}
	if err != nil {
		metrics.JobsSkipped.Inc()
		slog.Warn("skipping job, schedule evaluation failed", "job_id", job.JobID, "error", err)
		return nil
	}
	expected = expected.UTC()
	if !now.After(expected.Add(tol)) {
		return nil
	}

	lastStart := "never"
	if last != nil {
		lastStart = last.StartTime.UTC().Format(time.RFC3339)
	}
	msg := fmt.Sprintf("Job %s missed its scheduled run at %s (tolerance %d minutes). Last start: %s.",
		job.JobID, expected.Format(time.RFC3339), job.ToleranceMinutes, lastStart)
	return m.raiseOnce(ctx, job, models.AlertMissedJob, expected, msg)
}

// satisfiedOccurrence returns the instant a start counts from. A start early
// within tolerance, and nearer the next occurrence than the previous one,
// satisfies that next occurrence; any other start satisfies the latest
// occurrence at or before it. Each start satisfies exactly one occurrence.
func satisfiedOccurrence(sched *Schedule, start time.Time, tol time.Duration) time.Time {
	next, err := sched.Next(start)
	if err != nil || next.Sub(start) > tol {
		return start
	}
	if prev, err := sched.Prev(next); err == nil && start.Sub(prev) <= next.Sub(start) {
		return start
	}
	return next
}

func (m *Monitor) checkLongRunning(ctx context.Context, job models.JobConfig, last *models.RunRecord, now time.Time) error {
	if job.Heartbeat() || last == nil || !last.Open() {
		return nil
	}
	elapsed := now.Sub(last.StartTime)
	if elapsed <= job.MaxRuntime() {
		return nil
	}
	msg := fmt.Sprintf("Job %s has been running for %s, exceeding its maximum runtime of %d minutes.",
		job.JobID, elapsed.Truncate(time.Second), *job.MaxRuntimeMinutes)
	return m.raiseOnce(ctx, job, models.AlertLongRunning, last.StartTime, msg)
}

// raiseOnce raises unless the key was alerted before. An acknowledged alert
// also counts: the same occurrence or run is never reported twice.
func (m *Monitor) raiseOnce(ctx context.Context, job models.JobConfig, typ models.AlertType, key time.Time, msg string) error {
	sctx, cancel := m.storeCtx(ctx)
	seen, err := m.store.HasAlert(sctx, job.JobID, typ, key.UTC())
	cancel()
	if err != nil {
		return fmt.Errorf("alert lookup for %s: %w", job.JobID, err)
	}
	if seen {
		return nil
	}
	if _, _, err := m.raise(ctx, job, typ, key, msg); err != nil {
		return fmt.Errorf("raise %s for %s: %w", typ, job.JobID, err)
	}
	return nil
}
