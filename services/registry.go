package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cronwatch/db"
	"cronwatch/models"
)

const maxToleranceMinutes = 1440

// JobInput is an upsert request. A nil Paused keeps the stored flag.
type JobInput struct {
	JobID             string
	Schedule          string
	Timezone          string
	ToleranceMinutes  int
	MaxRuntimeMinutes *int
	Paused            *bool
}

func (in JobInput) validate() error {
	if strings.TrimSpace(in.JobID) == "" {
		return fmt.Errorf("%w: job_id is required", ErrInvalidConfig)
	}
	if len(in.JobID) > 255 {
		return fmt.Errorf("%w: job_id is too long", ErrInvalidConfig)
	}
	if in.ToleranceMinutes < 0 || in.ToleranceMinutes > maxToleranceMinutes {
		return fmt.Errorf("%w: tolerance_minutes must be between 0 and %d", ErrInvalidConfig, maxToleranceMinutes)
	}
	if in.MaxRuntimeMinutes != nil && *in.MaxRuntimeMinutes < 0 {
		return fmt.Errorf("%w: max_runtime_minutes must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseScheduleIn(in.Schedule, in.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Upsert creates the job or fully replaces its configuration.
func (m *Monitor) Upsert(ctx context.Context, in JobInput) (models.JobConfig, error) {
	in.JobID = strings.TrimSpace(in.JobID)
	in.Schedule = strings.TrimSpace(in.Schedule)
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if err := in.validate(); err != nil {
		return models.JobConfig{}, err
	}

	unlock := m.locks.Lock(in.JobID)
	defer unlock()

	now := m.now().UTC()
	existing, err := m.loadJob(ctx, in.JobID)
	created := errors.Is(err, ErrNotFound)
	if err != nil && !created {
		return models.JobConfig{}, err
	}

	job := models.JobConfig{
		JobID:             in.JobID,
		Schedule:          in.Schedule,
		Timezone:          in.Timezone,
		ToleranceMinutes:  in.ToleranceMinutes,
		MaxRuntimeMinutes: in.MaxRuntimeMinutes,
		UpdatedAt:         now,
	}
	if created {
		job.CreatedAt = now
		job.ActiveSince = now
		if in.Paused != nil {
			job.Paused = *in.Paused
		}
	} else {
		job.CreatedAt = existing.CreatedAt
		job.ActiveSince = existing.ActiveSince
		job.Paused = existing.Paused
		if in.Paused != nil {
			job.Paused = *in.Paused
		}
		// Occurrences under the old schedule, or while paused, never count.
		if existing.Schedule != job.Schedule || existing.Timezone != job.Timezone ||
			(existing.Paused && !job.Paused) {
			job.ActiveSince = now
		}
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.store.UpsertJob(sctx, job); err != nil {
		return models.JobConfig{}, fmt.Errorf("save job %s: %w", job.JobID, err)
	}

	reason := "job_updated"
	if created {
		reason = "job_created"
	}
	m.publish(models.EventJobUpdate, job.JobID, reason)
	return job, nil
}

func (m *Monitor) Get(ctx context.Context, jobID string) (models.JobView, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	job, err := m.store.GetJob(sctx, jobID)
	if err != nil {
		return models.JobView{}, notFound(err, fmt.Sprintf("job %s", jobID))
	}
	return m.view(ctx, job)
}

func (m *Monitor) List(ctx context.Context) ([]models.JobView, error) {
	sctx, cancel := m.storeCtx(ctx)
	jobs, err := m.store.ListJobs(sctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	views := make([]models.JobView, 0, len(jobs))
	for _, job := range jobs {
		v, err := m.view(ctx, job)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// view augments a job with schedule and last-run state. A job whose schedule no
// longer evaluates is still listed, without scheduled times.
func (m *Monitor) view(ctx context.Context, job models.JobConfig) (models.JobView, error) {
	v := models.JobView{JobConfig: job}
	now := m.now()

	if sched, err := scheduleFor(job); err == nil {
		if next, err := sched.Next(now); err == nil {
			next = next.UTC()
			v.NextScheduledRun = &next
		}
		if prev, err := sched.Prev(now); err == nil {
			prev = prev.UTC()
			v.LastScheduledRun = &prev
		}
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	last, err := m.store.LastRun(sctx, job.JobID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return v, fmt.Errorf("last run of %s: %w", job.JobID, err)
	}
	if last != nil {
		start := last.StartTime
		v.LastStartTime = &start
		v.LastEndTime = last.EndTime
		v.Duration = last.Duration()
		v.Running = last.Open()
		v.LastAlertMessage = last.AlertMessage
		client := last.ClientInfo
		v.Client = &client
	}

	alerts, err := m.store.ListAlerts(sctx, db.AlertQuery{JobID: job.JobID})
	if err != nil {
		return v, fmt.Errorf("alerts of %s: %w", job.JobID, err)
	}
	v.OpenAlerts = len(alerts)
	return v, nil
}

func (m *Monitor) Pause(ctx context.Context, jobID string) (models.JobConfig, error) {
	return m.setPaused(ctx, jobID, true)
}

// Resume clears the paused flag. Occurrences that fell inside the pause are
// not reported as missed.
func (m *Monitor) Resume(ctx context.Context, jobID string) (models.JobConfig, error) {
	return m.setPaused(ctx, jobID, false)
}

func (m *Monitor) setPaused(ctx context.Context, jobID string, paused bool) (models.JobConfig, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return job, err
	}
	now := m.now().UTC()
	if job.Paused && !paused {
		job.ActiveSince = now
	}
	job.Paused = paused
	job.UpdatedAt = now

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.store.UpsertJob(sctx, job); err != nil {
		return job, fmt.Errorf("save job %s: %w", jobID, err)
	}

	reason := "job_resumed"
	if paused {
		reason = "job_paused"
	}
	m.publish(models.EventJobUpdate, jobID, reason)
	return job, nil
}

// Delete removes the job with its runs and alerts.
func (m *Monitor) Delete(ctx context.Context, jobID string) error {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.store.DeleteJob(sctx, jobID); err != nil {
		return notFound(err, fmt.Sprintf("job %s", jobID))
	}
	m.publish(models.EventJobUpdate, jobID, "job_deleted")
	return nil
}

// Seed upserts jobs loaded at startup, keeping runtime state of existing ones.
func (m *Monitor) Seed(ctx context.Context, jobs []models.JobConfig) error {
	var errs []error
	for _, j := range jobs {
		in := JobInput{
			JobID:             j.JobID,
			Schedule:          j.Schedule,
			Timezone:          j.Timezone,
			ToleranceMinutes:  j.ToleranceMinutes,
			MaxRuntimeMinutes: j.MaxRuntimeMinutes,
		}
		if j.Paused {
			paused := true
			in.Paused = &paused
		}
		if _, err := m.Upsert(ctx, in); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", j.JobID, err))
		}
	}
	return errors.Join(errs...)
}
