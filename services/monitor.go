package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cronwatch/db"
	"cronwatch/models"
)

const (
	DefaultPerPage      = 10
	MaxPerPage          = 100
	DefaultStoreTimeout = 5 * time.Second
	DefaultWorkers      = 8
)

type Options struct {
	Store        db.Store
	Publishers   []Publisher
	Sinks        []AlertSink
	Now          func() time.Time
	StoreTimeout time.Duration
	Workers      int // jobs evaluated concurrently per detection tick
	PerPage      int
	Origin       string // instance id stamped on events
}

// Monitor owns the job registry, run ledger, alert store and detection pass.
// Every mutation of a job, and the detection read of that job, happens under
// the job's own lock; different jobs proceed in parallel.
type Monitor struct {
	store        db.Store
	locks        *jobLocks
	pubs         []Publisher
	sinks        []AlertSink
	now          func() time.Time
	storeTimeout time.Duration
	workers      int
	perPage      int
	origin       string

	sinkWG sync.WaitGroup
}

func New(opts Options) *Monitor {
	m := &Monitor{
		store:        opts.Store,
		locks:        newJobLocks(),
		pubs:         opts.Publishers,
		sinks:        opts.Sinks,
		now:          opts.Now,
		storeTimeout: opts.StoreTimeout,
		workers:      opts.Workers,
		perPage:      opts.PerPage,
		origin:       opts.Origin,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.storeTimeout <= 0 {
		m.storeTimeout = DefaultStoreTimeout
	}
	if m.workers <= 0 {
		m.workers = DefaultWorkers
	}
	if m.perPage <= 0 {
		m.perPage = DefaultPerPage
	}
	return m
}

// AddPublisher registers an event consumer. Call before serving traffic.
func (m *Monitor) AddPublisher(p Publisher) {
	m.pubs = append(m.pubs, p)
}

// Wait blocks until in-flight alert deliveries finish.
func (m *Monitor) Wait() {
	m.sinkWG.Wait()
}

// HealthCheck pings the store.
func (m *Monitor) HealthCheck(ctx context.Context) error {
	ctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.Ping(ctx)
}

func (m *Monitor) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

func (m *Monitor) publish(typ models.EventType, jobID, reason string) {
	ev := models.Event{Type: typ, JobID: jobID, Reason: reason, At: m.now().UTC(), Origin: m.origin}
	for _, p := range m.pubs {
		p.Publish(ev)
	}
}

// notFound maps the store's sentinel onto the service's.
func notFound(err error, what string) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// loadJob reads a job under its lock. Callers hold the lock.
func (m *Monitor) loadJob(ctx context.Context, jobID string) (models.JobConfig, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	job, err := m.store.GetJob(sctx, jobID)
	if err != nil {
		return job, notFound(err, fmt.Sprintf("job %s", jobID))
	}
	return job, nil
}

func (m *Monitor) Stats(ctx context.Context) (models.Stats, error) {
	ctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.Stats(ctx)
}

func scheduleFor(job models.JobConfig) (*Schedule, error) {
	return ParseScheduleIn(job.Schedule, job.Timezone)
}

func (m *Monitor) dispatch(job models.JobConfig, alert models.Alert) {
	for _, sink := range m.sinks {
		m.sinkWG.Add(1)
		go func(sink AlertSink) {
			defer m.sinkWG.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("alert sink panic recovered", "sink", sink.Name(), "panic", r)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := sink.Send(ctx, job, alert); err != nil {
				slog.Error("alert delivery failed", "sink", sink.Name(), "alert_id", alert.ID, "error", err)
				return
			}
			slog.Info("alert delivered", "sink", sink.Name(), "alert_id", alert.ID)
		}(sink)
	}
}
