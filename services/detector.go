package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Detector drives Monitor.Tick on a fixed interval. A tick still running when
// the next one is due causes that one to be skipped.
type Detector struct {
	monitor  *Monitor
	interval time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

func NewDetector(m *Monitor, interval time.Duration) *Detector {
	if interval < time.Second {
		interval = time.Second
	}
	return &Detector{monitor: m, interval: interval}
}

func (d *Detector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron != nil {
		return fmt.Errorf("detector already started")
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", d.interval), d.run); err != nil {
		return fmt.Errorf("schedule detection: %w", err)
	}
	c.Start()
	d.cron = c
	slog.Info("detection loop started", "interval", d.interval.String())
	return nil
}

func (d *Detector) run() {
	// A tick may not outlive its interval.
	ctx, cancel := context.WithTimeout(context.Background(), d.interval)
	defer cancel()
	if err := d.monitor.Tick(ctx); err != nil {
		slog.Error("detection tick failed", "error", err)
	}
}

// Stop halts scheduling and waits for a running tick to return.
func (d *Detector) Stop() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	slog.Info("detection loop stopped")
}
