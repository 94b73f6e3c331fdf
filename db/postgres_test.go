package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"cronwatch/models"
)

// newPostgresStore connects to DATABASE_URL and applies the schema. Jobs get
// random ids and are deleted afterwards, so a shared database can be used.
func newPostgresStore(t *testing.T) (*PostgresStore, func(id string) string) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test; DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("skipping integration test; Postgres unavailable: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		t.Fatalf("Migrate: %v", err)
	}
	s := NewPostgresStore(conn)

	var created []string
	t.Cleanup(func() {
		for _, id := range created {
			_ = s.DeleteJob(context.Background(), id)
		}
		s.Close()
	})
	newJob := func(prefix string) string {
		id := prefix + "-" + uuid.NewString()
		if err := s.UpsertJob(ctx, models.JobConfig{
			JobID: id, Schedule: "* * * * *", Timezone: "UTC", ToleranceMinutes: 5,
			ActiveSince: t0, CreatedAt: t0, UpdatedAt: t0,
		}); err != nil {
			t.Fatalf("UpsertJob: %v", err)
		}
		created = append(created, id)
		return id
	}
	return s, newJob
}

func TestPostgresAlertDedup(t *testing.T) {
	s, newJob := newPostgresStore(t)
	ctx := context.Background()
	job := newJob("dedup")

	a := models.Alert{ID: uuid.NewString(), JobID: job, Type: models.AlertMissedJob, Key: t0, DetectedTime: t0, Message: "missed"}
	first, created, err := s.InsertAlert(ctx, a)
	if err != nil || !created {
		t.Fatalf("InsertAlert = %v, %v", created, err)
	}

	dup := a
	dup.ID = uuid.NewString()
	got, created, err := s.InsertAlert(ctx, dup)
	if err != nil || created || got.ID != first.ID {
		t.Fatalf("duplicate InsertAlert = %+v, %v, %v", got, created, err)
	}

	if _, err := s.AcknowledgeAlert(ctx, first.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	again, err := s.AcknowledgeAlert(ctx, first.ID, t0.Add(time.Hour))
	if err != nil || again.CreatedAt == nil || !again.CreatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("second AcknowledgeAlert = %+v, %v", again, err)
	}

	// The partial unique index only covers unacknowledged alerts.
	if _, created, err := s.InsertAlert(ctx, dup); err != nil || !created {
		t.Fatalf("InsertAlert after ack = %v, %v", created, err)
	}
	latest, err := s.LatestAlert(ctx, job, models.AlertMissedJob)
	if err != nil || latest == nil || latest.ID != dup.ID {
		t.Fatalf("LatestAlert = %+v, %v, want the open one", latest, err)
	}
	if seen, err := s.HasAlert(ctx, job, models.AlertLongRunning, t0); err != nil || seen {
		t.Fatalf("HasAlert other type = %v, %v", seen, err)
	}

	if _, _, err := s.InsertAlert(ctx, models.Alert{ID: uuid.NewString(), JobID: "missing-" + uuid.NewString(),
		Type: models.AlertMissedJob, Key: t0, DetectedTime: t0}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("InsertAlert for unknown job err = %v", err)
	}
}

func TestPostgresRunsSnapshotAndImplicitClose(t *testing.T) {
	s, newJob := newPostgresStore(t)
	ctx := context.Background()
	job := newJob("runs")

	var firstID string
	for i := 0; i < 5; i++ {
		run := models.RunRecord{ID: uuid.NewString(), JobID: job, StartTime: t0.Add(time.Duration(i) * time.Minute)}
		_, closed, err := s.StartRun(ctx, run)
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		if i == 0 {
			firstID = run.ID
		} else if closed == nil || !closed.ClosedImplicitly {
			t.Fatalf("run %d did not close its predecessor: %+v", i, closed)
		}
	}

	runs, total, snap, err := s.ListRuns(ctx, RunQuery{JobID: job, Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 || len(runs) != 2 || !runs[0].Open() {
		t.Fatalf("page 1 = %d runs, total %d", len(runs), total)
	}

	late := models.RunRecord{ID: uuid.NewString(), JobID: job, StartTime: t0.Add(time.Hour)}
	if _, _, err := s.StartRun(ctx, late); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	runs, total, _, err = s.ListRuns(ctx, RunQuery{JobID: job, Page: 3, PerPage: 2, Snapshot: snap})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 || len(runs) != 1 || runs[0].ID != firstID {
		t.Fatalf("page 3 at snapshot = %+v (total %d)", runs, total)
	}

	ended, err := s.EndRun(ctx, job, late.StartTime.Add(90*time.Second))
	if err != nil || ended.ID != late.ID || *ended.Duration() != 90 {
		t.Fatalf("EndRun = %+v, %v", ended, err)
	}
	if _, err := s.EndRun(ctx, job, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("EndRun without open run err = %v", err)
	}
}

func TestPostgresDeleteCascades(t *testing.T) {
	s, newJob := newPostgresStore(t)
	ctx := context.Background()
	job := newJob("cascade")

	if _, _, err := s.StartRun(ctx, models.RunRecord{ID: uuid.NewString(), JobID: job, StartTime: t0}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	alertID := uuid.NewString()
	if _, _, err := s.InsertAlert(ctx, models.Alert{ID: alertID, JobID: job, Type: models.AlertLongRunning,
		Key: t0, DetectedTime: t0, Message: "slow"}); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	if err := s.DeleteJob(ctx, job); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := s.DeleteJob(ctx, job); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteJob err = %v", err)
	}
	if _, err := s.GetAlert(ctx, alertID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("alert survived delete: %v", err)
	}
	if last, err := s.LastRun(ctx, job); err != nil || last != nil {
		t.Fatalf("run survived delete: %+v, %v", last, err)
	}
}
