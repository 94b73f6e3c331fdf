package db

import (
	"context"
	"errors"
	"time"

	"cronwatch/models"
)

// ErrNotFound is returned when a job, open run or alert does not exist.
var ErrNotFound = errors.New("not found")

type RunQuery struct {
	JobID    string
	Page     int // 1-based
	PerPage  int
	Snapshot int64 // highest visible seq; 0 means "as of now"
}

type AlertQuery struct {
	JobID               string
	IncludeAcknowledged bool
}

// Store persists jobs, runs and alerts. Deleting a job removes its runs and alerts.
//
// Implementations must be safe for concurrent use. Serializing mutations of a
// single job is the caller's responsibility.
type Store interface {
	Ping(ctx context.Context) error

	UpsertJob(ctx context.Context, job models.JobConfig) error
	GetJob(ctx context.Context, jobID string) (models.JobConfig, error)
	ListJobs(ctx context.Context) ([]models.JobConfig, error)
	DeleteJob(ctx context.Context, jobID string) error

	// StartRun inserts run, first closing any open run of the same job at
	// run.StartTime. The closed run, if any, is returned.
	StartRun(ctx context.Context, run models.RunRecord) (models.RunRecord, *models.RunRecord, error)
	// EndRun closes the open run of jobID at the given time.
	EndRun(ctx context.Context, jobID string, at time.Time) (models.RunRecord, error)
	LastRun(ctx context.Context, jobID string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, q RunQuery) (runs []models.RunRecord, total int, snapshot int64, err error)

	// InsertAlert stores a, unless an unacknowledged alert with the same
	// (job, type, key) exists, in which case that alert is returned with created=false.
	InsertAlert(ctx context.Context, a models.Alert) (alert models.Alert, created bool, err error)
	// HasAlert reports whether any alert, acknowledged or not, exists for the key.
	HasAlert(ctx context.Context, jobID string, typ models.AlertType, key time.Time) (bool, error)
	// LatestAlert returns the alert of the given type with the latest key, an
	// unacknowledged one winning a tie, or nil when the job has none.
	LatestAlert(ctx context.Context, jobID string, typ models.AlertType) (*models.Alert, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) (models.Alert, error)
	ListAlerts(ctx context.Context, q AlertQuery) ([]models.Alert, error)

	Stats(ctx context.Context) (models.Stats, error)
}
