package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cronwatch/models"
)

// PostgresStore implements Store on top of the schema in schema.sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{db: conn}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const jobColumns = `job_id, schedule, timezone, tolerance_minutes, max_runtime_minutes, paused, active_since, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.JobConfig, error) {
	var j models.JobConfig
	var maxRuntime sql.NullInt64
	err := row.Scan(&j.JobID, &j.Schedule, &j.Timezone, &j.ToleranceMinutes, &maxRuntime,
		&j.Paused, &j.ActiveSince, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, err
	}
	if maxRuntime.Valid {
		v := int(maxRuntime.Int64)
		j.MaxRuntimeMinutes = &v
	}
	return j, nil
}

func (s *PostgresStore) UpsertJob(ctx context.Context, job models.JobConfig) error {
	var maxRuntime any
	if job.MaxRuntimeMinutes != nil {
		maxRuntime = *job.MaxRuntimeMinutes
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
		  schedule=EXCLUDED.schedule,
		  timezone=EXCLUDED.timezone,
		  tolerance_minutes=EXCLUDED.tolerance_minutes,
		  max_runtime_minutes=EXCLUDED.max_runtime_minutes,
		  paused=EXCLUDED.paused,
		  active_since=EXCLUDED.active_since,
		  updated_at=EXCLUDED.updated_at
	`, job.JobID, job.Schedule, job.Timezone, job.ToleranceMinutes, maxRuntime,
		job.Paused, job.ActiveSince, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (models.JobConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	return j, err
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]models.JobConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY job_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.JobConfig{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `seq, id, job_id, start_time, end_time, client_info, COALESCE(alert_message, ''), alert_time, closed_implicitly`

func scanRun(row rowScanner) (models.RunRecord, error) {
	var r models.RunRecord
	var clientRaw []byte
	err := row.Scan(&r.Seq, &r.ID, &r.JobID, &r.StartTime, &r.EndTime, &clientRaw,
		&r.AlertMessage, &r.AlertTime, &r.ClosedImplicitly)
	if err != nil {
		return r, err
	}
	if len(clientRaw) > 0 {
		if err := json.Unmarshal(clientRaw, &r.ClientInfo); err != nil {
			return r, fmt.Errorf("decode client_info for run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, run models.RunRecord) (models.RunRecord, *models.RunRecord, error) {
	clientJSON, err := json.Marshal(run.ClientInfo)
	if err != nil {
		return run, nil, fmt.Errorf("encode client_info: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return run, nil, err
	}
	defer tx.Rollback()

	var closed *models.RunRecord
	row := tx.QueryRowContext(ctx, `
		UPDATE job_runs SET end_time = $2, closed_implicitly = TRUE
		WHERE job_id = $1 AND end_time IS NULL
		RETURNING `+runColumns, run.JobID, run.StartTime)
	c, err := scanRun(row)
	switch {
	case err == nil:
		closed = &c
	case errors.Is(err, sql.ErrNoRows):
	default:
		return run, nil, fmt.Errorf("close open run: %w", err)
	}

	var alertMessage any
	if run.AlertMessage != "" {
		alertMessage = run.AlertMessage
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO job_runs (id, job_id, start_time, client_info, alert_message, alert_time)
		SELECT $1, job_id, $3, $4::jsonb, $5, $6 FROM jobs WHERE job_id = $2
		RETURNING seq
	`, run.ID, run.JobID, run.StartTime, string(clientJSON), alertMessage, run.AlertTime).Scan(&run.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return run, nil, ErrNotFound
	}
	if err != nil {
		return run, nil, fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return run, nil, err
	}
	return run, closed, nil
}

func (s *PostgresStore) EndRun(ctx context.Context, jobID string, at time.Time) (models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE job_runs SET end_time = $2
		WHERE job_id = $1 AND end_time IS NULL
		RETURNING `+runColumns, jobID, at)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) LastRun(ctx context.Context, jobID string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM job_runs
		WHERE job_id = $1
		ORDER BY start_time DESC, seq DESC
		LIMIT 1
	`, jobID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, q RunQuery) ([]models.RunRecord, int, int64, error) {
	snapshot := q.Snapshot
	if snapshot <= 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM job_runs`).Scan(&snapshot); err != nil {
			return nil, 0, 0, err
		}
	}

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM job_runs
		WHERE seq <= $1 AND ($2 = '' OR job_id = $2)
	`, snapshot, q.JobID).Scan(&total)
	if err != nil {
		return nil, 0, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM job_runs
		WHERE seq <= $1 AND ($2 = '' OR job_id = $2)
		ORDER BY start_time DESC, seq DESC
		LIMIT $3 OFFSET $4
	`, snapshot, q.JobID, q.PerPage, (q.Page-1)*q.PerPage)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		runs = append(runs, r)
	}
	return runs, total, snapshot, rows.Err()
}

const alertColumns = `id, job_id, alert_type, alert_key, expected_start_time, actual_start_time, detected_time, alert_message, acknowledged, created_at`

func scanAlert(row rowScanner) (models.Alert, error) {
	var a models.Alert
	var typ string
	err := row.Scan(&a.ID, &a.JobID, &typ, &a.Key, &a.ExpectedStartTime, &a.ActualStartTime,
		&a.DetectedTime, &a.Message, &a.Acknowledged, &a.CreatedAt)
	a.Type = models.AlertType(typ)
	return a, err
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a models.Alert) (models.Alert, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO job_alerts (`+alertColumns+`)
		SELECT $1, job_id, $3, $4, $5, $6, $7, $8, FALSE, NULL FROM jobs WHERE job_id = $2
		ON CONFLICT (job_id, alert_type, alert_key) WHERE NOT acknowledged DO NOTHING
		RETURNING `+alertColumns,
		a.ID, a.JobID, string(a.Type), a.Key, a.ExpectedStartTime, a.ActualStartTime, a.DetectedTime, a.Message)
	inserted, err := scanAlert(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}

	// Either the job is gone or an unacknowledged alert already holds the key.
	row = s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM job_alerts
		WHERE job_id = $1 AND alert_type = $2 AND alert_key = $3 AND NOT acknowledged
	`, a.JobID, string(a.Type), a.Key)
	existing, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Alert{}, false, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) HasAlert(ctx context.Context, jobID string, typ models.AlertType, key time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM job_alerts WHERE job_id = $1 AND alert_type = $2 AND alert_key = $3)
	`, jobID, string(typ), key).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) LatestAlert(ctx context.Context, jobID string, typ models.AlertType) (*models.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM job_alerts
		WHERE job_id = $1 AND alert_type = $2
		ORDER BY alert_key DESC, acknowledged ASC, detected_time DESC
		LIMIT 1
	`, jobID, string(typ)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM job_alerts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (models.Alert, error) {
	// COALESCE keeps the first acknowledgment time on repeated calls.
	row := s.db.QueryRowContext(ctx, `
		UPDATE job_alerts SET acknowledged = TRUE, created_at = COALESCE(created_at, $2)
		WHERE id = $1
		RETURNING `+alertColumns, id, at)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) ListAlerts(ctx context.Context, q AlertQuery) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM job_alerts
		WHERE ($1 OR NOT acknowledged) AND ($2 = '' OR job_id = $2)
		ORDER BY detected_time DESC
	`, q.IncludeAcknowledged, q.JobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM jobs),
			(SELECT COUNT(*) FROM jobs WHERE paused),
			(SELECT COUNT(DISTINCT job_id) FROM job_runs WHERE end_time IS NULL),
			(SELECT COUNT(*) FROM job_runs),
			(SELECT COUNT(*) FROM job_alerts),
			(SELECT COUNT(*) FROM job_alerts WHERE NOT acknowledged),
			(SELECT AVG(EXTRACT(EPOCH FROM (end_time - start_time))) FROM job_runs WHERE end_time IS NOT NULL)
	`).Scan(&st.TotalJobs, &st.PausedJobs, &st.RunningJobs, &st.TotalRuns, &st.TotalAlerts, &st.OpenAlerts, &avg)
	if err != nil {
		return st, err
	}
	if avg.Valid {
		st.AvgDurationSeconds = avg.Float64
	}
	return st, nil
}
