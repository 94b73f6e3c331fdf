package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cronwatch/db"
	"cronwatch/metrics"
	"cronwatch/models"
)

// Raise records an alert for (jobID, typ, key). If an unacknowledged alert
// with that key exists it is returned unchanged and created is false.
func (m *Monitor) Raise(ctx context.Context, jobID string, typ models.AlertType, key time.Time, message string) (models.Alert, bool, error) {
	if !typ.Valid() {
		return models.Alert{}, false, fmt.Errorf("unknown alert type %q", typ)
	}
	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return models.Alert{}, false, err
	}
	return m.raise(ctx, job, typ, key, message)
}

func (m *Monitor) raise(ctx context.Context, job models.JobConfig, typ models.AlertType, key time.Time, message string) (models.Alert, bool, error) {
	key = key.UTC()
	alert := models.Alert{
		ID:           uuid.NewString(),
		JobID:        job.JobID,
		Type:         typ,
		Key:          key,
		DetectedTime: m.now().UTC(),
		Message:      message,
	}
	switch typ {
	case models.AlertMissedJob:
		alert.ExpectedStartTime = &key
	case models.AlertLongRunning:
		alert.ActualStartTime = &key
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	stored, created, err := m.store.InsertAlert(sctx, alert)
	if err != nil {
		return stored, false, notFound(err, fmt.Sprintf("raise %s for %s", typ, job.JobID))
	}
	if !created {
		return stored, false, nil
	}

	metrics.AlertsRaised.WithLabelValues(string(typ)).Inc()
	slog.Warn("alert raised", "job_id", job.JobID, "type", typ, "alert_id", stored.ID, "key", key)
	m.publish(models.EventRefresh, job.JobID, "alert_raised")
	m.dispatch(job, stored)
	return stored, true, nil
}

// Acknowledge marks the alert handled. Acknowledging twice keeps the first
// acknowledgment time.
func (m *Monitor) Acknowledge(ctx context.Context, alertID string) (models.Alert, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	current, err := m.store.GetAlert(sctx, alertID)
	if err != nil {
		return current, notFound(err, fmt.Sprintf("alert %s", alertID))
	}
	if current.Acknowledged {
		return current, nil
	}

	alert, err := m.store.AcknowledgeAlert(sctx, alertID, m.now().UTC())
	if err != nil {
		return alert, notFound(err, fmt.Sprintf("alert %s", alertID))
	}
	metrics.AlertsAcknowledged.Inc()
	m.publish(models.EventRefresh, alert.JobID, "alert_acknowledged")
	return alert, nil
}

// ListAlerts returns alerts newest first, optionally limited to one job.
func (m *Monitor) ListAlerts(ctx context.Context, includeAcknowledged bool, jobID string) ([]models.Alert, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	alerts, err := m.store.ListAlerts(sctx, db.AlertQuery{JobID: jobID, IncludeAcknowledged: includeAcknowledged})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}
