package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cronwatch/models"
)

// AlertSink delivers a freshly raised alert outside the service.
type AlertSink interface {
	Name() string
	Send(ctx context.Context, job models.JobConfig, alert models.Alert) error
}

type SlackSink struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{WebhookURL: webhookURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, job models.JobConfig, alert models.Alert) error {
	payload := map[string]string{
		"text": fmt.Sprintf("🚨 Cron Alert\n\nJob: %s\nType: %s\nDetected: %s\n\nIssue:\n%s\n\nAlert ID: %s",
			job.JobID,
			alert.Type,
			alert.DetectedTime.Format(time.RFC3339),
			alert.Message,
			alert.ID,
		),
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(jsonPayload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API error: status %d", resp.StatusCode)
	}
	return nil
}
