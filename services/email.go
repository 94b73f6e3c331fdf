package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"cronwatch/models"
)

type EmailSink struct {
	APIKey string
	To     string
}

func NewEmailSink(apiKey, to string) *EmailSink {
	return &EmailSink{APIKey: apiKey, To: to}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Send(ctx context.Context, job models.JobConfig, alert models.Alert) error {
	subject, body := alertEmail(job, alert)

	from := mail.NewEmail("Cronwatch", e.To)
	to := mail.NewEmail("Admin", e.To)
	message := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(e.APIKey)

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	return nil
}

func alertEmail(job models.JobConfig, alert models.Alert) (string, string) {
	var subject, explanation string
	switch alert.Type {
	case models.AlertLongRunning:
		subject = fmt.Sprintf("[WARNING] %s is still running", job.JobID)
		explanation = fmt.Sprintf("This job has been running longer than its maximum runtime of %.0f minutes.", job.MaxRuntime().Minutes())
	default:
		subject = fmt.Sprintf("[CRITICAL] %s did not run", job.JobID)
		explanation = `This job did not report a start within its expected window.

This usually means:
- Cron did not execute
- Server was down
- Script failed before startup`
	}

	expected := "n/a"
	if alert.ExpectedStartTime != nil {
		expected = alert.ExpectedStartTime.Format(time.RFC3339)
	}
	actual := "none"
	if alert.ActualStartTime != nil {
		actual = alert.ActualStartTime.Format(time.RFC3339)
	}

	body := fmt.Sprintf(`%s

%s

JOB SUMMARY:
Job: %s
Schedule: %s (%s)
Tolerance: %d minutes

WHAT WENT WRONG:
%s
Expected start: %s
Actual start: %s
Detected: %s

---
Alert ID: %s`,
		subject,
		explanation,
		job.JobID,
		job.Schedule,
		job.Timezone,
		job.ToleranceMinutes,
		alert.Message,
		expected,
		actual,
		alert.DetectedTime.Format(time.RFC3339),
		alert.ID,
	)
	return subject, body
}
