package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PORT", "DATABASE_URL", "CHECK_INTERVAL", "STORE_TIMEOUT", "DETECTION_WORKERS",
		"RUNS_PER_PAGE", "EVENT_BUFFER", "NATS_URL", "NATS_SUBJECT", "SENDGRID_API_KEY",
		"ALERT_EMAIL", "SLACK_WEBHOOK_URL", "JOBS_FILE", "JWT_SECRET", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DatabaseURL != "" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CheckInterval != 15*time.Second || cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("durations = %s, %s", cfg.CheckInterval, cfg.StoreTimeout)
	}
	if cfg.DetectionWorkers != 8 || cfg.RunsPerPage != 10 || cfg.EventBuffer != 16 {
		t.Fatalf("ints = %d, %d, %d", cfg.DetectionWorkers, cfg.RunsPerPage, cfg.EventBuffer)
	}
	if cfg.NATSSubject != "cronwatch.events" || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EmailEnabled() {
		t.Fatal("email enabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECK_INTERVAL", "1m")
	t.Setenv("DETECTION_WORKERS", " 3 ")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SENDGRID_API_KEY", "key")
	t.Setenv("ALERT_EMAIL", "ops@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CheckInterval != time.Minute || cfg.DetectionWorkers != 3 || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.EmailEnabled() {
		t.Fatal("email not enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct{ key, value string }{
		{"CHECK_INTERVAL", "soon"},
		{"CHECK_INTERVAL", "-5s"},
		{"STORE_TIMEOUT", "0s"},
		{"DETECTION_WORKERS", "0"},
		{"RUNS_PER_PAGE", "ten"},
		{"LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("Load err = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestLoadFeatures(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "")
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("DETECTION_ENABLED", "false")
	t.Setenv("PING_ENABLED", "")
	f := LoadFeatures()
	if f.AuthEnabled || !f.MetricsEnabled || f.DetectionEnabled || !f.PingEnabled {
		t.Fatalf("features = %+v", f)
	}
}

func TestParseJobs(t *testing.T) {
	jobs, err := ParseJobs([]byte(`
jobs:
  - job_id: nightly-backup
    schedule: "0 2 * * *"
    tolerance_minutes: 15
    max_runtime_minutes: 60
  - job_id: heartbeat
    schedule: "*/5 * * * *"
    timezone: Europe/Berlin
`))
	if err != nil {
		t.Fatalf("ParseJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Timezone != "UTC" || jobs[0].ToleranceMinutes != 15 || *jobs[0].MaxRuntimeMinutes != 60 {
		t.Fatalf("jobs[0] = %+v", jobs[0])
	}
	if jobs[1].Timezone != "Europe/Berlin" || jobs[1].MaxRuntimeMinutes != nil {
		t.Fatalf("jobs[1] = %+v", jobs[1])
	}

	if jobs, err := ParseJobs(nil); err != nil || len(jobs) != 0 {
		t.Fatalf("empty file = %v, %v", jobs, err)
	}
}

func TestParseJobsRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"duplicate":     "jobs:\n  - job_id: a\n    schedule: '* * * * *'\n  - job_id: a\n    schedule: '* * * * *'\n",
		"missing id":    "jobs:\n  - schedule: '* * * * *'\n",
		"unknown field": "jobs:\n  - job_id: a\n    schedule: '* * * * *'\n    retries: 3\n",
	} {
		if _, err := ParseJobs([]byte(doc)); err == nil {
			t.Errorf("%s: ParseJobs accepted %q", name, doc)
		}
	}
}
