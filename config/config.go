package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string // empty runs on the in-memory store

	CheckInterval    time.Duration
	StoreTimeout     time.Duration
	DetectionWorkers int
	RunsPerPage      int
	EventBuffer      int

	NATSURL     string
	NATSSubject string

	SendGridAPIKey  string
	AlertEmail      string
	SlackWebhookURL string

	JobsFile  string
	JWTSecret string
	LogLevel  slog.Level
}

// Load reads the environment, after applying a .env file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenv("PORT", "8080"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		NATSURL:         getenv("NATS_URL", ""),
		NATSSubject:     getenv("NATS_SUBJECT", "cronwatch.events"),
		SendGridAPIKey:  getenv("SENDGRID_API_KEY", ""),
		AlertEmail:      getenv("ALERT_EMAIL", ""),
		SlackWebhookURL: getenv("SLACK_WEBHOOK_URL", ""),
		JobsFile:        getenv("JOBS_FILE", ""),
		JWTSecret:       getenv("JWT_SECRET", ""),
	}

	var err error
	if cfg.CheckInterval, err = durationEnv("CHECK_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.DetectionWorkers, err = intEnv("DETECTION_WORKERS", 8); err != nil {
		return cfg, err
	}
	if cfg.RunsPerPage, err = intEnv("RUNS_PER_PAGE", 10); err != nil {
		return cfg, err
	}
	if cfg.EventBuffer, err = intEnv("EVENT_BUFFER", 16); err != nil {
		return cfg, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

// EmailEnabled reports whether SendGrid delivery is configured.
func (c Config) EmailEnabled() bool {
	return c.SendGridAPIKey != "" && c.AlertEmail != ""
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: must be a positive duration, got %q", key, v)
	}
	return d, nil
}
