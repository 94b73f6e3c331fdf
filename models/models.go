package models

import (
	"encoding/json"
	"time"
)

type JobConfig struct {
	JobID             string    `json:"job_id" yaml:"job_id"`
	Schedule          string    `json:"schedule" yaml:"schedule"`
	Timezone          string    `json:"timezone" yaml:"timezone"`
	ToleranceMinutes  int       `json:"tolerance_minutes" yaml:"tolerance_minutes"`
	MaxRuntimeMinutes *int      `json:"max_runtime_minutes,omitempty" yaml:"max_runtime_minutes"`
	Paused            bool      `json:"paused" yaml:"paused"`
	ActiveSince       time.Time `json:"active_since" yaml:"-"` // Missed occurrences before this instant are ignored
	CreatedAt         time.Time `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// Heartbeat jobs have no maximum runtime and are only checked for missed occurrences.
func (j JobConfig) Heartbeat() bool {
	return j.MaxRuntimeMinutes == nil
}

func (j JobConfig) Tolerance() time.Duration {
	return time.Duration(j.ToleranceMinutes) * time.Minute
}

func (j JobConfig) MaxRuntime() time.Duration {
	if j.MaxRuntimeMinutes == nil {
		return 0
	}
	return time.Duration(*j.MaxRuntimeMinutes) * time.Minute
}

type ClientInfo struct {
	IPAddress      string                 `json:"ip_address,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	Hostname       string                 `json:"hostname,omitempty"`
	OSInfo         string                 `json:"os_info,omitempty"`
	AdditionalInfo map[string]interface{} `json:"additional_info,omitempty"`
}

type RunRecord struct {
	ID               string     `json:"id"`
	Seq              int64      `json:"seq"`
	JobID            string     `json:"job_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	ClientInfo       ClientInfo `json:"client_info"`
	AlertMessage     string     `json:"alert_message,omitempty"`
	AlertTime        *time.Time `json:"alert_time,omitempty"`
	ClosedImplicitly bool       `json:"closed_implicitly,omitempty"`
}

// Open reports whether the run has not ended yet.
func (r RunRecord) Open() bool {
	return r.EndTime == nil
}

// Duration is derived from the two timestamps; nil while the run is open.
func (r RunRecord) Duration() *float64 {
	if r.EndTime == nil {
		return nil
	}
	d := r.EndTime.Sub(r.StartTime).Seconds()
	return &d
}

func (r RunRecord) MarshalJSON() ([]byte, error) {
	type plain RunRecord
	return json.Marshal(struct {
		plain
		Duration *float64 `json:"duration"`
	}{plain(r), r.Duration()})
}

type AlertType string

const (
	AlertMissedJob   AlertType = "missed_job"
	AlertLongRunning AlertType = "long_running"
)

func (t AlertType) Valid() bool {
	return t == AlertMissedJob || t == AlertLongRunning
}

type Alert struct {
	ID                string     `json:"id"`
	JobID             string     `json:"job_id"`
	Type              AlertType  `json:"type"`
	Key               time.Time  `json:"alert_key"`
	ExpectedStartTime *time.Time `json:"expected_start_time,omitempty"`
	ActualStartTime   *time.Time `json:"actual_start_time,omitempty"`
	DetectedTime      time.Time  `json:"detected_time"`
	Message           string     `json:"alert_message"`
	Acknowledged      bool       `json:"acknowledged"`
	CreatedAt         *time.Time `json:"created_at"` // Acknowledgment time, nil until acknowledged
}

// JobView is a JobConfig augmented with schedule and last-run state for listings.
type JobView struct {
	JobConfig
	NextScheduledRun *time.Time  `json:"next_scheduled_run"`
	LastScheduledRun *time.Time  `json:"last_scheduled_run"`
	LastStartTime    *time.Time  `json:"last_start_time"`
	LastEndTime      *time.Time  `json:"last_end_time"`
	Duration         *float64    `json:"duration"`
	Running          bool        `json:"running"`
	OpenAlerts       int         `json:"open_alerts"`
	LastAlertMessage string      `json:"last_alert_message,omitempty"`
	Client           *ClientInfo `json:"client,omitempty"`
}

type RunPage struct {
	Runs       []RunRecord `json:"runs"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
	Snapshot   int64       `json:"snapshot"`
}

type EventType string

const (
	EventRefresh   EventType = "refresh"
	EventJobUpdate EventType = "job_update"
	EventJobStatus EventType = "job_status"
)

type Event struct {
	Type   EventType `json:"type"`
	JobID  string    `json:"job_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin,omitempty"`
}

type Stats struct {
	TotalJobs          int     `json:"total_jobs"`
	PausedJobs         int     `json:"paused_jobs"`
	RunningJobs        int     `json:"running_jobs"`
	TotalRuns          int     `json:"total_runs"`
	TotalAlerts        int     `json:"total_alerts"`
	OpenAlerts         int     `json:"open_alerts"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}
