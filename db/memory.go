package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"cronwatch/models"
)

// MemoryStore keeps everything in process memory. It backs tests and
// single-instance deployments without DATABASE_URL.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]models.JobConfig
	runs   []models.RunRecord // insertion order, seq ascending
	alerts []models.Alert
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.JobConfig)}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) UpsertJob(ctx context.Context, job models.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (models.JobConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.JobConfig{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context) ([]models.JobConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]models.JobConfig, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].JobID < jobs[b].JobID })
	return jobs, nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, jobID)

	runs := s.runs[:0]
	for _, r := range s.runs {
		if r.JobID != jobID {
			runs = append(runs, r)
		}
	}
	s.runs = runs

	alerts := s.alerts[:0]
	for _, a := range s.alerts {
		if a.JobID != jobID {
			alerts = append(alerts, a)
		}
	}
	s.alerts = alerts
	return nil
}

func (s *MemoryStore) StartRun(ctx context.Context, run models.RunRecord) (models.RunRecord, *models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[run.JobID]; !ok {
		return models.RunRecord{}, nil, ErrNotFound
	}

	var closed *models.RunRecord
	if i := s.openRunIndex(run.JobID); i >= 0 {
		end := run.StartTime
		s.runs[i].EndTime = &end
		s.runs[i].ClosedImplicitly = true
		c := s.runs[i]
		closed = &c
	}

	s.seq++
	run.Seq = s.seq
	s.runs = append(s.runs, run)
	return run, closed, nil
}

func (s *MemoryStore) EndRun(ctx context.Context, jobID string, at time.Time) (models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.openRunIndex(jobID)
	if i < 0 {
		return models.RunRecord{}, ErrNotFound
	}
	end := at
	s.runs[i].EndTime = &end
	return s.runs[i], nil
}

func (s *MemoryStore) openRunIndex(jobID string) int {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].JobID == jobID && s.runs[i].Open() {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) LastRun(ctx context.Context, jobID string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *models.RunRecord
	for i := range s.runs {
		r := s.runs[i]
		if r.JobID != jobID {
			continue
		}
		if last == nil || newerRun(r, *last) {
			last = &r
		}
	}
	return last, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, q RunQuery) ([]models.RunRecord, int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := q.Snapshot
	if snapshot <= 0 || snapshot > s.seq {
		snapshot = s.seq
	}

	var visible []models.RunRecord
	for _, r := range s.runs {
		if r.Seq > snapshot {
			continue
		}
		if q.JobID != "" && r.JobID != q.JobID {
			continue
		}
		visible = append(visible, r)
	}
	sort.Slice(visible, func(a, b int) bool { return newerRun(visible[a], visible[b]) })

	total := len(visible)
	from := (q.Page - 1) * q.PerPage
	if from < 0 || from >= total {
		return []models.RunRecord{}, total, snapshot, nil
	}
	to := from + q.PerPage
	if to > total {
		to = total
	}
	page := make([]models.RunRecord, to-from)
	copy(page, visible[from:to])
	return page, total, snapshot, nil
}

func newerRun(a, b models.RunRecord) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.Seq > b.Seq
}

func (s *MemoryStore) InsertAlert(ctx context.Context, a models.Alert) (models.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[a.JobID]; !ok {
		return models.Alert{}, false, ErrNotFound
	}
	for _, existing := range s.alerts {
		if !existing.Acknowledged && sameKey(existing, a.JobID, a.Type, a.Key) {
			return existing, false, nil
		}
	}
	s.alerts = append(s.alerts, a)
	return a, true, nil
}

func (s *MemoryStore) HasAlert(ctx context.Context, jobID string, typ models.AlertType, key time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if sameKey(a, jobID, typ, key) {
			return true, nil
		}
	}
	return false, nil
}

func sameKey(a models.Alert, jobID string, typ models.AlertType, key time.Time) bool {
	return a.JobID == jobID && a.Type == typ && a.Key.Equal(key)
}

func (s *MemoryStore) LatestAlert(ctx context.Context, jobID string, typ models.AlertType) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Alert
	for i := range s.alerts {
		a := s.alerts[i]
		if a.JobID != jobID || a.Type != typ {
			continue
		}
		if latest == nil || a.Key.After(latest.Key) || (a.Key.Equal(latest.Key) && !a.Acknowledged) {
			found := a
			latest = &found
		}
	}
	return latest, nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Alert{}, ErrNotFound
}

func (s *MemoryStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if !s.alerts[i].Acknowledged {
			ackAt := at
			s.alerts[i].Acknowledged = true
			s.alerts[i].CreatedAt = &ackAt
		}
		return s.alerts[i], nil
	}
	return models.Alert{}, ErrNotFound
}

func (s *MemoryStore) ListAlerts(ctx context.Context, q AlertQuery) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Alert{}
	for _, a := range s.alerts {
		if a.Acknowledged && !q.IncludeAcknowledged {
			continue
		}
		if q.JobID != "" && a.JobID != q.JobID {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedTime.After(out[j].DetectedTime) })
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.Stats
	st.TotalJobs = len(s.jobs)
	for _, j := range s.jobs {
		if j.Paused {
			st.PausedJobs++
		}
	}

	running := make(map[string]bool)
	var sum float64
	var ended int
	for _, r := range s.runs {
		st.TotalRuns++
		if d := r.Duration(); d != nil {
			sum += *d
			ended++
		} else {
			running[r.JobID] = true
		}
	}
	st.RunningJobs = len(running)
	if ended > 0 {
		st.AvgDurationSeconds = sum / float64(ended)
	}

	st.TotalAlerts = len(s.alerts)
	for _, a := range s.alerts {
		if !a.Acknowledged {
			st.OpenAlerts++
		}
	}
	return st, nil
}
