package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"cronwatch/models"
)

// JobsFile is the seed file format:
//
//	jobs:
//	  - job_id: nightly-backup
//	    schedule: "0 2 * * *"
//	    tolerance_minutes: 15
//	    max_runtime_minutes: 60
type JobsFile struct {
	Jobs []models.JobConfig `yaml:"jobs"`
}

func LoadJobsFile(path string) ([]models.JobConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseJobs(b)
}

func ParseJobs(b []byte) ([]models.JobConfig, error) {
	var f JobsFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}

	seen := make(map[string]bool, len(f.Jobs))
	for i, j := range f.Jobs {
		if j.JobID == "" {
			return nil, fmt.Errorf("jobs[%d]: job_id is required", i)
		}
		if seen[j.JobID] {
			return nil, fmt.Errorf("jobs[%d]: duplicate job_id %q", i, j.JobID)
		}
		seen[j.JobID] = true
		if j.Timezone == "" {
			f.Jobs[i].Timezone = "UTC"
		}
	}
	return f.Jobs, nil
}
