package services

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid job config")
	ErrNotFound      = errors.New("not found")
	ErrPaused        = errors.New("job is paused")
	ErrNoOpenRun     = errors.New("no active job run found")
)
