package domain

import (
	"fmt"
	"strings"
)

// JobStatus is the lifecycle of an externally executed job.
// Transitions only move forward: pending -> running -> succeeded | failed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// ParseJobStatus accepts the canonical names plus the vocabulary used by the
// upstream job service ("starting", "processing").
func ParseJobStatus(raw string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "starting", "queued", "submitted":
		return JobStatusPending, nil
	case "running", "processing":
		return JobStatusRunning, nil
	case "succeeded", "success", "completed":
		return JobStatusSucceeded, nil
	case "failed", "canceled", "cancelled", "error":
		return JobStatusFailed, nil
	default:
		return "", fmt.Errorf("unknown job status %q", raw)
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 1
	case JobStatusRunning:
		return 2
	case JobStatusSucceeded, JobStatusFailed:
		return 3
	default:
		return 0
	}
}

// Advance returns the status after observing next. It never moves backwards and a
// terminal status is never replaced, not even by the other terminal status.
func (s JobStatus) Advance(next JobStatus) JobStatus {
	if s.Terminal() {
		return s
	}
	if next.rank() > s.rank() {
		return next
	}
	return s
}
