package completion

import (
	"errors"
	"fmt"
)

// ErrAbandoned marks a poll loop that ran out of attempts before the job
// reached a terminal status.
var ErrAbandoned = errors.New("poll budget exhausted")

// MaterializationError means the job succeeded but its outputs could not be
// copied into durable storage. Nothing was written for the record.
type MaterializationError struct {
	RecordID string
	JobID    string
	Err      error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize outputs for record %s (job %s): %v", e.RecordID, e.JobID, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// UpdateError means the record API rejected or failed the write-back.
type UpdateError struct {
	RecordID string
	Err      error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update record %s: %v", e.RecordID, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }
