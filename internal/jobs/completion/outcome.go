package completion

import "github.com/yungbote/jobrelay/internal/domain"

type OutcomeKind string

const (
	OutcomeSucceeded      OutcomeKind = "succeeded"
	OutcomeSucceededEmpty OutcomeKind = "succeeded_empty"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeFinalizeFailed OutcomeKind = "finalize_failed"
	OutcomeAbandoned      OutcomeKind = "abandoned"
	OutcomeCanceled       OutcomeKind = "canceled"
	OutcomeSkipped        OutcomeKind = "skipped"
)

// Outcome is how one poll loop ended. Record is what the record API stored,
// set only when a write-back happened.
type Outcome struct {
	Kind     OutcomeKind
	Attempts int
	Status   domain.JobStatus
	Record   *domain.JobRecord
	Err      error
}
