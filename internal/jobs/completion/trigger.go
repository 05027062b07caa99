package completion

import "github.com/yungbote/jobrelay/internal/domain"

// Decision is why a change event did or did not start a poll loop.
type Decision string

const (
	DecisionTrigger     Decision = "trigger"
	DecisionIgnoredKind Decision = "ignored_kind"
	DecisionNoSnapshot  Decision = "no_snapshot"
	DecisionNoJob       Decision = "no_job"
	DecisionNotActive   Decision = "not_active"
	DecisionEcho        Decision = "echo"
	DecisionDropped     Decision = "dropped"
)

// Decide applies the trigger rule to one change event.
// A snapshot whose status is terminal or unrecognised is not active.
func Decide(ev domain.ChangeEvent) Decision {
	if ev.Kind != domain.ChangeInsert && ev.Kind != domain.ChangeModify {
		return DecisionIgnoredKind
	}
	if ev.New == nil {
		return DecisionNoSnapshot
	}
	if ev.New.JobID == "" {
		return DecisionNoJob
	}
	if ev.New.Status != domain.JobStatusPending && ev.New.Status != domain.JobStatusRunning {
		return DecisionNotActive
	}
	// Our own write-back of a terminal status for the same job.
	if ev.Old != nil && ev.Old.JobID == ev.New.JobID && ev.Old.Status.Terminal() {
		return DecisionEcho
	}
	return DecisionTrigger
}

func ShouldTrigger(ev domain.ChangeEvent) bool {
	return Decide(ev) == DecisionTrigger
}
