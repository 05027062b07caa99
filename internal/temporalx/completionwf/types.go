package completionwf

import (
	"encoding/json"
	"time"
)

const (
	WorkflowName           = "completion_poll"
	ActivityQueryStatus    = "completion_query_status"
	ActivityFinalize       = "completion_finalize"
	workflowIDPrefix       = "completion:"
	defaultFinalizeTimeout = 10 * time.Minute
)

// WorkflowID collapses redeliveries of the same record/job onto one execution.
func WorkflowID(recordID, jobID string) string {
	return workflowIDPrefix + recordID + ":" + jobID
}

// Input carries the record in its codec form so caller-owned fields survive
// the history round trip unchanged.
type Input struct {
	RecordID     string          `json:"record_id"`
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Record       json.RawMessage `json:"record"`
	MaxAttempts  int             `json:"max_attempts"`
	PollInterval time.Duration   `json:"poll_interval"`
}

// Observation is one status query. Answered=false means the service gave no
// usable report this attempt.
type Observation struct {
	Answered bool     `json:"answered"`
	Status   string   `json:"status,omitempty"`
	Outputs  []string `json:"outputs,omitempty"`
}

type FinalizeInput struct {
	Record  json.RawMessage `json:"record"`
	Outputs []string        `json:"outputs,omitempty"`
	Failed  bool            `json:"failed,omitempty"`
}

type FinalizeResult struct {
	Record json.RawMessage `json:"record"`
}

type Result struct {
	Outcome  string          `json:"outcome"`
	Attempts int             `json:"attempts"`
	Status   string          `json:"status"`
	Record   json.RawMessage `json:"record,omitempty"`
	Error    string          `json:"error,omitempty"`
}
