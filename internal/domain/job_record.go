package domain

import "time"

// JobRecord is the externally owned record whose job lifecycle is tracked.
// Fields holds every caller-owned attribute not modelled here; it is passed back
// untouched on update.
type JobRecord struct {
	ID       string
	ParentID string
	JobID    string
	Status   JobStatus
	Outputs  []string
	Fields   map[string]any
}

func (r JobRecord) clone() JobRecord {
	out := r
	if r.Outputs != nil {
		out.Outputs = append([]string(nil), r.Outputs...)
	}
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// WithOutputs marks the record succeeded with the given durable URLs.
func (r JobRecord) WithOutputs(urls []string) JobRecord {
	out := r.clone()
	out.Status = out.Status.Advance(JobStatusSucceeded)
	out.Outputs = append([]string(nil), urls...)
	return out
}

// WithFailure marks the record failed. Outputs are only kept for succeeded records.
func (r JobRecord) WithFailure() JobRecord {
	out := r.clone()
	out.Status = out.Status.Advance(JobStatusFailed)
	out.Outputs = []string{}
	return out
}

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeModify ChangeKind = "modify"
	ChangeRemove ChangeKind = "remove"
)

// ChangeEvent is one record mutation as delivered by the change-event source.
type ChangeEvent struct {
	Kind ChangeKind
	New  *JobRecord
	Old  *JobRecord
}

// PollAttempt only lives inside one poll loop.
type PollAttempt struct {
	Number       int
	Elapsed      time.Duration
	LastObserved JobStatus
}

// Subscriber is a live client registered for record broadcasts.
type Subscriber struct {
	ConnectionID string            `json:"connectionId"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt,omitempty"`
}
