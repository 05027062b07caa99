package domain

import "testing"

func TestParseJobStatusAliases(t *testing.T) {
	cases := map[string]JobStatus{
		"starting":   JobStatusPending,
		" Pending ":  JobStatusPending,
		"processing": JobStatusRunning,
		"RUNNING":    JobStatusRunning,
		"succeeded":  JobStatusSucceeded,
		"failed":     JobStatusFailed,
		"canceled":   JobStatusFailed,
	}
	for raw, want := range cases {
		got, err := ParseJobStatus(raw)
		if err != nil {
			t.Fatalf("ParseJobStatus(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseJobStatus(%q): want=%s got=%s", raw, want, got)
		}
	}
	if _, err := ParseJobStatus("warming_up"); err == nil {
		t.Fatalf("ParseJobStatus: expected error for unknown status")
	}
}

func TestJobStatusAdvanceNeverRegresses(t *testing.T) {
	all := []JobStatus{JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed}
	rank := func(s JobStatus) int { return s.rank() }
	for _, from := range all {
		for _, next := range all {
			got := from.Advance(next)
			if rank(got) < rank(from) {
				t.Fatalf("%s.Advance(%s) regressed to %s", from, next, got)
			}
			if from.Terminal() && got != from {
				t.Fatalf("%s.Advance(%s): terminal status replaced by %s", from, next, got)
			}
		}
	}

	// A sequence of reports, some stale, only moves forward.
	seq := []JobStatus{JobStatusRunning, JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusRunning, JobStatusFailed}
	cur := JobStatusPending
	prev := rank(cur)
	for _, s := range seq {
		cur = cur.Advance(s)
		if rank(cur) < prev {
			t.Fatalf("sequence regressed at %s", s)
		}
		prev = rank(cur)
	}
	if cur != JobStatusSucceeded {
		t.Fatalf("final status: want=%s got=%s", JobStatusSucceeded, cur)
	}
}

func TestJobStatusAdvanceIgnoresUnknown(t *testing.T) {
	if got := JobStatusRunning.Advance(JobStatus("mystery")); got != JobStatusRunning {
		t.Fatalf("Advance(unknown): want=%s got=%s", JobStatusRunning, got)
	}
}

func TestWithOutputsAndFailureKeepInvariant(t *testing.T) {
	rec := JobRecord{ID: "n1", ParentID: "p1", JobID: "j1", Status: JobStatusRunning, Fields: map[string]any{"title": "t"}}

	ok := rec.WithOutputs([]string{"https://store/a.png"})
	if ok.Status != JobStatusSucceeded || len(ok.Outputs) != 1 {
		t.Fatalf("WithOutputs: got status=%s outputs=%v", ok.Status, ok.Outputs)
	}
	ok.Fields["title"] = "changed"
	if rec.Fields["title"] != "t" {
		t.Fatalf("WithOutputs must not alias caller fields")
	}

	bad := rec.WithFailure()
	if bad.Status != JobStatusFailed || len(bad.Outputs) != 0 {
		t.Fatalf("WithFailure: got status=%s outputs=%v", bad.Status, bad.Outputs)
	}
}
