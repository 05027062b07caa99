package completion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/jobrelay/internal/clients/jobstatus"
	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/services"
)

type scriptedStatus struct {
	mu      sync.Mutex
	reports []*jobstatus.Report
	calls   int
}

func (s *scriptedStatus) Query(ctx context.Context, jobID string) *jobstatus.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.reports) == 0 {
		return &jobstatus.Report{ID: jobID, Status: domain.JobStatusRunning}
	}
	r := s.reports[0]
	s.reports = s.reports[1:]
	return r
}

type fakeMaterializer struct {
	err   error
	calls int
}

func (m *fakeMaterializer) MaterializeAll(ctx context.Context, urls []string) ([]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = "https://durable.example.com/" + string(rune('a'+i)) + ".png"
	}
	return out, nil
}

type fakeRecords struct {
	mu      sync.Mutex
	updates []domain.JobRecord
	err     error
	order   *[]string
}

func (r *fakeRecords) Update(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order != nil {
		*r.order = append(*r.order, "update")
	}
	if r.err != nil {
		return domain.JobRecord{}, r.err
	}
	r.updates = append(r.updates, rec)
	stored := rec
	stored.Fields = map[string]any{"version": "2"}
	return stored, nil
}

type fakeFanout struct {
	mu       sync.Mutex
	payloads [][]byte
	order    *[]string
}

func (f *fakeFanout) Broadcast(ctx context.Context, payload []byte) services.BroadcastReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order != nil {
		*f.order = append(*f.order, "broadcast")
	}
	f.payloads = append(f.payloads, payload)
	return services.BroadcastReport{Delivered: []string{"c1"}}
}

type syncRunner struct{ names []string }

func (r *syncRunner) Go(name string, fn func(ctx context.Context)) {
	r.names = append(r.names, name)
	fn(context.Background())
}

type harness struct {
	p       *Pipeline
	status  *scriptedStatus
	mat     *fakeMaterializer
	records *fakeRecords
	fanout  *fakeFanout
	runner  *syncRunner
	slept   []time.Duration
	order   []string
}

func newHarness(reports ...*jobstatus.Report) *harness {
	h := &harness{
		status: &scriptedStatus{reports: reports},
		mat:    &fakeMaterializer{},
		runner: &syncRunner{},
	}
	h.records = &fakeRecords{order: &h.order}
	h.fanout = &fakeFanout{order: &h.order}
	h.p = New(Deps{
		Log:          logger.Nop(),
		Status:       h.status,
		Materializer: h.mat,
		Records:      h.records,
		Fanout:       h.fanout,
		Runner:       h.runner,
	}, Config{})
	h.p.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

func running() *jobstatus.Report { return &jobstatus.Report{Status: domain.JobStatusRunning} }

func pendingRecord() domain.JobRecord {
	return domain.JobRecord{
		ID:       "n1",
		ParentID: "pg1",
		JobID:    "p1",
		Status:   domain.JobStatusPending,
		Outputs:  []string{},
		Fields:   map[string]any{"title": "sunset"},
	}
}

func TestPollSucceedsOnFourthAttempt(t *testing.T) {
	h := newHarness(
		running(),
		running(),
		running(),
		&jobstatus.Report{Status: domain.JobStatusSucceeded, Outputs: []string{"https://tmp.example.com/x.png"}},
	)
	out := h.p.Poll(context.Background(), pendingRecord())

	if out.Kind != OutcomeSucceeded || out.Err != nil {
		t.Fatalf("outcome: want=succeeded got=%s err=%v", out.Kind, out.Err)
	}
	if out.Attempts != 4 || h.status.calls != 4 {
		t.Fatalf("attempts: want=4 got=%d queries=%d", out.Attempts, h.status.calls)
	}
	if len(h.records.updates) != 1 {
		t.Fatalf("updates: want=1 got=%d", len(h.records.updates))
	}
	written := h.records.updates[0]
	if written.Status != domain.JobStatusSucceeded || len(written.Outputs) != 1 || written.Outputs[0] != "https://durable.example.com/a.png" {
		t.Fatalf("written record: got %+v", written)
	}
	if written.Fields["title"] != "sunset" {
		t.Fatalf("caller fields must round-trip; got %+v", written.Fields)
	}
	if len(h.order) != 2 || h.order[0] != "update" || h.order[1] != "broadcast" {
		t.Fatalf("order: want=[update broadcast] got=%v", h.order)
	}
	sent, err := h.p.codec.DecodeJSON(h.fanout.payloads[0])
	if err != nil {
		t.Fatalf("decode broadcast payload: %v", err)
	}
	if sent.Fields["version"] != "2" {
		t.Fatalf("broadcast must carry the stored record; got %+v", sent.Fields)
	}
}

func TestPollAbandonsAfterMaxAttempts(t *testing.T) {
	h := newHarness()
	out := h.p.Poll(context.Background(), pendingRecord())

	if out.Kind != OutcomeAbandoned || !errors.Is(out.Err, ErrAbandoned) {
		t.Fatalf("outcome: want=abandoned got=%s err=%v", out.Kind, out.Err)
	}
	if h.status.calls != DefaultMaxAttempts {
		t.Fatalf("queries: want=%d got=%d", DefaultMaxAttempts, h.status.calls)
	}
	var total time.Duration
	for _, d := range h.slept {
		total += d
	}
	if total != time.Duration(DefaultMaxAttempts)*DefaultPollInterval {
		t.Fatalf("slept: want=%s got=%s", time.Duration(DefaultMaxAttempts)*DefaultPollInterval, total)
	}
	if len(h.records.updates) != 0 || len(h.fanout.payloads) != 0 {
		t.Fatalf("abandoned loop must not write or broadcast")
	}
}

func TestPollNilReportContinues(t *testing.T) {
	h := newHarness(
		nil,
		nil,
		&jobstatus.Report{Status: domain.JobStatusSucceeded, Outputs: []string{"https://tmp.example.com/x"}},
	)
	out := h.p.Poll(context.Background(), pendingRecord())
	if out.Kind != OutcomeSucceeded || out.Attempts != 3 {
		t.Fatalf("outcome: want=succeeded/3 got=%s/%d", out.Kind, out.Attempts)
	}
}

func TestPollStatusNeverRegresses(t *testing.T) {
	h := newHarness(
		running(),
		&jobstatus.Report{Status: domain.JobStatusPending},
	)
	h.p.cfg.MaxAttempts = 2
	out := h.p.Poll(context.Background(), pendingRecord())
	if out.Status != domain.JobStatusRunning {
		t.Fatalf("status: want=running got=%s", out.Status)
	}
}

func TestFetchFailureSkipsUpdateAndBroadcast(t *testing.T) {
	h := newHarness(&jobstatus.Report{Status: domain.JobStatusSucceeded, Outputs: []string{"https://tmp.example.com/x.png"}})
	h.mat.err = &services.FetchError{URL: "https://tmp.example.com/x.png", Status: 404}

	out := h.p.Poll(context.Background(), pendingRecord())

	if out.Kind != OutcomeFinalizeFailed {
		t.Fatalf("outcome: want=finalize_failed got=%s", out.Kind)
	}
	var merr *MaterializationError
	if !errors.As(out.Err, &merr) {
		t.Fatalf("want MaterializationError got %T %v", out.Err, out.Err)
	}
	var ferr *services.FetchError
	if !errors.As(out.Err, &ferr) || ferr.Status != 404 {
		t.Fatalf("want wrapped FetchError got %v", out.Err)
	}
	if h.status.calls != 1 || h.mat.calls != 1 {
		t.Fatalf("no retry after success: queries=%d materialize=%d", h.status.calls, h.mat.calls)
	}
	if len(h.records.updates) != 0 || len(h.fanout.payloads) != 0 {
		t.Fatalf("failed materialization must not write or broadcast")
	}
}

func TestPollFailedJobWritesFailureAndBroadcasts(t *testing.T) {
	h := newHarness(running(), &jobstatus.Report{Status: domain.JobStatusFailed})
	out := h.p.Poll(context.Background(), pendingRecord())

	if out.Kind != OutcomeFailed || out.Err != nil {
		t.Fatalf("outcome: want=failed got=%s err=%v", out.Kind, out.Err)
	}
	if len(h.records.updates) != 1 {
		t.Fatalf("updates: want=1 got=%d", len(h.records.updates))
	}
	if w := h.records.updates[0]; w.Status != domain.JobStatusFailed || len(w.Outputs) != 0 {
		t.Fatalf("written: got %+v", w)
	}
	if len(h.fanout.payloads) != 1 {
		t.Fatalf("broadcasts: want=1 got=%d", len(h.fanout.payloads))
	}
	if h.mat.calls != 0 {
		t.Fatalf("failed job must not materialize")
	}
}

func TestPollSucceededWithoutOutputs(t *testing.T) {
	h := newHarness(&jobstatus.Report{Status: domain.JobStatusSucceeded})
	out := h.p.Poll(context.Background(), pendingRecord())
	if out.Kind != OutcomeSucceededEmpty {
		t.Fatalf("outcome: want=succeeded_empty got=%s", out.Kind)
	}
	if len(h.records.updates) != 0 || len(h.fanout.payloads) != 0 {
		t.Fatalf("empty success must not write or broadcast")
	}
}

func TestPollUpdateErrorSkipsBroadcast(t *testing.T) {
	h := newHarness(&jobstatus.Report{Status: domain.JobStatusSucceeded, Outputs: []string{"https://tmp.example.com/x.png"}})
	h.records.err = errors.New("conflict")
	out := h.p.Poll(context.Background(), pendingRecord())
	var uerr *UpdateError
	if out.Kind != OutcomeFinalizeFailed || !errors.As(out.Err, &uerr) {
		t.Fatalf("outcome: want=finalize_failed/UpdateError got=%s/%v", out.Kind, out.Err)
	}
	if len(h.fanout.payloads) != 0 {
		t.Fatalf("broadcast must follow a successful update")
	}
}

func TestPollCanceledWritesNothing(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := h.p.Poll(ctx, pendingRecord())
	if out.Kind != OutcomeCanceled || out.Attempts != 0 {
		t.Fatalf("outcome: want=canceled/0 got=%s/%d", out.Kind, out.Attempts)
	}
	if h.status.calls != 0 || len(h.records.updates) != 0 {
		t.Fatalf("canceled loop must not query or write")
	}
}

func TestOnChangeEventStartsPollOnlyWhenTriggered(t *testing.T) {
	h := newHarness(&jobstatus.Report{Status: domain.JobStatusSucceeded, Outputs: []string{"https://tmp.example.com/x.png"}})
	rec := pendingRecord()

	done := rec
	done.Status = domain.JobStatusSucceeded
	if d := h.p.OnChangeEvent(context.Background(), domain.ChangeEvent{Kind: domain.ChangeModify, New: &done}); d != DecisionNotActive {
		t.Fatalf("terminal snapshot: want=%s got=%s", DecisionNotActive, d)
	}
	if len(h.runner.names) != 0 || h.status.calls != 0 {
		t.Fatalf("terminal snapshot must not start a loop")
	}

	if d := h.p.OnChangeEvent(context.Background(), domain.ChangeEvent{Kind: domain.ChangeInsert, New: &rec}); d != DecisionTrigger {
		t.Fatalf("pending snapshot: want=%s got=%s", DecisionTrigger, d)
	}
	if len(h.runner.names) != 1 || h.runner.names[0] != "completion:n1:p1" {
		t.Fatalf("runner: got %v", h.runner.names)
	}
	if len(h.records.updates) != 1 {
		t.Fatalf("updates: want=1 got=%d", len(h.records.updates))
	}
}

type fakeScheduler struct {
	got []domain.JobRecord
	err error
}

func (s *fakeScheduler) Schedule(ctx context.Context, rec domain.JobRecord) error {
	s.got = append(s.got, rec)
	return s.err
}

func TestOnChangeEventUsesScheduler(t *testing.T) {
	h := newHarness()
	s := &fakeScheduler{}
	h.p.UseScheduler(s)
	rec := pendingRecord()
	if d := h.p.OnChangeEvent(context.Background(), domain.ChangeEvent{Kind: domain.ChangeInsert, New: &rec}); d != DecisionTrigger {
		t.Fatalf("decision: want=trigger got=%s", d)
	}
	if len(s.got) != 1 || len(h.runner.names) != 0 {
		t.Fatalf("scheduler=%d runner=%d", len(s.got), len(h.runner.names))
	}

	s.err = errors.New("unavailable")
	if d := h.p.OnChangeEvent(context.Background(), domain.ChangeEvent{Kind: domain.ChangeInsert, New: &rec}); d != DecisionDropped {
		t.Fatalf("decision: want=dropped got=%s", d)
	}
}

func TestPollStaysWithinBudgetWhenStatusServiceIsSlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	status, err := jobstatus.New(logger.Nop(), srv.Client(), jobstatus.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("jobstatus.New: %v", err)
	}
	cfg := Config{MaxAttempts: 5, PollInterval: 20 * time.Millisecond}
	records := &fakeRecords{}
	fanout := &fakeFanout{}
	p := New(Deps{
		Log:          logger.Nop(),
		Status:       status,
		Materializer: &fakeMaterializer{},
		Records:      records,
		Fanout:       fanout,
	}, cfg)

	start := time.Now()
	out := p.Poll(context.Background(), pendingRecord())
	elapsed := time.Since(start)

	if out.Kind != OutcomeAbandoned {
		t.Fatalf("outcome: want=%s got=%s", OutcomeAbandoned, out.Kind)
	}
	if out.Attempts > cfg.MaxAttempts {
		t.Fatalf("attempts: want<=%d got=%d", cfg.MaxAttempts, out.Attempts)
	}
	// Scheduling jitter allowance on top of the budget.
	if limit := cfg.Budget() + 50*time.Millisecond; elapsed > limit {
		t.Fatalf("elapsed: want<=%s got=%s", limit, elapsed)
	}
	if len(records.updates) != 0 || len(fanout.payloads) != 0 {
		t.Fatalf("abandoned poll must not write: updates=%d broadcasts=%d", len(records.updates), len(fanout.payloads))
	}
}

func TestConfigBudget(t *testing.T) {
	if got, want := (Config{}).Budget(), 61*time.Second; got != want {
		t.Fatalf("default budget: want=%s got=%s", want, got)
	}
	cfg := Config{MaxAttempts: 5, PollInterval: 20 * time.Millisecond}
	if got, want := cfg.Budget(), 120*time.Millisecond; got != want {
		t.Fatalf("budget: want=%s got=%s", want, got)
	}
	if got := cfg.QueryTimeout(); got != 20*time.Millisecond {
		t.Fatalf("query timeout: want=20ms got=%s", got)
	}
}
