package completion

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/jobrelay/internal/clients/jobstatus"
	"github.com/yungbote/jobrelay/internal/clients/recordapi"
	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/services"
)

const (
	DefaultMaxAttempts  = 20
	DefaultPollInterval = 3 * time.Second

	maxQuerySlack = time.Second
)

type Config struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"interval"`
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Budget is the wall-clock limit for the polling phase: every sleep plus one
// query's worth of slack. Finalize runs after it under its own timeouts.
func (c Config) Budget() time.Duration {
	c = c.withDefaults()
	slack := c.PollInterval
	if slack > maxQuerySlack {
		slack = maxQuerySlack
	}
	return time.Duration(c.MaxAttempts)*c.PollInterval + slack
}

// QueryTimeout caps one status query so a slow upstream can't stretch an
// attempt past the next tick.
func (c Config) QueryTimeout() time.Duration {
	return c.withDefaults().PollInterval
}

type Materializer interface {
	MaterializeAll(ctx context.Context, urls []string) ([]string, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) services.BroadcastReport
}

// Runner starts a detached task. worker.Runner satisfies it.
type Runner interface {
	Go(name string, fn func(ctx context.Context))
}

// Scheduler hands a record to an external durable executor instead of the
// in-process Runner.
type Scheduler interface {
	Schedule(ctx context.Context, rec domain.JobRecord) error
}

type Deps struct {
	Log          *logger.Logger
	Status       jobstatus.Querier
	Materializer Materializer
	Records      recordapi.Updater
	Fanout       Broadcaster
	Codec        *domain.RecordCodec
	Runner       Runner
}

type Pipeline struct {
	log       *logger.Logger
	status    jobstatus.Querier
	artifacts Materializer
	records   recordapi.Updater
	fanout    Broadcaster
	codec     *domain.RecordCodec
	runner    Runner
	scheduler Scheduler
	cfg       Config

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(deps Deps, cfg Config) *Pipeline {
	codec := deps.Codec
	if codec == nil {
		codec = domain.NewRecordCodec(domain.DefaultRecordFields())
	}
	return &Pipeline{
		log:       deps.Log.With("component", "CompletionPipeline"),
		status:    deps.Status,
		artifacts: deps.Materializer,
		records:   deps.Records,
		fanout:    deps.Fanout,
		codec:     codec,
		runner:    deps.Runner,
		cfg:       cfg.withDefaults(),
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// UseScheduler routes triggered records to s. Nil restores the in-process runner.
func (p *Pipeline) UseScheduler(s Scheduler) { p.scheduler = s }

func (p *Pipeline) Config() Config { return p.cfg }

// OnChangeEvent decides whether ev starts a poll loop and, if so, starts it
// without waiting. Failures are logged; the event source never sees them.
func (p *Pipeline) OnChangeEvent(ctx context.Context, ev domain.ChangeEvent) Decision {
	d := Decide(ev)
	if d != DecisionTrigger {
		p.log.Debug("Change event ignored", "decision", string(d), "kind", string(ev.Kind))
		return d
	}
	rec := *ev.New
	log := p.log.With("record_id", rec.ID, "job_id", rec.JobID)

	if p.scheduler != nil {
		if err := p.scheduler.Schedule(ctx, rec); err != nil {
			log.Error("Schedule poll failed", "error", err)
			return DecisionDropped
		}
		log.Info("Poll scheduled", "status", string(rec.Status))
		return d
	}
	if p.runner == nil {
		log.Error("No runner configured; event dropped")
		return DecisionDropped
	}
	log.Info("Poll started", "status", string(rec.Status))
	p.runner.Go("completion:"+rec.ID+":"+rec.JobID, func(ctx context.Context) {
		p.Poll(ctx, rec)
	})
	return d
}

// Poll runs the bounded status loop for rec and acts on the terminal report.
func (p *Pipeline) Poll(ctx context.Context, rec domain.JobRecord) Outcome {
	ctx, span := observability.Tracer().Start(ctx, "completion.poll", trace.WithAttributes(
		attribute.String("record.id", rec.ID),
		attribute.String("job.id", rec.JobID),
		attribute.Int("poll.max_attempts", p.cfg.MaxAttempts),
	))
	defer span.End()

	m := observability.Current()
	m.PollStarted()
	out := p.poll(ctx, span, rec)
	m.PollFinished(string(out.Kind), out.Attempts)

	span.SetAttributes(
		attribute.String("poll.outcome", string(out.Kind)),
		attribute.Int("poll.attempts", out.Attempts),
	)
	log := p.log.With("record_id", rec.ID, "job_id", rec.JobID, "outcome", string(out.Kind), "attempts", out.Attempts)
	switch out.Kind {
	case OutcomeSucceeded, OutcomeFailed:
		if out.Err != nil {
			span.RecordError(out.Err)
			log.Error("Poll finished with write-back error", "error", out.Err)
		} else {
			log.Info("Poll finished")
		}
	case OutcomeFinalizeFailed:
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "finalize failed")
		log.Error("Finalize failed; not retried", "error", out.Err)
	case OutcomeAbandoned:
		log.Warn("Poll abandoned", "last_status", string(out.Status))
	case OutcomeSucceededEmpty:
		log.Warn("Job succeeded without outputs; record left unchanged")
	default:
		log.Info("Poll finished")
	}
	return out
}

func (p *Pipeline) poll(ctx context.Context, span trace.Span, rec domain.JobRecord) Outcome {
	status := rec.Status
	if status.Terminal() {
		return Outcome{Kind: OutcomeSkipped, Status: status}
	}
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.Budget())
	defer cancel()

	start := p.now()
	attempt := 0
	for !status.Terminal() && attempt < p.cfg.MaxAttempts {
		if err := p.sleep(pollCtx, p.cfg.PollInterval); err != nil {
			break
		}
		attempt++
		report := p.query(pollCtx, rec.JobID)
		pa := domain.PollAttempt{Number: attempt, Elapsed: p.now().Sub(start), LastObserved: status}
		if report == nil {
			p.attemptEvent(span, rec, pa, false)
			continue
		}
		status = status.Advance(report.Status)
		pa.LastObserved = status
		p.attemptEvent(span, rec, pa, true)

		switch status {
		case domain.JobStatusSucceeded:
			if len(report.Outputs) == 0 {
				return Outcome{Kind: OutcomeSucceededEmpty, Attempts: attempt, Status: status}
			}
			stored, err := p.Finalize(ctx, rec, report.Outputs)
			if err != nil {
				return Outcome{Kind: OutcomeFinalizeFailed, Attempts: attempt, Status: status, Err: err}
			}
			return Outcome{Kind: OutcomeSucceeded, Attempts: attempt, Status: status, Record: &stored}
		case domain.JobStatusFailed:
			stored, err := p.FinalizeFailure(ctx, rec)
			out := Outcome{Kind: OutcomeFailed, Attempts: attempt, Status: status, Err: err}
			if err == nil {
				out.Record = &stored
			}
			return out
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Kind: OutcomeCanceled, Attempts: attempt, Status: status, Err: err}
	}
	return Outcome{Kind: OutcomeAbandoned, Attempts: attempt, Status: status, Err: ErrAbandoned}
}

func (p *Pipeline) query(ctx context.Context, jobID string) *jobstatus.Report {
	qctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout())
	defer cancel()
	return p.status.Query(qctx, jobID)
}

func (p *Pipeline) attemptEvent(span trace.Span, rec domain.JobRecord, pa domain.PollAttempt, answered bool) {
	span.AddEvent("poll.attempt", trace.WithAttributes(
		attribute.Int("attempt", pa.Number),
		attribute.String("status", string(pa.LastObserved)),
		attribute.Bool("answered", answered),
	))
	p.log.Debug("Poll attempt",
		"record_id", rec.ID,
		"job_id", rec.JobID,
		"attempt", pa.Number,
		"elapsed_ms", pa.Elapsed.Milliseconds(),
		"status", string(pa.LastObserved),
		"answered", answered,
	)
}

// QueryStatus is one status observation. Nil means no answer this attempt.
func (p *Pipeline) QueryStatus(ctx context.Context, jobID string) *jobstatus.Report {
	return p.status.Query(ctx, jobID)
}

// Finalize materializes outputs, writes the succeeded record and broadcasts
// what the record API stored. Nothing is written if materialization fails.
func (p *Pipeline) Finalize(ctx context.Context, rec domain.JobRecord, outputs []string) (domain.JobRecord, error) {
	ctx, span := observability.Tracer().Start(ctx, "completion.finalize", trace.WithAttributes(
		attribute.String("record.id", rec.ID),
		attribute.Int("outputs", len(outputs)),
	))
	defer span.End()

	durable, err := p.artifacts.MaterializeAll(ctx, outputs)
	if err != nil {
		merr := &MaterializationError{RecordID: rec.ID, JobID: rec.JobID, Err: err}
		span.RecordError(merr)
		span.SetStatus(codes.Error, "materialize failed")
		return domain.JobRecord{}, merr
	}
	stored, err := p.write(ctx, span, rec.WithOutputs(durable))
	if err != nil {
		return domain.JobRecord{}, err
	}
	p.broadcast(ctx, stored)
	return stored, nil
}

// FinalizeFailure writes the failed record and broadcasts it.
func (p *Pipeline) FinalizeFailure(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	ctx, span := observability.Tracer().Start(ctx, "completion.finalize_failure", trace.WithAttributes(
		attribute.String("record.id", rec.ID),
	))
	defer span.End()

	stored, err := p.write(ctx, span, rec.WithFailure())
	if err != nil {
		return domain.JobRecord{}, err
	}
	p.broadcast(ctx, stored)
	return stored, nil
}

func (p *Pipeline) write(ctx context.Context, span trace.Span, rec domain.JobRecord) (domain.JobRecord, error) {
	stored, err := p.records.Update(ctx, rec)
	if err != nil {
		uerr := &UpdateError{RecordID: rec.ID, Err: err}
		span.RecordError(uerr)
		span.SetStatus(codes.Error, "record update failed")
		return domain.JobRecord{}, uerr
	}
	return stored, nil
}

func (p *Pipeline) broadcast(ctx context.Context, rec domain.JobRecord) {
	payload, err := p.codec.EncodeJSON(rec)
	if err != nil {
		p.log.Error("Encode broadcast payload failed", "record_id", rec.ID, "error", err)
		return
	}
	report := p.fanout.Broadcast(ctx, payload)
	p.log.Info("Record broadcast",
		"record_id", rec.ID,
		"delivered", len(report.Delivered),
		"pruned", len(report.Pruned),
		"failed", len(report.Failed),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
