package completionwf

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
)

// Workflow is the durable form of the in-process poll loop. Same budget,
// same status rules, same write-back order.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	log := workflow.GetLogger(ctx)

	cfg := completion.Config{MaxAttempts: in.MaxAttempts, PollInterval: in.PollInterval}
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = completion.DefaultMaxAttempts
	}
	interval := pollInterval(cfg)
	deadline := workflow.Now(ctx).Add(cfg.Budget())

	// A successful upstream report is acted on once.
	finalizeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: defaultFinalizeTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	status := domain.JobStatus(in.Status)
	attempt := 0
	for !status.Terminal() && attempt < maxAttempts {
		if err := workflow.Sleep(ctx, interval); err != nil {
			return result(completion.OutcomeCanceled, attempt, status, nil, err), nil
		}
		remaining := deadline.Sub(workflow.Now(ctx))
		if remaining <= 0 {
			break
		}
		attempt++

		queryTimeout := cfg.QueryTimeout()
		if remaining < queryTimeout {
			queryTimeout = remaining
		}
		queryCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: queryTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})

		var obs Observation
		if err := workflow.ExecuteActivity(queryCtx, ActivityQueryStatus, in.JobID).Get(ctx, &obs); err != nil {
			log.Warn("Status query activity failed", "attempt", attempt, "error", err)
			continue
		}
		if !obs.Answered {
			continue
		}
		status = status.Advance(domain.JobStatus(obs.Status))

		switch status {
		case domain.JobStatusSucceeded:
			if len(obs.Outputs) == 0 {
				return result(completion.OutcomeSucceededEmpty, attempt, status, nil, nil), nil
			}
			var fin FinalizeResult
			err := workflow.ExecuteActivity(finalizeCtx, ActivityFinalize, FinalizeInput{Record: in.Record, Outputs: obs.Outputs}).Get(ctx, &fin)
			if err != nil {
				return result(completion.OutcomeFinalizeFailed, attempt, status, nil, err), nil
			}
			return result(completion.OutcomeSucceeded, attempt, status, fin.Record, nil), nil
		case domain.JobStatusFailed:
			var fin FinalizeResult
			err := workflow.ExecuteActivity(finalizeCtx, ActivityFinalize, FinalizeInput{Record: in.Record, Failed: true}).Get(ctx, &fin)
			return result(completion.OutcomeFailed, attempt, status, fin.Record, err), nil
		}
	}
	log.Warn("Poll abandoned", "record_id", in.RecordID, "job_id", in.JobID, "attempts", attempt)
	return result(completion.OutcomeAbandoned, attempt, status, nil, completion.ErrAbandoned), nil
}

func result(kind completion.OutcomeKind, attempts int, status domain.JobStatus, rec []byte, err error) Result {
	r := Result{Outcome: string(kind), Attempts: attempts, Status: string(status), Record: rec}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// pollInterval resolves the interval the way Workflow does.
func pollInterval(cfg completion.Config) time.Duration {
	if cfg.PollInterval <= 0 {
		return completion.DefaultPollInterval
	}
	return cfg.PollInterval
}
