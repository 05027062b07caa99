package completionwf

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// Scheduler starts one completion workflow per record/job. It satisfies
// completion.Scheduler.
type Scheduler struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
	codec     *domain.RecordCodec
	cfg       completion.Config
}

func NewScheduler(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string, codec *domain.RecordCodec, cfg completion.Config) *Scheduler {
	return &Scheduler{
		log:       log.With("component", "CompletionScheduler"),
		tc:        tc,
		taskQueue: taskQueue,
		codec:     codec,
		cfg:       cfg,
	}
}

func (s *Scheduler) Schedule(ctx context.Context, rec domain.JobRecord) error {
	raw, err := s.codec.EncodeJSON(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	id := WorkflowID(rec.ID, rec.JobID)
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                s.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	in := Input{
		RecordID:     rec.ID,
		JobID:        rec.JobID,
		Status:       string(rec.Status),
		Record:       raw,
		MaxAttempts:  s.cfg.MaxAttempts,
		PollInterval: pollInterval(s.cfg),
	}
	run, err := s.tc.ExecuteWorkflow(ctx, opts, WorkflowName, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			s.log.Debug("Completion workflow already exists", "workflow_id", id)
			return nil
		}
		return fmt.Errorf("start workflow %s: %w", id, err)
	}
	s.log.Debug("Completion workflow started", "workflow_id", id, "run_id", run.GetRunID())
	return nil
}
