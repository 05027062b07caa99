package completionwf

import (
	"context"
	"fmt"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// Activities bind the workflow to the same pipeline the in-process runner uses.
type Activities struct {
	Log      *logger.Logger
	Pipeline *completion.Pipeline
	Codec    *domain.RecordCodec
}

func (a *Activities) QueryStatus(ctx context.Context, jobID string) (Observation, error) {
	report := a.Pipeline.QueryStatus(ctx, jobID)
	if report == nil {
		return Observation{}, nil
	}
	return Observation{Answered: true, Status: string(report.Status), Outputs: report.Outputs}, nil
}

func (a *Activities) Finalize(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	rec, err := a.Codec.DecodeJSON(in.Record)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("decode record: %w", err)
	}
	var stored domain.JobRecord
	if in.Failed {
		stored, err = a.Pipeline.FinalizeFailure(ctx, rec)
	} else {
		stored, err = a.Pipeline.Finalize(ctx, rec, in.Outputs)
	}
	if err != nil {
		a.Log.Error("Finalize activity failed", "record_id", rec.ID, "job_id", rec.JobID, "error", err)
		return FinalizeResult{}, err
	}
	raw, err := a.Codec.EncodeJSON(stored)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("encode stored record: %w", err)
	}
	return FinalizeResult{Record: raw}, nil
}
