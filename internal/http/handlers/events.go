package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/http/response"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/awsx"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

const defaultMaxEventBytes = 1 << 20

// Dispatcher receives decoded change events. completion.Pipeline satisfies it.
type Dispatcher interface {
	OnChangeEvent(ctx context.Context, ev domain.ChangeEvent) completion.Decision
}

type EventHandlerDeps struct {
	Log      *logger.Logger
	Codec    *domain.RecordCodec
	Dispatch Dispatcher
	MaxBytes int64
}

type EventHandler struct {
	log      *logger.Logger
	codec    *domain.RecordCodec
	dispatch Dispatcher
	maxBytes int64
}

func NewEventHandler(deps EventHandlerDeps) *EventHandler {
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxEventBytes
	}
	return &EventHandler{
		log:      deps.Log.With("handler", "EventHandler"),
		codec:    deps.Codec,
		dispatch: deps.Dispatch,
		maxBytes: maxBytes,
	}
}

type ingestResponse struct {
	Accepted  int      `json:"accepted"`
	Triggered int      `json:"triggered"`
	Rejected  int      `json:"rejected,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

// Ingest accepts a native change event or a DynamoDB Streams batch. Every
// decodable event is dispatched on its own; the poll loops run after the
// response is sent.
func (h *EventHandler) Ingest(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "read_body", err)
		return
	}
	if int64(len(raw)) > h.maxBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "body_too_large", errBodyTooLarge)
		return
	}

	source := "http"
	var events []domain.ChangeEvent
	var decodeErrs []error
	if awsx.LooksLikeStreamBatch(raw) {
		source = "dynamodb_stream"
		batch, err := awsx.DecodeStreamBatch(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_event", err)
			return
		}
		events, decodeErrs = batch.ChangeEvents(h.codec)
		if len(events) == 0 && len(decodeErrs) > 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_event", decodeErrs[0])
			return
		}
	} else {
		ev, err := h.codec.DecodeChangeEvent(raw)
		if err != nil {
			observability.Current().IncChangeEvent(source, "malformed")
			response.RespondError(c, http.StatusBadRequest, "invalid_event", err)
			return
		}
		events = []domain.ChangeEvent{ev}
	}

	resp := ingestResponse{Accepted: len(events), Rejected: len(decodeErrs)}
	for _, err := range decodeErrs {
		observability.Current().IncChangeEvent(source, "malformed")
		h.log.Warn("Stream record skipped", "error", err)
		resp.Errors = append(resp.Errors, err.Error())
	}
	for _, ev := range events {
		d := h.dispatch.OnChangeEvent(c.Request.Context(), ev)
		observability.Current().IncChangeEvent(source, string(d))
		if d == completion.DecisionTrigger {
			resp.Triggered++
		}
	}
	h.log.Debug("Change events ingested", "source", source, "accepted", resp.Accepted, "triggered", resp.Triggered, "rejected", resp.Rejected)
	response.RespondAccepted(c, resp)
}
