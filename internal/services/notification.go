package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/realtime"
	"github.com/yungbote/jobrelay/internal/registry"
)

const defaultFanoutConcurrency = 32

// BroadcastReport lists which subscribers got the payload, which were
// removed as gone and which failed transiently.
type BroadcastReport struct {
	Delivered []string
	Pruned    []string
	Failed    []string
	ListErr   error
}

func (r BroadcastReport) Total() int {
	return len(r.Delivered) + len(r.Pruned) + len(r.Failed)
}

type Fanout struct {
	log         *logger.Logger
	registry    registry.Registry
	transport   realtime.Transport
	concurrency int
}

func NewFanout(log *logger.Logger, reg registry.Registry, transport realtime.Transport, concurrency int) *Fanout {
	if concurrency <= 0 {
		concurrency = defaultFanoutConcurrency
	}
	return &Fanout{
		log:         log.With("service", "Fanout"),
		registry:    reg,
		transport:   transport,
		concurrency: concurrency,
	}
}

// Broadcast delivers payload to every registered subscriber and waits for all
// attempts. Gone subscribers are removed; other failures are logged and the
// subscriber is kept. It never fails the caller.
func (f *Fanout) Broadcast(ctx context.Context, payload []byte) BroadcastReport {
	ctx, span := observability.Tracer().Start(ctx, "fanout.broadcast")
	defer span.End()

	var report BroadcastReport
	subs, err := f.registry.List(ctx)
	if err != nil {
		f.log.Error("List subscribers failed; nothing delivered", "error", err)
		span.RecordError(err)
		report.ListErr = err
		return report
	}
	span.SetAttributes(attribute.Int("fanout.subscribers", len(subs)))

	var mu sync.Mutex
	record := func(list *[]string, id string) {
		mu.Lock()
		*list = append(*list, id)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			err := f.transport.Deliver(ctx, sub, payload)
			switch {
			case err == nil:
				record(&report.Delivered, sub.ConnectionID)
				observability.Current().IncDelivery("delivered")
			case errors.Is(err, realtime.ErrGone):
				if rmErr := f.registry.Remove(ctx, sub.ConnectionID); rmErr != nil {
					f.log.Warn("Remove gone subscriber failed", "connection_id", sub.ConnectionID, "error", rmErr)
				}
				record(&report.Pruned, sub.ConnectionID)
				observability.Current().IncDelivery("pruned")
			default:
				f.log.Warn("Delivery failed; keeping subscriber", "connection_id", sub.ConnectionID, "error", err)
				record(&report.Failed, sub.ConnectionID)
				observability.Current().IncDelivery("failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Delivered)
	sort.Strings(report.Pruned)
	sort.Strings(report.Failed)
	span.SetAttributes(
		attribute.Int("fanout.delivered", len(report.Delivered)),
		attribute.Int("fanout.pruned", len(report.Pruned)),
		attribute.Int("fanout.failed", len(report.Failed)),
	)
	f.log.Debug("Broadcast done",
		"delivered", len(report.Delivered),
		"pruned", len(report.Pruned),
		"failed", len(report.Failed),
	)
	return report
}
