package realtime

import (
	"context"
	"strings"

	"github.com/yungbote/jobrelay/internal/domain"
)

// Transport pushes one payload to one subscriber. Implementations return an
// error wrapping ErrGone when the subscriber has disconnected for good.
type Transport interface {
	Deliver(ctx context.Context, sub domain.Subscriber, payload []byte) error
}

type TransportFunc func(ctx context.Context, sub domain.Subscriber, payload []byte) error

func (f TransportFunc) Deliver(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	return f(ctx, sub, payload)
}

const SSEEndpointPrefix = "sse:"

// SSEEndpoint is the registry endpoint recorded for a local SSE stream.
func SSEEndpoint(connectionID string) string {
	return SSEEndpointPrefix + connectionID
}

// Router picks a transport per subscriber from its endpoint:
// http(s) URLs go to the webhook transport and "sse:" endpoints to the SSE
// transport. Anything else goes to the fallback (API Gateway when configured);
// without one the delivery fails with ErrNoTransport and the row is kept.
type Router struct {
	Webhook  Transport
	SSE      Transport
	Fallback Transport
}

func (r *Router) Deliver(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	t := r.pick(sub)
	if t == nil {
		return transient("router", sub.ConnectionID, ErrNoTransport)
	}
	return t.Deliver(ctx, sub, payload)
}

func (r *Router) pick(sub domain.Subscriber) Transport {
	ep := strings.ToLower(strings.TrimSpace(sub.Endpoint))
	switch {
	case strings.HasPrefix(ep, "http://"), strings.HasPrefix(ep, "https://"):
		return r.Webhook
	case strings.HasPrefix(ep, SSEEndpointPrefix):
		return r.SSE
	default:
		return r.Fallback
	}
}
