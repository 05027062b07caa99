package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// Envelope carries one SSE delivery between relay replicas.
type Envelope struct {
	ConnectionID string          `json:"connectionId"`
	Payload      json.RawMessage `json:"payload"`
}

// Bus fans SSE deliveries out to every replica; the one holding the stream writes it.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	StartForwarder(ctx context.Context, onMsg func(env Envelope)) error
	Close() error
}

// BusTransport publishes SSE deliveries on a Bus. A replica cannot tell
// whether another replica holds the stream, so it never reports ErrGone;
// streams remove themselves from the registry on disconnect.
type BusTransport struct {
	bus Bus
}

func NewBusTransport(bus Bus) *BusTransport {
	return &BusTransport{bus: bus}
}

func (t *BusTransport) Deliver(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	env := Envelope{ConnectionID: sseConnectionID(sub), Payload: json.RawMessage(payload)}
	if err := t.bus.Publish(ctx, env); err != nil {
		return transient("sse_bus", sub.ConnectionID, err)
	}
	return nil
}

// ForwardToHub is the Bus callback that hands envelopes to local streams.
func ForwardToHub(log *logger.Logger, hub *SSEHub) func(env Envelope) {
	log = log.With("component", "SSEBusForwarder")
	return func(env Envelope) {
		err := hub.Send(env.ConnectionID, env.Payload)
		if err != nil && !errors.Is(err, ErrUnknownClient) {
			log.Warn("SSE forward failed", "connection_id", env.ConnectionID, "error", err)
		}
	}
}
