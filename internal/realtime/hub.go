package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

const (
	defaultOutboundBuffer = 16
	heartbeatInterval     = 15 * time.Second
)

// SSEClient is one open event stream on this process.
type SSEClient struct {
	ID       string
	Outbound chan []byte
	done     chan struct{}
	once     sync.Once
}

// SSEHub tracks local SSE streams by connection id.
type SSEHub struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	clients map[string]*SSEClient
	buffer  int
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:  log.With("component", "SSEHub"),
		clients: make(map[string]*SSEClient),
		buffer:  defaultOutboundBuffer,
	}
}

// NewSSEClient registers a stream under a fresh connection id.
func (hub *SSEHub) NewSSEClient() *SSEClient {
	client := &SSEClient{
		ID:       uuid.New().String(),
		Outbound: make(chan []byte, hub.buffer),
		done:     make(chan struct{}),
	}
	hub.mu.Lock()
	hub.clients[client.ID] = client
	hub.mu.Unlock()
	hub.logger.Debug("SSE client connected", "connection_id", client.ID)
	return client
}

func (hub *SSEHub) Has(connectionID string) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	_, ok := hub.clients[connectionID]
	return ok
}

func (hub *SSEHub) Len() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// Send queues payload for one stream without blocking.
func (hub *SSEHub) Send(connectionID string, payload []byte) error {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	client, ok := hub.clients[connectionID]
	if !ok {
		return ErrUnknownClient
	}
	select {
	case <-client.done:
		return ErrUnknownClient
	default:
	}
	select {
	case client.Outbound <- payload:
		return nil
	default:
		hub.logger.Warn("Dropping SSE message; outbound buffer full", "connection_id", connectionID)
		return ErrBufferFull
	}
}

func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"connectionId\":%q}\n\n", client.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "connection_id", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case payload, ok := <-client.Outbound:
			if !ok {
				return
			}
			_, _ = fmt.Fprint(w, "event: message\n")
			for _, line := range strings.Split(string(payload), "\n") {
				_, _ = fmt.Fprintf(w, "data: %s\n", line)
			}
			_, _ = fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}

// CloseClient removes the stream. Safe to call more than once.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	client.once.Do(func() {
		hub.mu.Lock()
		delete(hub.clients, client.ID)
		close(client.done)
		close(client.Outbound)
		hub.mu.Unlock()
		hub.logger.Debug("SSE client disconnected", "connection_id", client.ID)
	})
}

// CloseAll ends every local stream.
func (hub *SSEHub) CloseAll() {
	hub.mu.RLock()
	clients := make([]*SSEClient, 0, len(hub.clients))
	for _, c := range hub.clients {
		clients = append(clients, c)
	}
	hub.mu.RUnlock()
	for _, c := range clients {
		hub.CloseClient(c)
	}
}

// SSETransport delivers to streams held by this process's hub.
type SSETransport struct {
	hub *SSEHub
}

func NewSSETransport(hub *SSEHub) *SSETransport {
	return &SSETransport{hub: hub}
}

func (t *SSETransport) Deliver(_ context.Context, sub domain.Subscriber, payload []byte) error {
	id := sseConnectionID(sub)
	err := t.hub.Send(id, payload)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownClient) && isSSEEndpoint(sub.Endpoint):
		return gone("sse", sub.ConnectionID, err)
	default:
		return transient("sse", sub.ConnectionID, err)
	}
}

// Only rows written for an SSE stream can be declared gone by the hub. A bare
// connection id may belong to another delivery channel.
func isSSEEndpoint(endpoint string) bool {
	return strings.HasPrefix(strings.TrimSpace(endpoint), SSEEndpointPrefix)
}

func sseConnectionID(sub domain.Subscriber) string {
	if id, ok := strings.CutPrefix(strings.TrimSpace(sub.Endpoint), SSEEndpointPrefix); ok && id != "" {
		return id
	}
	return sub.ConnectionID
}
