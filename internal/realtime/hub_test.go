package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvPayload(t *testing.T, ch <-chan []byte, timeout time.Duration) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE payload")
	}
	return nil
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	clientA := hub.NewSSEClient()

	if err := hub.Send(clientA.ID, []byte(`{"seq":1}`)); err != nil {
		t.Fatalf("Send first: %v", err)
	}
	if err := hub.Send(clientA.ID, []byte(`{"seq":2}`)); err != nil {
		t.Fatalf("Send second: %v", err)
	}
	if got := string(recvPayload(t, clientA.Outbound, time.Second)); got != `{"seq":1}` {
		t.Fatalf("first payload: got=%s", got)
	}
	if got := string(recvPayload(t, clientA.Outbound, time.Second)); got != `{"seq":2}` {
		t.Fatalf("second payload: got=%s", got)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if err := hub.Send(clientA.ID, []byte(`{}`)); !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("Send after close: want ErrUnknownClient got %v", err)
	}

	clientB := hub.NewSSEClient()
	if clientB.ID == clientA.ID {
		t.Fatalf("reconnect should allocate a new connection id")
	}
	if err := hub.Send(clientB.ID, []byte(`{"seq":3}`)); err != nil {
		t.Fatalf("Send reconnect: %v", err)
	}
	if got := string(recvPayload(t, clientB.Outbound, time.Second)); got != `{"seq":3}` {
		t.Fatalf("reconnect payload: got=%s", got)
	}
}

func TestSSETransportClassifiesErrors(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	hub.buffer = 1
	client := hub.NewSSEClient()
	tr := NewSSETransport(hub)
	ctx := context.Background()

	sub := domain.Subscriber{ConnectionID: client.ID, Endpoint: SSEEndpoint(client.ID)}
	if err := tr.Deliver(ctx, sub, []byte(`{}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	err := tr.Deliver(ctx, sub, []byte(`{}`))
	if err == nil || errors.Is(err, ErrGone) {
		t.Fatalf("full buffer: want transient error got %v", err)
	}
	var de *DeliveryError
	if !errors.As(err, &de) || de.ConnectionID != client.ID {
		t.Fatalf("full buffer: want *DeliveryError for %s got %v", client.ID, err)
	}

	missing := domain.Subscriber{ConnectionID: "nope", Endpoint: SSEEndpoint("nope")}
	if err := tr.Deliver(ctx, missing, []byte(`{}`)); !errors.Is(err, ErrGone) {
		t.Fatalf("unknown client: want ErrGone got %v", err)
	}
	bare := domain.Subscriber{ConnectionID: "wsconn-A"}
	if err := tr.Deliver(ctx, bare, []byte(`{}`)); err == nil || errors.Is(err, ErrGone) {
		t.Fatalf("bare connection id: want transient error got %v", err)
	}
}

func TestSSEHubServeHTTPStreamsPayload(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req, client)
		close(done)
	}()

	if err := hub.Send(client.ID, []byte(`{"id":"n1"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(client.Outbound) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Fatalf("missing connected event: %q", body)
	}
	if !strings.Contains(body, "event: message\ndata: {\"id\":\"n1\"}\n\n") {
		t.Fatalf("missing message frame: %q", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type: want=text/event-stream got=%s", got)
	}
}

type memBus struct {
	published []Envelope
	onMsg     func(Envelope)
}

func (b *memBus) Publish(_ context.Context, env Envelope) error {
	b.published = append(b.published, env)
	if b.onMsg != nil {
		b.onMsg(env)
	}
	return nil
}

func (b *memBus) StartForwarder(_ context.Context, onMsg func(Envelope)) error {
	b.onMsg = onMsg
	return nil
}

func (b *memBus) Close() error { return nil }

func TestBusTransportForwardsToLocalHub(t *testing.T) {
	log := mustTestLogger(t)
	hub := NewSSEHub(log)
	client := hub.NewSSEClient()
	bus := &memBus{}
	if err := bus.StartForwarder(context.Background(), ForwardToHub(log, hub)); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	tr := NewBusTransport(bus)

	sub := domain.Subscriber{ConnectionID: client.ID, Endpoint: SSEEndpoint(client.ID)}
	if err := tr.Deliver(context.Background(), sub, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := string(recvPayload(t, client.Outbound, time.Second)); got != `{"ok":true}` {
		t.Fatalf("forwarded payload: got=%s", got)
	}

	other := domain.Subscriber{ConnectionID: "elsewhere", Endpoint: SSEEndpoint("elsewhere")}
	if err := tr.Deliver(context.Background(), other, []byte(`{}`)); err != nil {
		t.Fatalf("Deliver to remote stream: want nil got %v", err)
	}
	if len(bus.published) != 2 {
		t.Fatalf("published: want=2 got=%d", len(bus.published))
	}
}

func TestSSEHubCloseAll(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	a := hub.NewSSEClient()
	b := hub.NewSSEClient()

	hub.CloseAll()

	if n := hub.Len(); n != 0 {
		t.Fatalf("clients after CloseAll: want=0 got=%d", n)
	}
	for _, c := range []*SSEClient{a, b} {
		if _, ok := <-c.Outbound; ok {
			t.Fatalf("client %s outbound should be closed", c.ID)
		}
	}
}
