package realtime

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/apierr"
	"github.com/yungbote/jobrelay/internal/platform/httpx"
)

// WebhookTransport POSTs the payload to the subscriber's endpoint URL.
// 404 and 410 mean the subscriber is gone.
type WebhookTransport struct {
	client  *http.Client
	timeout time.Duration
}

func NewWebhookTransport(client *http.Client, timeout time.Duration) *WebhookTransport {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransport{client: client, timeout: timeout}
}

func (t *WebhookTransport) Deliver(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return transient("webhook", sub.ConnectionID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Connection-Id", sub.ConnectionID)

	resp, err := t.client.Do(req)
	if err != nil {
		return transient("webhook", sub.ConnectionID, err)
	}
	defer httpx.DrainAndClose(resp)

	switch {
	case httpx.IsSuccess(resp.StatusCode):
		return nil
	case httpx.IsGoneHTTPStatus(resp.StatusCode):
		return gone("webhook", sub.ConnectionID, apierr.New(resp.StatusCode, "", fmt.Errorf("endpoint gone")))
	default:
		return transient("webhook", sub.ConnectionID, apierr.New(resp.StatusCode, "", fmt.Errorf("webhook rejected: %s", httpx.Snippet(resp, 512))))
	}
}
