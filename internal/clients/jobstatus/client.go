package jobstatus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/apierr"
	"github.com/yungbote/jobrelay/internal/platform/breaker"
	"github.com/yungbote/jobrelay/internal/platform/httpx"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

const (
	defaultQueryParam = "jobId"
	defaultTimeout    = 10 * time.Second
	maxResponseBytes  = 1 << 20
)

type Config struct {
	URL        string         `yaml:"url"`
	QueryParam string         `yaml:"query_param"`
	Timeout    time.Duration  `yaml:"timeout"`
	Breaker    breaker.Config `yaml:"breaker"`
}

// Report is one observation of a job's progress.
type Report struct {
	ID      string
	Status  domain.JobStatus
	Outputs []string
}

// Querier is what the poll loop needs from the status service.
type Querier interface {
	Query(ctx context.Context, jobID string) *Report
}

type Client struct {
	log     *logger.Logger
	http    *http.Client
	base    *url.URL
	param   string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

func New(log *logger.Logger, httpClient *http.Client, cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, fmt.Errorf("job status url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid job status url %q", raw)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	param := strings.TrimSpace(cfg.QueryParam)
	if param == "" {
		param = defaultQueryParam
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		log:     log.With("client", "JobStatus"),
		http:    httpClient,
		base:    base,
		param:   param,
		timeout: timeout,
		cb:      breaker.New(log, "job_status", cfg.Breaker),
	}, nil
}

type wireReport struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
}

// Query returns nil on any failure: transport error, non-2xx, undecodable
// body, unknown status or an open breaker. The caller retries on its next
// attempt.
func (c *Client) Query(ctx context.Context, jobID string) *Report {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, jobID)
	})
	if err != nil {
		if breaker.IsOpen(err) {
			c.log.Warn("Job status breaker open; skipping query", "job_id", jobID)
		} else {
			c.log.Warn("Job status query failed", "job_id", jobID, "error", err)
		}
		return nil
	}
	wr := res.(*wireReport)

	status, err := domain.ParseJobStatus(wr.Status)
	if err != nil {
		c.log.Warn("Job status service returned unknown status", "job_id", jobID, "status", wr.Status)
		return nil
	}
	outputs, err := decodeOutput(wr.Output)
	if err != nil {
		c.log.Warn("Job status output undecodable", "job_id", jobID, "error", err)
		return nil
	}
	id := wr.ID
	if id == "" {
		id = jobID
	}
	return &Report{ID: id, Status: status, Outputs: outputs}
}

func (c *Client) fetch(ctx context.Context, jobID string) (*wireReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.base
	q := u.Query()
	q.Set(c.param, jobID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpx.DrainAndClose(resp)
	if !httpx.IsSuccess(resp.StatusCode) {
		return nil, apierr.New(resp.StatusCode, "job_status_http", fmt.Errorf("%s", httpx.Snippet(resp, 512)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	var wr wireReport
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &wr, nil
}

// decodeOutput accepts null, a single URL string or a list of URL strings.
func decodeOutput(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return []string{s}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			var s string
			if err := json.Unmarshal(it, &s); err != nil {
				return nil, fmt.Errorf("output entry is not a string: %s", it)
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported output shape: %.32s", raw)
	}
}
