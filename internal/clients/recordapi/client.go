package recordapi

import (
	"bytes"
	"context"
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
	DefaultPathTemplate = "{parentId}/{id}"
	defaultTimeout      = 15 * time.Second
	maxResponseBytes    = 4 << 20
	responseEnvelopeKey = "data"
)

type Config struct {
	BaseURL      string         `yaml:"base_url"`
	PathTemplate string         `yaml:"path_template"`
	Timeout      time.Duration  `yaml:"timeout"`
	Headers      []string       `yaml:"headers"`
	Breaker      breaker.Config `yaml:"breaker"`
}

// Updater persists a record through the owning CRUD API.
type Updater interface {
	Update(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error)
}

type Client struct {
	log      *logger.Logger
	http     *http.Client
	base     string
	template string
	timeout  time.Duration
	headers  http.Header
	codec    *domain.RecordCodec
	cb       *gobreaker.CircuitBreaker
}

func New(log *logger.Logger, httpClient *http.Client, codec *domain.RecordCodec, cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if base == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid record api base url %q", cfg.BaseURL)
	}
	tmpl := strings.Trim(strings.TrimSpace(cfg.PathTemplate), "/")
	if tmpl == "" {
		tmpl = DefaultPathTemplate
	}
	if !strings.Contains(tmpl, "{id}") {
		return nil, fmt.Errorf("record path template %q must contain {id}", tmpl)
	}
	headers, err := parseHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		log:      log.With("client", "RecordAPI"),
		http:     httpClient,
		base:     base,
		template: tmpl,
		timeout:  timeout,
		headers:  headers,
		codec:    codec,
		cb:       breaker.New(log, "record_api", cfg.Breaker),
	}, nil
}

// URLFor renders the record's resource URL.
func (c *Client) URLFor(rec domain.JobRecord) string {
	path := strings.NewReplacer(
		"{parentId}", url.PathEscape(rec.ParentID),
		"{id}", url.PathEscape(rec.ID),
		"{jobId}", url.PathEscape(rec.JobID),
	).Replace(c.template)
	return c.base + "/" + path
}

// Update PUTs the full record and returns what the API stored. An empty 2xx
// body means the API stored exactly what was sent.
func (c *Client) Update(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	body, err := c.codec.EncodeJSON(rec)
	if err != nil {
		return domain.JobRecord{}, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.put(ctx, c.URLFor(rec), body)
	})
	if err != nil {
		return domain.JobRecord{}, fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	respBody := res.([]byte)
	if len(bytes.TrimSpace(respBody)) == 0 {
		return rec, nil
	}
	stored, err := c.decodeStored(respBody)
	if err != nil {
		c.log.Warn("Record API returned an undecodable body; using the sent record", "record_id", rec.ID, "error", err)
		return rec, nil
	}
	return stored, nil
}

// decodeStored accepts the bare record or the {"data": record} envelope the
// record API wraps its responses in.
func (c *Client) decodeStored(raw []byte) (domain.JobRecord, error) {
	obj, err := domain.DecodeObject(raw)
	if err != nil {
		return domain.JobRecord{}, err
	}
	if _, bare := obj[c.codec.Fields().ID]; !bare {
		if inner, ok := obj[responseEnvelopeKey].(map[string]any); ok {
			obj = inner
		}
	}
	return c.codec.Decode(obj)
}

func (c *Client) put(ctx context.Context, target string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpx.DrainAndClose(resp)
	if !httpx.IsSuccess(resp.StatusCode) {
		return nil, apierr.New(resp.StatusCode, "record_update_http", fmt.Errorf("%s", httpx.Snippet(resp, 512)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// parseHeaders reads "Name: value" entries.
func parseHeaders(raw []string) (http.Header, error) {
	h := http.Header{}
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid record api header %q", entry)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}
