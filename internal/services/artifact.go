package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/httpx"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// ObjectStore is the durable blob backend (S3, GCS or memory).
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PublicURL(key string) string
}

const (
	defaultArtifactExt      = "jpg"
	defaultArtifactMaxBytes = 64 << 20
	maxArtifactExtLen       = 8
)

type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) HTTPStatusCode() int { return e.Status }

type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type MaterializerConfig struct {
	KeyPrefix    string        `yaml:"key_prefix"`
	MaxBytes     int64         `yaml:"max_bytes"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Materializer copies ephemeral job outputs into the ObjectStore and returns
// their permanent URLs.
type Materializer struct {
	log    *logger.Logger
	store  ObjectStore
	client *http.Client
	cfg    MaterializerConfig
	now    func() time.Time
	newID  func() string
}

func NewMaterializer(log *logger.Logger, store ObjectStore, client *http.Client, cfg MaterializerConfig) *Materializer {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultArtifactMaxBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	cfg.KeyPrefix = strings.Trim(strings.TrimSpace(cfg.KeyPrefix), "/")
	return &Materializer{
		log:    log.With("service", "Materializer"),
		store:  store,
		client: client,
		cfg:    cfg,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Materialize fetches sourceURL and stores it under a fresh date-partitioned key.
func (m *Materializer) Materialize(ctx context.Context, sourceURL string) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "artifact.materialize")
	defer span.End()

	body, err := m.fetch(ctx, sourceURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		observability.Current().IncArtifact("fetch_error")
		return "", err
	}

	ext := ExtensionFromURL(sourceURL)
	key := m.key(ext)
	span.SetAttributes(attribute.String("artifact.key", key), attribute.Int("artifact.bytes", len(body)))
	if err := m.store.Put(ctx, key, body, ContentTypeForExt(ext)); err != nil {
		serr := &StoreError{Key: key, Err: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, "store failed")
		observability.Current().IncArtifact("store_error")
		return "", serr
	}
	observability.Current().IncArtifact("stored")
	return m.store.PublicURL(key), nil
}

// MaterializeAll materializes every URL concurrently. Results keep input
// order; the first failure cancels the rest and no partial list is returned.
func (m *Materializer) MaterializeAll(ctx context.Context, urls []string) ([]string, error) {
	out := make([]string, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			durable, err := m.Materialize(gctx, u)
			if err != nil {
				return err
			}
			out[i] = durable
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Materializer) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	defer httpx.DrainAndClose(resp)
	if !httpx.IsSuccess(resp.StatusCode) {
		return nil, &FetchError{URL: sourceURL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, m.cfg.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	if int64(len(body)) > m.cfg.MaxBytes {
		return nil, &FetchError{URL: sourceURL, Err: fmt.Errorf("artifact exceeds %d bytes", m.cfg.MaxBytes)}
	}
	return body, nil
}

func (m *Materializer) key(ext string) string {
	day := m.now().UTC().Format("2006/01/02")
	name := m.newID() + "." + ext
	if m.cfg.KeyPrefix == "" {
		return day + "/" + name
	}
	return m.cfg.KeyPrefix + "/" + day + "/" + name
}

// ExtensionFromURL takes the extension from the URL path, ignoring query and
// fragment. Anything that does not look like a short alphanumeric extension
// falls back to jpg.
func ExtensionFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "" || len(ext) > maxArtifactExtLen {
		return defaultArtifactExt
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultArtifactExt
		}
	}
	return ext
}

func ContentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "pdf":
		return "application/pdf"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// MemoryObjectStore keeps artifacts in process. Used for local runs and tests.
type MemoryObjectStore struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]MemoryObject
}

type MemoryObject struct {
	Body        []byte
	ContentType string
}

func NewMemoryObjectStore(baseURL string) *MemoryObjectStore {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "memory://artifacts"
	}
	return &MemoryObjectStore{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string]MemoryObject{}}
}

func (s *MemoryObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = MemoryObject{Body: append([]byte(nil), body...), ContentType: contentType}
	return nil
}

func (s *MemoryObjectStore) PublicURL(key string) string {
	return s.BaseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *MemoryObjectStore) Get(key string) (MemoryObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

func (s *MemoryObjectStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
