package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// ArtifactBucket writes generated artifacts into a GCS bucket (or the fake-gcs emulator).
type ArtifactBucket struct {
	log           *logger.Logger
	storageClient *storage.Client
	cfg           BucketConfig
}

func NewArtifactBucket(ctx context.Context, log *logger.Logger, cfg BucketConfig) (*ArtifactBucket, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "ArtifactBucket")

	stClient, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Mode,
		"emulator_host", cfg.EmulatorHost,
		"public_base_url", cfg.PublicBaseURL,
		"bucket", cfg.Name,
	)
	return &ArtifactBucket{log: serviceLog, storageClient: stClient, cfg: cfg}, nil
}

func newStorageClientForMode(ctx context.Context, cfg BucketConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		// The client library only honours the emulator through this variable.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
}

func (b *ArtifactBucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.storageClient.Bucket(b.cfg.Name).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	b.log.Debug("Stored artifact", "key", key, "bytes", len(body))
	return nil
}

func (b *ArtifactBucket) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", b.cfg.CDNDomain, key)
	}
	if b.cfg.IsEmulatorMode() {
		if u := b.emulatorObjectMediaURL(key); u != "" {
			return u
		}
	}
	if b.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", b.cfg.PublicBaseURL, b.cfg.Name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.cfg.Name, key)
}

func (b *ArtifactBucket) emulatorObjectMediaURL(key string) string {
	base := b.cfg.PublicBaseURL
	if base == "" {
		base = b.cfg.EmulatorHost
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		base,
		url.PathEscape(b.cfg.Name),
		url.PathEscape(key),
	)
}

func (b *ArtifactBucket) Close() error {
	if b == nil || b.storageClient == nil {
		return nil
	}
	return b.storageClient.Close()
}
