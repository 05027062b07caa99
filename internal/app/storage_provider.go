package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/yungbote/jobrelay/internal/platform/awsx"
	"github.com/yungbote/jobrelay/internal/platform/gcp"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/services"
)

var newGCSStore = func(ctx context.Context, log *logger.Logger, cfg gcp.BucketConfig) (services.ObjectStore, error) {
	b, err := gcp.NewArtifactBucket(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidBackend      StorageProviderBootstrapErrorCode = "invalid_backend"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorInvalidPublicBase   StorageProviderBootstrapErrorCode = "invalid_public_base_url"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code    StorageProviderBootstrapErrorCode
	Backend string
	Bucket  string
	Cause   error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "artifact storage bootstrap failed"
	}
	return fmt.Sprintf(
		"artifact storage bootstrap failed (code=%s backend=%q bucket=%q): %v",
		e.Code,
		e.Backend,
		e.Bucket,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveArtifactStore builds the ObjectStore named by cfg.Backend. s3api is
// only consulted for the s3 backend.
func resolveArtifactStore(ctx context.Context, log *logger.Logger, cfg ArtifactConfig, s3api s3iface.S3API) (services.ObjectStore, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	log.Info("Selecting artifact storage provider", "backend", backend, "bucket", cfg.Bucket)

	var (
		store services.ObjectStore
		err   error
	)
	switch backend {
	case ArtifactBackendS3:
		var s3store *awsx.S3Store
		s3store, err = awsx.NewS3Store(log, s3api, cfg.Bucket, cfg.PublicBaseURL)
		if err == nil {
			store = s3store
		}
	case ArtifactBackendGCS:
		store, err = newGCSStore(ctx, log, cfg.bucket())
	case ArtifactBackendMemory:
		store = services.NewMemoryObjectStore(cfg.PublicBaseURL)
	default:
		err = &StorageProviderBootstrapError{
			Code:    StorageProviderBootstrapErrorInvalidBackend,
			Backend: backend,
			Bucket:  cfg.Bucket,
			Cause:   fmt.Errorf("unsupported artifact backend %q", backend),
		}
	}
	if err != nil {
		classified := classifyStorageProviderBootstrapError(backend, cfg.Bucket, err)
		log.Error(
			"Artifact storage bootstrap failed",
			"backend", backend,
			"bucket", cfg.Bucket,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(backend, bucket string, err error) error {
	var already *StorageProviderBootstrapError
	if errors.As(err, &already) {
		return err
	}
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	switch {
	case errors.As(err, &cfgErr):
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorMissingBucket:
			code = StorageProviderBootstrapErrorMissingBucket
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidPublicBase:
			code = StorageProviderBootstrapErrorInvalidPublicBase
		}
	case strings.TrimSpace(bucket) == "" && backend != ArtifactBackendMemory:
		code = StorageProviderBootstrapErrorMissingBucket
	}
	return &StorageProviderBootstrapError{
		Code:    code,
		Backend: backend,
		Bucket:  bucket,
		Cause:   err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
