package app

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/yungbote/jobrelay/internal/platform/awsx"
	"github.com/yungbote/jobrelay/internal/platform/gcp"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/services"
)

type fakeS3 struct {
	s3iface.S3API
}

func TestClassifyStorageProviderBootstrapErrorGCSCodes(t *testing.T) {
	cases := []struct {
		src  gcp.ObjectStorageConfigErrorCode
		want StorageProviderBootstrapErrorCode
	}{
		{gcp.ObjectStorageConfigErrorMissingBucket, StorageProviderBootstrapErrorMissingBucket},
		{gcp.ObjectStorageConfigErrorInvalidMode, StorageProviderBootstrapErrorInvalidMode},
		{gcp.ObjectStorageConfigErrorMissingEmulatorHost, StorageProviderBootstrapErrorMissingEmulatorHost},
		{gcp.ObjectStorageConfigErrorInvalidEmulatorHost, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{gcp.ObjectStorageConfigErrorInvalidPublicBase, StorageProviderBootstrapErrorInvalidPublicBase},
	}
	for _, tc := range cases {
		src := &gcp.ObjectStorageConfigError{Code: tc.src}
		err := classifyStorageProviderBootstrapError(ArtifactBackendGCS, "b", src)

		var got *StorageProviderBootstrapError
		if !errors.As(err, &got) {
			t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
		}
		if got.Code != tc.want {
			t.Fatalf("code for %s: want=%q got=%q", tc.src, tc.want, got.Code)
		}
	}
}

func TestClassifyStorageProviderBootstrapErrorConnectFailed(t *testing.T) {
	err := classifyStorageProviderBootstrapError(ArtifactBackendGCS, "b", errors.New("dial tcp: connection refused"))
	if code := storageProviderBootstrapErrorCode(err); code != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorConnectFailed, code)
	}
}

func TestResolveArtifactStoreInvalidBackend(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	_, err = resolveArtifactStore(context.Background(), log, ArtifactConfig{Backend: "ftp"}, nil)
	if code := storageProviderBootstrapErrorCode(err); code != StorageProviderBootstrapErrorInvalidBackend {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidBackend, code)
	}
}

func TestResolveArtifactStoreS3(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	store, err := resolveArtifactStore(context.Background(), log, ArtifactConfig{
		Backend: ArtifactBackendS3,
		Bucket:  "relay-artifacts",
	}, &fakeS3{})
	if err != nil {
		t.Fatalf("resolveArtifactStore: %v", err)
	}
	if _, ok := store.(*awsx.S3Store); !ok {
		t.Fatalf("store: want *awsx.S3Store got=%T", store)
	}
}

func TestResolveArtifactStoreS3MissingBucket(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	_, err = resolveArtifactStore(context.Background(), log, ArtifactConfig{Backend: ArtifactBackendS3}, &fakeS3{})
	if code := storageProviderBootstrapErrorCode(err); code != StorageProviderBootstrapErrorMissingBucket {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorMissingBucket, code)
	}
}

func TestResolveArtifactStoreGCSEmulatorMode(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	orig := newGCSStore
	t.Cleanup(func() {
		newGCSStore = orig
	})

	var captured gcp.BucketConfig
	expected := services.NewMemoryObjectStore("http://fake-gcs:4443")
	newGCSStore = func(_ context.Context, _ *logger.Logger, cfg gcp.BucketConfig) (services.ObjectStore, error) {
		captured = cfg
		return expected, nil
	}

	got, err := resolveArtifactStore(context.Background(), log, ArtifactConfig{
		Backend:         ArtifactBackendGCS,
		Bucket:          "relay-artifacts",
		GCSMode:         string(gcp.ObjectStorageModeGCSEmulator),
		GCSEmulatorHost: "http://fake-gcs:4443",
	}, nil)
	if err != nil {
		t.Fatalf("resolveArtifactStore: %v", err)
	}
	if got != services.ObjectStore(expected) {
		t.Fatalf("store: expected stub store instance")
	}
	if captured.Mode != gcp.ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", gcp.ObjectStorageModeGCSEmulator, captured.Mode)
	}
	if captured.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: want=%q got=%q", "http://fake-gcs:4443", captured.EmulatorHost)
	}
}

func TestResolveArtifactStoreGCSInvalidEmulatorHost(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	_, err = resolveArtifactStore(context.Background(), log, ArtifactConfig{
		Backend:         ArtifactBackendGCS,
		Bucket:          "relay-artifacts",
		GCSMode:         string(gcp.ObjectStorageModeGCSEmulator),
		GCSEmulatorHost: "not-a-url",
	}, nil)
	if code := storageProviderBootstrapErrorCode(err); code != StorageProviderBootstrapErrorInvalidEmulatorHost {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidEmulatorHost, code)
	}
}

func TestResolveArtifactStoreMemory(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	store, err := resolveArtifactStore(context.Background(), log, ArtifactConfig{
		Backend:       ArtifactBackendMemory,
		PublicBaseURL: "http://local/artifacts",
	}, nil)
	if err != nil {
		t.Fatalf("resolveArtifactStore: %v", err)
	}
	if got := store.PublicURL("2024/01/02/x.png"); got != "http://local/artifacts/2024/01/02/x.png" {
		t.Fatalf("public url: got=%q", got)
	}
}
