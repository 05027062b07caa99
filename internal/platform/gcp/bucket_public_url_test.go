package gcp

import "testing"

func TestPublicURLGCSDefault(t *testing.T) {
	b := &ArtifactBucket{cfg: BucketConfig{Name: "artifact-bucket", Mode: ObjectStorageModeGCS}}

	got := b.PublicURL("2026/10/16/a.png")
	want := "https://storage.googleapis.com/artifact-bucket/2026/10/16/a.png"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLUsesCDNDomain(t *testing.T) {
	b := &ArtifactBucket{cfg: BucketConfig{
		Name:      "artifact-bucket",
		Mode:      ObjectStorageModeGCS,
		CDNDomain: "cdn.example.com",
	}}

	got := b.PublicURL("2026/10/16/a.png")
	want := "https://cdn.example.com/2026/10/16/a.png"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLUsesPublicBaseURL(t *testing.T) {
	b := &ArtifactBucket{cfg: BucketConfig{
		Name:          "artifact-bucket",
		Mode:          ObjectStorageModeGCS,
		PublicBaseURL: "http://localhost:4443",
	}}

	got := b.PublicURL("/2026/10/16/a.png")
	want := "http://localhost:4443/artifact-bucket/2026/10/16/a.png"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLEmulatorMediaURL(t *testing.T) {
	b := &ArtifactBucket{cfg: BucketConfig{
		Name:         "artifact-bucket",
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	}}

	got := b.PublicURL("2026/10/16/a.png")
	want := "http://fake-gcs:4443/storage/v1/b/artifact-bucket/o/2026%2F10%2F16%2Fa.png?alt=media"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLEmulatorPrefersPublicBase(t *testing.T) {
	b := &ArtifactBucket{cfg: BucketConfig{
		Name:          "artifact-bucket",
		Mode:          ObjectStorageModeGCSEmulator,
		EmulatorHost:  "http://fake-gcs:4443",
		PublicBaseURL: "http://localhost:4443",
	}}

	got := b.PublicURL("a.png")
	want := "http://localhost:4443/storage/v1/b/artifact-bucket/o/a.png?alt=media"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}
