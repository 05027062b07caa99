package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/jobrelay/internal/platform/logger"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := clampBackoff(250*time.Millisecond, 5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: want=%s got=%s", tc.attempt, tc.want, got)
		}
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("unavailable should retry")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatalf("permission denied should not retry")
	}
	if !isRetryableRPC(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded should retry")
	}
	if isRetryableRPC(errors.New("plain")) || isRetryableRPC(nil) {
		t.Fatalf("plain/nil errors should not retry")
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(context.Background(), logger.Nop(), Config{})
	if err != nil || c != nil {
		t.Fatalf("disabled: want=nil,nil got=%v,%v", c, err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: " temporal:7233 ", RetentionDays: 900}.WithDefaults()
	if !cfg.Enabled() || cfg.Address != "temporal:7233" {
		t.Fatalf("address: got=%q", cfg.Address)
	}
	if cfg.Namespace != "jobrelay" || cfg.TaskQueue != "jobrelay" {
		t.Fatalf("namespace/queue: got=%s/%s", cfg.Namespace, cfg.TaskQueue)
	}
	if cfg.RetentionDays != 365 || cfg.WorkerConcurrency != 4 {
		t.Fatalf("retention/concurrency: got=%d/%d", cfg.RetentionDays, cfg.WorkerConcurrency)
	}
}
