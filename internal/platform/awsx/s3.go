package awsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// S3Store writes artifacts into a single bucket.
type S3Store struct {
	log           *logger.Logger
	client        s3iface.S3API
	bucket        string
	publicBaseURL string
	putTimeout    time.Duration
}

func NewS3Store(log *logger.Logger, client s3iface.S3API, bucket, publicBaseURL string) (*S3Store, error) {
	bucket = strings.TrimSpace(bucket)
	if client == nil {
		return nil, fmt.Errorf("s3 client required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("missing artifact bucket")
	}
	return &S3Store{
		log:           log.With("service", "S3Store", "bucket", bucket),
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		putTimeout:    2 * time.Minute,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.putTimeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObjectWithContext(ctx, in); err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	s.log.Debug("Stored artifact", "key", key, "bytes", len(body))
	return nil
}

func (s *S3Store) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.publicBaseURL, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}
