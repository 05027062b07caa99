package awsx

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Config selects region and credentials. Empty keys fall back to the default
// provider chain (env, shared config, instance role).
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func NewSession(cfg Config) (*session.Session, error) {
	awsCfg := aws.NewConfig()
	if r := strings.TrimSpace(cfg.Region); r != "" {
		awsCfg = awsCfg.WithRegion(r)
	}
	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		// Local stacks (localstack, minio) need path-style addressing.
		awsCfg = awsCfg.WithEndpoint(ep).WithS3ForcePathStyle(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return sess, nil
}
