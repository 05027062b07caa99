package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	goredis "github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/jobrelay/internal/clients/kafka"
	"github.com/yungbote/jobrelay/internal/clients/redis"
	"github.com/yungbote/jobrelay/internal/data/db"
	"github.com/yungbote/jobrelay/internal/platform/awsx"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/realtime"
	"github.com/yungbote/jobrelay/internal/registry"
	"github.com/yungbote/jobrelay/internal/services"
	"github.com/yungbote/jobrelay/internal/temporalx"
)

// Clients holds every outbound connection. Fields are nil when the matching
// backend is not configured.
type Clients struct {
	HTTP *http.Client

	AWS      *session.Session
	S3       s3iface.S3API
	DynamoDB dynamodbiface.DynamoDBAPI
	APIGW    apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	Redis  *goredis.Client
	SSEBus realtime.Bus
	DB     *gorm.DB

	Kafka    *kafkago.Reader
	Temporal temporalsdkclient.Client

	Artifacts services.ObjectStore
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	c := Clients{
		HTTP: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	fail := func(err error) (Clients, error) {
		c.Close()
		return Clients{}, err
	}
	backend, _ := registry.ParseBackend(cfg.Registry.Backend)

	// AWS
	if needsAWS(cfg, backend) {
		sess, err := awsx.NewSession(cfg.AWS)
		if err != nil {
			return fail(fmt.Errorf("init aws session: %w", err))
		}
		c.AWS = sess
		if cfg.Artifact.Backend == ArtifactBackendS3 {
			c.S3 = awsx.NewS3(sess)
		}
		if backend == registry.BackendDynamoDB {
			c.DynamoDB = awsx.NewDynamoDB(sess)
		}
		if cfg.Notify.APIGWEndpoint != "" {
			api, err := awsx.NewAPIGatewayManagement(sess, cfg.Notify.APIGWEndpoint)
			if err != nil {
				return fail(fmt.Errorf("init api gateway client: %w", err))
			}
			c.APIGW = api
		}
	}

	// Redis
	if backend == registry.BackendRedis || cfg.Notify.SSEBus {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("init redis: %w", err))
		}
		c.Redis = rdb
		if cfg.Notify.SSEBus {
			bus, err := redis.NewSSEBus(log, rdb, cfg.Redis.Channel)
			if err != nil {
				return fail(fmt.Errorf("init redis SSE bus: %w", err))
			}
			c.SSEBus = bus
		}
	}

	// SQL
	if backend == registry.BackendPostgres || backend == registry.BackendSQLite {
		theDB, err := db.Open(log, db.Config{Driver: string(backend), DSN: cfg.Database.DSN})
		if err != nil {
			return fail(fmt.Errorf("init database: %w", err))
		}
		c.DB = theDB
	}

	// Artifacts
	store, err := resolveArtifactStore(ctx, log, cfg.Artifact, c.S3)
	if err != nil {
		return fail(err)
	}
	c.Artifacts = store

	// Kafka
	if cfg.Kafka.Enabled() {
		reader, err := kafka.NewReader(cfg.Kafka)
		if err != nil {
			return fail(fmt.Errorf("init kafka reader: %w", err))
		}
		c.Kafka = reader
	}

	// Temporal
	tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
	if err != nil {
		return fail(fmt.Errorf("init temporal client: %w", err))
	}
	c.Temporal = tc

	return c, nil
}

func needsAWS(cfg Config, backend registry.Backend) bool {
	return cfg.Artifact.Backend == ArtifactBackendS3 ||
		backend == registry.BackendDynamoDB ||
		cfg.Notify.APIGWEndpoint != ""
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Kafka != nil {
		_ = c.Kafka.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if closer, ok := c.Artifacts.(io.Closer); ok {
		_ = closer.Close()
	}
}
