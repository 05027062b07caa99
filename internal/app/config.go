package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/jobrelay/internal/clients/jobstatus"
	"github.com/yungbote/jobrelay/internal/clients/kafka"
	"github.com/yungbote/jobrelay/internal/clients/recordapi"
	"github.com/yungbote/jobrelay/internal/clients/redis"
	"github.com/yungbote/jobrelay/internal/data/db"
	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/awsx"
	"github.com/yungbote/jobrelay/internal/platform/envutil"
	"github.com/yungbote/jobrelay/internal/platform/gcp"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/registry"
	"github.com/yungbote/jobrelay/internal/services"
	"github.com/yungbote/jobrelay/internal/temporalx"
)

const (
	ArtifactBackendS3     = "s3"
	ArtifactBackendGCS    = "gcs"
	ArtifactBackendMemory = "memory"

	NotifyTransportAuto       = "auto"
	NotifyTransportSSE        = "sse"
	NotifyTransportWebhook    = "webhook"
	NotifyTransportAPIGateway = "apigateway"
)

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxEventBytes   int64         `yaml:"max_event_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ArtifactConfig struct {
	Backend       string        `yaml:"backend"`
	Bucket        string        `yaml:"bucket"`
	PublicBaseURL string        `yaml:"public_base_url"`
	KeyPrefix     string        `yaml:"key_prefix"`
	MaxBytes      int64         `yaml:"max_bytes"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`

	GCSMode         string `yaml:"gcs_mode"`
	GCSEmulatorHost string `yaml:"gcs_emulator_host"`
	GCSCDNDomain    string `yaml:"gcs_cdn_domain"`
	GCSCredentials  string `yaml:"gcs_credentials"`
}

func (c ArtifactConfig) materializer() services.MaterializerConfig {
	return services.MaterializerConfig{
		KeyPrefix:    c.KeyPrefix,
		MaxBytes:     c.MaxBytes,
		FetchTimeout: c.FetchTimeout,
	}
}

func (c ArtifactConfig) bucket() gcp.BucketConfig {
	return gcp.BucketConfig{
		Name:          c.Bucket,
		Mode:          gcp.ObjectStorageMode(c.GCSMode),
		EmulatorHost:  c.GCSEmulatorHost,
		CDNDomain:     c.GCSCDNDomain,
		PublicBaseURL: c.PublicBaseURL,
		Credentials:   c.GCSCredentials,
	}
}

type RegistryConfig struct {
	Backend string `yaml:"backend"`
	Table   string `yaml:"table"`
}

type NotifyConfig struct {
	Transport      string        `yaml:"transport"`
	Concurrency    int           `yaml:"concurrency"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	APIGWEndpoint  string        `yaml:"apigw_endpoint"`
	SSEBus         bool          `yaml:"sse_bus"`
}

type Config struct {
	LogMode        string `yaml:"log_mode"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	HTTP      HTTPConfig          `yaml:"http"`
	Poll      completion.Config   `yaml:"poll"`
	JobStatus jobstatus.Config    `yaml:"job_status"`
	RecordAPI recordapi.Config    `yaml:"record_api"`
	Record    domain.RecordFields `yaml:"record_fields"`
	Artifact  ArtifactConfig      `yaml:"artifact"`
	Registry  RegistryConfig      `yaml:"registry"`
	Notify    NotifyConfig        `yaml:"notify"`

	AWS      awsx.Config              `yaml:"aws"`
	Redis    redis.Config             `yaml:"redis"`
	Database db.Config                `yaml:"database"`
	Kafka    kafka.Config             `yaml:"kafka"`
	Temporal temporalx.Config         `yaml:"temporal"`
	Otel     observability.OtelConfig `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		LogMode: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MaxEventBytes:   1 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		Poll: completion.Config{
			MaxAttempts:  completion.DefaultMaxAttempts,
			PollInterval: completion.DefaultPollInterval,
		},
		JobStatus: jobstatus.Config{QueryParam: "jobId", Timeout: 10 * time.Second},
		RecordAPI: recordapi.Config{PathTemplate: recordapi.DefaultPathTemplate, Timeout: 10 * time.Second},
		Record:    domain.DefaultRecordFields(),
		Artifact: ArtifactConfig{
			Backend:      ArtifactBackendS3,
			MaxBytes:     64 << 20,
			FetchTimeout: 60 * time.Second,
		},
		Registry: RegistryConfig{Backend: string(registry.BackendDynamoDB)},
		Notify: NotifyConfig{
			Transport:      NotifyTransportAuto,
			Concurrency:    32,
			WebhookTimeout: 10 * time.Second,
		},
		Redis: redis.Config{
			SubscribersKey: "jobrelay:subscribers",
			Channel:        "jobrelay:sse",
		},
		Database: db.Config{Driver: "postgres"},
		Otel: observability.OtelConfig{
			ServiceName: "jobrelay",
			SampleRatio: 1,
		},
	}
}

// LoadConfig applies defaults, then the YAML file named by CONFIG_FILE (if
// any), then environment variables. Later sources win.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.MetricsEnabled)

	// HTTP
	if port := envutil.String("PORT", ""); port != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := envutil.List("CORS_ORIGINS"); origins != nil {
		cfg.HTTP.CORSOrigins = origins
	}
	cfg.HTTP.MaxEventBytes = envutil.Int64("MAX_EVENT_BYTES", cfg.HTTP.MaxEventBytes)
	cfg.HTTP.ShutdownTimeout = envutil.Millis("SHUTDOWN_TIMEOUT_MS", cfg.HTTP.ShutdownTimeout)

	// Poll loop
	cfg.Poll.MaxAttempts = envutil.Int("POLL_MAX_ATTEMPTS", cfg.Poll.MaxAttempts)
	cfg.Poll.PollInterval = envutil.Millis("POLL_INTERVAL_MS", cfg.Poll.PollInterval)

	// Job status service
	cfg.JobStatus.URL = envutil.String("JOB_STATUS_URL", cfg.JobStatus.URL)
	cfg.JobStatus.QueryParam = envutil.String("JOB_STATUS_QUERY_PARAM", cfg.JobStatus.QueryParam)
	cfg.JobStatus.Timeout = envutil.Millis("JOB_STATUS_TIMEOUT_MS", cfg.JobStatus.Timeout)

	// Record API
	cfg.RecordAPI.BaseURL = envutil.String("RECORD_API_URL", cfg.RecordAPI.BaseURL)
	cfg.RecordAPI.PathTemplate = envutil.String("RECORD_PATH_TEMPLATE", cfg.RecordAPI.PathTemplate)
	cfg.RecordAPI.Timeout = envutil.Millis("RECORD_API_TIMEOUT_MS", cfg.RecordAPI.Timeout)
	if headers := envutil.List("RECORD_API_HEADERS"); headers != nil {
		cfg.RecordAPI.Headers = headers
	}
	cfg.Record.ID = envutil.String("RECORD_FIELD_ID", cfg.Record.ID)
	cfg.Record.ParentID = envutil.String("RECORD_FIELD_PARENT_ID", cfg.Record.ParentID)
	cfg.Record.JobID = envutil.String("RECORD_FIELD_JOB_ID", cfg.Record.JobID)
	cfg.Record.Status = envutil.String("RECORD_FIELD_STATUS", cfg.Record.Status)
	cfg.Record.Outputs = envutil.String("RECORD_FIELD_OUTPUTS", cfg.Record.Outputs)

	// Artifacts
	cfg.Artifact.Backend = strings.ToLower(envutil.String("ARTIFACT_BACKEND", cfg.Artifact.Backend))
	cfg.Artifact.Bucket = envutil.String("ARTIFACT_BUCKET", cfg.Artifact.Bucket)
	cfg.Artifact.PublicBaseURL = envutil.String("ARTIFACT_PUBLIC_BASE_URL", cfg.Artifact.PublicBaseURL)
	cfg.Artifact.KeyPrefix = envutil.String("ARTIFACT_KEY_PREFIX", cfg.Artifact.KeyPrefix)
	cfg.Artifact.MaxBytes = envutil.Int64("ARTIFACT_MAX_BYTES", cfg.Artifact.MaxBytes)
	cfg.Artifact.FetchTimeout = envutil.Millis("ARTIFACT_FETCH_TIMEOUT_MS", cfg.Artifact.FetchTimeout)
	cfg.Artifact.GCSMode = envutil.String("OBJECT_STORAGE_MODE", cfg.Artifact.GCSMode)
	cfg.Artifact.GCSEmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Artifact.GCSEmulatorHost)
	cfg.Artifact.GCSCDNDomain = envutil.String("GCS_CDN_DOMAIN", cfg.Artifact.GCSCDNDomain)
	cfg.Artifact.GCSCredentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", cfg.Artifact.GCSCredentials)

	// Subscribers and delivery
	cfg.Registry.Backend = strings.ToLower(envutil.String("REGISTRY_BACKEND", cfg.Registry.Backend))
	cfg.Registry.Table = envutil.String("REGISTRY_TABLE", cfg.Registry.Table)
	cfg.Notify.Transport = strings.ToLower(envutil.String("NOTIFY_TRANSPORT", cfg.Notify.Transport))
	cfg.Notify.Concurrency = envutil.Int("FANOUT_CONCURRENCY", cfg.Notify.Concurrency)
	cfg.Notify.WebhookTimeout = envutil.Millis("WEBHOOK_TIMEOUT_MS", cfg.Notify.WebhookTimeout)
	cfg.Notify.APIGWEndpoint = envutil.String("APIGW_ENDPOINT", cfg.Notify.APIGWEndpoint)
	cfg.Notify.SSEBus = envutil.Bool("SSE_BUS_ENABLED", cfg.Notify.SSEBus)

	// AWS
	cfg.AWS.Region = envutil.String("AWS_REGION", cfg.AWS.Region)
	cfg.AWS.Endpoint = envutil.String("AWS_ENDPOINT_URL", cfg.AWS.Endpoint)
	cfg.AWS.AccessKeyID = envutil.String("AWS_ACCESS_KEY_ID", cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = envutil.String("AWS_SECRET_ACCESS_KEY", cfg.AWS.SecretAccessKey)

	// Redis
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.SubscribersKey = envutil.String("REDIS_SUBSCRIBERS_KEY", cfg.Redis.SubscribersKey)
	cfg.Redis.Channel = envutil.String("REDIS_SSE_CHANNEL", cfg.Redis.Channel)

	// Database
	cfg.Database.Driver = envutil.String("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envutil.String("DATABASE_DSN", cfg.Database.DSN)

	// Kafka
	if brokers := envutil.List("KAFKA_BROKERS"); brokers != nil {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = envutil.String("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = envutil.String("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	// Temporal
	cfg.Temporal.Address = envutil.String("TEMPORAL_ADDRESS", cfg.Temporal.Address)
	cfg.Temporal.Namespace = envutil.String("TEMPORAL_NAMESPACE", cfg.Temporal.Namespace)
	cfg.Temporal.TaskQueue = envutil.String("TEMPORAL_TASK_QUEUE", cfg.Temporal.TaskQueue)
	cfg.Temporal.ClientCertPath = envutil.String("TEMPORAL_CLIENT_CERT_PATH", cfg.Temporal.ClientCertPath)
	cfg.Temporal.ClientKeyPath = envutil.String("TEMPORAL_CLIENT_KEY_PATH", cfg.Temporal.ClientKeyPath)
	cfg.Temporal.ClientCAPath = envutil.String("TEMPORAL_CLIENT_CA_PATH", cfg.Temporal.ClientCAPath)
	cfg.Temporal.DialTimeout = envutil.Millis("TEMPORAL_DIAL_TIMEOUT_MS", cfg.Temporal.DialTimeout)
	cfg.Temporal.DialMaxWait = envutil.Millis("TEMPORAL_DIAL_MAX_WAIT_MS", cfg.Temporal.DialMaxWait)
	cfg.Temporal.DialBackoff = envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", cfg.Temporal.DialBackoff)
	cfg.Temporal.DialBackoffMax = envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", cfg.Temporal.DialBackoffMax)
	cfg.Temporal.AutoRegister = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", cfg.Temporal.AutoRegister)
	cfg.Temporal.RetentionDays = envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", cfg.Temporal.RetentionDays)
	cfg.Temporal.WorkerConcurrency = envutil.Int("TEMPORAL_WORKER_CONCURRENCY", cfg.Temporal.WorkerConcurrency)

	// Tracing
	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName)
	cfg.Otel.Environment = envutil.String("APP_ENV", cfg.Otel.Environment)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	if raw := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); raw != "" {
		cfg.Otel.Headers = observability.ParseHeaders(raw)
	}
	if raw := envutil.String("OTEL_SAMPLER_RATIO", ""); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Otel.SampleRatio = ratio
		}
	}
}

// Validate reports every missing or contradictory value at once.
func (c Config) Validate() error {
	var problems []string
	missing := func(name string) { problems = append(problems, "missing "+name) }

	if strings.TrimSpace(c.JobStatus.URL) == "" {
		missing("JOB_STATUS_URL")
	}
	if strings.TrimSpace(c.RecordAPI.BaseURL) == "" {
		missing("RECORD_API_URL")
	}
	if c.Poll.MaxAttempts < 0 {
		problems = append(problems, "POLL_MAX_ATTEMPTS must not be negative")
	}

	switch c.Artifact.Backend {
	case ArtifactBackendS3, ArtifactBackendGCS:
		if strings.TrimSpace(c.Artifact.Bucket) == "" {
			missing("ARTIFACT_BUCKET")
		}
	case ArtifactBackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown ARTIFACT_BACKEND %q", c.Artifact.Backend))
	}

	backend, ok := registry.ParseBackend(c.Registry.Backend)
	switch {
	case !ok:
		problems = append(problems, fmt.Sprintf("unknown REGISTRY_BACKEND %q", c.Registry.Backend))
	case backend == registry.BackendDynamoDB:
		if strings.TrimSpace(c.Registry.Table) == "" {
			missing("REGISTRY_TABLE")
		}
	case backend == registry.BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			missing("REDIS_ADDR")
		}
	case backend == registry.BackendPostgres, backend == registry.BackendSQLite:
		if strings.TrimSpace(c.Database.DSN) == "" {
			missing("DATABASE_DSN")
		}
	}

	switch c.Notify.Transport {
	case NotifyTransportAuto, NotifyTransportSSE, NotifyTransportWebhook:
	case NotifyTransportAPIGateway:
		if strings.TrimSpace(c.Notify.APIGWEndpoint) == "" {
			missing("APIGW_ENDPOINT")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown NOTIFY_TRANSPORT %q", c.Notify.Transport))
	}
	if c.Notify.SSEBus && strings.TrimSpace(c.Redis.Addr) == "" {
		missing("REDIS_ADDR")
	}

	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		missing("KAFKA_TOPIC")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(dedupe(problems), "; "))
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
