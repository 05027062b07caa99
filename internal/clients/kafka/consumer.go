package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

type Config struct {
	Brokers  []string      `yaml:"brokers"`
	Topic    string        `yaml:"topic"`
	GroupID  string        `yaml:"group_id"`
	MinBytes int           `yaml:"min_bytes"`
	MaxBytes int           `yaml:"max_bytes"`
	MaxWait  time.Duration `yaml:"max_wait"`
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && strings.TrimSpace(c.Topic) != ""
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Dispatcher interface {
	OnChangeEvent(ctx context.Context, ev domain.ChangeEvent) completion.Decision
}

func NewReader(cfg Config) (*kafkago.Reader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka brokers and topic required")
	}
	groupID := strings.TrimSpace(cfg.GroupID)
	if groupID == "" {
		groupID = "jobrelay"
	}
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
		MaxWait:  maxWait,
	}), nil
}

// Consumer feeds change events from a topic into the completion pipeline.
// Offsets are committed after dispatch, so delivery is at least once.
type Consumer struct {
	log      *logger.Logger
	reader   Reader
	codec    *domain.RecordCodec
	dispatch Dispatcher
	backoff  time.Duration
}

func NewConsumer(log *logger.Logger, reader Reader, codec *domain.RecordCodec, dispatch Dispatcher) *Consumer {
	return &Consumer{
		log:      log.With("component", "KafkaConsumer"),
		reader:   reader,
		codec:    codec,
		dispatch: dispatch,
		backoff:  time.Second,
	}
}

// Run blocks until ctx is canceled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("Kafka reader close failed", "error", err)
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.log.Warn("Kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		c.handle(ctx, m)
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("Kafka commit failed", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafkago.Message) {
	ev, err := c.codec.DecodeChangeEvent(m.Value)
	if err != nil {
		observability.Current().IncChangeEvent("kafka", "malformed")
		c.log.Warn("Undecodable change event skipped", "partition", m.Partition, "offset", m.Offset, "error", err)
		return
	}
	d := c.dispatch.OnChangeEvent(ctx, ev)
	observability.Current().IncChangeEvent("kafka", string(d))
}
