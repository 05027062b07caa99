package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/registry"
)

const defaultSubscribersKey = "jobrelay:subscribers"

// SubscriberRegistry keeps subscribers in one Redis hash: field = connection
// id, value = JSON-encoded domain.Subscriber.
type SubscriberRegistry struct {
	log *logger.Logger
	rdb *goredis.Client
	key string
	now func() time.Time
}

var _ registry.Registry = (*SubscriberRegistry)(nil)

func NewSubscriberRegistry(log *logger.Logger, rdb *goredis.Client, key string) *SubscriberRegistry {
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultSubscribersKey
	}
	return &SubscriberRegistry{
		log: log.With("registry", "Redis", "key", key),
		rdb: rdb,
		key: key,
		now: time.Now,
	}
}

func (r *SubscriberRegistry) List(ctx context.Context) ([]domain.Subscriber, error) {
	all, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", r.key, err)
	}
	out := make([]domain.Subscriber, 0, len(all))
	for id, raw := range all {
		var sub domain.Subscriber
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			r.log.Warn("Undecodable subscriber entry; using id only", "connection_id", id, "error", err)
			sub = domain.Subscriber{}
		}
		sub.ConnectionID = id
		out = append(out, sub)
	}
	return out, nil
}

func (r *SubscriberRegistry) Add(ctx context.Context, sub domain.Subscriber) error {
	if err := registry.Validate(sub); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = r.now().UTC()
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := r.rdb.HSet(ctx, r.key, sub.ConnectionID, raw).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", sub.ConnectionID, err)
	}
	return nil
}

func (r *SubscriberRegistry) Remove(ctx context.Context, connectionID string) error {
	if err := r.rdb.HDel(ctx, r.key, connectionID).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", connectionID, err)
	}
	return nil
}
