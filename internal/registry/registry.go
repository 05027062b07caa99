package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/jobrelay/internal/domain"
)

// Registry is the set of live subscribers. Add and Remove are idempotent and
// safe to call concurrently from any number of poll loops.
type Registry interface {
	List(ctx context.Context) ([]domain.Subscriber, error)
	Add(ctx context.Context, sub domain.Subscriber) error
	Remove(ctx context.Context, connectionID string) error
}

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendDynamoDB Backend = "dynamodb"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

func ParseBackend(raw string) (Backend, bool) {
	b := Backend(strings.ToLower(strings.TrimSpace(raw)))
	switch b {
	case BackendMemory, BackendDynamoDB, BackendRedis, BackendPostgres, BackendSQLite:
		return b, true
	case "":
		return BackendMemory, true
	default:
		return b, false
	}
}

// Memory keeps subscribers in process.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscriber
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]domain.Subscriber{}, now: time.Now}
}

func (m *Memory) List(ctx context.Context) ([]domain.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out, nil
}

func (m *Memory) Add(ctx context.Context, sub domain.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(sub); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.now().UTC()
	}
	m.mu.Lock()
	m.subs[sub.ConnectionID] = sub
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(ctx context.Context, connectionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.subs, connectionID)
	m.mu.Unlock()
	return nil
}
