package app

import (
	"fmt"

	"github.com/yungbote/jobrelay/internal/clients/redis"
	"github.com/yungbote/jobrelay/internal/data/repos/subscribers"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/registry"
)

func wireRegistry(log *logger.Logger, cfg Config, clients Clients) (registry.Registry, error) {
	backend, ok := registry.ParseBackend(cfg.Registry.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}
	log.Info("Wiring subscriber registry...", "backend", backend)

	switch backend {
	case registry.BackendDynamoDB:
		if clients.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb registry: client not configured")
		}
		return registry.NewDynamoDB(log, clients.DynamoDB, cfg.Registry.Table)
	case registry.BackendRedis:
		if clients.Redis == nil {
			return nil, fmt.Errorf("redis registry: client not configured")
		}
		return redis.NewSubscriberRegistry(log, clients.Redis, cfg.Redis.SubscribersKey), nil
	case registry.BackendPostgres, registry.BackendSQLite:
		if clients.DB == nil {
			return nil, fmt.Errorf("%s registry: database not configured", backend)
		}
		return subscribers.NewSubscriberRepo(clients.DB, log), nil
	default:
		return registry.NewMemory(), nil
	}
}
