package app

import (
	httpserver "github.com/yungbote/jobrelay/internal/http"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *httpserver.Server {
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:               log,
		ServiceName:       cfg.Otel.ServiceName,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		Metrics:           metrics,
		EventHandler:      handlers.Event,
		RealtimeHandler:   handlers.Realtime,
		SubscriberHandler: handlers.Subscriber,
		HealthHandler:     handlers.Health,
	})
}
