package app

import (
	httpH "github.com/yungbote/jobrelay/internal/http/handlers"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/registry"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Event      *httpH.EventHandler
	Realtime   *httpH.RealtimeHandler
	Subscriber *httpH.SubscriberHandler
}

func wireHandlers(log *logger.Logger, cfg Config, svc Services, reg registry.Registry) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(),
		Event: httpH.NewEventHandler(httpH.EventHandlerDeps{
			Log:      log,
			Codec:    svc.Codec,
			Dispatch: svc.Pipeline,
			MaxBytes: cfg.HTTP.MaxEventBytes,
		}),
		Realtime:   httpH.NewRealtimeHandler(log, svc.SSEHub, reg),
		Subscriber: httpH.NewSubscriberHandler(log, reg),
	}
}
