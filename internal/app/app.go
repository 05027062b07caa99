package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	httpserver "github.com/yungbote/jobrelay/internal/http"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/envutil"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/realtime"
	"github.com/yungbote/jobrelay/internal/registry"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Registry registry.Registry
	Services Services
	Server   *httpserver.Server
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if cfg.LogMode != logMode {
		if relogged, err := logger.New(cfg.LogMode); err == nil {
			log.Sync()
			log = relogged
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, err
	}

	metrics := observability.Init(cfg.MetricsEnabled)
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}
	reg, err := wireRegistry(log, cfg, clients)
	if err != nil {
		clients.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, fmt.Errorf("init registry: %w", err)
	}
	serviceset, err := wireServices(log, cfg, clients, reg)
	if err != nil {
		clients.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, cfg, serviceset, reg)
	server := wireServer(log, cfg, handlerset, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Registry:     reg,
		Services:     serviceset,
		Server:       server,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background consumers: the SSE bus forwarder, the
// Temporal worker and the Kafka intake. Poll loops start on demand.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(ctx, realtime.ForwardToHub(a.Log, a.Services.SSEHub)); err != nil {
			return fmt.Errorf("start SSE bus forwarder: %w", err)
		}
	}
	if a.Services.TemporalWorker != nil {
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	if consumer := a.Services.Consumer; consumer != nil {
		a.Services.Runner.Go("kafka_consumer", func(ctx context.Context) {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Error("Kafka consumer stopped", "error", err)
			}
		})
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", a.Cfg.HTTP.Addr)
	return a.Server.Run(a.Cfg.HTTP.Addr)
}

// Close stops intake first, then cancels in-flight poll loops and releases
// clients. In-flight loops end with outcome canceled.
func (a *App) Close() {
	if a == nil {
		return
	}
	timeout := a.Cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.Services.SSEHub != nil {
		a.Services.SSEHub.CloseAll()
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown incomplete", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Runner != nil {
		if err := a.Services.Runner.Stop(ctx); err != nil {
			a.Log.Warn("Background tasks did not stop in time", "active", a.Services.Runner.Active(), "error", err)
		}
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Tracer shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
