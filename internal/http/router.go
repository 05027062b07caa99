package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/jobrelay/internal/http/handlers"
	httpMW "github.com/yungbote/jobrelay/internal/http/middleware"
	"github.com/yungbote/jobrelay/internal/observability"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	EventHandler      *httpH.EventHandler
	RealtimeHandler   *httpH.RealtimeHandler
	SubscriberHandler *httpH.SubscriberHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "jobrelay"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, "/healthcheck", "/metrics"))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Change events
		if cfg.EventHandler != nil {
			api.POST("/events", cfg.EventHandler.Ingest)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Subscribers
		if cfg.SubscriberHandler != nil {
			api.GET("/subscribers", cfg.SubscriberHandler.List)
			api.POST("/subscribers", cfg.SubscriberHandler.Subscribe)
			api.DELETE("/subscribers/:id", cfg.SubscriberHandler.Unsubscribe)
		}
	}

	return r
}
