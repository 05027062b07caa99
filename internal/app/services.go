package app

import (
	"fmt"

	"github.com/yungbote/jobrelay/internal/clients/jobstatus"
	"github.com/yungbote/jobrelay/internal/clients/kafka"
	"github.com/yungbote/jobrelay/internal/clients/recordapi"
	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/jobs/completion"
	"github.com/yungbote/jobrelay/internal/jobs/worker"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/realtime"
	"github.com/yungbote/jobrelay/internal/registry"
	"github.com/yungbote/jobrelay/internal/services"
	"github.com/yungbote/jobrelay/internal/temporalx/completionwf"
	"github.com/yungbote/jobrelay/internal/temporalx/temporalworker"
)

type Services struct {
	Codec        *domain.RecordCodec
	SSEHub       *realtime.SSEHub
	Transport    realtime.Transport
	Fanout       *services.Fanout
	Materializer *services.Materializer
	JobStatus    *jobstatus.Client
	Records      *recordapi.Client
	Runner       *worker.Runner
	Pipeline     *completion.Pipeline

	// Set only when Temporal / Kafka are configured.
	TemporalWorker *temporalworker.Runner
	Consumer       *kafka.Consumer
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reg registry.Registry) (Services, error) {
	log.Info("Wiring services...")
	codec := domain.NewRecordCodec(cfg.Record)
	hub := realtime.NewSSEHub(log)

	transport, err := wireTransport(cfg.Notify, clients, hub)
	if err != nil {
		return Services{}, err
	}
	fanout := services.NewFanout(log, reg, transport, cfg.Notify.Concurrency)
	materializer := services.NewMaterializer(log, clients.Artifacts, clients.HTTP, cfg.Artifact.materializer())

	statusClient, err := jobstatus.New(log, clients.HTTP, cfg.JobStatus)
	if err != nil {
		return Services{}, fmt.Errorf("init job status client: %w", err)
	}
	records, err := recordapi.New(log, clients.HTTP, codec, cfg.RecordAPI)
	if err != nil {
		return Services{}, fmt.Errorf("init record api client: %w", err)
	}

	runner := worker.NewRunner(log)
	pipeline := completion.New(completion.Deps{
		Log:          log,
		Status:       statusClient,
		Materializer: materializer,
		Records:      records,
		Fanout:       fanout,
		Codec:        codec,
		Runner:       runner,
	}, cfg.Poll)

	out := Services{
		Codec:        codec,
		SSEHub:       hub,
		Transport:    transport,
		Fanout:       fanout,
		Materializer: materializer,
		JobStatus:    statusClient,
		Records:      records,
		Runner:       runner,
		Pipeline:     pipeline,
	}

	if clients.Temporal != nil {
		temporalCfg := cfg.Temporal.WithDefaults()
		pipeline.UseScheduler(completionwf.NewScheduler(log, clients.Temporal, temporalCfg.TaskQueue, codec, pipeline.Config()))
		tw, err := temporalworker.NewRunner(log, clients.Temporal, temporalCfg, &completionwf.Activities{
			Log:      log,
			Pipeline: pipeline,
			Codec:    codec,
		})
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = tw
	}

	if clients.Kafka != nil {
		out.Consumer = kafka.NewConsumer(log, clients.Kafka, codec, pipeline)
	}
	return out, nil
}

// wireTransport picks the delivery transport. With a Redis SSE bus the SSE
// leg publishes to every replica instead of the local hub.
func wireTransport(cfg NotifyConfig, clients Clients, hub *realtime.SSEHub) (realtime.Transport, error) {
	var sse realtime.Transport = realtime.NewSSETransport(hub)
	if clients.SSEBus != nil {
		sse = realtime.NewBusTransport(clients.SSEBus)
	}
	webhook := realtime.NewWebhookTransport(clients.HTTP, cfg.WebhookTimeout)
	var apigw realtime.Transport
	if clients.APIGW != nil {
		apigw = realtime.NewAPIGatewayTransport(clients.APIGW)
	}

	switch cfg.Transport {
	case NotifyTransportSSE:
		return sse, nil
	case NotifyTransportWebhook:
		return webhook, nil
	case NotifyTransportAPIGateway:
		if apigw == nil {
			return nil, fmt.Errorf("apigateway transport: APIGW_ENDPOINT not configured")
		}
		return apigw, nil
	case NotifyTransportAuto, "":
		return &realtime.Router{Webhook: webhook, SSE: sse, Fallback: apigw}, nil
	default:
		return nil, fmt.Errorf("unknown notify transport %q", cfg.Transport)
	}
}
