package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/heitor/cmd/mainconfig"
	"github.com/wolfman30/heitor/internal/app/bootstrap"
	"github.com/wolfman30/heitor/internal/assistant"
	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/internal/dispatch"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

type jobProcessor interface {
	Process(ctx context.Context, body string) error
}

// conversation-lambda consumes the inbound queue through an SQS event source
// mapping instead of long-polling. Failed records are reported individually
// so only they are redelivered.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	clients := mainconfig.AWSClients(awsCfg, cfg)

	store, closeStore, err := bootstrap.BuildStore(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	completer, closeCompleter, err := bootstrap.BuildCompleter(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build language model", "error", err)
		os.Exit(1)
	}
	defer closeCompleter()

	engine := conversation.NewEngine(store, logger,
		conversation.WithLimits(cfg.Limits()),
		conversation.WithSaveAttempts(cfg.SaveAttempts),
		conversation.WithMetrics(metrics.NewEngineMetrics(prometheus.DefaultRegisterer)),
		conversation.WithAssistantName(cfg.AssistantName),
	)
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	responder := assistant.NewResponder(engine, completer, logger,
		assistant.WithPersona(assistant.DefaultPersona(cfg.AssistantName, cfg.OwnerName)),
		assistant.WithRand(rand.New(rand.NewSource(seed))),
		assistant.WithAudioChance(cfg.AudioReplyChance),
	)
	processor := dispatch.NewProcessor(responder, dispatch.NewLogReplySender(logger), logger,
		metrics.NewDispatchMetrics(prometheus.DefaultRegisterer))

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, processor, logger, evt)
	})
}

func handle(ctx context.Context, p jobProcessor, logger *logging.Logger, evt events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		if err := p.Process(ctx, record.Body); err != nil {
			logger.Warn("record will be redelivered", "message_id", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp, nil
}
