package bootstrap

import (
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/internal/dispatch"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildDispatch wires the publisher and worker around the queue selected by
// QUEUE_BACKEND, so both always share one queue.
func BuildDispatch(cfg *appconfig.Config, clients AWSClients, handler dispatch.MessageHandler, sender dispatch.ReplySender, m *metrics.DispatchMetrics, logger *logging.Logger) (*dispatch.Publisher, *dispatch.Worker, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.QueueBackend {
	case "", "memory":
		q := dispatch.NewMemoryQueue(memoryQueueBuffer, dispatch.WithVisibilityTimeout(cfg.QueueVisibilityTimeout))
		return dispatch.NewPublisher(q, logger),
			dispatch.NewWorker(handler, q, sender, logger,
				dispatch.WithWorkerCount(cfg.WorkerCount),
				dispatch.WithReceiveWaitSeconds(0),
				dispatch.WithDispatchMetrics(m),
			), nil
	case "sqs":
		if clients.SQS == nil || strings.TrimSpace(cfg.ConversationQueueURL) == "" {
			return nil, nil, fmt.Errorf("bootstrap: sqs queue selected without a client or CONVERSATION_QUEUE_URL")
		}
		q := dispatch.NewSQSQueue(clients.SQS, cfg.ConversationQueueURL)
		if !q.FIFO() {
			logger.Warn("conversation queue is not FIFO; one phone's jobs may be handled out of order", "queue_url", cfg.ConversationQueueURL)
		}
		return dispatch.NewPublisher(q, logger),
			dispatch.NewWorker(handler, q, sender, logger,
				dispatch.WithWorkerCount(cfg.WorkerCount),
				dispatch.WithReceiveWaitSeconds(20),
				dispatch.WithDispatchMetrics(m),
			), nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, fmt.Errorf("bootstrap: kafka queue selected without KAFKA_BROKERS")
		}
		q := dispatch.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		return dispatch.NewPublisher(q, logger),
			dispatch.NewWorker(handler, q, sender, logger,
				dispatch.WithWorkerCount(cfg.WorkerCount),
				dispatch.WithReceiveWaitSeconds(5),
				dispatch.WithDispatchMetrics(m),
			), nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown queue backend %q", cfg.QueueBackend)
	}
}
