package dispatch

import (
	"context"
	"fmt"

	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Enqueue validates msg and publishes it, returning the job id.
func (p *Publisher) Enqueue(ctx context.Context, jobID string, msg conversation.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	j, body, err := encodeJob(job{ID: jobID, Message: msg})
	if err != nil {
		return "", err
	}
	env := envelope{JobID: j.ID, Key: msg.ConversationKey(), Body: body}
	if err := p.queue.Send(ctx, env); err != nil {
		return "", fmt.Errorf("dispatch: failed to enqueue message: %w", err)
	}

	p.logger.Debug("inbound message enqueued", "job_id", j.ID, "conversation", msg.ConversationKey())
	return j.ID, nil
}
