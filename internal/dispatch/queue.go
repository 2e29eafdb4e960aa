package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/heitor/internal/conversation"
)

type queueClient interface {
	Send(ctx context.Context, env envelope) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// envelope is one encoded job on its way to a queue. Key is the
// conversation key, which ordered backends use to keep a conversation's
// jobs in sequence; JobID doubles as the deduplication id.
type envelope struct {
	JobID string
	Key   string
	Body  string
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	// Attempt is 1 on first delivery; 0 when the backend does not count.
	Attempt int
}

// job is the queue envelope around one inbound message.
type job struct {
	ID         string               `json:"id"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
	Message    conversation.Message `json:"message"`
}

// encodeJob fills the job id and stamps it on a message that arrived without
// one, so redeliveries of the job are recognised downstream.
func encodeJob(j job) (job, string, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Message.ID == "" {
		j.Message.ID = j.ID
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(j)
	if err != nil {
		return job{}, "", fmt.Errorf("dispatch: failed to encode job: %w", err)
	}
	return j, string(body), nil
}

func decodeJob(body string) (job, error) {
	var j job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return job{}, fmt.Errorf("dispatch: failed to decode job: %w", err)
	}
	return j, nil
}
