package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultVisibilityTimeout = 30 * time.Second

// MemoryQueue is a queueClient backed by an in-memory buffered channel. A
// received message stays in flight until it is deleted; if that does not
// happen within the visibility timeout it goes back on the channel.
type MemoryQueue struct {
	ch         chan queueMessage
	visibility time.Duration

	mu       sync.Mutex
	inflight map[string]*time.Timer
}

// MemoryQueueOption customizes a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithVisibilityTimeout sets how long a received message may stay undeleted
// before it is redelivered.
func WithVisibilityTimeout(d time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int, opts ...MemoryQueueOption) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	q := &MemoryQueue{
		ch:         make(chan queueMessage, buffer),
		visibility: defaultVisibilityTimeout,
		inflight:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Send enqueues a body or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, env envelope) error {
	id := env.JobID
	if id == "" {
		id = uuid.NewString()
	}
	select {
	case q.ch <- queueMessage{ID: id, Body: env.Body}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds
// elapses. A zero wait blocks until a message or cancellation.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete acknowledges a received message. Unknown or expired handles are
// ignored, as SQS does.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if timer, ok := q.inflight[receiptHandle]; ok {
		timer.Stop()
		delete(q.inflight, receiptHandle)
	}
	return nil
}

// Len reports the number of buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// InFlight reports the number of received but undeleted messages.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	messages := make([]queueMessage, 0, max)
	messages = append(messages, q.lease(first))
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, q.lease(msg))
		default:
			return messages
		}
	}
	return messages
}

// lease hands out msg under a fresh receipt handle and arms its redelivery.
func (q *MemoryQueue) lease(msg queueMessage) queueMessage {
	msg.Attempt++
	msg.ReceiptHandle = uuid.NewString()

	q.mu.Lock()
	defer q.mu.Unlock()
	handle := msg.ReceiptHandle
	q.inflight[handle] = time.AfterFunc(q.visibility, func() {
		q.redeliver(handle, msg)
	})
	return msg
}

func (q *MemoryQueue) redeliver(handle string, msg queueMessage) {
	q.mu.Lock()
	_, ok := q.inflight[handle]
	delete(q.inflight, handle)
	q.mu.Unlock()
	if !ok {
		return
	}
	msg.ReceiptHandle = ""
	select {
	case q.ch <- msg:
	default:
		// Buffer is full; wait for a consumer without holding up the timer.
		go func() { q.ch <- msg }()
	}
}
