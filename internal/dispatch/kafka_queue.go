package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const jobIDHeader = "job-id"

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue implements queueClient on a Kafka topic read through a consumer
// group. Records are keyed by conversation and hashed to a partition, so one
// conversation's jobs stay in order. Delete commits the record's offset.
// Kafka commits are cumulative per partition, so a failed record is only
// redelivered if no later record on its partition is committed before the
// consumer restarts.
type KafkaQueue struct {
	reader kafkaReader
	writer kafkaWriter

	mu      sync.Mutex
	pending map[string]kafka.Message
}

// NewKafkaQueue connects a reader in groupID and a writer to topic.
func NewKafkaQueue(brokers []string, topic, groupID string) *KafkaQueue {
	if len(brokers) == 0 {
		panic("dispatch: kafka brokers cannot be empty")
	}
	if topic == "" {
		panic("dispatch: kafka topic cannot be empty")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	})
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaQueue(reader, writer)
}

func newKafkaQueue(reader kafkaReader, writer kafkaWriter) *KafkaQueue {
	return &KafkaQueue{
		reader:  reader,
		writer:  writer,
		pending: make(map[string]kafka.Message),
	}
}

func (q *KafkaQueue) Send(ctx context.Context, env envelope) error {
	err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(env.Key),
		Value:   []byte(env.Body),
		Headers: []kafka.Header{{Key: jobIDHeader, Value: []byte(env.JobID)}},
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("dispatch: failed to write kafka message: %w", err)
	}
	return nil
}

// Receive returns at most one record; a zero wait blocks until one arrives.
func (q *KafkaQueue) Receive(ctx context.Context, _ int, waitSeconds int) ([]queueMessage, error) {
	fetchCtx := ctx
	if waitSeconds > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, time.Duration(waitSeconds)*time.Second)
		defer cancel()
	}

	msg, err := q.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatch: failed to fetch kafka message: %w", err)
	}

	handle := receiptHandle(msg)
	q.mu.Lock()
	q.pending[handle] = msg
	q.mu.Unlock()

	id := handle
	for _, h := range msg.Headers {
		if h.Key == jobIDHeader && len(h.Value) > 0 {
			id = string(h.Value)
		}
	}
	return []queueMessage{{
		ID:            id,
		Body:          string(msg.Value),
		ReceiptHandle: handle,
	}}, nil
}

func (q *KafkaQueue) Delete(ctx context.Context, handle string) error {
	q.mu.Lock()
	msg, ok := q.pending[handle]
	delete(q.pending, handle)
	q.mu.Unlock()
	if !ok {
		return nil
	}
	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("dispatch: failed to commit kafka offset: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return errors.Join(q.reader.Close(), q.writer.Close())
}

func receiptHandle(msg kafka.Message) string {
	return msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
}
