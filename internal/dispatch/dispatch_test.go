package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heitor/internal/assistant"
	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

type scriptedQueue struct {
	mu      sync.Mutex
	pending []queueMessage
	deleted []string
	sent    []envelope
}

func (q *scriptedQueue) enqueue(msg queueMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msg)
}

func (q *scriptedQueue) Send(_ context.Context, env envelope) error {
	q.mu.Lock()
	q.sent = append(q.sent, env)
	q.mu.Unlock()
	q.enqueue(queueMessage{ID: env.JobID, Body: env.Body, ReceiptHandle: "rh-sent"})
	return nil
}

func (q *scriptedQueue) Receive(ctx context.Context, maxMessages int, _ int) ([]queueMessage, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			n := min(maxMessages, len(q.pending))
			out := append([]queueMessage(nil), q.pending[:n]...)
			q.pending = q.pending[n:]
			q.mu.Unlock()
			return out, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *scriptedQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *scriptedQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type stubHandler struct {
	mu    sync.Mutex
	seen  []conversation.Message
	reply *assistant.Reply
	err   error
}

func (h *stubHandler) Handle(_ context.Context, msg conversation.Message) (*assistant.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg)
	if h.err != nil {
		return nil, h.err
	}
	return h.reply, nil
}

func (h *stubHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

type recordingSender struct {
	mu      sync.Mutex
	replies []OutboundReply
	err     error
}

func (s *recordingSender) SendReply(_ context.Context, reply OutboundReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	return s.err
}

func (s *recordingSender) sent() []OutboundReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboundReply(nil), s.replies...)
}

func jobBody(t *testing.T, id string, msg conversation.Message) string {
	t.Helper()
	_, body, err := encodeJob(job{ID: id, Message: msg})
	require.NoError(t, err)
	return body
}

func runWorker(t *testing.T, handler MessageHandler, queue *scriptedQueue, sender ReplySender, done func() bool, opts ...WorkerOption) {
	t.Helper()
	opts = append([]WorkerOption{WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0)}, opts...)
	worker := NewWorker(handler, queue, sender, testLogger(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	require.Eventually(t, done, time.Second, 5*time.Millisecond)
	cancel()
	worker.Wait()
}

func TestPublisher_Enqueue(t *testing.T) {
	queue := &scriptedQueue{}
	publisher := NewPublisher(queue, testLogger())

	id, err := publisher.Enqueue(context.Background(), "job-1", conversation.Message{From: "5511999990000", Body: "Oi"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, queue.pending, 1)

	j, err := decodeJob(queue.pending[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, "Oi", j.Message.Body)
	assert.Equal(t, "job-1", j.Message.ID, "id-less messages take the job id")
	assert.False(t, j.EnqueuedAt.IsZero())
	assert.Equal(t, envelope{JobID: "job-1", Key: "5511999990000", Body: queue.pending[0].Body}, queue.sent[0])
}

func TestPublisher_KeepsGatewayMessageID(t *testing.T) {
	queue := &scriptedQueue{}
	publisher := NewPublisher(queue, testLogger())

	_, err := publisher.Enqueue(context.Background(), "", conversation.Message{
		ID: "wamid-7", From: "5511999990000", Body: "Oi", IsGroup: true, GroupID: "grupo-1",
	})
	require.NoError(t, err)

	j, err := decodeJob(queue.pending[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "wamid-7", j.Message.ID)
	assert.Equal(t, "grupo-1", queue.sent[0].Key)
}

func TestPublisher_GeneratesIDAndRejectsMalformed(t *testing.T) {
	queue := &scriptedQueue{}
	publisher := NewPublisher(queue, testLogger())

	id, err := publisher.Enqueue(context.Background(), "", conversation.Message{From: "5511999990000", Body: "Oi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = publisher.Enqueue(context.Background(), "", conversation.Message{From: "5511999990000"})
	require.ErrorIs(t, err, conversation.ErrMalformedMessage)
	assert.Len(t, queue.pending, 1)
}

func TestWorker_SendsReplyAndDeletes(t *testing.T) {
	queue := &scriptedQueue{}
	handler := &stubHandler{reply: &assistant.Reply{To: "5511999990000", Text: "Bora!", SendAudio: true}}
	sender := &recordingSender{}
	reg := prometheus.NewRegistry()
	m := metrics.NewDispatchMetrics(reg)

	queue.enqueue(queueMessage{ID: "m-1", Body: jobBody(t, "job-1", conversation.Message{ID: "wa-1", From: "5511999990000", Body: "Oi"}), ReceiptHandle: "rh-1"})

	runWorker(t, handler, queue, sender, func() bool {
		return len(queue.deletedHandles()) == 1
	}, WithDispatchMetrics(m))

	replies := sender.sent()
	require.Len(t, replies, 1)
	assert.Equal(t, OutboundReply{To: "5511999990000", Body: "Bora!", SendAudio: true, InReplyTo: "wa-1"}, replies[0])
	assert.Equal(t, []string{"rh-1"}, queue.deletedHandles())
	count, err := testutil.GatherAndCount(reg, "heitor_dispatch_replies_total", "heitor_dispatch_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWorker_SkippedReplyIsNotSent(t *testing.T) {
	queue := &scriptedQueue{}
	handler := &stubHandler{reply: &assistant.Reply{To: "grupo-1", Skipped: true}}
	sender := &recordingSender{}

	queue.enqueue(queueMessage{ID: "m-1", Body: jobBody(t, "job-1", conversation.Message{From: "a", Body: "kkkk", IsGroup: true, GroupID: "grupo-1"}), ReceiptHandle: "rh-1"})

	runWorker(t, handler, queue, sender, func() bool {
		return len(queue.deletedHandles()) == 1
	})
	assert.Empty(t, sender.sent())
}

func TestWorker_HandlerFailureLeavesMessageForRedelivery(t *testing.T) {
	queue := &scriptedQueue{}
	handler := &stubHandler{err: conversation.ErrStorageUnavailable}
	sender := &recordingSender{}

	queue.enqueue(queueMessage{ID: "m-1", Body: jobBody(t, "job-1", conversation.Message{From: "a", Body: "Oi"}), ReceiptHandle: "rh-1"})

	runWorker(t, handler, queue, sender, func() bool {
		return handler.count() == 1
	})
	assert.Empty(t, queue.deletedHandles())
	assert.Empty(t, sender.sent())
}

func TestWorker_DropsMalformedJobs(t *testing.T) {
	queue := &scriptedQueue{}
	handler := &stubHandler{err: errors.Join(conversation.ErrMalformedMessage, errors.New("body is required"))}

	queue.enqueue(queueMessage{ID: "m-1", Body: "{not json", ReceiptHandle: "rh-bad"})
	queue.enqueue(queueMessage{ID: "m-2", Body: jobBody(t, "job-2", conversation.Message{From: "a", Body: "x"}), ReceiptHandle: "rh-2"})

	runWorker(t, handler, queue, &recordingSender{}, func() bool {
		return len(queue.deletedHandles()) == 2
	})
	assert.Equal(t, []string{"rh-bad", "rh-2"}, queue.deletedHandles())
	assert.Equal(t, 1, handler.count())
}

func TestWorker_SendFailureStillDeletes(t *testing.T) {
	queue := &scriptedQueue{}
	handler := &stubHandler{reply: &assistant.Reply{To: "a", Text: "oi"}}
	sender := &recordingSender{err: errors.New("gateway down")}

	queue.enqueue(queueMessage{ID: "m-1", Body: jobBody(t, "job-1", conversation.Message{From: "a", Body: "Oi"}), ReceiptHandle: "rh-1"})

	runWorker(t, handler, queue, sender, func() bool {
		return len(queue.deletedHandles()) == 1
	})
	assert.Len(t, sender.sent(), 1)
}

func TestWorkerConfigOptions(t *testing.T) {
	w := NewWorker(&stubHandler{}, &scriptedQueue{}, nil, nil,
		WithWorkerCount(4), WithReceiveWaitSeconds(60), WithReceiveBatchSize(50))
	assert.Equal(t, 4, w.cfg.workers)
	assert.Equal(t, maxWaitSeconds, w.cfg.receiveWaitSecs)
	assert.Equal(t, maxReceiveBatchSize, w.cfg.receiveBatchSize)
	assert.IsType(t, &LogReplySender{}, w.sender)

	assert.Panics(t, func() { NewWorker(nil, &scriptedQueue{}, nil, nil) })
	assert.Panics(t, func() { NewWorker(&stubHandler{}, nil, nil, nil) })
}

func TestMemoryQueue_SendReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, envelope{Body: "a"}))
	require.NoError(t, q.Send(ctx, envelope{Body: "b"}))
	require.NoError(t, q.Send(ctx, envelope{JobID: "job-c", Body: "c"}))
	assert.Equal(t, 3, q.Len())

	msgs, err := q.Receive(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, "b", msgs[1].Body)
	assert.Equal(t, 1, msgs[0].Attempt)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)
	assert.Equal(t, 2, q.InFlight())
	assert.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	assert.NoError(t, q.Delete(ctx, msgs[1].ReceiptHandle))
	assert.Equal(t, 0, q.InFlight())
	assert.Equal(t, 1, q.Len())

	msgs, err = q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "job-c", msgs[0].ID)
}

func TestMemoryQueue_UndeletedMessageIsRedelivered(t *testing.T) {
	q := NewMemoryQueue(4, WithVisibilityTimeout(20*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, envelope{JobID: "job-1", Body: "a"}))

	first, err := q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "job-1", second[0].ID)
	assert.Equal(t, 2, second[0].Attempt)
	assert.NotEqual(t, first[0].ReceiptHandle, second[0].ReceiptHandle)

	// The expired lease no longer acknowledges anything.
	require.NoError(t, q.Delete(ctx, first[0].ReceiptHandle))
	assert.Equal(t, 1, q.InFlight())
	require.NoError(t, q.Delete(ctx, second[0].ReceiptHandle))
	assert.Equal(t, 0, q.InFlight())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
}

// flakyHandler fails its first call and succeeds afterwards.
type flakyHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *flakyHandler) Handle(_ context.Context, msg conversation.Message) (*assistant.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls == 1 {
		return nil, conversation.ErrStorageUnavailable
	}
	return &assistant.Reply{To: msg.From, Text: "Oi!"}, nil
}

func (h *flakyHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestWorker_MemoryQueueRetriesFailedJob(t *testing.T) {
	q := NewMemoryQueue(4, WithVisibilityTimeout(50*time.Millisecond))
	handler := &flakyHandler{}
	sender := &recordingSender{}

	_, err := NewPublisher(q, testLogger()).Enqueue(context.Background(), "job-1", conversation.Message{From: "5511999990000", Body: "Oi"})
	require.NoError(t, err)

	w := NewWorker(handler, q, sender, testLogger(), WithWorkerCount(1), WithReceiveWaitSeconds(1))
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	w.Wait()

	assert.Equal(t, 2, handler.count())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.InFlight())
}

func TestMemoryQueue_ReceiveTimesOutAndCancels(t *testing.T) {
	q := NewMemoryQueue(1)

	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Receive(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, q.Send(context.Background(), envelope{Body: "full"}))
	err = q.Send(ctx, envelope{Body: "blocked"})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeSQS struct {
	sent     []string
	inputs   []*sqs.SendMessageInput
	deleted  []string
	messages []sqstypes.Message
	err      error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := min(int(in.MaxNumberOfMessages), len(f.messages))
	return &sqs.ReceiveMessageOutput{Messages: f.messages[:n]}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	api := &fakeSQS{messages: []sqstypes.Message{
		{
			MessageId:     aws.String("id-1"),
			Body:          aws.String("body-1"),
			ReceiptHandle: aws.String("rh-1"),
			Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
		},
	}}
	q := NewSQSQueue(api, "https://sqs.local/queue")
	ctx := context.Background()
	assert.False(t, q.FIFO())

	require.NoError(t, q.Send(ctx, envelope{JobID: "job-1", Key: "5511", Body: "hello"}))
	assert.Equal(t, []string{"hello"}, api.sent)
	assert.Nil(t, api.inputs[0].MessageGroupId)
	assert.Equal(t, "5511", aws.ToString(api.inputs[0].MessageAttributes["conversation"].StringValue))

	msgs, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []queueMessage{{ID: "id-1", Body: "body-1", ReceiptHandle: "rh-1", Attempt: 3}}, msgs)

	require.NoError(t, q.Delete(ctx, "rh-1"))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"rh-1"}, api.deleted)

	api.err = errors.New("throttled")
	assert.ErrorContains(t, q.Send(ctx, envelope{JobID: "job-2", Key: "5511", Body: "x"}), "throttled")
	_, err = q.Receive(ctx, 1, 0)
	assert.Error(t, err)

	assert.Panics(t, func() { NewSQSQueue(nil, "u") })
	assert.Panics(t, func() { NewSQSQueue(api, "") })
}

func TestSQSQueue_FIFOGroupsByConversation(t *testing.T) {
	api := &fakeSQS{}
	q := NewSQSQueue(api, "https://sqs.local/heitor-inbound.fifo")
	require.True(t, q.FIFO())

	publisher := NewPublisher(q, testLogger())
	_, err := publisher.Enqueue(context.Background(), "job-1", conversation.Message{ID: "wamid-1", From: "5511999990000", Body: "Oi"})
	require.NoError(t, err)

	require.Len(t, api.inputs, 1)
	assert.Equal(t, "5511999990000", aws.ToString(api.inputs[0].MessageGroupId))
	assert.Equal(t, "job-1", aws.ToString(api.inputs[0].MessageDeduplicationId))

	assert.Error(t, q.Send(context.Background(), envelope{Body: "no key"}))
	assert.Len(t, api.inputs, 1)
}

func TestProcessor_Process(t *testing.T) {
	msg := conversation.Message{ID: "wamid-9", From: "5511988887777", Body: "Preciso de uma arte"}

	t.Run("finished jobs return nil", func(t *testing.T) {
		handler := &stubHandler{reply: &assistant.Reply{To: msg.From, Text: "Claro!"}}
		sender := &recordingSender{}
		p := NewProcessor(handler, sender, testLogger(), nil)

		require.NoError(t, p.Process(context.Background(), jobBody(t, "job-9", msg)))
		require.Len(t, sender.sent(), 1)
		assert.Equal(t, "wamid-9", sender.sent()[0].InReplyTo)

		require.NoError(t, p.Process(context.Background(), "{not json"))
		assert.Equal(t, 1, handler.count(), "undecodable body never reaches the handler")
	})

	t.Run("handler failure asks for redelivery", func(t *testing.T) {
		handler := &stubHandler{err: conversation.ErrStorageUnavailable}
		p := NewProcessor(handler, nil, testLogger(), nil)

		err := p.Process(context.Background(), jobBody(t, "job-10", msg))
		require.Error(t, err)
		assert.ErrorIs(t, err, conversation.ErrStorageUnavailable)
	})

	t.Run("redelivered message is acknowledged without a reply", func(t *testing.T) {
		handler := &stubHandler{reply: &assistant.Reply{To: msg.From, Skipped: true, Duplicate: true}}
		sender := &recordingSender{}
		reg := prometheus.NewRegistry()
		p := NewProcessor(handler, sender, testLogger(), metrics.NewDispatchMetrics(reg))

		require.NoError(t, p.Process(context.Background(), jobBody(t, "job-12", msg)))
		assert.Empty(t, sender.sent())
		count, err := testutil.GatherAndCount(reg, "heitor_dispatch_jobs_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("malformed message is acknowledged", func(t *testing.T) {
		handler := &stubHandler{err: conversation.ErrMalformedMessage}
		p := NewProcessor(handler, nil, testLogger(), nil)

		assert.NoError(t, p.Process(context.Background(), jobBody(t, "job-11", msg)))
	})
}
