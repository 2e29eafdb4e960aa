package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/heitor/internal/assistant"
	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

const replyTimeout = 10 * time.Second

// MessageHandler answers one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg conversation.Message) (*assistant.Reply, error)
}

// OutboundReply is what the worker hands to the messaging gateway.
type OutboundReply struct {
	To               string
	Body             string
	SendAudio        bool
	InReplyTo        string
	SuggestedActions []string
}

// ReplySender delivers replies to the messaging gateway.
type ReplySender interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// LogReplySender logs replies instead of delivering them.
type LogReplySender struct {
	logger *logging.Logger
}

func NewLogReplySender(logger *logging.Logger) *LogReplySender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogReplySender{logger: logger}
}

func (s *LogReplySender) SendReply(_ context.Context, reply OutboundReply) error {
	s.logger.Info("reply ready",
		"to", reply.To,
		"audio", reply.SendAudio,
		"in_reply_to", reply.InReplyTo,
		"body", reply.Body,
	)
	return nil
}

// Processor runs one encoded job through the handler and sends its reply.
type Processor struct {
	handler MessageHandler
	sender  ReplySender
	logger  *logging.Logger
	metrics *metrics.DispatchMetrics
}

// NewProcessor wires a processor. A nil sender drops replies after logging them.
func NewProcessor(handler MessageHandler, sender ReplySender, logger *logging.Logger, m *metrics.DispatchMetrics) *Processor {
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewLogReplySender(logger)
	}
	return &Processor{handler: handler, sender: sender, logger: logger, metrics: m}
}

// Process handles one queue body. A nil error means the job is finished
// (replied, skipped or dropped as malformed) and may be acknowledged; an
// error means it should be redelivered.
func (p *Processor) Process(ctx context.Context, body string) error {
	start := time.Now()

	j, err := decodeJob(body)
	if err != nil {
		p.logger.Error("dropping undecodable job", "error", err)
		p.metrics.ObserveJob("malformed", time.Since(start).Seconds())
		return nil
	}

	reply, err := p.handler.Handle(ctx, j.Message)
	switch {
	case errors.Is(err, conversation.ErrMalformedMessage):
		p.logger.Warn("dropping malformed message", "error", err, "job_id", j.ID)
		p.metrics.ObserveJob("malformed", time.Since(start).Seconds())
		return nil
	case err != nil:
		p.logger.Error("inbound job failed", "error", err, "job_id", j.ID)
		p.metrics.ObserveJob("failed", time.Since(start).Seconds())
		return fmt.Errorf("dispatch: job %s: %w", j.ID, err)
	}

	if reply != nil && !reply.Skipped && reply.Text != "" {
		p.sendReply(ctx, j, reply)
	}

	outcome := "replied"
	switch {
	case reply != nil && reply.Duplicate:
		outcome = "duplicate"
	case reply == nil || reply.Skipped:
		outcome = "skipped"
	}
	p.metrics.ObserveJob(outcome, time.Since(start).Seconds())
	p.logger.Debug("inbound job processed", "job_id", j.ID, "outcome", outcome)
	return nil
}

func (p *Processor) sendReply(ctx context.Context, j job, reply *assistant.Reply) {
	sendCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	out := OutboundReply{
		To:               reply.To,
		Body:             reply.Text,
		SendAudio:        reply.SendAudio,
		InReplyTo:        j.Message.ID,
		SuggestedActions: reply.SuggestedActions,
	}
	if err := p.sender.SendReply(sendCtx, out); err != nil {
		p.logger.Error("failed to send reply", "error", err, "job_id", j.ID, "to", out.To)
		p.metrics.ObserveReply(out.SendAudio, "error")
		return
	}
	p.metrics.ObserveReply(out.SendAudio, "ok")
}
