package assistant

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/pkg/logging"
)

const (
	fallbackConfidence   = 0.3
	defaultAudioChance   = 0.2
	recentHistoryEntries = 5
)

var defaultFallbackReplies = []string{
	"Ops, tive um pequeno problema técnico aqui! 😅 Pode repetir?",
	"Desculpa, não entendi bem. Pode explicar de outra forma?",
	"Hmm, deixa eu processar isso melhor... Pode reformular?",
	"Putz, travou aqui! 😂 Pode tentar de novo?",
}

// ConversationEngine is the slice of the conversation engine the responder drives.
type ConversationEngine interface {
	GetOrCreate(ctx context.Context, phone string, isGroup bool, groupID, groupName string) (*conversation.Conversation, error)
	ApplyInboundMessage(ctx context.Context, conv *conversation.Conversation, msg conversation.Message, resp *conversation.Response) (*conversation.Conversation, error)
	Classify(body string) conversation.Classification
}

// Reply is the outcome of handling one inbound message. Skipped marks group
// chatter the assistant does not answer; the message is still recorded.
// Duplicate marks a redelivered message that was already applied.
type Reply struct {
	To               string
	Text             string
	Confidence       float64
	SendAudio        bool
	Fallback         bool
	Skipped          bool
	Duplicate        bool
	SuggestedActions []string
	Conversation     *conversation.Conversation
}

type ResponderOption func(*Responder)

func WithPersona(p Persona) ResponderOption {
	return func(r *Responder) {
		r.persona = p
	}
}

// WithRand injects the source used for fallback selection and audio sampling.
func WithRand(rng *rand.Rand) ResponderOption {
	return func(r *Responder) {
		if rng != nil {
			r.rng = rng
		}
	}
}

func WithAudioChance(p float64) ResponderOption {
	return func(r *Responder) {
		r.audioChance = max(0, min(p, 1))
	}
}

func WithFallbackReplies(replies []string) ResponderOption {
	return func(r *Responder) {
		if len(replies) > 0 {
			r.fallbacks = append([]string(nil), replies...)
		}
	}
}

func WithGenerationLimits(maxTokens int32, temperature float32) ResponderOption {
	return func(r *Responder) {
		r.maxTokens = maxTokens
		r.temperature = temperature
	}
}

// Responder turns an inbound message into a reply and records both in the
// conversation.
type Responder struct {
	engine      ConversationEngine
	completer   Completer
	logger      *logging.Logger
	persona     Persona
	audioChance float64
	fallbacks   []string
	maxTokens   int32
	temperature float32

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResponder wires a responder. A nil completer answers every message with
// a fallback reply.
func NewResponder(engine ConversationEngine, completer Completer, logger *logging.Logger, opts ...ResponderOption) *Responder {
	if engine == nil {
		panic("assistant: conversation engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Responder{
		engine:      engine,
		completer:   completer,
		logger:      logger,
		persona:     DefaultPersona("", ""),
		audioChance: defaultAudioChance,
		fallbacks:   defaultFallbackReplies,
		maxTokens:   1000,
		temperature: 0.7,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Handle answers msg. Malformed messages are rejected before any state change;
// completer failures degrade to a fallback reply; storage failures are returned.
func (r *Responder) Handle(ctx context.Context, msg conversation.Message) (*Reply, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	key := msg.ConversationKey()
	conv, err := r.engine.GetOrCreate(ctx, key, msg.IsGroup, msg.GroupID, "")
	if err != nil {
		return nil, err
	}
	if conv.HasMessage(msg.ID) {
		r.logger.Info("ignoring redelivered message", "conversation_id", conv.ID, "message_id", msg.ID)
		return duplicateReply(key, conv), nil
	}

	if msg.IsGroup && !r.isGroupRequest(msg.Body) {
		updated, err := r.engine.ApplyInboundMessage(ctx, conv, msg, nil)
		if errors.Is(err, conversation.ErrDuplicateMessage) {
			return duplicateReply(key, conv), nil
		}
		if err != nil {
			return nil, err
		}
		return &Reply{To: key, Skipped: true, Conversation: updated}, nil
	}

	reply := r.generate(ctx, conv, msg)
	reply.To = key

	updated, err := r.engine.ApplyInboundMessage(ctx, conv, msg, &conversation.Response{
		Text:       reply.Text,
		Confidence: reply.Confidence,
	})
	if errors.Is(err, conversation.ErrDuplicateMessage) {
		// A concurrent delivery of the same message won; its reply stands.
		return duplicateReply(key, conv), nil
	}
	if err != nil {
		return nil, err
	}
	reply.Conversation = updated
	return reply, nil
}

func duplicateReply(to string, conv *conversation.Conversation) *Reply {
	return &Reply{To: to, Skipped: true, Duplicate: true, Conversation: conv}
}

func (r *Responder) isGroupRequest(body string) bool {
	switch r.engine.Classify(body).Intent {
	case conversation.IntentArtRequest, conversation.IntentPromotionRequest:
		return true
	}
	return false
}

func (r *Responder) generate(ctx context.Context, conv *conversation.Conversation, msg conversation.Message) *Reply {
	if r.completer == nil {
		return r.fallbackReply()
	}

	recent := conv.Context.ConversationHistory
	if len(recent) > recentHistoryEntries {
		recent = recent[len(recent)-recentHistoryEntries:]
	}
	prompt := BuildPrompt(r.persona, conversation.Summarize(conv), recent, msg.Body, msg.IsGroup)

	out, err := r.completer.Complete(ctx, Request{
		System:      r.persona.SystemPrompt(),
		Prompt:      prompt,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		r.logger.Error("failed to generate reply",
			"conversation_id", conv.ID,
			"error", err,
		)
		return r.fallbackReply()
	}

	confidence := out.Confidence
	if confidence <= 0 {
		confidence = 0.8
	}
	return &Reply{
		Text:             out.Text,
		Confidence:       confidence,
		SendAudio:        r.sample() < r.audioChance,
		SuggestedActions: SuggestedActions(out.Text),
	}
}

func (r *Responder) fallbackReply() *Reply {
	r.mu.Lock()
	text := r.fallbacks[r.rng.Intn(len(r.fallbacks))]
	r.mu.Unlock()
	return &Reply{Text: text, Confidence: fallbackConfidence, Fallback: true}
}

func (r *Responder) sample() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// SuggestedActions derives follow-up actions from the reply text.
func SuggestedActions(text string) []string {
	lower := strings.ToLower(text)
	var actions []string
	if strings.Contains(lower, "criar") || strings.Contains(lower, "fazer") {
		actions = append(actions, "create_content")
	}
	if strings.Contains(lower, "lembrar") || strings.Contains(lower, "lembrete") {
		actions = append(actions, "set_reminder")
	}
	if strings.Contains(lower, "perguntar") || strings.Contains(lower, "questionar") {
		actions = append(actions, "ask_question")
	}
	return actions
}
