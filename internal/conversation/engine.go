package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

const (
	defaultConfidence    = 0.8
	defaultAssistantName = "Heitor"
	defaultSaveAttempts  = 8
	conflictBackoff      = 5 * time.Millisecond
)

// EngineOption customizes an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	limits        Limits
	vocab         Vocabulary
	now           func() time.Time
	newID         func() string
	metrics       *metrics.EngineMetrics
	tracer        trace.Tracer
	assistantName string
	saveAttempts  int
}

// WithLimits overrides the sequence bounds and topic timeout.
func WithLimits(l Limits) EngineOption {
	return func(cfg *engineConfig) {
		cfg.limits = l
	}
}

// WithVocabulary swaps the keyword tables used by the classifier, scorer
// and segmenter.
func WithVocabulary(v Vocabulary) EngineOption {
	return func(cfg *engineConfig) {
		cfg.vocab = v
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(cfg *engineConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithIDGenerator injects the conversation id generator.
func WithIDGenerator(fn func() string) EngineOption {
	return func(cfg *engineConfig) {
		if fn != nil {
			cfg.newID = fn
		}
	}
}

func WithMetrics(m *metrics.EngineMetrics) EngineOption {
	return func(cfg *engineConfig) {
		cfg.metrics = m
	}
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(cfg *engineConfig) {
		if t != nil {
			cfg.tracer = t
		}
	}
}

// WithAssistantName sets the speaker label used for outbound transcript lines.
func WithAssistantName(name string) EngineOption {
	return func(cfg *engineConfig) {
		if strings.TrimSpace(name) != "" {
			cfg.assistantName = strings.TrimSpace(name)
		}
	}
}

// WithSaveAttempts bounds how many times a message is reapplied after losing
// a version race to another writer.
func WithSaveAttempts(n int) EngineOption {
	return func(cfg *engineConfig) {
		if n > 0 {
			cfg.saveAttempts = n
		}
	}
}

// Engine turns inbound messages into persisted conversation state. It is
// safe for concurrent use. Mutations are serialized per conversation key
// inside one process, and versioned saves keep engines in different
// processes from overwriting each other.
type Engine struct {
	store         DocumentStore
	logger        *logging.Logger
	limits        Limits
	classifier    *Classifier
	scorer        *ImportanceScorer
	segmenter     *TopicSegmenter
	window        *WindowManager
	locks         *keyLocker
	now           func() time.Time
	newID         func() string
	metrics       *metrics.EngineMetrics
	tracer        trace.Tracer
	assistantName string
	saveAttempts  int
}

// NewEngine wires the engine around a document store.
func NewEngine(store DocumentStore, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: document store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := engineConfig{
		limits:        DefaultLimits(),
		vocab:         DefaultVocabulary(),
		now:           time.Now,
		newID:         uuid.NewString,
		assistantName: defaultAssistantName,
		saveAttempts:  defaultSaveAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("heitor.internal.conversation")
	}
	limits := cfg.limits.normalized()

	e := &Engine{
		store:         store,
		logger:        logger,
		limits:        limits,
		classifier:    NewClassifier(cfg.vocab),
		scorer:        NewImportanceScorer(cfg.vocab),
		window:        NewWindowManager(limits.MaxContextWindow),
		locks:         newKeyLocker(),
		now:           cfg.now,
		newID:         cfg.newID,
		metrics:       cfg.metrics,
		tracer:        cfg.tracer,
		assistantName: cfg.assistantName,
		saveAttempts:  cfg.saveAttempts,
	}
	e.segmenter = NewTopicSegmenter(cfg.vocab, limits.TopicTimeout, e.logFinalizedTopic)
	return e
}

// Get returns the conversation for phone or ErrNotFound.
func (e *Engine) Get(ctx context.Context, phone string) (*Conversation, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, malformed("phone number is required")
	}
	start := time.Now()
	conv, err := e.store.Load(ctx, phone)
	e.observeStore("load", start, err)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Create persists a fresh conversation; ErrDuplicateKey when phone is taken.
func (e *Engine) Create(ctx context.Context, phone string, isGroup bool, groupID, groupName string) (*Conversation, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, malformed("phone number is required")
	}
	now := e.now().UTC()
	conv := &Conversation{
		ID:           e.newID(),
		PhoneNumber:  phone,
		IsGroup:      isGroup,
		GroupID:      groupID,
		GroupName:    groupName,
		Messages:     []Message{},
		LastActivity: now,
		Context: ConversationContext{
			ConversationHistory: []string{},
			TopicStartTime:      now,
			TopicMessages:       []string{},
			EmotionalState:      EmotionNeutral,
			Urgency:             UrgencyNormal,
			ConversationFlow:    []FlowEntry{},
			ContextWindow:       []WindowEntry{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	start := time.Now()
	err := e.store.Insert(ctx, conv)
	e.observeStore("insert", start, err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("conversation created", "conversation_id", conv.ID, "phone", phone, "is_group", isGroup)
	return conv.Clone(), nil
}

// GetOrCreate loads the conversation for phone, creating it when absent.
// A lost creation race resolves to the winner's conversation.
func (e *Engine) GetOrCreate(ctx context.Context, phone string, isGroup bool, groupID, groupName string) (*Conversation, error) {
	conv, err := e.Get(ctx, phone)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	conv, err = e.Create(ctx, phone, isGroup, groupID, groupName)
	if errors.Is(err, ErrDuplicateKey) {
		return e.Get(ctx, phone)
	}
	return conv, err
}

// Process resolves the conversation a message belongs to and applies it.
func (e *Engine) Process(ctx context.Context, msg Message, resp *Response) (*Conversation, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	conv, err := e.GetOrCreate(ctx, msg.ConversationKey(), msg.IsGroup, msg.GroupID, "")
	if err != nil {
		return nil, err
	}
	return e.ApplyInboundMessage(ctx, conv, msg, resp)
}

// ApplyInboundMessage folds msg (and the paired response, when present) into
// the conversation and persists it. The latest stored state is reloaded under
// the per-key lock, so conv only identifies the conversation. A save that
// loses a version race reloads and reapplies. On any error the stored state
// is left untouched. A message whose id is already on the conversation
// returns ErrDuplicateMessage.
func (e *Engine) ApplyInboundMessage(ctx context.Context, conv *Conversation, msg Message, resp *Response) (*Conversation, error) {
	if err := msg.Validate(); err != nil {
		e.metrics.ObserveApplied("", "malformed")
		return nil, err
	}
	phone := msg.ConversationKey()
	if conv != nil && conv.PhoneNumber != "" {
		phone = conv.PhoneNumber
	}

	ctx, span := e.tracer.Start(ctx, "conversation.apply", trace.WithAttributes(attribute.String("phone", phone)))
	defer span.End()

	unlock := e.locks.Lock(phone)
	defer unlock()

	for attempt := 1; ; attempt++ {
		next, intent, err := e.applyOnce(ctx, phone, msg, resp)
		if err == nil {
			span.SetAttributes(attribute.String("intent", string(intent)), attribute.Int("attempts", attempt))
			e.metrics.ObserveApplied(string(intent), "ok")
			return next, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= e.saveAttempts {
			span.RecordError(err)
			e.metrics.ObserveApplied(string(intent), outcomeFor(err))
			if errors.Is(err, ErrConflict) {
				e.logger.Warn("conversation save kept conflicting", "phone", phone, "attempts", attempt)
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			e.metrics.ObserveApplied(string(intent), "conflict")
			return nil, storageErr("save", ctx.Err())
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
}

// applyOnce loads the stored document, applies msg and saves it against the
// loaded version.
func (e *Engine) applyOnce(ctx context.Context, phone string, msg Message, resp *Response) (*Conversation, Intent, error) {
	current, err := e.Get(ctx, phone)
	if err != nil {
		return nil, "", err
	}
	if current.HasMessage(msg.ID) {
		return nil, "", ErrDuplicateMessage
	}

	next := current.Clone()
	intent := e.apply(next, msg, resp, e.now().UTC())
	next.Version = current.Version + 1

	start := time.Now()
	err = e.store.Save(ctx, next, current.Version)
	e.observeStore("save", start, err)
	if err != nil {
		return nil, intent, err
	}
	return next.Clone(), intent, nil
}

// FindByActivityWindow returns conversations active within [start, end],
// most recently active first.
func (e *Engine) FindByActivityWindow(ctx context.Context, start, end time.Time) ([]*Conversation, error) {
	if end.Before(start) {
		return nil, nil
	}
	began := time.Now()
	convs, err := e.store.FindByActivity(ctx, start, end)
	e.observeStore("find_by_activity", began, err)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].LastActivity.Equal(convs[j].LastActivity) {
			return convs[i].LastActivity.After(convs[j].LastActivity)
		}
		return convs[i].PhoneNumber < convs[j].PhoneNumber
	})
	return convs, nil
}

// Summarize renders the prompt context block for conv.
func (e *Engine) Summarize(conv *Conversation) string {
	return Summarize(conv)
}

// Classify exposes the engine's classifier for collaborators that need the
// intent of a message before it is applied.
func (e *Engine) Classify(body string) Classification {
	return e.classifier.Classify(body)
}

// apply mutates conv in place and returns the message intent. It never fails.
func (e *Engine) apply(conv *Conversation, msg Message, resp *Response, now time.Time) Intent {
	body := msg.Body
	c := e.classifier.Classify(body)
	cc := &conv.Context

	cc.EmotionalState = c.EmotionalState
	if e.segmenter.Advance(cc, body, c.Intent, now) {
		e.metrics.ObserveTopicChange()
	}

	importance := e.scorer.Score(body, c.Intent)
	e.metrics.ObserveImportance(importance)
	e.window.Insert(cc, body, importance, now)

	confidence := defaultConfidence
	var responseText string
	if resp != nil {
		responseText = resp.Text
		if resp.Confidence > 0 {
			confidence = resp.Confidence
		}
	}
	cc.ConversationFlow = keepLast(append(cc.ConversationFlow, FlowEntry{
		Timestamp:  now,
		Intent:     c.Intent,
		Confidence: confidence,
		Response:   responseText,
		Entities:   c.Entities.clone(),
	}), e.limits.MaxFlow)

	cc.LastIntent = c.Intent
	cc.Urgency = c.Urgency

	cc.ConversationHistory = append(cc.ConversationHistory, msg.From+": "+body)
	if responseText != "" {
		cc.ConversationHistory = append(cc.ConversationHistory, e.assistantName+": "+responseText)
	}
	cc.ConversationHistory = keepLast(cc.ConversationHistory, e.limits.MaxHistory)

	mergeClientInfo(cc, c)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.Type == "" {
		msg.Type = MessageText
	}
	conv.Messages = keepLast(append(conv.Messages, msg), e.limits.MaxMessages)
	conv.LastActivity = now
	conv.UpdatedAt = now
	return c.Intent
}

// mergeClientInfo applies hints under the first-observed-wins rule and grows
// the color preference set.
func mergeClientInfo(cc *ConversationContext, c Classification) {
	if cc.ClientName == "" && c.ClientNameHint != "" {
		cc.ClientName = c.ClientNameHint
	}
	if cc.BusinessType == "" && c.BusinessTypeHint != "" {
		cc.BusinessType = c.BusinessTypeHint
	}
	for _, color := range c.Entities.Colors {
		if !containsString(cc.Preferences.PreferredColors, color) {
			cc.Preferences.PreferredColors = append(cc.Preferences.PreferredColors, color)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (e *Engine) logFinalizedTopic(cc *ConversationContext) {
	e.logger.Info("topic finalized",
		"topic", cc.CurrentTopic,
		"message_count", len(cc.TopicMessages),
		"duration", e.now().Sub(cc.TopicStartTime).String(),
	)
}

func (e *Engine) observeStore(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrConflict) {
		err = nil
	}
	e.metrics.ObserveStoreOp(op, start, err)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_error"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDuplicateMessage):
		return "duplicate"
	default:
		return "error"
	}
}
