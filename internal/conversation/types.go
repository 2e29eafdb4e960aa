package conversation

import (
	"strings"
	"time"
)

// Intent labels produced by the classifier.
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentArtRequest       Intent = "art_request"
	IntentPromotionRequest Intent = "promotion_request"
	IntentUrgentRequest    Intent = "urgent_request"
	IntentComplaint        Intent = "complaint"
	IntentThankYou         Intent = "thank_you"
	IntentGoodbye          Intent = "goodbye"
	IntentQuestion         Intent = "question"
	IntentGeneral          Intent = "general"
)

// EmotionalState is the coarse affect of the most recent message.
type EmotionalState string

const (
	EmotionPositive EmotionalState = "positive"
	EmotionNegative EmotionalState = "negative"
	EmotionNeutral  EmotionalState = "neutral"
	EmotionUrgent   EmotionalState = "urgent"
)

// Valid reports whether s is one of the known states.
func (s EmotionalState) Valid() bool {
	switch s {
	case EmotionPositive, EmotionNegative, EmotionNeutral, EmotionUrgent:
		return true
	}
	return false
}

// Urgency is the time-sensitivity of the most recent message.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNormal, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// MessageType is the media kind of an inbound bus record.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
)

// Message is a record delivered by the message bus.
type Message struct {
	ID            string      `json:"id"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	Body          string      `json:"body"`
	Timestamp     time.Time   `json:"timestamp"`
	Type          MessageType `json:"type"`
	IsGroup       bool        `json:"isGroup"`
	GroupID       string      `json:"groupId,omitempty"`
	SenderName    string      `json:"senderName,omitempty"`
	QuotedMessage string      `json:"quotedMessage,omitempty"`
}

// Validate rejects records missing the fields the engine depends on.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return malformed("from is required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return malformed("body is required")
	}
	switch m.Type {
	case "", MessageText, MessageImage, MessageAudio, MessageVideo, MessageDocument, MessageLocation, MessageContact:
	default:
		return malformed("unknown message type " + string(m.Type))
	}
	return nil
}

// ConversationKey is the phone number (or group id) the message belongs to.
func (m Message) ConversationKey() string {
	if m.IsGroup && strings.TrimSpace(m.GroupID) != "" {
		return strings.TrimSpace(m.GroupID)
	}
	return strings.TrimSpace(m.From)
}

// Response is the outbound reply paired with an inbound message.
type Response struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Conversation is the persisted aggregate for one counterparty.
type Conversation struct {
	ID           string              `json:"id"`
	PhoneNumber  string              `json:"phoneNumber"`
	IsGroup      bool                `json:"isGroup"`
	GroupID      string              `json:"groupId,omitempty"`
	GroupName    string              `json:"groupName,omitempty"`
	Messages     []Message           `json:"messages"`
	LastActivity time.Time           `json:"lastActivity"`
	Context      ConversationContext `json:"context"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	// Version increases by one on every save.
	Version int64 `json:"version"`
}

// HasMessage reports whether a retained message carries id.
func (c *Conversation) HasMessage(id string) bool {
	if c == nil || strings.TrimSpace(id) == "" {
		return false
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// ConversationContext is the derived state used to build prompts.
type ConversationContext struct {
	ClientName          string            `json:"clientName,omitempty"`
	BusinessType        string            `json:"businessType,omitempty"`
	Preferences         ClientPreferences `json:"preferences"`
	ConversationHistory []string          `json:"conversationHistory"`
	CurrentTopic        string            `json:"currentTopic"`
	TopicStartTime      time.Time         `json:"topicStartTime"`
	TopicMessages       []string          `json:"topicMessages"`
	EmotionalState      EmotionalState    `json:"emotionalState"`
	Urgency             Urgency           `json:"urgency"`
	LastIntent          Intent            `json:"lastIntent"`
	ConversationFlow    []FlowEntry       `json:"conversationFlow"`
	ContextWindow       []WindowEntry     `json:"contextWindow"`
}

// ClientPreferences accumulates what the client has told us they like.
type ClientPreferences struct {
	PreferredColors []string `json:"preferredColors,omitempty"`
}

// FlowEntry records one processed message/response pair.
type FlowEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Intent     Intent    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Response   string    `json:"response"`
	Entities   Entities  `json:"entities"`
}

// WindowEntry is a remembered snippet ranked by importance.
type WindowEntry struct {
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Importance int       `json:"importance"`
}

// Entities are the structured mentions extracted from a message body.
type Entities struct {
	Colors   []string `json:"colors,omitempty"`
	Dates    []string `json:"dates,omitempty"`
	Sizes    []string `json:"sizes,omitempty"`
	Products []string `json:"products,omitempty"`
}

// Empty reports whether no category was extracted.
func (e Entities) Empty() bool {
	return len(e.Colors) == 0 && len(e.Dates) == 0 && len(e.Sizes) == 0 && len(e.Products) == 0
}

func (e Entities) clone() Entities {
	return Entities{
		Colors:   cloneStrings(e.Colors),
		Dates:    cloneStrings(e.Dates),
		Sizes:    cloneStrings(e.Sizes),
		Products: cloneStrings(e.Products),
	}
}

// Limits bound the sequences kept on a conversation.
type Limits struct {
	MaxMessages      int
	MaxHistory       int
	MaxFlow          int
	MaxContextWindow int
	TopicTimeout     time.Duration
}

// DefaultLimits mirrors the production deployment.
func DefaultLimits() Limits {
	return Limits{
		MaxMessages:      50,
		MaxHistory:       20,
		MaxFlow:          10,
		MaxContextWindow: 20,
		TopicTimeout:     30 * time.Minute,
	}
}

func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxMessages <= 0 {
		l.MaxMessages = d.MaxMessages
	}
	if l.MaxHistory <= 0 {
		l.MaxHistory = d.MaxHistory
	}
	if l.MaxFlow <= 0 {
		l.MaxFlow = d.MaxFlow
	}
	if l.MaxContextWindow <= 0 {
		l.MaxContextWindow = d.MaxContextWindow
	}
	if l.TopicTimeout <= 0 {
		l.TopicTimeout = d.TopicTimeout
	}
	return l
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	out.Context = c.Context.clone()
	return &out
}

func (cc ConversationContext) clone() ConversationContext {
	out := cc
	out.Preferences.PreferredColors = cloneStrings(cc.Preferences.PreferredColors)
	out.ConversationHistory = cloneStrings(cc.ConversationHistory)
	out.TopicMessages = cloneStrings(cc.TopicMessages)
	if cc.ConversationFlow != nil {
		out.ConversationFlow = make([]FlowEntry, len(cc.ConversationFlow))
		for i, f := range cc.ConversationFlow {
			f.Entities = f.Entities.clone()
			out.ConversationFlow[i] = f
		}
	}
	if cc.ContextWindow != nil {
		out.ContextWindow = append([]WindowEntry(nil), cc.ContextWindow...)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// keepLast trims s to its last n elements (FIFO eviction).
func keepLast[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return append([]T(nil), s[len(s)-n:]...)
}
