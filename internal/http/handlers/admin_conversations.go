package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/pkg/logging"
)

const defaultActivityLookback = 24 * time.Hour

// ConversationReader is the read side of the conversation engine.
type ConversationReader interface {
	Get(ctx context.Context, phone string) (*conversation.Conversation, error)
	FindByActivityWindow(ctx context.Context, start, end time.Time) ([]*conversation.Conversation, error)
	Summarize(conv *conversation.Conversation) string
}

// AdminConversationsHandler serves conversation state to operators.
type AdminConversationsHandler struct {
	reader ConversationReader
	logger *logging.Logger
	now    func() time.Time
}

func NewAdminConversationsHandler(reader ConversationReader, logger *logging.Logger) *AdminConversationsHandler {
	if reader == nil {
		panic("handlers: conversation reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{reader: reader, logger: logger, now: time.Now}
}

// ConversationListItem is one row of the activity listing.
type ConversationListItem struct {
	ID             string    `json:"id"`
	PhoneNumber    string    `json:"phone_number"`
	IsGroup        bool      `json:"is_group"`
	GroupName      string    `json:"group_name,omitempty"`
	ClientName     string    `json:"client_name,omitempty"`
	CurrentTopic   string    `json:"current_topic,omitempty"`
	EmotionalState string    `json:"emotional_state"`
	Urgency        string    `json:"urgency"`
	MessageCount   int       `json:"message_count"`
	LastActivity   time.Time `json:"last_activity"`
}

type ConversationsListResponse struct {
	Start         time.Time              `json:"start"`
	End           time.Time              `json:"end"`
	Conversations []ConversationListItem `json:"conversations"`
}

// GetConversation handles GET /admin/conversations/{phone}.
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// GetSummary handles GET /admin/conversations/{phone}/summary.
func (h *AdminConversationsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"phone_number": conv.PhoneNumber,
		"summary":      h.reader.Summarize(conv),
	})
}

// ListConversations handles GET /admin/conversations?start=&end= with RFC 3339
// bounds. Missing bounds default to the last 24 hours.
func (h *AdminConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	end := h.now().UTC()
	start := end.Add(-defaultActivityLookback)

	q := r.URL.Query()
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC 3339")
			return
		}
		start = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC 3339")
			return
		}
		end = t
	}

	convs, err := h.reader.FindByActivityWindow(r.Context(), start, end)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	items := make([]ConversationListItem, 0, len(convs))
	for _, c := range convs {
		items = append(items, ConversationListItem{
			ID:             c.ID,
			PhoneNumber:    c.PhoneNumber,
			IsGroup:        c.IsGroup,
			GroupName:      c.GroupName,
			ClientName:     c.Context.ClientName,
			CurrentTopic:   c.Context.CurrentTopic,
			EmotionalState: string(c.Context.EmotionalState),
			Urgency:        string(c.Context.Urgency),
			MessageCount:   len(c.Messages),
			LastActivity:   c.LastActivity,
		})
	}
	writeJSON(w, http.StatusOK, ConversationsListResponse{Start: start, End: end, Conversations: items})
}

func (h *AdminConversationsHandler) load(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	phone := chi.URLParam(r, "phone")
	conv, err := h.reader.Get(r.Context(), phone)
	switch {
	case errors.Is(err, conversation.ErrMalformedMessage):
		writeError(w, http.StatusBadRequest, "phone is required")
		return nil, false
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	case err != nil:
		h.logger.Error("failed to load conversation", "error", err, "phone", phone)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return nil, false
	}
	return conv, true
}
