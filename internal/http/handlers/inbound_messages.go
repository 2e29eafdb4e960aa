package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/pkg/logging"
)

const maxInboundBodyBytes = 64 << 10

// MessagePublisher hands inbound messages to the bus.
type MessagePublisher interface {
	Enqueue(ctx context.Context, jobID string, msg conversation.Message) (string, error)
}

// InboundMessagesHandler accepts messages from the gateway and queues them.
type InboundMessagesHandler struct {
	publisher MessagePublisher
	logger    *logging.Logger
}

func NewInboundMessagesHandler(publisher MessagePublisher, logger *logging.Logger) *InboundMessagesHandler {
	if publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InboundMessagesHandler{publisher: publisher, logger: logger}
}

// PostMessage handles POST /conversations/message.
func (h *InboundMessagesHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var msg conversation.Message
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInboundBodyBytes))
	if err := dec.Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The key names the message: a retried POST carries the same id and is
	// applied once downstream.
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if msg.ID == "" {
		msg.ID = key
	}
	if key == "" {
		key = msg.ID
	}

	jobID, err := h.publisher.Enqueue(r.Context(), key, msg)
	switch {
	case errors.Is(err, conversation.ErrMalformedMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to enqueue inbound message", "error", err, "from", msg.From)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":       jobID,
		"conversation": msg.ConversationKey(),
	})
}
