package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DocumentStore persists one document per phone number. Implementations
// must return ErrNotFound, ErrDuplicateKey, or an error wrapping
// ErrStorageUnavailable so the engine can tell the cases apart.
type DocumentStore interface {
	// Load returns ErrNotFound when phone has no document.
	Load(ctx context.Context, phone string) (*Conversation, error)
	// Insert fails with ErrDuplicateKey when phone already has a document.
	Insert(ctx context.Context, conv *Conversation) error
	// Save replaces an existing document whose stored version is
	// prevVersion. ErrNotFound when there is none, ErrConflict when another
	// writer saved first.
	Save(ctx context.Context, conv *Conversation, prevVersion int64) error
	// FindByActivity returns documents whose lastActivity is in [start, end].
	FindByActivity(ctx context.Context, start, end time.Time) ([]*Conversation, error)
}

var errInvalidDocument = errors.New("conversation: invalid document")

func encodeDocument(conv *Conversation) ([]byte, error) {
	if err := validateDocument(conv); err != nil {
		return nil, err
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to marshal document: %w", err)
	}
	return data, nil
}

func decodeDocument(data []byte) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode document: %w", err)
	}
	if err := validateDocument(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// validateDocument checks the fields every reader relies on.
func validateDocument(conv *Conversation) error {
	switch {
	case conv == nil:
		return fmt.Errorf("%w: nil conversation", errInvalidDocument)
	case strings.TrimSpace(conv.ID) == "":
		return fmt.Errorf("%w: id is required", errInvalidDocument)
	case strings.TrimSpace(conv.PhoneNumber) == "":
		return fmt.Errorf("%w: phone number is required", errInvalidDocument)
	}
	cc := conv.Context
	if cc.EmotionalState != "" && !cc.EmotionalState.Valid() {
		return fmt.Errorf("%w: unknown emotional state %q", errInvalidDocument, cc.EmotionalState)
	}
	if cc.Urgency != "" && !cc.Urgency.Valid() {
		return fmt.Errorf("%w: unknown urgency %q", errInvalidDocument, cc.Urgency)
	}
	for _, e := range cc.ContextWindow {
		if e.Importance < minImportance || e.Importance > maxImportance {
			return fmt.Errorf("%w: importance %d out of range", errInvalidDocument, e.Importance)
		}
	}
	return nil
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
