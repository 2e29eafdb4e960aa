package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps encoded documents in process memory. Used by tests and
// single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, phone string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("load", err)
	}
	s.mu.RLock()
	data, ok := s.docs[phone]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	conv, err := decodeDocument(data)
	if err != nil {
		return nil, storageErr("load", err)
	}
	return conv, nil
}

func (s *MemoryStore) Insert(ctx context.Context, conv *Conversation) error {
	if err := ctx.Err(); err != nil {
		return storageErr("insert", err)
	}
	data, err := encodeDocument(conv)
	if err != nil {
		return storageErr("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[conv.PhoneNumber]; exists {
		return ErrDuplicateKey
	}
	s.docs[conv.PhoneNumber] = data
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, conv *Conversation, prevVersion int64) error {
	if err := ctx.Err(); err != nil {
		return storageErr("save", err)
	}
	data, err := encodeDocument(conv)
	if err != nil {
		return storageErr("save", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.docs[conv.PhoneNumber]
	if !exists {
		return ErrNotFound
	}
	current, err := decodeDocument(stored)
	if err != nil {
		return storageErr("save", err)
	}
	if current.Version != prevVersion {
		return ErrConflict
	}
	s.docs[conv.PhoneNumber] = data
	return nil
}

func (s *MemoryStore) FindByActivity(ctx context.Context, start, end time.Time) ([]*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("find by activity", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conversation
	for _, data := range s.docs {
		conv, err := decodeDocument(data)
		if err != nil {
			return nil, storageErr("find by activity", err)
		}
		if inWindow(conv.LastActivity, start, end) {
			out = append(out, conv)
		}
	}
	return out, nil
}
