package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// MemoryStore is an in-memory chat.MessageStore for the local run mode and
// for tests. Messages are held in insertion order, which doubles as
// created-at order for a single process.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []*chat.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save records a copy of the message and returns its new ID.
func (s *MemoryStore) Save(_ context.Context, msg *chat.Message) (string, error) {
	stored := *msg
	stored.ID = uuid.NewString()

	s.mu.Lock()
	s.messages = append(s.messages, &stored)
	s.mu.Unlock()

	return stored.ID, nil
}

// FetchHistory returns both directions of the conversation between two
// users in insertion order, capped at limit.
func (s *MemoryStore) FetchHistory(_ context.Context, userA, userB chat.UserID, limit int) ([]*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var history []*chat.Message
	for _, msg := range s.messages {
		if len(history) == limit {
			break
		}
		direct := msg.SenderID == userA && msg.ReceiverID == userB
		reverse := msg.SenderID == userB && msg.ReceiverID == userA
		if direct || reverse {
			copied := *msg
			history = append(history, &copied)
		}
	}
	return history, nil
}

// Len reports the total number of stored messages.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
