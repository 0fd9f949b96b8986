// Package store holds conversation history keyed by thread identifier.
package store

import (
	"sync"

	"github.com/capitalize-ai/realtime-relay/internal/model"
)

// ConversationStore is the history contract the chat pipeline depends on.
type ConversationStore interface {
	// History returns every message of the thread in insertion order.
	History(threadID string) []model.Message

	// AppendTurn appends user then assistant as one atomic step.
	AppendTurn(threadID string, user, assistant model.Message)

	// RecentWindow returns at most the last n messages of the thread.
	RecentWindow(threadID string, n int) []model.Message
}

// MemoryStore keeps threads in process memory. History is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]model.Message
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]model.Message),
	}
}

// History returns a copy of the thread, or an empty slice if unseen.
func (s *MemoryStore) History(threadID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.threads[threadID])
}

// AppendTurn appends one user/assistant pair, creating the thread if needed.
func (s *MemoryStore) AppendTurn(threadID string, user, assistant model.Message) {
	s.mu.Lock()
	s.threads[threadID] = append(s.threads[threadID], user, assistant)
	s.mu.Unlock()
}

// RecentWindow returns the last n messages in order. n <= 0 returns none.
func (s *MemoryStore) RecentWindow(threadID string, n int) []model.Message {
	if n <= 0 {
		return []model.Message{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.threads[threadID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return clone(msgs)
}

// Threads reports how many threads have at least one turn.
func (s *MemoryStore) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.threads)
}

func clone(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}
