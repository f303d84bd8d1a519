package history

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the last MaxTurns turns of every conversation in memory.
type MemoryStore struct {
	max int

	mu    sync.Mutex
	convs map[string][]Turn
}

// NewMemoryStore creates a MemoryStore. maxTurns <= 0 selects DefaultMaxTurns.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{max: maxTurns, convs: make(map[string][]Turn)}
}

// Append implements Store. The oldest turn is evicted once the window is full.
func (m *MemoryStore) Append(_ context.Context, conversationID string, t Turn) error {
	if conversationID == "" {
		return ErrEmptyConversation
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := append(m.convs[conversationID], t)
	if len(ts) > m.max {
		ts = append(ts[:0:0], ts[len(ts)-m.max:]...)
	}
	m.convs[conversationID] = ts
	return nil
}

// Recent implements Store.
func (m *MemoryStore) Recent(_ context.Context, conversationID string, n int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tail(m.convs[conversationID], n), nil
}

// Forget implements Store.
func (m *MemoryStore) Forget(_ context.Context, conversationID string) error {
	m.mu.Lock()
	delete(m.convs, conversationID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of conversations with a live window.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.convs)
}

func (m *MemoryStore) has(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.convs[conversationID]
	return ok
}
