package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"support-agent/internal/domain"
)

// MemoryStore keeps conversations in process memory. States are copied on
// the way in and out so callers never share turn slices with the store.
// Puts are version-checked like the durable stores.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]domain.ConversationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]domain.ConversationState)}
}

func (m *MemoryStore) Get(_ context.Context, sessionKey string) (domain.ConversationState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[sessionKey]
	if !ok {
		return domain.ConversationState{}, false, nil
	}
	return st.Clone(), true, nil
}

func (m *MemoryStore) Put(_ context.Context, state domain.ConversationState) error {
	if strings.TrimSpace(state.SessionKey) == "" {
		return errors.New("repository: Put: session key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !state.Replace && len(m.states[state.SessionKey].Turns) != state.Version {
		return fmt.Errorf("repository: Put: %w", ErrConflict)
	}
	stored := state.Clone()
	stored.Version = len(stored.Turns)
	stored.Replace = false
	m.states[state.SessionKey] = stored
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionKey)
	return nil
}

// Len reports the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
