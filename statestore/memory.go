package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/attune-ai/attune/types"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments. For distributed deployments, use RedisStore.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*ConversationState
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*ConversationState),
	}
}

// Load retrieves a conversation state by ID.
// Returns a deep copy to prevent external mutations.
func (s *MemoryStore) Load(_ context.Context, id string) (*ConversationState, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.states[id]
	if !exists {
		return nil, ErrNotFound
	}

	return deepCopyState(state), nil
}

// Save persists a conversation state. If it already exists, it is replaced.
func (s *MemoryStore) Save(_ context.Context, state *ConversationState) error {
	if state == nil {
		return ErrInvalidState
	}
	if state.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stateCopy := deepCopyState(state)
	stateCopy.LastAccessedAt = time.Now()
	s.states[state.ID] = stateCopy

	return nil
}

// AppendTurns appends turns to the conversation history, creating the
// conversation if it doesn't exist.
func (s *MemoryStore) AppendTurns(_ context.Context, id string, turns []types.Turn) error {
	if id == "" {
		return ErrInvalidID
	}
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.states[id]
	if !exists {
		state = &ConversationState{ID: id}
		s.states[id] = state
	}

	state.Turns = append(state.Turns, turns...)
	state.LastAccessedAt = time.Now()

	return nil
}

// Delete removes a conversation state by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[id]; !exists {
		return ErrNotFound
	}
	delete(s.states, id)

	return nil
}

// deepCopyState creates an independent copy of a conversation state.
func deepCopyState(state *ConversationState) *ConversationState {
	stateCopy := &ConversationState{
		ID:             state.ID,
		UserID:         state.UserID,
		LastAccessedAt: state.LastAccessedAt,
	}
	if state.Turns != nil {
		stateCopy.Turns = make([]types.Turn, len(state.Turns))
		copy(stateCopy.Turns, state.Turns)
	}
	if state.Metadata != nil {
		stateCopy.Metadata = make(map[string]any, len(state.Metadata))
		for k, v := range state.Metadata {
			stateCopy.Metadata[k] = v
		}
	}
	return stateCopy
}
