// Package statestore provides conversation history persistence for sessions.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/attune-ai/attune/types"
)

// Store defines the interface for persistent conversation state storage.
type Store interface {
	// Load retrieves conversation state by session ID.
	Load(ctx context.Context, id string) (*ConversationState, error)

	// Save persists conversation state.
	Save(ctx context.Context, state *ConversationState) error

	// AppendTurns appends turns to the conversation history, creating the
	// conversation if it doesn't exist. Ordering is insertion order and is
	// never reordered or deduplicated.
	AppendTurns(ctx context.Context, id string, turns []types.Turn) error

	// Delete removes a conversation by ID.
	Delete(ctx context.Context, id string) error
}

// ConversationState is the persisted record of one counseling session.
type ConversationState struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	Turns          []types.Turn   `json:"turns"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ErrNotFound is returned when a conversation doesn't exist in the store.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidID is returned when an invalid conversation ID is provided.
var ErrInvalidID = errors.New("invalid conversation ID")

// ErrInvalidState is returned when a conversation state is invalid.
var ErrInvalidState = errors.New("invalid conversation state")
