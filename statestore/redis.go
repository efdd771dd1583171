package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/attune-ai/attune/types"
)

// defaultTTL is the default time-to-live for conversation states.
const defaultTTL = 24 * time.Hour

// RedisStore provides a Redis-backed implementation of the Store interface.
// It uses JSON serialization and supports automatic TTL-based cleanup,
// suitable for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for conversation states. After this duration
// conversations are automatically deleted. Default is 24 hours; 0 disables
// expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys. Default is "attune".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed state store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(24 * time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "attune",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":conversation:" + id
}

// Load retrieves a conversation state by ID.
func (s *RedisStore) Load(ctx context.Context, id string) (*ConversationState, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var state ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// Save persists a conversation state with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, state *ConversationState) error {
	if state == nil {
		return ErrInvalidState
	}
	if state.ID == "" {
		return ErrInvalidID
	}

	stateCopy := *state
	stateCopy.LastAccessedAt = time.Now()

	data, err := json.Marshal(&stateCopy)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(state.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// AppendTurns appends turns via a load-modify-save cycle, creating the
// conversation if it doesn't exist. Sessions are single-writer, so the cycle
// needs no cross-process locking.
func (s *RedisStore) AppendTurns(ctx context.Context, id string, turns []types.Turn) error {
	if id == "" {
		return ErrInvalidID
	}
	if len(turns) == 0 {
		return nil
	}

	state, err := s.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		state = &ConversationState{ID: id}
	} else if err != nil {
		return err
	}

	state.Turns = append(state.Turns, turns...)
	return s.Save(ctx, state)
}

// Delete removes a conversation state by ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	deleted, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}
