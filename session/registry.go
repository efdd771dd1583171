package session

import (
	"sync"

	"github.com/attune-ai/attune/events"
	"github.com/attune-ai/attune/logger"
	"github.com/attune-ai/attune/types"
)

// Registry tracks active sessions and routes inbound frames to them. Its
// lock guards only the session map; frame processing happens inside each
// session's own goroutine, so one session's pipeline never holds the
// registry lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	bus      *events.Bus
}

// NewRegistry creates an empty session registry. The bus is optional.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		bus:      bus,
	}
}

// Open creates and registers a new session from cfg. It fails with
// ErrSessionAlreadyExists when cfg.ID is already registered.
func (r *Registry) Open(cfg Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.ID != "" {
		if _, exists := r.sessions[cfg.ID]; exists {
			return nil, ErrSessionAlreadyExists
		}
	}

	sess, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.sessions[sess.ID()] = sess

	logger.Info("session opened", "session_id", sess.ID(), "active", len(r.sessions))
	r.bus.Publish(events.New(events.EventSessionOpened, sess.ID(), &events.SessionOpenedData{
		ActiveSessions: len(r.sessions),
	}))
	return sess, nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Dispatch routes a frame to the session registered under id. The registry
// lock is released before delivery so a full session queue cannot stall
// routing for other sessions.
func (r *Registry) Dispatch(id string, frame *types.Frame) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	return sess.Deliver(frame)
}

// Close shuts down and unregisters the session under id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	if err := sess.Close(); err != nil {
		return err
	}
	logger.Info("session closed", "session_id", id, "active", active)
	r.bus.Publish(events.New(events.EventSessionClosed, id, &events.SessionClosedData{
		ActiveSessions: active,
		Turns:          sess.Turns(),
	}))
	return nil
}

// CloseAll shuts down every registered session. Used during gateway
// shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
