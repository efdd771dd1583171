package session

import "errors"

// Registry and actor errors.
var (
	// ErrSessionAlreadyExists is returned when opening a session whose ID is
	// already registered.
	ErrSessionAlreadyExists = errors.New("session already exists")

	// ErrSessionNotFound is returned when dispatching to an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a session's inbound queue is full. The
	// transport answers with a busy acknowledgment instead of buffering
	// unbounded frames.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionClosed is returned when delivering to a closed session.
	ErrSessionClosed = errors.New("session closed")
)
