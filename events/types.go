package events

import (
	"time"

	"github.com/attune-ai/attune/types"
)

// EventType identifies the type of event emitted by the gateway.
type EventType string

const (
	// EventSessionOpened marks a new session registration.
	EventSessionOpened EventType = "session.opened"
	// EventSessionClosed marks session teardown.
	EventSessionClosed EventType = "session.closed"

	// EventFrameReceived marks an inbound frame accepted by a session.
	EventFrameReceived EventType = "frame.received"
	// EventFrameRejected marks an inbound frame rejected before processing
	// (malformed, unknown session, or session busy).
	EventFrameRejected EventType = "frame.rejected"

	// EventUtteranceFlushed marks an utterance boundary.
	EventUtteranceFlushed EventType = "utterance.flushed"

	// EventStageCompleted marks a completed pipeline stage invocation.
	EventStageCompleted EventType = "stage.completed"
	// EventStageFailed marks a failed pipeline stage invocation.
	EventStageFailed EventType = "stage.failed"

	// EventTurnCompleted marks a completed conversation turn.
	EventTurnCompleted EventType = "turn.completed"
	// EventTurnFailed marks a turn that ended with a fatal pipeline error.
	EventTurnFailed EventType = "turn.failed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a gateway event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// SessionOpenedData carries session registration details.
type SessionOpenedData struct {
	baseEventData
	ActiveSessions int
}

// SessionClosedData carries session teardown details.
type SessionClosedData struct {
	baseEventData
	ActiveSessions int
	Turns          int
}

// FrameReceivedData carries inbound frame details.
type FrameReceivedData struct {
	baseEventData
	FrameType types.FrameType
	Bytes     int
}

// FrameRejectedData carries the rejection reason for an inbound frame.
type FrameRejectedData struct {
	baseEventData
	Reason string
}

// UtteranceFlushedData carries utterance boundary details.
type UtteranceFlushedData struct {
	baseEventData
	Reason string
	Bytes  int
}

// StageData carries one pipeline stage invocation result.
type StageData struct {
	baseEventData
	Stage    string
	Duration time.Duration
	Error    string
}

// TurnData carries one completed or failed conversation turn.
type TurnData struct {
	baseEventData
	Duration time.Duration
	Error    string
}

// New creates an event with the current timestamp.
func New(eventType EventType, sessionID string, data EventData) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      data,
	}
}
