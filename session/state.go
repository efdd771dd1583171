package session

// State is the session state machine's current state.
type State int32

const (
	// StateIdle means no frame has been received yet.
	StateIdle State = iota
	// StateListening means the session is buffering audio and awaiting an
	// utterance boundary.
	StateListening
	// StateSegmentPending means an utterance boundary was reached and
	// transcription/audio-emotion analysis is running.
	StateSegmentPending
	// StateProcessing means fusion and response generation are running.
	StateProcessing
	// StateClosed is terminal; all buffers are released.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSegmentPending:
		return "segment_pending"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
