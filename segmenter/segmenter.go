// Package segmenter turns a continuous stream of audio chunks plus VAD
// decisions into discrete utterances. Each session owns one Segmenter; state
// resets fully after every flush.
package segmenter

import "time"

// Default segmentation parameters.
const (
	// DefaultHangoverChunks is how many consecutive silence decisions after
	// speech close an utterance.
	DefaultHangoverChunks = 8
	// DefaultMaxBufferBytes bounds the audio buffer; exceeding it forces a
	// flush with whatever is buffered.
	DefaultMaxBufferBytes = 1 << 20 // 1 MiB
)

// Decision is the segmenter's verdict on one audio chunk.
type Decision int

const (
	// DecisionContinue means the chunk was buffered and the utterance is
	// still open.
	DecisionContinue Decision = iota
	// DecisionFlush means an utterance boundary was reached.
	DecisionFlush
	// DecisionDiscard means the chunk was silence before any speech and was
	// dropped without buffering.
	DecisionDiscard
)

// String returns a human-readable representation of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionFlush:
		return "flush"
	case DecisionDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// FlushReason explains why an utterance boundary was declared.
type FlushReason string

const (
	// ReasonSilence means the silence hangover elapsed after speech.
	ReasonSilence FlushReason = "silence"
	// ReasonExplicit means the client sent an end-of-speech control frame.
	ReasonExplicit FlushReason = "explicit"
	// ReasonOverflow means the audio buffer hit its configured maximum.
	ReasonOverflow FlushReason = "overflow"
)

// Params configures utterance segmentation.
type Params struct {
	// HangoverChunks is the number of consecutive silence-classified chunks
	// after at least one speech chunk that closes the utterance.
	// Default: DefaultHangoverChunks.
	HangoverChunks int

	// MaxBufferBytes bounds the audio buffer. Default: DefaultMaxBufferBytes.
	MaxBufferBytes int
}

// withDefaults fills zero values with defaults.
func (p Params) withDefaults() Params {
	if p.HangoverChunks <= 0 {
		p.HangoverChunks = DefaultHangoverChunks
	}
	if p.MaxBufferBytes <= 0 {
		p.MaxBufferBytes = DefaultMaxBufferBytes
	}
	return p
}

// Segmenter accumulates one session's audio and declares utterance
// boundaries. It is not safe for concurrent use; the owning session actor is
// its only caller.
type Segmenter struct {
	params Params

	buf        []byte
	hadSpeech  bool
	silenceRun int
	openedAt   time.Time
}

// New creates a Segmenter with the given parameters.
func New(params Params) *Segmenter {
	return &Segmenter{params: params.withDefaults()}
}

// Push classifies one audio chunk. Chunks classified as silence before any
// speech are discarded; everything else is buffered. A flush decision means
// the utterance is complete — the caller takes the audio with Take.
func (s *Segmenter) Push(chunk []byte, isSpeech bool) (Decision, FlushReason) {
	if !s.hadSpeech && !isSpeech {
		return DecisionDiscard, ""
	}

	if !s.hadSpeech {
		s.openedAt = time.Now()
	}
	s.buf = append(s.buf, chunk...)

	if isSpeech {
		s.hadSpeech = true
		s.silenceRun = 0
	} else {
		s.silenceRun++
		if s.silenceRun >= s.params.HangoverChunks {
			return DecisionFlush, ReasonSilence
		}
	}

	if len(s.buf) > s.params.MaxBufferBytes {
		return DecisionFlush, ReasonOverflow
	}

	return DecisionContinue, ""
}

// Take returns the buffered utterance and resets all segmentation state.
// Call after any flush decision, or on an explicit end-of-speech signal
// (where it may return an empty slice).
func (s *Segmenter) Take() []byte {
	audio := s.buf
	s.buf = nil
	s.hadSpeech = false
	s.silenceRun = 0
	s.openedAt = time.Time{}
	return audio
}

// BufferedBytes returns the current buffer length.
func (s *Segmenter) BufferedBytes() int {
	return len(s.buf)
}

// HadSpeech reports whether any speech has been observed in the open
// utterance.
func (s *Segmenter) HadSpeech() bool {
	return s.hadSpeech
}

// OpenedAt returns when the current utterance started buffering, or the zero
// time if nothing is buffered.
func (s *Segmenter) OpenedAt() time.Time {
	return s.openedAt
}
