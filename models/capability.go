// Package models defines the analysis capability contracts consumed by the
// session pipeline and the registry that binds concrete implementations to
// them. Implementations are interchangeable: the pipeline only depends on the
// declared input/output shape of each capability.
package models

import (
	"context"

	"github.com/attune-ai/attune/types"
)

// Capability names the analysis functions the gateway depends on.
type Capability string

const (
	// CapabilityVAD is voice activity detection on raw audio chunks.
	CapabilityVAD Capability = "vad"
	// CapabilitySTT is speech-to-text over a complete utterance.
	CapabilitySTT Capability = "stt"
	// CapabilityAudioEmotion is emotion classification of utterance audio.
	CapabilityAudioEmotion Capability = "audio_emotion"
	// CapabilityFaceEmotion is emotion classification of a video frame.
	CapabilityFaceEmotion Capability = "face_emotion"
	// CapabilityResponse is counseling reply generation from fused context.
	CapabilityResponse Capability = "response"
)

// Model is the lifecycle contract shared by all capability implementations.
type Model interface {
	// Name returns the implementation identifier (for logging/debugging).
	Name() string

	// Load prepares the model for inference. It is called once at startup,
	// before any session is accepted, and must be idempotent.
	Load(ctx context.Context) error

	// Close releases model resources. Called once at shutdown, after all
	// sessions have closed.
	Close() error

	// Reentrant reports whether Invoke-style methods are safe to call
	// concurrently. Non-reentrant implementations are serialized by the
	// registry behind a single-slot gate.
	Reentrant() bool
}

// VADResult is the output of a voice activity check on one audio chunk.
type VADResult struct {
	IsSpeech   bool
	Confidence float64
}

// Transcript is the output of speech-to-text over one utterance.
type Transcript struct {
	Text     string
	Language string
}

// EmotionResult is the output of an emotion classifier. Probabilities map
// emotion labels to values summing to at most 1.0.
type EmotionResult struct {
	Primary       string
	Probabilities map[string]float64
}

// Reply is the output of the response generator.
type Reply struct {
	Text            string
	SuggestedAction string
}

// VAD classifies audio chunks as speech or silence.
type VAD interface {
	Model
	Detect(ctx context.Context, chunk []byte) (VADResult, error)
}

// Transcriber converts a complete utterance to text.
type Transcriber interface {
	Model
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}

// EmotionAnalyzer classifies the emotional content of a media payload
// (utterance audio or a single video frame, depending on the binding).
type EmotionAnalyzer interface {
	Model
	Analyze(ctx context.Context, data []byte) (EmotionResult, error)
}

// ResponseGenerator produces a counseling reply from the fused context.
type ResponseGenerator interface {
	Model
	Generate(ctx context.Context, fused types.FusedContext) (Reply, error)
}
