package models

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/attune-ai/attune/types"
)

// Default parameters for the RMS-based dummy VAD.
const (
	// dummyVADThreshold is the RMS level above which a chunk counts as speech.
	dummyVADThreshold = 0.01
	// pcmBytesPerSample is the number of bytes per 16-bit PCM sample.
	pcmBytesPerSample = 2
	// pcmMaxAmplitude is the maximum amplitude for 16-bit signed audio.
	pcmMaxAmplitude = 32768.0
	// maxExpectedRMS is the expected maximum RMS for voice audio, used to
	// scale confidence into [0,1].
	maxExpectedRMS = 0.5
)

type baseDummy struct {
	name string
}

func (d *baseDummy) Name() string                 { return d.name }
func (d *baseDummy) Load(_ context.Context) error { return nil }
func (d *baseDummy) Close() error                 { return nil }
func (d *baseDummy) Reentrant() bool              { return true }

// DummyVAD classifies 16-bit little-endian PCM chunks by RMS energy. It is a
// deterministic stand-in for a real detector such as Silero, which keeps the
// segmentation pipeline testable without model weights.
type DummyVAD struct {
	baseDummy
	// Threshold is the RMS level above which a chunk counts as speech.
	Threshold float64
}

// NewDummyVAD creates a DummyVAD with the default threshold.
func NewDummyVAD() *DummyVAD {
	return &DummyVAD{baseDummy: baseDummy{name: "dummy-rms-vad"}, Threshold: dummyVADThreshold}
}

// Detect returns a speech decision based on the chunk's RMS energy.
func (d *DummyVAD) Detect(_ context.Context, chunk []byte) (VADResult, error) {
	if len(chunk) < pcmBytesPerSample {
		return VADResult{}, ErrEmptyInput
	}

	var sumSquares float64
	samples := len(chunk) / pcmBytesPerSample
	for i := 0; i < samples; i++ {
		sample := int16(binary.LittleEndian.Uint16(chunk[i*pcmBytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(samples))

	confidence := rms / maxExpectedRMS
	if confidence > 1 {
		confidence = 1
	}
	return VADResult{IsSpeech: rms >= d.Threshold, Confidence: confidence}, nil
}

// DummyTranscriber returns a fixed Korean transcript regardless of input,
// standing in for a Whisper-class model.
type DummyTranscriber struct {
	baseDummy
}

// NewDummyTranscriber creates a DummyTranscriber.
func NewDummyTranscriber() *DummyTranscriber {
	return &DummyTranscriber{baseDummy{name: "dummy-whisper"}}
}

// Transcribe returns the canned transcript.
func (d *DummyTranscriber) Transcribe(_ context.Context, audio []byte) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, ErrEmptyInput
	}
	return Transcript{Text: "아, 정말 힘드셨겠어요.", Language: "ko"}, nil
}

// DummyAudioEmotion returns a fixed voice-emotion distribution.
type DummyAudioEmotion struct {
	baseDummy
}

// NewDummyAudioEmotion creates a DummyAudioEmotion.
func NewDummyAudioEmotion() *DummyAudioEmotion {
	return &DummyAudioEmotion{baseDummy{name: "dummy-speech-emotion"}}
}

// Analyze returns the canned voice-emotion result.
func (d *DummyAudioEmotion) Analyze(_ context.Context, data []byte) (EmotionResult, error) {
	if len(data) == 0 {
		return EmotionResult{}, ErrEmptyInput
	}
	return EmotionResult{
		Primary:       "fear",
		Probabilities: map[string]float64{"fear": 0.7, "sad": 0.3},
	}, nil
}

// DummyFaceEmotion returns a fixed face-emotion distribution.
type DummyFaceEmotion struct {
	baseDummy
}

// NewDummyFaceEmotion creates a DummyFaceEmotion.
func NewDummyFaceEmotion() *DummyFaceEmotion {
	return &DummyFaceEmotion{baseDummy{name: "dummy-face-emotion"}}
}

// Analyze returns the canned face-emotion result.
func (d *DummyFaceEmotion) Analyze(_ context.Context, data []byte) (EmotionResult, error) {
	if len(data) == 0 {
		return EmotionResult{}, ErrEmptyInput
	}
	return EmotionResult{
		Primary:       "sad",
		Probabilities: map[string]float64{"sad": 0.8, "neutral": 0.2},
	}, nil
}

// DummyResponder echoes the user's words back in a counseling register.
type DummyResponder struct {
	baseDummy
}

// NewDummyResponder creates a DummyResponder.
func NewDummyResponder() *DummyResponder {
	return &DummyResponder{baseDummy{name: "dummy-counselor"}}
}

// Generate produces a templated reply from the fused context.
func (d *DummyResponder) Generate(_ context.Context, fused types.FusedContext) (Reply, error) {
	return Reply{
		Text:            fmt.Sprintf("사용자님, '%s'라고 하셨군요. 많이 속상하셨겠습니다.", fused.UserText),
		SuggestedAction: "심호흡 하기",
	}, nil
}
