package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/attune-ai/attune/logger"
	"github.com/attune-ai/attune/types"
)

// DefaultInvokeTimeout bounds a single capability invocation.
const DefaultInvokeTimeout = 15 * time.Second

// Config binds one implementation per capability. Nil bindings are legal;
// invoking an unbound capability returns ErrModelUnavailable and the session
// degrades per its partial-fusion policy.
type Config struct {
	VAD          VAD
	STT          Transcriber
	AudioEmotion EmotionAnalyzer
	FaceEmotion  EmotionAnalyzer
	Response     ResponseGenerator

	// InvokeTimeout is the per-invocation deadline.
	// Zero means DefaultInvokeTimeout.
	InvokeTimeout time.Duration
}

// Registry holds one model instance per capability and mediates all
// invocations: it applies the per-invocation timeout and serializes calls to
// implementations that are not safely reentrant. Invocations for different
// capabilities, and reentrant invocations for the same capability, proceed
// concurrently across sessions.
type Registry struct {
	cfg   Config
	gates map[Capability]*semaphore.Weighted
}

// NewRegistry creates a registry from the given bindings.
func NewRegistry(cfg Config) *Registry {
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = DefaultInvokeTimeout
	}

	r := &Registry{
		cfg:   cfg,
		gates: make(map[Capability]*semaphore.Weighted),
	}
	for c, m := range r.bindings() {
		if m != nil && !m.Reentrant() {
			r.gates[c] = semaphore.NewWeighted(1)
		}
	}
	return r
}

func (r *Registry) bindings() map[Capability]Model {
	b := make(map[Capability]Model, 5)
	if r.cfg.VAD != nil {
		b[CapabilityVAD] = r.cfg.VAD
	}
	if r.cfg.STT != nil {
		b[CapabilitySTT] = r.cfg.STT
	}
	if r.cfg.AudioEmotion != nil {
		b[CapabilityAudioEmotion] = r.cfg.AudioEmotion
	}
	if r.cfg.FaceEmotion != nil {
		b[CapabilityFaceEmotion] = r.cfg.FaceEmotion
	}
	if r.cfg.Response != nil {
		b[CapabilityResponse] = r.cfg.Response
	}
	return b
}

// Load prepares every bound model for inference. It must complete before any
// session is accepted.
func (r *Registry) Load(ctx context.Context) error {
	for c, m := range r.bindings() {
		start := time.Now()
		if err := m.Load(ctx); err != nil {
			return fmt.Errorf("loading %s model %q: %w", c, m.Name(), err)
		}
		logger.Info("model loaded", "capability", string(c), "model", m.Name(), "duration", time.Since(start))
	}
	return nil
}

// Close releases all model resources. Called after every session has closed.
func (r *Registry) Close() error {
	var firstErr error
	for c, m := range r.bindings() {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s model %q: %w", c, m.Name(), err)
		}
	}
	return firstErr
}

// DetectVoice classifies one audio chunk as speech or silence.
func (r *Registry) DetectVoice(ctx context.Context, chunk []byte) (VADResult, error) {
	return invoke(ctx, r, CapabilityVAD, r.cfg.VAD, len(chunk),
		func(ctx context.Context) (VADResult, error) {
			return r.cfg.VAD.Detect(ctx, chunk)
		})
}

// Transcribe converts a complete utterance to text.
func (r *Registry) Transcribe(ctx context.Context, audio []byte) (Transcript, error) {
	return invoke(ctx, r, CapabilitySTT, r.cfg.STT, len(audio),
		func(ctx context.Context) (Transcript, error) {
			return r.cfg.STT.Transcribe(ctx, audio)
		})
}

// AnalyzeVoice classifies the emotional content of utterance audio.
func (r *Registry) AnalyzeVoice(ctx context.Context, audio []byte) (EmotionResult, error) {
	return invoke(ctx, r, CapabilityAudioEmotion, r.cfg.AudioEmotion, len(audio),
		func(ctx context.Context) (EmotionResult, error) {
			return r.cfg.AudioEmotion.Analyze(ctx, audio)
		})
}

// AnalyzeFace classifies the emotional content of a single video frame.
func (r *Registry) AnalyzeFace(ctx context.Context, frame []byte) (EmotionResult, error) {
	return invoke(ctx, r, CapabilityFaceEmotion, r.cfg.FaceEmotion, len(frame),
		func(ctx context.Context) (EmotionResult, error) {
			return r.cfg.FaceEmotion.Analyze(ctx, frame)
		})
}

// Generate produces a counseling reply from the fused context.
func (r *Registry) Generate(ctx context.Context, fused types.FusedContext) (Reply, error) {
	return invoke(ctx, r, CapabilityResponse, r.cfg.Response, len(fused.UserText),
		func(ctx context.Context) (Reply, error) {
			return r.cfg.Response.Generate(ctx, fused)
		})
}

type result[T any] struct {
	value T
	err   error
}

// invoke runs one capability call with the registry's timeout and gating
// applied. The call itself runs on its own goroutine so an implementation
// that ignores context cancellation cannot stall the caller: on timeout the
// in-flight call is abandoned and its eventual result discarded.
func invoke[T any](
	ctx context.Context, r *Registry, capability Capability, m Model, inputBytes int,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	if m == nil {
		return zero, NewInferenceError(capability, "", ErrModelUnavailable, false)
	}

	gate := r.gates[capability]
	if gate != nil {
		if err := gate.Acquire(ctx, 1); err != nil {
			return zero, NewInferenceError(capability, m.Name(), err, true)
		}
	}

	logger.ModelCall(string(capability), m.Name(), inputBytes)
	start := time.Now()

	invokeCtx, cancel := context.WithTimeout(ctx, r.cfg.InvokeTimeout)
	defer cancel()

	// The gate is released by the call goroutine, not the caller: an
	// abandoned call still occupies the model, so the next invocation must
	// wait until it actually returns.
	done := make(chan result[T], 1)
	go func() {
		value, err := fn(invokeCtx)
		if gate != nil {
			gate.Release(1)
		}
		done <- result[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				res.err = ErrInferenceTimeout
			}
			logger.ModelError(string(capability), m.Name(), res.err)
			return zero, NewInferenceError(capability, m.Name(), res.err, true)
		}
		logger.ModelResult(string(capability), m.Name(), time.Since(start))
		return res.value, nil
	case <-invokeCtx.Done():
		err := invokeCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrInferenceTimeout
		}
		logger.ModelError(string(capability), m.Name(), err)
		return zero, NewInferenceError(capability, m.Name(), err, true)
	}
}
