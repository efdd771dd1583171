// Package session implements the per-client actor that owns all pipeline
// state for one counseling session, and the registry that routes inbound
// frames to the right actor.
//
// Each session runs one goroutine consuming a bounded frame queue. Pipeline
// stages execute strictly sequentially inside that goroutine, so a slow
// inference call for one session never delays frame intake for another.
// Fault isolation is the core safety property: a panic while handling a
// frame is converted into an error acknowledgment and the session returns to
// listening, never taking down the registry or other sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/attune-ai/attune/events"
	"github.com/attune-ai/attune/fusion"
	"github.com/attune-ai/attune/logger"
	"github.com/attune-ai/attune/models"
	"github.com/attune-ai/attune/segmenter"
	"github.com/attune-ai/attune/statestore"
	"github.com/attune-ai/attune/types"
)

// DefaultQueueSize bounds the per-session inbound frame queue.
const DefaultQueueSize = 64

// Client-facing messages.
const (
	msgProcessing     = "답변 생성중"
	msgPipelineFatal  = "답변 생성에 실패했습니다. 다시 말씀해 주세요."
	msgUnknownControl = "알 수 없는 제어 신호"
)

// SendFunc delivers an outbound response frame to the client. The transport
// provides it; implementations must be safe for use from the session
// goroutine and must not block indefinitely.
type SendFunc func(types.ServerResponse)

// Config configures a Session.
type Config struct {
	// ID identifies the session. Generated when empty.
	ID string

	// UserID optionally identifies the human behind the session.
	UserID string

	// Models is the capability registry. Required.
	Models *models.Registry

	// Store persists conversation history. Defaults to an in-memory store.
	Store statestore.Store

	// Segmenter configures utterance segmentation.
	Segmenter segmenter.Params

	// QueueSize bounds the inbound frame queue. Zero means DefaultQueueSize.
	QueueSize int

	// Bus receives observability events. Optional.
	Bus *events.Bus

	// Tracer records per-turn spans. Optional; defaults to a noop tracer.
	Tracer trace.Tracer

	// Sink receives flushed utterances and video frames for persistence.
	// Optional.
	Sink MediaSink

	// Send delivers outbound frames to the client. Required.
	Send SendFunc
}

// Session is the per-client actor. All mutable pipeline state — the audio
// buffer, the latest video frame, the conversation history — is owned by the
// actor goroutine and never touched from outside it.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger
	seg *segmenter.Segmenter

	frames chan *types.Frame
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state atomic.Int32
	turns atomic.Int32

	// Actor-owned; only the run goroutine may touch these.
	latestVideoFrame []byte
	history          []types.Turn
}

// New creates a session actor and starts its goroutine.
func New(cfg Config) (*Session, error) {
	if cfg.Models == nil {
		return nil, fmt.Errorf("models registry is required")
	}
	if cfg.Send == nil {
		return nil, fmt.Errorf("send function is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Store == nil {
		cfg.Store = statestore.NewMemoryStore()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     cfg.ID,
		cfg:    cfg,
		log:    logger.Session(cfg.ID),
		seg:    segmenter.New(cfg.Segmenter),
		frames: make(chan *types.Frame, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))

	go s.run()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Turns returns the number of completed conversation turns.
func (s *Session) Turns() int {
	return int(s.turns.Load())
}

// Deliver enqueues an inbound frame for the actor. It never blocks: a full
// queue returns ErrSessionBusy so the transport can signal backpressure
// instead of buffering unbounded frames.
func (s *Session) Deliver(frame *types.Frame) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}

	select {
	case s.frames <- frame:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
		return ErrSessionBusy
	}
}

// Close transitions the session to StateClosed and releases its buffers.
// In-flight model invocations are abandoned; their results are discarded.
// Close blocks until the actor goroutine has exited and is safe to call
// multiple times.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Done returns a channel closed when the actor has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) send(resp types.ServerResponse) {
	s.cfg.Send(resp)
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case frame := <-s.frames:
			s.handleFrameSafe(frame)
		}
	}
}

// shutdown drains the queue without processing and releases all buffers.
func (s *Session) shutdown() {
	s.setState(StateClosed)
	for {
		select {
		case <-s.frames:
		default:
			s.seg.Take()
			s.latestVideoFrame = nil
			s.history = nil
			s.log.Info("session closed", "turns", s.Turns())
			return
		}
	}
}

// handleFrameSafe isolates frame handling: any panic becomes a fatal turn
// error for this session only.
func (s *Session) handleFrameSafe(frame *types.Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("pipeline panic recovered", "panic", r, "frame_type", frame.Type)
			s.cfg.Bus.Publish(events.New(events.EventTurnFailed, s.id, &events.TurnData{
				Error: fmt.Sprint(r),
			}))
			s.send(types.ServerResponse{Status: types.StatusError, Message: msgPipelineFatal})
			s.setState(StateListening)
		}
	}()
	s.handleFrame(frame)
}

func (s *Session) handleFrame(frame *types.Frame) {
	if s.State() == StateIdle {
		s.setState(StateListening)
	}

	s.cfg.Bus.Publish(events.New(events.EventFrameReceived, s.id, &events.FrameReceivedData{
		FrameType: frame.Type,
		Bytes:     len(frame.Payload),
	}))

	switch frame.Type {
	case types.FrameAudio:
		s.handleAudio(frame.Payload)
	case types.FrameVideo:
		s.handleVideo(frame.Payload)
	case types.FrameControl:
		s.handleControl(frame.Control())
	}
}

func (s *Session) handleAudio(chunk []byte) {
	isSpeech := true
	if vad, err := s.cfg.Models.DetectVoice(s.ctx, chunk); err != nil {
		// Without a VAD verdict the chunk is kept: losing audio is worse
		// than buffering silence.
		s.log.Warn("vad failed, treating chunk as speech", "error", err)
	} else {
		isSpeech = vad.IsSpeech
	}

	decision, reason := s.seg.Push(chunk, isSpeech)
	s.ack(types.FrameAudio)

	if decision != segmenter.DecisionFlush {
		return
	}
	if reason == segmenter.ReasonOverflow {
		s.log.Warn("audio buffer overflow, forcing flush", "buffered_bytes", s.seg.BufferedBytes())
	}
	s.processUtterance(s.seg.Take(), reason)
}

func (s *Session) handleVideo(frame []byte) {
	// Latest frame wins; face emotion always analyzes the freshest frame.
	s.latestVideoFrame = frame

	if s.cfg.Sink != nil {
		if err := s.cfg.Sink.SaveFrame(s.id, frame); err != nil {
			s.log.Warn("media sink frame save failed", "error", err)
		}
	}
	s.ack(types.FrameVideo)
}

func (s *Session) handleControl(signal string) {
	if signal != types.ControlEndOfSpeech {
		s.log.Warn("unknown control signal", "signal", signal)
		s.send(types.ServerResponse{Status: types.StatusReceived, Message: msgUnknownControl})
		return
	}

	s.ack(types.FrameControl)
	// Explicit end-of-speech always flushes, even with zero buffered audio.
	s.processUtterance(s.seg.Take(), segmenter.ReasonExplicit)
}

func (s *Session) ack(frameType types.FrameType) {
	s.send(types.ServerResponse{
		Status:  types.StatusReceived,
		Message: fmt.Sprintf("%s 데이터 수신 완료", frameType),
	})
}

// processUtterance runs the flush-triggered pipeline: STT and voice emotion
// over the utterance, face emotion over the freshest video frame, fusion,
// then response generation. Every stage failure degrades to partial fusion;
// only a response-generation failure is fatal to the turn.
func (s *Session) processUtterance(audio []byte, reason segmenter.FlushReason) {
	s.cfg.Bus.Publish(events.New(events.EventUtteranceFlushed, s.id, &events.UtteranceFlushedData{
		Reason: string(reason),
		Bytes:  len(audio),
	}))

	ctx, span := s.cfg.Tracer.Start(s.ctx, "attune.turn",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("flush.reason", string(reason)),
			attribute.Int("utterance.bytes", len(audio)),
		),
	)
	defer span.End()

	turnStart := time.Now()
	s.setState(StateSegmentPending)
	s.send(types.ServerResponse{Status: types.StatusProcessing, Message: msgProcessing})

	if s.cfg.Sink != nil && len(audio) > 0 {
		if err := s.cfg.Sink.SaveUtterance(s.id, audio); err != nil {
			s.log.Warn("media sink utterance save failed", "error", err)
		}
	}

	var partial fusion.Partial
	if len(audio) > 0 {
		// STT first: the transcript must exist before the user turn is
		// appended to history.
		transcript, err := stage(s, ctx, "stt", func() (models.Transcript, error) {
			return s.cfg.Models.Transcribe(ctx, audio)
		})
		if err == nil {
			partial.Transcript = transcript.Text
		}

		if voice, err := stage(s, ctx, "audio_emotion", func() (models.EmotionResult, error) {
			return s.cfg.Models.AnalyzeVoice(ctx, audio)
		}); err == nil {
			partial.VoiceEmotion = &voice
		}
	}

	s.setState(StateProcessing)

	if s.latestVideoFrame != nil {
		if face, err := stage(s, ctx, "face_emotion", func() (models.EmotionResult, error) {
			return s.cfg.Models.AnalyzeFace(ctx, s.latestVideoFrame)
		}); err == nil {
			partial.FaceEmotion = &face
		}
	}

	// Cloned so nothing handed to a model aliases actor-owned history: an
	// abandoned Generate may still be reading its FusedContext when the
	// next turn appends.
	userTurn := types.Turn{Role: types.RoleUser, Text: partial.Transcript}
	historyWithUser := append(slices.Clone(s.history), userTurn)
	fused := fusion.Fuse(partial, historyWithUser)

	reply, err := stage(s, ctx, "response", func() (models.Reply, error) {
		return s.cfg.Models.Generate(ctx, fused)
	})
	if err != nil {
		// Fatal to the turn: report, drop the user turn, keep the session
		// usable.
		span.SetStatus(codes.Error, err.Error())
		s.cfg.Bus.Publish(events.New(events.EventTurnFailed, s.id, &events.TurnData{
			Duration: time.Since(turnStart),
			Error:    err.Error(),
		}))
		s.send(types.ServerResponse{Status: types.StatusError, Message: msgPipelineFatal})
		s.setState(StateListening)
		return
	}

	assistantTurn := types.Turn{Role: types.RoleAssistant, Text: reply.Text}
	s.history = append(historyWithUser, assistantTurn)
	s.turns.Add(1)

	if err := s.cfg.Store.AppendTurns(ctx, s.id, []types.Turn{userTurn, assistantTurn}); err != nil {
		s.log.Warn("persisting turns failed", "error", err)
	}

	s.send(types.ServerResponse{
		Status:     types.StatusReply,
		Message:    reply.Text,
		NextAction: reply.SuggestedAction,
	})
	s.cfg.Bus.Publish(events.New(events.EventTurnCompleted, s.id, &events.TurnData{
		Duration: time.Since(turnStart),
	}))
	s.setState(StateListening)
}

// stage runs one pipeline stage, publishing its outcome to the event bus.
// Failures are returned for the caller's degradation policy, never
// propagated as connection errors.
func stage[T any](s *Session, ctx context.Context, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	value, err := fn()
	duration := time.Since(start)

	if err != nil {
		s.log.Warn("stage failed", "stage", name, "duration", duration, "error", err)
		s.cfg.Bus.Publish(events.New(events.EventStageFailed, s.id, &events.StageData{
			Stage:    name,
			Duration: duration,
			Error:    err.Error(),
		}))
		return value, err
	}

	s.cfg.Bus.Publish(events.New(events.EventStageCompleted, s.id, &events.StageData{
		Stage:    name,
		Duration: duration,
	}))
	return value, nil
}
