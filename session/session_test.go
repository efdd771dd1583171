package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attune-ai/attune/models"
	"github.com/attune-ai/attune/segmenter"
	"github.com/attune-ai/attune/statestore"
	"github.com/attune-ai/attune/types"
)

type stubModel struct{ name string }

func (s stubModel) Name() string                 { return s.name }
func (s stubModel) Load(_ context.Context) error { return nil }
func (s stubModel) Close() error                 { return nil }
func (s stubModel) Reentrant() bool              { return true }

type stubTranscriber struct {
	stubModel
	calls atomic.Int32
	text  string
	err   error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte) (models.Transcript, error) {
	s.calls.Add(1)
	if s.err != nil {
		return models.Transcript{}, s.err
	}
	return models.Transcript{Text: s.text, Language: "ko"}, nil
}

type stubResponder struct {
	stubModel
	mu        sync.Mutex
	lastFused types.FusedContext
	delay     time.Duration
	panicOnce atomic.Bool
	err       error
}

func (s *stubResponder) Generate(_ context.Context, fused types.FusedContext) (models.Reply, error) {
	if s.panicOnce.CompareAndSwap(true, false) {
		panic("responder blew up")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.lastFused = fused
	s.mu.Unlock()
	if s.err != nil {
		return models.Reply{}, s.err
	}
	return models.Reply{Text: "echo: " + fused.UserText, SuggestedAction: "breathe"}, nil
}

func (s *stubResponder) fused() types.FusedContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFused
}

// responses records outbound frames and exposes a wait helper keyed on
// status.
type responses struct {
	mu    sync.Mutex
	all   []types.ServerResponse
	added chan struct{}
}

func newResponses() *responses {
	return &responses{added: make(chan struct{}, 128)}
}

func (r *responses) send(resp types.ServerResponse) {
	r.mu.Lock()
	r.all = append(r.all, resp)
	r.mu.Unlock()
	select {
	case r.added <- struct{}{}:
	default:
	}
}

func (r *responses) find(status string) (types.ServerResponse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range r.all {
		if resp.Status == status {
			return resp, true
		}
	}
	return types.ServerResponse{}, false
}

func (r *responses) waitFor(t *testing.T, status string) types.ServerResponse {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if resp, ok := r.find(status); ok {
			return resp
		}
		select {
		case <-r.added:
		case <-deadline:
			t.Fatalf("no %q response arrived", status)
		}
	}
}

func (r *responses) waitForMessage(t *testing.T, substr string) types.ServerResponse {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		for _, resp := range r.all {
			if strings.Contains(resp.Message, substr) {
				r.mu.Unlock()
				return resp
			}
		}
		r.mu.Unlock()
		select {
		case <-r.added:
		case <-deadline:
			t.Fatalf("no response containing %q arrived", substr)
		}
	}
}

func newTestSession(t *testing.T, cfg Config, out *responses) *Session {
	t.Helper()
	if cfg.Send == nil {
		cfg.Send = out.send
	}
	sess, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func audioFrame(payload string) *types.Frame {
	return &types.Frame{Type: types.FrameAudio, Payload: []byte(payload)}
}

func endOfSpeech() *types.Frame {
	return &types.Frame{Type: types.FrameControl, Payload: []byte(types.ControlEndOfSpeech)}
}

func TestNewRequiresModelsAndSend(t *testing.T) {
	_, err := New(Config{Send: func(types.ServerResponse) {}})
	assert.Error(t, err)

	_, err = New(Config{Models: models.NewRegistry(models.Config{})})
	assert.Error(t, err)
}

func TestEndOfSpeechProducesReplyAndPersistsPair(t *testing.T) {
	stt := &stubTranscriber{stubModel: stubModel{name: "stt"}, text: "요즘 잠을 잘 못 자요"}
	responder := &stubResponder{stubModel: stubModel{name: "responder"}}
	store := statestore.NewMemoryStore()
	out := newResponses()

	sess := newTestSession(t, Config{
		ID:     "s-reply",
		Models: models.NewRegistry(models.Config{STT: stt, Response: responder}),
		Store:  store,
	}, out)

	require.NoError(t, sess.Deliver(audioFrame("speech-bytes")))
	require.NoError(t, sess.Deliver(endOfSpeech()))

	reply := out.waitFor(t, types.StatusReply)
	assert.Equal(t, "echo: 요즘 잠을 잘 못 자요", reply.Message)
	assert.Equal(t, "breathe", reply.NextAction)
	out.waitFor(t, types.StatusProcessing)

	assert.Equal(t, 1, sess.Turns())
	state, err := store.Load(context.Background(), "s-reply")
	require.NoError(t, err)
	require.Len(t, state.Turns, 2)
	assert.Equal(t, types.RoleUser, state.Turns[0].Role)
	assert.Equal(t, "요즘 잠을 잘 못 자요", state.Turns[0].Text)
	assert.Equal(t, types.RoleAssistant, state.Turns[1].Role)
}

func TestEndOfSpeechWithoutAudioSkipsTranscription(t *testing.T) {
	stt := &stubTranscriber{stubModel: stubModel{name: "stt"}, text: "unused"}
	responder := &stubResponder{stubModel: stubModel{name: "responder"}}
	out := newResponses()

	sess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{STT: stt, Response: responder}),
	}, out)

	require.NoError(t, sess.Deliver(endOfSpeech()))

	reply := out.waitFor(t, types.StatusReply)
	assert.Equal(t, "echo: ", reply.Message)
	assert.Equal(t, int32(0), stt.calls.Load())
}

func TestSilenceHangoverFlushes(t *testing.T) {
	stt := &stubTranscriber{stubModel: stubModel{name: "stt"}, text: "hello"}
	responder := &stubResponder{stubModel: stubModel{name: "responder"}}
	vad := models.NewDummyVAD()
	out := newResponses()

	sess := newTestSession(t, Config{
		Models:    models.NewRegistry(models.Config{VAD: vad, STT: stt, Response: responder}),
		Segmenter: segmenter.Params{HangoverChunks: 2},
	}, out)

	speech := generatePCM(320, 8000)
	silence := make([]byte, 320)

	require.NoError(t, sess.Deliver(&types.Frame{Type: types.FrameAudio, Payload: speech}))
	require.NoError(t, sess.Deliver(&types.Frame{Type: types.FrameAudio, Payload: silence}))
	require.NoError(t, sess.Deliver(&types.Frame{Type: types.FrameAudio, Payload: silence}))

	out.waitFor(t, types.StatusReply)
	assert.Equal(t, int32(1), stt.calls.Load())
}

// generatePCM builds a 16-bit LE buffer with a constant nonzero amplitude so
// the RMS voice detector classifies it as speech.
func generatePCM(samples int, amplitude int16) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		buf[2*i] = byte(amplitude)
		buf[2*i+1] = byte(amplitude >> 8)
	}
	return buf
}

func TestTranscriptionFailureDegradesToEmptyText(t *testing.T) {
	stt := &stubTranscriber{stubModel: stubModel{name: "stt"}, err: errors.New("stt down")}
	responder := &stubResponder{stubModel: stubModel{name: "responder"}}
	out := newResponses()

	sess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{STT: stt, Response: responder}),
	}, out)

	require.NoError(t, sess.Deliver(audioFrame("speech")))
	require.NoError(t, sess.Deliver(endOfSpeech()))

	out.waitFor(t, types.StatusReply)
	assert.Empty(t, responder.fused().UserText)
	assert.Equal(t, 1, sess.Turns())
}

func TestResponseFailureDropsTurn(t *testing.T) {
	responder := &stubResponder{stubModel: stubModel{name: "responder"}, err: errors.New("llm down")}
	store := statestore.NewMemoryStore()
	out := newResponses()

	sess := newTestSession(t, Config{
		ID:     "s-fail",
		Models: models.NewRegistry(models.Config{Response: responder}),
		Store:  store,
	}, out)

	require.NoError(t, sess.Deliver(audioFrame("speech")))
	require.NoError(t, sess.Deliver(endOfSpeech()))

	errResp := out.waitFor(t, types.StatusError)
	assert.Contains(t, errResp.Message, "답변 생성에 실패했습니다")
	assert.Equal(t, 0, sess.Turns())

	_, err := store.Load(context.Background(), "s-fail")
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestPanicInPipelineIsIsolated(t *testing.T) {
	responder := &stubResponder{stubModel: stubModel{name: "responder"}}
	responder.panicOnce.Store(true)
	out := newResponses()

	sess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{Response: responder}),
	}, out)

	require.NoError(t, sess.Deliver(endOfSpeech()))
	out.waitFor(t, types.StatusError)

	// The session survives and completes the next turn normally.
	require.NoError(t, sess.Deliver(endOfSpeech()))
	out.waitFor(t, types.StatusReply)
	assert.Equal(t, 1, sess.Turns())
}

func TestDeliverReturnsBusyWhenQueueFull(t *testing.T) {
	responder := &stubResponder{stubModel: stubModel{name: "responder"}, delay: 200 * time.Millisecond}
	out := newResponses()

	sess := newTestSession(t, Config{
		Models:    models.NewRegistry(models.Config{Response: responder}),
		QueueSize: 1,
	}, out)

	// Occupy the actor with a slow turn, then flood the queue.
	require.NoError(t, sess.Deliver(endOfSpeech()))
	out.waitFor(t, types.StatusProcessing)

	var sawBusy bool
	for i := 0; i < 10; i++ {
		if err := sess.Deliver(audioFrame("x")); errors.Is(err, ErrSessionBusy) {
			sawBusy = true
			break
		}
	}
	assert.True(t, sawBusy, "expected ErrSessionBusy once the queue filled")
}

func TestDeliverAfterClose(t *testing.T) {
	out := newResponses()
	sess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{}),
	}, out)

	require.NoError(t, sess.Close())
	assert.Equal(t, StateClosed, sess.State())
	assert.ErrorIs(t, sess.Deliver(audioFrame("x")), ErrSessionClosed)

	// Close is idempotent.
	require.NoError(t, sess.Close())
}

func TestSlowSessionDoesNotDelayOthers(t *testing.T) {
	slow := &stubResponder{stubModel: stubModel{name: "slow"}, delay: 2 * time.Second}
	fast := &stubResponder{stubModel: stubModel{name: "fast"}}

	slowOut, fastOut := newResponses(), newResponses()
	slowSess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{Response: slow}),
	}, slowOut)
	fastSess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{Response: fast}),
	}, fastOut)

	require.NoError(t, slowSess.Deliver(endOfSpeech()))
	slowOut.waitFor(t, types.StatusProcessing)

	start := time.Now()
	require.NoError(t, fastSess.Deliver(endOfSpeech()))
	fastOut.waitFor(t, types.StatusReply)
	assert.Less(t, time.Since(start), time.Second,
		"fast session reply must not wait on the slow session's turn")
}

// countingTranscriber returns a distinct transcript per call so turns are
// distinguishable in history.
type countingTranscriber struct {
	stubModel
	n atomic.Int32
}

func (c *countingTranscriber) Transcribe(context.Context, []byte) (models.Transcript, error) {
	return models.Transcript{Text: fmt.Sprintf("turn-%d", c.n.Add(1)), Language: "ko"}, nil
}

// abandonTurnResponder blocks one chosen call past its deadline, ignoring
// cancellation, and captures the history that call was handed.
type abandonTurnResponder struct {
	stubModel
	mu       sync.Mutex
	calls    int
	blockOn  int
	release  chan struct{}
	captured []types.Turn
	snapshot []types.Turn
}

func (r *abandonTurnResponder) Generate(_ context.Context, fused types.FusedContext) (models.Reply, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	if call == r.blockOn {
		r.captured = fused.History
		r.snapshot = append([]types.Turn(nil), fused.History...)
	}
	r.mu.Unlock()

	if call == r.blockOn {
		<-r.release
	}
	return models.Reply{Text: "re: " + fused.UserText}, nil
}

func TestAbandonedGenerateSeesStableHistory(t *testing.T) {
	responder := &abandonTurnResponder{
		stubModel: stubModel{name: "responder"},
		blockOn:   4,
		release:   make(chan struct{}),
	}
	out := newResponses()

	sess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{
			STT:           &countingTranscriber{stubModel: stubModel{name: "stt"}},
			Response:      responder,
			InvokeTimeout: 50 * time.Millisecond,
		}),
	}, out)

	// Grow history far enough that appends reuse spare backing capacity.
	for i := 1; i <= 3; i++ {
		require.NoError(t, sess.Deliver(audioFrame("speech")))
		require.NoError(t, sess.Deliver(endOfSpeech()))
		out.waitForMessage(t, fmt.Sprintf("re: turn-%d", i))
	}

	// This turn's Generate outlives its deadline and is abandoned while
	// still holding the fused context.
	require.NoError(t, sess.Deliver(audioFrame("speech")))
	require.NoError(t, sess.Deliver(endOfSpeech()))
	out.waitFor(t, types.StatusError)

	// The next turn must not rewrite history the abandoned call still reads.
	require.NoError(t, sess.Deliver(audioFrame("speech")))
	require.NoError(t, sess.Deliver(endOfSpeech()))
	out.waitForMessage(t, "re: turn-5")

	close(responder.release)
	responder.mu.Lock()
	defer responder.mu.Unlock()
	assert.Equal(t, responder.snapshot, responder.captured,
		"history handed to an abandoned call must not change under later turns")
}

func TestUnknownControlSignalIsIgnored(t *testing.T) {
	out := newResponses()
	sess := newTestSession(t, Config{
		Models: models.NewRegistry(models.Config{Response: &stubResponder{stubModel: stubModel{name: "r"}}}),
	}, out)

	require.NoError(t, sess.Deliver(&types.Frame{Type: types.FrameControl, Payload: []byte("REWIND")}))
	resp := out.waitFor(t, types.StatusReceived)
	assert.Equal(t, msgUnknownControl, resp.Message)
	assert.Equal(t, 0, sess.Turns())
}
