// Package gateway exposes the WebSocket endpoint that clients stream
// counseling frames to, and ties the transport to per-session pipeline
// actors.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/attune-ai/attune/events"
	"github.com/attune-ai/attune/logger"
	"github.com/attune-ai/attune/models"
	"github.com/attune-ai/attune/segmenter"
	"github.com/attune-ai/attune/session"
	"github.com/attune-ai/attune/statestore"
	"github.com/attune-ai/attune/types"
)

const defaultReadHeaderTimeout = 10 * time.Second

// Client-facing messages emitted by the transport layer.
const (
	msgGreeting       = "상담실에 입장하였습니다."
	msgMalformed      = "올바르지 않은 데이터 형식입니다."
	msgBusy           = "서버가 혼잡합니다. 잠시 후 다시 시도해주세요."
	msgUnknownSession = "알 수 없는 세션입니다."
	actionRetry       = "retry"
)

// Rejection reasons for frame.rejected events.
const (
	rejectMalformed   = "malformed"
	rejectBusy        = "busy"
	rejectUnknown     = "unknown_session"
	rejectRateLimited = "rate_limited"
)

// Config configures the gateway server.
type Config struct {
	// Addr is the listen address.
	Addr string

	// ReadLimit caps the size of one inbound websocket message.
	ReadLimit int64

	// FrameRate and FrameBurst bound the per-connection inbound frame rate.
	// Zero FrameRate disables rate limiting.
	FrameRate  float64
	FrameBurst int

	// WriteWait is the per-message write deadline.
	WriteWait time.Duration

	// Models is the capability registry shared by all sessions. Required.
	Models *models.Registry

	// Store persists conversation state across sessions.
	Store statestore.Store

	// Segmenter configures per-session utterance segmentation.
	Segmenter segmenter.Params

	// QueueSize bounds each session's inbound frame queue.
	QueueSize int

	// Bus receives observability events. Optional.
	Bus *events.Bus

	// Tracer records per-turn spans. Optional.
	Tracer trace.Tracer

	// Sink receives flushed media. Optional.
	Sink session.MediaSink

	// CheckOrigin overrides the upgrader's origin policy. Nil allows all
	// origins.
	CheckOrigin func(*http.Request) bool
}

// Server accepts websocket connections and routes their frames to session
// actors.
type Server struct {
	cfg      Config
	sessions *session.Registry
	server   *http.Server
	mu       sync.Mutex
	started  bool
}

// NewServer creates a gateway server. The session registry is owned by the
// server; CloseAll on Shutdown tears down every active session.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		sessions: session.NewRegistry(cfg.Bus),
	}
}

// Sessions returns the server's session registry.
func (s *Server) Sessions() *session.Registry {
	return s.sessions
}

// Handler returns the HTTP handler serving the websocket endpoint and the
// health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/counseling/{session_id}", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins serving. It blocks until the server is stopped and returns
// http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("gateway listening", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and closes all active sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	started := s.started
	s.started = false
	s.mu.Unlock()

	var err error
	if srv != nil && started {
		err = srv.Shutdown(ctx)
	}
	s.sessions.CloseAll()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	checkOrigin := s.cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}

	ws := newWSConn(conn, sessionID, s.cfg.WriteWait)

	sess, err := s.sessions.Open(session.Config{
		ID:        sessionID,
		Models:    s.cfg.Models,
		Store:     s.cfg.Store,
		Segmenter: s.cfg.Segmenter,
		QueueSize: s.cfg.QueueSize,
		Bus:       s.cfg.Bus,
		Tracer:    s.cfg.Tracer,
		Sink:      s.cfg.Sink,
		Send:      ws.send,
	})
	if err != nil {
		logger.Warn("opening session failed", "session_id", sessionID, "error", err)
		ws.send(types.ServerResponse{Status: types.StatusError, Message: msgUnknownSession})
		ws.close(websocket.ClosePolicyViolation, "session rejected")
		return
	}
	defer func() {
		if err := s.sessions.Close(sess.ID()); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			logger.Warn("closing session failed", "session_id", sess.ID(), "error", err)
		}
		ws.close(websocket.CloseNormalClosure, "")
	}()

	ws.send(types.ServerResponse{Status: types.StatusConnected, Message: msgGreeting})

	s.readLoop(ws, sess)
}

// readLoop pumps inbound messages into the session until the client
// disconnects. Malformed frames and backpressure are answered on the spot;
// neither terminates the connection.
func (s *Server) readLoop(ws *wsConn, sess *session.Session) {
	var limiter *rate.Limiter
	if s.cfg.FrameRate > 0 {
		burst := s.cfg.FrameBurst
		if burst <= 0 {
			burst = int(s.cfg.FrameRate)
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.FrameRate), burst)
	}

	for {
		messageType, raw, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "session_id", sess.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.reject(ws, sess.ID(), rejectMalformed, types.ServerResponse{
				Status: types.StatusError, Message: msgMalformed,
			})
			continue
		}

		if limiter != nil && !limiter.Allow() {
			s.reject(ws, sess.ID(), rejectRateLimited, types.ServerResponse{
				Status: types.StatusError, Message: msgBusy, NextAction: actionRetry,
			})
			continue
		}

		frame, err := types.ParseFrame(raw)
		if err != nil {
			logger.Debug("malformed frame", "session_id", sess.ID(), "error", err)
			s.reject(ws, sess.ID(), rejectMalformed, types.ServerResponse{
				Status: types.StatusError, Message: msgMalformed,
			})
			continue
		}

		// A frame claiming another session never reaches this connection's
		// actor.
		if frame.SessionID != sess.ID() {
			logger.Warn("frame session mismatch", "session_id", sess.ID(), "frame_session_id", frame.SessionID)
			s.reject(ws, sess.ID(), rejectUnknown, types.ServerResponse{
				Status: types.StatusError, Message: msgUnknownSession,
			})
			continue
		}

		switch err := sess.Deliver(frame); {
		case err == nil:
		case errors.Is(err, session.ErrSessionBusy):
			s.reject(ws, sess.ID(), rejectBusy, types.ServerResponse{
				Status: types.StatusError, Message: msgBusy, NextAction: actionRetry,
			})
		case errors.Is(err, session.ErrSessionClosed):
			s.reject(ws, sess.ID(), rejectUnknown, types.ServerResponse{
				Status: types.StatusError, Message: msgUnknownSession,
			})
			return
		}
	}
}

func (s *Server) reject(ws *wsConn, sessionID, reason string, resp types.ServerResponse) {
	s.cfg.Bus.Publish(events.New(events.EventFrameRejected, sessionID, &events.FrameRejectedData{
		Reason: reason,
	}))
	ws.send(resp)
}
