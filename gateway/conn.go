package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/attune-ai/attune/logger"
	"github.com/attune-ai/attune/types"
)

// defaultWriteWait is the write deadline for each outbound message.
const defaultWriteWait = 10 * time.Second

// wsConn wraps a websocket connection with serialized writes. The session
// actor and the read loop both emit frames, and gorilla connections allow
// only one concurrent writer.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	writeWait time.Duration
	sessionID string
}

func newWSConn(conn *websocket.Conn, sessionID string, writeWait time.Duration) *wsConn {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &wsConn{
		conn:      conn,
		writeWait: writeWait,
		sessionID: sessionID,
	}
}

// send encodes and writes one response frame. Write errors are logged and
// swallowed: a dead client connection is detected by the read loop, and the
// pipeline must not fail because of it.
func (c *wsConn) send(resp types.ServerResponse) {
	payload, err := resp.Encode()
	if err != nil {
		logger.Error("encoding response frame", "session_id", c.sessionID, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logger.Debug("writing response frame", "session_id", c.sessionID, "error", err)
	}
}

// close writes a close frame and tears down the connection.
func (c *wsConn) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	if err := c.conn.Close(); err != nil {
		logger.Debug("closing websocket", "session_id", c.sessionID, "error", fmt.Sprint(err))
	}
}
