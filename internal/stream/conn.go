package stream

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the transport Session needs: enough of gorilla/websocket.Conn to
// send JSON frames, detect a closed peer, and close with a specific code.
// Kept as an interface so tests can exercise Session against an in-memory
// double instead of a real socket.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// wsConn adapts *websocket.Conn to Conn. The adaptation is the identity —
// gorilla's Conn already satisfies Conn's method set — but a named type
// keeps the call site (internal/taskapi) expressive about intent.
type wsConn struct {
	*websocket.Conn
}

// NewGorillaConn wraps an upgraded gorilla websocket connection as a Conn.
func NewGorillaConn(c *websocket.Conn) Conn {
	return wsConn{Conn: c}
}

// CloseWithCode sends a WebSocket close frame carrying code and reason,
// then closes the underlying connection. Idempotent: a second call only
// observes the (harmless) error from writing to an already-closed socket.
func CloseWithCode(c Conn, code int, reason string) {
	_ = c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	_ = c.Close()
}
