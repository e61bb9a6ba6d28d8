package relay

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the duplex text-frame connection surface sessions operate on. It
// extends [Handle] with a blocking read so sessions can drive their frame
// loops; the directory only ever sees the [Handle] half.
type Conn interface {
	Handle

	// Read blocks until the next inbound frame arrives, the peer
	// disconnects, or ctx is cancelled.
	Read(ctx context.Context) ([]byte, error)
}

// wsConn adapts a *websocket.Conn to [Conn]. All frames are sent as text
// messages; inbound binary frames are accepted and treated as opaque payloads.
type wsConn struct {
	conn *websocket.Conn
}

// NewConn wraps a websocket connection for use by relay sessions.
func NewConn(c *websocket.Conn) Conn {
	return &wsConn{conn: c}
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
