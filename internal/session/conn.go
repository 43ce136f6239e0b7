package session

import (
	"context"

	"github.com/coder/websocket"
)

// FrameKind distinguishes the two frame types on the duplex channel.
type FrameKind int

const (
	// FrameText is a JSON control frame.
	FrameText FrameKind = iota + 1

	// FrameBinary is an opaque audio blob.
	FrameBinary
)

// Conn is the bidirectional ordered frame channel a session runs over.
// The production implementation wraps a WebSocket; tests script their own.
type Conn interface {
	// Read blocks until the next inbound frame or ctx is done.
	Read(ctx context.Context) (FrameKind, []byte, error)

	// Write sends one frame.
	Write(ctx context.Context, kind FrameKind, data []byte) error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// wsConn adapts a coder/websocket connection to [Conn].
type wsConn struct {
	c *websocket.Conn
}

// NewWebsocketConn wraps an accepted WebSocket connection.
func NewWebsocketConn(c *websocket.Conn) Conn {
	return &wsConn{c: c}
}

func (w *wsConn) Read(ctx context.Context) (FrameKind, []byte, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		return 0, nil, err
	}
	if typ == websocket.MessageBinary {
		return FrameBinary, data, nil
	}
	return FrameText, data, nil
}

func (w *wsConn) Write(ctx context.Context, kind FrameKind, data []byte) error {
	typ := websocket.MessageText
	if kind == FrameBinary {
		typ = websocket.MessageBinary
	}
	return w.c.Write(ctx, typ, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
