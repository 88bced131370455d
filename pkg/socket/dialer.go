package socket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// Dialer defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 1 << 20
)

// Conn is one physical WebSocket connection. *websocket.Conn satisfies it.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	Subprotocol() string
}

// DialOptions are evaluated for every dial.
type DialOptions struct {
	Subprotocols []string
	HTTPHeader   http.Header
}

// Dialer creates connections.
type Dialer interface {
	Dial(ctx context.Context, url string, opts DialOptions) (Conn, error)
}

// WebSocketDialer dials with nhooyr.io/websocket.
type WebSocketDialer struct {
	// HTTPClient is used for the upgrade request (http.DefaultClient if nil).
	HTTPClient *http.Client

	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration

	// ReadLimit is the maximum inbound message size in bytes.
	ReadLimit int64
}

// Dial opens a connection and applies the read limit.
func (d WebSocketDialer) Dial(ctx context.Context, url string, opts DialOptions) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   opts.HTTPHeader,
		Subprotocols: opts.Subprotocols,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)
	return c, nil
}

var _ Dialer = WebSocketDialer{}
