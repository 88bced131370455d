// Package sockettest provides in-memory fakes for socket.Dialer and
// socket.Conn. A Dialer hands every dialed Conn to the test, which can then
// deliver server frames, close from the server side, fail the transport and
// inspect what the client wrote.
package sockettest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/underwrite-ai/underwrite-go/pkg/socket"
)

// ErrConnClosed is returned by Write after the connection closed.
var ErrConnClosed = errors.New("sockettest: connection closed")

// Dial records a single dial attempt.
type Dial struct {
	URL  string
	Opts socket.DialOptions
}

// Dialer is a fake socket.Dialer.
type Dialer struct {
	mu     sync.Mutex
	dials  []Dial
	errs   []error
	conns  chan *Conn
	closed bool
}

// NewDialer creates a Dialer whose connections are handed out by Next.
func NewDialer() *Dialer {
	return &Dialer{conns: make(chan *Conn, 64)}
}

// FailNext makes the next len(errs) dials fail with the given errors.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, errs...)
}

// Dial implements socket.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string, opts socket.DialOptions) (socket.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials = append(d.dials, Dial{URL: url, Opts: opts})
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	conn := NewConn()
	if len(opts.Subprotocols) > 0 {
		conn.subprotocol = opts.Subprotocols[0]
	}
	d.conns <- conn
	return conn, nil
}

// Dials returns a copy of all recorded dial attempts.
func (d *Dialer) Dials() []Dial {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Dial, len(d.dials))
	copy(out, d.dials)
	return out
}

// Next waits for the next successfully dialed connection.
func (d *Dialer) Next(t testing.TB, timeout time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(timeout):
		t.Fatalf("sockettest: no dial within %v", timeout)
		return nil
	}
}

// NoDial asserts that no connection is dialed within d.
func (d *Dialer) NoDial(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case <-d.conns:
		t.Fatalf("sockettest: unexpected dial")
	case <-time.After(wait):
	}
}

var _ socket.Dialer = (*Dialer)(nil)

type inbound struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// Conn is a fake socket.Conn.
type Conn struct {
	subprotocol string

	in chan inbound

	mu          sync.Mutex
	written     [][]byte
	writeNotify chan []byte
	closed      bool
	closeCode   websocket.StatusCode
	closeReason string
	done        chan struct{}
}

// NewConn creates an open Conn.
func NewConn() *Conn {
	return &Conn{
		in:          make(chan inbound, 64),
		writeNotify: make(chan []byte, 256),
		closeCode:   -1,
		done:        make(chan struct{}),
	}
}

// Read implements socket.Conn.
func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case msg := <-c.in:
		if msg.err != nil {
			return 0, nil, msg.err
		}
		return msg.typ, msg.data, nil
	case <-c.done:
		c.mu.Lock()
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()
		return 0, nil, websocket.CloseError{Code: code, Reason: reason}
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Write implements socket.Conn.
func (c *Conn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	data := make([]byte, len(p))
	copy(data, p)
	c.written = append(c.written, data)
	c.mu.Unlock()

	select {
	case c.writeNotify <- data:
	default:
	}
	return nil
}

// Close implements socket.Conn. The first call wins.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
	return nil
}

// Subprotocol implements socket.Conn.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// Deliver queues a raw text frame from the server.
func (c *Conn) Deliver(data string) {
	c.in <- inbound{typ: websocket.MessageText, data: []byte(data)}
}

// DeliverJSON queues v, JSON-encoded, from the server.
func (c *Conn) DeliverJSON(t testing.TB, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("sockettest: encode: %v", err)
	}
	c.in <- inbound{typ: websocket.MessageText, data: data}
}

// ServerClose simulates a close frame from the server.
func (c *Conn) ServerClose(code websocket.StatusCode, reason string) {
	c.in <- inbound{err: websocket.CloseError{Code: code, Reason: reason}}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Fail simulates a transport failure without a close frame.
func (c *Conn) Fail(err error) {
	c.in <- inbound{err: err}
}

// Closed reports whether the client closed the connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCode returns the client's close code, or -1.
func (c *Conn) CloseCode() websocket.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// CloseReason returns the client's close reason.
func (c *Conn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// WaitClosed waits until the client closes the connection.
func (c *Conn) WaitClosed(t testing.TB, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(timeout):
		t.Fatalf("sockettest: connection not closed within %v", timeout)
	}
}

// Written returns a copy of every frame the client wrote.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// NextWrite waits for the next frame written by the client.
func (c *Conn) NextWrite(t testing.TB, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-c.writeNotify:
		return data
	case <-time.After(timeout):
		t.Fatalf("sockettest: no write within %v", timeout)
		return nil
	}
}

// NoWrite asserts that nothing is written within wait.
func (c *Conn) NoWrite(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case data := <-c.writeNotify:
		t.Fatalf("sockettest: unexpected write %s", data)
	case <-time.After(wait):
	}
}

var _ socket.Conn = (*Conn)(nil)
