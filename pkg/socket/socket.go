package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/underwrite-ai/underwrite-go/pkg/log"
)

// Socket errors.
var (
	ErrNilContext        = errors.New("socket: nil context")
	ErrUnsupportedScheme = errors.New("socket: url scheme must be ws or wss")
)

// DefaultWriteTimeout bounds a single Send.
const DefaultWriteTimeout = 10 * time.Second

// CloseEvent describes why a connection closed.
type CloseEvent struct {
	// Code is the WebSocket close code; StatusAbnormalClosure when the
	// connection failed without a close frame.
	Code websocket.StatusCode

	// Reason is the close reason, if any.
	Reason string

	// Local is true when this side initiated the close (Drop or Close).
	Local bool

	// Err is the transport error behind an abnormal closure.
	Err error
}

// MessageFunc receives one validated JSON message.
type MessageFunc func(msg json.RawMessage)

// Options configures a Socket.
type Options struct {
	// ReconnectDelay is the fixed wait before every reconnect (default 3s).
	// Ignored when Reconnect is set.
	ReconnectDelay time.Duration

	// Reconnect overrides the reconnect policy.
	Reconnect ReconnectPolicy

	// OnOpen is called after every successful dial.
	OnOpen func()

	// OnMessage is called for every valid JSON message.
	OnMessage MessageFunc

	// OnClose is called after every close, including failed dials.
	OnClose func(CloseEvent)

	// OnError is called for dial failures and abnormal read failures,
	// always before the matching OnClose.
	OnError func(error)

	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)

	// Protocols returns the subprotocols to offer; evaluated on every dial.
	Protocols func() []string

	// HTTPHeader is sent with every upgrade request.
	HTTPHeader http.Header

	// Dialer defaults to WebSocketDialer{}.
	Dialer Dialer

	// BufferSize bounds the replay buffer (default 256).
	BufferSize int

	// WriteTimeout bounds a single write (default 10s).
	WriteTimeout time.Duration

	// CaptureFrames records raw inbound/outbound frames to ProtocolLogger.
	// Lifecycle and errors are always recorded.
	CaptureFrames bool

	// Logger receives operational logs (discarded if nil).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (disabled if nil).
	ProtocolLogger log.Logger
}

// Socket is a best-effort persistent connection to one URL.
type Socket struct {
	id     string
	url    string
	opts   Options
	dialer Dialer
	policy ReconnectPolicy
	logger *slog.Logger
	plog   log.Logger

	mu           sync.RWMutex
	conn         Conn
	state        State
	generation   uint32
	pendingClose *CloseEvent
	buffer       *replayBuffer
	listeners    map[uint64]MessageFunc
	nextListener uint64

	// deliverMu orders live deliveries against listener replays.
	deliverMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Connect validates the URL and starts the connection loop. It returns
// immediately; the first dial happens in the background.
func Connect(ctx context.Context, rawURL string, opts Options) (*Socket, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("socket: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	s := newSocket(rawURL, opts)
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()
	return s, nil
}

func newSocket(rawURL string, opts Options) *Socket {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	policy := opts.Reconnect
	if policy == nil {
		policy = FixedDelay(opts.ReconnectDelay)
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Socket{
		id:        uuid.NewString(),
		url:       rawURL,
		opts:      opts,
		dialer:    dialer,
		policy:    policy,
		logger:    logger,
		plog:      log.OrNoop(opts.ProtocolLogger),
		state:     StateDisconnected,
		buffer:    newReplayBuffer(opts.BufferSize),
		listeners: make(map[uint64]MessageFunc),
		done:      make(chan struct{}),
	}
}

// ID returns the socket's capture identifier.
func (s *Socket) ID() string { return s.id }

// URL returns the endpoint URL.
func (s *Socket) URL() string { return s.url }

// State returns the current lifecycle state.
func (s *Socket) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsOpen reports whether a connection is currently open.
func (s *Socket) IsOpen() bool {
	return s.State() == StateOpen
}

// Generation returns the number of successful opens so far.
func (s *Socket) Generation() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Conn returns the live connection, or nil when not open.
func (s *Socket) Conn() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Done is closed when the connection loop has exited after Close.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Messages returns a copy of the current connection's buffered messages.
func (s *Socket) Messages() []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffer.snapshot()
}

// Listen registers fn for inbound messages. Messages already buffered for
// the current connection are replayed to fn before any live message.
// Listen must not be called from inside a message callback.
func (s *Socket) Listen(fn MessageFunc) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.deliverMu.Lock()
	s.mu.Lock()
	key := s.nextListener
	s.nextListener++
	s.listeners[key] = fn
	replay := s.buffer.snapshot()
	s.mu.Unlock()
	for _, msg := range replay {
		fn(msg)
	}
	s.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, key)
			s.mu.Unlock()
		})
	}
}

// Send JSON-encodes v and writes it if the socket is open. It never queues:
// when the socket is not open, or encoding or writing fails, it returns false.
func (s *Socket) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("socket: encode failed", "error", err)
		return false
	}
	return s.SendRaw(data)
}

// SendRaw writes a pre-encoded text frame if the socket is open.
func (s *Socket) SendRaw(data []byte) bool {
	s.mu.RLock()
	conn := s.conn
	gen := s.generation
	s.mu.RUnlock()
	if conn == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Warn("socket: write failed", "url", s.url, "error", err)
		return false
	}

	if s.opts.CaptureFrames {
		s.plog.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  s.id,
			Generation: gen,
			Direction:  log.DirectionOut,
			Layer:      log.LayerSocket,
			Category:   log.CategoryFrame,
			Endpoint:   s.url,
			Frame:      log.NewFrameEvent("", data),
		})
	}
	return true
}

// Drop force-closes the current connection with the given code. The close
// path runs as usual, so a reconnect follows.
func (s *Socket) Drop(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return
	}
	s.pendingClose = &CloseEvent{Code: code, Reason: reason, Local: true}
	s.mu.Unlock()

	s.logger.Debug("socket: dropping connection", "url", s.url, "code", int(code), "reason", reason)
	_ = conn.Close(code, reason)
}

// Close disposes the socket: the current connection is closed, the
// reference is cleared and no further reconnect is attempted.
// It is safe to call Close multiple times and from callbacks.
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		if conn != nil {
			s.pendingClose = &CloseEvent{Code: websocket.StatusNormalClosure, Reason: "closed", Local: true}
		}
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
		}
		s.cancel()
	})
}

func (s *Socket) run() {
	defer close(s.done)
	defer s.setState(StateClosed, "disposed")

	first := true
	for {
		if s.ctx.Err() != nil {
			return
		}
		if first {
			s.setState(StateConnecting, "dial")
		} else {
			s.setState(StateReconnecting, "dial")
		}
		first = false

		conn, err := s.dialer.Dial(s.ctx, s.url, s.dialOptions())
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(err, "dial")
			s.emitClose(CloseEvent{Code: websocket.StatusAbnormalClosure, Err: err})
		} else {
			s.open(conn)
			ev := s.readLoop(conn)
			s.teardown(conn, ev)
		}

		if s.ctx.Err() != nil {
			return
		}
		s.setState(StateReconnecting, "scheduled")
		if !s.sleep(s.policy.Next()) {
			return
		}
	}
}

func (s *Socket) dialOptions() DialOptions {
	opts := DialOptions{HTTPHeader: s.opts.HTTPHeader}
	if s.opts.Protocols != nil {
		opts.Subprotocols = s.opts.Protocols()
	}
	return opts
}

func (s *Socket) open(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.generation++
	s.pendingClose = nil
	s.buffer.reset()
	gen := s.generation
	s.mu.Unlock()

	s.policy.Reset()
	s.setState(StateOpen, "connected")
	s.logger.Info("socket: connected", "url", s.url, "generation", gen, "subprotocol", conn.Subprotocol())

	if s.opts.OnOpen != nil {
		s.opts.OnOpen()
	}
}

func (s *Socket) readLoop(conn Conn) CloseEvent {
	for {
		typ, data, err := conn.Read(s.ctx)
		if err != nil {
			return s.closeEventFor(conn, err)
		}
		if typ != websocket.MessageText {
			s.logger.Debug("socket: binary frame received, validating as JSON", "size", len(data))
		}
		s.handleMessage(data)
	}
}

// closeEventFor classifies a read failure. Locally initiated closes report
// their own code; peer closes report the peer's frame; anything else is an
// error that force-closes the connection.
func (s *Socket) closeEventFor(conn Conn, err error) CloseEvent {
	s.mu.Lock()
	pending := s.pendingClose
	s.pendingClose = nil
	s.mu.Unlock()

	if pending != nil {
		return *pending
	}

	if code := websocket.CloseStatus(err); code != -1 {
		var ce websocket.CloseError
		reason := ""
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		return CloseEvent{Code: code, Reason: reason}
	}

	if s.ctx.Err() != nil {
		return CloseEvent{Code: websocket.StatusNormalClosure, Reason: "closed", Local: true}
	}

	s.fail(err, "read")
	_ = conn.Close(websocket.StatusInternalError, "read failed")
	return CloseEvent{Code: websocket.StatusAbnormalClosure, Err: err}
}

func (s *Socket) handleMessage(data []byte) {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	if !json.Valid(data) {
		s.logger.Warn("socket: dropping malformed frame", "url", s.url, "size", len(data))
		s.plog.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  s.id,
			Generation: gen,
			Direction:  log.DirectionIn,
			Layer:      log.LayerSocket,
			Category:   log.CategoryError,
			Endpoint:   s.url,
			Error: &log.ErrorEventData{
				Layer:   log.LayerSocket,
				Message: "malformed JSON frame dropped",
				Context: "read",
			},
		})
		return
	}

	if s.opts.CaptureFrames {
		s.plog.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  s.id,
			Generation: gen,
			Direction:  log.DirectionIn,
			Layer:      log.LayerSocket,
			Category:   log.CategoryFrame,
			Endpoint:   s.url,
			Frame:      log.NewFrameEvent("", data),
		})
	}

	msg := make(json.RawMessage, len(data))
	copy(msg, data)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.buffer.push(msg)
	listeners := make([]MessageFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if s.opts.OnMessage != nil {
		s.opts.OnMessage(msg)
	}
	for _, fn := range listeners {
		fn(msg)
	}
}

func (s *Socket) teardown(conn Conn, ev CloseEvent) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()

	s.logger.Info("socket: closed", "url", s.url, "code", int(ev.Code), "reason", ev.Reason, "local", ev.Local)
	s.emitClose(ev)
}

func (s *Socket) emitClose(ev CloseEvent) {
	code := int(ev.Code)
	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Generation: s.Generation(),
		Layer:      log.LayerSocket,
		Category:   log.CategoryState,
		Endpoint:   s.url,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySocket,
			NewState: "CLOSED_CONNECTION",
			Reason:   fmt.Sprintf("code=%d reason=%q", code, ev.Reason),
		},
	})
	if s.opts.OnClose != nil {
		s.opts.OnClose(ev)
	}
}

func (s *Socket) fail(err error, op string) {
	s.logger.Warn("socket: connection error", "url", s.url, "op", op, "error", err)
	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Generation: s.Generation(),
		Layer:      log.LayerSocket,
		Category:   log.CategoryError,
		Endpoint:   s.url,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSocket,
			Message: err.Error(),
			Context: op,
		},
	})
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Socket) setState(newState State, reason string) {
	s.mu.Lock()
	oldState := s.state
	if oldState == newState {
		s.mu.Unlock()
		return
	}
	s.state = newState
	gen := s.generation
	s.mu.Unlock()

	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Generation: gen,
		Layer:      log.LayerSocket,
		Category:   log.CategoryState,
		Endpoint:   s.url,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySocket,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(oldState, newState)
	}
}

func (s *Socket) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
