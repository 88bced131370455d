package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/underwrite-ai/underwrite-go/pkg/log"
	"github.com/underwrite-ai/underwrite-go/pkg/socket"
)

// ConnState is the protocol state of the current connection generation.
type ConnState uint8

const (
	// StateConnecting means no socket is open; subscriptions are queued.
	StateConnecting ConnState = iota

	// StateAwaitingAck means connection_init was sent; subscriptions are queued.
	StateAwaitingAck

	// StateAcknowledged means start frames are sent immediately.
	StateAcknowledged

	// StateClosed means the session was disposed.
	StateClosed
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingAck:
		return "AWAITING_ACK"
	case StateAcknowledged:
		return "ACKNOWLEDGED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Options configures a Session.
type Options struct {
	// ReconnectDelay is the fixed wait between reconnects (default 3s).
	ReconnectDelay time.Duration

	// Reconnect overrides the socket's reconnect policy.
	Reconnect socket.ReconnectPolicy

	// Dialer overrides the WebSocket dialer.
	Dialer socket.Dialer

	// OnAck is called after every connection_ack, outside the session lock.
	// Subscriptions of earlier generations are gone by then; this is the
	// place to re-subscribe.
	OnAck func()

	// OnClose is called after every connection close.
	OnClose func(socket.CloseEvent)

	// OnStateChange is called on every protocol state transition.
	OnStateChange func(oldState, newState ConnState)

	// CaptureFrames also records raw socket frames to ProtocolLogger.
	CaptureFrames bool

	// Logger receives operational logs (discarded if nil).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (disabled if nil).
	ProtocolLogger log.Logger

	// keepaliveMinTick overrides MinKeepaliveTick in tests.
	keepaliveMinTick time.Duration
}

// Stats is a snapshot of session counters.
type Stats struct {
	State             ConnState
	Generation        uint32
	Pending           int
	Active            int
	FramesIn          uint64
	FramesOut         uint64
	Dropped           uint64
	Reconnects        uint64
	KeepaliveTimeouts uint64
	ConnectionTimeout time.Duration
	LastKeepalive     time.Time
}

type pendingStart struct {
	sub   *Subscription
	frame []byte
}

// readiness resolves once per connection generation.
type readiness struct {
	done chan struct{}
	err  error
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) resolve(err error) {
	select {
	case <-r.done:
	default:
		r.err = err
		close(r.done)
	}
}

// Session is a GraphQL realtime client bound to one endpoint.
type Session struct {
	id          string
	endpoint    string
	realtimeURL string
	host        string
	opts        Options
	logger      *slog.Logger
	plog        log.Logger

	mu         sync.Mutex
	sock       *socket.Socket
	auth       Auth
	state      ConnState
	generation uint32
	opened     bool
	timeout    time.Duration
	lastKA     time.Time
	pending    []pendingStart
	active     map[string]*Subscription
	ready      *readiness
	watchdog   *watchdog
	closed     bool
	stats      Stats
}

// Connect derives the realtime endpoint from an https GraphQL endpoint and
// starts connecting in the background. It fails without touching the
// network when the endpoint is not https or auth has no credentials.
func Connect(ctx context.Context, endpoint string, auth Auth, opts Options) (*Session, error) {
	rtURL, host, err := RealtimeURL(endpoint)
	if err != nil {
		return nil, err
	}
	if auth.IsZero() {
		return nil, ErrNoCredentials
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		id:          uuid.NewString(),
		endpoint:    endpoint,
		realtimeURL: rtURL,
		host:        host,
		opts:        opts,
		logger:      logger,
		plog:        log.OrNoop(opts.ProtocolLogger),
		auth:        auth,
		state:       StateConnecting,
		timeout:     DefaultConnectionTimeout,
		active:      make(map[string]*Subscription),
		ready:       newReadiness(),
	}

	// Hold the lock so socket callbacks observe s.sock.
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, err := socket.Connect(ctx, rtURL, socket.Options{
		ReconnectDelay: opts.ReconnectDelay,
		Reconnect:      opts.Reconnect,
		Dialer:         opts.Dialer,
		Protocols:      s.protocols,
		OnOpen:         s.handleOpen,
		OnMessage:      s.handleMessage,
		OnClose:        s.handleClose,
		CaptureFrames:  opts.CaptureFrames,
		Logger:         logger,
		ProtocolLogger: opts.ProtocolLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: %w", err)
	}
	s.sock = sock

	logger.Info("realtime: session created", "session", s.id, "url", rtURL, "auth", auth.Mode())
	return s, nil
}

// ID returns the session's capture identifier.
func (s *Session) ID() string { return s.id }

// URL returns the derived realtime endpoint.
func (s *Session) URL() string { return s.realtimeURL }

// Host returns the HTTP host used in authorization headers.
func (s *Session) Host() string { return s.host }

// State returns the protocol state of the current generation.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.state
	st.Generation = s.generation
	st.Pending = len(s.pending)
	st.Active = len(s.active)
	st.ConnectionTimeout = s.timeout
	st.LastKeepalive = s.lastKA
	return st
}

// SetAuth replaces the credential. It applies to the next dial and to every
// subscription started afterwards; queued start frames keep the credential
// they were built with.
func (s *Session) SetAuth(auth Auth) error {
	if auth.IsZero() {
		return ErrNoCredentials
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
	return nil
}

// Ready waits until the current connection generation is acknowledged.
// It returns ErrClosedBeforeAck if that connection closes first,
// ErrSessionClosed after Close, or the context's error.
func (s *Session) Ready(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	r := s.ready
	s.mu.Unlock()

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disposes the session. Transmitted subscriptions are stopped, queued
// ones discarded, waiters released with ErrSessionClosed and the socket
// closed. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for id, sub := range s.active {
		if sub.sentGeneration == s.generation && s.state == StateAcknowledged {
			s.sendLocked(TypeStop, id, encodeStop(id))
		}
		sub.orphan()
		delete(s.active, id)
	}
	s.pending = nil
	s.stopWatchdogLocked()
	s.ready.resolve(ErrSessionClosed)
	// An acknowledged generation has already resolved; later waiters
	// must still see the disposal.
	s.ready = newReadiness()
	s.ready.resolve(ErrSessionClosed)
	oldState := s.setStateLocked(StateClosed, "disposed")
	sock := s.sock
	s.mu.Unlock()

	s.notifyState(oldState, StateClosed)
	if sock != nil {
		sock.Close()
	}
	s.logger.Info("realtime: session closed", "session", s.id)
	return nil
}

// Done is closed when the underlying socket has stopped after Close.
func (s *Session) Done() <-chan struct{} {
	return s.sock.Done()
}

// protocols is evaluated by the socket on every dial.
func (s *Session) protocols() []string {
	s.mu.Lock()
	header := s.auth.Header(s.host)
	s.mu.Unlock()

	hp, err := HeaderProtocol(header)
	if err != nil {
		s.logger.Error("realtime: cannot encode auth header", "error", err)
		return []string{Protocol}
	}
	return []string{Protocol, hp}
}

func (s *Session) handleOpen() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.opened {
		s.stats.Reconnects++
	}
	s.opened = true
	s.generation++
	s.lastKA = time.Now()
	s.timeout = DefaultConnectionTimeout
	oldState := s.setStateLocked(StateAwaitingAck, "socket open")
	s.sendLocked(TypeConnectionInit, "", connectionInitFrame)
	gen := s.generation
	s.mu.Unlock()

	s.notifyState(oldState, StateAwaitingAck)
	s.logger.Debug("realtime: connection_init sent", "session", s.id, "generation", gen)
}

func (s *Session) handleClose(ev socket.CloseEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	wasOpen := s.state == StateAwaitingAck || s.state == StateAcknowledged
	acked := s.state == StateAcknowledged
	var oldState ConnState
	if wasOpen {
		s.stopWatchdogLocked()

		orphaned := len(s.active)
		for id, sub := range s.active {
			sub.orphan()
			delete(s.active, id)
		}
		s.pending = nil

		if !acked {
			s.ready.resolve(ErrClosedBeforeAck)
		}
		s.ready = newReadiness()
		oldState = s.setStateLocked(StateConnecting, fmt.Sprintf("socket closed code=%d", ev.Code))

		s.logger.Info("realtime: connection closed",
			"session", s.id,
			"generation", s.generation,
			"code", int(ev.Code),
			"reason", ev.Reason,
			"acknowledged", acked,
			"orphaned", orphaned)
	} else {
		// A failed dial never reached the protocol; queued requests wait
		// for the next connection.
		s.ready.resolve(ErrClosedBeforeAck)
		s.ready = newReadiness()
	}
	s.mu.Unlock()

	if wasOpen {
		s.notifyState(oldState, StateConnecting)
	}
	if s.opts.OnClose != nil {
		s.opts.OnClose(ev)
	}
}

func (s *Session) handleMessage(raw json.RawMessage) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		s.logger.Warn("realtime: dropping malformed frame", "session", s.id, "error", err)
		s.captureError(err.Error(), "decode")
		return
	}

	s.mu.Lock()
	s.stats.FramesIn++
	gen := s.generation
	s.mu.Unlock()
	s.captureFrame(log.DirectionIn, gen, frame.Type, frame.ID, raw)

	switch frame.Type {
	case TypeConnectionAck:
		s.handleAck(frame)
	case TypeKeepAlive:
		s.mu.Lock()
		s.lastKA = time.Now()
		s.mu.Unlock()
	case TypeStartAck:
		s.logger.Debug("realtime: start acknowledged", "session", s.id, "subscription", frame.ID)
	case TypeData:
		s.handleData(frame)
	case TypeError:
		s.handleError(frame)
	case TypeComplete:
		s.handleComplete(frame)
	case TypeConnectionError:
		s.handleConnectionError(frame)
	default:
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		s.logger.Debug("realtime: ignoring frame", "session", s.id, "type", frame.Type)
	}
}

func (s *Session) handleAck(frame Frame) {
	timeout := connectionTimeout(frame.Payload)

	s.mu.Lock()
	if s.closed || s.state != StateAwaitingAck {
		s.mu.Unlock()
		return
	}
	s.timeout = timeout
	s.lastKA = time.Now()
	oldState := s.setStateLocked(StateAcknowledged, "connection_ack")

	flushed := len(s.pending)
	for _, p := range s.pending {
		if s.sendLocked(TypeStart, p.sub.id, p.frame) {
			p.sub.sentGeneration = s.generation
		}
	}
	s.pending = nil

	gen := s.generation
	s.stopWatchdogLocked()
	s.watchdog = newWatchdog(timeout, s.opts.keepaliveMinTick, s.lastKeepalive, func() { s.keepaliveExpired(gen) })
	s.watchdog.start()
	s.ready.resolve(nil)
	s.mu.Unlock()

	s.notifyState(oldState, StateAcknowledged)
	s.logger.Info("realtime: connection acknowledged",
		"session", s.id,
		"generation", gen,
		"timeout", timeout,
		"flushed", flushed)

	if s.opts.OnAck != nil {
		s.opts.OnAck()
	}
}

func (s *Session) handleData(frame Frame) {
	sub := s.lookup(frame.ID)
	if sub == nil {
		s.dropUnroutable(frame)
		return
	}

	var payload dataPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.logger.Warn("realtime: malformed data payload", "session", s.id, "subscription", frame.ID, "error", err)
		return
	}
	if isNull(payload.Data) && !isNull(payload.Errors) {
		sub.deliverError(frame.Payload)
		return
	}
	sub.deliverNext(payload.Data)
}

func (s *Session) handleError(frame Frame) {
	sub := s.lookup(frame.ID)
	if sub == nil {
		s.dropUnroutable(frame)
		return
	}
	s.logger.Debug("realtime: subscription error", "session", s.id, "subscription", frame.ID)
	sub.deliverError(frame.Payload)
}

func (s *Session) handleComplete(frame Frame) {
	s.mu.Lock()
	sub, ok := s.active[frame.ID]
	if ok {
		delete(s.active, frame.ID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.captureSubscription(sub.id, "ACTIVE", "COMPLETED", "server complete")
	sub.complete()
}

func (s *Session) handleConnectionError(frame Frame) {
	s.logger.Warn("realtime: connection error", "session", s.id, "payload", string(frame.Payload))
	s.captureError(string(frame.Payload), TypeConnectionError)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	acked := s.state == StateAcknowledged
	if !acked {
		s.ready.resolve(fmt.Errorf("%w: %s", ErrConnectionError, frame.Payload))
	}
	sock := s.sock
	s.mu.Unlock()

	if !acked {
		go sock.Drop(CloseConnectionError, "connection error")
	}
}

func (s *Session) keepaliveExpired(gen uint32) {
	s.mu.Lock()
	if s.closed || s.generation != gen || s.state != StateAcknowledged {
		s.mu.Unlock()
		return
	}
	s.stats.KeepaliveTimeouts++
	last := s.lastKA
	timeout := s.timeout
	sock := s.sock

	// Frames read during the close handshake must not reach subscribers.
	orphaned := len(s.active)
	for id, sub := range s.active {
		sub.orphan()
		delete(s.active, id)
	}
	s.mu.Unlock()

	s.logger.Warn("realtime: keepalive timeout",
		"session", s.id,
		"generation", gen,
		"timeout", timeout,
		"since", time.Since(last),
		"orphaned", orphaned)
	s.captureError("keepalive timeout", "watchdog")
	sock.Drop(CloseKeepaliveTimeout, "keepalive timeout")
}

func (s *Session) lastKeepalive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastKA
}

func (s *Session) lookup(id string) *Subscription {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *Session) dropUnroutable(frame Frame) {
	s.mu.Lock()
	s.stats.Dropped++
	s.mu.Unlock()
	s.logger.Debug("realtime: dropping unroutable frame", "session", s.id, "type", frame.Type, "subscription", frame.ID)
}

// sendLocked writes a frame on the current connection. Caller holds s.mu.
func (s *Session) sendLocked(frameType, id string, data []byte) bool {
	if s.sock == nil || !s.sock.SendRaw(data) {
		s.logger.Warn("realtime: send failed", "session", s.id, "type", frameType, "subscription", id)
		return false
	}
	s.stats.FramesOut++
	s.captureFrame(log.DirectionOut, s.generation, frameType, id, data)
	return true
}

func (s *Session) stopWatchdogLocked() {
	if s.watchdog != nil {
		s.watchdog.stop()
		s.watchdog = nil
	}
}

// setStateLocked updates the state and records it. The caller invokes
// notifyState after releasing the lock.
func (s *Session) setStateLocked(newState ConnState, reason string) ConnState {
	oldState := s.state
	s.state = newState
	if oldState != newState {
		s.plog.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  s.id,
			Generation: s.generation,
			Layer:      log.LayerProtocol,
			Category:   log.CategoryState,
			Endpoint:   s.realtimeURL,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: oldState.String(),
				NewState: newState.String(),
				Reason:   reason,
			},
		})
	}
	return oldState
}

func (s *Session) notifyState(oldState, newState ConnState) {
	if oldState != newState && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(oldState, newState)
	}
}

func (s *Session) captureFrame(dir log.Direction, gen uint32, frameType, id string, data []byte) {
	s.plog.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      s.id,
		Generation:     gen,
		Direction:      dir,
		Layer:          log.LayerProtocol,
		Category:       log.CategoryFrame,
		Endpoint:       s.realtimeURL,
		SubscriptionID: id,
		Frame:          log.NewFrameEvent(frameType, data),
	})
}

func (s *Session) captureError(msg, op string) {
	s.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryError,
		Endpoint:  s.realtimeURL,
		Error: &log.ErrorEventData{
			Layer:   log.LayerProtocol,
			Message: msg,
			Context: op,
		},
	})
}

func (s *Session) captureSubscription(id, oldState, newState, reason string) {
	s.plog.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      s.id,
		Layer:          log.LayerSubscription,
		Category:       log.CategoryState,
		Endpoint:       s.realtimeURL,
		SubscriptionID: id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
