package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrorFunc receives the raw error payload of a subscription.
type ErrorFunc func(payload json.RawMessage)

// Handlers are the callbacks of one subscription. They run on the socket
// goroutine, one frame at a time.
type Handlers struct {
	// Next receives payload.data of every data frame.
	Next func(data json.RawMessage)

	// Error receives the raw payload of error frames, and of data frames
	// that carry errors without data. Optional.
	Error ErrorFunc

	// Complete is called when the server completes the subscription. Optional.
	Complete func()
}

// Subscription is the handle of one subscribe call.
type Subscription struct {
	id       string
	session  *Session
	handlers Handlers

	// sentGeneration is the generation the start frame went out on, 0 while queued.
	// Guarded by session.mu.
	sentGeneration uint32

	mu   sync.Mutex
	done bool

	unsubscribeOnce sync.Once
}

// ID returns the client-generated subscription id.
func (sub *Subscription) ID() string { return sub.id }

// Active reports whether the subscription can still receive frames.
func (sub *Subscription) Active() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return !sub.done
}

// Unsubscribe stops the subscription. A queued start frame is discarded
// locally; a transmitted one is answered with exactly one stop frame.
// Further calls do nothing.
func (sub *Subscription) Unsubscribe() {
	sub.unsubscribeOnce.Do(func() {
		sub.session.unsubscribe(sub)
	})
}

func (sub *Subscription) orphan() {
	sub.mu.Lock()
	sub.done = true
	sub.mu.Unlock()
}

func (sub *Subscription) deliverNext(data json.RawMessage) {
	if !sub.Active() {
		return
	}
	sub.handlers.Next(data)
}

func (sub *Subscription) deliverError(payload json.RawMessage) {
	if !sub.Active() || sub.handlers.Error == nil {
		return
	}
	sub.handlers.Error(payload)
}

func (sub *Subscription) complete() {
	sub.mu.Lock()
	wasDone := sub.done
	sub.done = true
	sub.mu.Unlock()
	if !wasDone && sub.handlers.Complete != nil {
		sub.handlers.Complete()
	}
}

// Subscribe registers a subscription. The start frame is sent right away
// when the connection is acknowledged, otherwise it is queued until the
// next connection_ack. Subscribe never blocks on the network handshake.
func (s *Session) Subscribe(req Request, h Handlers) (*Subscription, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if h.Next == nil {
		return nil, ErrNoHandler
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}

	sub := &Subscription{
		id:       uuid.NewString(),
		session:  s,
		handlers: h,
	}
	frame, err := encodeStart(sub.id, req, s.auth.Header(s.host))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.active[sub.id] = sub

	queued := s.state != StateAcknowledged
	if queued {
		s.pending = append(s.pending, pendingStart{sub: sub, frame: frame})
	} else if s.sendLocked(TypeStart, sub.id, frame) {
		sub.sentGeneration = s.generation
	}
	gen := s.generation
	s.mu.Unlock()

	newState := "STARTED"
	if queued {
		newState = "QUEUED"
	}
	s.captureSubscription(sub.id, "", newState, "subscribe")
	s.logger.Debug("realtime: subscribe", "session", s.id, "subscription", sub.id, "queued", queued, "generation", gen)
	return sub, nil
}

func (s *Session) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	_, registered := s.active[sub.id]
	delete(s.active, sub.id)

	wasQueued := false
	for i, p := range s.pending {
		if p.sub == sub {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			wasQueued = true
			break
		}
	}

	stopped := false
	if !wasQueued && !s.closed && sub.sentGeneration != 0 &&
		sub.sentGeneration == s.generation && s.state == StateAcknowledged {
		stopped = s.sendLocked(TypeStop, sub.id, encodeStop(sub.id))
	}
	s.mu.Unlock()

	sub.orphan()
	if registered || stopped {
		s.captureSubscription(sub.id, "", "STOPPED", "unsubscribe")
	}
	s.logger.Debug("realtime: unsubscribe", "session", s.id, "subscription", sub.id, "queued", wasQueued, "stop_sent", stopped)
}

// Subscribe registers a subscription whose data is decoded into T.
// Decoding failures are reported to onError as a GraphQL-style errors
// payload.
func Subscribe[T any](s *Session, req Request, next func(T), onError ErrorFunc) (*Subscription, error) {
	if next == nil {
		return nil, ErrNoHandler
	}
	return s.Subscribe(req, Handlers{
		Next: func(data json.RawMessage) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				s.logger.Warn("realtime: cannot decode subscription data", "session", s.id, "error", err)
				if onError != nil {
					onError(errorsPayload(fmt.Sprintf("decode data: %v", err)))
				}
				return
			}
			next(v)
		},
		Error: onError,
	})
}

// GraphQLError is one entry of a GraphQL errors array.
type GraphQLError struct {
	Message   string         `json:"message"`
	ErrorType string         `json:"errorType,omitempty"`
	Path      []any          `json:"path,omitempty"`
	Locations []Location     `json:"locations,omitempty"`
	Extra     map[string]any `json:"extensions,omitempty"`
}

// Location points into the GraphQL document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (e GraphQLError) Error() string {
	if e.ErrorType != "" {
		return e.ErrorType + ": " + e.Message
	}
	return e.Message
}

// ErrUnrecognizedErrors is returned by ParseErrors for payloads that carry
// no GraphQL errors.
var ErrUnrecognizedErrors = errors.New("realtime: unrecognized error payload")

// ParseErrors decodes an error payload. It accepts {"errors": [...]}, a bare
// errors array, or a single error object.
func ParseErrors(payload json.RawMessage) ([]GraphQLError, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrUnrecognizedErrors
	}

	if trimmed[0] == '[' {
		var errs []GraphQLError
		if err := json.Unmarshal(trimmed, &errs); err != nil {
			return nil, fmt.Errorf("parse errors: %w", err)
		}
		return errs, nil
	}

	var wrapped struct {
		Errors  []GraphQLError `json:"errors"`
		Message string         `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("parse errors: %w", err)
	}
	if len(wrapped.Errors) > 0 {
		return wrapped.Errors, nil
	}
	if wrapped.Message != "" {
		var single GraphQLError
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("parse errors: %w", err)
		}
		return []GraphQLError{single}, nil
	}
	return nil, ErrUnrecognizedErrors
}

func errorsPayload(msg string) json.RawMessage {
	data, _ := json.Marshal(struct {
		Errors []GraphQLError `json:"errors"`
	}{Errors: []GraphQLError{{Message: msg}}})
	return data
}
