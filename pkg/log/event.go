package log

import "time"

// MaxFrameData bounds the number of payload bytes kept in a FrameEvent.
const MaxFrameData = 4096

// Event is one protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the owning socket or session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Generation is the connection generation the event belongs to.
	// It increments on every successful (re)connect; 0 means none yet.
	Generation uint32 `cbor:"3,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"6,keyasint"`

	// Endpoint is the WebSocket URL of the connection.
	Endpoint string `cbor:"7,keyasint,omitempty"`

	// SubscriptionID is set for subscription-scoped events.
	SubscriptionID string `cbor:"8,keyasint,omitempty"`

	// One of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionNone is used for events that are not messages (state, errors).
	DirectionNone Direction = 0
	// DirectionIn indicates an incoming frame.
	DirectionIn Direction = 1
	// DirectionOut indicates an outgoing frame.
	DirectionOut Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "-"
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerSocket is the reconnecting transport.
	LayerSocket Layer = 0
	// LayerProtocol is the GraphQL-over-WebSocket framing.
	LayerProtocol Layer = 1
	// LayerSubscription is the per-subscription bookkeeping.
	LayerSubscription Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerSocket:
		return "SOCKET"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerSubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates a frame on the wire.
	CategoryFrame Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error or a dropped frame.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one text frame.
type FrameEvent struct {
	// Type is the protocol frame type ("start", "data", ...), empty for raw
	// socket frames.
	Type string `cbor:"1,keyasint,omitempty"`

	// Size is the full frame size in bytes.
	Size int `cbor:"2,keyasint"`

	// Data holds the frame bytes, truncated to MaxFrameData.
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates if Data was cut.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent, copying at most MaxFrameData bytes.
func NewFrameEvent(frameType string, data []byte) *FrameEvent {
	fe := &FrameEvent{Type: frameType, Size: len(data)}
	n := len(data)
	if n > MaxFrameData {
		n = MaxFrameData
		fe.Truncated = true
	}
	if n > 0 {
		fe.Data = make([]byte, n)
		copy(fe.Data, data[:n])
	}
	return fe
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change, if known.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySocket is the physical connection.
	StateEntitySocket StateEntity = 0
	// StateEntitySession is the realtime handshake state machine.
	StateEntitySession StateEntity = 1
	// StateEntitySubscription is a single subscription.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySocket:
		return "SOCKET"
	case StateEntitySession:
		return "SESSION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors and dropped frames.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error text.
	Message string `cbor:"2,keyasint"`

	// Code is a WebSocket close code, if applicable.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what was being done.
	Context string `cbor:"4,keyasint,omitempty"`
}
