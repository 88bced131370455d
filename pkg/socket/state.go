package socket

// State represents the socket lifecycle state.
type State uint8

const (
	// StateDisconnected indicates no connection has been attempted yet.
	StateDisconnected State = iota

	// StateConnecting indicates the first dial is in progress.
	StateConnecting

	// StateOpen indicates an open connection.
	StateOpen

	// StateReconnecting indicates the previous connection closed and a new
	// dial is pending or in progress.
	StateReconnecting

	// StateClosed indicates the socket has been disposed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
