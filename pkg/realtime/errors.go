package realtime

import "errors"

// Session errors.
var (
	ErrInsecureEndpoint = errors.New("realtime: endpoint must use https")
	ErrInvalidEndpoint  = errors.New("realtime: invalid endpoint")
	ErrNoCredentials    = errors.New("realtime: auth has no credentials")
	ErrEmptyQuery       = errors.New("realtime: empty query")
	ErrNoHandler        = errors.New("realtime: next handler is required")
	ErrSessionClosed    = errors.New("realtime: session closed")
	ErrClosedBeforeAck  = errors.New("realtime: connection closed before acknowledgement")
	ErrConnectionError  = errors.New("realtime: connection error")
)
