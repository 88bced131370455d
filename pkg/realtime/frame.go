package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"nhooyr.io/websocket"
)

// Protocol identifiers.
const (
	// Protocol is the WebSocket subprotocol name.
	Protocol = "graphql-ws"

	// headerProtocolPrefix prefixes the base64url-encoded auth header subprotocol.
	headerProtocolPrefix = "header-"
)

// Frame types.
const (
	TypeConnectionInit  = "connection_init"
	TypeConnectionAck   = "connection_ack"
	TypeConnectionError = "connection_error"
	TypeKeepAlive       = "ka"
	TypeStart           = "start"
	TypeStartAck        = "start_ack"
	TypeData            = "data"
	TypeError           = "error"
	TypeComplete        = "complete"
	TypeStop            = "stop"
)

// DefaultConnectionTimeout applies when connection_ack omits connectionTimeoutMs.
const DefaultConnectionTimeout = 300 * time.Second

// Close codes used by the session when it drops a connection.
const (
	CloseKeepaliveTimeout websocket.StatusCode = 4000
	CloseConnectionError  websocket.StatusCode = 4001
)

// Frame is the wire unit: {id?, type, payload?}.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeFrame parses one message. Messages without a type are rejected.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

// ackPayload is the connection_ack payload.
type ackPayload struct {
	ConnectionTimeoutMs int64 `json:"connectionTimeoutMs"`
}

// connectionTimeout extracts the negotiated timeout from an ack payload.
func connectionTimeout(payload json.RawMessage) time.Duration {
	if len(payload) == 0 {
		return DefaultConnectionTimeout
	}
	var ack ackPayload
	if err := json.Unmarshal(payload, &ack); err != nil || ack.ConnectionTimeoutMs <= 0 {
		return DefaultConnectionTimeout
	}
	return time.Duration(ack.ConnectionTimeoutMs) * time.Millisecond
}

// Request is one GraphQL subscription operation.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type startPayload struct {
	Data       string          `json:"data"`
	Extensions startExtensions `json:"extensions"`
}

type startExtensions struct {
	Authorization map[string]string `json:"authorization"`
}

// encodeStart builds a start frame. The request is embedded as a JSON string.
func encodeStart(id string, req Request, authorization map[string]string) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	payload, err := json.Marshal(startPayload{
		Data:       string(data),
		Extensions: startExtensions{Authorization: authorization},
	})
	if err != nil {
		return nil, fmt.Errorf("encode start payload: %w", err)
	}
	return json.Marshal(Frame{ID: id, Type: TypeStart, Payload: payload})
}

func encodeStop(id string) []byte {
	data, _ := json.Marshal(Frame{ID: id, Type: TypeStop})
	return data
}

var connectionInitFrame = []byte(`{"type":"connection_init"}`)

// dataPayload is the payload of a data frame.
type dataPayload struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
