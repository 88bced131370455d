package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/underwrite-ai/underwrite-go/pkg/socket/sockettest"
)

const (
	testEndpoint = "https://abc123.appsync-api.eu-central-1.amazonaws.com/graphql"
	testHost     = "abc123.appsync-api.eu-central-1.amazonaws.com"
	waitFor      = 2 * time.Second
)

type harness struct {
	t      *testing.T
	dialer *sockettest.Dialer
	s      *Session
}

func newHarness(t *testing.T, auth Auth, opts Options) *harness {
	t.Helper()
	d := sockettest.NewDialer()
	opts.Dialer = d
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 10 * time.Millisecond
	}
	s, err := Connect(context.Background(), testEndpoint, auth, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &harness{t: t, dialer: d, s: s}
}

// open waits for the next dial and consumes connection_init.
func (h *harness) open() *sockettest.Conn {
	h.t.Helper()
	conn := h.dialer.Next(h.t, waitFor)
	f := decodeWrite(h.t, conn.NextWrite(h.t, waitFor))
	require.Equal(h.t, TypeConnectionInit, f.Type)
	return conn
}

// ack acknowledges the connection and waits until the session observed it.
func (h *harness) ack(conn *sockettest.Conn, timeoutMs int) {
	h.t.Helper()
	conn.DeliverJSON(h.t, map[string]any{
		"type":    TypeConnectionAck,
		"payload": map[string]any{"connectionTimeoutMs": timeoutMs},
	})
	require.Eventually(h.t, func() bool {
		return h.s.State() == StateAcknowledged
	}, waitFor, time.Millisecond)
}

// waitDropped waits until the session counted n dropped frames.
func (h *harness) waitDropped(n uint64) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.s.Stats().Dropped >= n
	}, waitFor, time.Millisecond)
}

// waitFramesIn waits until the session processed n frames.
func (h *harness) waitFramesIn(n uint64) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.s.Stats().FramesIn >= n
	}, waitFor, time.Millisecond)
}

func decodeWrite(t *testing.T, data []byte) Frame {
	t.Helper()
	f, err := DecodeFrame(data)
	require.NoError(t, err)
	return f
}

type decodedStart struct {
	Request       Request
	Authorization map[string]string
}

func decodeStart(t *testing.T, f Frame) decodedStart {
	t.Helper()
	require.Equal(t, TypeStart, f.Type)
	var p startPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	var req Request
	require.NoError(t, json.Unmarshal([]byte(p.Data), &req))
	return decodedStart{Request: req, Authorization: p.Extensions.Authorization}
}

func dataFrame(id string, data any) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    TypeData,
		"payload": map[string]any{"data": data},
	}
}

// sink collects subscription callbacks.
type sink struct {
	next   chan json.RawMessage
	errs   chan json.RawMessage
	closed chan struct{}
}

func newSink() *sink {
	return &sink{
		next:   make(chan json.RawMessage, 16),
		errs:   make(chan json.RawMessage, 16),
		closed: make(chan struct{}, 1),
	}
}

func (k *sink) handlers() Handlers {
	return Handlers{
		Next:     func(data json.RawMessage) { k.next <- data },
		Error:    func(payload json.RawMessage) { k.errs <- payload },
		Complete: func() { k.closed <- struct{}{} },
	}
}

func (k *sink) expectNext(t *testing.T) json.RawMessage {
	t.Helper()
	select {
	case data := <-k.next:
		return data
	case <-time.After(waitFor):
		t.Fatal("next not called")
		return nil
	}
}

func (k *sink) expectError(t *testing.T) json.RawMessage {
	t.Helper()
	select {
	case payload := <-k.errs:
		return payload
	case <-time.After(waitFor):
		t.Fatal("error not called")
		return nil
	}
}

func (k *sink) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case data := <-k.next:
		t.Fatalf("unexpected next(%s)", data)
	case payload := <-k.errs:
		t.Fatalf("unexpected error(%s)", payload)
	default:
	}
}
