package socket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/underwrite-ai/underwrite-go/pkg/socket"
)

// echoServer accepts graphql-ws and echoes every text message.
func echoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"graphql-ws"}})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusInternalError, "")
		for {
			typ, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			if err := c.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketDialer(t *testing.T) {
	url := echoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := socket.WebSocketDialer{}.Dial(ctx, url, socket.DialOptions{
		Subprotocols: []string{"graphql-ws"},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, "graphql-ws", conn.Subprotocol())

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ka"}`)))
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"type":"ka"}`, string(data))
}

func TestWebSocketDialerError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := socket.WebSocketDialer{HandshakeTimeout: time.Second}.Dial(
		context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), socket.DialOptions{})
	assert.Error(t, err)
}

func TestSocketOverRealWebSocket(t *testing.T) {
	url := echoServer(t)

	opened := make(chan struct{}, 1)
	got := make(chan string, 1)
	s, err := socket.Connect(context.Background(), url, socket.Options{
		Protocols: func() []string { return []string{"graphql-ws"} },
		OnOpen:    func() { opened <- struct{}{} },
		OnMessage: func(msg json.RawMessage) { got <- string(msg) },
	})
	require.NoError(t, err)
	defer s.Close()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("socket did not open")
	}
	require.True(t, s.Send(map[string]string{"type": "connection_init"}))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"type":"connection_init"}`, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("echo not received")
	}
}
