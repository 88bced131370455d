package interactive

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underwrite-ai/underwrite-go/pkg/config"
	"github.com/underwrite-ai/underwrite-go/pkg/realtime"
	"github.com/underwrite-ai/underwrite-go/pkg/socket/sockettest"
	"github.com/underwrite-ai/underwrite-go/pkg/underwriting"
)

const waitFor = 2 * time.Second

const testConfig = `
endpoint: https://abc.appsync-api.eu-central-1.amazonaws.com/graphql
auth:
  mode: apiKey
  apiKey: da2-test
subscriptions:
  - name: tick
    query: "subscription { tick }"
  - name: alerts
    query: "subscription { onAlert { id } }"
`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	t      *testing.T
	out    *syncBuffer
	w      *Watcher
	dialer *sockettest.Dialer
	s      *realtime.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	d := sockettest.NewDialer()
	auth, err := cfg.RealtimeAuth()
	require.NoError(t, err)
	s, err := realtime.Connect(context.Background(), cfg.Endpoint, auth, realtime.Options{
		Dialer:         d,
		ReconnectDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	out := &syncBuffer{}
	w := newWatcher(cfg, out)
	feeds := underwriting.NewFeeds()
	feeds.Attach(s)
	w.Attach(s, feeds)
	return &fixture{t: t, out: out, w: w, dialer: d, s: s}
}

func (f *fixture) openAndAck() *sockettest.Conn {
	f.t.Helper()
	conn := f.dialer.Next(f.t, waitFor)
	f.nextFrame(conn)
	conn.DeliverJSON(f.t, map[string]any{"type": realtime.TypeConnectionAck})
	require.Eventually(f.t, func() bool {
		return f.s.State() == realtime.StateAcknowledged
	}, waitFor, time.Millisecond)
	return conn
}

func (f *fixture) nextFrame(conn *sockettest.Conn) realtime.Frame {
	f.t.Helper()
	frame, err := realtime.DecodeFrame(conn.NextWrite(f.t, waitFor))
	require.NoError(f.t, err)
	return frame
}

func (f *fixture) run(line string) bool {
	return f.w.Execute(context.Background(), line)
}

func (f *fixture) waitOutput(substr string) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return strings.Contains(f.out.String(), substr)
	}, waitFor, time.Millisecond, "output %q does not contain %q", f.out.String(), substr)
}

func TestExecuteSubscribeAndData(t *testing.T) {
	f := newFixture(t)
	conn := f.openAndAck()

	assert.False(t, f.run("sub tick"))
	start := f.nextFrame(conn)
	assert.Equal(t, realtime.TypeStart, start.Type)
	f.waitOutput("Subscribed tick (id " + start.ID + ")")

	f.run("sub tick")
	f.waitOutput("Already subscribed: tick")

	conn.DeliverJSON(t, map[string]any{
		"id":      start.ID,
		"type":    realtime.TypeData,
		"payload": map[string]any{"data": map[string]any{"tick": 1}},
	})
	f.waitOutput(`[DATA] tick: {"tick":1}`)

	conn.DeliverJSON(t, map[string]any{
		"id":      start.ID,
		"type":    realtime.TypeError,
		"payload": map[string]any{"errors": []any{map[string]any{"message": "denied", "errorType": "Unauthorized"}}},
	})
	f.waitOutput("[ERROR] tick: Unauthorized: denied")

	f.run("unsub tick")
	stop := f.nextFrame(conn)
	assert.Equal(t, realtime.TypeStop, stop.Type)
	assert.Equal(t, start.ID, stop.ID)
	f.waitOutput("Cancelled tick")
}

func TestExecuteProjectFeeds(t *testing.T) {
	f := newFixture(t)
	conn := f.openAndAck()

	f.run("docs p-9")
	docs := f.nextFrame(conn)
	f.waitOutput("Watching documents:p-9")

	conn.DeliverJSON(t, map[string]any{
		"id":   docs.ID,
		"type": realtime.TypeData,
		"payload": map[string]any{"data": map[string]any{
			"onDocumentUpdated": map[string]any{"id": "d-1", "name": "t12.xlsx", "status": "PROCESSING"},
		}},
	})
	f.waitOutput(`[DOCUMENT] d-1 "t12.xlsx" status=PROCESSING`)

	f.run("insights p-9")
	f.nextFrame(conn)
	f.run("projects")
	f.nextFrame(conn)

	f.run("list")
	f.waitOutput("Feeds (3):")
	f.waitOutput("insights:p-9")
	f.waitOutput("Configured (2):")

	f.run("unsub " + docs.ID)
	f.waitOutput("Cancelled documents:p-9")
}

func TestExecuteQueuedBeforeAck(t *testing.T) {
	f := newFixture(t)

	f.run("sub alerts")
	f.waitOutput("Subscribed alerts")

	f.run("status")
	f.waitOutput("Subs:        1 active, 1 pending")

	conn := f.openAndAck()
	start := f.nextFrame(conn)
	assert.Equal(t, realtime.TypeStart, start.Type)

	f.run("ready 1s")
	f.waitOutput("Ready")
	f.run("status")
	f.waitOutput("State:       ACKNOWLEDGED")
}

func TestExecuteUsageAndErrors(t *testing.T) {
	f := newFixture(t)

	f.run("sub")
	f.waitOutput("Usage: sub <name>")
	f.run("sub nope")
	f.waitOutput("Unknown subscription: nope")
	f.run("unsub nope")
	f.waitOutput("No such feed: nope")
	f.run("ready soon")
	f.waitOutput("Invalid timeout")
	f.run("ready 20ms")
	f.waitOutput("Not ready: context deadline exceeded")
	f.run("frobnicate")
	f.waitOutput("Unknown command: frobnicate")

	assert.False(t, f.run("   "))
	assert.True(t, f.run("quit"))
}

func TestExecuteNotAttached(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	out := &syncBuffer{}
	w := newWatcher(cfg, out)

	w.Execute(context.Background(), "sub tick")
	w.Execute(context.Background(), "status")
	assert.Equal(t, 2, strings.Count(out.String(), "Not connected"))

	w.Execute(context.Background(), "list")
	assert.Contains(t, out.String(), "Configured (2):")
	assert.NotContains(t, out.String(), "Feeds (")
}
