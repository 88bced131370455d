// Package socket provides a reconnecting JSON WebSocket transport.
//
// A Socket owns at most one physical connection to a single URL at a time
// and reconnects automatically after every close. It handles:
//   - Dialing through a pluggable Dialer (nhooyr.io/websocket by default)
//   - JSON validation of inbound frames (malformed frames are dropped)
//   - A replayable buffer of the current connection's messages
//   - Fire-and-forget sends that only transmit while the socket is open
//
// There is no protocol framing here; see package realtime for the GraphQL
// subscription session built on top of it.
//
// # Reconnection
//
// By default the socket waits a fixed 3 seconds before every reconnect and
// retries forever:
//
//	close → wait ReconnectDelay → dial → (open | error → close → wait ...)
//
// A bounded exponential policy can be selected with NewBackoff:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// The loop only stops when Close is called or the context passed to Connect
// is cancelled.
package socket
