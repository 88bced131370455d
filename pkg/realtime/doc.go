// Package realtime implements a GraphQL subscription client for the
// graphql-ws protocol spoken by managed realtime GraphQL endpoints.
//
// A Session owns one reconnecting socket (package socket) and runs the
// protocol on top of it:
//
//	open → connection_init → connection_ack → start/data/complete ... → close
//
// Subscriptions requested before connection_ack are queued and flushed in
// call order as soon as the acknowledgement arrives. Every start frame
// carries an authorization block derived from the session's Auth, and the
// same credential is offered during the WebSocket handshake as a
// "header-<base64url JSON>" subprotocol.
//
// # Liveness
//
// The server announces a connection timeout in connection_ack and sends ka
// frames. A watchdog ticks at a quarter of that timeout (at least once per
// second); when no ka arrived within the timeout the connection is dropped
// with CloseKeepaliveTimeout and the socket reconnects.
//
// # Reconnects
//
// Subscriptions belong to one connection generation. After a reconnect
// nothing is re-subscribed automatically; callers that need continuity
// re-issue Subscribe from Options.OnAck.
package realtime
