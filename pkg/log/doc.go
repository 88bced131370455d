// Package log provides structured protocol capture for the realtime stack.
//
// This package defines the Logger interface and Event types used to record
// what happens on the wire and inside the session state machine. It is
// separate from operational logging (slog): protocol capture is a complete,
// machine-readable trace intended for debugging reconnect storms, handshake
// failures and misrouted subscription frames after the fact.
//
// # Basic Usage
//
// Components accept a Logger through their options:
//
//	// Development: echo events through slog
//	opts.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR records to a capture file
//	opts.ProtocolLogger, _ = log.NewFileLogger("/var/log/underwrite/realtime.rtlog")
//
//	// Both
//	opts.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Socket: connection lifecycle of the reconnecting transport
//   - Protocol: GraphQL-over-WebSocket frames (FrameEvent)
//   - Subscription: per-subscription lifecycle (start, stop, complete)
//
// State changes and errors have dedicated payloads.
//
// # File Format
//
// Capture files are a stream of CBOR records with the .rtlog extension.
// The uw-log CLI provides viewing, filtering, statistics and export.
package log
