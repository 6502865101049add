// Package events delivers session notifications (login, logout, session-expired,
// permission-denied, network-error, timeout) to sinks and subscribers.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, zerolog, no-op, fan-out).
//   - [Dispatcher]: ordered relay, inline or buffered with drop-if-full semantics.
//   - [Fanout]: subscriber registry behind the public Subscribe API.
//
// # Architecture boundaries
//
// This package owns delivery. It does NOT decide which events to emit; the session
// flows and the root client do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on session state.
//   - Import goCartes or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package events
