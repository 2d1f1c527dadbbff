// Package audit implements audit event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: inline or buffered async relay with drop-if-full semantics.
//   - [Event]: audit record with action, actor, target, severity and request origin.
//
// # Architecture boundaries
//
// This package owns event delivery. It does NOT decide which events to emit; that
// belongs to the Engine and flow functions.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goGate or any sibling internal package.
//   - Return sink failures to the audited operation.
package audit
