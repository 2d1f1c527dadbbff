// Package internal holds packages that are private to goGate.
//
// # Sub-packages
//
//   - audit: audit event dispatch (Dispatcher plus Sink implementations)
//   - flows: function-valued flow orchestrators behind every Engine operation
//   - httpapi: the net/http boundary served by cmd/goGate-server
//   - rate: per-client throttles for unauthenticated endpoints
//   - tokens: reset, activation and verification code generation
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGate API.
//   - Be imported by any package outside the goGate module.
package internal
