// Package goGate is an account security core: credential login with brute-force lockout,
// password reset through an emailed token plus verification code, account activation,
// password history, signed session credentials and exact-match role permissions.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goGate is the public surface. It exposes [Engine], [Builder], [Config], the request
// types and the [AccountStore], [RoleRegistry], [EmailSender], [Notifier] and
// [AuditSink] collaborator interfaces. Flow orchestration lives under internal/flows and
// talks to the engine only through function-valued dependencies.
//
// Store implementations live in store/memory, store/redisstore and store/sqlstore. They
// apply state changes through the Account.Apply* methods so every backend enforces the
// same lockout, reset and activation rules.
//
// # What this package must NOT do
//
//   - Reveal whether a handle or email exists. Unknown handles and wrong passwords both
//     return [ErrInvalidCredentials]; [Engine.ForgotPassword] returns nil for any
//     well-formed address.
//   - Read and then write security counters without a conditional store operation.
//   - Import any sub-package that re-imports goGate.
//
// # Performance contract
//
// [Engine.VerifySession] is the hot path. It checks the signature and expiry without a
// store round-trip. [Engine.Authorize] reads the role through the TTL cache when one is
// configured.
package goGate
