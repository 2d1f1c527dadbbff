// Package flows contains the orchestration for every Engine operation.
//
// Each flow function (RunLogin, RunForgotPassword, RunVerifySession, ...) accepts a
// typed dependency struct of function values and returns results without side
// effects beyond those dependencies. Defaults for optional hooks are filled by a
// normalizeXxxDeps helper so flows can call them unconditionally.
//
// # Architecture boundaries
//
// Flows coordinate the account store, hasher, token generator, session signer, role
// registry, audit dispatcher, mailer and metrics. They own none of them; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
