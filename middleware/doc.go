// Package middleware exposes net/http adapters over goGate.Engine session
// verification and authorization.
//
// # Guards
//
//   - [Authenticate] verifies the bearer session credential and stores the claims
//     on the request context.
//   - [RequirePermission] denies with 403 unless the authenticated role grants an
//     exact (action, resource) permission.
//   - [Protect] chains both.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse JWTs
// or load roles itself; every decision is delegated to Engine.VerifySession and
// Engine.Authorize.
package middleware
