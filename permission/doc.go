// Package permission models roles as named sets of (action, resource) permissions and
// provides the registries the authorizer resolves them through.
//
// # Matching
//
// A role allows a request only when one of its permissions matches both the action and the
// resource string exactly. There are no wildcards and no hierarchy; anything not granted is
// denied.
//
// # Registries
//
//   - [RoleManager] is a mutable in-memory registry with change hooks.
//   - [CachedRegistry] wraps any [Registry] with a short TTL read-through cache that can be
//     invalidated when a role is edited.
//
// # What this package must NOT do
//
//   - Import goGate, jwt, or any store package.
//   - Cache a role longer than the configured TTL.
package permission
