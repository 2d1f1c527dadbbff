// Package redisstore implements goGate.AccountStore on Redis.
//
// # Layout
//
// Each account is one JSON document at "<prefix>:acct:<id>". Secondary indexes map a
// normalized handle, a normalized email, a reset-token digest and an activation token
// to the account id.
//
// # Atomicity
//
// Every conditional operation (failure counting, reset rotation, password update,
// activation consume) runs as a WATCH/MULTI optimistic transaction on the account
// document and retries on contention. Lookups through an index re-check the document
// so a stale index entry reads as not found.
//
// # What this package must NOT do
//
//   - Store plaintext reset tokens. Only the digest handed in by the engine is indexed.
//   - Decide policy. Lock thresholds, code attempts and expiry come from the caller.
package redisstore
