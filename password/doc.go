// Package password implements argon2id hashing and password history helpers.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the caller can
// re-hash on the next successful login.
//
// # History
//
// [PushHistory] keeps a bounded, most-recent-first list of prior hashes and [MatchesAny]
// checks a candidate password against the current hash and that list.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goGate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
