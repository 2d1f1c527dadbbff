package password

// Verifier is the subset of [Argon2] used by history checks.
type Verifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// MatchesAny reports whether password verifies against any non-empty hash in hashes.
// Every candidate is checked so the running time does not reveal which entry matched.
func MatchesAny(v Verifier, password string, hashes ...string) (bool, error) {
	matched := false
	for _, h := range hashes {
		if h == "" {
			continue
		}
		ok, err := v.Verify(password, h)
		if err != nil {
			return false, err
		}
		if ok {
			matched = true
		}
	}
	return matched, nil
}

// PushHistory returns a new history with previous at the front, bounded to limit
// entries (most recent first). The input slice is not modified. A non-positive limit
// yields an empty history.
func PushHistory(history []string, previous string, limit int) []string {
	if limit <= 0 {
		return []string{}
	}

	out := make([]string, 0, limit)
	if previous != "" {
		out = append(out, previous)
	}
	for _, h := range history {
		if len(out) == limit {
			break
		}
		if h == "" {
			continue
		}
		out = append(out, h)
	}
	return out
}
