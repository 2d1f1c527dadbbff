package password

import (
	"errors"
	"reflect"
	"testing"
)

type fakeVerifier struct {
	calls int
	err   error
}

func (f *fakeVerifier) Verify(password, encodedHash string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return "hash:"+password == encodedHash, nil
}

func TestPushHistoryEvictsOldest(t *testing.T) {
	history := []string{"P1", "P2"}
	got := PushHistory(history, "P3", 2)
	if want := []string{"P3", "P1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("PushHistory = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(history, []string{"P1", "P2"}) {
		t.Fatal("input slice must not be modified")
	}
}

func TestPushHistoryBounds(t *testing.T) {
	if got := PushHistory([]string{"a"}, "b", 0); len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
	if got := PushHistory(nil, "a", 5); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("unexpected history %v", got)
	}
	if got := PushHistory([]string{"a", "", "b"}, "", 5); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("empty entries must be dropped, got %v", got)
	}
}

func TestMatchesAnyChecksEveryEntry(t *testing.T) {
	v := &fakeVerifier{}
	ok, err := MatchesAny(v, "P1", "hash:P1", "hash:P2", "", "hash:P3")
	if err != nil {
		t.Fatalf("MatchesAny error: %v", err)
	}
	if !ok {
		t.Fatal("expected match")
	}
	if v.calls != 3 {
		t.Fatalf("expected 3 verifications, got %d", v.calls)
	}

	ok, err = MatchesAny(v, "P9", "hash:P1", "hash:P2")
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}

func TestMatchesAnyPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := MatchesAny(&fakeVerifier{err: boom}, "x", "hash:x"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestMatchesAnyWithArgon2(t *testing.T) {
	hasher, err := NewArgon2(Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	h1, _ := hasher.Hash("first-password")
	h2, _ := hasher.Hash("second-password")

	ok, err := MatchesAny(hasher, "second-password", h1, h2)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = MatchesAny(hasher, "third-password", h1, h2)
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}
