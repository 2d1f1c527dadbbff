package goGate_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	goGate "github.com/MrEthical07/goGate"
)

func TestLoginSuccessIssuesSession(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-alice", "alice", "correct-horse-1")

	res, err := h.login("Alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.SessionToken == "" || res.Account.ID != "acct-alice" || res.Account.Role != "user" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.ExpiresAt.Equal(testBase.Add(time.Hour)) {
		t.Fatalf("expected expiry one hour out, got %v", res.ExpiresAt)
	}

	claims, err := h.engine.VerifySession(context.Background(), res.SessionToken)
	if err != nil {
		t.Fatalf("verify session failed: %v", err)
	}
	if claims.Subject != "acct-alice" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if !hasAction(h.auditActions(), "login_success") {
		t.Fatal("expected login_success audit entry")
	}
}

func TestLoginUnknownHandleMatchesWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-alice", "alice", "correct-horse-1")

	_, errUnknown := h.login("nobody", "correct-horse-1")
	_, errWrong := h.login("alice", "wrong-horse-1")
	if !errors.Is(errUnknown, goGate.ErrInvalidCredentials) || !errors.Is(errWrong, goGate.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("responses differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestLoginLockoutScenario(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-alice", "alice", "correct-horse-1")

	// Five wrong passwords, one per minute.
	for i := 0; i < 5; i++ {
		if _, err := h.login("alice", "wrong-horse-1"); !errors.Is(err, goGate.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
		h.clock.Advance(time.Minute)
	}

	acc := h.account(t, "acct-alice")
	if acc.FailedLogins != 5 || !acc.LockedUntil.Equal(testBase.Add(4*time.Minute+15*time.Minute)) {
		t.Fatalf("unexpected lock state: failed=%d until=%v", acc.FailedLogins, acc.LockedUntil)
	}

	// Minute 10: still locked, even with the right password.
	h.clock.Advance(5 * time.Minute)
	if _, err := h.login("alice", "correct-horse-1"); !errors.Is(err, goGate.ErrLocked) {
		t.Fatalf("expected ErrLocked at minute 10, got %v", err)
	}

	// Lock ends at minute 19.
	h.clock.Advance(9 * time.Minute)
	if _, err := h.login("alice", "correct-horse-1"); err != nil {
		t.Fatalf("expected success after lock expiry, got %v", err)
	}
	acc = h.account(t, "acct-alice")
	if acc.FailedLogins != 0 || !acc.LockedUntil.IsZero() {
		t.Fatalf("expected counter reset, got failed=%d until=%v", acc.FailedLogins, acc.LockedUntil)
	}

	events := h.auditActions()
	if !hasAction(events, "account_locked") || !hasAction(events, "login_locked") {
		t.Fatal("expected account_locked and login_locked audit entries")
	}
	if got := h.notifier.Events(); len(got) != 1 || got[0] != "acct-alice:account_locked" {
		t.Fatalf("expected one lock notification, got %v", got)
	}
	snap := h.engine.MetricsSnapshot()
	if snap.Counters[goGate.MetricAccountLocked] != 1 || snap.Counters[goGate.MetricLoginLocked] != 1 {
		t.Fatalf("unexpected lock metrics: %v", snap.Counters)
	}
}

func TestLoginLockedAtThresholdWithFifteenMinutes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-alice", "alice", "correct-horse-1")

	for i := 0; i < 5; i++ {
		_, _ = h.login("alice", "wrong-horse-1")
	}

	h.clock.Advance(10 * time.Minute)
	if _, err := h.login("alice", "correct-horse-1"); !errors.Is(err, goGate.ErrLocked) {
		t.Fatalf("expected ErrLocked at minute 10, got %v", err)
	}

	h.clock.Advance(6 * time.Minute)
	if _, err := h.login("alice", "correct-horse-1"); err != nil {
		t.Fatalf("expected success at minute 16, got %v", err)
	}
}

func TestLoginFailureAfterLockExpiryRestartsCount(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-alice", "alice", "correct-horse-1")

	for i := 0; i < 5; i++ {
		_, _ = h.login("alice", "wrong-horse-1")
	}
	h.clock.Advance(16 * time.Minute)

	if _, err := h.login("alice", "wrong-horse-1"); !errors.Is(err, goGate.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if acc := h.account(t, "acct-alice"); acc.FailedLogins != 1 || acc.LockedAt(h.clock.Now()) {
		t.Fatalf("expected a fresh series at 1, got failed=%d locked=%v", acc.FailedLogins, acc.LockedAt(h.clock.Now()))
	}
}

func TestLoginConcurrentFailuresLockOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-alice", "alice", "correct-horse-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.login("alice", "wrong-horse-1")
		}()
	}
	wg.Wait()

	if got := h.engine.MetricsSnapshot().Counters[goGate.MetricAccountLocked]; got != 1 {
		t.Fatalf("expected exactly one lock transition, got %d", got)
	}
	if _, err := h.login("alice", "correct-horse-1"); !errors.Is(err, goGate.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestLoginRejectsUnverifiedAndDisabled(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-new", "newbie", "correct-horse-1", func(a *goGate.Account) {
		a.Verification = goGate.NotVerified
	})
	h.seed(t, "acct-off", "blocked", "correct-horse-1", func(a *goGate.Account) {
		a.Active = false
	})
	h.seed(t, "acct-fed", "federated", "correct-horse-1", func(a *goGate.Account) {
		a.AuthMethod = goGate.AuthFederated
	})

	if _, err := h.login("newbie", "correct-horse-1"); !errors.Is(err, goGate.ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
	if _, err := h.login("blocked", "correct-horse-1"); !errors.Is(err, goGate.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := h.login("federated", "correct-horse-1"); !errors.Is(err, goGate.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for federated account, got %v", err)
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.login("", "correct-horse-1")
	var verr *goGate.ValidationError
	if !errors.As(err, &verr) || verr.Field != "handle" {
		t.Fatalf("expected handle validation error, got %v", err)
	}
	if !errors.Is(err, goGate.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	for _, handle := range []string{"bad handle!<script>", strings.Repeat("a", 200), "a"} {
		_, err := h.login(handle, "correct-horse-1")
		if !errors.As(err, &verr) || verr.Field != "handle" {
			t.Fatalf("handle %q: expected handle validation error, got %v", handle, err)
		}
	}
	if n := h.lookups.handleLookups.Load(); n != 0 {
		t.Fatalf("malformed handles must not reach the store, got %d lookups", n)
	}

	if _, err := h.login("nobody", "correct-horse-1"); !errors.Is(err, goGate.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for a well-formed unknown handle, got %v", err)
	}
	if n := h.lookups.handleLookups.Load(); n != 1 {
		t.Fatalf("expected one lookup for a well-formed handle, got %d", n)
	}
}

func TestLoginUnknownRoleStillLogsInButCannotAct(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acct-ghost", "ghost", "correct-horse-1", func(a *goGate.Account) {
		a.Role = "retired"
	})

	res, err := h.login("ghost", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	claims, err := h.engine.VerifySession(context.Background(), res.SessionToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if h.engine.Authorize(context.Background(), claims, "read", "profile") {
		t.Fatal("unknown role must not be granted anything")
	}
}
