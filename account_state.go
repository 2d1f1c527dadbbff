package goGate

import (
	"time"

	"github.com/MrEthical07/goGate/internal/tokens"
)

// The methods below are the state transitions behind AccountStore's conditional
// operations. Store implementations call them while holding whatever guarantees
// atomicity for the record (a mutex, a WATCH transaction, a row lock).

// ApplyLoginFailure counts one failed login under policy. A lock that has already
// expired is cleared first, so the series restarts at one.
func (a *Account) ApplyLoginFailure(policy LockoutPolicy) LoginFailure {
	now := policy.Now
	if !a.LockedUntil.IsZero() && !now.Before(a.LockedUntil) {
		a.FailedLogins = 0
		a.LockedUntil = time.Time{}
	}

	a.FailedLogins++
	a.UpdatedAt = now

	if a.LockedAt(now) {
		return LoginFailure{FailedLogins: a.FailedLogins, LockedUntil: a.LockedUntil}
	}
	if policy.Threshold > 0 && a.FailedLogins >= policy.Threshold {
		a.LockedUntil = now.Add(policy.Duration)
		return LoginFailure{FailedLogins: a.FailedLogins, LockedUntil: a.LockedUntil, Locked: true}
	}
	return LoginFailure{FailedLogins: a.FailedLogins}
}

// ApplyLoginSuccess zeroes the failure counter and clears any lock.
func (a *Account) ApplyLoginSuccess(now time.Time) {
	a.FailedLogins = 0
	a.LockedUntil = time.Time{}
	a.UpdatedAt = now
}

// ApplyResetChallenge replaces the reset state with c.
func (a *Account) ApplyResetChallenge(c ResetChallenge, now time.Time) {
	a.ResetTokenHash = c.TokenHash
	a.ResetExpiresAt = c.ExpiresAt
	a.ResetCode = c.Code
	a.ResetCodeExpiresAt = c.CodeExpiresAt
	a.ResetCodeAttempts = 0
	a.ResetCodeVerified = false
	a.UpdatedAt = now
}

// ClearReset drops the reset token, code and attempt counter.
func (a *Account) ClearReset() {
	a.ResetTokenHash = ""
	a.ResetExpiresAt = time.Time{}
	a.ResetCode = ""
	a.ResetCodeExpiresAt = time.Time{}
	a.ResetCodeAttempts = 0
	a.ResetCodeVerified = false
}

// ApplyResetRotation swaps the reset token when r.Code matches an open challenge. The
// caller must already have matched r.OldHash to this account. A wrong code counts an
// attempt and, at r.MaxAttempts, clears the challenge; the returned error is then still
// [ErrConflict] and the caller must persist the account anyway.
func (a *Account) ApplyResetRotation(r ResetRotation) error {
	now := r.Now
	if a.ResetTokenHash == "" || a.ResetTokenHash != r.OldHash || a.ResetCode == "" || a.ResetCodeVerified {
		return ErrConflict
	}
	if !now.Before(a.ResetExpiresAt) || !now.Before(a.ResetCodeExpiresAt) {
		return ErrConflict
	}
	if !tokens.Equal(a.ResetCode, r.Code) {
		a.ResetCodeAttempts++
		if r.MaxAttempts > 0 && a.ResetCodeAttempts >= r.MaxAttempts {
			a.ClearReset()
		}
		a.UpdatedAt = now
		return ErrConflict
	}

	a.ResetTokenHash = r.NewHash
	a.ResetExpiresAt = r.NewExpiresAt
	a.ResetCode = ""
	a.ResetCodeExpiresAt = time.Time{}
	a.ResetCodeAttempts = 0
	a.ResetCodeVerified = true
	a.UpdatedAt = now
	return nil
}

// ApplyPasswordUpdate sets a new password hash when u's precondition holds and clears
// the reset state.
func (a *Account) ApplyPasswordUpdate(u PasswordUpdate) error {
	if u.ExpectedResetTokenHash != "" {
		if a.ResetTokenHash == "" || !tokens.Equal(a.ResetTokenHash, u.ExpectedResetTokenHash) ||
			!a.ResetCodeVerified || !u.Now.Before(a.ResetExpiresAt) {
			return ErrConflict
		}
	} else if a.PasswordHash != u.ExpectedPasswordHash {
		return ErrConflict
	}

	a.PasswordHash = u.NewHash
	a.PasswordHistory = append([]string(nil), u.History...)
	a.ClearReset()
	a.UpdatedAt = u.Now
	return nil
}

// ApplyActivationToken replaces the activation token.
func (a *Account) ApplyActivationToken(token string, expiresAt, now time.Time) {
	a.ActivationToken = token
	a.ActivationExpiresAt = expiresAt
	a.UpdatedAt = now
}

// ApplyActivation marks the account verified and active. The token must be unexpired,
// the account not yet verified, and a password hash present.
func (a *Account) ApplyActivation(now time.Time) error {
	if a.ActivationToken == "" || !now.Before(a.ActivationExpiresAt) {
		return ErrConflict
	}
	if a.IsVerified() || a.PasswordHash == "" {
		return ErrConflict
	}

	a.Verification = Verified
	a.Active = true
	a.ActivationToken = ""
	a.ActivationExpiresAt = time.Time{}
	a.UpdatedAt = now
	return nil
}
