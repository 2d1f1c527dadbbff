package flows

import (
	"context"
	"time"
)

// PasswordResetMetrics carries metric IDs used by the reset flows.
type PasswordResetMetrics struct {
	ResetRequest  int
	CodeVerified  int
	CodeFailure   int
	ResetSuccess  int
	ResetFailure  int
	PasswordReuse int
}

// PasswordResetEvents carries audit action names used by the reset flows.
type PasswordResetEvents struct {
	ResetRequested string
	CodeVerified   string
	CodeFailed     string
	ResetSucceeded string
	ResetFailed    string
}

// PasswordResetErrors carries host-level sentinel errors used by the reset flows.
type PasswordResetErrors struct {
	EngineNotReady        error
	InvalidOrExpiredToken error
	PasswordReused        error
}

// PasswordResetDeps captures forgot-password, verify-code and reset-password
// dependencies.
type PasswordResetDeps struct {
	Hooks

	ResetTTL        time.Duration
	CodeTTL         time.Duration
	MaxCodeAttempts int

	EmailPasswordReset    string
	EmailVerificationCode string
	EmailPasswordChanged  string
	NotifyPasswordChanged string

	GetAccountByEmail     func(context.Context, string) (AccountRecord, error)
	GetAccountByResetHash func(context.Context, string) (AccountRecord, error)
	IsNotFound            func(error) bool
	IsConflict            func(error) bool
	MapStoreError         func(string, error) error

	NewResetToken func() (string, string, error)
	NewCode       func() (string, error)
	HashToken     func(string) string

	SetResetChallenge func(context.Context, string, ResetChallenge) error
	RotateResetToken  func(context.Context, ResetRotation) (AccountRecord, error)

	CheckPasswordPolicy func(string, string) error
	PasswordReused      func(string, AccountRecord) (bool, error)
	HashPassword        func(string) (string, error)
	PushHistory         func([]string, string) []string
	UpdatePassword      func(context.Context, string, PasswordWrite) error

	IssueActivation func(context.Context, AccountRecord) error

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// ResetChallenge is the flow-local reset challenge write.
type ResetChallenge struct {
	TokenHash     string
	ExpiresAt     time.Time
	Code          string
	CodeExpiresAt time.Time
}

// ResetRotation is the flow-local verify-code compare-and-swap.
type ResetRotation struct {
	OldHash      string
	Code         string
	NewHash      string
	NewExpiresAt time.Time
	MaxAttempts  int
	Now          time.Time
}

// PasswordWrite is the flow-local conditional password update.
type PasswordWrite struct {
	NewHash                string
	History                []string
	ExpectedPasswordHash   string
	ExpectedResetTokenHash string
	Now                    time.Time
}

// RunForgotPassword starts the reset flow for an eligible account. The caller always
// sees nil once the request is well formed; the real outcome goes to the audit log.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.GetAccountByEmail == nil || deps.SetResetChallenge == nil || deps.NewResetToken == nil || deps.NewCode == nil {
		return deps.Errors.EngineNotReady
	}

	deps.MetricInc(deps.Metrics.ResetRequest)

	acc, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.ResetRequested, severityWarning, "unknown email "+email))
			return nil
		}
		deps.EmitAudit(ctx, anonymousAudit(deps.Events.ResetRequested, severityCritical, "account lookup failed: "+err.Error()))
		return nil
	}

	switch {
	case !acc.Active:
		deps.EmitAudit(ctx, accountAudit(deps.Events.ResetRequested, acc, false, severityWarning, "account disabled"))
		return nil
	case !acc.Local:
		deps.EmitAudit(ctx, accountAudit(deps.Events.ResetRequested, acc, false, severityInfo, "account is not local"))
		return nil
	}

	if err := RunStartPasswordReset(ctx, acc, deps); err != nil {
		deps.EmitAudit(ctx, accountAudit(deps.Events.ResetRequested, acc, false, severityCritical, "challenge issue failed: "+err.Error()))
	}
	return nil
}

// RunStartPasswordReset issues a fresh reset token and verification code for acc and
// mails both. Any previous challenge is overwritten.
func RunStartPasswordReset(ctx context.Context, acc AccountRecord, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.SetResetChallenge == nil || deps.NewResetToken == nil || deps.NewCode == nil {
		return deps.Errors.EngineNotReady
	}

	token, tokenHash, err := deps.NewResetToken()
	if err != nil {
		return err
	}
	code, err := deps.NewCode()
	if err != nil {
		return err
	}

	now := deps.Now()
	challenge := ResetChallenge{
		TokenHash:     tokenHash,
		ExpiresAt:     now.Add(deps.ResetTTL),
		Code:          code,
		CodeExpiresAt: now.Add(deps.CodeTTL),
	}
	if err := deps.SetResetChallenge(ctx, acc.ID, challenge); err != nil {
		return deps.MapStoreError("set reset challenge", err)
	}

	deps.SendEmail(ctx, Email{
		Kind: deps.EmailPasswordReset,
		To:   acc.Email,
		Payload: map[string]string{
			"handle":     acc.Handle,
			"token":      token,
			"expires_at": challenge.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
	deps.SendEmail(ctx, Email{
		Kind: deps.EmailVerificationCode,
		To:   acc.Email,
		Payload: map[string]string{
			"handle":     acc.Handle,
			"code":       code,
			"expires_at": challenge.CodeExpiresAt.UTC().Format(time.RFC3339),
		},
	})

	deps.EmitAudit(ctx, accountAudit(deps.Events.ResetRequested, acc, true, severityInfo, "reset challenge issued"))
	return nil
}

// RunVerifyCode exchanges a reset token plus its code for a new reset token. The old
// token and the code stop working.
func RunVerifyCode(ctx context.Context, token, code string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)

	if deps.RotateResetToken == nil || deps.NewResetToken == nil || deps.HashToken == nil {
		return "", deps.Errors.EngineNotReady
	}

	newToken, newHash, err := deps.NewResetToken()
	if err != nil {
		return "", deps.MapStoreError("generate reset token", err)
	}

	now := deps.Now()
	acc, err := deps.RotateResetToken(ctx, ResetRotation{
		OldHash:      deps.HashToken(token),
		Code:         code,
		NewHash:      newHash,
		NewExpiresAt: now.Add(deps.ResetTTL),
		MaxAttempts:  deps.MaxCodeAttempts,
		Now:          now,
	})
	if err != nil {
		if deps.IsNotFound(err) || deps.IsConflict(err) {
			deps.MetricInc(deps.Metrics.CodeFailure)
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.CodeFailed, severityWarning, "verification code rejected"))
			return "", deps.Errors.InvalidOrExpiredToken
		}
		return "", deps.MapStoreError("rotate reset token", err)
	}

	deps.MetricInc(deps.Metrics.CodeVerified)
	deps.EmitAudit(ctx, accountAudit(deps.Events.CodeVerified, acc, true, severityInfo, "verification code accepted"))
	return newToken, nil
}

// RunResetPassword sets a new password using a code-verified reset token.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.GetAccountByResetHash == nil || deps.UpdatePassword == nil || deps.HashPassword == nil || deps.HashToken == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.CheckPasswordPolicy("newPassword", newPassword); err != nil {
		return err
	}

	tokenHash := deps.HashToken(token)
	acc, err := deps.GetAccountByResetHash(ctx, tokenHash)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.ResetFailure)
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.ResetFailed, severityWarning, "unknown reset token"))
			return deps.Errors.InvalidOrExpiredToken
		}
		return deps.MapStoreError("get account by reset token", err)
	}

	now := deps.Now()
	if !acc.ResetCodeVerified || !now.Before(acc.ResetExpiresAt) {
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, accountAudit(deps.Events.ResetFailed, acc, false, severityWarning, "reset token not verified or expired"))
		return deps.Errors.InvalidOrExpiredToken
	}

	reused, err := deps.PasswordReused(newPassword, acc)
	if err != nil {
		return deps.MapStoreError("password history check", err)
	}
	if reused {
		deps.MetricInc(deps.Metrics.PasswordReuse)
		deps.EmitAudit(ctx, accountAudit(deps.Events.ResetFailed, acc, false, severityInfo, "password reused"))
		return deps.Errors.PasswordReused
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		return deps.MapStoreError("hash password", err)
	}

	err = deps.UpdatePassword(ctx, acc.ID, PasswordWrite{
		NewHash:                newHash,
		History:                deps.PushHistory(acc.History, acc.PasswordHash),
		ExpectedResetTokenHash: tokenHash,
		Now:                    now,
	})
	if err != nil {
		if deps.IsConflict(err) || deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.ResetFailure)
			deps.EmitAudit(ctx, accountAudit(deps.Events.ResetFailed, acc, false, severityWarning, "reset token consumed concurrently"))
			return deps.Errors.InvalidOrExpiredToken
		}
		return deps.MapStoreError("update password", err)
	}

	deps.MetricInc(deps.Metrics.ResetSuccess)
	deps.EmitAudit(ctx, accountAudit(deps.Events.ResetSucceeded, acc, true, severityInfo, "password reset"))

	if !acc.Verified {
		acc.PasswordHash = newHash
		if err := deps.IssueActivation(ctx, acc); err != nil {
			deps.EmitAudit(ctx, accountAudit(deps.Events.ResetSucceeded, acc, false, severityCritical, "activation issue failed: "+err.Error()))
		}
		return nil
	}

	deps.SendEmail(ctx, Email{
		Kind:    deps.EmailPasswordChanged,
		To:      acc.Email,
		Payload: map[string]string{"handle": acc.Handle},
	})
	deps.Notify(ctx, acc.ID, deps.NotifyPasswordChanged)
	return nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	normalizeHooks(&deps.Hooks)
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsConflict == nil {
		deps.IsConflict = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(_ string, err error) error { return err }
	}
	if deps.CheckPasswordPolicy == nil {
		deps.CheckPasswordPolicy = func(string, string) error { return nil }
	}
	if deps.PasswordReused == nil {
		deps.PasswordReused = func(string, AccountRecord) (bool, error) { return false, nil }
	}
	if deps.PushHistory == nil {
		deps.PushHistory = func(h []string, _ string) []string { return h }
	}
	if deps.IssueActivation == nil {
		deps.IssueActivation = func(context.Context, AccountRecord) error { return deps.Errors.EngineNotReady }
	}
}
