package flows

import "context"

// ChangePasswordMetrics carries metric IDs used by the change-password flow.
type ChangePasswordMetrics struct {
	ChangeSuccess int
	InvalidOld    int
	PasswordReuse int
}

// ChangePasswordEvents carries audit action names used by the change-password flow.
type ChangePasswordEvents struct {
	PasswordChanged      string
	PasswordChangeFailed string
}

// ChangePasswordErrors carries host-level sentinel errors.
type ChangePasswordErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountDisabled    error
	PasswordReused     error
}

// ChangePasswordDeps captures change-password dependencies.
type ChangePasswordDeps struct {
	Hooks

	EmailPasswordChanged  string
	NotifyPasswordChanged string

	GetAccountByID func(context.Context, string) (AccountRecord, error)
	IsNotFound     func(error) bool
	IsConflict     func(error) bool
	MapStoreError  func(string, error) error

	VerifyPassword      func(string, string) (bool, error)
	CheckPasswordPolicy func(string, string) error
	PasswordReused      func(string, AccountRecord) (bool, error)
	HashPassword        func(string) (string, error)
	PushHistory         func([]string, string) []string
	UpdatePassword      func(context.Context, string, PasswordWrite) error

	Metrics ChangePasswordMetrics
	Events  ChangePasswordEvents
	Errors  ChangePasswordErrors
}

// ChangePasswordInput is the flow-local change-password request.
type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	NewPassword     string
}

// RunChangePassword replaces the password of an authenticated account after
// re-verifying the current one.
func RunChangePassword(ctx context.Context, in ChangePasswordInput, deps ChangePasswordDeps) error {
	normalizeChangePasswordDeps(&deps)

	if deps.GetAccountByID == nil || deps.VerifyPassword == nil || deps.HashPassword == nil || deps.UpdatePassword == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.CheckPasswordPolicy("newPassword", in.NewPassword); err != nil {
		return err
	}

	acc, err := deps.GetAccountByID(ctx, in.AccountID)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.InvalidOld)
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.PasswordChangeFailed, severityWarning, "unknown account "+in.AccountID))
			return deps.Errors.InvalidCredentials
		}
		return deps.MapStoreError("get account by id", err)
	}

	if !acc.Active {
		deps.EmitAudit(ctx, accountAudit(deps.Events.PasswordChangeFailed, acc, false, severityWarning, "account disabled"))
		return deps.Errors.AccountDisabled
	}
	if !acc.Local || acc.PasswordHash == "" {
		deps.MetricInc(deps.Metrics.InvalidOld)
		deps.EmitAudit(ctx, accountAudit(deps.Events.PasswordChangeFailed, acc, false, severityWarning, "account has no local password"))
		return deps.Errors.InvalidCredentials
	}

	ok, err := deps.VerifyPassword(in.CurrentPassword, acc.PasswordHash)
	if err != nil {
		return deps.MapStoreError("verify password", err)
	}
	if !ok {
		deps.MetricInc(deps.Metrics.InvalidOld)
		deps.EmitAudit(ctx, accountAudit(deps.Events.PasswordChangeFailed, acc, false, severityWarning, "current password mismatch"))
		return deps.Errors.InvalidCredentials
	}

	reused, err := deps.PasswordReused(in.NewPassword, acc)
	if err != nil {
		return deps.MapStoreError("password history check", err)
	}
	if reused {
		deps.MetricInc(deps.Metrics.PasswordReuse)
		deps.EmitAudit(ctx, accountAudit(deps.Events.PasswordChangeFailed, acc, false, severityInfo, "password reused"))
		return deps.Errors.PasswordReused
	}

	newHash, err := deps.HashPassword(in.NewPassword)
	if err != nil {
		return deps.MapStoreError("hash password", err)
	}

	err = deps.UpdatePassword(ctx, acc.ID, PasswordWrite{
		NewHash:              newHash,
		History:              deps.PushHistory(acc.History, acc.PasswordHash),
		ExpectedPasswordHash: acc.PasswordHash,
		Now:                  deps.Now(),
	})
	if err != nil {
		if deps.IsConflict(err) || deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.InvalidOld)
			deps.EmitAudit(ctx, accountAudit(deps.Events.PasswordChangeFailed, acc, false, severityWarning, "password changed concurrently"))
			return deps.Errors.InvalidCredentials
		}
		return deps.MapStoreError("update password", err)
	}

	deps.MetricInc(deps.Metrics.ChangeSuccess)
	deps.EmitAudit(ctx, accountAudit(deps.Events.PasswordChanged, acc, true, severityInfo, "password changed"))
	deps.SendEmail(ctx, Email{
		Kind:    deps.EmailPasswordChanged,
		To:      acc.Email,
		Payload: map[string]string{"handle": acc.Handle},
	})
	deps.Notify(ctx, acc.ID, deps.NotifyPasswordChanged)
	return nil
}

func normalizeChangePasswordDeps(deps *ChangePasswordDeps) {
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
}
