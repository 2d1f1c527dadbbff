package flows

import (
	"context"
	"strconv"
	"time"
)

// LoginInput is the flow-local login request.
type LoginInput struct {
	Handle   string
	Password string
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   AccountRecord
}

// LoginMetrics carries metric IDs used by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	LoginNotVerified int
	LoginDisabled    int
	AccountLocked    int
}

// LoginEvents carries audit action names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginLocked      string
	LoginNotVerified string
	LoginDisabled    string
	AccountLocked    string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	NotVerified        error
	Locked             error
	AccountDisabled    error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Hooks

	LockoutThreshold int
	LockoutDuration  time.Duration
	NotifyLocked     string

	ValidateInput      func(LoginInput) error
	GetAccountByHandle func(context.Context, string) (AccountRecord, error)
	IsNotFound         func(error) bool
	MapStoreError      func(string, error) error

	VerifyPassword func(string, string) (bool, error)
	// EqualizeTiming burns one hash verification for unknown or hashless accounts.
	EqualizeTiming func(string)

	RecordFailure func(context.Context, string, int, time.Duration, time.Time) (int, time.Time, bool, error)
	RecordSuccess func(context.Context, string) error
	CheckRole     func(context.Context, string) error
	IssueSession  func(string, string) (string, time.Time, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials, applies the lockout policy and issues a session.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)

	if deps.GetAccountByHandle == nil || deps.VerifyPassword == nil || deps.RecordFailure == nil || deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if err := deps.ValidateInput(in); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, anonymousAudit(deps.Events.LoginFailure, severityInfo, "rejected malformed request"))
		return nil, err
	}

	acc, err := deps.GetAccountByHandle(ctx, in.Handle)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.EqualizeTiming(in.Password)
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.LoginFailure, severityWarning, "unknown handle "+in.Handle))
			return nil, deps.Errors.InvalidCredentials
		}
		return nil, deps.MapStoreError("get account by handle", err)
	}

	now := deps.Now()

	if !acc.Verified {
		deps.MetricInc(deps.Metrics.LoginNotVerified)
		deps.EmitAudit(ctx, accountAudit(deps.Events.LoginNotVerified, acc, false, severityInfo, "account not verified"))
		return nil, deps.Errors.NotVerified
	}
	if !acc.Active {
		deps.MetricInc(deps.Metrics.LoginDisabled)
		deps.EmitAudit(ctx, accountAudit(deps.Events.LoginDisabled, acc, false, severityWarning, "account disabled"))
		return nil, deps.Errors.AccountDisabled
	}
	if !acc.LockedUntil.IsZero() && now.Before(acc.LockedUntil) {
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, accountAudit(deps.Events.LoginLocked, acc, false, severityWarning, "account locked until "+acc.LockedUntil.UTC().Format(time.RFC3339)))
		return nil, deps.Errors.Locked
	}
	if !acc.Local || acc.PasswordHash == "" {
		deps.EqualizeTiming(in.Password)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, accountAudit(deps.Events.LoginFailure, acc, false, severityWarning, "account has no local password"))
		return nil, deps.Errors.InvalidCredentials
	}

	ok, err := deps.VerifyPassword(in.Password, acc.PasswordHash)
	if err != nil {
		return nil, deps.MapStoreError("verify password", err)
	}
	if !ok {
		failed, lockedUntil, locked, err := deps.RecordFailure(ctx, acc.ID, deps.LockoutThreshold, deps.LockoutDuration, now)
		if err != nil {
			return nil, deps.MapStoreError("record login failure", err)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, accountAudit(deps.Events.LoginFailure, acc, false, severityWarning, "wrong password"))
		if locked {
			deps.MetricInc(deps.Metrics.AccountLocked)
			deps.EmitAudit(ctx, accountAudit(deps.Events.AccountLocked, acc, true, severityCritical,
				"locked after "+strconv.Itoa(failed)+" failures until "+lockedUntil.UTC().Format(time.RFC3339)))
			deps.Notify(ctx, acc.ID, deps.NotifyLocked)
		}
		return nil, deps.Errors.InvalidCredentials
	}

	if err := deps.RecordSuccess(ctx, acc.ID); err != nil {
		return nil, deps.MapStoreError("record login success", err)
	}

	if err := deps.CheckRole(ctx, acc.Role); err != nil {
		deps.EmitAudit(ctx, accountAudit(deps.Events.LoginSuccess, acc, true, severityWarning, "role "+acc.Role+" did not resolve"))
	}

	token, expiresAt, err := deps.IssueSession(acc.ID, acc.Role)
	if err != nil {
		return nil, deps.MapStoreError("issue session", err)
	}

	acc.LockedUntil = time.Time{}
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, accountAudit(deps.Events.LoginSuccess, acc, true, severityInfo, "login succeeded"))

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: acc}, nil
}

func normalizeLoginDeps(deps *LoginDeps) {
	normalizeHooks(&deps.Hooks)
	if deps.ValidateInput == nil {
		deps.ValidateInput = func(LoginInput) error { return nil }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(_ string, err error) error { return err }
	}
	if deps.EqualizeTiming == nil {
		deps.EqualizeTiming = func(string) {}
	}
	if deps.RecordSuccess == nil {
		deps.RecordSuccess = func(context.Context, string) error { return nil }
	}
	if deps.CheckRole == nil {
		deps.CheckRole = func(context.Context, string) error { return nil }
	}
}
