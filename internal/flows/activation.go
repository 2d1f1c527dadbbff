package flows

import (
	"context"
	"time"
)

// ActivationMetrics carries metric IDs used by the activation flows.
type ActivationMetrics struct {
	ActivationSuccess int
	ActivationFailure int
	AccountCreated    int
}

// ActivationEvents carries audit action names used by the activation flows.
type ActivationEvents struct {
	ActivationIssued string
	Activated        string
	ActivationFailed string
	AccountCreated   string
	CreateFailed     string
}

// ActivationErrors carries host-level sentinel errors.
type ActivationErrors struct {
	EngineNotReady        error
	InvalidOrExpiredToken error
	AlreadyVerified       error
	AccountExists         error
	UnknownRole           error
}

// NewAccount is the flow-local account creation write.
type NewAccount struct {
	Handle       string
	Email        string
	Role         string
	PasswordHash string
	Local        bool
}

// ActivationDeps captures activation and account-creation dependencies.
type ActivationDeps struct {
	Hooks

	ActivationTTL          time.Duration
	DefaultRole            string
	EmailActivation        string
	NotifyAccountActivated string

	GetAccountByID func(context.Context, string) (AccountRecord, error)
	IsNotFound     func(error) bool
	IsConflict     func(error) bool
	IsExists       func(error) bool
	MapStoreError  func(string, error) error

	NewActivationToken func() (string, error)
	SetActivationToken func(context.Context, string, string, time.Time) error
	ConsumeActivation  func(context.Context, string, time.Time) (AccountRecord, error)

	ValidateHandle      func(string) error
	CheckPasswordPolicy func(string, string) error
	HashPassword        func(string) (string, error)
	CheckRole           func(context.Context, string) error
	IsRoleNotFound      func(error) bool
	CreateAccount       func(context.Context, NewAccount) (AccountRecord, error)
	StartPasswordReset  func(context.Context, AccountRecord) error

	Metrics ActivationMetrics
	Events  ActivationEvents
	Errors  ActivationErrors
}

// RunIssueActivation stores a fresh activation token for acc and mails it. A previous
// token stops working.
func RunIssueActivation(ctx context.Context, acc AccountRecord, deps ActivationDeps) error {
	normalizeActivationDeps(&deps)

	if deps.NewActivationToken == nil || deps.SetActivationToken == nil {
		return deps.Errors.EngineNotReady
	}
	if acc.Verified {
		return deps.Errors.AlreadyVerified
	}

	token, err := deps.NewActivationToken()
	if err != nil {
		return deps.MapStoreError("generate activation token", err)
	}
	expiresAt := deps.Now().Add(deps.ActivationTTL)
	if err := deps.SetActivationToken(ctx, acc.ID, token, expiresAt); err != nil {
		return deps.MapStoreError("set activation token", err)
	}

	deps.SendEmail(ctx, Email{
		Kind: deps.EmailActivation,
		To:   acc.Email,
		Payload: map[string]string{
			"handle":     acc.Handle,
			"token":      token,
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		},
	})
	deps.EmitAudit(ctx, accountAudit(deps.Events.ActivationIssued, acc, true, severityInfo, "activation token issued"))
	return nil
}

// RunIssueActivationByID re-sends activation for a not-yet-verified account.
func RunIssueActivationByID(ctx context.Context, accountID string, deps ActivationDeps) error {
	normalizeActivationDeps(&deps)

	if deps.GetAccountByID == nil {
		return deps.Errors.EngineNotReady
	}
	acc, err := deps.GetAccountByID(ctx, accountID)
	if err != nil {
		return deps.MapStoreError("get account by id", err)
	}
	return RunIssueActivation(ctx, acc, deps)
}

// RunActivate consumes an activation token.
func RunActivate(ctx context.Context, token string, deps ActivationDeps) error {
	normalizeActivationDeps(&deps)

	if deps.ConsumeActivation == nil {
		return deps.Errors.EngineNotReady
	}

	acc, err := deps.ConsumeActivation(ctx, token, deps.Now())
	if err != nil {
		if deps.IsNotFound(err) || deps.IsConflict(err) {
			deps.MetricInc(deps.Metrics.ActivationFailure)
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.ActivationFailed, severityWarning, "activation token rejected"))
			return deps.Errors.InvalidOrExpiredToken
		}
		return deps.MapStoreError("consume activation", err)
	}

	deps.MetricInc(deps.Metrics.ActivationSuccess)
	deps.EmitAudit(ctx, accountAudit(deps.Events.Activated, acc, true, severityInfo, "account activated"))
	deps.Notify(ctx, acc.ID, deps.NotifyAccountActivated)
	return nil
}

// CreateAccountInput is the flow-local admin creation request.
type CreateAccountInput struct {
	Handle   string
	Email    string
	Role     string
	Password string
	Local    bool
}

// RunCreateAccount inserts a not-verified account. Local accounts with a password get
// an activation mail; local accounts without one start the reset flow so the first
// password is chosen by the owner.
func RunCreateAccount(ctx context.Context, in CreateAccountInput, deps ActivationDeps) (AccountRecord, error) {
	normalizeActivationDeps(&deps)

	if deps.CreateAccount == nil || deps.HashPassword == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	if err := deps.ValidateHandle(in.Handle); err != nil {
		return AccountRecord{}, err
	}

	role := in.Role
	if role == "" {
		role = deps.DefaultRole
	}
	if err := deps.CheckRole(ctx, role); err != nil {
		if deps.IsRoleNotFound(err) {
			return AccountRecord{}, deps.Errors.UnknownRole
		}
		return AccountRecord{}, deps.MapStoreError("resolve role", err)
	}

	var hash string
	if in.Local && in.Password != "" {
		if err := deps.CheckPasswordPolicy("password", in.Password); err != nil {
			return AccountRecord{}, err
		}
		h, err := deps.HashPassword(in.Password)
		if err != nil {
			return AccountRecord{}, deps.MapStoreError("hash password", err)
		}
		hash = h
	}

	acc, err := deps.CreateAccount(ctx, NewAccount{
		Handle:       in.Handle,
		Email:        in.Email,
		Role:         role,
		PasswordHash: hash,
		Local:        in.Local,
	})
	if err != nil {
		if deps.IsExists(err) {
			deps.EmitAudit(ctx, anonymousAudit(deps.Events.CreateFailed, severityInfo, "duplicate handle or email "+in.Handle))
			return AccountRecord{}, deps.Errors.AccountExists
		}
		return AccountRecord{}, deps.MapStoreError("create account", err)
	}

	deps.MetricInc(deps.Metrics.AccountCreated)
	deps.EmitAudit(ctx, accountAudit(deps.Events.AccountCreated, acc, true, severityInfo, "account created with role "+role))

	if !acc.Local {
		return acc, nil
	}
	if acc.PasswordHash != "" {
		if err := RunIssueActivation(ctx, acc, deps); err != nil {
			deps.EmitAudit(ctx, accountAudit(deps.Events.ActivationIssued, acc, false, severityCritical, "activation issue failed: "+err.Error()))
		}
		return acc, nil
	}
	if err := deps.StartPasswordReset(ctx, acc); err != nil {
		deps.EmitAudit(ctx, accountAudit(deps.Events.ActivationIssued, acc, false, severityCritical, "reset issue failed: "+err.Error()))
	}
	return acc, nil
}

func normalizeActivationDeps(deps *ActivationDeps) {
	normalizeHooks(&deps.Hooks)
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsConflict == nil {
		deps.IsConflict = func(error) bool { return false }
	}
	if deps.IsExists == nil {
		deps.IsExists = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(_ string, err error) error { return err }
	}
	if deps.ValidateHandle == nil {
		deps.ValidateHandle = func(string) error { return nil }
	}
	if deps.CheckPasswordPolicy == nil {
		deps.CheckPasswordPolicy = func(string, string) error { return nil }
	}
	if deps.CheckRole == nil {
		deps.CheckRole = func(context.Context, string) error { return nil }
	}
	if deps.IsRoleNotFound == nil {
		deps.IsRoleNotFound = func(error) bool { return false }
	}
	if deps.StartPasswordReset == nil {
		deps.StartPasswordReset = func(context.Context, AccountRecord) error { return deps.Errors.EngineNotReady }
	}
}
