package goGate

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/tokens"
)

// CreateAccount inserts a not-verified account. A local account created with a password
// receives an activation email; one created without a password receives the reset
// emails so the owner chooses the first password, and completing that reset activates
// it. Federated accounts receive nothing.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc, err := internalflows.RunCreateAccount(ctx, internalflows.CreateAccountInput{
		Handle:   req.Handle,
		Email:    req.Email,
		Role:     req.Role,
		Password: req.Password,
		Local:    req.AuthMethod != AuthFederated,
	}, e.activationFlowDeps())
	if err != nil {
		return nil, err
	}

	return &CreateAccountResult{
		Account: AccountSummary{
			ID:     acc.ID,
			Handle: acc.Handle,
			Email:  acc.Email,
			Role:   acc.Role,
		},
	}, nil
}

// Activate consumes an activation token, marking the account verified and active.
func (e *Engine) Activate(ctx context.Context, token string) error {
	if !tokens.WellFormed(token) {
		e.metricInc(MetricActivationFailure)
		return ErrInvalidOrExpiredToken
	}
	return internalflows.RunActivate(ctx, token, e.activationFlowDeps())
}

// IssueActivation replaces the activation token of a not-verified account and mails
// the new one.
func (e *Engine) IssueActivation(ctx context.Context, accountID string) error {
	if err := requireText("accountId", accountID, 128); err != nil {
		return err
	}
	return internalflows.RunIssueActivationByID(ctx, accountID, e.activationFlowDeps())
}

func (e *Engine) activationFlowDeps() internalflows.ActivationDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.ActivationDeps{
		ActivationTTL:          cfg.Tokens.ActivationTTL,
		DefaultRole:            cfg.Roles.DefaultRole,
		EmailActivation:        string(EmailActivation),
		NotifyAccountActivated: string(NotifyAccountActivated),
		IsNotFound:             isAccountNotFound,
		IsConflict:             isConflict,
		IsExists: func(err error) bool {
			return errors.Is(err, ErrAccountExists)
		},
		IsRoleNotFound: func(err error) bool {
			return errors.Is(err, ErrRoleNotFound)
		},
		NewActivationToken: tokens.NewActivationToken,
		Metrics: internalflows.ActivationMetrics{
			ActivationSuccess: int(MetricActivationSuccess),
			ActivationFailure: int(MetricActivationFailure),
			AccountCreated:    int(MetricAccountCreated),
		},
		Events: internalflows.ActivationEvents{
			ActivationIssued: auditEventActivationIssued,
			Activated:        auditEventActivationSuccess,
			ActivationFailed: auditEventActivationFailure,
			AccountCreated:   auditEventAccountCreated,
			CreateFailed:     auditEventAccountCreateFailure,
		},
		Errors: internalflows.ActivationErrors{
			EngineNotReady:        ErrEngineNotReady,
			InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
			AlreadyVerified:       ErrAlreadyVerified,
			AccountExists:         ErrAccountExists,
			UnknownRole:           invalidField("role", "unknown role"),
		},
	}
	if e == nil {
		return deps
	}

	deps.Hooks = e.flowHooks()
	deps.MapStoreError = func(op string, err error) error {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return e.mapStoreError(op, err)
	}
	deps.CheckPasswordPolicy = e.checkPasswordPolicy
	deps.CheckRole = e.checkRole
	deps.ValidateHandle = e.checkHandle
	deps.StartPasswordReset = func(ctx context.Context, acc internalflows.AccountRecord) error {
		return internalflows.RunStartPasswordReset(ctx, acc, e.passwordResetFlowDeps())
	}

	if e.passwordHash != nil {
		deps.HashPassword = e.passwordHash.Hash
	}
	if e.store != nil {
		deps.GetAccountByID = func(ctx context.Context, id string) (internalflows.AccountRecord, error) {
			acc, err := e.store.GetByID(ctx, id)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.SetActivationToken = e.store.SetActivationToken
		deps.ConsumeActivation = func(ctx context.Context, token string, now time.Time) (internalflows.AccountRecord, error) {
			acc, err := e.store.ConsumeActivation(ctx, token, now)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.CreateAccount = func(ctx context.Context, n internalflows.NewAccount) (internalflows.AccountRecord, error) {
			now := e.now()
			method := AuthLocal
			if !n.Local {
				method = AuthFederated
			}
			acc := &Account{
				Handle:       n.Handle,
				Email:        n.Email,
				PasswordHash: n.PasswordHash,
				AuthMethod:   method,
				Role:         n.Role,
				Verification: NotVerified,
				Active:       true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := e.store.Create(ctx, acc); err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
	}

	return deps
}

// checkHandle enforces the configured handle charset and length.
func (e *Engine) checkHandle(handle string) error {
	if e == nil || e.handlePattern == nil {
		return nil
	}
	if !e.handlePattern.MatchString(handle) {
		return invalidField("handle", "does not match the handle pattern")
	}
	return nil
}
