package goGate

import (
	"context"

	internalflows "github.com/MrEthical07/goGate/internal/flows"
)

// ChangePassword replaces the password of an authenticated account. The current password
// must verify ([ErrInvalidCredentials] otherwise) and the new one must not match the
// current hash or any retained history entry ([ErrPasswordReused]).
func (e *Engine) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return internalflows.RunChangePassword(ctx, internalflows.ChangePasswordInput{
		AccountID:       req.AccountID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}, e.changePasswordFlowDeps())
}

func (e *Engine) changePasswordFlowDeps() internalflows.ChangePasswordDeps {
	deps := internalflows.ChangePasswordDeps{
		EmailPasswordChanged:  string(EmailPasswordChanged),
		NotifyPasswordChanged: string(NotifyPasswordChanged),
		IsNotFound:            isAccountNotFound,
		IsConflict:            isConflict,
		Metrics: internalflows.ChangePasswordMetrics{
			ChangeSuccess: int(MetricPasswordChangeSuccess),
			InvalidOld:    int(MetricPasswordChangeInvalidOld),
			PasswordReuse: int(MetricPasswordReuseRejected),
		},
		Events: internalflows.ChangePasswordEvents{
			PasswordChanged:      auditEventPasswordChangeSuccess,
			PasswordChangeFailed: auditEventPasswordChangeFailure,
		},
		Errors: internalflows.ChangePasswordErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountDisabled:    ErrAccountDisabled,
			PasswordReused:     ErrPasswordReused,
		},
	}
	if e == nil {
		return deps
	}

	deps.Hooks = e.flowHooks()
	deps.MapStoreError = e.mapStoreError
	deps.CheckPasswordPolicy = e.checkPasswordPolicy
	deps.PushHistory = e.pushHistory

	if e.passwordHash != nil {
		deps.VerifyPassword = e.passwordHash.Verify
		deps.HashPassword = e.passwordHash.Hash
		deps.PasswordReused = e.passwordReused
	}
	if e.store != nil {
		deps.GetAccountByID = func(ctx context.Context, id string) (internalflows.AccountRecord, error) {
			acc, err := e.store.GetByID(ctx, id)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.UpdatePassword = e.updatePassword
	}

	return deps
}
