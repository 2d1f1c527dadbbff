package goGate

import (
	"context"

	internalflows "github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/tokens"
)

// ForgotPassword starts the reset flow for req.Email. Once the request is well formed it
// returns nil whether or not the address belongs to an eligible account; the audit log
// records what actually happened.
func (e *Engine) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return internalflows.RunForgotPassword(ctx, req.Email, e.passwordResetFlowDeps())
}

// VerifyCode exchanges a reset token and its verification code for a new reset token.
// Only the returned token can be passed to [Engine.ResetPassword].
func (e *Engine) VerifyCode(ctx context.Context, req VerifyCodeRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return internalflows.RunVerifyCode(ctx, req.Token, req.Code, e.passwordResetFlowDeps())
}

// ResetPassword sets a new password using a token returned by [Engine.VerifyCode]. The
// token is consumed; a replay returns [ErrInvalidOrExpiredToken].
func (e *Engine) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return internalflows.RunResetPassword(ctx, req.Token, req.NewPassword, e.passwordResetFlowDeps())
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.PasswordResetDeps{
		ResetTTL:              cfg.Tokens.ResetTTL,
		CodeTTL:               cfg.Tokens.CodeTTL,
		MaxCodeAttempts:       cfg.Tokens.MaxCodeAttempts,
		EmailPasswordReset:    string(EmailPasswordReset),
		EmailVerificationCode: string(EmailVerificationCode),
		EmailPasswordChanged:  string(EmailPasswordChanged),
		NotifyPasswordChanged: string(NotifyPasswordChanged),
		IsNotFound:            isAccountNotFound,
		IsConflict:            isConflict,
		NewResetToken:         tokens.NewResetToken,
		NewCode:               tokens.NewVerificationCode,
		HashToken:             tokens.HashToken,
		Metrics: internalflows.PasswordResetMetrics{
			ResetRequest:  int(MetricPasswordResetRequest),
			CodeVerified:  int(MetricPasswordResetCodeVerified),
			CodeFailure:   int(MetricPasswordResetCodeFailure),
			ResetSuccess:  int(MetricPasswordResetSuccess),
			ResetFailure:  int(MetricPasswordResetFailure),
			PasswordReuse: int(MetricPasswordReuseRejected),
		},
		Events: internalflows.PasswordResetEvents{
			ResetRequested: auditEventPasswordResetRequest,
			CodeVerified:   auditEventPasswordResetCodeVerified,
			CodeFailed:     auditEventPasswordResetCodeFailure,
			ResetSucceeded: auditEventPasswordResetSuccess,
			ResetFailed:    auditEventPasswordResetFailure,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:        ErrEngineNotReady,
			InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
			PasswordReused:        ErrPasswordReused,
		},
	}
	if e == nil {
		return deps
	}

	deps.Hooks = e.flowHooks()
	deps.MapStoreError = e.mapStoreError
	deps.CheckPasswordPolicy = e.checkPasswordPolicy
	deps.PushHistory = e.pushHistory
	deps.IssueActivation = func(ctx context.Context, acc internalflows.AccountRecord) error {
		return internalflows.RunIssueActivation(ctx, acc, e.activationFlowDeps())
	}

	if e.passwordHash != nil {
		deps.HashPassword = e.passwordHash.Hash
		deps.PasswordReused = e.passwordReused
	}
	if e.store != nil {
		deps.GetAccountByEmail = func(ctx context.Context, email string) (internalflows.AccountRecord, error) {
			acc, err := e.store.GetByEmail(ctx, email)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.GetAccountByResetHash = func(ctx context.Context, hash string) (internalflows.AccountRecord, error) {
			acc, err := e.store.GetByResetTokenHash(ctx, hash)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.SetResetChallenge = func(ctx context.Context, id string, c internalflows.ResetChallenge) error {
			return e.store.SetResetChallenge(ctx, id, ResetChallenge{
				TokenHash:     c.TokenHash,
				ExpiresAt:     c.ExpiresAt,
				Code:          c.Code,
				CodeExpiresAt: c.CodeExpiresAt,
			})
		}
		deps.RotateResetToken = func(ctx context.Context, r internalflows.ResetRotation) (internalflows.AccountRecord, error) {
			acc, err := e.store.RotateResetToken(ctx, ResetRotation{
				OldHash:      r.OldHash,
				Code:         r.Code,
				NewHash:      r.NewHash,
				NewExpiresAt: r.NewExpiresAt,
				MaxAttempts:  r.MaxAttempts,
				Now:          r.Now,
			})
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.UpdatePassword = e.updatePassword
	}

	return deps
}

func (e *Engine) updatePassword(ctx context.Context, id string, w internalflows.PasswordWrite) error {
	return e.store.UpdatePassword(ctx, id, PasswordUpdate{
		NewHash:                w.NewHash,
		History:                w.History,
		ExpectedPasswordHash:   w.ExpectedPasswordHash,
		ExpectedResetTokenHash: w.ExpectedResetTokenHash,
		Now:                    w.Now,
	})
}
