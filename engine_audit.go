package goGate

import (
	"context"

	internalflows "github.com/MrEthical07/goGate/internal/flows"
	"go.uber.org/zap"
)

const (
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventLoginLocked               = "login_locked"
	auditEventLoginNotVerified          = "login_not_verified"
	auditEventLoginDisabled             = "login_disabled"
	auditEventAccountLocked             = "account_locked"
	auditEventPasswordResetRequest      = "password_reset_request"
	auditEventPasswordResetCodeVerified = "password_reset_code_verified"
	auditEventPasswordResetCodeFailure  = "password_reset_code_failure"
	auditEventPasswordResetSuccess      = "password_reset_success"
	auditEventPasswordResetFailure      = "password_reset_failure"
	auditEventPasswordChangeSuccess     = "password_change_success"
	auditEventPasswordChangeFailure     = "password_change_failure"
	auditEventActivationIssued          = "activation_issued"
	auditEventActivationSuccess         = "activation_success"
	auditEventActivationFailure         = "activation_failure"
	auditEventAccountCreated            = "account_created"
	auditEventAccountCreateFailure      = "account_create_failure"
	auditEventAccountStatusChange       = "account_status_change"
	auditEventAuthorizeDenied           = "authorize_denied"
)

// emitAudit stamps a flow record with time and request origin and dispatches it.
func (e *Engine) emitAudit(ctx context.Context, rec internalflows.AuditRecord) {
	e.record(ctx, AuditEvent{
		Action:     rec.Action,
		ActorID:    rec.ActorID,
		TargetID:   rec.TargetID,
		TargetType: rec.TargetType,
		Severity:   AuditSeverity(rec.Severity),
		Message:    rec.Message,
		Success:    rec.Success,
	})
}

func (e *Engine) record(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}
	if event.SourceAddr == "" {
		event.SourceAddr = clientIPFromContext(ctx)
	}
	if event.Path == "" {
		event.Path = requestPathFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) sendEmail(ctx context.Context, msg internalflows.Email) {
	if e == nil || e.mailer == nil {
		return
	}
	e.mailer.Send(ctx, EmailMessage{
		Kind:    EmailKind(msg.Kind),
		To:      msg.To,
		Payload: msg.Payload,
	})
}

func (e *Engine) notify(ctx context.Context, accountID, event string) {
	if e == nil || e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(context.WithoutCancel(ctx), accountID, NotificationEvent(event)); err != nil {
		e.notifyFailed.Add(1)
		e.metricInc(MetricNotifyFailure)
		e.logger.Warn("notification failed",
			zap.String("account_id", accountID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func actorFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return ""
}
