package goGate

import (
	"context"
	"errors"
)

// SetAccountActive blocks (active=false) or unblocks an account. Blocked accounts cannot
// log in, change their password or start a reset.
func (e *Engine) SetAccountActive(ctx context.Context, accountID string, active bool) error {
	if err := requireText("accountId", accountID, 128); err != nil {
		return err
	}
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := e.store.SetActive(ctx, accountID, active); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return e.mapStoreError("set active", err)
	}

	message := "account blocked"
	severity := SeverityWarning
	if active {
		message = "account unblocked"
		severity = SeverityInfo
	}
	e.record(ctx, AuditEvent{
		Action:     auditEventAccountStatusChange,
		ActorID:    actorFromContext(ctx),
		TargetID:   accountID,
		TargetType: "account",
		Severity:   severity,
		Message:    message,
		Success:    true,
	})
	return nil
}
