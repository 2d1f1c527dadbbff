package flows

import (
	"context"
	"time"
)

// AccountRecord is the flow-local view of a persisted account.
type AccountRecord struct {
	ID           string
	Handle       string
	Email        string
	PasswordHash string
	Role         string
	Local        bool
	Verified     bool
	Active       bool
	LockedUntil  time.Time
	History      []string

	ResetExpiresAt    time.Time
	ResetCodeVerified bool
}

// AuditRecord is the flow-local audit entry. The engine stamps time, request origin
// and id before dispatch.
type AuditRecord struct {
	Action     string
	ActorID    string
	TargetID   string
	TargetType string
	Severity   string
	Message    string
	Success    bool
}

// Email is the flow-local outbound message.
type Email struct {
	Kind    string
	To      string
	Payload map[string]string
}

const (
	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"

	targetAccount = "account"
)

func accountAudit(action string, acc AccountRecord, success bool, severity, message string) AuditRecord {
	return AuditRecord{
		Action:     action,
		ActorID:    acc.ID,
		TargetID:   acc.ID,
		TargetType: targetAccount,
		Severity:   severity,
		Message:    message,
		Success:    success,
	}
}

func anonymousAudit(action string, severity, message string) AuditRecord {
	return AuditRecord{
		Action:     action,
		TargetType: targetAccount,
		Severity:   severity,
		Message:    message,
	}
}

// Hooks are the optional side channels shared by every flow. Nil members become
// no-ops (Now becomes time.Now).
type Hooks struct {
	Now       func() time.Time
	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)
	SendEmail func(context.Context, Email)
	Notify    func(context.Context, string, string)
}

func normalizeHooks(h *Hooks) {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, AuditRecord) {}
	}
	if h.SendEmail == nil {
		h.SendEmail = func(context.Context, Email) {}
	}
	if h.Notify == nil {
		h.Notify = func(context.Context, string, string) {}
	}
}
