package flows

import "context"

// AuthorizeMetrics carries metric IDs used by the authorization flow.
type AuthorizeMetrics struct {
	Allowed int
	Denied  int
}

// AuthorizeEvents carries audit action names used by the authorization flow.
type AuthorizeEvents struct {
	Denied string
}

// AuthorizeDeps captures authorization dependencies.
type AuthorizeDeps struct {
	Hooks

	// Allows resolves role and checks the exact (action, resource) pair.
	Allows        func(context.Context, string, string, string) (bool, error)
	OnLookupError func(string, error)

	Metrics AuthorizeMetrics
	Events  AuthorizeEvents
}

// AuthorizeInput is the flow-local authorization question.
type AuthorizeInput struct {
	Subject  string
	Role     string
	Action   string
	Resource string
}

// RunAuthorize answers whether the subject's role grants action on resource. Every
// failure path denies.
func RunAuthorize(ctx context.Context, in AuthorizeInput, deps AuthorizeDeps) bool {
	normalizeAuthorizeDeps(&deps)

	allowed := false
	reason := "permission not granted"

	switch {
	case deps.Allows == nil:
		reason = "no role registry"
	case in.Subject == "" || in.Role == "":
		reason = "missing subject or role"
	default:
		ok, err := deps.Allows(ctx, in.Role, in.Action, in.Resource)
		if err != nil {
			deps.OnLookupError(in.Role, err)
			reason = "role lookup failed: " + err.Error()
		}
		allowed = err == nil && ok
	}

	if allowed {
		deps.MetricInc(deps.Metrics.Allowed)
		return true
	}

	deps.MetricInc(deps.Metrics.Denied)
	deps.EmitAudit(ctx, AuditRecord{
		Action:     deps.Events.Denied,
		ActorID:    in.Subject,
		TargetID:   in.Action + ":" + in.Resource,
		TargetType: "permission",
		Severity:   severityWarning,
		Message:    "role " + in.Role + ": " + reason,
	})
	return false
}

func normalizeAuthorizeDeps(deps *AuthorizeDeps) {
	normalizeHooks(&deps.Hooks)
	if deps.OnLookupError == nil {
		deps.OnLookupError = func(string, error) {}
	}
}
