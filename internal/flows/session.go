package flows

import (
	"context"
	"errors"
	"time"
)

// SessionClaims is the flow-local view of verified session claims.
type SessionClaims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// VerifySessionMetrics carries metric IDs used by the session flow.
type VerifySessionMetrics struct {
	Verified int
	Rejected int
	Expired  int
	Latency  int
}

// VerifySessionErrors carries host-level sentinel errors.
type VerifySessionErrors struct {
	EngineNotReady  error
	Unauthenticated error
	SessionExpired  error
}

// VerifySessionDeps captures session verification dependencies.
type VerifySessionDeps struct {
	Now            func() time.Time
	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)

	Parse     func(string) (SessionClaims, error)
	IsExpired func(error) bool

	Metrics VerifySessionMetrics
	Errors  VerifySessionErrors
}

// RunVerifySession checks the signature, then the expiry. It performs no I/O.
func RunVerifySession(_ context.Context, raw string, deps VerifySessionDeps) (*SessionClaims, error) {
	normalizeVerifySessionDeps(&deps)

	if deps.Parse == nil {
		return nil, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Metrics.Latency, deps.Now().Sub(start))
	}()

	if raw == "" {
		deps.MetricInc(deps.Metrics.Rejected)
		return nil, deps.Errors.Unauthenticated
	}

	claims, err := deps.Parse(raw)
	if err != nil {
		if deps.IsExpired(err) {
			deps.MetricInc(deps.Metrics.Expired)
			return nil, deps.Errors.SessionExpired
		}
		deps.MetricInc(deps.Metrics.Rejected)
		return nil, errors.Join(deps.Errors.Unauthenticated, err)
	}
	if claims.Subject == "" {
		deps.MetricInc(deps.Metrics.Rejected)
		return nil, deps.Errors.Unauthenticated
	}

	deps.MetricInc(deps.Metrics.Verified)
	return &claims, nil
}

func normalizeVerifySessionDeps(deps *VerifySessionDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(int, time.Duration) {}
	}
	if deps.IsExpired == nil {
		deps.IsExpired = func(error) bool { return false }
	}
}
