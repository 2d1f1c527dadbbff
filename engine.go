package goGate

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	internalflows "github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"go.uber.org/zap"
)

// Engine is the account security core. It is built once by [Builder] and is safe for
// concurrent use; it keeps no per-request state of its own.
type Engine struct {
	config        Config
	store         AccountStore
	roles         RoleRegistry
	roleCache     *permission.CachedRegistry
	passwordHash  *password.Argon2
	jwtManager    *jwt.Manager
	audit         *internalaudit.Dispatcher
	mailer        *emailDispatcher
	notifier      Notifier
	metrics       *Metrics
	logger        *zap.Logger
	now           func() time.Time
	handlePattern *regexp.Regexp
	dummyHash     string
	notifyFailed  atomic.Uint64
}

// Close drains the audit and email dispatchers.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.mailer != nil {
		e.mailer.Close()
	}
}

// DeliveryStats counts best-effort side effects that never reached their collaborator.
// They are tracked whether or not metrics are enabled.
type DeliveryStats struct {
	AuditDropped uint64
	AuditFailed  uint64
	EmailFailed  uint64
	NotifyFailed uint64
}

// DeliveryStats reports audit, email and notification losses since Build.
func (e *Engine) DeliveryStats() DeliveryStats {
	if e == nil {
		return DeliveryStats{}
	}
	return DeliveryStats{
		AuditDropped: e.audit.Dropped(),
		AuditFailed:  e.audit.Failed(),
		EmailFailed:  e.mailer.Failed(),
		NotifyFailed: e.notifyFailed.Load(),
	}
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// InvalidateRole drops a cached role so the next authorization check reads it fresh.
// An empty name drops every cached role.
func (e *Engine) InvalidateRole(name string) {
	if e == nil || e.roleCache == nil {
		return
	}
	if name == "" {
		e.roleCache.InvalidateAll()
		return
	}
	e.roleCache.Invalidate(name)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
LOGIN
====================================
*/

// Login verifies credentials and issues a session credential.
//
// Unknown handles and wrong passwords both return [ErrInvalidCredentials]. A wrong
// password counts toward the account lockout; reaching the threshold locks the account
// and later attempts return [ErrLocked] until the lock expires, even with the correct
// password.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	result, err := internalflows.RunLogin(ctx, internalflows.LoginInput{
		Handle:   req.Handle,
		Password: req.Password,
	}, e.loginFlowDeps(req))
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		SessionToken: result.Token,
		ExpiresAt:    result.ExpiresAt,
		Account: AccountSummary{
			ID:     result.Account.ID,
			Handle: result.Account.Handle,
			Email:  result.Account.Email,
			Role:   result.Account.Role,
		},
	}, nil
}

func (e *Engine) loginFlowDeps(req LoginRequest) internalflows.LoginDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.LoginDeps{
		LockoutThreshold: cfg.Lockout.Threshold,
		LockoutDuration:  cfg.Lockout.Duration,
		NotifyLocked:     string(NotifyAccountLocked),
		ValidateInput: func(internalflows.LoginInput) error {
			if err := req.Validate(); err != nil {
				return err
			}
			return e.checkHandle(req.Handle)
		},
		IsNotFound: isAccountNotFound,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			LoginNotVerified: int(MetricLoginNotVerified),
			LoginDisabled:    int(MetricLoginDisabled),
			AccountLocked:    int(MetricAccountLocked),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginLocked:      auditEventLoginLocked,
			LoginNotVerified: auditEventLoginNotVerified,
			LoginDisabled:    auditEventLoginDisabled,
			AccountLocked:    auditEventAccountLocked,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			NotVerified:        ErrNotVerified,
			Locked:             ErrLocked,
			AccountDisabled:    ErrAccountDisabled,
		},
	}
	if e == nil {
		return deps
	}

	deps.Hooks = e.flowHooks()
	deps.MapStoreError = e.mapStoreError
	deps.CheckRole = e.checkRole
	deps.EqualizeTiming = e.equalizeTiming

	if e.store != nil {
		deps.GetAccountByHandle = func(ctx context.Context, handle string) (internalflows.AccountRecord, error) {
			acc, err := e.store.GetByHandle(ctx, handle)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountRecord(acc), nil
		}
		deps.RecordFailure = func(ctx context.Context, id string, threshold int, d time.Duration, now time.Time) (int, time.Time, bool, error) {
			failure, err := e.store.RecordLoginFailure(ctx, id, LockoutPolicy{
				Threshold: threshold,
				Duration:  d,
				Now:       now,
			})
			if err != nil {
				return 0, time.Time{}, false, err
			}
			return failure.FailedLogins, failure.LockedUntil, failure.Locked, nil
		}
		deps.RecordSuccess = e.store.RecordLoginSuccess
	}
	if e.passwordHash != nil {
		deps.VerifyPassword = e.passwordHash.Verify
	}
	if e.jwtManager != nil {
		deps.IssueSession = e.jwtManager.Issue
	}

	return deps
}

// equalizeTiming spends one hash verification so unknown handles cost the same as wrong
// passwords.
func (e *Engine) equalizeTiming(pw string) {
	if e.passwordHash == nil || e.dummyHash == "" {
		return
	}
	_, _ = e.passwordHash.Verify(pw, e.dummyHash)
}

/*
====================================
SESSION + AUTHORIZATION
====================================
*/

// VerifySession checks a session credential's signature and then its expiry. It does
// not touch the store. Expired credentials return [ErrSessionExpired]; every other
// rejection returns an error matching [ErrUnauthenticated].
func (e *Engine) VerifySession(ctx context.Context, raw string) (*Claims, error) {
	deps := internalflows.VerifySessionDeps{
		Metrics: internalflows.VerifySessionMetrics{
			Verified: int(MetricSessionVerified),
			Rejected: int(MetricSessionRejected),
			Expired:  int(MetricSessionExpired),
			Latency:  int(MetricVerifySessionLatency),
		},
		Errors: internalflows.VerifySessionErrors{
			EngineNotReady:  ErrEngineNotReady,
			Unauthenticated: ErrUnauthenticated,
			SessionExpired:  ErrSessionExpired,
		},
		IsExpired: func(err error) bool {
			return errors.Is(err, jwt.ErrExpired)
		},
	}
	if e != nil {
		deps.Now = e.now
		deps.MetricInc = func(id int) { e.metricInc(MetricID(id)) }
		deps.ObserveLatency = func(id int, d time.Duration) {
			if e.metrics != nil {
				e.metrics.Observe(MetricID(id), d)
			}
		}
		if e.jwtManager != nil {
			deps.Parse = func(raw string) (internalflows.SessionClaims, error) {
				claims, err := e.jwtManager.Parse(raw)
				if err != nil {
					return internalflows.SessionClaims{}, err
				}
				out := internalflows.SessionClaims{
					Subject: claims.Subject,
					Role:    claims.Role,
				}
				if claims.IssuedAt != nil {
					out.IssuedAt = claims.IssuedAt.Time
				}
				if claims.ExpiresAt != nil {
					out.ExpiresAt = claims.ExpiresAt.Time
				}
				return out, nil
			}
		}
	}

	claims, err := internalflows.RunVerifySession(ctx, raw, deps)
	if err != nil {
		return nil, err
	}
	return &Claims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Authorize reports whether the role named in claims grants action on resource. Roles
// are looked up on every call (through the TTL cache when enabled); matching is exact on
// both action and resource. Nil claims, an unknown role and lookup failures all deny.
func (e *Engine) Authorize(ctx context.Context, claims *Claims, action, resource string) bool {
	in := internalflows.AuthorizeInput{Action: action, Resource: resource}
	if claims != nil {
		in.Subject = claims.Subject
		in.Role = claims.Role
	}

	deps := internalflows.AuthorizeDeps{
		Metrics: internalflows.AuthorizeMetrics{
			Allowed: int(MetricAuthorizeAllowed),
			Denied:  int(MetricAuthorizeDenied),
		},
		Events: internalflows.AuthorizeEvents{
			Denied: auditEventAuthorizeDenied,
		},
	}
	if e != nil {
		deps.Hooks = e.flowHooks()
		deps.OnLookupError = func(role string, err error) {
			if errors.Is(err, ErrRoleNotFound) {
				return
			}
			e.logger.Warn("role lookup failed", zap.String("role", role), zap.Error(err))
		}
		if e.roles != nil {
			deps.Allows = func(ctx context.Context, roleName, action, resource string) (bool, error) {
				role, err := e.roles.FindRoleByName(ctx, roleName)
				if err != nil {
					return false, err
				}
				return role.Allows(action, resource), nil
			}
		}
	}

	return internalflows.RunAuthorize(ctx, in, deps)
}

// RequirePermission is the error-returning form of [Engine.Authorize]. It returns
// [ErrUnauthenticated] for nil claims and [ErrUnauthorized] on denial.
func (e *Engine) RequirePermission(ctx context.Context, claims *Claims, action, resource string) error {
	if claims == nil || claims.Subject == "" {
		return ErrUnauthenticated
	}
	if !e.Authorize(ctx, claims, action, resource) {
		return ErrUnauthorized
	}
	return nil
}

/*
====================================
SHARED FLOW WIRING
====================================
*/

func (e *Engine) flowHooks() internalflows.Hooks {
	return internalflows.Hooks{
		Now: e.now,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		SendEmail: e.sendEmail,
		Notify:    e.notify,
	}
}

func (e *Engine) checkRole(ctx context.Context, name string) error {
	if e.roles == nil {
		return ErrEngineNotReady
	}
	_, err := e.roles.FindRoleByName(ctx, name)
	if err != nil && !errors.Is(err, ErrRoleNotFound) {
		e.logger.Warn("role lookup failed", zap.String("role", name), zap.Error(err))
	}
	return err
}

func (e *Engine) mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	e.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return internalFailure(op, err)
}

func (e *Engine) checkPasswordPolicy(field, pw string) error {
	n := len([]rune(pw))
	if n < e.config.Password.MinLength {
		return invalidField(field, "too short")
	}
	if n > e.config.Password.MaxLength {
		return invalidField(field, "too long")
	}
	return nil
}

// passwordReused reports whether pw matches the current hash or a retained history
// entry.
func (e *Engine) passwordReused(pw string, acc internalflows.AccountRecord) (bool, error) {
	limit := e.config.Password.HistorySize
	history := acc.History
	if len(history) > limit {
		history = history[:limit]
	}
	candidates := make([]string, 0, len(history)+1)
	candidates = append(candidates, acc.PasswordHash)
	candidates = append(candidates, history...)
	return password.MatchesAny(e.passwordHash, pw, candidates...)
}

func (e *Engine) pushHistory(history []string, previous string) []string {
	return password.PushHistory(history, previous, e.config.Password.HistorySize)
}

func isAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func accountRecord(a *Account) internalflows.AccountRecord {
	if a == nil {
		return internalflows.AccountRecord{}
	}
	return internalflows.AccountRecord{
		ID:                a.ID,
		Handle:            a.Handle,
		Email:             a.Email,
		PasswordHash:      a.PasswordHash,
		Role:              a.Role,
		Local:             a.IsLocal(),
		Verified:          a.IsVerified(),
		Active:            a.Active,
		LockedUntil:       a.LockedUntil,
		History:           a.PasswordHistory,
		ResetExpiresAt:    a.ResetExpiresAt,
		ResetCodeVerified: a.ResetCodeVerified,
	}
}
