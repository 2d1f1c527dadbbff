package goGate

import (
	"errors"
	"regexp"
	"time"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"go.uber.org/zap"
)

const timingEqualizerPassword = "goGate-timing-equalizer"

// Builder assembles an [Engine]. A Builder can be used for exactly one Build.
type Builder struct {
	config Config

	store     AccountStore
	roles     RoleRegistry
	mailer    EmailSender
	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithRoleRegistry sets the role source. Required. Lookups are wrapped in a
// [permission.CachedRegistry] when Config.Roles.CacheTTL is positive.
func (b *Builder) WithRoleRegistry(roles RoleRegistry) *Builder {
	b.roles = roles
	return b
}

func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.mailer = sender
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Nil means zap.NewNop().
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for lockout, token expiry and session validation.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.roles == nil {
		return nil, errors.New("role registry required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		store:    b.store,
		roles:    b.roles,
		notifier: b.notifier,
		logger:   logger,
		now:      now,
	}

	// -------- ROLES --------
	if cfg.Roles.CacheTTL > 0 {
		cache := permission.NewCachedRegistry(b.roles, cfg.Roles.CacheTTL).WithClock(now)
		if rm, ok := b.roles.(*permission.RoleManager); ok {
			rm.OnChange(cache.Invalidate)
		}
		engine.roles = cache
		engine.roleCache = cache
	}

	if cfg.Validation.HandlePattern != "" {
		engine.handlePattern = regexp.MustCompile(cfg.Validation.HandlePattern)
	}

	// -------- PASSWORD --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: password.DefaultMaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	dummy, err := ph.Hash(timingEqualizerPassword)
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	// -------- SESSION --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- METRICS / AUDIT / EMAIL --------
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		Async:      cfg.Audit.Async,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)
	engine.mailer = newEmailDispatcher(cfg.Email, b.mailer, logger, func() {
		engine.metricInc(MetricEmailFailure)
	})

	b.built = true

	return engine, nil
}
