package goGate

import (
	"errors"
	"regexp"
	"time"
)

// Config holds every engine setting. Build it with [DefaultConfig], adjust, and pass it
// to [Builder.WithConfig]; it is treated as immutable afterwards.
type Config struct {
	Lockout    LockoutConfig
	Tokens     TokenConfig
	Password   PasswordConfig
	JWT        JWTConfig
	Roles      RolesConfig
	Audit      AuditConfig
	Email      EmailConfig
	Validation ValidationConfig
	Metrics    MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig is the account-scoped brute-force policy.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig sets the lifetimes of single-use secrets.
type TokenConfig struct {
	ActivationTTL time.Duration
	ResetTTL      time.Duration
	CodeTTL       time.Duration
	// MaxCodeAttempts wrong codes invalidate the reset challenge.
	MaxCodeAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters and password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength   int
	MaxLength   int
	HistorySize int
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures session credentials.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	TTL           time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
ROLES / AUDIT / EMAIL
====================================
*/

// RolesConfig controls role resolution.
type RolesConfig struct {
	// CacheTTL bounds role-permission staleness. Zero disables the cache.
	CacheTTL    time.Duration
	DefaultRole string
}

// AuditConfig controls audit dispatch.
type AuditConfig struct {
	Enabled    bool
	Async      bool
	BufferSize int
	DropIfFull bool
}

// EmailConfig controls outbound email dispatch.
type EmailConfig struct {
	Async      bool
	BufferSize int
}

// ValidationConfig holds request shape rules applied on top of Validate().
type ValidationConfig struct {
	HandlePattern string
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultHandlePattern is the handle shape accepted by CreateAccount.
const DefaultHandlePattern = `^[a-zA-Z0-9_.-]{3,32}$`

// DefaultConfig returns production defaults. JWT keys must still be supplied.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Tokens: TokenConfig{
			ActivationTTL:   time.Hour,
			ResetTTL:        time.Hour,
			CodeTTL:         15 * time.Minute,
			MaxCodeAttempts: 5,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   128,
			HistorySize: 5,
		},
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			TTL:           time.Hour,
			Issuer:        "goGate",
		},
		Roles: RolesConfig{
			CacheTTL:    30 * time.Second,
			DefaultRole: "user",
		},
		Audit: AuditConfig{
			Enabled:    true,
			Async:      true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Email: EmailConfig{
			Async:      true,
			BufferSize: 256,
		},
		Validation: ValidationConfig{
			HandlePattern: DefaultHandlePattern,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Tokens
	if c.Tokens.ActivationTTL <= 0 || c.Tokens.ResetTTL <= 0 || c.Tokens.CodeTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}
	if c.Tokens.CodeTTL > c.Tokens.ResetTTL {
		return errors.New("Tokens CodeTTL must not exceed ResetTTL")
	}
	if c.Tokens.MaxCodeAttempts <= 0 {
		return errors.New("Tokens MaxCodeAttempts must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength || c.Password.MaxLength > 1024 {
		return errors.New("Password MaxLength must be between MinLength and 1024")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("Password HistorySize must be >= 0")
	}

	// JWT
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Roles
	if c.Roles.CacheTTL < 0 {
		return errors.New("Roles CacheTTL must be >= 0")
	}
	if c.Roles.DefaultRole == "" {
		return errors.New("Roles DefaultRole must be set")
	}

	// Audit / Email
	if c.Audit.Enabled && c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when async")
	}
	if c.Email.Async && c.Email.BufferSize <= 0 {
		return errors.New("Email BufferSize must be > 0 when async")
	}

	// Validation
	if c.Validation.HandlePattern != "" {
		if _, err := regexp.Compile(c.Validation.HandlePattern); err != nil {
			return errors.New("Validation HandlePattern does not compile")
		}
	}

	return nil
}
