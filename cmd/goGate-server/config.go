package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/permission"
)

// FileConfig is the server configuration. It is read from an optional TOML file and
// then overridden by GOGATE_* environment variables.
type FileConfig struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	JWT      JWTFileConfig  `toml:"jwt"`
	Security SecurityConfig `toml:"security"`
	Mail     MailConfig     `toml:"mail"`
	Throttle ThrottleConfig `toml:"throttle"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Roles    []RoleConfig   `toml:"roles"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	MetricsPath     string   `toml:"metrics_path"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Dev   bool   `toml:"dev"`
}

// StoreConfig selects the account store: "memory", "redis" or "postgres".
type StoreConfig struct {
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
	Prefix  string `toml:"prefix"`
	Migrate bool   `toml:"migrate"`
}

// RedisConfig is shared by the redis store, notifications, the mail queue and the
// shared throttle. An empty Addr disables all of them.
type RedisConfig struct {
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	NotifyChannel string `toml:"notify_channel"`
}

type JWTFileConfig struct {
	SigningMethod  string   `toml:"signing_method"`
	Secret         string   `toml:"secret"`
	PrivateKeyFile string   `toml:"private_key_file"`
	PublicKeyFile  string   `toml:"public_key_file"`
	TTL            duration `toml:"ttl"`
	Issuer         string   `toml:"issuer"`
	Audience       string   `toml:"audience"`
}

type SecurityConfig struct {
	LockoutThreshold int      `toml:"lockout_threshold"`
	LockoutDuration  duration `toml:"lockout_duration"`
	ResetTTL         duration `toml:"reset_ttl"`
	CodeTTL          duration `toml:"code_ttl"`
	ActivationTTL    duration `toml:"activation_ttl"`
	HistorySize      int      `toml:"history_size"`
	DefaultRole      string   `toml:"default_role"`
	RoleCacheTTL     duration `toml:"role_cache_ttl"`
}

// MailConfig selects the email sender: "log" or "redis".
type MailConfig struct {
	Sender   string `toml:"sender"`
	QueueKey string `toml:"queue_key"`
	QueueMax int64  `toml:"queue_max"`
}

// ThrottleConfig sizes the per-IP limiter on unauthenticated routes. Shared uses
// the Redis fixed window instead of in-process buckets.
type ThrottleConfig struct {
	Enabled   bool     `toml:"enabled"`
	Shared    bool     `toml:"shared"`
	PerSecond float64  `toml:"per_second"`
	Burst     int      `toml:"burst"`
	Window    duration `toml:"window"`
}

// MetricsConfig turns on the OpenTelemetry pipeline. A zero OTelInterval leaves it
// off; the Prometheus endpoint is controlled by server.metrics_path.
type MetricsConfig struct {
	OTelInterval duration `toml:"otel_interval"`
}

// RoleConfig seeds a role; permissions are "action:resource" strings.
type RoleConfig struct {
	Name        string   `toml:"name"`
	Permissions []string `toml:"permissions"`
}

// duration decodes TOML strings such as "15m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Server: ServerConfig{
			Addr:            "0.0.0.0:8431",
			ShutdownTimeout: duration{5 * time.Second},
			MetricsPath:     "/metrics",
		},
		Log:   LogConfig{Level: "info"},
		Store: StoreConfig{Backend: "memory", Prefix: "gg", Migrate: true},
		JWT:   JWTFileConfig{SigningMethod: "hs256", TTL: duration{time.Hour}, Issuer: "goGate"},
		Mail:  MailConfig{Sender: "log"},
		Throttle: ThrottleConfig{
			Enabled:   true,
			PerSecond: 1,
			Burst:     10,
			Window:    duration{time.Minute},
		},
		Roles: []RoleConfig{
			{Name: "user", Permissions: []string{"read:profile"}},
		},
	}
}

// loadConfig applies defaults, then path (when non-empty), then the environment.
func loadConfig(path string, getenv func(string) string) (FileConfig, error) {
	cfg := defaultFileConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig, getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("GOGATE_ADDR", &cfg.Server.Addr)
	setString("LOG_LEVEL", &cfg.Log.Level)
	if getenv("LOG_DEV") == "1" {
		cfg.Log.Dev = true
	}
	setString("GOGATE_STORE", &cfg.Store.Backend)
	setString("GOGATE_DSN", &cfg.Store.DSN)
	setString("GOGATE_REDIS_ADDR", &cfg.Redis.Addr)
	setString("GOGATE_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("GOGATE_JWT_METHOD", &cfg.JWT.SigningMethod)
	setString("GOGATE_JWT_SECRET", &cfg.JWT.Secret)
	setString("GOGATE_JWT_PRIVATE_KEY_FILE", &cfg.JWT.PrivateKeyFile)
	setString("GOGATE_JWT_PUBLIC_KEY_FILE", &cfg.JWT.PublicKeyFile)
	setString("GOGATE_MAIL_SENDER", &cfg.Mail.Sender)

	if v := strings.TrimSpace(getenv("GOGATE_LOCKOUT_THRESHOLD")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GOGATE_LOCKOUT_THRESHOLD: %w", err)
		}
		cfg.Security.LockoutThreshold = n
	}
	if v := strings.TrimSpace(getenv("GOGATE_OTEL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GOGATE_OTEL_INTERVAL: %w", err)
		}
		cfg.Metrics.OTelInterval = duration{d}
	}
	if v := strings.TrimSpace(getenv("GOGATE_LOCKOUT_DURATION")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GOGATE_LOCKOUT_DURATION: %w", err)
		}
		cfg.Security.LockoutDuration = duration{d}
	}
	return nil
}

// engineConfig converts the file config into goGate.Config. Zero values keep the
// engine defaults.
func (c FileConfig) engineConfig(readFile func(string) ([]byte, error)) (goGate.Config, error) {
	cfg := goGate.DefaultConfig()

	s := c.Security
	if s.LockoutThreshold > 0 {
		cfg.Lockout.Threshold = s.LockoutThreshold
	}
	if s.LockoutDuration.Duration > 0 {
		cfg.Lockout.Duration = s.LockoutDuration.Duration
	}
	if s.ResetTTL.Duration > 0 {
		cfg.Tokens.ResetTTL = s.ResetTTL.Duration
	}
	if s.CodeTTL.Duration > 0 {
		cfg.Tokens.CodeTTL = s.CodeTTL.Duration
	}
	if s.ActivationTTL.Duration > 0 {
		cfg.Tokens.ActivationTTL = s.ActivationTTL.Duration
	}
	if s.HistorySize > 0 {
		cfg.Password.HistorySize = s.HistorySize
	}
	if s.DefaultRole != "" {
		cfg.Roles.DefaultRole = s.DefaultRole
	}
	if s.RoleCacheTTL.Duration > 0 {
		cfg.Roles.CacheTTL = s.RoleCacheTTL.Duration
	}

	j := c.JWT
	cfg.JWT.SigningMethod = j.SigningMethod
	if j.TTL.Duration > 0 {
		cfg.JWT.TTL = j.TTL.Duration
	}
	if j.Issuer != "" {
		cfg.JWT.Issuer = j.Issuer
	}
	cfg.JWT.Audience = j.Audience

	switch j.SigningMethod {
	case "hs256":
		if j.Secret == "" {
			return goGate.Config{}, errors.New("jwt: hs256 requires a secret (GOGATE_JWT_SECRET)")
		}
		cfg.JWT.PrivateKey = []byte(j.Secret)
	case "ed25519":
		priv, err := readFile(j.PrivateKeyFile)
		if err != nil {
			return goGate.Config{}, fmt.Errorf("jwt private key: %w", err)
		}
		pub, err := readFile(j.PublicKeyFile)
		if err != nil {
			return goGate.Config{}, fmt.Errorf("jwt public key: %w", err)
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	default:
		return goGate.Config{}, fmt.Errorf("jwt: unsupported signing method %q", j.SigningMethod)
	}

	if err := cfg.Validate(); err != nil {
		return goGate.Config{}, err
	}
	return cfg, nil
}

// seedRoles parses the configured roles.
func (c FileConfig) seedRoles() ([]permission.Role, error) {
	out := make([]permission.Role, 0, len(c.Roles))
	for _, rc := range c.Roles {
		if strings.TrimSpace(rc.Name) == "" {
			return nil, errors.New("role with empty name")
		}
		role := permission.Role{Name: rc.Name}
		for _, raw := range rc.Permissions {
			p, err := permission.ParsePermission(raw)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", rc.Name, err)
			}
			role.Permissions = append(role.Permissions, p)
		}
		out = append(out, role)
	}
	return out, nil
}
