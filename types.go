package goGate

import (
	"context"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/permission"
)

// AuthMethod is how an account proves its identity.
type AuthMethod string

const (
	AuthLocal     AuthMethod = "local"
	AuthFederated AuthMethod = "federated"
)

// VerificationStatus tracks whether an account completed activation.
type VerificationStatus string

const (
	Verified    VerificationStatus = "verified"
	NotVerified VerificationStatus = "not_verified"
)

// Account is the persisted identity record. Only the engine mutates security state,
// and only through [AccountStore]'s conditional operations.
type Account struct {
	ID           string             `json:"id" db:"id"`
	Handle       string             `json:"handle" db:"handle"`
	Email        string             `json:"email" db:"email"`
	PasswordHash string             `json:"password_hash,omitempty" db:"password_hash"`
	AuthMethod   AuthMethod         `json:"auth_method" db:"auth_method"`
	Role         string             `json:"role" db:"role"`
	Verification VerificationStatus `json:"verification" db:"verification"`
	Active       bool               `json:"active" db:"active"`

	FailedLogins int       `json:"failed_logins" db:"failed_logins"`
	LockedUntil  time.Time `json:"locked_until" db:"locked_until"`

	// PasswordHistory holds prior hashes, most recent first.
	PasswordHistory []string `json:"password_history,omitempty" db:"password_history"`

	ActivationToken     string    `json:"activation_token,omitempty" db:"activation_token"`
	ActivationExpiresAt time.Time `json:"activation_expires_at" db:"activation_expires_at"`

	ResetTokenHash     string    `json:"reset_token_hash,omitempty" db:"reset_token_hash"`
	ResetExpiresAt     time.Time `json:"reset_expires_at" db:"reset_expires_at"`
	ResetCode          string    `json:"reset_code,omitempty" db:"reset_code"`
	ResetCodeExpiresAt time.Time `json:"reset_code_expires_at" db:"reset_code_expires_at"`
	ResetCodeAttempts  int       `json:"reset_code_attempts" db:"reset_code_attempts"`
	ResetCodeVerified  bool      `json:"reset_code_verified" db:"reset_code_verified"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsLocal reports whether the account authenticates with a local password.
func (a *Account) IsLocal() bool {
	return a != nil && (a.AuthMethod == AuthLocal || a.AuthMethod == "")
}

// IsVerified reports whether the account finished activation.
func (a *Account) IsVerified() bool {
	return a != nil && a.Verification == Verified
}

// LockedAt reports whether the account is locked at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a != nil && !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.PasswordHistory != nil {
		out.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	}
	return &out
}

// AccountSummary is the non-sensitive view of an account returned to callers.
type AccountSummary struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func summarize(a *Account) AccountSummary {
	return AccountSummary{ID: a.ID, Handle: a.Handle, Email: a.Email, Role: a.Role}
}

// NormalizeKey is the case folding applied to handles and emails before lookups and
// uniqueness checks.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LockoutPolicy is passed to [AccountStore.RecordLoginFailure].
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
	Now       time.Time
}

// LoginFailure is the post-increment state returned by RecordLoginFailure.
type LoginFailure struct {
	FailedLogins int
	LockedUntil  time.Time
	// Locked is true when this failure crossed the threshold.
	Locked bool
}

// ResetChallenge is a freshly issued reset token digest plus verification code.
type ResetChallenge struct {
	TokenHash     string
	ExpiresAt     time.Time
	Code          string
	CodeExpiresAt time.Time
}

// ResetRotation describes the compare-and-swap performed by VerifyCode.
type ResetRotation struct {
	OldHash      string
	Code         string
	NewHash      string
	NewExpiresAt time.Time
	MaxAttempts  int
	Now          time.Time
}

// PasswordUpdate is a conditional password write.
//
// When ExpectedResetTokenHash is set the store requires that hash with an open,
// code-verified reset window. Otherwise it requires the current hash to equal
// ExpectedPasswordHash. Either way the reset state is cleared.
type PasswordUpdate struct {
	NewHash                string
	History                []string
	ExpectedPasswordHash   string
	ExpectedResetTokenHash string
	Now                    time.Time
}

// AccountStore persists accounts. Every method must be safe for concurrent use, and
// the failure counter, reset rotation, password update and activation consume must be
// atomic with respect to each other for the same account.
//
// Lookups return [ErrAccountNotFound]; unmet preconditions return [ErrConflict].
// Handle and email lookups are case-insensitive.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByHandle(ctx context.Context, handle string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*Account, error)
	GetByActivationToken(ctx context.Context, token string) (*Account, error)

	// Create inserts acc, assigning an id when empty. Duplicate handle or email
	// returns [ErrAccountExists].
	Create(ctx context.Context, acc *Account) error

	// RecordLoginFailure increments the counter and locks the account when it reaches
	// the threshold. An expired lock restarts the series at one.
	RecordLoginFailure(ctx context.Context, id string, policy LockoutPolicy) (LoginFailure, error)
	// RecordLoginSuccess zeroes the counter and clears the lock.
	RecordLoginSuccess(ctx context.Context, id string) error

	// SetResetChallenge replaces any previous reset token and code.
	SetResetChallenge(ctx context.Context, id string, challenge ResetChallenge) error
	// RotateResetToken swaps the reset token when code matches and both windows are
	// open. A wrong code counts an attempt; reaching MaxAttempts clears the challenge.
	RotateResetToken(ctx context.Context, rotation ResetRotation) (*Account, error)
	UpdatePassword(ctx context.Context, id string, update PasswordUpdate) error

	// SetActivationToken replaces any previous activation token.
	SetActivationToken(ctx context.Context, id, token string, expiresAt time.Time) error
	// ConsumeActivation marks the account verified and active when token is unexpired,
	// the account is not verified yet, and it has a password hash.
	ConsumeActivation(ctx context.Context, token string, now time.Time) (*Account, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// RoleRegistry resolves role names to permission sets.
type RoleRegistry = permission.Registry

// EmailKind names an outbound message template.
type EmailKind string

const (
	EmailActivation       EmailKind = "activation"
	EmailPasswordReset    EmailKind = "password-reset"
	EmailPasswordChanged  EmailKind = "password-changed"
	EmailVerificationCode EmailKind = "verification-code"
)

// EmailMessage is handed to an [EmailSender]. Payload carries template values such as
// "token", "code", "handle" and "expires_at".
type EmailMessage struct {
	Kind    EmailKind         `json:"kind"`
	To      string            `json:"to"`
	Payload map[string]string `json:"payload,omitempty"`
}

// EmailSender delivers messages. Failures are logged and counted by the engine.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// NotificationEvent names a real-time notification.
type NotificationEvent string

const (
	NotifyPasswordChanged  NotificationEvent = "password_changed"
	NotifyAccountLocked    NotificationEvent = "account_locked"
	NotifyAccountActivated NotificationEvent = "account_activated"
)

// Notifier publishes real-time events about an account. It is publish-only.
type Notifier interface {
	Notify(ctx context.Context, accountID string, event NotificationEvent) error
}

// Audit types are shared with the internal dispatcher.
type (
	AuditEvent    = internalaudit.Event
	AuditSink     = internalaudit.Sink
	AuditSeverity = internalaudit.Severity
)

const (
	SeverityInfo     = internalaudit.SeverityInfo
	SeverityWarning  = internalaudit.SeverityWarning
	SeverityCritical = internalaudit.SeverityCritical
)

// Claims is the verified content of a session credential.
type Claims struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	SessionToken string         `json:"sessionToken"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	Account      AccountSummary `json:"account"`
}

// CreateAccountResult is returned by [Engine.CreateAccount].
type CreateAccountResult struct {
	Account AccountSummary
}
