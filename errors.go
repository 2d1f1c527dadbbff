package goGate

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goGate/permission"
)

var (
	// ErrInvalidCredentials is returned for unknown handles and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotVerified is returned when a not-yet-verified account tries to log in.
	ErrNotVerified = errors.New("account not verified")
	// ErrLocked is returned while an account's lock-until is in the future.
	ErrLocked = errors.New("account locked")
	// ErrAccountDisabled is returned when an administrator blocked the account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidOrExpiredToken covers unknown, expired, consumed and mismatched
	// activation tokens, reset tokens and verification codes.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrPasswordReused is returned when a new password matches the current hash or a
	// retained history entry.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrValidationFailed is the parent of every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrUnauthorized is returned when an authenticated caller lacks a permission.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnauthenticated is returned for missing, malformed or badly signed session tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired is a correctly signed session token past its expiry. It matches
	// ErrUnauthenticated under errors.Is.
	ErrSessionExpired = fmt.Errorf("session expired: %w", ErrUnauthenticated)
	// ErrInternalFailure wraps store and dependency failures.
	ErrInternalFailure = errors.New("internal failure")
	// ErrAlreadyVerified is returned when activation is requested for a verified account.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Store-level sentinels. AccountStore implementations return these so the engine can
// tell a missing record from a lost race without inspecting driver errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrConflict        = errors.New("precondition failed")
	ErrRoleNotFound    = permission.ErrRoleNotFound
)

var (
	errEmailBufferFull       = errors.New("email buffer full")
	errEmailDispatcherClosed = errors.New("email dispatcher closed")
)

// ValidationError describes a request field that failed shape validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + ": " + e.Reason
}

// Unwrap makes errors.Is(err, ErrValidationFailed) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Error kinds returned by ErrorKind.
const (
	KindInvalidCredentials    = "invalid_credentials"
	KindNotVerified           = "not_verified"
	KindLocked                = "locked"
	KindAccountDisabled       = "account_disabled"
	KindInvalidOrExpiredToken = "invalid_or_expired_token"
	KindPasswordReused        = "password_reused"
	KindValidationFailed      = "validation_failed"
	KindUnauthorized          = "unauthorized"
	KindSessionExpired        = "session_expired"
	KindUnauthenticated       = "unauthenticated"
	KindAccountExists         = "account_exists"
	KindAccountNotFound       = "account_not_found"
	KindAlreadyVerified       = "already_verified"
	KindInternalFailure       = "internal_failure"

	// KindRateLimited is reported by transports that throttle callers; ErrorKind never
	// returns it.
	KindRateLimited = "rate_limited"
)

var kindMessages = map[string]string{
	KindInvalidCredentials:    "invalid handle or password",
	KindNotVerified:           "account is not verified",
	KindLocked:                "account is temporarily locked",
	KindAccountDisabled:       "account is disabled",
	KindInvalidOrExpiredToken: "token is invalid or expired",
	KindPasswordReused:        "password was used recently",
	KindValidationFailed:      "request failed validation",
	KindUnauthorized:          "not permitted",
	KindSessionExpired:        "session has expired",
	KindUnauthenticated:       "authentication required",
	KindAccountExists:         "account already exists",
	KindAccountNotFound:       "account not found",
	KindAlreadyVerified:       "account is already verified",
	KindInternalFailure:       "internal error",
	KindRateLimited:           "too many requests",
}

// ErrorMessage returns the fixed client-facing message for kind. Unknown kinds get the
// internal failure message.
func ErrorMessage(kind string) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return kindMessages[KindInternalFailure]
}

// ErrorKind maps err to a stable machine-readable kind. Unknown errors and nil-safe
// internal failures map to "internal_failure"; nil maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrNotVerified):
		return KindNotVerified
	case errors.Is(err, ErrLocked):
		return KindLocked
	case errors.Is(err, ErrAccountDisabled):
		return KindAccountDisabled
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return KindInvalidOrExpiredToken
	case errors.Is(err, ErrPasswordReused):
		return KindPasswordReused
	case errors.Is(err, ErrValidationFailed):
		return KindValidationFailed
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrAccountExists):
		return KindAccountExists
	case errors.Is(err, ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, ErrAlreadyVerified):
		return KindAlreadyVerified
	default:
		return KindInternalFailure
	}
}

func internalFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternalFailure, op, err)
}
