package goGate

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/goGate/internal/tokens"
	"github.com/MrEthical07/goGate/password"
)

const (
	maxHandleBytes = 254
	maxEmailBytes  = 254
)

// LoginRequest is the input to [Engine.Login].
type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// Validate checks request shape only. It never touches the store.
func (r LoginRequest) Validate() error {
	if err := requireText("handle", r.Handle, maxHandleBytes); err != nil {
		return err
	}
	return requirePassword("password", r.Password)
}

// ForgotPasswordRequest is the input to [Engine.ForgotPassword].
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validateEmail("email", r.Email)
}

// VerifyCodeRequest is the input to [Engine.VerifyCode].
type VerifyCodeRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

func (r VerifyCodeRequest) Validate() error {
	if !tokens.WellFormed(r.Token) {
		return invalidField("token", "malformed")
	}
	if !tokens.WellFormedCode(r.Code) {
		return invalidField("code", "must be 6 digits")
	}
	return nil
}

// ResetPasswordRequest is the input to [Engine.ResetPassword].
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r ResetPasswordRequest) Validate() error {
	if !tokens.WellFormed(r.Token) {
		return invalidField("token", "malformed")
	}
	return requirePassword("newPassword", r.NewPassword)
}

// ChangePasswordRequest is the input to [Engine.ChangePassword].
type ChangePasswordRequest struct {
	AccountID       string `json:"accountId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	if err := requireText("accountId", r.AccountID, 128); err != nil {
		return err
	}
	if err := requirePassword("currentPassword", r.CurrentPassword); err != nil {
		return err
	}
	return requirePassword("newPassword", r.NewPassword)
}

// CreateAccountRequest is the input to [Engine.CreateAccount]. An empty Role selects the
// configured default role; an empty Password starts the reset flow instead.
type CreateAccountRequest struct {
	Handle     string     `json:"handle"`
	Email      string     `json:"email"`
	Role       string     `json:"role,omitempty"`
	Password   string     `json:"password,omitempty"`
	AuthMethod AuthMethod `json:"authMethod,omitempty"`
}

func (r CreateAccountRequest) Validate() error {
	if err := requireText("handle", r.Handle, maxHandleBytes); err != nil {
		return err
	}
	if err := validateEmail("email", r.Email); err != nil {
		return err
	}
	if r.Password != "" {
		if err := requirePassword("password", r.Password); err != nil {
			return err
		}
	}
	switch r.AuthMethod {
	case "", AuthLocal:
	case AuthFederated:
		if r.Password != "" {
			return invalidField("password", "not allowed for federated accounts")
		}
	default:
		return invalidField("authMethod", "unsupported")
	}
	return nil
}

func requireText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return invalidField(field, "required")
	}
	if len(value) > max {
		return invalidField(field, "too long")
	}
	if !utf8.ValidString(value) {
		return invalidField(field, "invalid encoding")
	}
	return nil
}

func requirePassword(field, value string) error {
	if value == "" {
		return invalidField(field, "required")
	}
	if len(value) > password.DefaultMaxPasswordBytes {
		return invalidField(field, "too long")
	}
	return nil
}

func validateEmail(field, value string) error {
	if err := requireText(field, value, maxEmailBytes); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		return invalidField(field, "not an email address")
	}
	return nil
}
