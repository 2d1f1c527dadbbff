// Package tokens generates the single-use secrets used by account lifecycle flows.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	secretSize = 32

	// CodeDigits is the length of a verification code.
	CodeDigits = 6
)

var errInvalidDigits = errors.New("invalid code digits")

// NewActivationToken returns a random base64url activation token. Activation tokens are
// stored as issued.
func NewActivationToken() (string, error) {
	return newSecret()
}

// NewResetToken returns a random base64url reset token and the digest to persist.
// Only the digest may be stored.
func NewResetToken() (token, hash string, err error) {
	token, err = newSecret()
	if err != nil {
		return "", "", err
	}
	return token, HashToken(token), nil
}

// HashToken returns the lowercase hex SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewVerificationCode returns a uniformly random [CodeDigits]-digit decimal code.
func NewVerificationCode() (string, error) {
	return newDigits(CodeDigits)
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// WellFormed reports whether token looks like a value produced by this package.
// It is a cheap pre-check before any store lookup.
func WellFormed(token string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == secretSize
}

// WellFormedCode reports whether code has the verification code shape.
func WellFormedCode(code string) bool {
	if len(code) != CodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func newSecret() (string, error) {
	var secret [secretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

func newDigits(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errInvalidDigits
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
