package httpapi

import (
	"encoding/json"
	"net/http"

	goGate "github.com/MrEthical07/goGate"
)

// statusFor maps an engine error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case goGate.KindValidationFailed, goGate.KindInvalidOrExpiredToken, goGate.KindPasswordReused:
		return http.StatusBadRequest
	case goGate.KindInvalidCredentials, goGate.KindUnauthenticated, goGate.KindSessionExpired:
		return http.StatusUnauthorized
	case goGate.KindNotVerified, goGate.KindLocked, goGate.KindAccountDisabled, goGate.KindUnauthorized:
		return http.StatusForbidden
	case goGate.KindAccountNotFound:
		return http.StatusNotFound
	case goGate.KindAccountExists, goGate.KindAlreadyVerified:
		return http.StatusConflict
	case goGate.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	kind := goGate.ErrorKind(err)
	writeError(w, statusFor(kind), kind)
}

// writeError writes the kind and its fixed message. Error details stay in the logs.
func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]string{
		"error":   kind,
		"message": goGate.ErrorMessage(kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
