package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	goGate "github.com/MrEthical07/goGate"
)

// Authenticate verifies the Authorization bearer token and injects the claims with
// goGate.WithClaims. Missing, malformed and expired tokens get 401.
func Authenticate(engine *goGate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, goGate.KindUnauthenticated)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, goGate.KindUnauthenticated)
				return
			}

			claims, err := engine.VerifySession(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, goGate.ErrorKind(err))
				return
			}

			ctx := goGate.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": goGate.ErrorMessage(kind),
	})
}
