package middleware

import (
	"net/http"

	goGate "github.com/MrEthical07/goGate"
)

// RequirePermission must run after [Authenticate]. Requests without claims get 401;
// a role that does not grant (action, resource) gets 403 with error "unauthorized".
func RequirePermission(engine *goGate.Engine, action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := goGate.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, goGate.KindUnauthenticated)
				return
			}
			if !engine.Authorize(r.Context(), claims, action, resource) {
				writeError(w, http.StatusForbidden, goGate.KindUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect is Authenticate followed by RequirePermission.
func Protect(engine *goGate.Engine, action, resource string) func(http.Handler) http.Handler {
	authn := Authenticate(engine)
	authz := RequirePermission(engine, action, resource)
	return func(next http.Handler) http.Handler {
		return authn(authz(next))
	}
}
