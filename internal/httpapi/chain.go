package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

type (
	requestIDKey struct{}
	routeKey     struct{}
)

// unmatchedRoute is logged for requests no route pattern claimed.
const unmatchedRoute = "unmatched"

// routeSlot carries the matched pattern from inside the mux back out to the logging
// middlewares, which see a different *http.Request than the routed handler.
type routeSlot struct {
	pattern string
}

// Chain wraps h so that middlewares[0] runs first.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithRequestID propagates X-Request-Id, generating one when absent.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if rid == "" || len(rid) > 64 {
			rid = ksuid.New().String()
		}
		w.Header().Set("X-Request-Id", rid)
		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRoute reserves a slot for the matched route pattern. Logs record the pattern, never
// the raw URL path, which may carry a reset or activation token.
func WithRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), routeKey{}, &routeSlot{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RouteFromContext returns the matched route pattern, or "unmatched".
func RouteFromContext(ctx context.Context) string {
	if ctx == nil {
		return unmatchedRoute
	}
	slot, _ := ctx.Value(routeKey{}).(*routeSlot)
	if slot == nil || slot.pattern == "" {
		return unmatchedRoute
	}
	return slot.pattern
}

// routed runs inside the mux, where r.Pattern is set. It fills the route slot and tags
// audit entries with the pattern.
func routed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, _ := r.Context().Value(routeKey{}).(*routeSlot); slot != nil {
			slot.pattern = r.Pattern
		}
		ctx := goGate.WithRequestPath(r.Context(), r.Pattern)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRequestContext records the client IP for audit entries.
func WithRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goGate.WithClientIP(r.Context(), clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithRecover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestIDFromContext(r.Context())),
						zap.String("method", r.Method),
						zap.String("route", RouteFromContext(r.Context())),
						zap.Any("panic", rec),
						zap.Stack("stack"),
					)
					writeError(w, http.StatusInternalServerError, goGate.KindInternalFailure)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func WithAccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			logger.Info("http request",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", RouteFromContext(r.Context())),
				zap.Int("status", sw.status),
				zap.Int("bytes", sw.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", clientIP(r)),
			)
		})
	}
}

// WithThrottle rejects requests with 429 once the client IP exhausts its budget.
// Limiter failures let the request through.
func WithThrottle(limiter rate.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := limiter.Allow(r.Context(), clientIP(r))
			switch {
			case err == nil:
			case errors.Is(err, rate.ErrRateLimited):
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, goGate.KindRateLimited)
				return
			default:
				logger.Warn("rate limiter unavailable", zap.Error(err))
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
