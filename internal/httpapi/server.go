package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

// Server serves the auth routes.
type Server struct {
	engine  *goGate.Engine
	limiter rate.Limiter
	logger  *zap.Logger
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter throttles the unauthenticated routes per client IP.
func WithLimiter(l rate.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the route table.
func New(engine *goGate.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: zap.NewNop(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handle mounts an extra handler, such as a metrics endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, routed(h))
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	return Chain(s.mux,
		WithRequestID,
		WithRoute,
		WithRecover(s.logger),
		WithAccessLog(s.logger),
		WithRequestContext,
	)
}

func (s *Server) routes() {
	throttle := WithThrottle(s.limiter, s.logger)
	open := func(h http.HandlerFunc) http.Handler { return throttle(h) }
	guarded := func(action, resource string, h http.HandlerFunc) http.Handler {
		return middleware.Protect(s.engine, action, resource)(h)
	}

	s.Handle("POST /auth/login", open(s.handleLogin))
	s.Handle("POST /auth/forgot-password", open(s.handleForgotPassword))
	s.Handle("POST /auth/verification-code/{token}", open(s.handleVerifyCode))
	s.Handle("POST /auth/reset-password/{token}", open(s.handleResetPassword))
	s.Handle("GET /auth/activation/{token}", open(s.handleActivate))

	s.Handle("POST /auth/change-password", middleware.Authenticate(s.engine)(http.HandlerFunc(s.handleChangePassword)))
	s.Handle("GET /auth/me", guarded("read", "profile", s.handleMe))
	s.Handle("POST /auth/accounts", guarded("create", "account", s.handleCreateAccount))
	s.Handle("PUT /auth/accounts/{id}/status", guarded("update", "account", s.handleSetStatus))

	s.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
}

/*
====================================
LOGIN
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req goGate.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Login(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

/*
====================================
PASSWORD LIFECYCLE
====================================
*/

const forgotPasswordMessage = "If the address belongs to an eligible account, a reset email has been sent."

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req goGate.ForgotPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	// Every outcome, including a malformed address, gets the same response.
	switch err := s.engine.ForgotPassword(r.Context(), req); {
	case err == nil:
	case errors.Is(err, goGate.ErrValidationFailed):
		s.logger.Debug("forgot password rejected", zap.Error(err))
	default:
		s.logger.Warn("forgot password failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	token, err := s.engine.VerifyCode(r.Context(), goGate.VerifyCodeRequest{
		Token: r.PathValue("token"),
		Code:  body.Code,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"resetToken": token})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewPassword string `json:"newPassword"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	err := s.engine.ResetPassword(r.Context(), goGate.ResetPasswordRequest{
		Token:       r.PathValue("token"),
		NewPassword: body.NewPassword,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := goGate.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, goGate.KindUnauthenticated)
		return
	}
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	err := s.engine.ChangePassword(r.Context(), goGate.ChangePasswordRequest{
		AccountID:       claims.Subject,
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

/*
====================================
ACCOUNTS
====================================
*/

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Activate(r.Context(), r.PathValue("token")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account activated"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := goGate.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, struct {
		ID        string    `json:"id"`
		Role      string    `json:"role"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{claims.Subject, claims.Role, claims.ExpiresAt})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req goGate.CreateAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.CreateAccount(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Account)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Active == nil {
		writeError(w, http.StatusBadRequest, goGate.KindValidationFailed)
		return
	}
	if err := s.engine.SetAccountActive(r.Context(), r.PathValue("id"), *body.Active); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, goGate.KindValidationFailed)
		return false
	}
	return true
}
