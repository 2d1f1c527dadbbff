package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/mail"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	handler http.Handler
	mail    *mail.Recorder
	audit   *goGate.ChannelSink
	logs    *observer.ObservedLogs
	store   *memory.Store
	now     time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		mail:  &mail.Recorder{},
		audit: goGate.NewChannelSink(1024),
		logs:  logs,
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	cfg := goGate.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Async = false
	cfg.Email.Async = false

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		MaxPasswordBytes: password.DefaultMaxPasswordBytes,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash := func(pw string) string {
		h, err := hasher.Hash(pw)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return h
	}

	f.store = memory.New().WithClock(clock)
	f.store.Put(&goGate.Account{
		ID: "acct-alice", Handle: "alice", Email: "alice@example.com",
		PasswordHash: hash("alice-password-1"), AuthMethod: goGate.AuthLocal,
		Role: "user", Verification: goGate.Verified, Active: true,
	})
	f.store.Put(&goGate.Account{
		ID: "acct-root", Handle: "root", Email: "root@example.com",
		PasswordHash: hash("root-password-1"), AuthMethod: goGate.AuthLocal,
		Role: "admin", Verification: goGate.Verified, Active: true,
	})
	f.store.Put(&goGate.Account{
		ID: "acct-guest", Handle: "guest", Email: "guest@example.com",
		PasswordHash: hash("guest-password-1"), AuthMethod: goGate.AuthLocal,
		Role: "guest", Verification: goGate.Verified, Active: true,
	})

	roles := permission.NewRoleManager()
	mustPut := func(r permission.Role) {
		if err := roles.PutRole(r); err != nil {
			t.Fatalf("put role: %v", err)
		}
	}
	mustPut(permission.Role{Name: "user", Permissions: []permission.Permission{{Action: "read", Resource: "profile"}}})
	mustPut(permission.Role{Name: "guest"})
	mustPut(permission.Role{Name: "admin", Permissions: []permission.Permission{
		{Action: "read", Resource: "profile"},
		{Action: "create", Resource: "account"},
		{Action: "update", Resource: "account"},
	}})

	engine, err := goGate.New().
		WithConfig(cfg).
		WithStore(f.store).
		WithRoleRegistry(roles).
		WithEmailSender(f.mail).
		WithAuditSink(f.audit).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	opts = append([]Option{WithLogger(zap.New(core))}, opts...)
	f.handler = New(engine, opts...).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:4242"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) login(t *testing.T, handle, pw string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": handle, "password": pw})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d %s", handle, rr.Code, rr.Body.String())
	}
	var res struct {
		SessionToken string `json:"sessionToken"`
		Account      struct {
			ID string `json:"id"`
		} `json:"account"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if res.SessionToken == "" {
		t.Fatal("missing session token")
	}
	return res.SessionToken
}

// auditEvents drains what the engine has recorded so far.
func (f *fixture) auditEvents() []goGate.AuditEvent {
	var out []goGate.AuditEvent
	for {
		select {
		case ev := <-f.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func errorKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return errorBody(t, rr)["error"]
}

func TestLoginRoute(t *testing.T) {
	f := newFixture(t)
	f.login(t, "alice", "alice-password-1")

	rr := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "alice", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized || errorKind(t, rr) != goGate.KindInvalidCredentials {
		t.Fatalf("expected 401 invalid_credentials, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "nobody", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized || errorKind(t, rr) != goGate.KindInvalidCredentials {
		t.Fatalf("unknown handle must look like a wrong password, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "alice", "extra": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestLoginLockoutReturns403(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "alice", "password": "wrong-password"})
	}
	rr := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "alice", "password": "alice-password-1"})
	if rr.Code != http.StatusForbidden || errorKind(t, rr) != goGate.KindLocked {
		t.Fatalf("expected 403 locked, got %d %s", rr.Code, rr.Body.String())
	}
	if msg := errorBody(t, rr)["message"]; msg != "account is temporarily locked" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestErrorBodiesCarryFixedMessage(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/auth/me", f.login(t, "guest", "guest-password-1"), nil)
	body := errorBody(t, rr)
	if rr.Code != http.StatusForbidden || body["error"] != goGate.KindUnauthorized {
		t.Fatalf("expected 403 unauthorized, got %d %s", rr.Code, rr.Body.String())
	}
	if body["message"] != goGate.ErrorMessage(goGate.KindUnauthorized) {
		t.Fatalf("unexpected message %q", body["message"])
	}

	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "alice", "password": "wrong-password"})
	body = errorBody(t, rr)
	if body["message"] != goGate.ErrorMessage(goGate.KindInvalidCredentials) {
		t.Fatalf("unexpected message %q", body["message"])
	}

	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "bad handle!", "password": "whatever-1"})
	body = errorBody(t, rr)
	if rr.Code != http.StatusBadRequest || body["message"] != goGate.ErrorMessage(goGate.KindValidationFailed) {
		t.Fatalf("expected fixed validation message, got %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "pattern") {
		t.Fatalf("validation detail leaked: %s", rr.Body.String())
	}
	if len(body) != 2 {
		t.Fatalf("expected only error and message fields, got %v", body)
	}
}

func TestMeRequiresPermission(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/auth/me", f.login(t, "alice", "alice-password-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var me struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &me)
	if me.ID != "acct-alice" || me.Role != "user" {
		t.Fatalf("unexpected me %+v", me)
	}

	rr = f.do(t, http.MethodGet, "/auth/me", f.login(t, "guest", "guest-password-1"), nil)
	if rr.Code != http.StatusForbidden || errorKind(t, rr) != goGate.KindUnauthorized {
		t.Fatalf("expected 403 unauthorized, got %d %s", rr.Code, rr.Body.String())
	}

	if rr = f.do(t, http.MethodGet, "/auth/me", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestPasswordResetRoutes(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	eligible := rr.Body.String()

	rr = f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})
	if rr.Code != http.StatusOK || rr.Body.String() != eligible {
		t.Fatalf("unknown address must get the same response: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "not-an-address"})
	if rr.Code != http.StatusOK || rr.Body.String() != eligible {
		t.Fatalf("malformed address must get the same response: %d %s", rr.Code, rr.Body.String())
	}

	resetMsg, ok := f.mail.Last(goGate.EmailPasswordReset, "alice@example.com")
	if !ok {
		t.Fatal("reset email not sent")
	}
	codeMsg, ok := f.mail.Last(goGate.EmailVerificationCode, "alice@example.com")
	if !ok {
		t.Fatal("verification code email not sent")
	}

	token := resetMsg.Payload["token"]
	rr = f.do(t, http.MethodPost, "/auth/reset-password/"+token, "", map[string]string{"newPassword": "alice-password-2"})
	if rr.Code != http.StatusBadRequest || errorKind(t, rr) != goGate.KindInvalidOrExpiredToken {
		t.Fatalf("unverified token must not reset: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/auth/verification-code/"+token, "", map[string]string{"code": codeMsg.Payload["code"]})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify code: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var verified struct {
		ResetToken string `json:"resetToken"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &verified)
	if verified.ResetToken == "" || verified.ResetToken == token {
		t.Fatalf("expected a rotated token, got %q", verified.ResetToken)
	}

	rr = f.do(t, http.MethodPost, "/auth/reset-password/"+verified.ResetToken, "", map[string]string{"newPassword": "alice-password-2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, "/auth/reset-password/"+verified.ResetToken, "", map[string]string{"newPassword": "alice-password-3"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("replayed token: expected 400, got %d", rr.Code)
	}

	f.login(t, "alice", "alice-password-2")
}

func TestChangePasswordRoute(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "alice", "alice-password-1")

	rr := f.do(t, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": "alice-password-1",
		"newPassword":     "alice-password-1",
	})
	if rr.Code != http.StatusBadRequest || errorKind(t, rr) != goGate.KindPasswordReused {
		t.Fatalf("expected 400 password_reused, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": "wrong-password",
		"newPassword":     "alice-password-9",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": "alice-password-1",
		"newPassword":     "alice-password-9",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if f.mail.Count(goGate.EmailPasswordChanged) != 1 {
		t.Fatal("expected password-changed email")
	}

	if rr = f.do(t, http.MethodPost, "/auth/change-password", "", map[string]string{}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rr.Code)
	}
}

func TestCreateAndActivateAccount(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "root", "root-password-1")

	body := map[string]string{"handle": "bob", "email": "bob@example.com", "password": "bob-password-1"}
	rr := f.do(t, http.MethodPost, "/auth/accounts", f.login(t, "alice", "alice-password-1"), body)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user role must not create accounts, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/auth/accounts", admin, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, "/auth/accounts", admin, body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "bob", "password": "bob-password-1"})
	if rr.Code != http.StatusForbidden || errorKind(t, rr) != goGate.KindNotVerified {
		t.Fatalf("expected 403 not_verified, got %d %s", rr.Code, rr.Body.String())
	}

	msg, ok := f.mail.Last(goGate.EmailActivation, "bob@example.com")
	if !ok {
		t.Fatal("activation email not sent")
	}
	if rr = f.do(t, http.MethodGet, "/auth/activation/"+msg.Payload["token"], "", nil); rr.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if rr = f.do(t, http.MethodGet, "/auth/activation/"+msg.Payload["token"], "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("second activation: expected 400, got %d", rr.Code)
	}

	f.login(t, "bob", "bob-password-1")
}

func TestSetStatusRoute(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "root", "root-password-1")

	rr := f.do(t, http.MethodPut, "/auth/accounts/acct-alice/status", admin, map[string]bool{"active": false})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"handle": "alice", "password": "alice-password-1"})
	if rr.Code != http.StatusForbidden || errorKind(t, rr) != goGate.KindAccountDisabled {
		t.Fatalf("expected 403 account_disabled, got %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPut, "/auth/accounts/acct-missing/status", admin, map[string]bool{"active": true})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/auth/accounts/acct-alice/status", admin, map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without active, got %d", rr.Code)
	}
}

func TestThrottle(t *testing.T) {
	f := newFixture(t, WithLimiter(rate.NewLocal(rate.Config{PerSecond: 0.001, Burst: 2})))

	for i := 0; i < 2; i++ {
		f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "x@example.com"})
	}
	rr := f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "x@example.com"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header, got %d %q", rr.Code, rr.Header().Get("X-Request-Id"))
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		goGate.KindValidationFailed:      http.StatusBadRequest,
		goGate.KindInvalidOrExpiredToken: http.StatusBadRequest,
		goGate.KindInvalidCredentials:    http.StatusUnauthorized,
		goGate.KindSessionExpired:        http.StatusUnauthorized,
		goGate.KindLocked:                http.StatusForbidden,
		goGate.KindUnauthorized:          http.StatusForbidden,
		goGate.KindAccountExists:         http.StatusConflict,
		goGate.KindRateLimited:           http.StatusTooManyRequests,
		goGate.KindInternalFailure:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Fatalf("%s: got %d want %d", kind, got, want)
		}

		rr := httptest.NewRecorder()
		writeError(rr, statusFor(kind), kind)
		body := errorBody(t, rr)
		if body["error"] != kind || body["message"] != goGate.ErrorMessage(kind) {
			t.Fatalf("%s: unexpected body %v", kind, body)
		}
	}
}

func TestTokenRoutesRecordPatternNotPath(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	resetMsg, ok := f.mail.Last(goGate.EmailPasswordReset, "alice@example.com")
	if !ok {
		t.Fatal("reset email not sent")
	}
	codeMsg, ok := f.mail.Last(goGate.EmailVerificationCode, "alice@example.com")
	if !ok {
		t.Fatal("verification code email not sent")
	}
	token := resetMsg.Payload["token"]
	wrong := "000000"
	if codeMsg.Payload["code"] == wrong {
		wrong = "111111"
	}

	rr := f.do(t, http.MethodPost, "/auth/verification-code/"+token, "", map[string]string{"code": wrong})
	if rr.Code == http.StatusOK {
		t.Fatalf("wrong code must not verify: %s", rr.Body.String())
	}

	const pattern = "POST /auth/verification-code/{token}"
	var tagged int
	for _, ev := range f.auditEvents() {
		if strings.Contains(ev.Path, token) || strings.Contains(ev.Message, token) {
			t.Fatalf("audit event %q leaks the token: %+v", ev.Action, ev)
		}
		if ev.Path == pattern {
			tagged++
		}
	}
	if tagged == 0 {
		t.Fatalf("expected an audit event tagged with %q", pattern)
	}

	var routeLogged bool
	for _, entry := range f.logs.FilterMessage("http request").All() {
		for key, value := range entry.ContextMap() {
			if s, ok := value.(string); ok && strings.Contains(s, token) {
				t.Fatalf("access log field %q leaks the token: %q", key, s)
			}
		}
		if entry.ContextMap()["route"] == pattern {
			routeLogged = true
		}
	}
	if !routeLogged {
		t.Fatalf("expected an access log entry with route %q", pattern)
	}
}

func TestUnmatchedRouteLogged(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodGet, "/auth/activation-typo/secret-value", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	entries := f.logs.FilterMessage("http request").All()
	if len(entries) != 1 || entries[0].ContextMap()["route"] != unmatchedRoute {
		t.Fatalf("expected one unmatched access log entry, got %+v", entries)
	}
}
