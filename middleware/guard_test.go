package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/store/memory"
)

type fixture struct {
	engine *goGate.Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	cfg := goGate.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.TTL = time.Hour
	cfg.Audit.Async = false
	cfg.Email.Async = false

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		MaxPasswordBytes: password.DefaultMaxPasswordBytes,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	store := memory.New().WithClock(clock)
	store.Put(&goGate.Account{
		ID: "acct-alice", Handle: "alice", Email: "alice@example.com",
		PasswordHash: hash, AuthMethod: goGate.AuthLocal, Role: "user",
		Verification: goGate.Verified, Active: true,
	})

	roles := permission.NewRoleManager()
	if err := roles.PutRole(permission.Role{
		Name:        "user",
		Permissions: []permission.Permission{{Action: "read", Resource: "profile"}},
	}); err != nil {
		t.Fatalf("put role: %v", err)
	}

	engine, err := goGate.New().
		WithConfig(cfg).
		WithStore(store).
		WithRoleRegistry(roles).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	res, err := f.engine.Login(context.Background(), goGate.LoginRequest{Handle: "alice", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return res.SessionToken
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := goGate.ClaimsFromContext(r.Context())
		if !ok || claims.Subject != "acct-alice" {
			t.Errorf("claims missing from context: %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	h := Authenticate(f.engine)(okHandler(t))

	if rr := serve(h, "Bearer "+token); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := serve(h, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rr.Code)
	}
	if rr := serve(h, "Basic abc"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer, got %d", rr.Code)
	}

	rr := serve(h, "Bearer "+token+"x")
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), goGate.KindUnauthenticated) {
		t.Fatalf("expected 401 unauthenticated, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuthenticateExpired(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	f.now = f.now.Add(2 * time.Hour)

	rr := serve(Authenticate(f.engine)(okHandler(t)), "Bearer "+token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), goGate.KindSessionExpired) {
		t.Fatalf("expected session_expired body, got %s", rr.Body.String())
	}
}

func TestRequirePermission(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	allowed := Protect(f.engine, "read", "profile")(okHandler(t))
	if rr := serve(allowed, "Bearer "+token); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	for _, p := range [][2]string{{"write", "profile"}, {"read", "profiles"}, {"READ", "profile"}} {
		denied := Protect(f.engine, p[0], p[1])(okHandler(t))
		rr := serve(denied, "Bearer "+token)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%v: expected 403, got %d", p, rr.Code)
		}
		if strings.TrimSpace(rr.Body.String()) != `{"error":"unauthorized","message":"not permitted"}` {
			t.Fatalf("unexpected body %q", rr.Body.String())
		}
	}
}

func TestRequirePermissionWithoutClaims(t *testing.T) {
	f := newFixture(t)
	h := RequirePermission(f.engine, "read", "profile")(okHandler(t))
	if rr := serve(h, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Bearer  abc": "abc",
	}
	for in, want := range cases {
		got, ok := bearerToken(in)
		if !ok || got != want {
			t.Fatalf("%q: got %q ok=%v", in, got, ok)
		}
	}
	for _, in := range []string{"", "Bearer", "Bearer ", "Token abc"} {
		if _, ok := bearerToken(in); ok {
			t.Fatalf("%q: expected rejection", in)
		}
	}
}
