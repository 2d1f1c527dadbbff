package goGate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/mail"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/store/memory"
)

var testBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the engine and the store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, accountID string, event goGate.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, accountID+":"+string(event))
	return nil
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// countingStore counts handle lookups on top of the memory store.
type countingStore struct {
	*memory.Store
	handleLookups atomic.Int64
}

func (s *countingStore) GetByHandle(ctx context.Context, handle string) (*goGate.Account, error) {
	s.handleLookups.Add(1)
	return s.Store.GetByHandle(ctx, handle)
}

type harness struct {
	engine   *goGate.Engine
	store    *memory.Store
	lookups  *countingStore
	roles    *permission.RoleManager
	mail     *mail.Recorder
	audit    *goGate.ChannelSink
	notifier *recordingNotifier
	clock    *testClock
	hasher   *password.Argon2
}

func testConfig() goGate.Config {
	cfg := goGate.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Async = false
	cfg.Email.Async = false
	cfg.Roles.CacheTTL = 0
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*goGate.Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		roles:    permission.NewRoleManager(),
		mail:     &mail.Recorder{},
		audit:    goGate.NewChannelSink(1024),
		notifier: &recordingNotifier{},
		clock:    &testClock{now: testBase},
	}
	h.store = memory.New().WithClock(h.clock.Now)
	h.lookups = &countingStore{Store: h.store}

	hasher, err := password.NewArgon2(password.Config{
		Memory: cfg.Password.Memory, Time: cfg.Password.Time, Parallelism: cfg.Password.Parallelism,
		SaltLength: cfg.Password.SaltLength, KeyLength: cfg.Password.KeyLength,
		MaxPasswordBytes: password.DefaultMaxPasswordBytes,
	})
	if err != nil {
		t.Fatalf("argon2 init failed: %v", err)
	}
	h.hasher = hasher

	if err := h.roles.PutRole(permission.Role{
		Name:        "user",
		Permissions: []permission.Permission{{Action: "read", Resource: "profile"}},
	}); err != nil {
		t.Fatalf("put role failed: %v", err)
	}

	engine, err := goGate.New().
		WithConfig(cfg).
		WithStore(h.lookups).
		WithRoleRegistry(h.roles).
		WithEmailSender(h.mail).
		WithNotifier(h.notifier).
		WithAuditSink(h.audit).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) hash(t *testing.T, pw string) string {
	t.Helper()
	out, err := h.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return out
}

// seed stores a verified, active local account with password pw.
func (h *harness) seed(t *testing.T, id, handle, pw string, mutate ...func(*goGate.Account)) *goGate.Account {
	t.Helper()
	acc := &goGate.Account{
		ID:           id,
		Handle:       handle,
		Email:        handle + "@example.com",
		PasswordHash: h.hash(t, pw),
		AuthMethod:   goGate.AuthLocal,
		Role:         "user",
		Verification: goGate.Verified,
		Active:       true,
		CreatedAt:    testBase,
	}
	for _, fn := range mutate {
		fn(acc)
	}
	h.store.Put(acc)
	return acc
}

func (h *harness) account(t *testing.T, id string) *goGate.Account {
	t.Helper()
	acc, err := h.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s failed: %v", id, err)
	}
	return acc
}

// auditActions drains the sink and returns the recorded actions in order.
func (h *harness) auditActions() []goGate.AuditEvent {
	var out []goGate.AuditEvent
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasAction(events []goGate.AuditEvent, action string) bool {
	for _, ev := range events {
		if ev.Action == action {
			return true
		}
	}
	return false
}

func (h *harness) login(handle, pw string) (*goGate.LoginResult, error) {
	return h.engine.Login(context.Background(), goGate.LoginRequest{Handle: handle, Password: pw})
}
