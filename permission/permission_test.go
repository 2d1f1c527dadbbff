package permission

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRoleAllowsExactMatchOnly(t *testing.T) {
	role := &Role{
		Name: "editor",
		Permissions: []Permission{
			{Action: "update", Resource: "product"},
			{Action: "read", Resource: "category"},
		},
	}

	cases := []struct {
		action, resource string
		want             bool
	}{
		{"update", "product", true},
		{"read", "category", true},
		{"update", "products", false},
		{"Update", "product", false},
		{"update", "category", false},
		{"read", "product", false},
		{"*", "product", false},
		{"update", "*", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := role.Allows(tc.action, tc.resource); got != tc.want {
			t.Fatalf("Allows(%q, %q) = %v, want %v", tc.action, tc.resource, got, tc.want)
		}
	}

	var nilRole *Role
	if nilRole.Allows("update", "product") {
		t.Fatal("nil role must deny")
	}
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("delete:user")
	if err != nil {
		t.Fatalf("ParsePermission failed: %v", err)
	}
	if p.Action != "delete" || p.Resource != "user" {
		t.Fatalf("unexpected permission %+v", p)
	}
	if p.String() != "delete:user" {
		t.Fatalf("unexpected String() %q", p.String())
	}

	for _, bad := range []string{"", "delete", ":user", "delete:", " : "} {
		if _, err := ParsePermission(bad); !errors.Is(err, ErrInvalidPermission) {
			t.Fatalf("expected ErrInvalidPermission for %q, got %v", bad, err)
		}
	}
}

func TestRoleManagerMutationsAndHooks(t *testing.T) {
	rm := NewRoleManager()
	var changed []string
	rm.OnChange(func(name string) { changed = append(changed, name) })

	if err := rm.PutRole(Role{Name: "admin", Permissions: []Permission{{Action: "read", Resource: "user"}}}); err != nil {
		t.Fatalf("PutRole failed: %v", err)
	}
	if err := rm.Grant("admin", Permission{Action: "delete", Resource: "user"}); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	role, err := rm.FindRoleByName(context.Background(), "admin")
	if err != nil {
		t.Fatalf("FindRoleByName failed: %v", err)
	}
	if !role.Allows("delete", "user") {
		t.Fatal("expected granted permission")
	}

	role.Permissions = nil
	again, _ := rm.FindRoleByName(context.Background(), "admin")
	if len(again.Permissions) != 2 {
		t.Fatal("returned role must be a copy")
	}

	if err := rm.Revoke("admin", Permission{Action: "delete", Resource: "user"}); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	role, _ = rm.FindRoleByName(context.Background(), "admin")
	if role.Allows("delete", "user") {
		t.Fatal("expected revoked permission to be gone")
	}

	rm.DeleteRole("admin")
	if _, err := rm.FindRoleByName(context.Background(), "admin"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := rm.Grant("admin", Permission{Action: "read", Resource: "user"}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound from Grant, got %v", err)
	}

	if len(changed) != 4 {
		t.Fatalf("expected 4 change notifications, got %d (%v)", len(changed), changed)
	}
}

func TestRoleManagerRejectsInvalidRole(t *testing.T) {
	rm := NewRoleManager()
	if err := rm.PutRole(Role{}); err == nil {
		t.Fatal("expected error for empty role name")
	}
	if err := rm.PutRole(Role{Name: "x", Permissions: []Permission{{Action: "read"}}}); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
}

type countingRegistry struct {
	inner *RoleManager
	calls int
}

func (c *countingRegistry) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	c.calls++
	return c.inner.FindRoleByName(ctx, name)
}

func TestCachedRegistryTTLAndInvalidate(t *testing.T) {
	rm := NewRoleManager()
	_ = rm.PutRole(Role{Name: "viewer", Permissions: []Permission{{Action: "read", Resource: "product"}}})
	backing := &countingRegistry{inner: rm}

	now := time.Unix(1_700_000_000, 0)
	cache := NewCachedRegistry(backing, 10*time.Second).WithClock(func() time.Time { return now })
	rm.OnChange(cache.Invalidate)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cache.FindRoleByName(ctx, "viewer"); err != nil {
			t.Fatalf("FindRoleByName failed: %v", err)
		}
	}
	if backing.calls != 1 {
		t.Fatalf("expected one backing lookup, got %d", backing.calls)
	}

	now = now.Add(11 * time.Second)
	if _, err := cache.FindRoleByName(ctx, "viewer"); err != nil {
		t.Fatalf("FindRoleByName failed: %v", err)
	}
	if backing.calls != 2 {
		t.Fatalf("expected refresh after TTL, got %d lookups", backing.calls)
	}

	if err := rm.Revoke("viewer", Permission{Action: "read", Resource: "product"}); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	role, err := cache.FindRoleByName(ctx, "viewer")
	if err != nil {
		t.Fatalf("FindRoleByName failed: %v", err)
	}
	if role.Allows("read", "product") {
		t.Fatal("expected revocation to bypass the cache")
	}

	if _, err := cache.FindRoleByName(ctx, "ghost"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
