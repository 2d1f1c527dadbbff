package permission

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// RoleManager is a mutable in-memory [Registry].
//
// Every mutation calls the registered change hooks with the role name so dependent caches
// (see [CachedRegistry.Invalidate]) can drop stale entries.
type RoleManager struct {
	mu    sync.RWMutex
	roles map[string]*Role
	hooks []func(roleName string)
}

// NewRoleManager returns an empty role manager.
func NewRoleManager() *RoleManager {
	return &RoleManager{
		roles: make(map[string]*Role),
	}
}

// OnChange registers fn to run after any mutation of the named role.
func (rm *RoleManager) OnChange(fn func(roleName string)) {
	if fn == nil {
		return
	}
	rm.mu.Lock()
	rm.hooks = append(rm.hooks, fn)
	rm.mu.Unlock()
}

// PutRole creates or replaces a role.
func (rm *RoleManager) PutRole(role Role) error {
	if role.Name == "" {
		return errors.New("role name empty")
	}
	for _, p := range role.Permissions {
		if !p.Valid() {
			return ErrInvalidPermission
		}
	}

	rm.mu.Lock()
	rm.roles[role.Name] = role.Clone()
	hooks := rm.hooks
	rm.mu.Unlock()

	notify(hooks, role.Name)
	return nil
}

// DeleteRole removes a role. Deleting an unknown role is not an error.
func (rm *RoleManager) DeleteRole(name string) {
	rm.mu.Lock()
	delete(rm.roles, name)
	hooks := rm.hooks
	rm.mu.Unlock()

	notify(hooks, name)
}

// Grant adds p to the named role if it is not already present.
func (rm *RoleManager) Grant(name string, p Permission) error {
	if !p.Valid() {
		return ErrInvalidPermission
	}

	rm.mu.Lock()
	role, ok := rm.roles[name]
	if !ok {
		rm.mu.Unlock()
		return ErrRoleNotFound
	}
	if !role.Allows(p.Action, p.Resource) {
		role.Permissions = append(role.Permissions, p)
	}
	hooks := rm.hooks
	rm.mu.Unlock()

	notify(hooks, name)
	return nil
}

// Revoke removes p from the named role.
func (rm *RoleManager) Revoke(name string, p Permission) error {
	rm.mu.Lock()
	role, ok := rm.roles[name]
	if !ok {
		rm.mu.Unlock()
		return ErrRoleNotFound
	}
	kept := role.Permissions[:0]
	for _, existing := range role.Permissions {
		if existing != p {
			kept = append(kept, existing)
		}
	}
	role.Permissions = kept
	hooks := rm.hooks
	rm.mu.Unlock()

	notify(hooks, name)
	return nil
}

// FindRoleByName implements [Registry].
func (rm *RoleManager) FindRoleByName(_ context.Context, name string) (*Role, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	role, ok := rm.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role.Clone(), nil
}

// Names returns the registered role names in sorted order.
func (rm *RoleManager) Names() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	names := make([]string, 0, len(rm.roles))
	for name := range rm.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func notify(hooks []func(string), name string) {
	for _, fn := range hooks {
		fn(name)
	}
}
