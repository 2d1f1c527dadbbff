package permission

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrRoleNotFound is returned by registries when no role has the requested name.
	ErrRoleNotFound = errors.New("role not found")
	// ErrInvalidPermission is returned when a permission has an empty action or resource.
	ErrInvalidPermission = errors.New("invalid permission")
)

// Permission is a single (action, resource) grant.
type Permission struct {
	Action   string `json:"action" db:"action"`
	Resource string `json:"resource" db:"resource"`
}

// String renders the permission as "action:resource".
func (p Permission) String() string {
	return p.Action + ":" + p.Resource
}

// Valid reports whether both halves of the permission are set.
func (p Permission) Valid() bool {
	return strings.TrimSpace(p.Action) != "" && strings.TrimSpace(p.Resource) != ""
}

// ParsePermission parses the "action:resource" form produced by [Permission.String].
func ParsePermission(s string) (Permission, error) {
	action, resource, ok := strings.Cut(s, ":")
	p := Permission{Action: action, Resource: resource}
	if !ok || !p.Valid() {
		return Permission{}, ErrInvalidPermission
	}
	return p, nil
}

// Role is a named bundle of permissions.
type Role struct {
	Name        string
	Permissions []Permission
}

// Allows reports whether the role grants action on resource. Matching is exact on both
// strings.
func (r *Role) Allows(action, resource string) bool {
	if r == nil || action == "" || resource == "" {
		return false
	}
	for _, p := range r.Permissions {
		if p.Action == action && p.Resource == resource {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	perms := make([]Permission, len(r.Permissions))
	copy(perms, r.Permissions)
	return &Role{Name: r.Name, Permissions: perms}
}

// Registry resolves a role name to its current permission set.
//
// Implementations return [ErrRoleNotFound] for unknown names and must be safe for
// concurrent use.
type Registry interface {
	FindRoleByName(ctx context.Context, name string) (*Role, error)
}
