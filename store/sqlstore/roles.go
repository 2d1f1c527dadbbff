package sqlstore

import (
	"context"

	"github.com/MrEthical07/goGate/permission"
	"github.com/jmoiron/sqlx"
)

// RoleRegistry reads roles from the roles and role_permissions tables.
type RoleRegistry struct {
	db *sqlx.DB
}

var _ permission.Registry = (*RoleRegistry)(nil)

func NewRoleRegistry(db *sqlx.DB) *RoleRegistry {
	return &RoleRegistry{db: db}
}

// FindRoleByName returns permission.ErrRoleNotFound when no roles row exists.
func (r *RoleRegistry) FindRoleByName(ctx context.Context, name string) (*permission.Role, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, name); err != nil {
		return nil, mapErr(err)
	}
	if !exists {
		return nil, permission.ErrRoleNotFound
	}

	var perms []permission.Permission
	const q = `SELECT action, resource FROM role_permissions WHERE role = $1 ORDER BY action, resource`
	if err := r.db.SelectContext(ctx, &perms, q, name); err != nil {
		return nil, mapErr(err)
	}
	return &permission.Role{Name: name, Permissions: perms}, nil
}

// PutRole creates the role if needed and replaces its permissions.
func (r *RoleRegistry) PutRole(ctx context.Context, role permission.Role) error {
	for _, p := range role.Permissions {
		if !p.Valid() {
			return permission.ErrInvalidPermission
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role.Name); err != nil {
		return mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role = $1`, role.Name); err != nil {
		return mapErr(err)
	}
	for _, p := range role.Permissions {
		const q = `INSERT INTO role_permissions (role, action, resource) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, q, role.Name, p.Action, p.Resource); err != nil {
			return mapErr(err)
		}
	}
	return mapErr(tx.Commit())
}
