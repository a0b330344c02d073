package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/iam-service/internal/domain"
)

// RoleRepository defines persistence access for roles and their memberships.
type RoleRepository interface {
	List(ctx context.Context) ([]domain.Role, error)
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	IDsByName(ctx context.Context, names []string) (map[string]string, error)
	Create(ctx context.Context, role *domain.Role) error
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, id string) error
	ReplacePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	ReplaceMembers(ctx context.Context, roleID string, userIDs []string) error
}

type roleRepository struct {
	db DBTX
}

// NewRoleRepository returns a Postgres-backed implementation.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepository{db: db}
}

const roleSelect = `
        SELECT r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at,
               (SELECT COUNT(*) FROM iam_user_roles ur WHERE ur.role_id = r.id)
        FROM iam_roles r`

func (r *roleRepository) List(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.Query(ctx, roleSelect+` ORDER BY r.created_at DESC, r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	index := make(map[string]int)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		index[role.ID] = len(roles)
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grants, err := r.permissionsByRole(ctx, nil)
	if err != nil {
		return nil, err
	}
	for roleID, perms := range grants {
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = perms
		}
	}
	return roles, nil
}

func (r *roleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, roleSelect+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, err
	}
	grants, err := r.permissionsByRole(ctx, &id)
	if err != nil {
		return nil, err
	}
	role.Permissions = grants[id]
	return role, nil
}

// IDsByName resolves role names; names with no role are absent from the result.
func (r *roleRepository) IDsByName(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, name FROM iam_roles WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	const query = `
        INSERT INTO iam_roles (name, description, is_system)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query, role.Name, role.Description, role.IsSystem).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
}

func (r *roleRepository) Update(ctx context.Context, role *domain.Role) error {
	const query = `
        UPDATE iam_roles SET name=$1, description=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`

	return r.db.QueryRow(ctx, query, role.Name, role.Description, role.ID).Scan(&role.UpdatedAt)
}

func (r *roleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM iam_roles WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM iam_role_permissions WHERE role_id=$1`, roleID); err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	const query = `
        INSERT INTO iam_role_permissions (role_id, permission_id)
        SELECT $1, unnest($2::text[])
        ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, query, roleID, permissionIDs)
	return err
}

// ReplaceMembers makes userIDs the exact member set of roleID.
func (r *roleRepository) ReplaceMembers(ctx context.Context, roleID string, userIDs []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM iam_user_roles WHERE role_id=$1`, roleID); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	const query = `
        INSERT INTO iam_user_roles (user_id, role_id)
        SELECT unnest($2::uuid[]), $1
        ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, query, roleID, userIDs)
	return err
}

func (r *roleRepository) permissionsByRole(ctx context.Context, roleID *string) (map[string][]domain.Permission, error) {
	const query = `
        SELECT rp.role_id, p.id, p.name, p.resource, p.action, p.description
        FROM iam_role_permissions rp
        JOIN iam_permissions p ON p.id = rp.permission_id
        WHERE $1::uuid IS NULL OR rp.role_id = $1
        ORDER BY p.id`

	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Permission)
	for rows.Next() {
		var owner string
		var p domain.Permission
		if err := rows.Scan(&owner, &p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], p)
	}
	return out, rows.Err()
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var role domain.Role
	if err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
		&role.UserCount,
	); err != nil {
		return nil, err
	}
	return &role, nil
}
