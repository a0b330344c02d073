package repository

import (
	"context"

	"github.com/spec-kit/iam-service/internal/domain"
)

// PermissionRepository reads the permission catalog.
type PermissionRepository interface {
	List(ctx context.Context) ([]domain.Permission, error)
}

type permissionRepository struct {
	db DBTX
}

// NewPermissionRepository returns a Postgres-backed implementation.
func NewPermissionRepository(db DBTX) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	const query = `
        SELECT id, name, resource, action, description
        FROM iam_permissions
        ORDER BY resource, action`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
