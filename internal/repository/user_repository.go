package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/iam-service/internal/domain"
)

// UserRepository defines persistence access for administrated accounts.
type UserRepository interface {
	List(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User, passwordHash string) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `
        u.id, u.username, u.email, u.first_name, u.last_name, u.phone, u.status,
        u.created_at, u.updated_at, u.last_login,
        COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')`

const userFrom = `
        FROM iam_users u
        LEFT JOIN iam_user_roles ur ON ur.user_id = u.id
        LEFT JOIN iam_roles r ON r.id = ur.role_id`

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	query := `SELECT` + userColumns + userFrom + `
        GROUP BY u.id
        ORDER BY u.created_at DESC, u.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT` + userColumns + userFrom + `
        WHERE u.id = $1
        GROUP BY u.id`

	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *userRepository) Create(ctx context.Context, user *domain.User, passwordHash string) error {
	const query = `
        INSERT INTO iam_users (username, email, first_name, last_name, phone, status, password_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.Status,
		passwordHash,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE iam_users
        SET username=$1, email=$2, first_name=$3, last_name=$4, phone=$5, status=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`

	return r.db.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.Status,
		user.ID,
	).Scan(&user.UpdatedAt)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM iam_users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ReplaceRoles makes roleIDs the exact role set of userID.
func (r *userRepository) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM iam_user_roles WHERE user_id=$1`, userID); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	const query = `
        INSERT INTO iam_user_roles (user_id, role_id)
        SELECT $1, unnest($2::uuid[])
        ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, query, userID, roleIDs)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
		&user.Roles,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
