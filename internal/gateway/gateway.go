package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/iam-service/internal/domain"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

// Op names one gateway round trip.
type Op string

const (
	OpListUsers         Op = "list_users"
	OpListRoles         Op = "list_roles"
	OpListPermissions   Op = "list_permissions"
	OpCreateUser        Op = "create_user"
	OpUpdateUser        Op = "update_user"
	OpDeleteUser        Op = "delete_user"
	OpAssignRolesToUser Op = "assign_roles_to_user"
	OpCreateRole        Op = "create_role"
	OpUpdateRole        Op = "update_role"
	OpDeleteRole        Op = "delete_role"
	OpAssignRoleToUsers Op = "assign_role_to_users"
)

// Gateway is the system of record behind the entity store. Implementations
// own timeouts and retries; every call either returns the committed entity
// or an error classified by Classify.
type Gateway interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)

	CreateUser(ctx context.Context, in domain.CreateUserInput) (domain.User, error)
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	AssignRolesToUser(ctx context.Context, userID string, roleIDs []string) (domain.User, error)

	CreateRole(ctx context.Context, in domain.CreateRoleInput) (domain.Role, error)
	UpdateRole(ctx context.Context, id string, patch domain.RolePatch) (domain.Role, error)
	DeleteRole(ctx context.Context, id string, cascade bool) error
	AssignRoleToUsers(ctx context.Context, roleID string, userIDs []string) (domain.Role, error)
}

// StatusError is a failure carrying an HTTP-style status class.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.Status, e.Message)
}

// Statusf builds a StatusError.
func Statusf(status int, format string, args ...any) error {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Classify maps any gateway failure onto the error taxonomy. Failures without
// a definite cause are Transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return apperrors.FromStatus(statusErr.Status, statusErr.Message)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.FromStatus(http.StatusNotFound, "entity not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperrors.NewConflict("unique constraint violated", map[string]any{"constraint": pgErr.ConstraintName})
		case "23503", "23514", "22P02":
			return apperrors.NewValidationError(pgErr.Message, map[string]any{"constraint": pgErr.ConstraintName})
		}
	}
	return apperrors.NewTransient(err)
}
