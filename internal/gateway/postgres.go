package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/collections/set"

	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/repository"
)

// Postgres is the system of record backed by the iam_* tables. Each write
// runs in one transaction; each call is bounded by the configured timeout.
type Postgres struct {
	repos   repository.Repositories
	tx      *repository.TxRunner
	hasher  *auth.PasswordHasher
	timeout time.Duration
}

// NewPostgres builds a gateway over pool.
func NewPostgres(pool *pgxpool.Pool, hasher *auth.PasswordHasher, timeout time.Duration) *Postgres {
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}
	return &Postgres{
		repos:   repository.New(pool),
		tx:      repository.NewTxRunner(pool),
		hasher:  hasher,
		timeout: timeout,
	}
}

func (p *Postgres) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Postgres) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.repos.Users.List(ctx)
}

func (p *Postgres) ListRoles(ctx context.Context) ([]domain.Role, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.repos.Roles.List(ctx)
}

func (p *Postgres) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.repos.Permissions.List(ctx)
}

func (p *Postgres) CreateUser(ctx context.Context, in domain.CreateUserInput) (domain.User, error) {
	hash, err := p.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, Statusf(http.StatusBadRequest, "%v", err)
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out domain.User
	err = p.tx.Run(ctx, func(repos repository.Repositories) error {
		roleIDs, err := resolveRoleNames(ctx, repos.Roles, in.Roles)
		if err != nil {
			return err
		}
		user := &domain.User{
			Username:  in.Username,
			Email:     in.Email,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Phone:     in.Phone,
			Status:    domain.UserStatusActive,
		}
		if err := repos.Users.Create(ctx, user, hash); err != nil {
			return err
		}
		if err := repos.Users.ReplaceRoles(ctx, user.ID, roleIDs); err != nil {
			return err
		}
		created, err := repos.Users.GetByID(ctx, user.ID)
		if err != nil {
			return err
		}
		out = *created
		return nil
	})
	return out, err
}

func (p *Postgres) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out domain.User
	err := p.tx.Run(ctx, func(repos repository.Repositories) error {
		current, err := repos.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next := patch.Apply(*current)
		if err := repos.Users.Update(ctx, &next); err != nil {
			return err
		}
		if patch.SetRoles {
			roleIDs, err := resolveRoleNames(ctx, repos.Roles, patch.Roles)
			if err != nil {
				return err
			}
			if err := repos.Users.ReplaceRoles(ctx, id, roleIDs); err != nil {
				return err
			}
		}
		updated, err := repos.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		out = *updated
		return nil
	})
	return out, err
}

func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.repos.Users.Delete(ctx, id)
}

func (p *Postgres) AssignRolesToUser(ctx context.Context, userID string, roleIDs []string) (domain.User, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out domain.User
	err := p.tx.Run(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		if err := repos.Users.ReplaceRoles(ctx, userID, set.NewStrings(roleIDs...).SortedValues()); err != nil {
			return err
		}
		updated, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		out = *updated
		return nil
	})
	return out, err
}

func (p *Postgres) CreateRole(ctx context.Context, in domain.CreateRoleInput) (domain.Role, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out domain.Role
	err := p.tx.Run(ctx, func(repos repository.Repositories) error {
		role := &domain.Role{Name: in.Name, Description: in.Description}
		if err := repos.Roles.Create(ctx, role); err != nil {
			return err
		}
		if err := repos.Roles.ReplacePermissions(ctx, role.ID, set.NewStrings(in.Permissions...).SortedValues()); err != nil {
			return err
		}
		created, err := repos.Roles.GetByID(ctx, role.ID)
		if err != nil {
			return err
		}
		out = *created
		return nil
	})
	return out, err
}

func (p *Postgres) UpdateRole(ctx context.Context, id string, patch domain.RolePatch) (domain.Role, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out domain.Role
	err := p.tx.Run(ctx, func(repos repository.Repositories) error {
		role, err := repos.Roles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return Statusf(http.StatusForbidden, "system role %s is immutable", role.Name)
		}
		if patch.Name != nil {
			role.Name = *patch.Name
		}
		if patch.Description != nil {
			desc := *patch.Description
			role.Description = &desc
		}
		if err := repos.Roles.Update(ctx, role); err != nil {
			return err
		}
		if patch.SetPermissions {
			if err := repos.Roles.ReplacePermissions(ctx, id, set.NewStrings(patch.Permissions...).SortedValues()); err != nil {
				return err
			}
		}
		updated, err := repos.Roles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		out = *updated
		return nil
	})
	return out, err
}

func (p *Postgres) DeleteRole(ctx context.Context, id string, cascade bool) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	return p.tx.Run(ctx, func(repos repository.Repositories) error {
		role, err := repos.Roles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return Statusf(http.StatusForbidden, "system role %s cannot be deleted", role.Name)
		}
		if role.UserCount > 0 && !cascade {
			return Statusf(http.StatusConflict, "role %s still has %d members", role.Name, role.UserCount)
		}
		return repos.Roles.Delete(ctx, id)
	})
}

func (p *Postgres) AssignRoleToUsers(ctx context.Context, roleID string, userIDs []string) (domain.Role, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var out domain.Role
	err := p.tx.Run(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Roles.GetByID(ctx, roleID); err != nil {
			return err
		}
		if err := repos.Roles.ReplaceMembers(ctx, roleID, set.NewStrings(userIDs...).SortedValues()); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return Statusf(http.StatusNotFound, "unknown user in %v", userIDs)
			}
			return err
		}
		updated, err := repos.Roles.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		out = *updated
		return nil
	})
	return out, err
}

func resolveRoleNames(ctx context.Context, roles repository.RoleRepository, names []string) ([]string, error) {
	wanted := set.NewStrings(names...)
	resolved, err := roles.IDsByName(ctx, wanted.SortedValues())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resolved))
	for _, name := range wanted.SortedValues() {
		id, ok := resolved[name]
		if !ok {
			return nil, Statusf(http.StatusBadRequest, "unknown role %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
