package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/juju/collections/set"

	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/events"
	"github.com/spec-kit/iam-service/internal/relation"
	"github.com/spec-kit/iam-service/internal/store"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

// CreateUser creates an account holding the named roles and inserts it at
// the head of the users collection.
func (s *IAMService) CreateUser(ctx context.Context, in domain.CreateUserInput) (domain.User, error) {
	var created domain.User

	_, err := s.run(ctx, plan{
		kind: KindCreateUser,
		locks: func() []string {
			return append(s.roleKeysFor(in.Roles), usernameKey(in.Username), emailKey(in.Email))
		},
		check: func() error {
			if err := validateNewUser(in); err != nil {
				return err
			}
			return s.requireRoleNames(in.Roles)
		},
		call: func(ctx context.Context) (err error) {
			created, err = s.gateway.CreateUser(ctx, in)
			return err
		},
		commit: func(tx *store.Tx) (err error) {
			if err = tx.PutUser(created); err != nil {
				return err
			}
			_, _, err = s.relations.ReplaceUserRoles(tx, created.ID, created.Roles)
			return err
		},
		events: func() []events.Event {
			return []events.Event{userEvent(events.EventUserCreated, created)}
		},
	})
	if err != nil {
		return domain.User{}, err
	}
	return s.GetUser(created.ID)
}

// UpdateUser applies a partial update. When the patch carries roles, the
// user's role set is replaced and every affected role count follows.
func (s *IAMService) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error) {
	var updated domain.User
	var diff relation.Diff

	locks := func() []string {
		keys := append(s.heldRoleKeys(id), userKey(id))
		if patch.Username != nil {
			keys = append(keys, usernameKey(*patch.Username))
		}
		if patch.Email != nil {
			keys = append(keys, emailKey(*patch.Email))
		}
		if patch.SetRoles {
			keys = append(keys, s.roleKeysFor(patch.Roles)...)
		}
		return keys
	}

	_, err := s.run(ctx, plan{
		kind:    KindUpdateUser,
		targets: []string{id},
		locks:   locks,
		check: func() error {
			if _, err := s.store.GetUser(id); err != nil {
				return apperrors.NewNotFound("user", map[string]any{"id": id})
			}
			if err := validateUserPatch(patch); err != nil {
				return err
			}
			if patch.SetRoles {
				return s.requireRoleNames(patch.Roles)
			}
			return nil
		},
		call: func(ctx context.Context) (err error) {
			updated, err = s.gateway.UpdateUser(ctx, id, patch)
			return err
		},
		commit: func(tx *store.Tx) (err error) {
			if err = tx.PutUser(updated); err != nil {
				return err
			}
			diff, _, err = s.relations.ReplaceUserRoles(tx, id, updated.Roles)
			return err
		},
		events: func() []events.Event {
			out := []events.Event{userEvent(events.EventUserUpdated, updated)}
			if !diff.Empty() {
				out = append(out, membershipEvent(events.EventUserRolesReplaced, id, diff))
			}
			return out
		},
	})
	if err != nil {
		return domain.User{}, err
	}
	return s.GetUser(id)
}

// DeleteUser removes the account and every membership it held.
func (s *IAMService) DeleteUser(ctx context.Context, id string) error {
	var removed domain.User

	_, err := s.run(ctx, plan{
		kind:    KindDeleteUser,
		targets: []string{id},
		locks: func() []string {
			return append(s.heldRoleKeys(id), userKey(id))
		},
		check: func() (err error) {
			removed, err = s.store.GetUser(id)
			if err != nil {
				return apperrors.NewNotFound("user", map[string]any{"id": id})
			}
			return nil
		},
		call: func(ctx context.Context) error {
			return s.gateway.DeleteUser(ctx, id)
		},
		commit: func(tx *store.Tx) error {
			return tx.RemoveUser(id)
		},
		events: func() []events.Event {
			return []events.Event{userEvent(events.EventUserDeleted, removed)}
		},
	})
	return err
}

// AssignRolesToUser makes roleIDs the exact role set of the user.
func (s *IAMService) AssignRolesToUser(ctx context.Context, userID string, roleIDs []string) (domain.User, error) {
	var updated domain.User
	var diff relation.Diff
	target := set.NewStrings(roleIDs...)

	locks := func() []string {
		keys := append(s.heldRoleKeys(userID), userKey(userID))
		for _, id := range target.Values() {
			keys = append(keys, roleKey(id))
		}
		return keys
	}

	_, err := s.run(ctx, plan{
		kind:    KindAssignRolesToUser,
		targets: []string{userID},
		locks:   locks,
		check: func() error {
			if _, err := s.store.GetUser(userID); err != nil {
				return apperrors.NewNotFound("user", map[string]any{"id": userID})
			}
			var unknown []string
			for _, id := range target.SortedValues() {
				if _, err := s.store.GetRole(id); err != nil {
					unknown = append(unknown, id)
				}
			}
			if len(unknown) > 0 {
				return apperrors.NewValidationError("unknown roles", map[string]any{"roleIds": unknown})
			}
			return nil
		},
		call: func(ctx context.Context) (err error) {
			updated, err = s.gateway.AssignRolesToUser(ctx, userID, target.SortedValues())
			return err
		},
		commit: func(tx *store.Tx) (err error) {
			if err = tx.PutUser(updated); err != nil {
				return err
			}
			diff, _, err = s.relations.ReplaceUserRoles(tx, userID, updated.Roles)
			return err
		},
		events: func() []events.Event {
			return []events.Event{membershipEvent(events.EventUserRolesReplaced, userID, diff)}
		},
	})
	if err != nil {
		return domain.User{}, err
	}
	return s.GetUser(userID)
}

// roleKeysFor resolves role names to lock keys. Unknown names are skipped;
// check rejects them once the locks are held.
func (s *IAMService) roleKeysFor(names []string) []string {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if r, err := s.store.RoleByName(name); err == nil {
			keys = append(keys, roleKey(r.ID))
		}
	}
	return keys
}

// heldRoleKeys returns lock keys for every role the user currently holds.
func (s *IAMService) heldRoleKeys(userID string) []string {
	u, err := s.store.GetUser(userID)
	if err != nil {
		return nil
	}
	return s.roleKeysFor(u.Roles)
}

func (s *IAMService) requireRoleNames(names []string) error {
	var unknown []string
	for _, name := range set.NewStrings(names...).SortedValues() {
		if _, err := s.store.RoleByName(name); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return apperrors.NewValidationError("unknown roles", map[string]any{"roles": unknown})
	}
	return nil
}

func validateNewUser(in domain.CreateUserInput) error {
	missing := missingFields(map[string]string{
		"username":  in.Username,
		"email":     in.Email,
		"firstName": in.FirstName,
		"lastName":  in.LastName,
		"password":  in.Password,
	})
	if len(in.Roles) == 0 {
		missing = append(missing, "roles")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("required fields missing", map[string]any{"fields": missing})
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperrors.NewValidationError("malformed email", map[string]any{"email": in.Email})
	}
	return nil
}

func validateUserPatch(p domain.UserPatch) error {
	fields := map[string]*string{
		"username":  p.Username,
		"email":     p.Email,
		"firstName": p.FirstName,
		"lastName":  p.LastName,
	}
	var blank []string
	for name, v := range fields {
		if v != nil && strings.TrimSpace(*v) == "" {
			blank = append(blank, name)
		}
	}
	if len(blank) > 0 {
		return apperrors.NewValidationError("fields must not be blank", map[string]any{"fields": set.NewStrings(blank...).SortedValues()})
	}
	if p.Email != nil {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return apperrors.NewValidationError("malformed email", map[string]any{"email": *p.Email})
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": *p.Status})
	}
	return nil
}

func missingFields(fields map[string]string) []string {
	missing := set.NewStrings()
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing.Add(name)
		}
	}
	return missing.SortedValues()
}

func userEvent(t events.EventType, u domain.User) events.Event {
	return events.Event{
		Type:     t,
		EntityID: u.ID,
		Payload: events.UserPayload{
			Username: u.Username,
			Email:    u.Email,
			Roles:    u.Roles,
		},
	}
}

func membershipEvent(t events.EventType, entityID string, diff relation.Diff) events.Event {
	return events.Event{
		Type:     t,
		EntityID: entityID,
		Payload:  events.MembershipPayload{Added: diff.Added, Removed: diff.Removed},
	}
}
