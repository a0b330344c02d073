package service

import (
	"context"
	"strings"

	"github.com/juju/collections/set"

	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/events"
	"github.com/spec-kit/iam-service/internal/relation"
	"github.com/spec-kit/iam-service/internal/store"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

// CreateRole creates a role with the given permission ids.
func (s *IAMService) CreateRole(ctx context.Context, in domain.CreateRoleInput) (domain.Role, error) {
	var created domain.Role

	_, err := s.run(ctx, plan{
		kind: KindCreateRole,
		locks: func() []string {
			return []string{roleNameKey(in.Name)}
		},
		check: func() error {
			if strings.TrimSpace(in.Name) == "" {
				return apperrors.NewValidationError("required fields missing", map[string]any{"fields": []string{"name"}})
			}
			if err := s.requireUniqueRoleName(in.Name, ""); err != nil {
				return err
			}
			return s.requirePermissions(in.Permissions)
		},
		call: func(ctx context.Context) (err error) {
			created, err = s.gateway.CreateRole(ctx, in)
			return err
		},
		commit: func(tx *store.Tx) error {
			return tx.PutRole(created)
		},
		events: func() []events.Event {
			return []events.Event{roleEvent(events.EventRoleCreated, created, false)}
		},
	})
	if err != nil {
		return domain.Role{}, err
	}
	return s.GetRole(created.ID)
}

// UpdateRole applies a partial update. System roles cannot be changed.
func (s *IAMService) UpdateRole(ctx context.Context, id string, patch domain.RolePatch) (domain.Role, error) {
	var updated domain.Role

	locks := func() []string {
		keys := []string{roleKey(id)}
		if patch.Name != nil {
			keys = append(keys, roleNameKey(*patch.Name))
		}
		return keys
	}

	_, err := s.run(ctx, plan{
		kind:    KindUpdateRole,
		targets: []string{id},
		locks:   locks,
		check: func() error {
			role, err := s.requireMutableRole(id)
			if err != nil {
				return err
			}
			if patch.Name != nil {
				if strings.TrimSpace(*patch.Name) == "" {
					return apperrors.NewValidationError("fields must not be blank", map[string]any{"fields": []string{"name"}})
				}
				if err := s.requireUniqueRoleName(*patch.Name, role.ID); err != nil {
					return err
				}
			}
			if patch.SetPermissions {
				return s.requirePermissions(patch.Permissions)
			}
			return nil
		},
		call: func(ctx context.Context) (err error) {
			updated, err = s.gateway.UpdateRole(ctx, id, patch)
			return err
		},
		commit: func(tx *store.Tx) error {
			return tx.PutRole(updated)
		},
		events: func() []events.Event {
			return []events.Event{roleEvent(events.EventRoleUpdated, updated, false)}
		},
	})
	if err != nil {
		return domain.Role{}, err
	}
	return s.GetRole(id)
}

// DeleteRole removes a role. A role that still has members is only removed
// when cascade is set, in which case every member loses it.
func (s *IAMService) DeleteRole(ctx context.Context, id string, cascade bool) error {
	var removed domain.Role

	locks := func() []string {
		keys := []string{roleKey(id)}
		for _, userID := range s.memberIDs(id) {
			keys = append(keys, userKey(userID))
		}
		return keys
	}

	_, err := s.run(ctx, plan{
		kind:    KindDeleteRole,
		targets: []string{id},
		locks:   locks,
		check: func() (err error) {
			removed, err = s.requireMutableRole(id)
			if err != nil {
				return err
			}
			if removed.UserCount > 0 && !cascade {
				return apperrors.NewConflict("role still has members", map[string]any{
					"id":        id,
					"userCount": removed.UserCount,
				})
			}
			return nil
		},
		call: func(ctx context.Context) error {
			return s.gateway.DeleteRole(ctx, id, cascade)
		},
		commit: func(tx *store.Tx) error {
			return tx.RemoveRole(id)
		},
		events: func() []events.Event {
			return []events.Event{roleEvent(events.EventRoleDeleted, removed, cascade)}
		},
	})
	return err
}

// AssignRoleToUsers makes userIDs the exact member set of the role.
func (s *IAMService) AssignRoleToUsers(ctx context.Context, roleID string, userIDs []string) (domain.Role, error) {
	var updated domain.Role
	var diff relation.Diff
	target := set.NewStrings(userIDs...)

	locks := func() []string {
		keys := []string{roleKey(roleID)}
		for _, id := range set.NewStrings(s.memberIDs(roleID)...).Union(target).Values() {
			keys = append(keys, userKey(id))
		}
		return keys
	}

	_, err := s.run(ctx, plan{
		kind:    KindAssignRoleToUsers,
		targets: []string{roleID},
		locks:   locks,
		check: func() error {
			if _, err := s.store.GetRole(roleID); err != nil {
				return apperrors.NewNotFound("role", map[string]any{"id": roleID})
			}
			var unknown []string
			for _, id := range target.SortedValues() {
				if _, err := s.store.GetUser(id); err != nil {
					unknown = append(unknown, id)
				}
			}
			if len(unknown) > 0 {
				return apperrors.NewNotFound("user", map[string]any{"userIds": unknown})
			}
			return nil
		},
		call: func(ctx context.Context) (err error) {
			updated, err = s.gateway.AssignRoleToUsers(ctx, roleID, target.SortedValues())
			return err
		},
		commit: func(tx *store.Tx) (err error) {
			if err = tx.PutRole(updated); err != nil {
				return err
			}
			diff, err = s.relations.ReplaceRoleMembers(tx, roleID, target.Values())
			return err
		},
		events: func() []events.Event {
			return []events.Event{membershipEvent(events.EventRoleMembersReplaced, roleID, diff)}
		},
	})
	if err != nil {
		return domain.Role{}, err
	}
	return s.GetRole(roleID)
}

func (s *IAMService) requireMutableRole(id string) (domain.Role, error) {
	role, err := s.store.GetRole(id)
	if err != nil {
		return domain.Role{}, apperrors.NewNotFound("role", map[string]any{"id": id})
	}
	if role.IsSystem {
		return domain.Role{}, apperrors.NewPolicyViolation("system roles cannot be modified", map[string]any{"id": id, "name": role.Name})
	}
	return role, nil
}

func (s *IAMService) requireUniqueRoleName(name, selfID string) error {
	existing, err := s.store.RoleByName(name)
	if err == nil && existing.ID != selfID {
		return apperrors.NewConflict("role name already exists", map[string]any{"name": name})
	}
	return nil
}

func (s *IAMService) requirePermissions(ids []string) error {
	var unknown []string
	for _, id := range set.NewStrings(ids...).SortedValues() {
		if _, err := s.store.GetPermission(id); err != nil {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return apperrors.NewValidationError("unknown permissions", map[string]any{"permissions": unknown})
	}
	return nil
}

// memberIDs reads the current members of a role for lock planning. The result
// may be stale until the role's own lock is held; acquire re-reads it then.
func (s *IAMService) memberIDs(roleID string) []string {
	return s.store.MemberIDs(roleID)
}

func roleEvent(t events.EventType, r domain.Role, cascade bool) events.Event {
	return events.Event{
		Type:     t,
		EntityID: r.ID,
		Payload: events.RolePayload{
			Name:      r.Name,
			UserCount: r.UserCount,
			Cascade:   cascade,
		},
	}
}
