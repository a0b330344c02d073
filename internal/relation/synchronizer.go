package relation

import (
	"github.com/juju/collections/set"
	"go.uber.org/zap"

	"github.com/spec-kit/iam-service/internal/store"
)

// Diff describes how one side of the role<->user relation changed.
type Diff struct {
	Added   []string
	Removed []string
}

// Empty reports whether the diff changes nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Synchronizer keeps User.roles and role membership consistent when an
// assignment commits. It only stages writes on a store transaction, so the
// user records and the role record change together or not at all.
type Synchronizer struct {
	logger *zap.Logger
}

// NewSynchronizer builds a synchronizer.
func NewSynchronizer(logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{logger: logger}
}

// ReplaceRoleMembers makes the member set of roleID exactly userIDs.
// Duplicates in userIDs collapse; the role's user count becomes the size of the set.
func (s *Synchronizer) ReplaceRoleMembers(tx *store.Tx, roleID string, userIDs []string) (Diff, error) {
	target := set.NewStrings(userIDs...)
	current := tx.Members(roleID)
	diff := Diff{
		Added:   target.Difference(current).SortedValues(),
		Removed: current.Difference(target).SortedValues(),
	}
	if err := tx.SetRoleMembers(roleID, target); err != nil {
		return Diff{}, err
	}
	return diff, nil
}

// ReplaceUserRoles makes the role set of userID exactly the roles named in
// roleNames. Names that resolve to no role are dropped and returned as orphans.
func (s *Synchronizer) ReplaceUserRoles(tx *store.Tx, userID string, roleNames []string) (Diff, []string, error) {
	target, orphans := s.ResolveRoleNames(tx, roleNames)
	if len(orphans) > 0 {
		s.logger.Warn("dropping unknown role names",
			zap.String("user_id", userID),
			zap.Strings("roles", orphans),
		)
	}
	diff, err := s.ReplaceUserRoleIDs(tx, userID, target.Values())
	if err != nil {
		return Diff{}, nil, err
	}
	return diff, orphans, nil
}

// ReplaceUserRoleIDs makes the role set of userID exactly roleIDs.
func (s *Synchronizer) ReplaceUserRoleIDs(tx *store.Tx, userID string, roleIDs []string) (Diff, error) {
	target := set.NewStrings(roleIDs...)
	current := tx.RoleIDsOf(userID)
	diff := Diff{
		Added:   target.Difference(current).SortedValues(),
		Removed: current.Difference(target).SortedValues(),
	}
	if err := tx.SetUserRoles(userID, target); err != nil {
		return Diff{}, err
	}
	return diff, nil
}

// ResolveRoleNames maps role names to committed role ids.
func (s *Synchronizer) ResolveRoleNames(tx *store.Tx, roleNames []string) (set.Strings, []string) {
	ids := set.NewStrings()
	var orphans []string
	for _, name := range set.NewStrings(roleNames...).SortedValues() {
		id, ok := tx.RoleIDByName(name)
		if !ok {
			orphans = append(orphans, name)
			continue
		}
		ids.Add(id)
	}
	return ids, orphans
}
