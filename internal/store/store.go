package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/juju/collections/set"

	"github.com/spec-kit/iam-service/internal/domain"
)

// Collection names one of the cached entity collections.
type Collection string

const (
	Users       Collection = "users"
	Roles       Collection = "roles"
	Permissions Collection = "permissions"
)

var (
	// ErrNotFound is returned when an id does not resolve to a live entity.
	ErrNotFound = errors.New("entity not found")
	// ErrRetired is returned when a write targets an id deleted earlier in the session.
	ErrRetired = errors.New("entity id retired")
	// ErrInvalidEntity is returned for entities without an id.
	ErrInvalidEntity = errors.New("entity id required")
)

// Store is the authoritative in-memory cache of users, roles and permissions
// for one session. All mutations go through Update; reads never block on
// anything but the store lock and perform no I/O.
type Store struct {
	mu sync.RWMutex

	users     map[string]domain.User
	userOrder []string

	roles     map[string]domain.Role
	roleOrder []string
	roleNames map[string]string

	permissions     map[string]domain.Permission
	permissionOrder []string

	members   *membership
	retired   set.Strings
	revisions map[Collection]uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		roles:       make(map[string]domain.Role),
		roleNames:   make(map[string]string),
		permissions: make(map[string]domain.Permission),
		members:     newMembership(),
		retired:     set.NewStrings(),
		revisions:   make(map[Collection]uint64),
	}
}

// Reset replaces the whole cache with the given collections, keeping their order.
// Role names on users are resolved into the relationship table; names that match
// no role are dropped and returned so the caller can report them.
func (s *Store) Reset(users []domain.User, roles []domain.Role, permissions []domain.Permission) (orphans []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]domain.User, len(users))
	s.userOrder = make([]string, 0, len(users))
	s.roles = make(map[string]domain.Role, len(roles))
	s.roleOrder = make([]string, 0, len(roles))
	s.roleNames = make(map[string]string, len(roles))
	s.permissions = make(map[string]domain.Permission, len(permissions))
	s.permissionOrder = make([]string, 0, len(permissions))
	s.members = newMembership()

	for _, p := range permissions {
		if _, dup := s.permissions[p.ID]; dup || p.ID == "" {
			continue
		}
		s.permissions[p.ID] = p
		s.permissionOrder = append(s.permissionOrder, p.ID)
	}
	for _, r := range roles {
		if _, dup := s.roles[r.ID]; dup || r.ID == "" || s.retired.Contains(r.ID) {
			continue
		}
		s.roles[r.ID] = r.Clone()
		s.roleOrder = append(s.roleOrder, r.ID)
		s.roleNames[r.Name] = r.ID
	}
	for _, u := range users {
		if _, dup := s.users[u.ID]; dup || u.ID == "" || s.retired.Contains(u.ID) {
			continue
		}
		record := u.Clone()
		record.Roles = nil
		s.users[u.ID] = record
		s.userOrder = append(s.userOrder, u.ID)
		for _, name := range u.Roles {
			roleID, ok := s.roleNames[name]
			if !ok {
				orphans = append(orphans, name)
				continue
			}
			s.members.link(roleID, u.ID)
		}
	}

	s.bump(Users, Roles, Permissions)
	return orphans
}

// GetUser returns the user with derived role names.
func (s *Store) GetUser(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return s.viewUser(u), nil
}

// GetRole returns the role with its derived user count.
func (s *Store) GetRole(id string) (domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return domain.Role{}, ErrNotFound
	}
	return s.viewRole(r), nil
}

// RoleByName resolves a role by its unique, case-sensitive name.
func (s *Store) RoleByName(name string) (domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roleNames[name]
	if !ok {
		return domain.Role{}, ErrNotFound
	}
	return s.viewRole(s.roles[id]), nil
}

// GetPermission returns a permission by id.
func (s *Store) GetPermission(id string) (domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[id]
	if !ok {
		return domain.Permission{}, ErrNotFound
	}
	return p, nil
}

// ListUsers returns every user in store order together with the collection revision.
func (s *Store) ListUsers() ([]domain.User, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		out = append(out, s.viewUser(s.users[id]))
	}
	return out, s.revisions[Users]
}

// ListRoles returns every role in store order together with the collection revision.
func (s *Store) ListRoles() ([]domain.Role, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Role, 0, len(s.roleOrder))
	for _, id := range s.roleOrder {
		out = append(out, s.viewRole(s.roles[id]))
	}
	return out, s.revisions[Roles]
}

// ListPermissions returns the permission catalog in store order.
func (s *Store) ListPermissions() []domain.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Permission, 0, len(s.permissionOrder))
	for _, id := range s.permissionOrder {
		out = append(out, s.permissions[id])
	}
	return out
}

// MemberIDs returns the sorted ids of the users holding a role.
func (s *Store) MemberIDs(roleID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members.usersOf(roleID).SortedValues()
}

// Len returns the number of live entities in a collection.
func (s *Store) Len(c Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch c {
	case Users:
		return len(s.users)
	case Roles:
		return len(s.roles)
	case Permissions:
		return len(s.permissions)
	}
	return 0
}

// Revision returns the mutation counter of a collection. Any cached page
// computed at an older revision is stale.
func (s *Store) Revision(c Collection) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[c]
}

// Retired reports whether id was deleted earlier in this session.
func (s *Store) Retired(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retired.Contains(id)
}

// Update runs fn against a transaction. Writes staged by fn are applied
// together under the store lock only if fn returns nil; otherwise nothing changes.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	for _, op := range tx.ops {
		op(s)
	}
	for c := range tx.touched {
		s.bump(c)
	}
	return nil
}

func (s *Store) viewUser(u domain.User) domain.User {
	out := u.Clone()
	roleIDs := s.members.rolesOf(u.ID)
	names := make([]string, 0, roleIDs.Size())
	for _, roleID := range roleIDs.Values() {
		if r, ok := s.roles[roleID]; ok {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	out.Roles = names
	return out
}

func (s *Store) viewRole(r domain.Role) domain.Role {
	out := r.Clone()
	out.UserCount = s.members.count(r.ID)
	return out
}

func (s *Store) bump(cs ...Collection) {
	for _, c := range cs {
		s.revisions[c]++
	}
}

func (s *Store) putUser(u domain.User) {
	record := u.Clone()
	record.Roles = nil
	if _, exists := s.users[u.ID]; !exists {
		s.userOrder = append([]string{u.ID}, s.userOrder...)
	}
	s.users[u.ID] = record
}

func (s *Store) removeUser(id string) {
	delete(s.users, id)
	s.userOrder = without(s.userOrder, id)
	s.members.dropUser(id)
	s.retired.Add(id)
}

func (s *Store) putRole(r domain.Role) {
	record := r.Clone()
	record.UserCount = 0
	if prev, exists := s.roles[r.ID]; exists {
		if prev.Name != r.Name {
			delete(s.roleNames, prev.Name)
		}
	} else {
		s.roleOrder = append([]string{r.ID}, s.roleOrder...)
	}
	s.roles[r.ID] = record
	s.roleNames[r.Name] = r.ID
}

func (s *Store) removeRole(id string) {
	if r, ok := s.roles[id]; ok {
		delete(s.roleNames, r.Name)
	}
	delete(s.roles, id)
	s.roleOrder = without(s.roleOrder, id)
	s.members.dropRole(id)
	s.retired.Add(id)
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
