package store

import (
	"errors"

	"github.com/juju/collections/set"

	"github.com/spec-kit/iam-service/internal/domain"
)

// ErrNameTaken is returned when a role write would duplicate another role's name.
var ErrNameTaken = errors.New("role name already in use")

// Tx stages writes against the store. Reads observe the store as it was
// before the transaction, plus the existence of entities staged in it.
type Tx struct {
	s       *Store
	ops     []func(*Store)
	touched map[Collection]struct{}

	addedUsers   set.Strings
	removedUsers set.Strings
	addedRoles   set.Strings
	removedRoles set.Strings

	// Role names claimed by staged writes, and committed names they gave up.
	stagedNames   map[string]string
	stagedNameOf  map[string]string
	releasedNames set.Strings
}

func newTx(s *Store) *Tx {
	return &Tx{
		s:            s,
		touched:      make(map[Collection]struct{}),
		addedUsers:   set.NewStrings(),
		removedUsers: set.NewStrings(),
		addedRoles:   set.NewStrings(),
		removedRoles: set.NewStrings(),

		stagedNames:   make(map[string]string),
		stagedNameOf:  make(map[string]string),
		releasedNames: set.NewStrings(),
	}
}

// User returns the committed view of a user.
func (tx *Tx) User(id string) (domain.User, bool) {
	u, ok := tx.s.users[id]
	if !ok {
		return domain.User{}, false
	}
	return tx.s.viewUser(u), true
}

// Role returns the committed view of a role.
func (tx *Tx) Role(id string) (domain.Role, bool) {
	r, ok := tx.s.roles[id]
	if !ok {
		return domain.Role{}, false
	}
	return tx.s.viewRole(r), true
}

// RoleIDByName resolves a committed role name.
func (tx *Tx) RoleIDByName(name string) (string, bool) {
	id, ok := tx.s.roleNames[name]
	return id, ok
}

// Members returns the committed member set of a role.
func (tx *Tx) Members(roleID string) set.Strings {
	return tx.s.members.usersOf(roleID)
}

// RoleIDsOf returns the committed role set of a user.
func (tx *Tx) RoleIDsOf(userID string) set.Strings {
	return tx.s.members.rolesOf(userID)
}

// PutUser stages an insert or replace. New users go to the head of the collection.
func (tx *Tx) PutUser(u domain.User) error {
	if u.ID == "" {
		return ErrInvalidEntity
	}
	if tx.s.retired.Contains(u.ID) || tx.removedUsers.Contains(u.ID) {
		return ErrRetired
	}
	if _, exists := tx.s.users[u.ID]; !exists {
		tx.addedUsers.Add(u.ID)
	}
	record := u.Clone()
	tx.stage(func(s *Store) { s.putUser(record) }, Users)
	return nil
}

// RemoveUser stages a delete and drops every membership of the user.
func (tx *Tx) RemoveUser(id string) error {
	if !tx.userExists(id) {
		return ErrNotFound
	}
	tx.removedUsers.Add(id)
	tx.addedUsers.Remove(id)
	tx.stage(func(s *Store) { s.removeUser(id) }, Users, Roles)
	return nil
}

// PutRole stages an insert or replace. New roles go to the head of the collection.
func (tx *Tx) PutRole(r domain.Role) error {
	if r.ID == "" {
		return ErrInvalidEntity
	}
	if tx.s.retired.Contains(r.ID) || tx.removedRoles.Contains(r.ID) {
		return ErrRetired
	}
	if !tx.nameAvailable(r.Name, r.ID) {
		return ErrNameTaken
	}
	if committed, exists := tx.s.roles[r.ID]; !exists {
		tx.addedRoles.Add(r.ID)
	} else if committed.Name != r.Name {
		tx.releasedNames.Add(committed.Name)
	}
	tx.claimName(r.ID, r.Name)
	record := r.Clone()
	tx.stage(func(s *Store) { s.putRole(record) }, Roles, Users)
	return nil
}

// RemoveRole stages a delete and drops every membership of the role.
func (tx *Tx) RemoveRole(id string) error {
	if !tx.roleExists(id) {
		return ErrNotFound
	}
	tx.removedRoles.Add(id)
	tx.addedRoles.Remove(id)
	tx.claimName(id, "")
	tx.stage(func(s *Store) { s.removeRole(id) }, Roles, Users)
	return nil
}

// SetRoleMembers stages a full replacement of a role's member set.
func (tx *Tx) SetRoleMembers(roleID string, userIDs set.Strings) error {
	if !tx.roleExists(roleID) {
		return ErrNotFound
	}
	for _, userID := range userIDs.Values() {
		if !tx.userExists(userID) {
			return ErrNotFound
		}
	}
	target := set.NewStrings(userIDs.Values()...)
	tx.stage(func(s *Store) { s.members.replaceUsers(roleID, target) }, Roles, Users)
	return nil
}

// SetUserRoles stages a full replacement of a user's role set.
func (tx *Tx) SetUserRoles(userID string, roleIDs set.Strings) error {
	if !tx.userExists(userID) {
		return ErrNotFound
	}
	for _, roleID := range roleIDs.Values() {
		if !tx.roleExists(roleID) {
			return ErrNotFound
		}
	}
	target := set.NewStrings(roleIDs.Values()...)
	tx.stage(func(s *Store) { s.members.replaceRoles(userID, target) }, Users, Roles)
	return nil
}

// nameAvailable reports whether roleID may carry name once the staged writes
// so far are applied.
func (tx *Tx) nameAvailable(name, roleID string) bool {
	if owner, ok := tx.stagedNames[name]; ok {
		return owner == roleID
	}
	owner, ok := tx.s.roleNames[name]
	if !ok || owner == roleID {
		return true
	}
	return tx.releasedNames.Contains(name) || tx.removedRoles.Contains(owner)
}

func (tx *Tx) claimName(roleID, name string) {
	if prev, ok := tx.stagedNameOf[roleID]; ok {
		delete(tx.stagedNames, prev)
		tx.releasedNames.Add(prev)
		delete(tx.stagedNameOf, roleID)
	}
	if name == "" {
		return
	}
	tx.stagedNames[name] = roleID
	tx.stagedNameOf[roleID] = name
}

func (tx *Tx) userExists(id string) bool {
	if tx.removedUsers.Contains(id) {
		return false
	}
	_, live := tx.s.users[id]
	return live || tx.addedUsers.Contains(id)
}

func (tx *Tx) roleExists(id string) bool {
	if tx.removedRoles.Contains(id) {
		return false
	}
	_, live := tx.s.roles[id]
	return live || tx.addedRoles.Contains(id)
}

func (tx *Tx) stage(op func(*Store), cs ...Collection) {
	tx.ops = append(tx.ops, op)
	for _, c := range cs {
		tx.touched[c] = struct{}{}
	}
}
