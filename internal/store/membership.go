package store

import "github.com/juju/collections/set"

// membership is the single role<->user relationship table. Both indexes are
// updated together so User.Roles and Role.UserCount cannot drift apart.
type membership struct {
	byRole map[string]set.Strings
	byUser map[string]set.Strings
}

func newMembership() *membership {
	return &membership{
		byRole: make(map[string]set.Strings),
		byUser: make(map[string]set.Strings),
	}
}

func (m *membership) link(roleID, userID string) {
	if _, ok := m.byRole[roleID]; !ok {
		m.byRole[roleID] = set.NewStrings()
	}
	if _, ok := m.byUser[userID]; !ok {
		m.byUser[userID] = set.NewStrings()
	}
	m.byRole[roleID].Add(userID)
	m.byUser[userID].Add(roleID)
}

func (m *membership) unlink(roleID, userID string) {
	if users, ok := m.byRole[roleID]; ok {
		users.Remove(userID)
		if users.IsEmpty() {
			delete(m.byRole, roleID)
		}
	}
	if roles, ok := m.byUser[userID]; ok {
		roles.Remove(roleID)
		if roles.IsEmpty() {
			delete(m.byUser, userID)
		}
	}
}

func (m *membership) dropUser(userID string) {
	for _, roleID := range m.rolesOf(userID).Values() {
		m.unlink(roleID, userID)
	}
}

func (m *membership) dropRole(roleID string) {
	for _, userID := range m.usersOf(roleID).Values() {
		m.unlink(roleID, userID)
	}
}

// replaceUsers makes the member set of roleID exactly userIDs.
func (m *membership) replaceUsers(roleID string, userIDs set.Strings) {
	current := m.usersOf(roleID)
	for _, userID := range current.Difference(userIDs).Values() {
		m.unlink(roleID, userID)
	}
	for _, userID := range userIDs.Difference(current).Values() {
		m.link(roleID, userID)
	}
}

// replaceRoles makes the role set of userID exactly roleIDs.
func (m *membership) replaceRoles(userID string, roleIDs set.Strings) {
	current := m.rolesOf(userID)
	for _, roleID := range current.Difference(roleIDs).Values() {
		m.unlink(roleID, userID)
	}
	for _, roleID := range roleIDs.Difference(current).Values() {
		m.link(roleID, userID)
	}
}

// usersOf returns a copy of the member set of roleID.
func (m *membership) usersOf(roleID string) set.Strings {
	return set.NewStrings(m.byRole[roleID].Values()...)
}

// rolesOf returns a copy of the role set of userID.
func (m *membership) rolesOf(userID string) set.Strings {
	return set.NewStrings(m.byUser[userID].Values()...)
}

func (m *membership) count(roleID string) int {
	return m.byRole[roleID].Size()
}
