package gateway

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/collections/set"

	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/domain"
)

// Interceptor runs before every Memory gateway call. A non-nil error aborts
// the call and is returned as-is; it may also block to simulate latency.
type Interceptor func(ctx context.Context, op Op) error

type memoryUser struct {
	user         domain.User
	passwordHash string
	roleIDs      set.Strings
}

// Memory is an in-process system of record. It backs the service when no
// database is configured and is the gateway used by tests.
type Memory struct {
	mu          sync.Mutex
	hasher      *auth.PasswordHasher
	intercept   Interceptor
	users       map[string]*memoryUser
	userOrder   []string
	roles       map[string]domain.Role
	roleOrder   []string
	permissions []domain.Permission
	now         func() time.Time
}

// NewMemory builds an empty in-memory gateway.
func NewMemory(hasher *auth.PasswordHasher) *Memory {
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}
	return &Memory{
		hasher: hasher,
		users:  make(map[string]*memoryUser),
		roles:  make(map[string]domain.Role),
		now:    time.Now,
	}
}

// SetInterceptor installs fn in front of every call.
func (m *Memory) SetInterceptor(fn Interceptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intercept = fn
}

// SeedPermissions appends permissions to the catalog.
func (m *Memory) SeedPermissions(perms ...domain.Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions = append(m.permissions, perms...)
}

// SeedRole stores a role as-is, including system roles.
func (m *Memory) SeedRole(r domain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := m.roles[r.ID]; !exists {
		m.roleOrder = append(m.roleOrder, r.ID)
	}
	m.roles[r.ID] = r.Clone()
}

// SeedDefaults installs the built-in permission catalog and a system role
// holding all of it, mirroring migrations/0002_iam_seed.sql.
func (m *Memory) SeedDefaults(systemRole string) {
	perms := []domain.Permission{
		catalogEntry("users", "read"),
		catalogEntry("users", "write"),
		catalogEntry("roles", "read"),
		catalogEntry("roles", "write"),
		catalogEntry("roles", "assign"),
		catalogEntry("permissions", "read"),
	}
	m.SeedPermissions(perms...)
	desc := "Built-in role with every permission"
	m.SeedRole(domain.Role{Name: systemRole, Description: &desc, IsSystem: true, Permissions: perms})
}

func catalogEntry(resource, action string) domain.Permission {
	id := resource + ":" + action
	return domain.Permission{ID: id, Name: id, Resource: resource, Action: action}
}

// SeedUser stores a user as-is; role names must already be seeded.
func (m *Memory) SeedUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	roleIDs := set.NewStrings()
	for _, name := range u.Roles {
		if id, ok := m.roleIDByName(name); ok {
			roleIDs.Add(id)
		}
	}
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = &memoryUser{user: u.Clone(), roleIDs: roleIDs}
}

func (m *Memory) before(ctx context.Context, op Op) error {
	m.mu.Lock()
	fn := m.intercept
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, op); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (m *Memory) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := m.before(ctx, OpListUsers); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		out = append(out, m.viewUser(m.users[id]))
	}
	return out, nil
}

func (m *Memory) ListRoles(ctx context.Context) ([]domain.Role, error) {
	if err := m.before(ctx, OpListRoles); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Role, 0, len(m.roleOrder))
	for _, id := range m.roleOrder {
		out = append(out, m.viewRole(m.roles[id]))
	}
	return out, nil
}

func (m *Memory) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	if err := m.before(ctx, OpListPermissions); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Permission(nil), m.permissions...), nil
}

func (m *Memory) CreateUser(ctx context.Context, in domain.CreateUserInput) (domain.User, error) {
	if err := m.before(ctx, OpCreateUser); err != nil {
		return domain.User{}, err
	}
	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, Statusf(http.StatusBadRequest, "%v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUserUnique("", in.Username, in.Email); err != nil {
		return domain.User{}, err
	}
	roleIDs, err := m.resolveNames(in.Roles)
	if err != nil {
		return domain.User{}, err
	}
	now := m.now().UTC()
	rec := &memoryUser{
		user: domain.User{
			ID:        uuid.NewString(),
			Username:  in.Username,
			Email:     in.Email,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Phone:     in.Phone,
			Status:    domain.UserStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
		roleIDs:      roleIDs,
	}
	m.users[rec.user.ID] = rec
	m.userOrder = append([]string{rec.user.ID}, m.userOrder...)
	return m.viewUser(rec), nil
}

func (m *Memory) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error) {
	if err := m.before(ctx, OpUpdateUser); err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return domain.User{}, Statusf(http.StatusNotFound, "user %s not found", id)
	}
	next := patch.Apply(rec.user)
	if err := m.checkUserUnique(id, next.Username, next.Email); err != nil {
		return domain.User{}, err
	}
	roleIDs := rec.roleIDs
	if patch.SetRoles {
		resolved, err := m.resolveNames(patch.Roles)
		if err != nil {
			return domain.User{}, err
		}
		roleIDs = resolved
	}
	next.UpdatedAt = m.now().UTC()
	rec.user = next
	rec.roleIDs = roleIDs
	return m.viewUser(rec), nil
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	if err := m.before(ctx, OpDeleteUser); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return Statusf(http.StatusNotFound, "user %s not found", id)
	}
	delete(m.users, id)
	m.userOrder = removeID(m.userOrder, id)
	return nil
}

func (m *Memory) AssignRolesToUser(ctx context.Context, userID string, roleIDs []string) (domain.User, error) {
	if err := m.before(ctx, OpAssignRolesToUser); err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[userID]
	if !ok {
		return domain.User{}, Statusf(http.StatusNotFound, "user %s not found", userID)
	}
	for _, id := range roleIDs {
		if _, ok := m.roles[id]; !ok {
			return domain.User{}, Statusf(http.StatusBadRequest, "unknown role %s", id)
		}
	}
	rec.roleIDs = set.NewStrings(roleIDs...)
	rec.user.UpdatedAt = m.now().UTC()
	return m.viewUser(rec), nil
}

func (m *Memory) CreateRole(ctx context.Context, in domain.CreateRoleInput) (domain.Role, error) {
	if err := m.before(ctx, OpCreateRole); err != nil {
		return domain.Role{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.roleIDByName(in.Name); taken {
		return domain.Role{}, Statusf(http.StatusConflict, "role name %q already exists", in.Name)
	}
	perms, err := m.resolvePermissions(in.Permissions)
	if err != nil {
		return domain.Role{}, err
	}
	now := m.now().UTC()
	r := domain.Role{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.roles[r.ID] = r
	m.roleOrder = append([]string{r.ID}, m.roleOrder...)
	return m.viewRole(r), nil
}

func (m *Memory) UpdateRole(ctx context.Context, id string, patch domain.RolePatch) (domain.Role, error) {
	if err := m.before(ctx, OpUpdateRole); err != nil {
		return domain.Role{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return domain.Role{}, Statusf(http.StatusNotFound, "role %s not found", id)
	}
	if r.IsSystem {
		return domain.Role{}, Statusf(http.StatusForbidden, "system role %s is immutable", r.Name)
	}
	if patch.Name != nil && *patch.Name != r.Name {
		if _, taken := m.roleIDByName(*patch.Name); taken {
			return domain.Role{}, Statusf(http.StatusConflict, "role name %q already exists", *patch.Name)
		}
		r.Name = *patch.Name
	}
	if patch.Description != nil {
		desc := *patch.Description
		r.Description = &desc
	}
	if patch.SetPermissions {
		perms, err := m.resolvePermissions(patch.Permissions)
		if err != nil {
			return domain.Role{}, err
		}
		r.Permissions = perms
	}
	r.UpdatedAt = m.now().UTC()
	m.roles[id] = r
	return m.viewRole(r), nil
}

func (m *Memory) DeleteRole(ctx context.Context, id string, cascade bool) error {
	if err := m.before(ctx, OpDeleteRole); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Statusf(http.StatusNotFound, "role %s not found", id)
	}
	if r.IsSystem {
		return Statusf(http.StatusForbidden, "system role %s cannot be deleted", r.Name)
	}
	if m.memberCount(id) > 0 && !cascade {
		return Statusf(http.StatusConflict, "role %s still has members", r.Name)
	}
	for _, rec := range m.users {
		rec.roleIDs.Remove(id)
	}
	delete(m.roles, id)
	m.roleOrder = removeID(m.roleOrder, id)
	return nil
}

func (m *Memory) AssignRoleToUsers(ctx context.Context, roleID string, userIDs []string) (domain.Role, error) {
	if err := m.before(ctx, OpAssignRoleToUsers); err != nil {
		return domain.Role{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return domain.Role{}, Statusf(http.StatusNotFound, "role %s not found", roleID)
	}
	target := set.NewStrings(userIDs...)
	for _, id := range target.Values() {
		if _, ok := m.users[id]; !ok {
			return domain.Role{}, Statusf(http.StatusNotFound, "user %s not found", id)
		}
	}
	for id, rec := range m.users {
		if target.Contains(id) {
			rec.roleIDs.Add(roleID)
		} else {
			rec.roleIDs.Remove(roleID)
		}
	}
	r.UpdatedAt = m.now().UTC()
	m.roles[roleID] = r
	return m.viewRole(r), nil
}

func (m *Memory) viewUser(rec *memoryUser) domain.User {
	out := rec.user.Clone()
	names := make([]string, 0, rec.roleIDs.Size())
	for _, id := range rec.roleIDs.Values() {
		if r, ok := m.roles[id]; ok {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	out.Roles = names
	return out
}

func (m *Memory) viewRole(r domain.Role) domain.Role {
	out := r.Clone()
	out.UserCount = m.memberCount(r.ID)
	return out
}

func (m *Memory) memberCount(roleID string) int {
	n := 0
	for _, rec := range m.users {
		if rec.roleIDs.Contains(roleID) {
			n++
		}
	}
	return n
}

func (m *Memory) roleIDByName(name string) (string, bool) {
	for id, r := range m.roles {
		if r.Name == name {
			return id, true
		}
	}
	return "", false
}

func (m *Memory) resolveNames(names []string) (set.Strings, error) {
	ids := set.NewStrings()
	for _, name := range names {
		id, ok := m.roleIDByName(name)
		if !ok {
			return nil, Statusf(http.StatusBadRequest, "unknown role %q", name)
		}
		ids.Add(id)
	}
	return ids, nil
}

func (m *Memory) resolvePermissions(ids []string) ([]domain.Permission, error) {
	byID := make(map[string]domain.Permission, len(m.permissions))
	for _, p := range m.permissions {
		byID[p.ID] = p
	}
	out := make([]domain.Permission, 0, len(ids))
	for _, id := range set.NewStrings(ids...).SortedValues() {
		p, ok := byID[id]
		if !ok {
			return nil, Statusf(http.StatusBadRequest, "unknown permission %s", id)
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) checkUserUnique(selfID, username, email string) error {
	for id, rec := range m.users {
		if id == selfID {
			continue
		}
		if rec.user.Username == username {
			return Statusf(http.StatusConflict, "username %q already exists", username)
		}
		if rec.user.Email == email {
			return Statusf(http.StatusConflict, "email %q already exists", email)
		}
	}
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
