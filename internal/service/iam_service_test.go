package service

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/config"
	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/events"
	"github.com/spec-kit/iam-service/internal/gateway"
	"github.com/spec-kit/iam-service/internal/observability"
	"github.com/spec-kit/iam-service/internal/query"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

type fixture struct {
	svc        *IAMService
	gw         *pausingGateway
	dispatcher events.Dispatcher
	metrics    *observability.Metrics

	mu      sync.Mutex
	settled []Command
	events  []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gw:      &pausingGateway{Memory: gateway.NewMemory(auth.NewPasswordHasher(4))},
		metrics: observability.NewMetrics(),
	}
	f.gw.SeedPermissions(
		domain.Permission{ID: "users:read", Name: "users:read", Resource: "users", Action: "read"},
		domain.Permission{ID: "roles:write", Name: "roles:write", Resource: "roles", Action: "write"},
	)
	f.gw.SeedRole(domain.Role{ID: "sys", Name: "Super Admin", IsSystem: true})
	f.gw.SeedRole(domain.Role{ID: "admin", Name: "Admin"})
	f.gw.SeedRole(domain.Role{ID: "viewer", Name: "Viewer"})
	f.gw.SeedUser(domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "A", Roles: []string{"Viewer"}})
	f.gw.SeedUser(domain.User{ID: "u2", Username: "bob", Email: "bob@example.com", FirstName: "Bob", LastName: "B"})
	f.gw.SeedUser(domain.User{ID: "u3", Username: "carol", Email: "carol@example.com", FirstName: "Carol", LastName: "C"})

	dispatcher := events.NewInMemoryDispatcher()
	f.dispatcher = dispatcher
	dispatcher.SubscribeAll(func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
		return nil
	})

	f.svc = NewIAMService(config.IAMConfig{DefaultPageSize: 10, MaxPageSize: 50}, Dependencies{
		Gateway:    f.gw,
		Dispatcher: dispatcher,
		Metrics:    f.metrics,
		Logger:     zap.NewNop(),
		OnSettle: func(c Command) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.settled = append(f.settled, c)
		},
	})
	require.NoError(t, f.svc.Load(context.Background()))
	return f
}

// pausingGateway lets a test stall a gateway reply after the system of record
// has already applied the operation.
type pausingGateway struct {
	*gateway.Memory

	mu    sync.Mutex
	after map[gateway.Op]func()
}

// pauseAfter runs fn once, after the next op has been applied and before its
// result is returned.
func (g *pausingGateway) pauseAfter(op gateway.Op, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.after == nil {
		g.after = make(map[gateway.Op]func())
	}
	g.after[op] = fn
}

func (g *pausingGateway) applied(op gateway.Op) {
	g.mu.Lock()
	fn := g.after[op]
	delete(g.after, op)
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (g *pausingGateway) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := g.Memory.ListRoles(ctx)
	g.applied(gateway.OpListRoles)
	return roles, err
}

func (g *pausingGateway) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error) {
	u, err := g.Memory.UpdateUser(ctx, id, patch)
	g.applied(gateway.OpUpdateUser)
	return u, err
}

func (f *fixture) lastSettled() Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled[len(f.settled)-1]
}

func (f *fixture) eventTypes() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// assertCountsConsistent checks that every role's user count equals the
// number of users whose roles contain its name.
func assertCountsConsistent(t *testing.T, svc *IAMService) {
	t.Helper()
	users, _ := svc.store.ListUsers()
	roles, _ := svc.store.ListRoles()
	for _, r := range roles {
		holders := 0
		for _, u := range users {
			for _, name := range u.Roles {
				if name == r.Name {
					holders++
				}
			}
		}
		assert.Equal(t, holders, r.UserCount, "role %s", r.Name)
	}
}

func roleCounts(roles []domain.Role) map[string]int {
	out := make(map[string]int, len(roles))
	for _, r := range roles {
		out[r.Name] = r.UserCount
	}
	return out
}

func TestAssignRoleToUsersScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.svc.AssignRoleToUsers(ctx, "admin", []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, 2, admin.UserCount)
	u1, _ := f.svc.GetUser("u1")
	u2, _ := f.svc.GetUser("u2")
	assert.Contains(t, u1.Roles, "Admin")
	assert.Contains(t, u2.Roles, "Admin")

	admin, err = f.svc.AssignRoleToUsers(ctx, "admin", []string{"u2"})
	require.NoError(t, err)
	assert.Equal(t, 1, admin.UserCount)
	u1, _ = f.svc.GetUser("u1")
	u2, _ = f.svc.GetUser("u2")
	assert.NotContains(t, u1.Roles, "Admin")
	assert.Contains(t, u2.Roles, "Admin")

	assert.Equal(t, StateCommitted, f.lastSettled().State)
	assertCountsConsistent(t, f.svc)
}

func TestAssignRoleToUsersIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AssignRoleToUsers(ctx, "viewer", []string{"u2", "u3", "u3"})
	require.NoError(t, err)
	usersOnce, _ := f.svc.ListUsers(query.Params{})
	rolesOnce, _ := f.svc.ListRoles(query.Params{})

	_, err = f.svc.AssignRoleToUsers(ctx, "viewer", []string{"u3", "u2"})
	require.NoError(t, err)
	usersTwice, _ := f.svc.ListUsers(query.Params{})
	rolesTwice, _ := f.svc.ListRoles(query.Params{})

	assert.Equal(t, usersOnce.Items, usersTwice.Items)
	assert.Equal(t, roleCounts(rolesOnce.Items), roleCounts(rolesTwice.Items))
	viewer, _ := f.svc.GetRole("viewer")
	assert.Equal(t, 2, viewer.UserCount)
}

func TestRoleCountsStayConsistentAcrossCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateUser(ctx, domain.CreateUserInput{
		Username: "dave", Email: "dave@example.com", FirstName: "Dave", LastName: "D",
		Password: "pw", Roles: []string{"Admin", "Viewer"},
	})
	require.NoError(t, err)
	assertCountsConsistent(t, f.svc)

	_, err = f.svc.AssignRoleToUsers(ctx, "admin", []string{"u1", created.ID})
	require.NoError(t, err)
	assertCountsConsistent(t, f.svc)

	require.NoError(t, f.svc.DeleteUser(ctx, "u1"))
	assertCountsConsistent(t, f.svc)

	_, err = f.svc.AssignRolesToUser(ctx, created.ID, []string{"viewer"})
	require.NoError(t, err)
	assertCountsConsistent(t, f.svc)

	admin, _ := f.svc.GetRole("admin")
	assert.Equal(t, 0, admin.UserCount)
	viewer, _ := f.svc.GetRole("viewer")
	assert.Equal(t, 1, viewer.UserCount)
}

func TestCreateUserInsertsAtHead(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	before, err := f.svc.ListUsers(query.Params{})
	require.NoError(t, err)

	created, err := f.svc.CreateUser(context.Background(), domain.CreateUserInput{
		Username: "erin", Email: "erin@example.com", FirstName: "Erin", LastName: "E",
		Password: "pw", Roles: []string{"Viewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Viewer"}, created.Roles)

	after, err := f.svc.ListUsers(query.Params{})
	require.NoError(t, err)
	assert.Equal(t, before.Total+1, after.Total)
	assert.Equal(t, created.ID, after.Items[0].ID)
	assert.Contains(t, f.eventTypes(), events.EventUserCreated)
}

func TestCreateUserLocalValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var calls atomic.Int32
	f.gw.SetInterceptor(func(context.Context, gateway.Op) error {
		calls.Add(1)
		return nil
	})

	valid := domain.CreateUserInput{
		Username: "frank", Email: "frank@example.com", FirstName: "Frank", LastName: "F",
		Password: "pw", Roles: []string{"Viewer"},
	}
	noRoles := valid
	noRoles.Roles = nil
	unknownRole := valid
	unknownRole.Roles = []string{"Ghost"}
	noEmail := valid
	noEmail.Email = " "
	badEmail := valid
	badEmail.Email = "not-an-email"

	for _, in := range []domain.CreateUserInput{noRoles, unknownRole, noEmail, badEmail} {
		_, err := f.svc.CreateUser(context.Background(), in)
		assert.True(t, apperrors.IsValidation(err), "expected validation error, got %v", err)

		settled := f.lastSettled()
		assert.Equal(t, StateRolledBack, settled.State)
	}
	assert.Zero(t, calls.Load())
	assert.Equal(t, int64(4), f.metrics.CommandCount(string(KindCreateUser), string(StateRolledBack)))
}

func TestTransientCreateUserLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.gw.SetInterceptor(func(_ context.Context, op gateway.Op) error {
		if op == gateway.OpCreateUser {
			return gateway.Statusf(http.StatusServiceUnavailable, "upstream down")
		}
		return nil
	})

	before, err := f.svc.ListUsers(query.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)

	_, err = f.svc.CreateUser(context.Background(), domain.CreateUserInput{
		Username: "gina", Email: "gina@example.com", FirstName: "Gina", LastName: "G",
		Password: "pw", Roles: []string{"Viewer"},
	})
	assert.True(t, apperrors.IsTransient(err))

	after, err := f.svc.ListUsers(query.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	viewer, _ := f.svc.GetRole("viewer")
	assert.Equal(t, 1, viewer.UserCount)
	assert.NotContains(t, f.eventTypes(), events.EventUserCreated)
	assert.Equal(t, StateRolledBack, f.lastSettled().State)
}

func TestSystemRoleIsImmutable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var calls atomic.Int32
	f.gw.SetInterceptor(func(context.Context, gateway.Op) error {
		calls.Add(1)
		return nil
	})
	ctx := context.Background()
	before, _ := f.svc.ListRoles(query.Params{})

	name := "Root"
	_, err := f.svc.UpdateRole(ctx, "sys", domain.RolePatch{Name: &name})
	assert.True(t, apperrors.IsPolicyViolation(err))

	err = f.svc.DeleteRole(ctx, "sys", true)
	assert.True(t, apperrors.IsPolicyViolation(err))

	after, _ := f.svc.ListRoles(query.Params{})
	assert.Equal(t, before, after)
	assert.Zero(t, calls.Load())
}

func TestDeleteRoleWithMembersRequiresCascade(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.DeleteRole(ctx, "viewer", false)
	assert.True(t, apperrors.IsConflict(err))
	_, err = f.svc.GetRole("viewer")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteRole(ctx, "viewer", true))
	_, err = f.svc.GetRole("viewer")
	assert.True(t, apperrors.IsNotFound(err))
	u1, _ := f.svc.GetUser("u1")
	assert.Empty(t, u1.Roles)
	assert.True(t, f.svc.store.Retired("viewer"))
	assert.Contains(t, f.eventTypes(), events.EventRoleDeleted)
}

func TestRoleCreateAndUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	desc := "Writes roles"

	role, err := f.svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Editor", Description: &desc, Permissions: []string{"roles:write"}})
	require.NoError(t, err)
	require.Len(t, role.Permissions, 1)

	_, err = f.svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Editor"})
	assert.True(t, apperrors.IsConflict(err))
	_, err = f.svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Broken", Permissions: []string{"nope"}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.AssignRoleToUsers(ctx, role.ID, []string{"u2"})
	require.NoError(t, err)

	name := "Author"
	renamed, err := f.svc.UpdateRole(ctx, role.ID, domain.RolePatch{Name: &name, Permissions: nil, SetPermissions: true})
	require.NoError(t, err)
	assert.Equal(t, "Author", renamed.Name)
	assert.Empty(t, renamed.Permissions)
	assert.Equal(t, 1, renamed.UserCount)

	u2, _ := f.svc.GetUser("u2")
	assert.Equal(t, []string{"Author"}, u2.Roles)

	taken := "Admin"
	_, err = f.svc.UpdateRole(ctx, role.ID, domain.RolePatch{Name: &taken})
	assert.True(t, apperrors.IsConflict(err))
}

func TestUpdateUserReplacesRoles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := "Alicia"

	u, err := f.svc.UpdateUser(context.Background(), "u1", domain.UserPatch{
		FirstName: &first,
		Roles:     []string{"Admin"},
		SetRoles:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", u.FirstName)
	assert.Equal(t, []string{"Admin"}, u.Roles)

	viewer, _ := f.svc.GetRole("viewer")
	assert.Equal(t, 0, viewer.UserCount)
	assert.Contains(t, f.eventTypes(), events.EventUserRolesReplaced)

	_, err = f.svc.UpdateUser(context.Background(), "ghost", domain.UserPatch{FirstName: &first})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGatewayNotFoundIsEchoed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.gw.DeleteUser(context.Background(), "u2"))

	last := "Builder"
	_, err := f.svc.UpdateUser(context.Background(), "u2", domain.UserPatch{LastName: &last})
	assert.True(t, apperrors.IsNotFound(err))

	u2, err := f.svc.GetUser("u2")
	require.NoError(t, err)
	assert.Equal(t, "B", u2.LastName)
}

func TestAssignRoleToUsersUnknownTargets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.AssignRoleToUsers(context.Background(), "admin", []string{"u1", "ghost"})
	assert.True(t, apperrors.IsNotFound(err))
	admin, _ := f.svc.GetRole("admin")
	assert.Equal(t, 0, admin.UserCount)

	_, err = f.svc.AssignRolesToUser(context.Background(), "u1", []string{"ghost-role"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestSameEntityCommandsAreSerialized(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	var updateCalls atomic.Int32
	f.gw.SetInterceptor(func(_ context.Context, op gateway.Op) error {
		if op == gateway.OpUpdateUser {
			updateCalls.Add(1)
			entered <- struct{}{}
			<-release
		}
		return nil
	})

	first, last := "Ally", "Anders"
	done := make(chan error, 2)
	go func() {
		_, err := f.svc.UpdateUser(ctx, "u1", domain.UserPatch{FirstName: &first})
		done <- err
	}()
	<-entered

	go func() {
		_, err := f.svc.UpdateUser(ctx, "u1", domain.UserPatch{LastName: &last})
		done <- err
	}()

	// A command on another entity is not held up.
	require.NoError(t, f.svc.DeleteUser(ctx, "u3"))

	assert.Never(t, func() bool { return updateCalls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	inflight := f.svc.InFlight()
	require.Len(t, inflight, 1)
	assert.Equal(t, KindUpdateUser, inflight[0].Kind)
	assert.Equal(t, StatePending, inflight[0].State)

	require.Eventually(t, func() bool { return len(f.svc.Queued()) == 1 }, time.Second, 5*time.Millisecond)
	queued := f.svc.Queued()[0]
	assert.Equal(t, KindUpdateUser, queued.Kind)
	assert.Equal(t, StateIdle, queued.State)
	assert.NotEqual(t, inflight[0].ID, queued.ID)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	u1, err := f.svc.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, "Ally", u1.FirstName)
	assert.Equal(t, "Anders", u1.LastName)
	assert.Empty(t, f.svc.InFlight())
	assert.Empty(t, f.svc.Queued())
}

func TestRoleMembershipCommandsSerializeOnTheRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	applied := make(chan struct{})
	release := make(chan struct{})
	f.gw.pauseAfter(gateway.OpUpdateUser, func() {
		close(applied)
		<-release
	})

	updateDone := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateUser(ctx, "u2", domain.UserPatch{SetRoles: true, Roles: []string{"Admin"}})
		updateDone <- err
	}()
	<-applied

	var assignCalls atomic.Int32
	f.gw.SetInterceptor(func(_ context.Context, op gateway.Op) error {
		if op == gateway.OpAssignRoleToUsers {
			assignCalls.Add(1)
		}
		return nil
	})
	assignDone := make(chan error, 1)
	go func() {
		_, err := f.svc.AssignRoleToUsers(ctx, "admin", []string{"u3"})
		assignDone <- err
	}()

	assert.Never(t, func() bool { return assignCalls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.svc.Queued()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindAssignRoleToUsers, f.svc.Queued()[0].Kind)

	close(release)
	require.NoError(t, <-updateDone)
	require.NoError(t, <-assignDone)

	record, err := f.gw.ListRoles(ctx)
	require.NoError(t, err)
	local, err := f.svc.ListRoles(query.Params{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, roleCounts(record), roleCounts(local.Items))

	admin, err := f.svc.GetRole("admin")
	require.NoError(t, err)
	assert.Equal(t, 1, admin.UserCount)
	bob, err := f.svc.GetUser("u2")
	require.NoError(t, err)
	assert.Empty(t, bob.Roles)
	assertCountsConsistent(t, f.svc)
}

func TestAcquireRetriesWhenKeySetGrows(t *testing.T) {
	t.Parallel()
	svc := NewIAMService(config.IAMConfig{}, Dependencies{Gateway: gateway.NewMemory(auth.NewPasswordHasher(4))})

	calls := 0
	unlock := svc.acquire(func() []string {
		calls++
		if calls == 1 {
			return []string{roleKey("r1")}
		}
		return []string{roleKey("r1"), userKey("u9")}
	})
	assert.Equal(t, 4, calls)

	acquired := make(chan struct{})
	go func() {
		svc.locks.Lock(userKey("u9"))
		close(acquired)
		svc.locks.Unlock(userKey("u9"))
	}()
	isClosed := func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}
	assert.Never(t, isClosed, 30*time.Millisecond, 5*time.Millisecond)
	unlock()
	assert.Eventually(t, isClosed, time.Second, 5*time.Millisecond)
}

func TestCommandsBeforeFirstLoadAreTransient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := gateway.NewMemory(auth.NewPasswordHasher(4))
	gw.SeedRole(domain.Role{ID: "viewer", Name: "Viewer"})
	var calls atomic.Int32
	gw.SetInterceptor(func(context.Context, gateway.Op) error {
		calls.Add(1)
		return nil
	})
	metrics := observability.NewMetrics()
	svc := NewIAMService(config.IAMConfig{}, Dependencies{Gateway: gw, Metrics: metrics})

	assert.False(t, svc.Loaded())
	_, err := svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Ops"})
	assert.True(t, apperrors.IsTransient(err), "expected transient error, got %v", err)
	assert.Zero(t, calls.Load())
	assert.Equal(t, int64(1), metrics.CommandCount(string(KindCreateRole), string(StateRolledBack)))

	require.NoError(t, svc.Load(ctx))
	assert.True(t, svc.Loaded())
	_, err = svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Ops"})
	require.NoError(t, err)
}

func TestReloadExcludesCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	snapshotTaken := make(chan struct{})
	release := make(chan struct{})
	f.gw.pauseAfter(gateway.OpListRoles, func() {
		close(snapshotTaken)
		<-release
	})

	loadDone := make(chan error, 1)
	go func() { loadDone <- f.svc.Load(ctx) }()
	<-snapshotTaken

	createDone := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Ops"})
		createDone <- err
	}()

	require.Eventually(t, func() bool { return len(f.svc.Queued()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(createDone) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-loadDone)
	require.NoError(t, <-createDone)

	record, err := f.gw.ListRoles(ctx)
	require.NoError(t, err)
	local, err := f.svc.ListRoles(query.Params{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, len(record), local.Total)
	ops, err := f.svc.store.RoleByName("Ops")
	require.NoError(t, err)
	assert.Equal(t, "Ops", ops.Name)
}

func TestPendingCommandSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(WithActor(context.Background(), "op-1"))
	f.gw.SetInterceptor(func(_ context.Context, op gateway.Op) error {
		if op == gateway.OpCreateRole {
			cancel()
		}
		return nil
	})
	var (
		delivered  []events.Event
		handlerErr []error
	)
	f.dispatcher.Subscribe(events.EventRoleCreated, func(hctx context.Context, e events.Event) error {
		delivered = append(delivered, e)
		handlerErr = append(handlerErr, hctx.Err())
		return hctx.Err()
	})

	role, err := f.svc.CreateRole(ctx, domain.CreateRoleInput{Name: "Auditor"})
	require.NoError(t, err)
	assert.Equal(t, "Auditor", role.Name)
	assert.Equal(t, StateCommitted, f.lastSettled().State)

	require.Len(t, delivered, 1)
	assert.NoError(t, handlerErr[0])
	assert.Equal(t, role.ID, delivered[0].EntityID)
	assert.Equal(t, "op-1", delivered[0].Actor)
}

func TestListParamsDefaultsAndLimits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	page, err := f.svc.ListUsers(query.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 3, page.Total)

	_, err = f.svc.ListRoles(query.Params{Page: 1, PageSize: 51})
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.svc.ListRoles(query.Params{Page: -1, PageSize: 5})
	assert.True(t, apperrors.IsValidation(err))

	assert.Len(t, f.svc.ListPermissions(), 2)
}
