package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/juju/collections/set"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/iam-service/internal/config"
	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/events"
	"github.com/spec-kit/iam-service/internal/gateway"
	"github.com/spec-kit/iam-service/internal/observability"
	"github.com/spec-kit/iam-service/internal/query"
	"github.com/spec-kit/iam-service/internal/relation"
	"github.com/spec-kit/iam-service/internal/store"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

// Dependencies encapsulates collaborators of the IAM service.
type Dependencies struct {
	Store        *store.Store
	Gateway      gateway.Gateway
	Synchronizer *relation.Synchronizer
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// OnSettle, when set, observes every command after it reaches a terminal state.
	OnSettle func(Command)
}

// IAMService is the command executor and query surface over the entity store.
// Commands on the same entity id run one at a time; commands on disjoint
// entities may have their gateway calls in flight together. Commands are
// rejected until the first Load has completed, and a Load waits for every
// running command to settle.
type IAMService struct {
	store     *store.Store
	engine    *query.Engine
	relations *relation.Synchronizer
	gateway   gateway.Gateway
	events    events.Dispatcher
	metrics   *observability.Metrics
	logger    *zap.Logger
	locks     *kmutex.Kmutex
	queued    *registry
	inflight  *registry
	loadMu    sync.RWMutex
	loaded    atomic.Bool
	onSettle  func(Command)
	now       func() time.Time

	defaultPageSize int
	maxPageSize     int
}

// NewIAMService constructs the service.
func NewIAMService(cfg config.IAMConfig, deps Dependencies) *IAMService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := deps.Store
	if st == nil {
		st = store.New()
	}
	synchronizer := deps.Synchronizer
	if synchronizer == nil {
		synchronizer = relation.NewSynchronizer(logger)
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	defaultSize, maxSize := cfg.DefaultPageSize, cfg.MaxPageSize
	if defaultSize <= 0 {
		defaultSize = 10
	}
	if maxSize < defaultSize {
		maxSize = defaultSize
	}
	return &IAMService{
		store:           st,
		engine:          query.NewEngine(st),
		relations:       synchronizer,
		gateway:         deps.Gateway,
		events:          dispatcher,
		metrics:         deps.Metrics,
		logger:          logger,
		locks:           kmutex.New(),
		queued:          newRegistry(),
		inflight:        newRegistry(),
		onSettle:        deps.OnSettle,
		now:             time.Now,
		defaultPageSize: defaultSize,
		maxPageSize:     maxSize,
	}
}

// Load replaces the store contents with the gateway's current state. It runs
// exclusively: commands already admitted settle first, new ones wait.
func (s *IAMService) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	var (
		users []domain.User
		roles []domain.Role
		perms []domain.Permission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.gateway.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		roles, err = s.gateway.ListRoles(gctx)
		return err
	})
	g.Go(func() (err error) {
		perms, err = s.gateway.ListPermissions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return gateway.Classify(err)
	}

	orphans := s.store.Reset(users, roles, perms)
	s.loaded.Store(true)
	if len(orphans) > 0 {
		s.logger.Warn("users reference unknown roles", zap.Strings("roles", orphans))
	}
	s.logger.Info("entity store loaded",
		zap.Int("users", len(users)),
		zap.Int("roles", len(roles)),
		zap.Int("permissions", len(perms)),
	)
	return nil
}

// Loaded reports whether the store holds a snapshot of the system of record.
func (s *IAMService) Loaded() bool {
	return s.loaded.Load()
}

// InFlight lists Pending commands, oldest first. A command still waiting for
// an entity lock is Idle and shows up in Queued instead.
func (s *IAMService) InFlight() []Command {
	return s.inflight.list()
}

// Queued lists Idle commands waiting for an entity lock held by another command.
func (s *IAMService) Queued() []Command {
	return s.queued.list()
}

// ListUsers returns one page of users. Zero page or page size fall back to defaults.
func (s *IAMService) ListUsers(p query.Params) (query.Page[domain.User], error) {
	p, err := s.normalize(p)
	if err != nil {
		return query.Page[domain.User]{}, err
	}
	return s.engine.Users(p)
}

// ListRoles returns one page of roles.
func (s *IAMService) ListRoles(p query.Params) (query.Page[domain.Role], error) {
	p, err := s.normalize(p)
	if err != nil {
		return query.Page[domain.Role]{}, err
	}
	return s.engine.Roles(p)
}

// ListPermissions returns the permission catalog.
func (s *IAMService) ListPermissions() []domain.Permission {
	return s.store.ListPermissions()
}

// GetUser reads one user from the store.
func (s *IAMService) GetUser(id string) (domain.User, error) {
	u, err := s.store.GetUser(id)
	if err != nil {
		return domain.User{}, apperrors.NewNotFound("user", map[string]any{"id": id})
	}
	return u, nil
}

// GetRole reads one role from the store.
func (s *IAMService) GetRole(id string) (domain.Role, error) {
	r, err := s.store.GetRole(id)
	if err != nil {
		return domain.Role{}, apperrors.NewNotFound("role", map[string]any{"id": id})
	}
	return r, nil
}

func (s *IAMService) normalize(p query.Params) (query.Params, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = s.defaultPageSize
	}
	if p.PageSize > s.maxPageSize {
		return p, apperrors.NewValidationError("pageSize too large", map[string]any{"max": s.maxPageSize})
	}
	return p, nil
}

// plan describes one command for run. locks names the entity keys the
// command touches; it is evaluated again once they are held. check runs under
// the entity locks before the gateway call; commit runs only after the
// gateway succeeded.
type plan struct {
	kind    Kind
	targets []string
	locks   func() []string
	check   func() error
	call    func(ctx context.Context) error
	commit  func(tx *store.Tx) error
	events  func() []events.Event
}

var errNotLoaded = errors.New("entity store not loaded")

func (s *IAMService) run(ctx context.Context, p plan) (Command, error) {
	cmd := newCommand(p.kind, p.targets, s.now())
	settled, published, err := s.execute(ctx, cmd, p)

	// Entity locks are released here. A committed command's events go out
	// even when the caller has been cancelled.
	pubCtx := context.WithoutCancel(ctx)
	for _, evt := range published {
		evt.ID = uuid.NewString()
		evt.CommandID = settled.ID
		evt.Actor = ActorFromContext(ctx)
		evt.Timestamp = settled.SettledAt
		if pubErr := s.events.Publish(pubCtx, evt); pubErr != nil {
			s.logger.Warn("event handler failed",
				zap.String("event", string(evt.Type)),
				zap.String("entity_id", evt.EntityID),
				zap.Error(pubErr),
			)
		}
	}
	return settled, err
}

// execute drives cmd to a terminal state while holding its entity locks and
// returns the events of a committed command.
func (s *IAMService) execute(ctx context.Context, cmd *Command, p plan) (Command, []events.Event, error) {
	s.queued.add(cmd)
	s.loadMu.RLock()
	defer s.loadMu.RUnlock()

	if !s.loaded.Load() {
		s.queued.remove(cmd.ID)
		err := apperrors.NewTransient(errNotLoaded)
		return s.settle(cmd, StateRolledBack, err), nil, err
	}

	unlock := s.acquire(p.locks)
	s.queued.remove(cmd.ID)
	defer unlock()

	if p.check != nil {
		if err := p.check(); err != nil {
			return s.settle(cmd, StateRolledBack, err), nil, err
		}
	}

	if err := cmd.transition(StatePending, s.now()); err != nil {
		return cmd.snapshot(), nil, err
	}
	s.inflight.add(cmd)
	defer s.inflight.remove(cmd.ID)

	// Once pending, the command runs to settlement even if the caller goes away.
	if err := p.call(context.WithoutCancel(ctx)); err != nil {
		classified := gateway.Classify(err)
		return s.settle(cmd, StateRolledBack, classified), nil, classified
	}

	if err := s.store.Update(p.commit); err != nil {
		s.logger.Error("committed gateway result rejected by store",
			zap.String("command_id", cmd.ID),
			zap.String("kind", string(cmd.Kind)),
			zap.Error(err),
		)
		conflict := apperrors.NewConflict("store diverged from system of record; reload required",
			map[string]any{"reason": err.Error()})
		return s.settle(cmd, StateRolledBack, conflict), nil, conflict
	}

	settled := s.settle(cmd, StateCommitted, nil)
	var out []events.Event
	if p.events != nil {
		out = p.events()
	}
	return settled, out, nil
}

// lock acquires every key in sorted order so overlapping commands cannot deadlock.
func (s *IAMService) lock(keys []string) func() {
	uniq := make(map[string]struct{}, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := uniq[k]; dup {
			continue
		}
		uniq[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		s.locks.Lock(k)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			s.locks.Unlock(sorted[i])
		}
	}
}

// acquire locks the keys named by keysFor. The keys are derived from store
// reads, so they are derived again once held; if the set grew meanwhile the
// locks are released and the attempt starts over.
func (s *IAMService) acquire(keysFor func() []string) func() {
	for {
		held := keysFor()
		unlock := s.lock(held)
		missing := set.NewStrings(keysFor()...).Difference(set.NewStrings(held...))
		if missing.IsEmpty() {
			return unlock
		}
		unlock()
	}
}

func userKey(id string) string       { return "user:" + id }
func roleKey(id string) string       { return "role:" + id }
func usernameKey(name string) string { return "username:" + name }
func emailKey(email string) string   { return "email:" + email }
func roleNameKey(name string) string { return "role-name:" + name }
