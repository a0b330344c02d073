package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a command accepted by the executor.
type Kind string

const (
	KindCreateUser        Kind = "create_user"
	KindUpdateUser        Kind = "update_user"
	KindDeleteUser        Kind = "delete_user"
	KindAssignRolesToUser Kind = "assign_roles_to_user"
	KindCreateRole        Kind = "create_role"
	KindUpdateRole        Kind = "update_role"
	KindDeleteRole        Kind = "delete_role"
	KindAssignRoleToUsers Kind = "assign_role_to_users"
)

// State is the lifecycle position of one command.
type State string

const (
	StateIdle       State = "idle"
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

var transitions = map[State][]State{
	StateIdle:    {StatePending, StateRolledBack},
	StatePending: {StateCommitted, StateRolledBack},
}

// Command is a snapshot of one command instance.
type Command struct {
	ID        string
	Kind      Kind
	Targets   []string
	State     State
	Err       error
	CreatedAt time.Time
	SettledAt time.Time
}

// Duration is the time from acceptance to settlement, or zero while unsettled.
func (c Command) Duration() time.Duration {
	if c.SettledAt.IsZero() {
		return 0
	}
	return c.SettledAt.Sub(c.CreatedAt)
}

func newCommand(kind Kind, targets []string, now time.Time) *Command {
	return &Command{
		ID:        uuid.NewString(),
		Kind:      kind,
		Targets:   append([]string(nil), targets...),
		State:     StateIdle,
		CreatedAt: now,
	}
}

func (c *Command) transition(to State, now time.Time) error {
	for _, allowed := range transitions[c.State] {
		if allowed == to {
			c.State = to
			if to.Terminal() {
				c.SettledAt = now
			}
			return nil
		}
	}
	return fmt.Errorf("command %s: illegal transition %s -> %s", c.ID, c.State, to)
}

func (c *Command) snapshot() Command {
	out := *c
	out.Targets = append([]string(nil), c.Targets...)
	return out
}

// registry tracks commands that have entered Pending and not yet settled.
type registry struct {
	mu      sync.Mutex
	pending map[string]Command
}

func newRegistry() *registry {
	return &registry{pending: make(map[string]Command)}
}

func (r *registry) add(c *Command) {
	snap := c.snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[c.ID] = snap
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *registry) list() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, 0, len(r.pending))
	for _, c := range r.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
