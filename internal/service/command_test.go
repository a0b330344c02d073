package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTransitions(t *testing.T) {
	t.Parallel()
	now := time.Now()

	cases := []struct {
		name string
		path []State
		ok   bool
	}{
		{"commit", []State{StatePending, StateCommitted}, true},
		{"gateway failure", []State{StatePending, StateRolledBack}, true},
		{"local rejection", []State{StateRolledBack}, true},
		{"commit without pending", []State{StateCommitted}, false},
		{"settle twice", []State{StatePending, StateCommitted, StateRolledBack}, false},
		{"pending twice", []State{StatePending, StatePending}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cmd := newCommand(KindCreateUser, nil, now)
			var err error
			for _, to := range tc.path {
				if err = cmd.transition(to, now.Add(time.Second)); err != nil {
					break
				}
			}
			if tc.ok {
				require.NoError(t, err)
				assert.True(t, cmd.State.Terminal())
				assert.Equal(t, time.Second, cmd.Duration())
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegistryListsOldestFirst(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	base := time.Now()
	late := newCommand(KindDeleteRole, []string{"r1"}, base.Add(time.Minute))
	early := newCommand(KindDeleteUser, []string{"u1"}, base)
	r.add(late)
	r.add(early)

	listed := r.list()
	require.Len(t, listed, 2)
	assert.Equal(t, early.ID, listed[0].ID)

	r.remove(early.ID)
	assert.Len(t, r.list(), 1)
}
