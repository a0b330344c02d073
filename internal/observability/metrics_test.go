package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsAggregatesByKindAndState(t *testing.T) {
	m := NewMetrics()
	m.RecordCommand("delete_role", "rolled_back", 2*time.Millisecond)
	m.RecordCommand("create_user", "committed", 10*time.Millisecond)
	m.RecordCommand("create_user", "committed", 20*time.Millisecond)
	m.RecordCommand("create_user", "rolled_back", time.Millisecond)

	stats := m.Commands()
	require.Len(t, stats, 3)
	assert.Equal(t, CommandStats{Kind: "create_user", State: "committed", Count: 2, MeanLatency: 15 * time.Millisecond}, stats[0])
	assert.Equal(t, "rolled_back", stats[1].State)
	assert.Equal(t, "delete_role", stats[2].Kind)
	assert.Equal(t, int64(2), m.CommandCount("create_user", "committed"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", http.MethodGet, 200, time.Millisecond)
	m.RecordError("/x", http.MethodGet, "NOT_FOUND")
	m.RecordCommand("create_user", "committed", time.Millisecond)
	assert.Nil(t, m.Commands())
	assert.Zero(t, m.RequestCount("/x", http.MethodGet, 200))
}
