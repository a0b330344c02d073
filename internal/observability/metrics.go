package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	commandCount  map[string]int64
	commandTiming map[string]time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		commandCount:  make(map[string]int64),
		commandTiming: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordCommand counts a settled command by kind and final state.
func (m *Metrics) RecordCommand(kind, state string, duration time.Duration) {
	if m == nil {
		return
	}
	key := kind + "|" + state
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandCount[key]++
	m.commandTiming[key] += duration
}

// CommandCount returns how many commands of kind settled in state.
func (m *Metrics) CommandCount(kind, state string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commandCount[kind+"|"+state]
}

// RequestCount returns the request counter for one route and status.
func (m *Metrics) RequestCount(path, method string, status int) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount[pathKey(path, method, status)]
}

// CommandStats summarizes settled commands of one kind and final state.
type CommandStats struct {
	Kind        string        `json:"kind"`
	State       string        `json:"state"`
	Count       int64         `json:"count"`
	MeanLatency time.Duration `json:"meanLatencyNs"`
}

// Commands returns per kind/state command stats ordered by kind then state.
func (m *Metrics) Commands() []CommandStats {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CommandStats, 0, len(m.commandCount))
	for key, count := range m.commandCount {
		kind, state, _ := strings.Cut(key, "|")
		out = append(out, CommandStats{
			Kind:        kind,
			State:       state,
			Count:       count,
			MeanLatency: m.commandTiming[key] / time.Duration(count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].State < out[j].State
	})
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
