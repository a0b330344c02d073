package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/iam-service/internal/observability"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	deps        map[string]Pinger
	loaded      func() bool
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance. loaded reports whether the
// entity store has been hydrated; deps are pinged on every readiness probe.
func NewHealthHandler(serviceName, version string, loaded func() bool, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps, loaded: loaded}
}

// WithMetrics exposes counters on the metrics endpoint.
func (h *HealthHandler) WithMetrics(m *observability.Metrics) *HealthHandler {
	h.metrics = m
	return h
}

// Metrics reports settled command counts and mean latency.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	commands := h.metrics.Commands()
	if commands == nil {
		commands = []observability.CommandStats{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"commands": commands}})
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if h.loaded != nil && !h.loaded() {
		depStatus["store"] = "not loaded"
		ready = false
	} else {
		depStatus["store"] = "ok"
	}

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.deps[name].Ping(ctx); err != nil {
			depStatus[name] = err.Error()
			ready = false
		} else {
			depStatus[name] = "ok"
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
