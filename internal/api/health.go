package api

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check reports the health of one dependency
type Check func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthHandler creates a health handler over the named checks
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overallStatus := "healthy"
	statusCode := fiber.StatusOK
	results := fiber.Map{}

	for _, name := range names {
		status := h.run(c.UserContext(), h.checks[name])
		results[name] = status
		if status != "healthy" {
			overallStatus = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    results,
	})
}

func (h *HealthHandler) run(ctx context.Context, check Check) string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := check(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
