package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "storefront-builder-service"

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

// Stats reports load figures shown by Ready
type Stats func() map[string]interface{}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks map[string]Check
	stats  Stats
}

// NewHealthHandler creates a new health handler. checks are run by Ready;
// stats may be nil.
func NewHealthHandler(checks map[string]Check, stats Stats) *HealthHandler {
	return &HealthHandler{checks: checks, stats: stats}
}

// Health handles the health check endpoint
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// Ready reports ready only when every dependency answers
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	body := gin.H{
		"status":       state,
		"service":      serviceName,
		"dependencies": results,
	}
	if h.stats != nil {
		body["generation"] = h.stats()
	}
	c.JSON(status, body)
}
