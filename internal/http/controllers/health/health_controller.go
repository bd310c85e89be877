// Package health contiene el controller de salud y administración.
package health

import (
	"net/http"

	dto "github.com/dropDatabas3/igloo/internal/http/dto/health"
	"github.com/dropDatabas3/igloo/internal/http/helpers"
	svc "github.com/dropDatabas3/igloo/internal/http/services/health"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// Controller maneja /health, /stats, /reset, /readyz y /ping.
type Controller struct {
	service svc.Service
}

// NewController crea el controller.
func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// Ping maneja GET /ping.
func (c *Controller) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// Health maneja GET /health
func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, c.service.Health(r.Context()))
}

// MarkHealthy maneja POST /health/healthy
func (c *Controller) MarkHealthy(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, c.service.MarkHealthy(r.Context()))
}

// MarkUnhealthy maneja POST /health/unhealthy
func (c *Controller) MarkUnhealthy(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, c.service.MarkUnhealthy(r.Context()))
}

// Stats maneja GET /stats
func (c *Controller) Stats(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, c.service.Stats(r.Context()))
}

// Reset maneja POST /reset
func (c *Controller) Reset(w http.ResponseWriter, r *http.Request) {
	c.service.Reset(r.Context())
	helpers.WriteJSON(w, http.StatusOK, dto.ResetResponse{Status: "ok"})
}

// Readyz maneja GET /readyz
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := c.service.Ready(ctx)

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	logger.From(ctx).Debug("readiness check completed",
		logger.Layer("controller"),
		logger.Op("HealthController.Readyz"),
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)),
	)
	helpers.WriteJSON(w, status, resp)
}
