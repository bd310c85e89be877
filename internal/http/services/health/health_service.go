// Package health contiene el service de salud del motor y administración del
// dispatcher.
package health

import (
	"context"
	"sort"

	"github.com/dropDatabas3/igloo/internal/audit"
	"github.com/dropDatabas3/igloo/internal/dispatch"
	dhealth "github.com/dropDatabas3/igloo/internal/dispatch/health"
	dto "github.com/dropDatabas3/igloo/internal/http/dto/health"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// Dispatcher es la parte del dispatcher que administra este service.
type Dispatcher interface {
	MarkHealthy()
	MarkUnhealthy()
	Health() *dhealth.Monitor
	Stats() dispatch.Stats
	Reset()
}

// Check es un chequeo de readiness (ej: ping a redis).
type Check func(ctx context.Context) error

// Service define las operaciones de salud y administración.
type Service interface {
	Health(ctx context.Context) dto.HealthResponse
	MarkHealthy(ctx context.Context) dto.HealthResponse
	MarkUnhealthy(ctx context.Context) dto.HealthResponse
	Stats(ctx context.Context) dispatch.Stats
	Reset(ctx context.Context)
	Ready(ctx context.Context) dto.ReadyResponse
}

// Deps contiene las dependencias inyectables para el service.
type Deps struct {
	Dispatcher Dispatcher
	Checks     map[string]Check
}

type service struct {
	deps Deps
}

// NewService crea el service de salud.
func NewService(deps Deps) Service {
	return &service{deps: deps}
}

const componentHealth = "health"

func (s *service) Health(context.Context) dto.HealthResponse {
	m := s.deps.Dispatcher.Health()
	return dto.HealthResponse{
		Healthy: m.IsHealthy(),
		State:   m.State().String(),
		Timeout: m.Timeout().String(),
	}
}

func (s *service) MarkHealthy(ctx context.Context) dto.HealthResponse {
	audit.Log(ctx, audit.EventMarkHealthy, audit.SourceHTTP)
	s.deps.Dispatcher.MarkHealthy()
	return s.Health(ctx)
}

func (s *service) MarkUnhealthy(ctx context.Context) dto.HealthResponse {
	audit.Log(ctx, audit.EventMarkUnhealthy, audit.SourceHTTP)
	s.deps.Dispatcher.MarkUnhealthy()
	return s.Health(ctx)
}

func (s *service) Stats(context.Context) dispatch.Stats {
	return s.deps.Dispatcher.Stats()
}

func (s *service) Reset(ctx context.Context) {
	st := s.deps.Dispatcher.Stats()
	audit.Log(ctx, audit.EventReset, audit.SourceHTTP,
		logger.Int("pending", st.PendingQueue),
		logger.Int("in_flight", st.InFlight),
	)
	s.deps.Dispatcher.Reset()
}

func (s *service) Ready(ctx context.Context) dto.ReadyResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentHealth),
		logger.Op("Ready"),
	)

	resp := dto.ReadyResponse{
		Status:     "ready",
		Components: make(map[string]dto.ComponentStatus, len(s.deps.Checks)),
	}

	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.deps.Checks[name](ctx); err != nil {
			resp.Components[name] = dto.ComponentStatus{Status: "error", Message: err.Error()}
			resp.Status = "unavailable"
			log.Error("readiness check failed", logger.String("check", name), logger.Err(err))
			continue
		}
		resp.Components[name] = dto.ComponentStatus{Status: "ok"}
	}
	return resp
}
