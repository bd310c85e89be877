// Package engine contiene el service que sirve solicitudes al motor de firma
// por long-poll.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// DefaultPoll es la duración por defecto del long-poll.
const DefaultPoll = 25 * time.Second

// Source entrega la próxima solicitud pendiente (executor.Bridge).
type Source interface {
	Next(ctx context.Context) (nip55.Request, error)
}

// Heartbeat es la señal de vida del motor (Dispatcher.MarkHealthy).
type Heartbeat interface {
	MarkHealthy()
}

// Service define las operaciones del lado motor.
type Service interface {
	// Next espera hasta Poll por una solicitud. ok=false si no hubo ninguna.
	Next(ctx context.Context) (req nip55.Request, ok bool, err error)
}

// Deps contiene las dependencias inyectables del service.
type Deps struct {
	Source    Source
	Heartbeat Heartbeat // nil = el poll no renueva la salud
	Poll      time.Duration
}

type service struct {
	deps Deps
}

// NewService crea el service del motor.
func NewService(deps Deps) Service {
	if deps.Poll <= 0 {
		deps.Poll = DefaultPoll
	}
	return &service{deps: deps}
}

func (s *service) Next(ctx context.Context) (nip55.Request, bool, error) {
	// Cada poll cuenta como latido: un motor que consulta está vivo.
	if s.deps.Heartbeat != nil {
		s.deps.Heartbeat.MarkHealthy()
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.deps.Poll)
	defer cancel()

	req, err := s.deps.Source.Next(pollCtx)
	switch {
	case err == nil:
		logger.From(ctx).Debug("request handed to engine",
			logger.Layer("service"),
			logger.Component("engine"),
			logger.RequestID(req.ID),
			logger.ReqType(string(req.Type)),
		)
		return req, true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nip55.Request{}, false, nil
	default:
		return nip55.Request{}, false, err
	}
}
