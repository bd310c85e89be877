// Package nip55 contiene el service que traduce un request HTTP bloqueante al
// modelo de callbacks del dispatcher.
package nip55

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// DefaultWait es la espera por defecto de Submit.
const DefaultWait = 30 * time.Second

// ErrRejected envuelve el error de validación del dispatcher.
var ErrRejected = errors.New("nip55: request rejected")

// Dispatcher es la parte del dispatcher que usa el service.
type Dispatcher interface {
	SubmitWithOutcome(ctx context.Context, req nip55.Request, cb dispatch.Callback) (dispatch.Outcome, error)
	DeliverResultByRequestId(id string, res nip55.Result) bool
}

// SubmitResult es el resultado de Submit. Result es nil si la espera venció
// antes del callback ("processing").
type SubmitResult struct {
	ID      string
	Outcome dispatch.Outcome
	Result  *nip55.Result
}

// Service define las operaciones del bridge de firmado.
type Service interface {
	Submit(ctx context.Context, req nip55.Request) (SubmitResult, error)
	Deliver(ctx context.Context, id string, res nip55.Result) bool
}

// Deps contiene las dependencias inyectables del service.
type Deps struct {
	Dispatcher Dispatcher
	Clock      clock.Clock
	Wait       time.Duration // 0 = DefaultWait
	NewID      func() string // nil = uuid
}

type service struct {
	deps Deps
}

// NewService crea el service de firmado.
func NewService(deps Deps) Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Wait <= 0 {
		deps.Wait = DefaultWait
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &service{deps: deps}
}

const componentNIP55 = "nip55"

func (s *service) Submit(ctx context.Context, req nip55.Request) (SubmitResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentNIP55),
		logger.Op("Submit"),
	)

	if req.ID == "" {
		req.ID = s.deps.NewID()
	}
	if req.Timestamp == 0 {
		req.Timestamp = s.deps.Clock.Now().UnixMilli()
	}

	o, res, err := dispatch.Await(ctx, s.deps.Dispatcher, s.deps.Clock, req, s.deps.Wait)
	out := SubmitResult{ID: req.ID, Outcome: o, Result: res}
	switch o {
	case dispatch.Invalid:
		return out, fmt.Errorf("%w: %w", ErrRejected, err)
	case dispatch.RateLimited:
		return out, err
	}
	if res == nil {
		log.Debug("result not ready, answering processing",
			logger.RequestID(req.ID),
			logger.Wait(s.deps.Wait),
		)
	}
	return out, nil
}

func (s *service) Deliver(ctx context.Context, id string, res nip55.Result) bool {
	ok := s.deps.Dispatcher.DeliverResultByRequestId(id, res)
	if !ok {
		logger.From(ctx).Debug("late or unknown delivery",
			logger.Layer("service"),
			logger.Component(componentNIP55),
			logger.RequestID(id),
		)
	}
	return ok
}
