// Package executor conecta el dispatcher con un motor de firma que vive en otro
// runtime (la app web embebida, otro proceso).
//
// El Bridge no firma nada: deja cada solicitud en un outbox acotado y retorna
// dispatch.ErrDeferred. El motor la retira con Next y devuelve el resultado por
// DeliverResultByRequestId (HTTP o socket).
package executor

import (
	"context"
	"errors"

	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// DefaultOutbox es la capacidad por defecto del outbox.
const DefaultOutbox = 256

var ErrOutboxFull = errors.New("executor: bridge outbox full")

// Binder es la parte del dispatcher que usa Attach/Detach.
type Binder interface {
	BindExecutor(dispatch.Executor) error
	UnbindExecutor()
}

// Bridge implementa dispatch.Executor sobre un outbox que el motor consume.
type Bridge struct {
	outbox chan nip55.Request
}

var _ dispatch.Executor = (*Bridge)(nil)

func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = DefaultOutbox
	}
	return &Bridge{outbox: make(chan nip55.Request, size)}
}

// Execute encola la solicitud para el motor. Nunca bloquea: con el outbox lleno
// la solicitud falla de inmediato.
func (b *Bridge) Execute(ctx context.Context, req nip55.Request) (nip55.Result, error) {
	select {
	case b.outbox <- req:
		return nip55.Result{}, dispatch.ErrDeferred
	default:
		logger.Named("executor").Warn("bridge outbox full",
			logger.RequestID(req.ID),
			logger.Count(cap(b.outbox)),
		)
		return nip55.Result{}, ErrOutboxFull
	}
}

// Next bloquea hasta que haya una solicitud o ctx termine.
func (b *Bridge) Next(ctx context.Context) (nip55.Request, error) {
	select {
	case req := <-b.outbox:
		return req, nil
	case <-ctx.Done():
		return nip55.Request{}, ctx.Err()
	}
}

// Len retorna cuántas solicitudes esperan en el outbox.
func (b *Bridge) Len() int { return len(b.outbox) }

// Attach registra el bridge como executor de d.
func (b *Bridge) Attach(d Binder) error { return d.BindExecutor(b) }

// Detach lo quita. Lo que quedó en el outbox sigue disponible para Next.
func (b *Bridge) Detach(d Binder) { d.UnbindExecutor() }
