package dispatch

import (
	"context"
	"errors"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

var (
	// ErrDeferred lo retorna un Executor cuando aceptó la solicitud pero el resultado
	// llega más tarde por DeliverResultByRequestId.
	ErrDeferred = errors.New("dispatch: result deferred")

	ErrExecutorBound = errors.New("dispatch: executor already bound")
	ErrDuplicateID   = errors.New("dispatch: request id already pending")
)

// Executor realiza la operación criptográfica. Puede correr solicitudes en paralelo:
// el dispatcher no serializa llamadas.
//
// Un error distinto de ErrDeferred se convierte en {ok:false, reason:err.Error()}.
type Executor interface {
	Execute(ctx context.Context, req nip55.Request) (nip55.Result, error)
}

// ExecutorFunc adapta una función a Executor.
type ExecutorFunc func(ctx context.Context, req nip55.Request) (nip55.Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, req nip55.Request) (nip55.Result, error) {
	return f(ctx, req)
}

// Callback recibe el resultado de una solicitud. Se invoca a lo sumo una vez y
// nunca con el lock del dispatcher tomado.
type Callback func(nip55.Result)
