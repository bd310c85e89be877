package dispatch

import (
	"context"
	"time"

	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/nip55"
)

// Submitter es la parte del Dispatcher que usa Await.
type Submitter interface {
	SubmitWithOutcome(ctx context.Context, req nip55.Request, cb Callback) (Outcome, error)
}

// Await somete req y bloquea hasta el callback, hasta que pase wait o hasta que
// ctx termine. res es nil si el resultado no llegó a tiempo; la solicitud sigue
// pendiente y su resultado se cachea igual.
//
// El submit no hereda la cancelación de ctx: un caller que se va no debe
// impedir que el resultado se cachee para el reintento.
func Await(ctx context.Context, s Submitter, clk clock.Clock, req nip55.Request, wait time.Duration) (Outcome, *nip55.Result, error) {
	if clk == nil {
		clk = clock.Real()
	}

	done := make(chan nip55.Result, 1)
	cb := func(res nip55.Result) {
		select {
		case done <- res:
		default:
		}
	}

	o, err := s.SubmitWithOutcome(context.WithoutCancel(ctx), req, cb)
	if !o.Accepted() {
		return o, nil, err
	}

	// Cache hit: el callback ya corrió.
	select {
	case res := <-done:
		return o, &res, nil
	default:
	}
	if wait <= 0 {
		return o, nil, nil
	}

	expired := make(chan struct{})
	timer := clk.AfterFunc(wait, func() { close(expired) })
	defer timer.Stop()

	select {
	case res := <-done:
		return o, &res, nil
	case <-expired:
	case <-ctx.Done():
	}
	return o, nil, nil
}
