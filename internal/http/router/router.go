// Package router arma el handler HTTP del bridge local.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	enginectrl "github.com/dropDatabas3/igloo/internal/http/controllers/engine"
	healthctrl "github.com/dropDatabas3/igloo/internal/http/controllers/health"
	nip55ctrl "github.com/dropDatabas3/igloo/internal/http/controllers/nip55"
	httperrors "github.com/dropDatabas3/igloo/internal/http/errors"
	mw "github.com/dropDatabas3/igloo/internal/http/middlewares"
)

// DefaultMaxBodyBytes se usa si Deps.MaxBodyBytes es 0.
const DefaultMaxBodyBytes int64 = 1 << 20

// Deps contiene todo lo que necesita el router.
type Deps struct {
	NIP55  *nip55ctrl.Controller
	Engine *enginectrl.Controller
	Health *healthctrl.Controller

	Throttle     *mw.PeerThrottle // nil = sin throttle por peer
	MaxBodyBytes int64
	Metrics      http.Handler // nil = /metrics deshabilitado
}

// New registra todas las rutas y retorna el handler raíz.
func New(deps Deps) http.Handler {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// Infra: sin logging ni throttle (muy frecuentes)
	r.Get("/ping", deps.Health.Ping)
	r.Get("/readyz", deps.Health.Readyz)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.WithLogging(), mw.WithThrottle(deps.Throttle), mw.WithBodyLimit(maxBody))

		r.Post("/nip55", deps.NIP55.Submit)
		r.Post("/nip55/result", deps.NIP55.Deliver)

		r.Get("/health", deps.Health.Health)
		r.Post("/health/healthy", deps.Health.MarkHealthy)
		r.Post("/health/unhealthy", deps.Health.MarkUnhealthy)
		r.Get("/stats", deps.Health.Stats)
		r.Post("/reset", deps.Health.Reset)
	})

	// El motor hace long-poll continuo; no pasa por el throttle de peers.
	r.Group(func(r chi.Router) {
		r.Use(mw.WithLogging())
		r.Get("/engine/next", deps.Engine.Next)
	})

	return r
}
