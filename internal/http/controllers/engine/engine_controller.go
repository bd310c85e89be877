// Package engine contiene el controller que usa el motor de firma.
package engine

import (
	"net/http"

	httperrors "github.com/dropDatabas3/igloo/internal/http/errors"
	"github.com/dropDatabas3/igloo/internal/http/helpers"
	svc "github.com/dropDatabas3/igloo/internal/http/services/engine"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// Controller maneja GET /engine/next.
type Controller struct {
	service svc.Service
}

// NewController crea el controller.
func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// Next entrega la próxima solicitud al motor, o 204 si el long-poll venció.
func (c *Controller) Next(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok, err := c.service.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// el motor cortó la conexión
			return
		}
		logger.From(ctx).Error("engine poll failed",
			logger.Layer("controller"),
			logger.Op("EngineController.Next"),
			logger.Err(err),
		)
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, req)
}
