// Package nip55 contiene el controller del bridge HTTP de firmado.
package nip55

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dropDatabas3/igloo/internal/dispatch"
	dto "github.com/dropDatabas3/igloo/internal/http/dto/nip55"
	httperrors "github.com/dropDatabas3/igloo/internal/http/errors"
	"github.com/dropDatabas3/igloo/internal/http/helpers"
	svc "github.com/dropDatabas3/igloo/internal/http/services/nip55"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// Controller maneja POST /nip55 y POST /nip55/result.
type Controller struct {
	service svc.Service
}

// NewController crea el controller.
func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// Submit maneja POST /nip55.
//
//	200 Result          el callback llegó dentro de la espera
//	202 processing      la espera venció; reintentar con el mismo contenido
//	400                 body o solicitud inválida
//	429 + Retry-After   calling app sobre su límite
func (c *Controller) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("NIP55Controller.Submit"))

	var body dto.SubmitRequest
	if !helpers.ReadJSON(w, r, &body) {
		return
	}

	out, err := c.service.Submit(ctx, body.ToRequest())
	if err != nil {
		var rl *dispatch.RateLimitError
		switch {
		case errors.As(err, &rl):
			w.Header().Set("Retry-After", retryAfterSeconds(rl))
			httperrors.WriteError(w, httperrors.ErrRateLimitExceeded.WithDetail(rl.Error()))
		case errors.Is(err, svc.ErrRejected):
			httperrors.WriteError(w, httperrors.ErrInvalidRequest.WithDetail(
				strings.TrimPrefix(err.Error(), svc.ErrRejected.Error()+": ")))
		default:
			log.Error("submit failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}

	if out.Result == nil {
		helpers.WriteJSON(w, http.StatusAccepted, dto.ProcessingResponse{Status: dto.StatusProcessing, ID: out.ID})
		return
	}
	log.Debug("submit answered", logger.RequestID(out.ID), logger.Outcome(out.Outcome.String()))
	helpers.WriteJSON(w, http.StatusOK, out.Result)
}

// Deliver maneja POST /nip55/result.
func (c *Controller) Deliver(w http.ResponseWriter, r *http.Request) {
	var body dto.DeliverRequest
	if !helpers.ReadJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("id is required"))
		return
	}
	ok := c.service.Deliver(r.Context(), body.ID, body.Result)
	helpers.WriteJSON(w, http.StatusOK, dto.DeliverResponse{Delivered: ok})
}

func retryAfterSeconds(rl *dispatch.RateLimitError) string {
	secs := int(math.Ceil(rl.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
