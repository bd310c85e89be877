// Package ipc expone el dispatcher por un socket Unix local con CBOR.
//
// Cada conexión lleva exactamente un ciclo request/response: el cliente escribe
// un mapa CBOR con el campo "action", el servidor contesta con un Response y
// cierra. CBOR se auto-delimita, no hace falta framing.
package ipc

import (
	"fmt"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

// Acciones del protocolo.
const (
	ActionPing          = "ping"
	ActionSubmit        = "submit"
	ActionDeliver       = "deliver"
	ActionMarkHealthy   = "mark_healthy"
	ActionMarkUnhealthy = "mark_unhealthy"
	ActionHealth        = "health"
	ActionStats         = "stats"
	ActionReset         = "reset"
)

// Códigos de error estables en Response.Code.
const (
	CodeInvalid     = "invalid"
	CodeRateLimited = "rate_limited"
	CodeBadRequest  = "bad_request"
	CodeInternal    = "internal"
)

// Response es el sobre de toda respuesta.
type Response struct {
	OK    bool       `cbor:"ok"`
	Code  string     `cbor:"code,omitempty"`
	Error string     `cbor:"error,omitempty"`
	Data  RawMessage `cbor:"data,omitempty"`
	// Solo con Code = rate_limited.
	RetryAfterMs int64 `cbor:"retry_after_ms,omitempty"`
}

// SubmitArgs son los campos de la acción submit. WaitMs 0 usa la espera del
// servidor.
type SubmitArgs struct {
	Request nip55.Request `cbor:"request"`
	WaitMs  int64         `cbor:"wait_ms,omitempty"`
}

// SubmitReply es la respuesta de submit. Result nil significa "processing".
type SubmitReply struct {
	ID      string        `cbor:"id"`
	Outcome string        `cbor:"outcome"`
	Result  *nip55.Result `cbor:"result,omitempty"`
}

// DeliverArgs son los campos de la acción deliver.
type DeliverArgs struct {
	ID     string       `cbor:"id"`
	Result nip55.Result `cbor:"result"`
}

// DeliverReply indica si el resultado encontró un request pendiente.
type DeliverReply struct {
	Delivered bool `cbor:"delivered"`
}

// HealthReply describe la salud del motor.
type HealthReply struct {
	Healthy bool   `cbor:"healthy"`
	State   string `cbor:"state"`
}

// ServiceError es una respuesta ok=false del servidor.
type ServiceError struct {
	Action       string
	Code         string
	Message      string
	RetryAfterMs int64
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ipc: %s failed (%s): %s", e.Action, e.Code, e.Message)
	}
	return fmt.Sprintf("ipc: %s failed: %s", e.Action, e.Message)
}
