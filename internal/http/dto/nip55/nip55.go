// Package nip55 contiene los DTOs del bridge HTTP de firmado.
package nip55

import "github.com/dropDatabas3/igloo/internal/nip55"

// SubmitRequest es el body de POST /nip55. ID y Timestamp son opcionales:
// el servicio completa un UUID y la hora actual.
type SubmitRequest struct {
	ID         string            `json:"id"`
	Type       nip55.RequestType `json:"type"`
	Params     nip55.Params      `json:"params"`
	CallingApp string            `json:"callingApp"`
	Timestamp  int64             `json:"timestamp"`
}

// ToRequest convierte el DTO al modelo del dispatcher.
func (s SubmitRequest) ToRequest() nip55.Request {
	return nip55.Request{
		ID:         s.ID,
		Type:       s.Type,
		Params:     s.Params,
		CallingApp: s.CallingApp,
		Timestamp:  s.Timestamp,
	}
}

// StatusProcessing es el status de ProcessingResponse.
const StatusProcessing = "processing"

// ProcessingResponse se devuelve con 202 cuando el resultado no llegó dentro de
// la ventana de espera. El resultado queda en cache para un reintento.
type ProcessingResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// DeliverRequest es el body de POST /nip55/result.
type DeliverRequest struct {
	ID     string       `json:"id"`
	Result nip55.Result `json:"result"`
}

// DeliverResponse indica si el resultado encontró un request pendiente.
type DeliverResponse struct {
	Delivered bool `json:"delivered"`
}
