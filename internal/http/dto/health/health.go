// Package health contiene los DTOs de estado y administración.
package health

// HealthResponse es la respuesta de GET /health y de los POST de transición.
type HealthResponse struct {
	Healthy bool   `json:"healthy"`
	State   string `json:"state"`
	// Timeout de decaimiento; "0s" o negativo si nunca decae.
	Timeout string `json:"timeout"`
}

// ComponentStatus describe un componente en /readyz.
type ComponentStatus struct {
	Status  string `json:"status"` // ok | error
	Message string `json:"message,omitempty"`
}

// ReadyResponse es la respuesta de GET /readyz.
type ReadyResponse struct {
	Status     string                     `json:"status"` // ready | unavailable
	Components map[string]ComponentStatus `json:"components"`
}

// ResetResponse es la respuesta de POST /reset.
type ResetResponse struct {
	Status string `json:"status"`
}
