// Package audit registra las acciones administrativas sobre el dispatcher
// (reset, transiciones de salud manuales) en un logger dedicado.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// Eventos auditados.
const (
	EventReset         = "dispatcher.reset"
	EventMarkHealthy   = "engine.mark_healthy"
	EventMarkUnhealthy = "engine.mark_unhealthy"
)

// Origen de la acción.
const (
	SourceHTTP   = "http"
	SourceSocket = "socket"
)

// Log escribe un evento de auditoría. Toma el request_id del logger del
// contexto si lo hay.
func Log(ctx context.Context, event, source string, fields ...zap.Field) {
	l := logger.From(ctx).Named("audit")
	l.Info(event, append([]zap.Field{
		logger.String("event", event),
		logger.String("source", source),
	}, fields...)...)
}
