package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - TRANSPORTE
// =================================================================================

// RequestID crea un campo para el ID de la solicitud (NIP-55 o HTTP).
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del peer.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// Action crea un campo para la acción del protocolo de socket.
func Action(v string) zap.Field {
	return zap.String("action", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DISPATCHER
// =================================================================================

// CallingApp crea un campo para la identidad del caller (package/origin).
func CallingApp(v string) zap.Field {
	return zap.String("calling_app", v)
}

// ReqType crea un campo para el tipo de operación (sign_event, nip44_encrypt, ...).
func ReqType(v string) zap.Field {
	return zap.String("req_type", v)
}

// DedupKey crea un campo para la clave de idempotencia.
func DedupKey(v string) zap.Field {
	return zap.String("dedup_key", v)
}

// Outcome crea un campo para el resultado de admisión de un submit.
func Outcome(v string) zap.Field {
	return zap.String("outcome", v)
}

// Healthy crea un campo para el estado del motor.
func Healthy(v bool) zap.Field {
	return zap.Bool("healthy", v)
}

// Wait crea un campo para tiempos de espera en cola.
func Wait(v time.Duration) zap.Field {
	return zap.Duration("wait", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (controller, transport, dispatcher).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
