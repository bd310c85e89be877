// Package logger provee el logger Zap del daemon con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una sola instancia inicializada con Init() desde cmd/iglood.
//   - Context scoping: cada request (HTTP o socket) puede llevar su logger con request_id
//     y calling_app sin crear un core nuevo.
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON.
//   - Niveles: debug, info, warn, error (LOG_LEVEL / log.level).
//
// # Uso
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En el dispatcher y los transportes:
//
//	log := logger.From(ctx)
//	log.Info("request queued", logger.RequestID(req.ID), logger.CallingApp(req.CallingApp))
//
// Sin contexto (fallback a singleton):
//
//	logger.L().Info("daemon started")
package logger
