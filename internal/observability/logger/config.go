package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultServiceName = "iglood"

// Config configura el logger.
type Config struct {
	Env         string // "dev" (consola) o "prod" (JSON). Default "dev".
	Level       string // debug|info|warn|error. Default "info".
	ServiceName string // Default "iglood".
	Version     string
}

func (c Config) isProd() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "prod")
}

// build arma el logger. Los call sites usan *zap.Logger directo, así que el
// caller reportado es el del propio log (sin skip).
func build(cfg Config) *zap.Logger {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = defaultServiceName
	}

	zcfg := encoderFor(cfg)
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	// stdout queda libre para la salida de la CLI.
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.isProd() {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	l, err := zcfg.Build(opts...)
	if err != nil {
		l = zap.NewNop()
	}
	return l.With(baseFields(cfg)...)
}

// encoderFor elige consola coloreada en dev y JSON ISO8601 en prod.
func encoderFor(cfg Config) zap.Config {
	if cfg.isProd() {
		zcfg := zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		return zcfg
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zcfg.DisableStacktrace = true
	return zcfg
}

func baseFields(cfg Config) []zap.Field {
	fields := []zap.Field{zap.String("service", cfg.ServiceName)}
	if cfg.Version != "" {
		fields = append(fields, zap.String("version", cfg.Version))
	}
	return fields
}

// parseLevel convierte un string a zapcore.Level; lo desconocido es info.
func parseLevel(lvl string) zapcore.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}
