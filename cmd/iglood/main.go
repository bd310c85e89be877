package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/igloo/internal/app"
	"github.com/dropDatabas3/igloo/internal/config"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// .env opcional; las variables del sistema tienen prioridad
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("IGLOO_CONFIG"), "ruta al config YAML (opcional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	env := "dev"
	if cfg.IsProd() {
		env = "prod"
	}
	logger.Init(logger.Config{
		Env:         env,
		Level:       cfg.Log.Level,
		ServiceName: "iglood",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Error("wiring failed", logger.Err(err))
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", logger.Err(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("iglood starting",
		logger.String("http", cfg.Server.Addr),
		logger.Bool("socket", cfg.Socket.Enabled),
		logger.String("socket_path", cfg.Socket.Path),
		logger.String("cache", cfg.Cache.Kind),
		logger.String("rate", cfg.Rate.Kind),
	)

	if err := a.Run(ctx); err != nil {
		log.Error("server stopped with error", logger.Err(err))
		return 1
	}
	log.Info("iglood stopped")
	return 0
}
