// Package app arma el proceso iglood: cache, rate limit, métricas, dispatcher,
// bridge del motor y los dos transportes (HTTP y socket).
//
// No hay globals: todo cuelga de App y se pasa por referencia.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/igloo/internal/cache"
	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/config"
	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/executor"
	enginectrl "github.com/dropDatabas3/igloo/internal/http/controllers/engine"
	healthctrl "github.com/dropDatabas3/igloo/internal/http/controllers/health"
	nip55ctrl "github.com/dropDatabas3/igloo/internal/http/controllers/nip55"
	mw "github.com/dropDatabas3/igloo/internal/http/middlewares"
	"github.com/dropDatabas3/igloo/internal/http/router"
	enginesvc "github.com/dropDatabas3/igloo/internal/http/services/engine"
	healthsvc "github.com/dropDatabas3/igloo/internal/http/services/health"
	nip55svc "github.com/dropDatabas3/igloo/internal/http/services/nip55"
	"github.com/dropDatabas3/igloo/internal/ipc"
	"github.com/dropDatabas3/igloo/internal/metrics"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
	"github.com/dropDatabas3/igloo/internal/rate"
)

// shutdownTimeout acota el cierre ordenado del servidor HTTP.
const shutdownTimeout = 10 * time.Second

// throttleIdle es cuánto vive el bucket de un peer sin tráfico.
const throttleIdle = 10 * time.Minute

// Options son dependencias opcionales, pensadas para tests.
type Options struct {
	// Registry para las métricas; nil usa el registry global de prometheus.
	Registry *prometheus.Registry
	Clock    clock.Clock
	Logger   *zap.Logger
}

// App es el proceso armado.
type App struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Bridge     *executor.Bridge
	Cache      cache.ResultCache
	Limiter    rate.Limiter
	Throttle   *mw.PeerThrottle
	Handler    http.Handler
	HTTP       *http.Server
	Socket     *ipc.Server // nil con socket.enabled=false

	log     *zap.Logger
	closers []func() error
}

// New construye la App a partir de cfg. No abre puertos: eso lo hace Run.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("app")
	}
	a := &App{Config: cfg, log: opts.Logger}

	// 1. cache de resultados
	rc, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.Cache.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("app: cache: %w", err)
	}
	a.Cache = rc
	a.closers = append(a.closers, rc.Close)

	// 2. rate limit por calling app
	lim, err := a.buildLimiter(cfg, opts.Clock)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: rate limiter: %w", err)
	}
	a.Limiter = lim

	// 3. métricas
	var recorder dispatch.Recorder = dispatch.NopRecorder{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
		if opts.Registry != nil {
			reg, gatherer = opts.Registry, opts.Registry
		}
		if err := metrics.RegisterDispatch(reg); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: metrics: %w", err)
		}
		recorder = metrics.Recorder{}
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	// 4. dispatcher + bridge del motor
	a.Dispatcher = dispatch.New(dispatch.Config{
		Cache:         rc,
		Limiter:       lim,
		Recorder:      recorder,
		Clock:         opts.Clock,
		Logger:        opts.Logger.Named("dispatch"),
		HealthTimeout: cfg.Health.Timeout,
		CacheTTL:      cfg.Cache.TTL,
		QueueTTL:      cfg.Dispatch.QueueTTL,
		ExecTimeout:   cfg.Dispatch.ExecTimeout,
		MaxRequestAge: cfg.Dispatch.MaxRequestAge,
	})
	a.Bridge = executor.NewBridge(cfg.Dispatch.Outbox)
	if err := a.Bridge.Attach(a.Dispatcher); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: bind executor: %w", err)
	}

	// 5. HTTP
	a.Throttle = mw.NewPeerThrottle(cfg.Server.Throttle.RPS, cfg.Server.Throttle.Burst)
	a.Handler = router.New(router.Deps{
		NIP55: nip55ctrl.NewController(nip55svc.NewService(nip55svc.Deps{
			Dispatcher: a.Dispatcher,
			Clock:      opts.Clock,
			Wait:       cfg.Server.WaitTimeout,
		})),
		Engine: enginectrl.NewController(enginesvc.NewService(enginesvc.Deps{
			Source:    a.Bridge,
			Heartbeat: a.Dispatcher,
			Poll:      cfg.Server.EnginePollTimeout,
		})),
		Health: healthctrl.NewController(healthsvc.NewService(healthsvc.Deps{
			Dispatcher: a.Dispatcher,
			Checks: map[string]healthsvc.Check{
				"cache": rc.Ping,
			},
		})),
		Throttle:     a.Throttle,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Metrics:      metricsHandler,
	})
	a.HTTP = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout cubre la espera de POST /nip55 y el long-poll del motor.
		WriteTimeout: maxDur(cfg.Server.WaitTimeout, cfg.Server.EnginePollTimeout) + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 6. socket local
	if cfg.Socket.Enabled {
		a.Socket = ipc.NewServer(ipc.ServerConfig{
			Path:       cfg.Socket.Path,
			Dispatcher: a.Dispatcher,
			Clock:      opts.Clock,
			Wait:       cfg.Server.WaitTimeout,
			Logger:     opts.Logger.Named("ipc"),
		})
	}

	return a, nil
}

func (a *App) buildLimiter(cfg *config.Config, clk clock.Clock) (rate.Limiter, error) {
	if !cfg.Rate.Enabled {
		return rate.Noop{}, nil
	}

	var mk func(max int) rate.Limiter
	switch cfg.Rate.Kind {
	case "redis":
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Rate.Redis.Addr,
			Password: cfg.Rate.Redis.Password,
			DB:       cfg.Rate.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		mk = func(max int) rate.Limiter {
			l := rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix, max, cfg.Rate.Window)
			l.Clock = clk
			return l
		}
	default:
		mk = func(max int) rate.Limiter {
			return rate.NewMemoryLimiter(max, cfg.Rate.Window, clk)
		}
	}

	def := mk(cfg.Rate.MaxRequests)
	if len(cfg.Rate.Overrides) == 0 {
		return def, nil
	}
	pk := rate.NewPerKey(def)
	for app, max := range cfg.Rate.Overrides {
		pk.Set(app, mk(max))
	}
	return pk, nil
}

// Run sirve HTTP y socket hasta que ctx termine o uno de los dos falle.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve es Run sobre un listener ya abierto.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", logger.String("addr", ln.Addr().String()))
		if err := a.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.HTTP.Shutdown(sctx)
	})

	if a.Socket != nil {
		g.Go(func() error { return a.Socket.Serve(ctx) })
	}

	// janitor del throttle por peer
	g.Go(func() error {
		t := time.NewTicker(throttleIdle / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if n := a.Throttle.Cleanup(throttleIdle); n > 0 {
					a.log.Debug("throttle cleanup", logger.Count(n))
				}
			}
		}
	})

	return g.Wait()
}

// Close libera cache y clientes redis. Las callbacks pendientes quedan
// huérfanas, igual que con Reset.
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Bridge.Detach(a.Dispatcher)
		a.Dispatcher.MarkUnhealthy()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
