// Package dispatch coordina las solicitudes NIP-55 hacia el motor de firma.
//
// El Dispatcher es el único componente con el que hablan los transportes: valida,
// limita por calling app, corta duplicados con el cache, encola mientras el motor no
// está sano y garantiza que cada request id reciba a lo sumo un callback, aunque el
// resultado llegue desde otro proceso por DeliverResultByRequestId.
//
// Todo el estado compartido vive bajo un solo mutex. El executor y los callbacks
// siempre se invocan fuera de él.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/igloo/internal/cache"
	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/dispatch/dedup"
	"github.com/dropDatabas3/igloo/internal/dispatch/health"
	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
	"github.com/dropDatabas3/igloo/internal/rate"
)

// Razones de fallo generadas por el propio dispatcher.
const (
	ReasonExpired  = "request expired"
	ReasonTimedOut = "execution timed out"
)

// Config agrupa dependencias y tiempos del Dispatcher. Los campos nil usan defaults
// en memoria.
type Config struct {
	Cache    cache.ResultCache
	Limiter  rate.Limiter
	Recorder Recorder
	Clock    clock.Clock
	Logger   *zap.Logger

	HealthTimeout time.Duration // 0 = health.DefaultTimeout
	CacheTTL      time.Duration // 0 = default del backend
	QueueTTL      time.Duration // 0 = espera indefinida
	ExecTimeout   time.Duration // 0 = sin límite
	MaxRequestAge time.Duration // 0 = sin chequeo de timestamp
}

type entryState int

const (
	stateQueued entryState = iota
	stateDispatched
	stateDone
)

// entry es una solicitud registrada esperando resultado.
type entry struct {
	req          nip55.Request
	key          string
	cb           Callback
	enqueuedAt   time.Time
	dispatchedAt time.Time
	state        entryState
	// followers son solicitudes con la misma clave adjuntadas a esta ejecución.
	followers []*entry
}

type Dispatcher struct {
	cache   cache.ResultCache
	limiter rate.Limiter
	rec     Recorder
	clock   clock.Clock
	log     *zap.Logger
	health  *health.Monitor

	cacheTTL    time.Duration
	queueTTL    time.Duration
	execTimeout time.Duration
	maxAge      time.Duration

	mu       sync.Mutex
	exec     Executor
	queue    []*entry          // FIFO de solicitudes sin despachar
	pending  map[string]*entry // request id -> entry (encoladas y despachadas)
	// admitting reserva el id mientras pasa por rate limit y cache, valor = gen.
	admitting map[string]uint64
	inflight map[string]*entry // dedup key -> ejecución líder
	running  int
	gen      uint64

	drainMu     sync.Mutex
	drainWanted atomic.Bool

	// spawn lanza una ejecución; los tests lo reemplazan para correr en línea.
	spawn func(func())

	stats counters
}

// New crea un Dispatcher en estado Unhealthy y sin executor.
func New(cfg Config) *Dispatcher {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory(cfg.CacheTTL)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.Noop{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("dispatch")
	}

	d := &Dispatcher{
		cache:       cfg.Cache,
		limiter:     cfg.Limiter,
		rec:         cfg.Recorder,
		clock:       cfg.Clock,
		log:         cfg.Logger,
		cacheTTL:    cfg.CacheTTL,
		queueTTL:    cfg.QueueTTL,
		execTimeout: cfg.ExecTimeout,
		maxAge:      cfg.MaxRequestAge,
		pending:     make(map[string]*entry),
		admitting:   make(map[string]uint64),
		inflight:    make(map[string]*entry),
		spawn:       func(f func()) { go f() },
	}
	d.health = health.New(health.Config{
		Timeout:   cfg.HealthTimeout,
		Clock:     cfg.Clock,
		OnHealthy: d.drain,
		OnChange:  func(s health.State) { d.rec.SetHealthy(s == health.Healthy) },
	})
	return d
}

// ─── Health ───

// MarkHealthy renueva la salud del motor y drena la cola.
func (d *Dispatcher) MarkHealthy() { d.health.MarkHealthy() }

// MarkUnhealthy detiene el despacho; las nuevas solicitudes se encolan.
func (d *Dispatcher) MarkUnhealthy() { d.health.MarkUnhealthy() }

func (d *Dispatcher) IsHealthy() bool { return d.health.IsHealthy() }

// Health expone el monitor (solo lectura de timeout/estado).
func (d *Dispatcher) Health() *health.Monitor { return d.health }

// ─── Executor ───

// BindExecutor registra el executor. Solo puede haber uno a la vez.
func (d *Dispatcher) BindExecutor(e Executor) error {
	if e == nil {
		return errors.New("dispatch: nil executor")
	}
	d.mu.Lock()
	if d.exec != nil {
		d.mu.Unlock()
		return ErrExecutorBound
	}
	d.exec = e
	d.mu.Unlock()

	d.log.Info("executor bound")
	d.drain()
	return nil
}

// UnbindExecutor quita el executor. Las ejecuciones en vuelo siguen su curso.
func (d *Dispatcher) UnbindExecutor() {
	d.mu.Lock()
	had := d.exec != nil
	d.exec = nil
	d.mu.Unlock()
	if had {
		d.log.Info("executor unbound")
	}
}

func (d *Dispatcher) canDispatchLocked() bool {
	return d.exec != nil && d.health.IsHealthy()
}

// ─── Submit ───

// Submit admite una solicitud. Retorna false si fue rechazada (inválida o por rate
// limit); en ese caso cb nunca se invoca.
func (d *Dispatcher) Submit(req nip55.Request, cb Callback) bool {
	o, _ := d.SubmitWithOutcome(context.Background(), req, cb)
	return o.Accepted()
}

// SubmitWithOutcome es Submit con el detalle del destino. El error acompaña a
// Invalid (error de validación) y a RateLimited (*RateLimitError).
func (d *Dispatcher) SubmitWithOutcome(ctx context.Context, req nip55.Request, cb Callback) (Outcome, error) {
	d.stats.submitted.Add(1)
	o, err := d.submit(ctx, req, cb)
	d.stats.outcome(o)
	d.rec.ObserveSubmit(req.Type, o)

	fields := []zap.Field{
		logger.RequestID(req.ID),
		logger.CallingApp(req.CallingApp),
		logger.ReqType(string(req.Type)),
		logger.Outcome(o.String()),
	}
	if err != nil {
		fields = append(fields, logger.Err(err))
	}
	d.log.Debug("submit", fields...)
	return o, err
}

func (d *Dispatcher) submit(ctx context.Context, req nip55.Request, cb Callback) (Outcome, error) {
	// 1. validación
	if err := nip55.Validate(req); err != nil {
		return Invalid, err
	}
	if err := nip55.CheckAge(req, d.clock.Now(), d.maxAge); err != nil {
		return Invalid, err
	}
	gen, ok := d.reserveID(req.ID)
	if !ok {
		return Invalid, fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}
	if cb == nil {
		cb = func(nip55.Result) {}
	}

	// 2. rate limit por calling app. Cuenta toda llamada admitida hasta acá,
	// incluidos los cache hits y los intentos rechazados.
	rl, err := d.limiter.Allow(ctx, rateKey(req.CallingApp))
	if err != nil {
		// fail-open: un backend caído no debe tumbar el firmado
		d.log.Warn("rate limiter unavailable", logger.Err(err))
	} else if !rl.Allowed {
		d.releaseID(req.ID, gen)
		return RateLimited, &RateLimitError{CallingApp: req.CallingApp, RetryAfter: rl.RetryAfter}
	}

	// 3. cache
	key := dedup.ForRequest(req)
	if res, ok := d.cacheGet(ctx, key); ok {
		d.releaseID(req.ID, gen)
		d.rec.ObserveCacheHit(req.Type)
		d.invoke(cb, res.WithID(req.ID))
		return CacheHit, nil
	}

	// 4/5. despacho o cola
	e := &entry{req: req, key: key, cb: cb, enqueuedAt: d.clock.Now()}

	d.mu.Lock()
	d.releaseLocked(req.ID, gen)
	if _, dup := d.pending[req.ID]; dup {
		// solo tras un Reset concurrente
		d.mu.Unlock()
		return Invalid, fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}
	d.pending[req.ID] = e

	if len(d.queue) == 0 && d.canDispatchLocked() {
		exec, o := d.dispatchLocked(e)
		d.mu.Unlock()
		if exec != nil {
			d.spawn(func() { d.run(e, exec) })
		}
		d.publishGauges()
		return o, nil
	}

	// Con cola no vacía se respeta FIFO aunque el motor esté sano.
	d.queue = append(d.queue, e)
	drainNow := d.canDispatchLocked()
	d.mu.Unlock()

	d.publishGauges()
	if drainNow {
		d.drain()
	}
	return Queued, nil
}

func rateKey(app string) string {
	if app == "" {
		return "anonymous"
	}
	return app
}

// reserveID rechaza ids ya registrados o en admisión y reserva id. La reserva
// hace que un duplicado se rechace antes de consumir rate limit.
func (d *Dispatcher) reserveID(id string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[id]; ok {
		return 0, false
	}
	if _, ok := d.admitting[id]; ok {
		return 0, false
	}
	d.admitting[id] = d.gen
	return d.gen, true
}

func (d *Dispatcher) releaseID(id string, gen uint64) {
	d.mu.Lock()
	d.releaseLocked(id, gen)
	d.mu.Unlock()
}

// releaseLocked no toca reservas hechas después de un Reset.
func (d *Dispatcher) releaseLocked(id string, gen uint64) {
	if g, ok := d.admitting[id]; ok && g == gen {
		delete(d.admitting, id)
	}
}

// dispatchLocked marca e como despachada. Retorna el executor a invocar, o nil si
// e quedó adjuntada a una ejecución en vuelo con la misma clave.
func (d *Dispatcher) dispatchLocked(e *entry) (Executor, Outcome) {
	e.state = stateDispatched
	e.dispatchedAt = d.clock.Now()
	d.running++

	if leader, ok := d.inflight[e.key]; ok && leader != e {
		leader.followers = append(leader.followers, e)
		return nil, Coalesced
	}
	d.inflight[e.key] = e
	return d.exec, Dispatched
}

// ─── Drain ───

// drain procesa la cola si el motor está sano y hay executor. Solo un drain corre a
// la vez; un pedido concurrente se absorbe en la siguiente vuelta del que ya corre.
func (d *Dispatcher) drain() {
	d.drainWanted.Store(true)
	for d.drainWanted.Load() {
		if !d.drainMu.TryLock() {
			return
		}
		d.drainWanted.Store(false)
		d.drainQueue()
		d.drainMu.Unlock()
	}
}

func (d *Dispatcher) drainQueue() {
	ctx := context.Background()
	drained := 0
	defer func() {
		if drained > 0 {
			d.log.Debug("queue drained", logger.Count(drained))
			d.publishGauges()
		}
	}()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 || !d.canDispatchLocked() {
			d.mu.Unlock()
			return
		}
		e := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		drained++

		if d.queueTTL > 0 && d.clock.Now().Sub(e.enqueuedAt) > d.queueTTL {
			if d.complete(e, nip55.Failure(e.req, ReasonExpired), false) {
				d.stats.expired.Add(1)
				d.rec.ObserveExpired(e.req.Type)
			}
			continue
		}

		// Mientras esperaba pudo llegar el resultado de un duplicado.
		if res, ok := d.cacheGet(ctx, e.key); ok {
			if d.complete(e, res, false) {
				d.stats.cacheHits.Add(1)
				d.rec.ObserveCacheHit(e.req.Type)
			}
			continue
		}

		d.mu.Lock()
		if e.state != stateQueued {
			// entregado o reseteado mientras estaba fuera de la cola
			d.mu.Unlock()
			continue
		}
		if !d.canDispatchLocked() {
			d.queue = append([]*entry{e}, d.queue...)
			d.mu.Unlock()
			return
		}
		exec, o := d.dispatchLocked(e)
		d.mu.Unlock()

		d.stats.outcome(o)
		if exec != nil {
			d.spawn(func() { d.run(e, exec) })
		}
	}
}

// ─── Ejecución y completado ───

func (d *Dispatcher) run(e *entry, exec Executor) {
	ctx := context.Background()
	var timer *clock.Timer
	if d.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.execTimeout)
		defer cancel()
		timer = d.clock.AfterFunc(d.execTimeout, func() {
			if d.complete(e, nip55.Failure(e.req, ReasonTimedOut), false) {
				d.log.Warn("execution timed out",
					logger.RequestID(e.req.ID),
					logger.ReqType(string(e.req.Type)),
				)
			}
		})
	}

	res, err := d.execute(ctx, exec, e.req)
	if errors.Is(err, ErrDeferred) {
		// El resultado llega por DeliverResultByRequestId; el timer queda armado.
		return
	}
	timer.Stop()

	if err != nil {
		d.log.Warn("executor failed",
			logger.RequestID(e.req.ID),
			logger.ReqType(string(e.req.Type)),
			logger.Err(err),
		)
		d.complete(e, nip55.Failure(e.req, err.Error()), false)
		return
	}
	d.complete(e, fill(res, e.req), true)
}

// execute llama al executor convirtiendo un panic en error.
func (d *Dispatcher) execute(ctx context.Context, exec Executor, req nip55.Request) (res nip55.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
			d.log.Error("executor panic", logger.RequestID(req.ID), logger.Any("panic", r))
		}
	}()
	return exec.Execute(ctx, req)
}

func fill(res nip55.Result, req nip55.Request) nip55.Result {
	if res.Type == "" {
		res.Type = string(req.Type)
	}
	if res.ID == "" {
		res.ID = req.ID
	}
	return res.Normalize()
}

// claimLocked saca e de toda estructura pendiente. Retorna false si otro camino ya
// la completó; así cada request id recibe a lo sumo un callback.
func (d *Dispatcher) claimLocked(e *entry) bool {
	if e.state == stateDone {
		return false
	}
	if d.pending[e.req.ID] == e {
		delete(d.pending, e.req.ID)
	}
	switch e.state {
	case stateQueued:
		for i, q := range d.queue {
			if q == e {
				d.queue = append(d.queue[:i], d.queue[i+1:]...)
				break
			}
		}
	case stateDispatched:
		d.running--
	}
	e.state = stateDone
	return true
}

// collectLocked reclama los followers todavía pendientes de e.
func (d *Dispatcher) collectLocked(e *entry, into []*entry) []*entry {
	for _, f := range e.followers {
		if d.claimLocked(f) {
			into = append(into, f)
		}
	}
	e.followers = nil
	return into
}

// complete entrega res a e y a sus followers. Si cacheIt, guarda res bajo la clave
// de e antes de soltar la marca de ejecución en vuelo, para que un duplicado que
// llegue en el medio se adjunte en vez de re-ejecutar.
func (d *Dispatcher) complete(e *entry, res nip55.Result, cacheIt bool) bool {
	d.mu.Lock()
	if !d.claimLocked(e) {
		d.mu.Unlock()
		return false
	}
	gen := d.gen
	targets := d.collectLocked(e, []*entry{e})
	d.mu.Unlock()

	if cacheIt {
		d.cachePut(e.key, res)
	}

	d.mu.Lock()
	if d.gen == gen {
		targets = d.collectLocked(e, targets)
		if d.inflight[e.key] == e {
			delete(d.inflight, e.key)
		}
	}
	d.mu.Unlock()

	now := d.clock.Now()
	for _, t := range targets {
		if res.OK {
			d.stats.completed.Add(1)
		} else {
			d.stats.failed.Add(1)
		}
		start := t.dispatchedAt
		if start.IsZero() {
			start = t.enqueuedAt
		}
		d.rec.ObserveCompletion(t.req.Type, res.OK, now.Sub(start))
		d.invoke(t.cb, res.WithID(t.req.ID))
	}
	d.publishGauges()
	return true
}

// DeliverResultByRequestId completa una solicitud desde fuera de su call stack
// original. Retorna false si el id no está pendiente (duplicado, tardío o
// desconocido); no es un error.
func (d *Dispatcher) DeliverResultByRequestId(id string, res nip55.Result) bool {
	d.mu.Lock()
	e, ok := d.pending[id]
	d.mu.Unlock()

	if ok && d.complete(e, fill(res, e.req), true) {
		d.stats.delivered.Add(1)
		return true
	}

	d.stats.lateDeliveries.Add(1)
	d.rec.ObserveLateDelivery()
	d.log.Debug("delivery for unknown request id", logger.RequestID(id))
	return false
}

func (d *Dispatcher) invoke(cb Callback, res nip55.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("callback panic", logger.RequestID(res.ID), logger.Any("panic", r))
		}
	}()
	cb(res)
}

// ─── Cache ───

func (d *Dispatcher) cacheGet(ctx context.Context, key string) (nip55.Result, bool) {
	res, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		d.log.Warn("result cache get failed", logger.DedupKey(key), logger.Err(err))
		return nip55.Result{}, false
	}
	return res, ok
}

func (d *Dispatcher) cachePut(key string, res nip55.Result) {
	if err := d.cache.Put(context.Background(), key, res, d.cacheTTL); err != nil {
		d.log.Warn("result cache put failed", logger.DedupKey(key), logger.Err(err))
	}
}

// ─── Introspección ───

func (d *Dispatcher) PendingQueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// InFlightCount cuenta solicitudes despachadas sin resultado todavía.
func (d *Dispatcher) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) CacheSize() int {
	n, err := d.cache.Len(context.Background())
	if err != nil {
		d.log.Warn("result cache len failed", logger.Err(err))
		return 0
	}
	return n
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	s := Stats{
		ActiveHandler: d.exec != nil,
		PendingQueue:  len(d.queue),
		InFlight:      d.running,
		Registered:    len(d.pending),
	}
	d.mu.Unlock()

	s.Healthy = d.health.IsHealthy()
	s.CacheSize = d.CacheSize()
	d.stats.fill(&s)
	return s
}

func (d *Dispatcher) publishGauges() {
	d.mu.Lock()
	q, r := len(d.queue), d.running
	d.mu.Unlock()
	d.rec.SetQueueDepth(q)
	d.rec.SetInFlight(r)
}

// ─── Reset ───

// Reset vuelve a Unhealthy y limpia cola, registro, cache, contadores de rate
// limit y estadísticas. Los callbacks pendientes se descartan sin invocarse.
// El executor sigue registrado. Cache y limiter se vacían fuera del lock: con
// redis es I/O de red, y un submit concurrente puede quedar en el cache vaciado.
func (d *Dispatcher) Reset() {
	ctx := context.Background()

	d.mu.Lock()
	d.health.MarkUnhealthy()
	for _, e := range d.pending {
		e.state = stateDone
		e.followers = nil
	}
	orphaned := len(d.pending)
	d.queue = nil
	d.pending = make(map[string]*entry)
	d.admitting = make(map[string]uint64)
	d.inflight = make(map[string]*entry)
	d.running = 0
	d.gen++
	d.stats.reset()
	results, limiter := d.cache, d.limiter
	d.mu.Unlock()

	if err := results.Flush(ctx); err != nil {
		d.log.Warn("result cache flush failed", logger.Err(err))
	}
	if err := limiter.Reset(ctx); err != nil {
		d.log.Warn("rate limiter reset failed", logger.Err(err))
	}

	d.publishGauges()
	d.log.Info("dispatcher reset", logger.Count(orphaned))
}
