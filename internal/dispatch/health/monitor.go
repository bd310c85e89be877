// Package health sigue si el motor de firma está usable.
//
// La salud decae sola: MarkHealthy arma un timer single-shot y, si nadie lo renueva
// antes de que venza, el estado pasa a Unhealthy. Es la única transición implícita.
package health

import (
	"sync"
	"time"

	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

// State es el estado del motor.
type State int

const (
	Unhealthy State = iota
	Healthy
)

func (s State) String() string {
	if s == Healthy {
		return "healthy"
	}
	return "unhealthy"
}

// DefaultTimeout se usa cuando Config.Timeout es 0.
const DefaultTimeout = 5 * time.Minute

// Config configura el Monitor.
type Config struct {
	// Timeout sin renovación tras el cual el motor se considera caído.
	// Negativo desactiva el decaimiento.
	Timeout time.Duration
	Clock   clock.Clock

	// OnHealthy se invoca (fuera del lock) en cada MarkHealthy, haya cambio o no.
	OnHealthy func()
	// OnChange se invoca (fuera del lock) solo cuando el estado cambia.
	OnChange func(State)
}

// Monitor es seguro para uso concurrente.
type Monitor struct {
	mu      sync.Mutex
	state   State
	timer   *clock.Timer
	gen     uint64
	timeout time.Duration
	clock   clock.Clock

	onHealthy func()
	onChange  func(State)
}

// New crea un Monitor en estado Unhealthy.
func New(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Monitor{
		state:     Unhealthy,
		timeout:   cfg.Timeout,
		clock:     cfg.Clock,
		onHealthy: cfg.OnHealthy,
		onChange:  cfg.OnChange,
	}
}

// MarkHealthy pasa a Healthy y re-arma el timer. El timer anterior se cancela;
// nunca hay más de uno pendiente.
func (m *Monitor) MarkHealthy() {
	m.mu.Lock()
	prev := m.state
	m.state = Healthy
	m.stopTimerLocked()
	m.gen++
	if m.timeout > 0 {
		gen := m.gen
		m.timer = m.clock.AfterFunc(m.timeout, func() { m.expire(gen) })
	}
	m.mu.Unlock()

	if prev != Healthy {
		logger.Named("health").Info("signing engine state changed", logger.Healthy(true))
		m.notify(Healthy)
	}
	if m.onHealthy != nil {
		m.onHealthy()
	}
}

// MarkUnhealthy pasa a Unhealthy y cancela el timer.
func (m *Monitor) MarkUnhealthy() {
	m.mu.Lock()
	prev := m.state
	m.state = Unhealthy
	m.stopTimerLocked()
	m.gen++
	m.mu.Unlock()

	if prev != Unhealthy {
		logger.Named("health").Info("signing engine state changed", logger.Healthy(false))
		m.notify(Unhealthy)
	}
}

// IsHealthy retorna el estado actual sin efectos secundarios.
func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Healthy
}

// State retorna el estado actual.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Timeout retorna la ventana de renovación configurada.
func (m *Monitor) Timeout() time.Duration { return m.timeout }

// expire corre cuando vence el timer de la generación gen.
// Un timer reemplazado por un re-arm no debe tocar el estado.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Healthy {
		m.mu.Unlock()
		return
	}
	m.state = Unhealthy
	m.timer = nil
	m.mu.Unlock()

	logger.Named("health").Warn("signing engine health expired",
		logger.Healthy(false),
		logger.String("timeout", m.timeout.String()),
	)
	m.notify(Unhealthy)
}

func (m *Monitor) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) notify(s State) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
