package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/nip55"
)

// Métricas del dispatcher. Viven en un paquete aparte para que http e ipc no
// dependan de prometheus.

var (
	SubmitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igloo_submits_total",
		Help: "Solicitudes recibidas por tipo y outcome",
	}, []string{"type", "outcome"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igloo_cache_hits_total",
		Help: "Solicitudes resueltas desde el cache de resultados",
	}, []string{"type"})

	CompletionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igloo_completions_total",
		Help: "Callbacks entregados por tipo y resultado",
	}, []string{"type", "result"}) // result: ok|error

	CompletionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "igloo_completion_latency_ms",
		Help:    "Latencia desde el despacho hasta el resultado, en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	}, []string{"type"})

	LateDeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "igloo_late_deliveries_total",
		Help: "Entregas para request ids desconocidos o ya completados",
	})

	ExpiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igloo_queue_expired_total",
		Help: "Solicitudes vencidas en la cola antes de despacharse",
	}, []string{"type"})

	EngineHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "igloo_engine_healthy",
		Help: "1 si el motor de firma está sano",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "igloo_pending_queue",
		Help: "Solicitudes esperando que el motor esté sano",
	})

	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "igloo_inflight",
		Help: "Solicitudes despachadas sin resultado",
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SubmitsTotal, CacheHitsTotal, CompletionsTotal, CompletionLatency,
		LateDeliveriesTotal, ExpiredTotal, EngineHealthy, QueueDepth, InFlight,
	}
}

// RegisterDispatch registers the dispatcher metrics on the given registry (or default if nil).
func RegisterDispatch(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Recorder implementa dispatch.Recorder sobre las métricas del paquete.
type Recorder struct{}

var _ dispatch.Recorder = Recorder{}

func (Recorder) ObserveSubmit(typ nip55.RequestType, o dispatch.Outcome) {
	SubmitsTotal.WithLabelValues(typeLabel(typ), o.String()).Inc()
}

func (Recorder) ObserveCacheHit(typ nip55.RequestType) {
	CacheHitsTotal.WithLabelValues(typeLabel(typ)).Inc()
}

func (Recorder) ObserveCompletion(typ nip55.RequestType, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	CompletionsTotal.WithLabelValues(typeLabel(typ), result).Inc()
	CompletionLatency.WithLabelValues(typeLabel(typ)).Observe(float64(d.Milliseconds()))
}

func (Recorder) ObserveLateDelivery() { LateDeliveriesTotal.Inc() }

func (Recorder) ObserveExpired(typ nip55.RequestType) {
	ExpiredTotal.WithLabelValues(typeLabel(typ)).Inc()
}

func (Recorder) SetHealthy(healthy bool) {
	if healthy {
		EngineHealthy.Set(1)
		return
	}
	EngineHealthy.Set(0)
}

func (Recorder) SetQueueDepth(n int) { QueueDepth.Set(float64(n)) }
func (Recorder) SetInFlight(n int)   { InFlight.Set(float64(n)) }

// typeLabel acota la cardinalidad: tipos fuera del conjunto fijo van a "unknown".
func typeLabel(t nip55.RequestType) string {
	if t.IsValid() {
		return string(t)
	}
	return "unknown"
}
