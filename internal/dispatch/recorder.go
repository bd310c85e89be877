package dispatch

import (
	"time"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

// Recorder recibe los eventos observables del dispatcher (ver internal/metrics).
// Las implementaciones deben ser seguras para uso concurrente y no bloquear.
type Recorder interface {
	ObserveSubmit(typ nip55.RequestType, o Outcome)
	ObserveCacheHit(typ nip55.RequestType)
	ObserveCompletion(typ nip55.RequestType, ok bool, d time.Duration)
	ObserveLateDelivery()
	ObserveExpired(typ nip55.RequestType)
	SetHealthy(healthy bool)
	SetQueueDepth(n int)
	SetInFlight(n int)
}

// NopRecorder descarta todo.
type NopRecorder struct{}

func (NopRecorder) ObserveSubmit(nip55.RequestType, Outcome)                 {}
func (NopRecorder) ObserveCacheHit(nip55.RequestType)                        {}
func (NopRecorder) ObserveCompletion(nip55.RequestType, bool, time.Duration) {}
func (NopRecorder) ObserveLateDelivery()                                     {}
func (NopRecorder) ObserveExpired(nip55.RequestType)                         {}
func (NopRecorder) SetHealthy(bool)                                          {}
func (NopRecorder) SetQueueDepth(int)                                        {}
func (NopRecorder) SetInFlight(int)                                          {}
