// Package clock abstrae el tiempo para que timers y ventanas sean testeables.
//
// En producción se inyecta Real(); en tests Fake(t0), que solo avanza con Advance.
package clock

import "time"

// Clock es la parte del paquete time que usa el dispatcher.
type Clock interface {
	Now() time.Time
	// AfterFunc llama f cuando pasa d. El Timer retornado permite cancelarlo.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer es un evento programado por AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop evita que el timer dispare. Retorna false si ya disparó o ya estaba detenido.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real retorna un Clock respaldado por el paquete time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
