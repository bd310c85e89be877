package middlewares

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dropDatabas3/igloo/internal/http/errors"
)

// clientIP extrae la IP del cliente, considerando proxies.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// maxPeers acota el mapa de limitadores; al superarlo se descarta el más viejo.
const maxPeers = 4096

type peerEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// PeerThrottle mantiene un token bucket por IP. Protege al proceso de un peer
// local que martilla el puerto; el límite por calling app lo aplica el dispatcher.
type PeerThrottle struct {
	mu    sync.Mutex
	peers map[string]*peerEntry
	rps   rate.Limit
	burst int
	now   func() time.Time
}

// NewPeerThrottle crea el throttle. rps <= 0 lo desactiva.
func NewPeerThrottle(rps float64, burst int) *PeerThrottle {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &PeerThrottle{
		peers: make(map[string]*peerEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		now:   time.Now,
	}
}

func (t *PeerThrottle) limiter(ip string) *rate.Limiter {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if ent, ok := t.peers[ip]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	if len(t.peers) >= maxPeers {
		var oldestIP string
		var oldest time.Time
		for k, ent := range t.peers {
			if oldestIP == "" || ent.lastSeen.Before(oldest) {
				oldestIP, oldest = k, ent.lastSeen
			}
		}
		delete(t.peers, oldestIP)
	}
	lim := rate.NewLimiter(t.rps, t.burst)
	t.peers[ip] = &peerEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup elimina los peers sin actividad desde hace idle.
func (t *PeerThrottle) Cleanup(idle time.Duration) int {
	cutoff := t.now().Add(-idle)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, ent := range t.peers {
		if ent.lastSeen.Before(cutoff) {
			delete(t.peers, k)
			n++
		}
	}
	return n
}

// Len retorna la cantidad de peers con limitador.
func (t *PeerThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// WithThrottle aplica el token bucket por IP. Al rechazar responde 429 con
// Retry-After en segundos. Un throttle nil o con rps <= 0 no limita.
func WithThrottle(t *PeerThrottle) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			r = r.WithContext(setClientIP(r.Context(), ip))

			if t == nil || t.rps <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			res := t.limiter(ip).ReserveN(t.now(), 1)
			if !res.OK() {
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			if delay := res.DelayFrom(t.now()); delay > 0 {
				res.CancelAt(t.now())
				secs := int(math.Ceil(delay.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				errors.WriteError(w, errors.ErrRateLimitExceeded.WithDetail("peer throttled"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
