package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/executor"
	enginectrl "github.com/dropDatabas3/igloo/internal/http/controllers/engine"
	healthctrl "github.com/dropDatabas3/igloo/internal/http/controllers/health"
	nip55ctrl "github.com/dropDatabas3/igloo/internal/http/controllers/nip55"
	nip55dto "github.com/dropDatabas3/igloo/internal/http/dto/nip55"
	mw "github.com/dropDatabas3/igloo/internal/http/middlewares"
	enginesvc "github.com/dropDatabas3/igloo/internal/http/services/engine"
	healthsvc "github.com/dropDatabas3/igloo/internal/http/services/health"
	nip55svc "github.com/dropDatabas3/igloo/internal/http/services/nip55"
	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/rate"
)

type stack struct {
	h      http.Handler
	d      *dispatch.Dispatcher
	bridge *executor.Bridge
}

type opts struct {
	wait    time.Duration
	poll    time.Duration
	limiter rate.Limiter
	checks  map[string]healthsvc.Check
}

func newStack(t *testing.T, o opts) *stack {
	t.Helper()
	if o.wait == 0 {
		o.wait = 2 * time.Second
	}
	if o.poll == 0 {
		o.poll = 2 * time.Second
	}

	d := dispatch.New(dispatch.Config{Limiter: o.limiter})
	t.Cleanup(d.Reset)
	bridge := executor.NewBridge(16)
	require.NoError(t, bridge.Attach(d))

	h := New(Deps{
		NIP55: nip55ctrl.NewController(nip55svc.NewService(nip55svc.Deps{Dispatcher: d, Wait: o.wait})),
		Engine: enginectrl.NewController(enginesvc.NewService(enginesvc.Deps{
			Source: bridge, Heartbeat: d, Poll: o.poll,
		})),
		Health:   healthctrl.NewController(healthsvc.NewService(healthsvc.Deps{Dispatcher: d, Checks: o.checks})),
		Throttle: mw.NewPeerThrottle(0, 0),
	})
	return &stack{h: h, d: d, bridge: bridge}
}

func (s *stack) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	return rr
}

func pubkeyBody(id string) nip55dto.SubmitRequest {
	return nip55dto.SubmitRequest{
		ID:         id,
		Type:       nip55.TypeGetPublicKey,
		CallingApp: "app.test",
		Timestamp:  time.Now().UnixMilli(),
	}
}

// engineLoop simula un motor que atiende n solicitudes por HTTP.
func engineLoop(t *testing.T, s *stack, n int) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for served := 0; served < n; {
			rr := s.do(http.MethodGet, "/engine/next", nil)
			if rr.Code == http.StatusNoContent {
				continue
			}
			if !assert.Equal(t, http.StatusOK, rr.Code) {
				return
			}
			var req nip55.Request
			if !assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &req)) {
				return
			}
			res := nip55.Success(req, "pk-"+req.ID)
			rr = s.do(http.MethodPost, "/nip55/result", nip55dto.DeliverRequest{ID: req.ID, Result: res})
			assert.Equal(t, http.StatusOK, rr.Code)
			served++
		}
	}()
	return &wg
}

func TestPing(t *testing.T) {
	s := newStack(t, opts{})
	rr := s.do(http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestSubmit_RoundTripThroughEngine(t *testing.T) {
	s := newStack(t, opts{})
	wg := engineLoop(t, s, 1)

	rr := s.do(http.MethodPost, "/nip55", pubkeyBody("r1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res nip55.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "r1", res.ID)
	assert.Equal(t, "get_public_key", res.Type)
	assert.Equal(t, "pk-r1", res.Result)
	wg.Wait()

	// segundo pedido equivalente sale del cache sin tocar al motor
	rr = s.do(http.MethodPost, "/nip55", pubkeyBody("r2"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "r2", res.ID)
	assert.Equal(t, "pk-r1", res.Result)
	assert.Equal(t, 0, s.bridge.Len())

	st := s.d.Stats()
	assert.EqualValues(t, 1, st.CacheHits)
	assert.EqualValues(t, 1, st.Delivered)
}

func TestSubmit_FillsIDAndTimestamp(t *testing.T) {
	s := newStack(t, opts{wait: 30 * time.Millisecond})
	s.d.MarkHealthy()

	rr := s.do(http.MethodPost, "/nip55", nip55dto.SubmitRequest{Type: nip55.TypeGetPublicKey, CallingApp: "a"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var p nip55dto.ProcessingResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "processing", p.Status)
	assert.Len(t, p.ID, 36)

	req, err := s.bridge.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.ID, req.ID)
	assert.NotZero(t, req.Timestamp)
}

func TestSubmit_ProcessingThenCachedRetry(t *testing.T) {
	s := newStack(t, opts{wait: 30 * time.Millisecond})

	rr := s.do(http.MethodPost, "/nip55", pubkeyBody("slow"))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, s.d.PendingQueueSize())

	// el motor aparece tarde y contesta
	wg := engineLoop(t, s, 1)
	wg.Wait()

	rr = s.do(http.MethodPost, "/nip55", pubkeyBody("retry"))
	require.Equal(t, http.StatusOK, rr.Code)
	var res nip55.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "retry", res.ID)
	assert.Equal(t, "pk-slow", res.Result)
}

func TestSubmit_Invalid(t *testing.T) {
	s := newStack(t, opts{})

	rr := s.do(http.MethodPost, "/nip55", nip55dto.SubmitRequest{ID: "x", Type: "nope", CallingApp: "a"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_REQUEST")

	rr = s.do(http.MethodPost, "/nip55", nip55dto.SubmitRequest{ID: "x", Type: nip55.TypeSignEvent, CallingApp: "a"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/nip55", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_JSON")

	assert.EqualValues(t, 2, s.d.Stats().Invalid)
}

func TestSubmit_RateLimited(t *testing.T) {
	s := newStack(t, opts{
		wait:    20 * time.Millisecond,
		limiter: rate.NewMemoryLimiter(1, time.Minute, clock.Real()),
	})

	rr := s.do(http.MethodPost, "/nip55", pubkeyBody("a1"))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = s.do(http.MethodPost, "/nip55", pubkeyBody("a2"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestDeliver_UnknownIsNotDelivered(t *testing.T) {
	s := newStack(t, opts{})

	rr := s.do(http.MethodPost, "/nip55/result", nip55dto.DeliverRequest{
		ID: "ghost", Result: nip55.Result{OK: true, Result: "x"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var out nip55dto.DeliverResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.False(t, out.Delivered)
	assert.EqualValues(t, 1, s.d.Stats().LateDeliveries)

	rr = s.do(http.MethodPost, "/nip55/result", nip55dto.DeliverRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEngineNext_TimesOutWith204AndMarksHealthy(t *testing.T) {
	s := newStack(t, opts{poll: 20 * time.Millisecond})
	require.False(t, s.d.IsHealthy())

	rr := s.do(http.MethodGet, "/engine/next", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, s.d.IsHealthy())
}

func TestHealthEndpoints(t *testing.T) {
	s := newStack(t, opts{})

	decode := func(rr *httptest.ResponseRecorder) map[string]any {
		var m map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
		return m
	}

	m := decode(s.do(http.MethodGet, "/health", nil))
	assert.Equal(t, false, m["healthy"])
	assert.Equal(t, "unhealthy", m["state"])

	m = decode(s.do(http.MethodPost, "/health/healthy", nil))
	assert.Equal(t, true, m["healthy"])
	assert.True(t, s.d.IsHealthy())

	m = decode(s.do(http.MethodPost, "/health/unhealthy", nil))
	assert.Equal(t, false, m["healthy"])

	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodGet, "/health/healthy", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/nope", nil).Code)
}

func TestStatsAndReset(t *testing.T) {
	s := newStack(t, opts{wait: 10 * time.Millisecond})

	s.do(http.MethodPost, "/nip55", pubkeyBody("q1"))
	rr := s.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var st dispatch.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, 1, st.PendingQueue)
	assert.EqualValues(t, 1, st.Submitted)
	assert.True(t, st.ActiveHandler)

	rr = s.do(http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, s.d.PendingQueueSize())
	assert.False(t, s.d.IsHealthy())
}

func TestReadyz(t *testing.T) {
	s := newStack(t, opts{checks: map[string]healthsvc.Check{
		"cache": func(context.Context) error { return nil },
	}})
	rr := s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ready"`)

	s = newStack(t, opts{checks: map[string]healthsvc.Check{
		"redis": func(context.Context) error { return assert.AnError },
	}})
	rr = s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "unavailable")
}

func TestMetricsRouteOptional(t *testing.T) {
	s := newStack(t, opts{})
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/metrics", nil).Code)
}
