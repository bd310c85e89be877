package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/igloo/internal/cache"
	"github.com/dropDatabas3/igloo/internal/config"
	"github.com/dropDatabas3/igloo/internal/ipc"
	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/rate"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.WaitTimeout = 50 * time.Millisecond
	cfg.Server.EnginePollTimeout = 50 * time.Millisecond
	cfg.Socket.Path = filepath.Join(t.TempDir(), "igloo.sock")
	return cfg
}

func TestNew_WiresComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Overrides = map[string]int{"trusted.app": 1000}

	a, err := New(cfg, Options{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Dispatcher)
	assert.NotNil(t, a.Socket)
	assert.IsType(t, &rate.PerKey{}, a.Limiter)
	assert.True(t, a.Dispatcher.Stats().ActiveHandler)
}

func TestNew_RateDisabledAndNoSocket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = false
	cfg.Socket.Enabled = false
	cfg.Metrics.Enabled = false

	a, err := New(cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, rate.Noop{}, a.Limiter)
	assert.Nil(t, a.Socket)
}

func TestNew_UnknownCacheDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Kind = "memcached"
	_, err := New(cfg, Options{Registry: prometheus.NewRegistry()})
	require.ErrorIs(t, err, cache.ErrUnknownDriver)
}

func TestServe_HTTPAndSocket(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, Options{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, a.Socket.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "igloo_engine_healthy")

	// el motor entrega por socket lo que pidió un caller por socket
	client := ipc.NewClient(cfg.Socket.Path)
	_, err = client.MarkHealthy(ctx)
	require.NoError(t, err)
	go func() {
		req, err := a.Bridge.Next(ctx)
		if err == nil {
			_, _ = client.Deliver(ctx, req.ID, nip55.Success(req, "npub"))
		}
	}()
	reply, err := client.Submit(ctx, nip55.Request{
		ID: "e2e", Type: nip55.TypeGetPublicKey, CallingApp: "app",
	}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, reply.Result)
	assert.Equal(t, "npub", reply.Result.Result)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
