package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "igloo.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Server.Addr != "127.0.0.1:45555" {
		t.Fatalf("addr = %q", c.Server.Addr)
	}
	if !c.Rate.Enabled || c.Rate.MaxRequests != 60 || c.Rate.Window != time.Minute {
		t.Fatalf("unexpected rate defaults: %+v", c.Rate)
	}
	if c.Dispatch.QueueTTL != 0 {
		t.Fatalf("queued entries wait indefinitely by default")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	p := writeYAML(t, `
app:
  app_env: prod
server:
  addr: 127.0.0.1:9999
  wait_timeout: 5s
socket:
  path: run/igloo.sock
health:
  timeout: 90s
rate:
  max_requests: 10
  overrides:
    com.vip.app: 100
dispatch:
  queue_ttl: 2m
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.IsProd() {
		t.Fatalf("expected prod")
	}
	if c.Server.Addr != "127.0.0.1:9999" || c.Server.WaitTimeout != 5*time.Second {
		t.Fatalf("server = %+v", c.Server)
	}
	if c.Health.Timeout != 90*time.Second {
		t.Fatalf("health.timeout = %v", c.Health.Timeout)
	}
	if c.Rate.MaxRequests != 10 || c.Rate.Overrides["com.vip.app"] != 100 {
		t.Fatalf("rate = %+v", c.Rate)
	}
	// valores no mencionados conservan el default
	if !c.Rate.Enabled || c.Cache.Kind != "memory" || c.Cache.TTL != time.Minute {
		t.Fatalf("defaults lost: rate.enabled=%v cache=%+v", c.Rate.Enabled, c.Cache)
	}
	want := filepath.Join(filepath.Dir(p), "run", "igloo.sock")
	if c.Socket.Path != want {
		t.Fatalf("socket.path = %q, want %q", c.Socket.Path, want)
	}
	if c.Dispatch.QueueTTL != 2*time.Minute {
		t.Fatalf("queue_ttl = %v", c.Dispatch.QueueTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IGLOO_SERVER_ADDR", "127.0.0.1:1")
	t.Setenv("IGLOO_REDIS_ADDR", "redis:6379")
	t.Setenv("IGLOO_RATE_ENABLED", "false")
	t.Setenv("IGLOO_RATE_OVERRIDES", "a=5; b=7")
	t.Setenv("IGLOO_DISPATCH_EXEC_TIMEOUT", "45s")

	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Addr != "127.0.0.1:1" {
		t.Fatalf("addr = %q", c.Server.Addr)
	}
	if c.Cache.Redis.Addr != "redis:6379" || c.Rate.Redis.Addr != "redis:6379" {
		t.Fatalf("redis addr not applied to both sections")
	}
	if c.Rate.Enabled {
		t.Fatalf("rate should be disabled")
	}
	if c.Rate.Overrides["a"] != 5 || c.Rate.Overrides["b"] != 7 {
		t.Fatalf("overrides = %v", c.Rate.Overrides)
	}
	if c.Dispatch.ExecTimeout != 45*time.Second {
		t.Fatalf("exec_timeout = %v", c.Dispatch.ExecTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"cache kind":   "cache:\n  kind: memcached\n",
		"negative ttl": "dispatch:\n  queue_ttl: -1s\n",
		"bad override": "rate:\n  overrides:\n    x: -3\n",
		"bad duration": "health:\n  timeout: soon\n",
		"rate kind":    "rate:\n  kind: sliding\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeYAML(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
