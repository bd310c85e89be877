package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig es compartido por cache y rate.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Config struct {
	// Bloque app (opcional en YAML).
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Server struct {
		Addr string `yaml:"addr"`
		// Cuánto espera POST /nip55 el resultado antes de contestar "processing".
		WaitTimeout time.Duration `yaml:"wait_timeout"`
		// Long-poll de GET /engine/next.
		EnginePollTimeout time.Duration `yaml:"engine_poll_timeout"`
		MaxBodyBytes      int64         `yaml:"max_body_bytes"`
		Throttle          struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"throttle"`
	} `yaml:"server"`

	Socket struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"socket"`

	Health struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"health"`

	Cache struct {
		Kind  string        `yaml:"kind"` // memory | redis
		TTL   time.Duration `yaml:"ttl"`
		Redis RedisConfig   `yaml:"redis"`
	} `yaml:"cache"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		Kind        string        `yaml:"kind"` // memory | redis
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests"`
		// Límites por calling app que pisan MaxRequests.
		Overrides map[string]int `yaml:"overrides"`
		Redis     RedisConfig    `yaml:"redis"`
	} `yaml:"rate"`

	Dispatch struct {
		QueueTTL      time.Duration `yaml:"queue_ttl"`       // 0 = indefinido
		ExecTimeout   time.Duration `yaml:"exec_timeout"`    // 0 = sin límite
		MaxRequestAge time.Duration `yaml:"max_request_age"` // 0 = sin chequeo
		Outbox        int           `yaml:"outbox"`
	} `yaml:"dispatch"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default retorna una configuración en memoria usable sin archivo.
func Default() *Config {
	var c Config
	c.Socket.Enabled = true
	c.Rate.Enabled = true
	c.Metrics.Enabled = true
	c.applyDefaults()
	return &c
}

// Load lee el YAML en path sobre Default(), aplica overrides de entorno y valida.
// path vacío equivale a no tener archivo.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		// Socket relativo al directorio del YAML
		if p := strings.TrimSpace(c.Socket.Path); p != "" && !filepath.IsAbs(p) {
			c.Socket.Path = filepath.Clean(filepath.Join(filepath.Dir(path), p))
		}
	}

	// sane defaults para lo que el YAML dejó en cero
	c.applyDefaults()

	// Overrides por env
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:45555"
	}
	if c.Server.WaitTimeout == 0 {
		c.Server.WaitTimeout = 30 * time.Second
	}
	if c.Server.EnginePollTimeout == 0 {
		c.Server.EnginePollTimeout = 25 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Server.Throttle.RPS == 0 {
		c.Server.Throttle.RPS = 50
	}
	if c.Server.Throttle.Burst == 0 {
		c.Server.Throttle.Burst = 100
	}
	if c.Socket.Path == "" {
		c.Socket.Path = filepath.Join(os.TempDir(), "igloo.sock")
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = 5 * time.Minute
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 60 * time.Second
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "igloo:result"
	}
	if c.Rate.Kind == "" {
		c.Rate.Kind = "memory"
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "igloo:rl:"
	}
	if c.Dispatch.Outbox == 0 {
		c.Dispatch.Outbox = 256
	}
}

var ErrInvalid = errors.New("config: invalid")

func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		bad("server.addr is required")
	}
	if c.Server.WaitTimeout < 0 || c.Server.EnginePollTimeout < 0 {
		bad("server timeouts must be positive")
	}
	if c.Server.Throttle.RPS < 0 || c.Server.Throttle.Burst < 0 {
		bad("server.throttle must not be negative")
	}
	if c.Socket.Enabled && strings.TrimSpace(c.Socket.Path) == "" {
		bad("socket.path is required when socket.enabled")
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		bad("cache.kind %q (memory|redis)", c.Cache.Kind)
	}
	if c.Cache.TTL < 0 {
		bad("cache.ttl must not be negative")
	}
	switch c.Rate.Kind {
	case "memory", "redis":
	default:
		bad("rate.kind %q (memory|redis)", c.Rate.Kind)
	}
	if c.Rate.Enabled && (c.Rate.MaxRequests <= 0 || c.Rate.Window <= 0) {
		bad("rate.max_requests and rate.window must be positive")
	}
	for app, n := range c.Rate.Overrides {
		if n <= 0 {
			bad("rate.overrides[%s] must be positive", app)
		}
	}
	if c.Dispatch.QueueTTL < 0 || c.Dispatch.ExecTimeout < 0 || c.Dispatch.MaxRequestAge < 0 {
		bad("dispatch durations must not be negative")
	}
	if c.Dispatch.Outbox < 0 {
		bad("dispatch.outbox must not be negative")
	}
	return errors.Join(errs...)
}

// IsProd retorna true con app_env=prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// ---- Helpers env ----

const envPrefix = "IGLOO_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables IGLOO_*.
func (c *Config) applyEnvOverrides() {
	// APP / LOG
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("SERVER_WAIT_TIMEOUT"); ok {
		c.Server.WaitTimeout = v
	}
	if v, ok := getEnvDur("SERVER_ENGINE_POLL_TIMEOUT"); ok {
		c.Server.EnginePollTimeout = v
	}
	if v, ok := getEnvFloat("SERVER_THROTTLE_RPS"); ok {
		c.Server.Throttle.RPS = v
	}
	if v, ok := getEnvInt("SERVER_THROTTLE_BURST"); ok {
		c.Server.Throttle.Burst = v
	}

	// SOCKET
	if v, ok := getEnvBool("SOCKET_ENABLED"); ok {
		c.Socket.Enabled = v
	}
	if v, ok := getEnvStr("SOCKET_PATH"); ok {
		c.Socket.Path = v
	}

	// HEALTH
	if v, ok := getEnvDur("HEALTH_TIMEOUT"); ok {
		c.Health.Timeout = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvDur("CACHE_TTL"); ok {
		c.Cache.TTL = v
	}

	// REDIS (aplica a cache y rate)
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
		c.Rate.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
		c.Rate.Redis.DB = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_KIND"); ok {
		c.Rate.Kind = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvKVList("RATE_OVERRIDES", ";"); ok {
		c.Rate.Overrides = make(map[string]int, len(v))
		for app, s := range v {
			if n, err := strconv.Atoi(s); err == nil {
				c.Rate.Overrides[app] = n
			}
		}
	}

	// DISPATCH
	if v, ok := getEnvDur("DISPATCH_QUEUE_TTL"); ok {
		c.Dispatch.QueueTTL = v
	}
	if v, ok := getEnvDur("DISPATCH_EXEC_TIMEOUT"); ok {
		c.Dispatch.ExecTimeout = v
	}
	if v, ok := getEnvDur("DISPATCH_MAX_REQUEST_AGE"); ok {
		c.Dispatch.MaxRequestAge = v
	}

	// METRICS
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
