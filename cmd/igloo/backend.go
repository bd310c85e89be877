package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/igloo/internal/ipc"
	"github.com/dropDatabas3/igloo/internal/nip55"
)

// backend es lo que necesitan los comandos, sobre HTTP o sobre el socket.
type backend interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (any, error)
	Health(ctx context.Context, transition string) (any, error)
	Deliver(ctx context.Context, id string, res nip55.Result) (bool, error)
	Reset(ctx context.Context) error
}

// ─── HTTP ───

type httpBackend struct {
	BaseURL string
	HTTP    *http.Client
}

func (c *httpBackend) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, b, fmt.Errorf("%s %s fallo: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp.StatusCode, b, nil
}

func (c *httpBackend) getJSON(ctx context.Context, method, path string, body any) (any, error) {
	_, b, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *httpBackend) Ping(ctx context.Context) error {
	_, b, err := c.do(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return err
	}
	if string(b) != "pong" {
		return fmt.Errorf("respuesta inesperada: %q", string(b))
	}
	return nil
}

func (c *httpBackend) Stats(ctx context.Context) (any, error) {
	return c.getJSON(ctx, http.MethodGet, "/stats", nil)
}

func (c *httpBackend) Health(ctx context.Context, transition string) (any, error) {
	if transition == "" {
		return c.getJSON(ctx, http.MethodGet, "/health", nil)
	}
	return c.getJSON(ctx, http.MethodPost, "/health/"+transition, nil)
}

func (c *httpBackend) Deliver(ctx context.Context, id string, res nip55.Result) (bool, error) {
	_, b, err := c.do(ctx, http.MethodPost, "/nip55/result", map[string]any{"id": id, "result": res})
	if err != nil {
		return false, err
	}
	var out struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return false, err
	}
	return out.Delivered, nil
}

func (c *httpBackend) Reset(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodPost, "/reset", nil)
	return err
}

// ─── Socket ───

type socketBackend struct {
	c *ipc.Client
}

func (s *socketBackend) Ping(ctx context.Context) error { return s.c.Ping(ctx) }

func (s *socketBackend) Stats(ctx context.Context) (any, error) { return s.c.Stats(ctx) }

func (s *socketBackend) Health(ctx context.Context, transition string) (any, error) {
	switch transition {
	case "":
		return s.c.Health(ctx)
	case "healthy":
		return s.c.MarkHealthy(ctx)
	default:
		return s.c.MarkUnhealthy(ctx)
	}
}

func (s *socketBackend) Deliver(ctx context.Context, id string, res nip55.Result) (bool, error) {
	return s.c.Deliver(ctx, id, res)
}

func (s *socketBackend) Reset(ctx context.Context) error { return s.c.Reset(ctx) }

func newBackend(url, socket string, timeout time.Duration) backend {
	if socket != "" {
		return &socketBackend{c: ipc.NewClient(socket)}
	}
	return &httpBackend{BaseURL: url, HTTP: &http.Client{Timeout: timeout}}
}
