package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/nip55"
)

const (
	dialTimeout     = 5 * time.Second
	maxResponseSize = 1 << 20
)

// Client habla con un Server. Cada llamada abre una conexión nueva.
type Client struct {
	path string
	// readTimeout acota la espera de la respuesta; submit lo extiende con su wait.
	readTimeout time.Duration
}

// NewClient crea un cliente para el socket en path.
func NewClient(path string) *Client {
	return &Client{path: path, readTimeout: 10 * time.Second}
}

// Call envía action con fields y decodifica Data en result (si no es nil).
// Una respuesta ok=false retorna *ServiceError.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	return c.call(ctx, action, fields, result, c.readTimeout)
}

func (c *Client) call(ctx context.Context, action string, fields map[string]any, result any, readTimeout time.Duration) error {
	req := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		req[k] = v
	}
	req["action"] = action

	resp, err := c.send(ctx, req, readTimeout)
	if err != nil {
		return fmt.Errorf("ipc: calling %q on %s: %w", action, c.path, err)
	}
	return decodeResponse(action, resp, result)
}

func decodeResponse(action string, resp *Response, result any) error {
	if !resp.OK {
		return &ServiceError{
			Action:       action,
			Code:         resp.Code,
			Message:      resp.Error,
			RetryAfterMs: resp.RetryAfterMs,
		}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("ipc: decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any, readTimeout time.Duration) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := newEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	deadline := time.Now().Add(readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var resp Response
	if err := newDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}

// Ping verifica que el servidor responda.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.Call(ctx, ActionPing, nil, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return fmt.Errorf("ipc: unexpected ping reply %q", pong)
	}
	return nil
}

// Submit somete req y espera hasta wait (0 = espera del servidor). Reply.Result
// nil significa que el resultado sigue en proceso.
func (c *Client) Submit(ctx context.Context, req nip55.Request, wait time.Duration) (SubmitReply, error) {
	fields := map[string]any{"request": req}
	if wait > 0 {
		fields["wait_ms"] = wait.Milliseconds()
	}

	// la respuesta puede tardar lo que dure la espera del servidor
	readTimeout := c.readTimeout + DefaultWait
	if wait > 0 {
		readTimeout = c.readTimeout + wait
	}
	var reply SubmitReply
	err := c.call(ctx, ActionSubmit, fields, &reply, readTimeout)
	return reply, err
}

// Deliver entrega el resultado de un request pendiente.
func (c *Client) Deliver(ctx context.Context, id string, res nip55.Result) (bool, error) {
	var reply DeliverReply
	err := c.Call(ctx, ActionDeliver, map[string]any{"id": id, "result": res}, &reply)
	return reply.Delivered, err
}

// MarkHealthy renueva la salud del motor.
func (c *Client) MarkHealthy(ctx context.Context) (HealthReply, error) {
	var reply HealthReply
	err := c.Call(ctx, ActionMarkHealthy, nil, &reply)
	return reply, err
}

// MarkUnhealthy detiene el despacho.
func (c *Client) MarkUnhealthy(ctx context.Context) (HealthReply, error) {
	var reply HealthReply
	err := c.Call(ctx, ActionMarkUnhealthy, nil, &reply)
	return reply, err
}

// Health retorna el estado del motor.
func (c *Client) Health(ctx context.Context) (HealthReply, error) {
	var reply HealthReply
	err := c.Call(ctx, ActionHealth, nil, &reply)
	return reply, err
}

// Stats retorna el snapshot del dispatcher.
func (c *Client) Stats(ctx context.Context) (dispatch.Stats, error) {
	var st dispatch.Stats
	err := c.Call(ctx, ActionStats, nil, &st)
	return st, err
}

// Reset vacía el estado del dispatcher.
func (c *Client) Reset(ctx context.Context) error {
	return c.Call(ctx, ActionReset, nil, nil)
}

// IsRateLimited reporta si err es un rechazo por rate limit y cuánto esperar.
func IsRateLimited(err error) (time.Duration, bool) {
	var se *ServiceError
	if errors.As(err, &se) && se.Code == CodeRateLimited {
		return time.Duration(se.RetryAfterMs) * time.Millisecond, true
	}
	return 0, false
}
