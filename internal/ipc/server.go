package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/igloo/internal/audit"
	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/dispatch"
	"github.com/dropDatabas3/igloo/internal/nip55"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

const (
	// readTimeout es cuánto esperamos a que el cliente mande su request.
	readTimeout = 30 * time.Second
	// writeTimeout es cuánto esperamos a escribir la respuesta.
	writeTimeout = 10 * time.Second
	// maxRequestSize acota un request CBOR.
	maxRequestSize = 1 << 20
	// DefaultWait es la espera por defecto de submit.
	DefaultWait = 30 * time.Second
)

// Dispatcher es la parte del dispatcher que expone el socket.
type Dispatcher interface {
	SubmitWithOutcome(ctx context.Context, req nip55.Request, cb dispatch.Callback) (dispatch.Outcome, error)
	DeliverResultByRequestId(id string, res nip55.Result) bool
	MarkHealthy()
	MarkUnhealthy()
	IsHealthy() bool
	Stats() dispatch.Stats
	Reset()
}

// ActionFunc procesa un request. raw es el request CBOR completo, incluido el
// campo "action". Un resultado nil responde solo {ok: true}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// actionError lleva un código estable hasta el Response.
type actionError struct {
	code       string
	msg        string
	retryAfter time.Duration
}

func (e *actionError) Error() string { return e.msg }

// ServerConfig agrupa las dependencias del Server.
type ServerConfig struct {
	Path       string
	Dispatcher Dispatcher
	Clock      clock.Clock
	Wait       time.Duration // 0 = DefaultWait
	Logger     *zap.Logger
}

// Server sirve el protocolo CBOR sobre un socket Unix.
type Server struct {
	path     string
	d        Dispatcher
	clock    clock.Clock
	wait     time.Duration
	log      *zap.Logger
	handlers map[string]ActionFunc

	mu sync.Mutex
	ln net.Listener

	// conexiones en curso; Serve las espera antes de retornar.
	active sync.WaitGroup
}

// NewServer crea el servidor con todas las acciones registradas.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("ipc")
	}
	s := &Server{
		path:     cfg.Path,
		d:        cfg.Dispatcher,
		clock:    cfg.Clock,
		wait:     cfg.Wait,
		log:      cfg.Logger,
		handlers: make(map[string]ActionFunc),
	}
	s.Handle(ActionPing, func(context.Context, []byte) (any, error) { return "pong", nil })
	s.Handle(ActionSubmit, s.handleSubmit)
	s.Handle(ActionDeliver, s.handleDeliver)
	s.Handle(ActionMarkHealthy, func(ctx context.Context, _ []byte) (any, error) {
		audit.Log(ctx, audit.EventMarkHealthy, audit.SourceSocket)
		s.d.MarkHealthy()
		return s.health(), nil
	})
	s.Handle(ActionMarkUnhealthy, func(ctx context.Context, _ []byte) (any, error) {
		audit.Log(ctx, audit.EventMarkUnhealthy, audit.SourceSocket)
		s.d.MarkUnhealthy()
		return s.health(), nil
	})
	s.Handle(ActionHealth, func(context.Context, []byte) (any, error) { return s.health(), nil })
	s.Handle(ActionStats, func(context.Context, []byte) (any, error) { return s.d.Stats(), nil })
	s.Handle(ActionReset, func(ctx context.Context, _ []byte) (any, error) {
		st := s.d.Stats()
		audit.Log(ctx, audit.EventReset, audit.SourceSocket,
			logger.Int("pending", st.PendingQueue),
			logger.Int("in_flight", st.InFlight),
		)
		s.d.Reset()
		return nil, nil
	})
	return s
}

// Handle registra una acción. Panics si ya estaba registrada.
func (s *Server) Handle(action string, fn ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("ipc: duplicate handler for action %q", action))
	}
	s.handlers[action] = fn
}

// Path retorna la ruta del socket.
func (s *Server) Path() string { return s.path }

// Listen crea el socket, borrando uno viejo si existe. El socket queda con
// permisos 0600: solo el usuario dueño del proceso puede hablarle.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc: removing stale socket %s: %w", s.path, err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc: listening on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("ipc: chmod %s: %w", s.path, err)
	}
	s.ln = ln
	return nil
}

// Serve acepta conexiones hasta que ctx termine; después espera las conexiones
// activas y borra el socket.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	defer func() {
		ln.Close()
		os.Remove(s.path)
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("socket server listening", logger.String("path", s.path))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("accept failed", logger.Err(err))
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic recovered in socket handler", logger.Any("panic", rec))
			s.writeError(conn, &actionError{code: CodeInternal, msg: "internal error"})
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw RawMessage
	if err := newDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, &actionError{code: CodeBadRequest, msg: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := Unmarshal(raw, &header); err != nil {
		s.writeError(conn, &actionError{code: CodeBadRequest, msg: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if header.Action == "" {
		s.writeError(conn, &actionError{code: CodeBadRequest, msg: "missing required field: action"})
		return
	}

	handler, ok := s.handlers[header.Action]
	if !ok {
		s.writeError(conn, &actionError{code: CodeBadRequest, msg: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	result, err := handler(ctx, raw)
	if err != nil {
		s.log.Debug("action failed", logger.Action(header.Action), logger.Err(err))
		s.writeError(conn, err)
		return
	}
	s.writeSuccess(conn, result)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{OK: false, Error: err.Error()}
	var ae *actionError
	if errors.As(err, &ae) {
		resp.Code = ae.code
		resp.RetryAfterMs = ae.retryAfter.Milliseconds()
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if werr := newEncoder(conn).Encode(resp); werr != nil {
		s.log.Debug("failed to write error response", logger.Err(werr))
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	resp := Response{OK: true}
	if result != nil {
		data, err := Marshal(result)
		if err != nil {
			s.writeError(conn, &actionError{code: CodeInternal, msg: fmt.Sprintf("marshaling response: %v", err)})
			return
		}
		resp.Data = data
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := newEncoder(conn).Encode(resp); err != nil {
		s.log.Debug("failed to write success response", logger.Err(err))
	}
}

// ─── Acciones ───

func (s *Server) handleSubmit(ctx context.Context, raw []byte) (any, error) {
	var args SubmitArgs
	if err := Unmarshal(raw, &args); err != nil {
		return nil, &actionError{code: CodeBadRequest, msg: fmt.Sprintf("invalid submit: %v", err)}
	}
	req := args.Request
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timestamp == 0 {
		req.Timestamp = s.clock.Now().UnixMilli()
	}
	wait := s.wait
	if args.WaitMs > 0 {
		wait = time.Duration(args.WaitMs) * time.Millisecond
	}

	o, res, err := dispatch.Await(ctx, s.d, s.clock, req, wait)
	switch o {
	case dispatch.Invalid:
		return nil, &actionError{code: CodeInvalid, msg: err.Error()}
	case dispatch.RateLimited:
		ae := &actionError{code: CodeRateLimited, msg: err.Error()}
		var rl *dispatch.RateLimitError
		if errors.As(err, &rl) {
			ae.retryAfter = rl.RetryAfter
		}
		return nil, ae
	}
	return SubmitReply{ID: req.ID, Outcome: o.String(), Result: res}, nil
}

func (s *Server) handleDeliver(_ context.Context, raw []byte) (any, error) {
	var args DeliverArgs
	if err := Unmarshal(raw, &args); err != nil {
		return nil, &actionError{code: CodeBadRequest, msg: fmt.Sprintf("invalid deliver: %v", err)}
	}
	if args.ID == "" {
		return nil, &actionError{code: CodeBadRequest, msg: "missing required field: id"}
	}
	return DeliverReply{Delivered: s.d.DeliverResultByRequestId(args.ID, args.Result)}, nil
}

func (s *Server) health() HealthReply {
	h := HealthReply{Healthy: s.d.IsHealthy(), State: "unhealthy"}
	if h.Healthy {
		h.State = "healthy"
	}
	return h
}
