package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"flume/internal/logging"
)

// Backend is the daemon surface exposed over RPC.
type Backend interface {
	// SubmitTask queues a forwarded task in the daemon's scheduler.
	SubmitTask(ctx context.Context, name string, options map[string]any) error
	// Status snapshots the daemon and scheduler state.
	Status(ctx context.Context) StatusResponse
	// History lists recent runs, newest first.
	History(ctx context.Context, taskName string, limit int) ([]RunRecord, error)
	// DatabaseHealth runs store diagnostics.
	DatabaseHealth(ctx context.Context) DatabaseHealthResponse
	// LogTail reads from the daemon's log file.
	LogTail(ctx context.Context, req LogTailRequest) (LogTailResponse, error)
	// RequestShutdown asks the daemon to stop. It must not block.
	RequestShutdown(finishQueue bool)
}

// Server accepts JSON-RPC connections on a loopback TCP listener.
type Server struct {
	backend   Backend
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer binds the listener. bind is a host:port pair; ":0" picks
// an ephemeral port, read back through Port for the lock file.
func NewServer(ctx context.Context, bind string, backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires a backend")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if bind == "" {
		bind = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", bind, err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{backend: backend, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(rpcServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		backend:   backend,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// trackConn registers an accepted connection so Close can tear it
// down. Returns false when the server is already closing.
func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) forgetConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Port returns the bound TCP port, the value advertised in the lock
// file.
func (s *Server) Port() int {
	addr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("addr", s.listener.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			if !s.trackConn(conn) {
				conn.Close()
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.forgetConn(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
				c.Close()
			}(conn)
		}
	}()
}

// Close stops the server and waits for in-flight calls. Open client
// connections are severed; waiting on them would stall shutdown until
// every client hangs up on its own.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

type service struct {
	backend Backend
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) SubmitTask(req SubmitTaskRequest, resp *SubmitTaskResponse) error {
	s.log().Info("task submitted via IPC", logging.String("task", req.Name))
	if err := s.backend.SubmitTask(s.ctx, req.Name, req.Options); err != nil {
		resp.Accepted = false
		resp.Message = err.Error()
		return nil
	}
	resp.Accepted = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.backend.Status(s.ctx)
	return nil
}

func (s *service) Shutdown(req ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("shutdown requested via IPC",
		logging.Bool("finish_queue", req.FinishQueue))
	s.backend.RequestShutdown(req.FinishQueue)
	resp.Stopping = true
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	runs, err := s.backend.History(s.ctx, req.TaskName, req.Limit)
	if err != nil {
		return err
	}
	resp.Runs = runs
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	*resp = s.backend.DatabaseHealth(s.ctx)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	result, err := s.backend.LogTail(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}
