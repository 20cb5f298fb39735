// Package server implements the RPC server and dispatcher: the Unix domain
// socket accept loop, per-client handler goroutines, the processing loop
// that drains the priority queue into a worker pool, and graceful shutdown.
// Pending-response rendezvous uses a one-shot buffered channel per request
// id rather than the condition-variable-plus-shared-state the original
// driver used (§9 Design Notes prefers this form explicitly).
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/logging"
	"github.com/maverikod/code-analysis-db/pkg/queue"
	"github.com/maverikod/code-analysis-db/pkg/rpcmodel"
	"github.com/maverikod/code-analysis-db/pkg/wire"
	"github.com/maverikod/code-analysis-db/pkg/workerpool"
)

// Config sizes and addresses a Server. Zero-value fields are filled in by
// DefaultConfig's defaults where one exists.
type Config struct {
	SocketPath string

	// RequestTimeout bounds how long a handler waits for its worker to
	// produce a response before synthesizing a timeout error. Mirrors the
	// original driver's 300s default request timeout.
	RequestTimeout time.Duration

	// QueueCapacity bounds the priority queue; <= 0 means unbounded.
	QueueCapacity int

	// AcceptPollInterval is how often the accept loop wakes up to check for
	// a shutdown signal between connections.
	AcceptPollInterval time.Duration

	// ProcessingIdleSleep is how long the processing loop sleeps after
	// finding the queue empty, to avoid a busy spin.
	ProcessingIdleSleep time.Duration
}

// DefaultConfig fills in the driver's standard defaults for every field
// left at its zero value.
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath:          socketPath,
		RequestTimeout:      300 * time.Second,
		QueueCapacity:       0,
		AcceptPollInterval:  time.Second,
		ProcessingIdleSleep: 5 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 300 * time.Second
	}
	if c.AcceptPollInterval <= 0 {
		c.AcceptPollInterval = time.Second
	}
	if c.ProcessingIdleSleep <= 0 {
		c.ProcessingIdleSleep = 5 * time.Millisecond
	}
	return c
}

// pendingResponse is the channel-based stand-in for the original driver's
// condvar-guarded PendingResponse: exactly one envelope is ever sent on ch.
type pendingResponse struct {
	ch chan wire.Envelope
}

// queuedRequest is the payload a queue.Entry carries from the handler
// goroutine to the processing loop and on to a worker.
type queuedRequest struct {
	id     string
	method string
	params map[string]any
}

// Server owns the listening socket, the priority queue, the worker pool and
// the pending-response registry. One Server serves one database file.
type Server struct {
	cfg    Config
	driver driver.Driver
	queue  *queue.Queue
	pool   *workerpool.WorkerPool
	log    *logging.Logger

	listener *net.UnixListener

	pendingMu sync.Mutex
	pending   map[string]*pendingResponse

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	shuttingDown chan struct{}
	shutdownOnce sync.Once

	processingWG sync.WaitGroup
	connsWG      sync.WaitGroup
}

// New builds a Server around an already-open driver and worker pool. The
// queue is owned by the Server itself so its capacity tracks cfg.
func New(cfg Config, drv driver.Driver, pool *workerpool.WorkerPool, log *logging.Logger) *Server {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.Default()
	}
	return &Server{
		cfg:          cfg,
		driver:       drv,
		queue:        queue.New(cfg.QueueCapacity),
		pool:         pool,
		log:          log.With("component", "server"),
		pending:      make(map[string]*pendingResponse),
		conns:        make(map[net.Conn]struct{}),
		shuttingDown: make(chan struct{}),
	}
}

// Run binds the listening socket (removing any stale file first), starts
// the processing loop, and accepts connections until ctx is canceled. It
// always performs the full shutdown sequence (§4.6 Shutdown) before
// returning, regardless of whether ctx's cancellation or an accept error
// triggered it.
func (s *Server) Run(ctx context.Context) error {
	if err := removeStaleSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("server: remove stale socket: %w", err)
	}
	addr, err := net.ResolveUnixAddr("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("server: resolve socket address: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.listener = listener
	s.log.Info("listening", "socket_path", s.cfg.SocketPath)

	s.processingWG.Add(1)
	go s.processingLoop(ctx)

	go func() {
		<-ctx.Done()
		s.beginShutdown()
	}()

	for {
		select {
		case <-s.shuttingDown:
			return s.shutdown()
		default:
		}

		_ = s.listener.SetDeadline(time.Now().Add(s.cfg.AcceptPollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.shuttingDown:
				return s.shutdown()
			default:
				s.log.Warn("accept failed", "error", err.Error())
				continue
			}
		}

		s.trackConn(conn)
		s.connsWG.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// beginShutdown flips the shutdown signal exactly once, unblocking Run's
// accept loop on its next deadline tick.
func (s *Server) beginShutdown() {
	s.shutdownOnce.Do(func() { close(s.shuttingDown) })
}

// Shutdown requests a graceful stop from outside the Run goroutine (e.g. a
// signal handler), equivalent to canceling Run's context.
func (s *Server) Shutdown() {
	s.beginShutdown()
}

// Stats is a snapshot of server-side load, exposed to the admin HTTP
// surface's /restful/stats endpoint.
type Stats struct {
	Queue      queue.Stats
	PoolSize   int
	PoolQueued int
}

// Stats reports current queue and worker pool load.
func (s *Server) Stats() Stats {
	return Stats{
		Queue:      s.queue.Stats(),
		PoolSize:   s.pool.Size(),
		PoolQueued: s.pool.QueueDepth(),
	}
}

// shutdown implements §4.6's shutdown sequence: stop accepting by closing
// the listener, drain the worker pool, close pending client connections,
// unlink the socket file, close the driver.
func (s *Server) shutdown() error {
	s.log.Info("shutting down")

	if s.listener != nil {
		_ = s.listener.Close()
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil && !errors.Is(err, workerpool.ErrPoolClosed) {
			s.log.Warn("worker pool close failed", "error", err.Error())
		}
	}
	s.processingWG.Wait()

	s.connsMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connsMu.Unlock()
	s.connsWG.Wait()

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("socket unlink failed", "error", err.Error())
	}

	if s.driver != nil {
		if err := s.driver.Close(); err != nil {
			s.log.Warn("driver close failed", "error", err.Error())
		}
	}

	s.log.Info("shutdown complete")
	return nil
}

func (s *Server) trackConn(c net.Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

// handleConn implements §4.6's six per-client handling steps.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.connsWG.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		s.writeEnvelope(conn, wire.NewErrorEnvelope("", int(rpcmodel.ErrCodeInvalidRequest), "malformed frame: "+err.Error(), nil))
		return
	}

	env, err := wire.Unmarshal(payload)
	if err != nil {
		s.writeEnvelope(conn, wire.NewErrorEnvelope("", int(rpcmodel.ErrCodeInvalidRequest), "malformed json: "+err.Error(), nil))
		return
	}

	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}

	pr := &pendingResponse{ch: make(chan wire.Envelope, 1)}
	s.registerPending(id, pr)
	defer s.removePending(id)

	entry := &queue.Entry{
		ID:       id,
		Priority: queue.PriorityNormal,
		Deadline: time.Now().Add(s.cfg.RequestTimeout),
		Payload:  &queuedRequest{id: id, method: env.Method, params: env.Params},
	}
	if err := s.queue.Enqueue(entry); err != nil {
		code := rpcmodel.ErrCodeQueueFull
		if errors.Is(err, queue.ErrDuplicateID) {
			code = rpcmodel.ErrCodeInvalidRequest
		}
		s.writeEnvelope(conn, wire.NewErrorEnvelope(id, int(code), err.Error(), nil))
		return
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-pr.ch:
		s.writeEnvelope(conn, resp)
	case <-timer.C:
		s.writeEnvelope(conn, wire.NewErrorEnvelope(id, int(rpcmodel.ErrCodeTimeout), "request timed out waiting for a worker", nil))
	case <-ctx.Done():
		s.writeEnvelope(conn, wire.NewErrorEnvelope(id, int(rpcmodel.ErrCodeTimeout), "server shutting down", nil))
	}
}

func (s *Server) writeEnvelope(conn net.Conn, env wire.Envelope) {
	payload, err := wire.Marshal(env)
	if err != nil {
		s.log.Error("response marshal failed", "error", err.Error())
		return
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		s.log.Warn("response write failed", "error", err.Error())
	}
}

func (s *Server) registerPending(id string, pr *pendingResponse) {
	s.pendingMu.Lock()
	s.pending[id] = pr
	s.pendingMu.Unlock()
}

func (s *Server) removePending(id string) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// deliver stores a worker's response and wakes the waiting handler, if one
// is still around; a handler that already timed out and vanished is simply
// dropped, matching §5's "now-gone client discards" note.
func (s *Server) deliver(id string, env wire.Envelope) {
	s.pendingMu.Lock()
	pr, ok := s.pending[id]
	delete(s.pending, id)
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case pr.ch <- env:
	default:
	}
}

// processingLoop is the single task that repeatedly dequeues one request
// and submits it to the worker pool, sleeping briefly when the queue is
// empty rather than spinning.
func (s *Server) processingLoop(ctx context.Context) {
	defer s.processingWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shuttingDown:
			return
		default:
		}

		entry, ok := s.queue.Dequeue()
		if !ok {
			time.Sleep(s.cfg.ProcessingIdleSleep)
			continue
		}

		qr, ok := entry.Payload.(*queuedRequest)
		if !ok {
			continue
		}
		task := workerpool.TaskFunc(func(taskCtx context.Context) error {
			result := dispatch(taskCtx, s.driver, qr.method, qr.params)
			s.deliver(qr.id, result.ToEnvelope(qr.id))
			return nil
		})
		if err := s.pool.Submit(task); err != nil {
			// Pool closed mid-shutdown: synthesize an error for the still
			// waiting handler rather than leaving it to time out.
			s.deliver(qr.id, rpcmodel.NewError(rpcmodel.ErrCodeInternalError, "server shutting down", nil).ToEnvelope(qr.id))
		}
	}
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("server: %s exists and is not a socket", path)
	}
	return os.Remove(path)
}
