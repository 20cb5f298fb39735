// Package client implements the pooled, retrying RPC client spec.md §4.7
// describes: eager connection pre-creation, one connection per call (the
// server closes its side after each response, so pooled connections are
// used once and never returned), linear backoff on transport failures, and
// no retry once a protocol-level error comes back from the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/maverikod/code-analysis-db/pkg/logging"
	"github.com/maverikod/code-analysis-db/pkg/wire"
)

// ErrClosed is returned by Call and Connect once Disconnect has run.
var ErrClosed = errors.New("client: closed")

// Config configures a Client. Zero fields are filled in by DefaultConfig's
// defaults.
type Config struct {
	SocketPath string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	PoolSize   int
}

// DefaultConfig mirrors the original driver client's constructor defaults:
// 30s timeout, 3 retries, 100ms base retry delay, a pool of 5 connections.
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath: socketPath,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		PoolSize:   5,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	return c
}

// Client is a pooled RPC client for one driver socket. Safe for concurrent
// use: each Call acquires its own connection.
type Client struct {
	cfg  Config
	log  *logging.Logger
	pool chan net.Conn

	connected bool
	closed    bool
}

// New builds a Client. Call Connect before the first Call.
func New(cfg Config, log *logging.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.Default()
	}
	return &Client{cfg: cfg, log: log.With("component", "rpc_client")}
}

// Connect eagerly pre-creates up to PoolSize connections. Succeeds as long
// as at least one connection was established.
func (c *Client) Connect() error {
	if c.closed {
		return ErrClosed
	}
	pool := make(chan net.Conn, c.cfg.PoolSize)
	created := 0
	for i := 0; i < c.cfg.PoolSize; i++ {
		conn, err := c.dial()
		if err != nil {
			c.log.Warn("pre-create connection failed", "error", err.Error())
			continue
		}
		pool <- conn
		created++
	}
	if created == 0 {
		return &ConnectionError{Err: fmt.Errorf("cannot connect to rpc server at %s", c.cfg.SocketPath)}
	}
	c.pool = pool
	c.connected = true
	return nil
}

// Disconnect is idempotent: it closes every pooled connection and prevents
// further Calls.
func (c *Client) Disconnect() {
	if c.closed {
		return
	}
	c.closed = true
	c.connected = false
	if c.pool == nil {
		return
	}
	for {
		select {
		case conn := <-c.pool:
			_ = conn.Close()
		default:
			return
		}
	}
}

// IsConnected reports whether Connect succeeded and Disconnect hasn't run.
func (c *Client) IsConnected() bool { return c.connected && !c.closed }

// HealthCheck is true iff the client believes itself connected and the
// socket file still exists in the filesystem.
func (c *Client) HealthCheck() bool {
	if !c.IsConnected() {
		return false
	}
	_, err := os.Stat(c.cfg.SocketPath)
	return err == nil
}

func (c *Client) dial() (net.Conn, error) {
	if _, err := os.Stat(c.cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("socket %s: %w", c.cfg.SocketPath, err)
	}
	conn, err := net.DialTimeout("unix", c.cfg.SocketPath, c.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.SocketPath, err)
	}
	return conn, nil
}

// acquireConn takes a pooled connection if one is immediately available,
// waits briefly for one to free up, then falls back to a fresh dial —
// mirroring the original client's "pool.get(timeout=1.0) else dial" shape.
func (c *Client) acquireConn() (net.Conn, error) {
	if c.pool != nil {
		select {
		case conn := <-c.pool:
			return conn, nil
		case <-time.After(time.Second):
		}
	}
	return c.dial()
}

// Call sends one RPC request and returns its response envelope. If
// requestID is empty, one is generated. Timeout and connection failures are
// retried up to MaxRetries with linear backoff (RetryDelay * attempt);
// protocol-level errors returned by the server are never retried.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, requestID string) (wire.Envelope, error) {
	if c.closed {
		return wire.Envelope{}, ErrClosed
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req := wire.NewRequestEnvelope(method, params, requestID)
	payload, err := wire.Marshal(req)
	if err != nil {
		return wire.Envelope{}, &ClientError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		resp, err := c.sendOnce(ctx, payload)
		if err == nil {
			if resp.IsError() {
				return wire.Envelope{}, &RPCResponseError{
					Code:    resp.Error.Code,
					Message: resp.Error.Message,
					Data:    resp.Error.Data,
				}
			}
			return resp, nil
		}

		var connErr *ConnectionError
		var timeoutErr *TimeoutError
		retryable := errors.As(err, &connErr) || errors.As(err, &timeoutErr)
		if !retryable {
			return wire.Envelope{}, err
		}
		lastErr = err
		if attempt < c.cfg.MaxRetries-1 {
			select {
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt+1)):
			case <-ctx.Done():
				return wire.Envelope{}, &ConnectionError{Err: ctx.Err()}
			}
		}
	}
	return wire.Envelope{}, lastErr
}

// sendOnce acquires one connection, sends the request, reads the response,
// and always closes the connection afterward — the server-side handler
// closes its end after every response, so connections are never reused.
func (c *Client) sendOnce(ctx context.Context, payload []byte) (wire.Envelope, error) {
	conn, err := c.acquireConn()
	if err != nil {
		return wire.Envelope{}, &ConnectionError{Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if err := wire.WriteFrame(conn, payload); err != nil {
		if isTimeout(err) {
			return wire.Envelope{}, &TimeoutError{Err: err}
		}
		return wire.Envelope{}, &ConnectionError{Err: err}
	}

	respPayload, err := wire.ReadFrame(conn)
	if err != nil {
		if isTimeout(err) {
			return wire.Envelope{}, &TimeoutError{Err: err}
		}
		return wire.Envelope{}, &ConnectionError{Err: err}
	}

	resp, err := wire.Unmarshal(respPayload)
	if err != nil {
		return wire.Envelope{}, &ClientError{Err: fmt.Errorf("parse response: %w", err)}
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
