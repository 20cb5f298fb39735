package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/server"
	"github.com/maverikod/code-analysis-db/pkg/workerpool"
)

func startTestServer(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "driver.db")
	drv, err := driver.Open(dbPath)
	require.NoError(t, err)

	pool := workerpool.NewWorkerPool(&workerpool.Config{InitialSize: 2, MinSize: 1, MaxSize: 4, QueueSize: 8})

	socketPath := filepath.Join(t.TempDir(), "driver.sock")
	cfg := server.DefaultConfig(socketPath)
	cfg.AcceptPollInterval = 50 * time.Millisecond

	srv := server.New(cfg, drv, pool, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			return socketPath
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server socket never appeared")
	return ""
}

func TestConnectRequiresSocketToExist(t *testing.T) {
	c := New(DefaultConfig(filepath.Join(t.TempDir(), "missing.sock")), nil)
	err := c.Connect()
	require.Error(t, err)
	require.False(t, c.IsConnected())
}

func TestConnectAndCallRoundTrip(t *testing.T) {
	socketPath := startTestServer(t)

	c := New(DefaultConfig(socketPath), nil)
	require.NoError(t, c.Connect())
	require.True(t, c.IsConnected())
	require.True(t, c.HealthCheck())

	resp, err := c.Call(context.Background(), "create_table", map[string]any{
		"schema": map[string]any{
			"name": "notes",
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER", "primary_key": true},
				map[string]any{"name": "title", "type": "TEXT"},
			},
		},
	}, "")
	require.NoError(t, err)
	require.False(t, resp.IsError())

	c.Disconnect()
	require.False(t, c.IsConnected())
}

func TestCallOnUnknownMethodReturnsRPCResponseError(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(DefaultConfig(socketPath), nil)
	require.NoError(t, c.Connect())
	defer c.Disconnect()

	_, err := c.Call(context.Background(), "no_such_method", map[string]any{}, "")
	require.Error(t, err)
	var rpcErr *RPCResponseError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, 1000, rpcErr.Code)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(DefaultConfig(socketPath), nil)
	require.NoError(t, c.Connect())
	c.Disconnect()
	c.Disconnect()
	require.False(t, c.IsConnected())
}

func TestHealthCheckFalseBeforeConnect(t *testing.T) {
	c := New(DefaultConfig(filepath.Join(t.TempDir(), "driver.sock")), nil)
	require.False(t, c.HealthCheck())
}

func TestCallAfterDisconnectIsClosedError(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(DefaultConfig(socketPath), nil)
	require.NoError(t, c.Connect())
	c.Disconnect()

	_, err := c.Call(context.Background(), "select", map[string]any{"table_name": "notes"}, "")
	require.ErrorIs(t, err, ErrClosed)
}
