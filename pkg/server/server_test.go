package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/wire"
	"github.com/maverikod/code-analysis-db/pkg/workerpool"
)

func startTestServer(t *testing.T) (socketPath string, stop func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "driver.db")
	drv, err := driver.Open(dbPath)
	require.NoError(t, err)

	pool := workerpool.NewWorkerPool(&workerpool.Config{InitialSize: 2, MinSize: 1, MaxSize: 4, QueueSize: 8})

	socketPath = filepath.Join(t.TempDir(), "driver.sock")
	cfg := DefaultConfig(socketPath)
	cfg.RequestTimeout = 2 * time.Second
	cfg.AcceptPollInterval = 50 * time.Millisecond

	srv := New(cfg, drv, pool, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()

	waitForSocket(t, socketPath)

	return socketPath, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func roundTrip(t *testing.T, socketPath, method string, params map[string]any) wire.Envelope {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := wire.NewRequestEnvelope(method, params, "")
	payload, err := wire.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, payload))

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	respPayload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := wire.Unmarshal(respPayload)
	require.NoError(t, err)
	return resp
}

func TestCreateTableInsertAndSelectRoundTrip(t *testing.T) {
	socketPath, stop := startTestServer(t)
	defer stop()

	createResp := roundTrip(t, socketPath, "create_table", map[string]any{
		"schema": map[string]any{
			"name": "widgets",
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER", "primary_key": true},
				map[string]any{"name": "label", "type": "TEXT"},
			},
		},
	})
	require.False(t, createResp.IsError(), "create_table error: %+v", createResp.Error)

	insertResp := roundTrip(t, socketPath, "insert", map[string]any{
		"table_name": "widgets",
		"data":       map[string]any{"label": "sprocket"},
	})
	require.False(t, insertResp.IsError(), "insert error: %+v", insertResp.Error)

	selectResp := roundTrip(t, socketPath, "select", map[string]any{
		"table_name": "widgets",
	})
	require.False(t, selectResp.IsError(), "select error: %+v", selectResp.Error)
	rows, ok := selectResp.Result["data"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
}

func TestUnknownMethodIsInvalidRequest(t *testing.T) {
	socketPath, stop := startTestServer(t)
	defer stop()

	resp := roundTrip(t, socketPath, "not_a_real_method", map[string]any{})
	require.True(t, resp.IsError())
	require.Equal(t, 1000, resp.Error.Code)
}

func TestMissingRequiredFieldIsValidationError(t *testing.T) {
	socketPath, stop := startTestServer(t)
	defer stop()

	resp := roundTrip(t, socketPath, "insert", map[string]any{"table_name": "widgets"})
	require.True(t, resp.IsError())
}

func TestGracefulShutdownUnlinksSocket(t *testing.T) {
	socketPath, stop := startTestServer(t)
	stop()

	_, err := os.Stat(socketPath)
	require.True(t, os.IsNotExist(err))
}
