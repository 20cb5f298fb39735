package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/workerpool"
)

func newTestServerForAdmin(t *testing.T) (*Server, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "driver.db")
	drv, err := driver.Open(dbPath)
	require.NoError(t, err)

	pool := workerpool.NewWorkerPool(&workerpool.Config{InitialSize: 2, MinSize: 1, MaxSize: 4, QueueSize: 8})

	socketPath := filepath.Join(t.TempDir(), "driver.sock")
	cfg := DefaultConfig(socketPath)
	cfg.AcceptPollInterval = 50 * time.Millisecond

	srv := New(cfg, drv, pool, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	waitForSocket(t, socketPath)

	return srv, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	}
}

func TestAdminHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv, stop := newTestServerForAdmin(t)
	defer stop()

	admin := NewAdminServer(AdminConfig{Addr: ""}, srv, nil, nil)
	router := admin.router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/restful/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAdminStatsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv, stop := newTestServerForAdmin(t)
	defer stop()

	admin := NewAdminServer(AdminConfig{Addr: ""}, srv, nil, nil)
	router := admin.router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/restful/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"worker_pool"`)
}
