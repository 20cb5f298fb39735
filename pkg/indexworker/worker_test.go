package indexworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maverikod/code-analysis-db/pkg/client"
	"github.com/maverikod/code-analysis-db/pkg/dlq"
	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/server"
	"github.com/maverikod/code-analysis-db/pkg/workerpool"
)

func startTestWorker(t *testing.T) *Worker {
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
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rpc := client.New(client.DefaultConfig(socketPath), nil)
	require.NoError(t, rpc.Connect())
	t.Cleanup(rpc.Disconnect)

	mustSyncSchema(t, rpc)

	ledger, err := dlq.Open(filepath.Join(t.TempDir(), "dlq.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	w := New(Config{PollInterval: time.Hour, BatchSize: 10}, rpc, ledger, nil)
	w.dbAvailable = true
	return w
}

func mustSyncSchema(t *testing.T, rpc *client.Client) {
	t.Helper()
	ctx := context.Background()

	tables := []map[string]any{
		{
			"name": "projects",
			"columns": []any{
				map[string]any{"name": "id", "type": "TEXT", "primary_key": true},
				map[string]any{"name": "root_path", "type": "TEXT"},
			},
		},
		{
			"name": "files",
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER", "primary_key": true},
				map[string]any{"name": "project_id", "type": "TEXT"},
				map[string]any{"name": "path", "type": "TEXT"},
				map[string]any{"name": "needs_chunking", "type": "INTEGER", "default": 1},
				map[string]any{"name": "deleted", "type": "INTEGER", "default": 0},
				map[string]any{"name": "updated_at", "type": "REAL", "nullable": true},
			},
		},
		{
			"name": "ast_trees",
			"columns": []any{
				map[string]any{"name": "project_id", "type": "TEXT"},
				map[string]any{"name": "file_path", "type": "TEXT"},
				map[string]any{"name": "tree_json", "type": "TEXT"},
				map[string]any{"name": "updated_at", "type": "REAL", "nullable": true},
			},
			"constraints": []any{
				map[string]any{"type": "unique", "columns": []any{"project_id", "file_path"}},
			},
		},
		{
			"name": "cst_trees",
			"columns": []any{
				map[string]any{"name": "project_id", "type": "TEXT"},
				map[string]any{"name": "file_path", "type": "TEXT"},
				map[string]any{"name": "tree_json", "type": "TEXT"},
				map[string]any{"name": "updated_at", "type": "REAL", "nullable": true},
			},
			"constraints": []any{
				map[string]any{"type": "unique", "columns": []any{"project_id", "file_path"}},
			},
		},
		{
			"name": "code_content",
			"columns": []any{
				map[string]any{"name": "project_id", "type": "TEXT"},
				map[string]any{"name": "file_path", "type": "TEXT"},
				map[string]any{"name": "content", "type": "TEXT"},
				map[string]any{"name": "entities_json", "type": "TEXT"},
				map[string]any{"name": "updated_at", "type": "REAL", "nullable": true},
			},
			"constraints": []any{
				map[string]any{"type": "unique", "columns": []any{"project_id", "file_path"}},
			},
		},
		{
			"name": "indexing_worker_stats",
			"columns": []any{
				map[string]any{"name": "cycle_id", "type": "TEXT", "primary_key": true},
				map[string]any{"name": "cycle_start_time", "type": "REAL"},
				map[string]any{"name": "cycle_end_time", "type": "REAL", "nullable": true},
				map[string]any{"name": "files_total_at_start", "type": "INTEGER"},
				map[string]any{"name": "files_indexed", "type": "INTEGER"},
				map[string]any{"name": "files_failed", "type": "INTEGER"},
				map[string]any{"name": "total_processing_time_seconds", "type": "REAL"},
				map[string]any{"name": "average_processing_time_seconds", "type": "REAL", "nullable": true},
				map[string]any{"name": "last_updated", "type": "REAL", "nullable": true},
			},
		},
	}

	for _, schema := range tables {
		_, err := rpc.Call(ctx, "create_table", map[string]any{"schema": schema}, "")
		require.NoError(t, err)
	}
}

func TestRunCycleIndexesPendingFile(t *testing.T) {
	w := startTestWorker(t)
	ctx := context.Background()

	root := t.TempDir()
	srcPath := filepath.Join(root, "example.go")
	const src = `package example

func Greet(name string) string {
	return "hello " + name
}
`
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	_, err := w.rpc.Call(ctx, "insert", map[string]any{
		"table_name": "projects",
		"data":       map[string]any{"id": "proj-1", "root_path": root},
	}, "")
	require.NoError(t, err)

	_, err = w.rpc.Call(ctx, "insert", map[string]any{
		"table_name": "files",
		"data":       map[string]any{"project_id": "proj-1", "path": srcPath, "needs_chunking": 1},
	}, "")
	require.NoError(t, err)

	indexed, failed := w.runCycle(ctx)
	require.Equal(t, 1, indexed)
	require.Equal(t, 0, failed)

	projectIDs, err := w.discoverProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projectIDs, 0, "needs_chunking should be cleared after a successful index")
}

func TestRunCycleRecordsFailureInLedger(t *testing.T) {
	w := startTestWorker(t)
	ctx := context.Background()

	_, err := w.rpc.Call(ctx, "insert", map[string]any{
		"table_name": "projects",
		"data":       map[string]any{"id": "proj-missing", "root_path": t.TempDir()},
	}, "")
	require.NoError(t, err)

	_, err = w.rpc.Call(ctx, "insert", map[string]any{
		"table_name": "files",
		"data":       map[string]any{"project_id": "proj-missing", "path": "/no/such/file.go", "needs_chunking": 1},
	}, "")
	require.NoError(t, err)

	indexed, failed := w.runCycle(ctx)
	require.Equal(t, 0, indexed)
	require.Equal(t, 1, failed)

	entry, err := w.ledger.Get("proj-missing", "/no/such/file.go")
	require.NoError(t, err)
	require.NotNil(t, entry)
}
