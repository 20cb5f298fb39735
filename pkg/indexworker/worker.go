// Package indexworker implements the background loop that walks files
// marked needs_chunking=1, asks the driver to (re)index each one, and
// records per-cycle statistics — ported from the single-threaded asyncio
// loop in indexing_worker_pkg/processing.py into a ctx-driven goroutine.
package indexworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/maverikod/code-analysis-db/pkg/client"
	"github.com/maverikod/code-analysis-db/pkg/dbapi"
	"github.com/maverikod/code-analysis-db/pkg/dlq"
	"github.com/maverikod/code-analysis-db/pkg/logging"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
)

// Config controls one Worker's polling cadence and batching.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultConfig returns the documented defaults: a 30 second poll interval
// and a batch of at most 50 files per project per cycle.
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second, BatchSize: 50}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// Stats summarizes a Worker's lifetime activity, returned when Run stops.
type Stats struct {
	Indexed int
	Errors  int
	Cycles  int
}

// Worker owns one RPC client connection and drives the indexing loop over
// it. It is not safe for concurrent use — one cooperative loop, same as the
// original.
type Worker struct {
	cfg    Config
	rpc    *client.Client
	api    *dbapi.API
	ledger *dlq.DeadLetterQueue
	log    *logging.Logger

	dbAvailable   bool
	dbStatusShown bool
	backoff       time.Duration
}

// New builds a Worker around an already-constructed (not yet connected) RPC
// client. ledger may be nil to disable per-file failure tracking.
func New(cfg Config, rpc *client.Client, ledger *dlq.DeadLetterQueue, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.Default()
	}
	return &Worker{
		cfg:     cfg.withDefaults(),
		rpc:     rpc,
		api:     dbapi.New(rpc),
		ledger:  ledger,
		log:     log.With("component", "indexworker"),
		backoff: minBackoff,
	}
}

// Run drives cycles until ctx is canceled, sleeping up to PollInterval
// between cycles while checking ctx every second, matching the original's
// per-second stop-event poll. It returns a summary of everything it did.
func (w *Worker) Run(ctx context.Context) Stats {
	var stats Stats

	w.log.Info("starting indexing worker", "poll_interval_seconds", w.cfg.PollInterval.Seconds(), "batch_size", w.cfg.BatchSize)

	for {
		if ctx.Err() != nil {
			break
		}

		if !w.ensureConnected(ctx) {
			continue
		}

		stats.Cycles++
		indexed, failed := w.runCycle(ctx)
		stats.Indexed += indexed
		stats.Errors += failed

		if !w.sleepOrStop(ctx, w.cfg.PollInterval) {
			break
		}
	}

	w.log.Info("indexing worker stopped", "indexed", stats.Indexed, "errors", stats.Errors, "cycles", stats.Cycles)
	return stats
}

// ensureConnected reconnects with exponential backoff (1s, capped at 60s)
// on failure, logging each availability transition exactly once. Returns
// false if the caller should loop back around rather than run a cycle
// (either the probe failed, or ctx was canceled while backing off).
func (w *Worker) ensureConnected(ctx context.Context) bool {
	if w.dbAvailable {
		return true
	}

	if !w.rpc.IsConnected() {
		if err := w.rpc.Connect(); err != nil {
			w.reportUnavailable(err)
			return w.sleepOrStop(ctx, w.waitAndGrowBackoff())
		}
	}

	if _, err := w.api.Execute(ctx, "SELECT 1", nil, ""); err != nil {
		w.rpc.Disconnect()
		w.reportUnavailable(err)
		return w.sleepOrStop(ctx, w.waitAndGrowBackoff())
	}

	if !w.dbStatusShown {
		w.log.Info("database is now available")
	}
	w.dbAvailable = true
	w.dbStatusShown = true
	w.backoff = minBackoff
	return true
}

func (w *Worker) reportUnavailable(err error) {
	if w.dbAvailable || !w.dbStatusShown {
		w.log.Warn("database is unavailable", "error", err.Error())
	}
	w.dbAvailable = false
	w.dbStatusShown = true
}

func (w *Worker) waitAndGrowBackoff() time.Duration {
	wait := w.backoff
	w.backoff *= 2
	if w.backoff > maxBackoff {
		w.backoff = maxBackoff
	}
	return wait
}

// sleepOrStop sleeps for d, checking ctx every second, and reports whether
// the caller should keep going.
func (w *Worker) sleepOrStop(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return ctx.Err() == nil
}

// runCycle executes one indexing cycle: open a stats row, discover projects
// with pending files, index a batch per project, close the stats row.
func (w *Worker) runCycle(ctx context.Context) (indexed, failed int) {
	cycleID := uuid.NewString()
	cycleStart := time.Now()

	if err := w.openCycle(ctx, cycleID, cycleStart); err != nil {
		w.log.Error("failed to open indexing cycle", "error", err.Error())
		return 0, 0
	}

	projectIDs, err := w.discoverProjects(ctx)
	if err != nil {
		w.log.Error("error discovering projects needing indexing", "error", err.Error())
		w.dbAvailable = false
		w.dbStatusShown = false
		w.backoff = minBackoff
		return 0, 0
	}

	if len(projectIDs) == 0 {
		w.log.Info("no projects with files needing indexing")
	}

	for _, projectID := range projectIDs {
		files, err := w.fetchBatch(ctx, projectID)
		if err != nil {
			w.log.Warn("failed to fetch file batch", "project_id", projectID, "error", err.Error())
			continue
		}
		for _, f := range files {
			ok := w.indexOne(ctx, cycleID, projectID, f.path)
			if ok {
				indexed++
			} else {
				failed++
			}
		}
	}

	w.closeCycle(ctx, cycleID)
	return indexed, failed
}

func (w *Worker) openCycle(ctx context.Context, cycleID string, cycleStart time.Time) error {
	_, err := w.api.Execute(ctx,
		`UPDATE indexing_worker_stats SET cycle_end_time = ?, last_updated = julianday('now') WHERE cycle_end_time IS NULL`,
		[]any{float64(cycleStart.Unix())}, "")
	if err != nil {
		return err
	}

	countResult, err := w.api.Execute(ctx,
		`SELECT COUNT(*) as count FROM files WHERE (deleted = 0 OR deleted IS NULL) AND needs_chunking = 1`,
		nil, "")
	if err != nil {
		return err
	}
	filesTotal := firstCount(countResult)

	_, err = w.api.Execute(ctx,
		`INSERT INTO indexing_worker_stats (
			cycle_id, cycle_start_time, files_total_at_start,
			files_indexed, files_failed,
			total_processing_time_seconds, average_processing_time_seconds,
			last_updated
		) VALUES (?, ?, ?, 0, 0, 0.0, NULL, julianday('now'))`,
		[]any{cycleID, float64(cycleStart.Unix()), filesTotal}, "")
	return err
}

func (w *Worker) closeCycle(ctx context.Context, cycleID string) {
	_, err := w.api.Execute(ctx,
		`UPDATE indexing_worker_stats SET cycle_end_time = ?, last_updated = julianday('now') WHERE cycle_id = ?`,
		[]any{float64(time.Now().Unix()), cycleID}, "")
	if err != nil {
		w.log.Debug("failed to close indexing cycle stats", "error", err.Error())
	}
}

func (w *Worker) discoverProjects(ctx context.Context) ([]string, error) {
	result, err := w.api.Execute(ctx,
		`SELECT DISTINCT project_id FROM files WHERE (deleted = 0 OR deleted IS NULL) AND needs_chunking = 1`,
		nil, "")
	if err != nil {
		return nil, err
	}
	rows := rowsOf(result)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["project_id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type candidateFile struct {
	path string
}

func (w *Worker) fetchBatch(ctx context.Context, projectID string) ([]candidateFile, error) {
	result, err := w.api.Execute(ctx,
		`SELECT path FROM files WHERE project_id = ? AND (deleted = 0 OR deleted IS NULL)
		 AND needs_chunking = 1 ORDER BY updated_at ASC LIMIT ?`,
		[]any{projectID, w.cfg.BatchSize}, "")
	if err != nil {
		return nil, err
	}
	rows := rowsOf(result)
	out := make([]candidateFile, 0, len(rows))
	for _, row := range rows {
		if path, ok := row["path"].(string); ok && path != "" {
			out = append(out, candidateFile{path: path})
		}
	}
	return out, nil
}

func (w *Worker) indexOne(ctx context.Context, cycleID, projectID, path string) bool {
	start := time.Now()
	_, err := w.rpc.Call(ctx, "index_file", map[string]any{
		"project_id": projectID,
		"file_path":  path,
	}, "")
	elapsed := time.Since(start).Seconds()

	success := err == nil
	if success {
		w.log.Debug("indexed file", "project_id", projectID, "path", path)
		if w.ledger != nil {
			_ = w.ledger.Remove(projectID, path)
		}
	} else {
		w.log.Warn("index failed", "project_id", projectID, "path", path, "error", err.Error())
		if w.ledger != nil {
			_ = w.ledger.Add(projectID, path, err.Error())
		}
	}

	w.updateCycleStats(ctx, cycleID, success, elapsed)
	return success
}

func (w *Worker) updateCycleStats(ctx context.Context, cycleID string, success bool, elapsed float64) {
	indexedDelta, failedDelta := 0, 1
	if success {
		indexedDelta, failedDelta = 1, 0
	}
	_, err := w.api.Execute(ctx,
		`UPDATE indexing_worker_stats SET
			files_indexed = files_indexed + ?,
			files_failed = files_failed + ?,
			total_processing_time_seconds = total_processing_time_seconds + ?,
			last_updated = julianday('now')
		 WHERE cycle_id = ?`,
		[]any{indexedDelta, failedDelta, elapsed, cycleID}, "")
	if err != nil {
		w.log.Debug("failed to update cycle stats", "error", err.Error())
		return
	}
	_, err = w.api.Execute(ctx,
		`UPDATE indexing_worker_stats SET average_processing_time_seconds = CASE
			WHEN (files_indexed + files_failed) > 0
			THEN total_processing_time_seconds / (files_indexed + files_failed)
			ELSE NULL END
		 WHERE cycle_id = ?`,
		[]any{cycleID}, "")
	if err != nil {
		w.log.Debug("failed to recompute average processing time", "error", err.Error())
	}
}

func rowsOf(result map[string]any) []map[string]any {
	raw, _ := result["data"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstCount(result map[string]any) int64 {
	rows := rowsOf(result)
	if len(rows) == 0 {
		return 0
	}
	switch n := rows[0]["count"].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
