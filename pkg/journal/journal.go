// Package journal implements the driver's append-only query log: one JSON
// line per executed statement, rotated by size, with a deterministic
// replay routine for crash recovery.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/maverikod/code-analysis-db/pkg/logging"
)

// DefaultMaxBytes and DefaultBackupCount mirror the original driver's
// rotation defaults: rotate at 100 MiB, keep 5 backups.
const (
	DefaultMaxBytes   int64 = 100 * 1024 * 1024
	DefaultBackupCount       = 5
)

// Entry is one journaled statement.
type Entry struct {
	Timestamp     string `json:"ts"`
	SQL           string `json:"sql"`
	Params        any    `json:"params,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// Journal is a size-rotated, mutex-serialized append-only JSONL writer.
type Journal struct {
	mu          sync.Mutex
	path        string
	maxBytes    int64
	backupCount int
	file        *os.File
	log         *logging.Logger
}

// Open opens (creating if needed) the journal file at path for appending.
// maxBytes <= 0 disables rotation.
func Open(path string, maxBytes int64, backupCount int) (*Journal, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", abs, err)
	}
	if backupCount <= 0 {
		backupCount = DefaultBackupCount
	}
	return &Journal{
		path:        abs,
		maxBytes:    maxBytes,
		backupCount: backupCount,
		file:        f,
		log:         logging.Default().With("component", "journal"),
	}, nil
}

// Path returns the journal's resolved file path.
func (j *Journal) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.path
}

// Write appends one entry. Write never returns an error to the caller —
// failures are logged and swallowed, matching the original driver's
// best-effort journaling (a journal write failure must never abort the
// statement it's recording).
func (j *Journal) Write(sqlText string, params any, transactionID string, success bool, errText string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return
	}
	j.rotateIfNeeded()
	if j.file == nil {
		return
	}

	entry := Entry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		SQL:           sqlText,
		Params:        params,
		TransactionID: transactionID,
		Success:       success,
		Error:         errText,
	}
	line, err := sonic.Marshal(entry)
	if err != nil {
		j.log.Warn("journal entry marshal failed", "error", err.Error())
		return
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		j.log.Warn("journal write failed", "error", err.Error())
		return
	}
	_ = j.file.Sync()
}

// rotateIfNeeded shifts .1 -> .2, .2 -> .3, ..., moves the current file to
// .1, and opens a fresh file, once the current file has reached maxBytes.
// Must be called with j.mu held.
func (j *Journal) rotateIfNeeded() {
	if j.maxBytes <= 0 {
		return
	}
	info, err := j.file.Stat()
	if err != nil || info.Size() < j.maxBytes {
		return
	}

	if err := j.file.Close(); err != nil {
		j.log.Warn("journal rotation close failed", "error", err.Error())
	}
	j.file = nil

	for i := j.backupCount - 1; i >= 1; i-- {
		oldName := fmt.Sprintf("%s.%d", j.path, i)
		newName := fmt.Sprintf("%s.%d", j.path, i+1)
		if _, err := os.Stat(oldName); err == nil {
			_ = os.Remove(newName)
			if err := os.Rename(oldName, newName); err != nil {
				j.log.Warn("journal rotation shift failed", "from", oldName, "to", newName, "error", err.Error())
			}
		}
	}
	if err := os.Rename(j.path, j.path+".1"); err != nil {
		j.log.Warn("journal rotation failed", "path", j.path, "error", err.Error())
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		j.log.Warn("journal reopen after rotation failed", "error", err.Error())
		return
	}
	j.file = f
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ExecuteFunc runs one replayed statement. params is either []any
// (positional) or map[string]any (named), matching how the entry's
// params field was serialized when written.
type ExecuteFunc func(sqlText string, params any) error

// ReplayResult reports the outcome of a Replay call.
type ReplayResult struct {
	Replayed int
	Failed   int
	Errors   []string
}

// Replay scans journalPath line by line in order, optionally skipping
// failed entries, and calls execute for each surviving one. Unparseable
// lines count as failures rather than aborting the scan. limit caps the
// total number of entries considered (successes and failures together);
// limit <= 0 means no cap.
func Replay(journalPath string, execute ExecuteFunc, onlySuccess bool, limit int) ReplayResult {
	f, err := os.Open(journalPath)
	if err != nil {
		return ReplayResult{Errors: []string{"journal file not found"}}
	}
	defer f.Close()

	var result ReplayResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if limit > 0 && result.Replayed+result.Failed >= limit {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := sonic.Unmarshal(line, &entry); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("invalid JSON: %v", err))
			continue
		}
		if onlySuccess && !entry.Success {
			continue
		}
		if entry.SQL == "" {
			result.Failed++
			result.Errors = append(result.Errors, "missing sql in entry")
			continue
		}

		params := normalizeReplayParams(entry.Params)
		if err := execute(entry.SQL, params); err != nil {
			result.Failed++
			truncated := entry.SQL
			if len(truncated) > 50 {
				truncated = truncated[:50]
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s...: %v", truncated, err))
			continue
		}
		result.Replayed++
	}
	return result
}

// normalizeReplayParams converts a decoded JSON value back into the shape
// execute() expects: a []any for positional params (JSON arrays decode as
// []any already) or a map[string]any for named params.
func normalizeReplayParams(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case map[string]any:
		return v
	default:
		return nil
	}
}
