// Package dlq is the per-file failure ledger the indexing worker consults
// after a failed index_file call: a durable record of which (project, path)
// pairs failed, why, and when they become eligible for another attempt.
package dlq

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "file_failures"

const (
	baseDelay     = 1 * time.Second
	maxDelay      = 60 * time.Second
	backoffFactor = 2.0
)

// FileFailure records one file that failed indexing.
type FileFailure struct {
	ProjectID   string    `json:"project_id"`
	Path        string    `json:"path"`
	ErrorText   string    `json:"error_text"`
	FailedAt    time.Time `json:"failed_at"`
	RetryCount  int       `json:"retry_count"`
	LastRetryAt time.Time `json:"last_retry_at,omitempty"`
	NextRetryAt time.Time `json:"next_retry_at"`
}

func key(projectID, path string) []byte {
	return []byte(projectID + "\x00" + path)
}

// DeadLetterQueue is a bbolt-backed ledger of indexing failures, one entry
// per (project_id, path). Add is idempotent: a repeat failure for the same
// file bumps its retry count and pushes NextRetryAt out by exponential
// backoff instead of creating a duplicate entry.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	db      *bbolt.DB
	maxSize int
}

// Open opens (creating if absent) a dead-letter store at dbPath. maxSize<=0
// falls back to a default cap of 10000 tracked failures.
func Open(dbPath string, maxSize int) (*DeadLetterQueue, error) {
	if maxSize <= 0 {
		maxSize = 10000
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("dlq: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dlq: create bucket: %w", err)
	}

	return &DeadLetterQueue{db: db, maxSize: maxSize}, nil
}

// Add records a failed indexing attempt for (projectID, path), creating a
// new entry or bumping an existing one's retry count and backoff.
func (q *DeadLetterQueue) Add(projectID, path, errText string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	k := key(projectID, path)

	return q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return fmt.Errorf("dlq: bucket not found")
		}

		var entry FileFailure
		if existing := bucket.Get(k); existing != nil {
			if err := json.Unmarshal(existing, &entry); err != nil {
				return fmt.Errorf("dlq: unmarshal existing entry: %w", err)
			}
			entry.RetryCount++
			entry.LastRetryAt = now
		} else {
			stats := bucket.Stats()
			if stats.KeyN >= q.maxSize {
				return fmt.Errorf("dlq: full (size %d)", stats.KeyN)
			}
			entry = FileFailure{ProjectID: projectID, Path: path, FailedAt: now}
		}
		entry.ErrorText = errText
		entry.NextRetryAt = now.Add(backoff(entry.RetryCount))

		blob, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("dlq: marshal entry: %w", err)
		}
		return bucket.Put(k, blob)
	})
}

func backoff(retryCount int) time.Duration {
	delay := time.Duration(float64(baseDelay) * pow(backoffFactor, retryCount))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Get returns the failure entry for (projectID, path), or nil if none.
func (q *DeadLetterQueue) Get(projectID, path string) (*FileFailure, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var entry *FileFailure
	err := q.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get(key(projectID, path))
		if data == nil {
			return nil
		}
		entry = &FileFailure{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// Remove clears a file's failure record, typically called after it indexes
// successfully.
func (q *DeadLetterQueue) Remove(projectID, path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.Delete(key(projectID, path))
	})
}

// List returns every tracked failure, in bbolt's key (project_id, path)
// order.
func (q *DeadLetterQueue) List() ([]FileFailure, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []FileFailure
	err := q.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(_, v []byte) error {
			var entry FileFailure
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			out = append(out, entry)
			return nil
		})
	})
	return out, err
}

// ReplayReady returns every tracked failure whose backoff has elapsed as of
// now, so a future indexing cycle (or an operator report) can retry them.
func (q *DeadLetterQueue) ReplayReady(now time.Time) ([]FileFailure, error) {
	all, err := q.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, entry := range all {
		if !entry.NextRetryAt.After(now) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Count returns the number of tracked failures.
func (q *DeadLetterQueue) Count() (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var count int
	err := q.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		count = bucket.Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the underlying bbolt database.
func (q *DeadLetterQueue) Close() error {
	return q.db.Close()
}
