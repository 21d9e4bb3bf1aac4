// ABOUTME: Durable sync job queue backed by Badger
// ABOUTME: Webhook receipts enqueue work here so acknowledgement never depends on the sync finishing
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v3"
)

const (
	jobPrefix = "syncjob:"

	// jobTTL bounds how long an unprocessed job survives; a source that still
	// matters will be re-enqueued by the next webhook or picked up by the
	// staleness cron anyway.
	jobTTL = 24 * time.Hour
)

// Queue is a durable at-least-once dispatch buffer for sync jobs. Jobs are
// keyed by calendar source id, so a source with a pending job is not enqueued
// twice.
type Queue struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenQueue opens (or creates) the Badger store backing the queue.
func OpenQueue(path string, logger *slog.Logger) (*Queue, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open job queue: %w", err)
	}
	return &Queue{db: bdb, logger: logger}, nil
}

// Close releases the underlying store.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue records a pending sync for a calendar source. Enqueueing an
// already-pending source is a no-op by construction (same key).
func (q *Queue) Enqueue(sourceID string) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(jobPrefix+sourceID), []byte(time.Now().UTC().Format(time.RFC3339))).
			WithTTL(jobTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue sync job: %w", err)
	}
	return nil
}

// Pending returns the source ids with queued jobs.
func (q *Queue) Pending() ([]string, error) {
	var out []string
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(jobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return out, nil
}

// dequeue removes a job after it was handled.
func (q *Queue) dequeue(sourceID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(jobPrefix + sourceID))
	})
}

// Run drains the queue until ctx is cancelled, invoking handle for each
// pending source id. Jobs are removed after handling regardless of the sync
// outcome: a failed source is retried by the staleness cron, not by the
// queue, which keeps a poisoned source from looping hot here.
func (q *Queue) Run(ctx context.Context, interval time.Duration, handle func(ctx context.Context, sourceID string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := q.Pending()
		if err != nil {
			q.logger.Error("failed to read job queue", "error", err)
			continue
		}

		for _, sourceID := range pending {
			if ctx.Err() != nil {
				return
			}
			handle(ctx, sourceID)
			if err := q.dequeue(sourceID); err != nil {
				q.logger.Error("failed to dequeue sync job", "source_id", sourceID, "error", err)
			}
		}
	}
}
