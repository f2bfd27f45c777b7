package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no matching job exists.
var ErrNotFound = errors.New("outbox job not found")

// OutboxStore defines the database operations for outbox jobs. All
// mutations are single atomic statements; the claim step is the only
// write gate that hands a job to a worker.
type OutboxStore interface {
	// Enqueue inserts a new pending job with zero attempts. When
	// correlationKey is non-empty and a job for the same (jobType,
	// correlationKey) already exists, it returns EnqueueDuplicate and
	// inserts nothing.
	Enqueue(ctx context.Context, jobType, correlationKey string, payload json.RawMessage) (EnqueueResult, error)
	// ClaimDueBatch selects up to limit due pending jobs oldest-id-first
	// and flips each to processing with a conditional per-row update.
	// Only jobs whose conditional update succeeded are returned, so
	// concurrent callers never claim the same job twice.
	ClaimDueBatch(ctx context.Context, limit int) ([]OutboxJob, error)
	// MarkSent resolves a claimed job as delivered. No-op if the job is
	// no longer processing.
	MarkSent(ctx context.Context, id int64) error
	// MarkRetry schedules a claimed job for another attempt. No-op if
	// the job is no longer processing.
	MarkRetry(ctx context.Context, id int64, attempts int, code ErrorCode, detail string, nextAttemptAt time.Time) error
	// MarkGaveUp resolves a claimed job as terminally failed. No-op if
	// the job is no longer processing.
	MarkGaveUp(ctx context.Context, id int64, attempts int, code ErrorCode, detail string) error
	// FindByCorrelation returns the job for a (jobType, correlationKey)
	// pair, or ErrNotFound.
	FindByCorrelation(ctx context.Context, jobType, correlationKey string) (*OutboxJob, error)
	// PendingCount returns the number of jobs currently pending.
	PendingCount(ctx context.Context) (int64, error)
}
