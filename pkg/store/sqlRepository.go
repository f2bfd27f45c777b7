package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
)

const jobColumns = `id, job_type, correlation_key, payload, status, attempts, last_error, last_error_detail, next_attempt_at, created_at, updated_at, sent_at, processing_at`

// sqlRepository implements OutboxStore on database/sql. The sqlite and
// postgres backends embed it and differ only in placeholder style,
// duplicate-key detection and schema DDL.
type sqlRepository struct {
	db          *sql.DB
	system      string
	rebind      func(string) string
	isDuplicate func(error) bool
}

func (r *sqlRepository) Enqueue(ctx context.Context, jobType, correlationKey string, payload json.RawMessage) (EnqueueResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Enqueue")
	defer span.End()
	start := time.Now()

	now := time.Now().UTC()
	var key any
	if correlationKey != "" {
		key = correlationKey
	}
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO outbox_jobs (job_type, correlation_key, payload, status, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)`),
		jobType, key, string(payload), StatusPending, now, now)
	if err != nil {
		if r.isDuplicate(err) {
			return EnqueueDuplicate, nil
		}
		span.RecordError(err)
		return EnqueueCreated, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	addDBStatsToSpan(span, r.system, "Enqueue", 1, time.Since(start))
	return EnqueueCreated, nil
}

func (r *sqlRepository) ClaimDueBatch(ctx context.Context, limit int) ([]OutboxJob, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ClaimDueBatch")
	defer span.End()
	start := time.Now()

	now := time.Now().UTC()
	// TODO: reclaim rows stuck in processing once processing_at is older
	// than a staleness threshold; they belong to a crashed worker and are
	// invisible to this query until swept.
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT `+jobColumns+` FROM outbox_jobs
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY id ASC LIMIT ?`),
		StatusPending, now, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("select due jobs: %w", err)
	}
	defer rows.Close()

	var due []OutboxJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		due = append(due, *job)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Claim each row individually: the conditional update succeeds for
	// exactly one caller when triggers race on the same row.
	claimed := make([]OutboxJob, 0, len(due))
	for _, job := range due {
		res, err := r.db.ExecContext(ctx, r.rebind(
			`UPDATE outbox_jobs SET status = ?, processing_at = ?, updated_at = ? WHERE id = ? AND status = ?`),
			StatusProcessing, now, now, job.ID, StatusPending)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("claim job %d: %w", job.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if affected == 0 {
			continue // lost the race to a concurrent trigger
		}
		claimedAt := now
		job.Status = StatusProcessing
		job.ProcessingAt = &claimedAt
		job.UpdatedAt = now
		claimed = append(claimed, job)
	}

	addDBStatsToSpan(span, r.system, "ClaimDueBatch", len(claimed), time.Since(start))
	return claimed, nil
}

func (r *sqlRepository) MarkSent(ctx context.Context, id int64) error {
	return r.resolve(ctx, "MarkSent", r.rebind(
		`UPDATE outbox_jobs
         SET status = ?, sent_at = ?, updated_at = ?, next_attempt_at = NULL, last_error = NULL, last_error_detail = NULL
         WHERE id = ? AND status = ?`),
		StatusSent, time.Now().UTC(), time.Now().UTC(), id, StatusProcessing)
}

func (r *sqlRepository) MarkRetry(ctx context.Context, id int64, attempts int, code ErrorCode, detail string, nextAttemptAt time.Time) error {
	return r.resolve(ctx, "MarkRetry", r.rebind(
		`UPDATE outbox_jobs
         SET status = ?, attempts = ?, last_error = ?, last_error_detail = ?, next_attempt_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`),
		StatusPending, attempts, code, detail, nextAttemptAt.UTC(), time.Now().UTC(), id, StatusProcessing)
}

func (r *sqlRepository) MarkGaveUp(ctx context.Context, id int64, attempts int, code ErrorCode, detail string) error {
	return r.resolve(ctx, "MarkGaveUp", r.rebind(
		`UPDATE outbox_jobs
         SET status = ?, attempts = ?, last_error = ?, last_error_detail = ?, next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`),
		StatusFailed, attempts, code, detail, time.Now().UTC(), id, StatusProcessing)
}

// resolve runs a mark-* transition. A transition whose guard no longer
// matches (the row already left processing) affects zero rows and is a
// deliberate no-op, defending against double resolution.
func (r *sqlRepository) resolve(ctx context.Context, name, query string, args ...any) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()
	start := time.Now()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", name, err)
	}

	addDBStatsToSpan(span, r.system, name, 1, time.Since(start))
	return nil
}

func (r *sqlRepository) FindByCorrelation(ctx context.Context, jobType, correlationKey string) (*OutboxJob, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "FindByCorrelation")
	defer span.End()

	row := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT `+jobColumns+` FROM outbox_jobs WHERE job_type = ? AND correlation_key = ?`),
		jobType, correlationKey)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return job, nil
}

func (r *sqlRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(*) FROM outbox_jobs WHERE status = ?`), StatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*OutboxJob, error) {
	var (
		job            OutboxJob
		correlationKey sql.NullString
		payload        []byte
		lastError      sql.NullString
		lastDetail     sql.NullString
		nextAttemptAt  sql.NullTime
		sentAt         sql.NullTime
		processingAt   sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.JobType, &correlationKey, &payload, &job.Status, &job.Attempts,
		&lastError, &lastDetail, &nextAttemptAt, &job.CreatedAt, &job.UpdatedAt, &sentAt, &processingAt)
	if err != nil {
		return nil, err
	}
	job.CorrelationKey = correlationKey.String
	job.Payload = json.RawMessage(payload)
	job.LastError = ErrorCode(lastError.String)
	job.LastErrorDetail = lastDetail.String
	if nextAttemptAt.Valid {
		t := nextAttemptAt.Time
		job.NextAttemptAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		job.SentAt = &t
	}
	if processingAt.Valid {
		t := processingAt.Time
		job.ProcessingAt = &t
	}
	return &job, nil
}
