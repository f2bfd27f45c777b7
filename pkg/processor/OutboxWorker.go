package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/squadpage/mailroom/pkg/alert"
	"github.com/squadpage/mailroom/pkg/config"
	"github.com/squadpage/mailroom/pkg/mailer"
	"github.com/squadpage/mailroom/pkg/store"
)

// OutboxWorker drains due outbox jobs. RunBatchOnce is safe to call
// from any number of overlapping triggers; exclusivity comes from the
// store's conditional claim, not from anything the worker holds.
type OutboxWorker struct {
	repo      store.OutboxStore
	mailer    mailer.Mailer
	alerts    alert.Notifier
	clock     Clock
	tracer    trace.Tracer
	validate  *validator.Validate
	schedule  []time.Duration
	batchSize int
}

// NewOutboxWorker creates a new instance of OutboxWorker.
func NewOutboxWorker(repo store.OutboxStore, m mailer.Mailer, alerts alert.Notifier, cfg *config.WorkerSettings) *OutboxWorker {
	return &OutboxWorker{
		repo:      repo,
		mailer:    m,
		alerts:    alerts,
		clock:     SystemClock{},
		tracer:    otel.Tracer("mailroom"),
		validate:  validator.New(),
		schedule:  cfg.BackoffSchedule,
		batchSize: cfg.BatchSize,
	}
}

// RunBatchOnce claims one batch of due jobs and resolves each of them.
// The returned error covers only the claim step; per-job failures are
// recorded on the job and logged, never propagated to the trigger.
func (w *OutboxWorker) RunBatchOnce(ctx context.Context) error {
	runLog := logrus.WithField("run_id", uuid.NewString())

	jobs, err := w.repo.ClaimDueBatch(ctx, w.batchSize)
	if err != nil {
		runLog.WithError(err).Error("failed to claim due jobs")
		return fmt.Errorf("claim due batch: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	runLog.WithField("claimed", len(jobs)).Info("processing outbox batch")
	for i := range jobs {
		w.processJob(ctx, jobs[i], runLog)
	}
	return nil
}

func (w *OutboxWorker) processJob(ctx context.Context, job store.OutboxJob, runLog *logrus.Entry) {
	ctx, span := w.tracer.Start(ctx, "ProcessOutboxJob", trace.WithAttributes(
		attribute.Int64("job.id", job.ID),
		attribute.String("job.type", job.JobType),
		attribute.Int("job.attempts", job.Attempts),
	))
	defer span.End()

	jobLog := runLog.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.JobType})

	// A panic in one job must not take down the rest of the batch.
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			jobLog.WithError(err).Error("unexpected failure while processing job")
			w.resolveFailure(ctx, job, store.ErrCodeUnexpected, err.Error(), jobLog)
		}
	}()

	msg, err := decodePayload(w.validate, job.JobType, job.Payload)
	if err != nil {
		// A payload that cannot be delivered today cannot be delivered
		// tomorrow either; give up without contacting the provider.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.giveUp(ctx, job, job.Attempts+1, store.ErrCodeInvalidPayload, err.Error(), jobLog)
		return
	}

	if err := w.mailer.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobLog.WithError(err).Warn("provider send failed")
		w.resolveFailure(ctx, job, store.ErrCodeSendFailed, err.Error(), jobLog)
		return
	}

	if err := w.repo.MarkSent(ctx, job.ID); err != nil {
		span.RecordError(err)
		jobLog.WithError(err).Error("failed to mark job sent")
		return
	}
	jobLog.Info("job sent")
}

// resolveFailure applies the backoff schedule: failed attempt n waits
// schedule[n-1] before the next claim, and an attempt with no schedule
// entry left is terminal.
func (w *OutboxWorker) resolveFailure(ctx context.Context, job store.OutboxJob, code store.ErrorCode, detail string, jobLog *logrus.Entry) {
	attempt := job.Attempts + 1
	if attempt-1 < len(w.schedule) {
		next := w.clock.Now().Add(w.schedule[attempt-1])
		if err := w.repo.MarkRetry(ctx, job.ID, attempt, code, detail, next); err != nil {
			jobLog.WithError(err).Error("failed to schedule retry")
			return
		}
		jobLog.WithFields(logrus.Fields{"attempt": attempt, "next_attempt_at": next}).Info("job scheduled for retry")
		return
	}
	w.giveUp(ctx, job, attempt, code, detail, jobLog)
}

func (w *OutboxWorker) giveUp(ctx context.Context, job store.OutboxJob, attempts int, code store.ErrorCode, detail string, jobLog *logrus.Entry) {
	if err := w.repo.MarkGaveUp(ctx, job.ID, attempts, code, detail); err != nil {
		jobLog.WithError(err).Error("failed to mark job failed")
		return
	}
	jobLog.WithFields(logrus.Fields{"attempts": attempts, "error_code": code}).Error("giving up on job")
	job.Attempts = attempts
	job.LastError = code
	job.LastErrorDetail = detail
	w.alerts.JobGaveUp(ctx, job)
}
