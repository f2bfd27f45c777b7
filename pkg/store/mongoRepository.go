package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
)

// MongoRepository stores outbox jobs in a MongoDB collection. Job ids
// come from a counters collection so claim ordering stays oldest-first.
type MongoRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewMongoRepository(ctx context.Context, client *mongo.Client, database, collection string) (*MongoRepository, error) {
	m := &MongoRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MongoRepository) jobs() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

func (m *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := m.jobs().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "job_type", Value: 1}, {Key: "correlation_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"correlation_key": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}, {Key: "id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create outbox indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) nextID(ctx context.Context) (int64, error) {
	counters := m.client.Database(m.database).Collection(m.collection + "_counters")
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "outbox_jobs"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next job id: %w", err)
	}
	return counter.Seq, nil
}

func (m *MongoRepository) Enqueue(ctx context.Context, jobType, correlationKey string, payload json.RawMessage) (EnqueueResult, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Enqueue")
	defer span.End()
	start := time.Now()

	id, err := m.nextID(ctx)
	if err != nil {
		span.RecordError(err)
		return EnqueueCreated, err
	}

	now := time.Now().UTC()
	doc := bson.M{
		"id":         id,
		"job_type":   jobType,
		"payload":    string(payload),
		"status":     StatusPending,
		"attempts":   0,
		"created_at": now,
		"updated_at": now,
	}
	if correlationKey != "" {
		doc["correlation_key"] = correlationKey
	}
	if _, err := m.jobs().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return EnqueueDuplicate, nil
		}
		span.RecordError(err)
		return EnqueueCreated, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	addDBStatsToSpan(span, "mongodb", "Enqueue", 1, time.Since(start))
	return EnqueueCreated, nil
}

func (m *MongoRepository) ClaimDueBatch(ctx context.Context, limit int) ([]OutboxJob, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ClaimDueBatch")
	defer span.End()
	start := time.Now()

	now := time.Now().UTC()
	filter := bson.M{
		"status": StatusPending,
		"$or": []bson.M{
			{"next_attempt_at": nil},
			{"next_attempt_at": bson.M{"$lte": now}},
		},
	}
	update := bson.M{"$set": bson.M{
		"status":        StatusProcessing,
		"processing_at": now,
		"updated_at":    now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "id", Value: 1}}).
		SetReturnDocument(options.After)

	// FindOneAndUpdate is atomic per document, so each iteration claims
	// exactly one job even when triggers run concurrently.
	var claimed []OutboxJob
	for i := 0; i < limit; i++ {
		var doc mongoJob
		err := m.jobs().FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("claim due job: %w", err)
		}
		claimed = append(claimed, doc.toJob())
	}

	addDBStatsToSpan(span, "mongodb", "ClaimDueBatch", len(claimed), time.Since(start))
	return claimed, nil
}

func (m *MongoRepository) MarkSent(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return m.resolve(ctx, "MarkSent", id, bson.M{
		"$set": bson.M{
			"status":     StatusSent,
			"sent_at":    now,
			"updated_at": now,
		},
		"$unset": bson.M{"next_attempt_at": "", "last_error": "", "last_error_detail": ""},
	})
}

func (m *MongoRepository) MarkRetry(ctx context.Context, id int64, attempts int, code ErrorCode, detail string, nextAttemptAt time.Time) error {
	return m.resolve(ctx, "MarkRetry", id, bson.M{
		"$set": bson.M{
			"status":            StatusPending,
			"attempts":          attempts,
			"last_error":        code,
			"last_error_detail": detail,
			"next_attempt_at":   nextAttemptAt.UTC(),
			"updated_at":        time.Now().UTC(),
		},
	})
}

func (m *MongoRepository) MarkGaveUp(ctx context.Context, id int64, attempts int, code ErrorCode, detail string) error {
	return m.resolve(ctx, "MarkGaveUp", id, bson.M{
		"$set": bson.M{
			"status":            StatusFailed,
			"attempts":          attempts,
			"last_error":        code,
			"last_error_detail": detail,
			"updated_at":        time.Now().UTC(),
		},
		"$unset": bson.M{"next_attempt_at": ""},
	})
}

// resolve applies a mark-* transition guarded on processing status;
// zero matches means the job was already resolved and is a no-op.
func (m *MongoRepository) resolve(ctx context.Context, name string, id int64, update bson.M) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	start := time.Now()

	filter := bson.M{"id": id, "status": StatusProcessing}
	if _, err := m.jobs().UpdateOne(ctx, filter, update); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", name, err)
	}

	addDBStatsToSpan(span, "mongodb", name, 1, time.Since(start))
	return nil
}

func (m *MongoRepository) FindByCorrelation(ctx context.Context, jobType, correlationKey string) (*OutboxJob, error) {
	var doc mongoJob
	err := m.jobs().FindOne(ctx, bson.M{"job_type": jobType, "correlation_key": correlationKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job := doc.toJob()
	return &job, nil
}

func (m *MongoRepository) PendingCount(ctx context.Context) (int64, error) {
	count, err := m.jobs().CountDocuments(ctx, bson.M{"status": StatusPending})
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

// mongoJob is the stored document shape; payload is a string so the
// collection stays readable regardless of what callers queue.
type mongoJob struct {
	ID              int64      `bson:"id"`
	JobType         string     `bson:"job_type"`
	CorrelationKey  string     `bson:"correlation_key,omitempty"`
	Payload         string     `bson:"payload"`
	Status          Status     `bson:"status"`
	Attempts        int        `bson:"attempts"`
	LastError       ErrorCode  `bson:"last_error,omitempty"`
	LastErrorDetail string     `bson:"last_error_detail,omitempty"`
	NextAttemptAt   *time.Time `bson:"next_attempt_at,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
	SentAt          *time.Time `bson:"sent_at,omitempty"`
	ProcessingAt    *time.Time `bson:"processing_at,omitempty"`
}

func (d mongoJob) toJob() OutboxJob {
	return OutboxJob{
		ID:              d.ID,
		JobType:         d.JobType,
		CorrelationKey:  d.CorrelationKey,
		Payload:         json.RawMessage(d.Payload),
		Status:          d.Status,
		Attempts:        d.Attempts,
		LastError:       d.LastError,
		LastErrorDetail: d.LastErrorDetail,
		NextAttemptAt:   d.NextAttemptAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		SentAt:          d.SentAt,
		ProcessingAt:    d.ProcessingAt,
	}
}
