package store

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of an outbox job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// ErrorCode classifies the last failure recorded on a job.
type ErrorCode string

const (
	ErrCodeSendFailed     ErrorCode = "send_failed"
	ErrCodeInvalidPayload ErrorCode = "invalid_payload"
	ErrCodeUnexpected     ErrorCode = "unexpected_error"
)

// EnqueueResult is the outcome of an Enqueue call. Duplicate means a job
// for the same (job type, correlation key) already exists; callers treat
// it as a successful no-op.
type EnqueueResult int

const (
	EnqueueCreated EnqueueResult = iota
	EnqueueDuplicate
)

func (r EnqueueResult) String() string {
	if r == EnqueueDuplicate {
		return "duplicate"
	}
	return "created"
}

// OutboxJob represents one outbound email stored in the outbox table.
type OutboxJob struct {
	ID              int64           `json:"id" bson:"id"`
	JobType         string          `json:"job_type" bson:"job_type"`
	CorrelationKey  string          `json:"correlation_key,omitempty" bson:"correlation_key,omitempty"`
	Payload         json.RawMessage `json:"payload" bson:"payload"`
	Status          Status          `json:"status" bson:"status"`
	Attempts        int             `json:"attempts" bson:"attempts"`
	LastError       ErrorCode       `json:"last_error,omitempty" bson:"last_error,omitempty"`
	LastErrorDetail string          `json:"last_error_detail,omitempty" bson:"last_error_detail,omitempty"`
	NextAttemptAt   *time.Time      `json:"next_attempt_at,omitempty" bson:"next_attempt_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" bson:"updated_at"`
	SentAt          *time.Time      `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	ProcessingAt    *time.Time      `json:"processing_at,omitempty" bson:"processing_at,omitempty"`
}
