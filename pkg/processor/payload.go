package processor

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/squadpage/mailroom/pkg/mailer"
)

// Job types the worker knows how to deliver. An unknown type is a
// permanent payload failure, never retried.
const (
	JobTypeApprovalNotice = "approval-notice"
	JobTypeBroadcast      = "broadcast"
)

type emailPayload struct {
	ToEmail string   `json:"to_email" validate:"required,email"`
	ToName  string   `json:"to_name"`
	Subject string   `json:"subject" validate:"required"`
	Body    string   `json:"body" validate:"required"`
	Tags    []string `json:"tags"`
}

// decodePayload turns a stored payload into a deliverable message. The
// switch over job types is total; adding a type means adding its
// contract here.
func decodePayload(validate *validator.Validate, jobType string, raw json.RawMessage) (mailer.Message, error) {
	var p emailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return mailer.Message{}, fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return mailer.Message{}, fmt.Errorf("payload contract: %w", err)
	}
	msg := mailer.Message{
		ToAddress: p.ToEmail,
		ToName:    p.ToName,
		Subject:   p.Subject,
		Body:      p.Body,
	}
	switch jobType {
	case JobTypeApprovalNotice:
		return msg, nil
	case JobTypeBroadcast:
		msg.Tags = p.Tags
		return msg, nil
	default:
		return mailer.Message{}, fmt.Errorf("unknown job type %q", jobType)
	}
}
