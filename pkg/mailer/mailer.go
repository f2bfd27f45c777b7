package mailer

import "context"

// Message is one fully-rendered outbound email. Rendering and locale
// selection happen in the caller before the job is enqueued.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Body      string
	Tags      []string
}

// Mailer defines the operations to deliver a message to the provider.
type Mailer interface {
	// Send delivers the message. It applies its own network timeout; a
	// timeout is an ordinary send failure to the caller.
	Send(ctx context.Context, msg Message) error
	// Close cleans up any resources (connections).
	Close() error
}
