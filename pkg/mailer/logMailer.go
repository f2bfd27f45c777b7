package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// logMailer logs messages instead of delivering them. Used in
// development and when no provider is configured.
type logMailer struct{}

func (logMailer) Send(_ context.Context, msg Message) error {
	logrus.WithFields(logrus.Fields{
		"to":      msg.ToAddress,
		"subject": msg.Subject,
		"tags":    msg.Tags,
	}).Info("log mailer: message not sent")
	return nil
}

func (logMailer) Close() error {
	return nil
}
