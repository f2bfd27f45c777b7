package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/squadpage/mailroom/pkg/config"
	"github.com/squadpage/mailroom/pkg/store"
)

// Notifier reports jobs that reached terminal failed state. No retry
// happens after give-up, so this is the operator's only signal.
type Notifier interface {
	JobGaveUp(ctx context.Context, job store.OutboxJob)
}

// NewNotifier returns a Slack notifier when a webhook is configured,
// otherwise a no-op.
func NewNotifier(cfg *config.AlertSettings) Notifier {
	if cfg.SlackWebhookURL == "" {
		return NopNotifier{}
	}
	return &SlackNotifier{
		webhookURL: cfg.SlackWebhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type NopNotifier struct{}

func (NopNotifier) JobGaveUp(context.Context, store.OutboxJob) {}

// SlackNotifier posts a short block message to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func (n *SlackNotifier) JobGaveUp(ctx context.Context, job store.OutboxJob) {
	text := fmt.Sprintf("Outbox gave up on job %d (%s) after %d attempts: %s: %s",
		job.ID, job.JobType, job.Attempts, job.LastError, job.LastErrorDetail)
	payload, err := json.Marshal(map[string]any{
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": text},
			},
		},
	})
	if err != nil {
		logrus.WithError(err).Error("encode give-up alert")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		logrus.WithError(err).Error("build give-up alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logrus.WithError(err).Error("send give-up alert")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		logrus.WithField("status", resp.StatusCode).Error("give-up alert rejected")
	}
}
