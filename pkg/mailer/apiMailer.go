package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/squadpage/mailroom/pkg/config"
)

// apiMailer delivers messages through the provider's JSON HTTP API.
// Everything that goes wrong on the wire, including the client timeout,
// surfaces as a plain error and follows the caller's retry path.
type apiMailer struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	secretKey   string
	fromAddress string
	fromName    string
}

type apiRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type apiSendRequest struct {
	From     apiRecipient   `json:"from"`
	To       []apiRecipient `json:"to"`
	Subject  string         `json:"subject"`
	TextBody string         `json:"text_body"`
	Tags     []string       `json:"tags,omitempty"`
}

func newAPIMailer(settings *config.ProviderSettings) *apiMailer {
	return &apiMailer{
		client:      &http.Client{Timeout: settings.Timeout},
		baseURL:     settings.BaseURL,
		apiKey:      settings.APIKey,
		secretKey:   settings.SecretKey,
		fromAddress: settings.FromAddress,
		fromName:    settings.FromName,
	}
}

func (m *apiMailer) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(apiSendRequest{
		From:     apiRecipient{Email: m.fromAddress, Name: m.fromName},
		To:       []apiRecipient{{Email: msg.ToAddress, Name: msg.ToName}},
		Subject:  msg.Subject,
		TextBody: msg.Body,
		Tags:     msg.Tags,
	})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(m.apiKey, m.secretKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}

	logrus.WithFields(logrus.Fields{
		"to":      msg.ToAddress,
		"subject": msg.Subject,
	}).Debug("provider accepted message")
	return nil
}

func (m *apiMailer) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
