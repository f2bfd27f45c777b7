package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadpage/mailroom/pkg/config"
)

func apiSettings(baseURL string) *config.ProviderSettings {
	return &config.ProviderSettings{
		Type:        "api",
		BaseURL:     baseURL,
		APIKey:      "key",
		SecretKey:   "secret",
		FromAddress: "noreply@squadpage.net",
		FromName:    "Squadpage",
		Timeout:     200 * time.Millisecond,
	}
}

func TestAPIMailer_SendSuccess(t *testing.T) {
	var got apiSendRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/v3/send", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m, err := NewMailer(apiSettings(ts.URL))
	require.NoError(t, err)
	defer m.Close()

	err = m.Send(context.Background(), Message{
		ToAddress: "a@x.com",
		ToName:    "Alex",
		Subject:   "Welcome",
		Body:      "You are in.",
		Tags:      []string{"approval"},
	})
	require.NoError(t, err)

	assert.Equal(t, "noreply@squadpage.net", got.From.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "a@x.com", got.To[0].Email)
	assert.Equal(t, "Welcome", got.Subject)
	assert.Equal(t, []string{"approval"}, got.Tags)
}

func TestAPIMailer_ProviderErrorIsSendFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	m, err := NewMailer(apiSettings(ts.URL))
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{ToAddress: "a@x.com", Subject: "Hi", Body: "Hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestAPIMailer_TimeoutIsSendFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m, err := NewMailer(apiSettings(ts.URL))
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{ToAddress: "a@x.com", Subject: "Hi", Body: "Hi"})
	assert.Error(t, err)
}

func TestNewMailer_UnsupportedType(t *testing.T) {
	_, err := NewMailer(&config.ProviderSettings{Type: "smtp"})
	assert.Error(t, err)
}

func TestLogMailer_NeverFails(t *testing.T) {
	m, err := NewMailer(&config.ProviderSettings{Type: "log"})
	require.NoError(t, err)
	assert.NoError(t, m.Send(context.Background(), Message{ToAddress: "a@x.com"}))
	assert.NoError(t, m.Close())
}
