package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadpage/mailroom/pkg/config"
	"github.com/squadpage/mailroom/pkg/store"
)

func TestNewNotifier_NopWithoutWebhook(t *testing.T) {
	n := NewNotifier(&config.AlertSettings{})
	assert.IsType(t, NopNotifier{}, n)
	// Must be safe to call.
	n.JobGaveUp(context.Background(), store.OutboxJob{})
}

func TestSlackNotifier_PostsGiveUp(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewNotifier(&config.AlertSettings{SlackWebhookURL: ts.URL})
	n.JobGaveUp(context.Background(), store.OutboxJob{
		ID:              7,
		JobType:         "approval-notice",
		Attempts:        6,
		LastError:       store.ErrCodeSendFailed,
		LastErrorDetail: "provider returned 503",
	})

	require.NotNil(t, body)
	blocks, ok := body["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 1)
	text := blocks[0].(map[string]any)["text"].(map[string]any)["text"].(string)
	assert.Contains(t, text, "job 7")
	assert.Contains(t, text, "approval-notice")
	assert.Contains(t, text, "send_failed")
}
