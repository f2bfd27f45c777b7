package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	return Settings{
		Database: DbSettings{
			Type: "sqlite",
			DSN:  "mailroom.db",
		},
		Provider: ProviderSettings{
			Type:        "api",
			BaseURL:     "https://mail.example.com",
			APIKey:      "key",
			SecretKey:   "secret",
			FromAddress: "noreply@squadpage.net",
			Timeout:     15 * time.Second,
		},
		Server: ServerSettings{
			ListenAddr: ":8085",
			CronToken:  "cron-secret",
		},
		Worker: WorkerSettings{
			BatchSize:       10,
			PollInterval:    5 * time.Second,
			BackoffSchedule: []time.Duration{5 * time.Second, 5 * time.Minute, time.Hour},
		},
		Observability: Observability{
			ServiceName: "mailroom",
		},
	}
}

func TestValidate_ValidSettings(t *testing.T) {
	cfg := validSettings()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidDatabaseType(t *testing.T) {
	cfg := validSettings()
	cfg.Database.Type = "oracle"
	assert.Error(t, cfg.Validate())
}

func TestValidate_APIProviderNeedsBaseURL(t *testing.T) {
	cfg := validSettings()
	cfg.Provider.BaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_EmptyScheduleRejected(t *testing.T) {
	cfg := validSettings()
	cfg.Worker.BackoffSchedule = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_DecreasingScheduleRejected(t *testing.T) {
	cfg := validSettings()
	cfg.Worker.BackoffSchedule = []time.Duration{time.Hour, 5 * time.Second}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-decreasing")
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	yaml := `
database:
  type: sqlite
  dsn: test.db
provider:
  type: log
server:
  listen_addr: ":9000"
  cron_token: cron-secret
worker:
  batch_size: 5
  backoff_schedule: ["1s", "2s", "3s"]
observability:
  service_name: mailroom-test
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mailroom.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadFromFile(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "test.db", cfg.Database.DSN)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, 5, cfg.Worker.BatchSize)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, cfg.Worker.BackoffSchedule)
	// Defaults fill what the file leaves out.
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Provider.Timeout)
}

func TestLoadFromFile_DefaultScheduleIsBounded(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	yaml := `
database:
  type: sqlite
  dsn: test.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mailroom.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadFromFile(dir)
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Worker.BackoffSchedule)
	assert.Equal(t, 5*time.Second, cfg.Worker.BackoffSchedule[0])
	for i := 1; i < len(cfg.Worker.BackoffSchedule); i++ {
		assert.GreaterOrEqual(t, cfg.Worker.BackoffSchedule[i], cfg.Worker.BackoffSchedule[i-1])
	}
}
