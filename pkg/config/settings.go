package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Settings struct {
	Database      DbSettings       `mapstructure:"database"`
	Provider      ProviderSettings `mapstructure:"provider"`
	Server        ServerSettings   `mapstructure:"server"`
	Worker        WorkerSettings   `mapstructure:"worker"`
	Alerting      AlertSettings    `mapstructure:"alerting"`
	Observability Observability    `mapstructure:"observability"`
}

type DbSettings struct {
	Type     string `mapstructure:"type" validate:"required,oneof=sqlite postgres mongo"`
	DSN      string `mapstructure:"dsn"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type ServerSettings struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
	CronToken  string `mapstructure:"cron_token"`
	AdminToken string `mapstructure:"admin_token"`
}

type WorkerSettings struct {
	BatchSize       int             `mapstructure:"batch_size" validate:"gte=1"`
	PollInterval    time.Duration   `mapstructure:"poll_interval" validate:"gt=0"`
	BackoffSchedule []time.Duration `mapstructure:"backoff_schedule" validate:"min=1"`
}

type AlertSettings struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" validate:"omitempty,url"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	// The schedule must stay finite and non-decreasing; that is what
	// bounds total retries per job.
	for i := 1; i < len(c.Worker.BackoffSchedule); i++ {
		if c.Worker.BackoffSchedule[i] < c.Worker.BackoffSchedule[i-1] {
			return fmt.Errorf("backoff schedule must be non-decreasing, got %v before %v",
				c.Worker.BackoffSchedule[i-1], c.Worker.BackoffSchedule[i])
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "mailroom.db")
	viper.SetDefault("server.listen_addr", ":8085")
	viper.SetDefault("worker.batch_size", 10)
	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.backoff_schedule", []time.Duration{
		5 * time.Second,
		5 * time.Minute,
		time.Hour,
		3 * time.Hour,
		6 * time.Hour,
		24 * time.Hour,
	})
	viper.SetDefault("provider.type", "log")
	viper.SetDefault("provider.timeout", 15*time.Second)
	viper.SetDefault("observability.service_name", "mailroom")
}

func LoadFromFile(filePath string) (*Settings, error) {

	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	setDefaults()
	viper.SetConfigType("yaml")
	viper.SetConfigName("mailroom")
	viper.AddConfigPath(filePath) // path to config
	viper.AddConfigPath(".")      // current directory

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("No config file found or read error: %v (will rely on env)", err)
	}

	err := mergeConfig(filePath, "mailroom."+env)
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error merging %s config: %s\n", env, err)
			os.Exit(1)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatalf("Failed to load from env: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("MAILROOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like MAILROOM_DATABASE_TYPE

	// Bind environment variables explicitly to ensure they map correctly
	viper.BindEnv("database.type")
	viper.BindEnv("database.dsn")
	viper.BindEnv("database.uri")
	viper.BindEnv("database.database")
	viper.BindEnv("provider.type")
	viper.BindEnv("provider.base_url")
	viper.BindEnv("provider.api_key")
	viper.BindEnv("provider.secret_key")
	viper.BindEnv("provider.from_address")
	viper.BindEnv("provider.from_name")
	viper.BindEnv("provider.timeout")
	viper.BindEnv("server.listen_addr")
	viper.BindEnv("server.cron_token")
	viper.BindEnv("server.admin_token")
	viper.BindEnv("worker.batch_size")
	viper.BindEnv("worker.poll_interval")
	viper.BindEnv("alerting.slack_webhook_url")
	viper.BindEnv("observability.service_name")
	viper.BindEnv("observability.tracing_url")

	if err := viper.Unmarshal(&c); err != nil {
		return err
	}
	return nil
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	err := viper.MergeInConfig()
	if err != nil {
		return err
	}
	return nil
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
