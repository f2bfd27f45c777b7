package config

import "time"

// ProviderSettings holds configuration for the outbound email provider.
type ProviderSettings struct {
	Type        string        `mapstructure:"type" validate:"required,oneof=api log"`
	BaseURL     string        `mapstructure:"base_url" validate:"required_if=Type api,omitempty,url"`
	APIKey      string        `mapstructure:"api_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	FromAddress string        `mapstructure:"from_address" validate:"required_if=Type api,omitempty,email"`
	FromName    string        `mapstructure:"from_name"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}
