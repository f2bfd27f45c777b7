package mailer

import (
	"fmt"

	"github.com/squadpage/mailroom/pkg/config"
)

// NewMailer builds the configured provider adapter.
func NewMailer(cfg *config.ProviderSettings) (Mailer, error) {
	switch cfg.Type {
	case "api":
		return newAPIMailer(cfg), nil
	case "log":
		return logMailer{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
