package backend

import (
	"fmt"
	"os"

	"github.com/re-cinq/foreman/internal/config"
)

// New constructs the Backend variant selected by cfg.Backend.Kind (spec
// §4.B: the variant is selected at Session construction).
func New(cfg *config.Config) (Backend, error) {
	switch cfg.Backend.Kind {
	case "cli":
		return &CLI{
			Command:  cfg.Backend.Command,
			Args:     cfg.Backend.Args,
			Timeout:  cfg.Backend.Timeout.Duration(),
			ExtraEnv: cfg.Backend.ExtraEnv,
		}, nil
	case "chat":
		return &Chat{BaseURL: cfg.Backend.BaseURL, Model: cfg.Backend.Model, APIKey: os.Getenv("OPENROUTER_API_KEY"), Timeout: cfg.Backend.Timeout.Duration()}, nil
	case "local":
		return &Chat{BaseURL: cfg.Backend.BaseURL, Model: cfg.Backend.Model, APIKey: os.Getenv("OPENROUTER_API_KEY"), Timeout: cfg.Backend.Timeout.Duration()}, nil
	case "mock":
		return &Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}
