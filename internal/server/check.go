package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/appforgehq/appforge/internal/config"
)

// CheckAccess verifies the configured credentials by running the full
// sign-in sequence and fetching an access token.
func CheckAccess(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := cfg.ValidateCredentials(); err != nil {
		return fmt.Errorf("checking configuration: %w", err)
	}
	_, tokens := buildPlatform(cfg, log)
	if _, err := tokens.Token(ctx); err != nil {
		return err
	}
	return nil
}
