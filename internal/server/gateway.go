package server

import (
	"fmt"
	"log/slog"

	"github.com/appforgehq/appforge/internal/config"
	"github.com/appforgehq/appforge/internal/gateway"
)

// NewGateway wires the HTTP gateway around the same platform components
// the MCP server uses. The cleanup contract matches New.
func NewGateway(cfg *config.Config, gwCfg gateway.Config, log *slog.Logger) (*gateway.Gateway, func(), error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, noop, fmt.Errorf("checking configuration: %w", err)
	}

	orch, _ := buildPlatform(cfg, log)
	hist, cleanup := openHistory(cfg, log)

	gw, err := gateway.New(gwCfg, orch, hist, log)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return gw, cleanup, nil
}
