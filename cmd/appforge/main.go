// Appforge: an MCP server and HTTP gateway that turns plain-language
// descriptions into published web applications on the appforge platform.
//
// Usage:
//
//	appforge serve        # Start MCP server (stdio transport)
//	appforge serve-http   # Start the HTTP gateway
//	appforge check        # Verify credentials against the platform
//	appforge update       # Update to the latest version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/appforgehq/appforge/internal/config"
	"github.com/appforgehq/appforge/internal/gateway"
	"github.com/appforgehq/appforge/internal/logging"
	appserver "github.com/appforgehq/appforge/internal/server"
	"github.com/appforgehq/appforge/internal/updater"
)

// checkTimeout bounds the "check" command's sign-in sequence.
const checkTimeout = 60 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		fail(runServe())
	case "serve-http":
		fail(runServeHTTP(os.Args[2:]))
	case "check":
		fail(runCheck())
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("appforge v%s\n", appserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// fail prints err to stderr and exits non-zero. A nil err is a normal
// exit.
func fail(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// bootstrap parses the environment and builds the process logger. Logs
// go to stderr so the MCP stdio transport keeps stdout to itself.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Parse(os.Environ())
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runServe() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	s, cleanup, err := appserver.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Best-effort version check on stderr so it cannot disturb the
	// protocol stream.
	go checkForUpdates()

	return server.ServeStdio(s)
}

func runServeHTTP(args []string) error {
	fs := flag.NewFlagSet("serve-http", flag.ExitOnError)
	configPath := fs.String("config", "", "gateway YAML config file overriding the environment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	gwCfg := gateway.FromEnv(cfg)
	if *configPath != "" {
		loaded, err := gateway.Load(*configPath, gwCfg)
		if err != nil {
			return err
		}
		gwCfg = *loaded
	}

	gw, cleanup, err := appserver.NewGateway(cfg, gwCfg, log)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer cleanup()

	go checkForUpdates()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return gw.Serve(ctx)
}

func runCheck() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🔍 Checking access to %s...\n", cfg.Host)

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if err := appserver.CheckAccess(ctx, cfg, log); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✅ Signed in to %s as %s\n", cfg.Host, cfg.Username)
	return nil
}

// checkForUpdates runs a non-blocking version check and prints a notice
// to stderr if an update is available.
func checkForUpdates() {
	result := updater.CheckVersion(appserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  📦 Update available: v%s → v%s\n"+
				"     Run: appforge update\n"+
				"     Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	fmt.Fprintf(os.Stderr, "🔍 Checking for updates...\n")

	result := updater.CheckVersion(appserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "✅ Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "📦 New version available: v%s → v%s\n", result.CurrentVersion, result.LatestVersion)
	fmt.Fprintf(os.Stderr, "⬇️  Downloading...\n")

	if err := updater.SelfUpdate(appserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "\n   You can download manually from:\n   %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "✅ Updated to v%s!\n", result.LatestVersion)
	fmt.Fprintf(os.Stderr, "   Restart appforge to use the new version.\n")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Appforge v%s — publish web applications from plain-language descriptions

Usage:
  appforge serve               Start the MCP server (stdio transport)
  appforge serve-http [flags]  Start the HTTP gateway
  appforge check               Verify credentials against the platform
  appforge update              Update to the latest version
  appforge version             Print the version

Flags for serve-http:
  -config <path>   Gateway YAML config file overriding the environment

Configuration (environment):
  APPFORGE_HOST        Tenant management host, e.g. acme.appforge.dev
  APPFORGE_USERNAME    Platform username
  APPFORGE_PASSWORD    Platform password
  APPFORGE_HTTP_TOKEN  Bearer token for the HTTP gateway (serve-http)

MCP config for your AI tool:

  {
    "mcpServers": {
      "appforge": {
        "command": "appforge",
        "args": ["serve"],
        "env": {
          "APPFORGE_HOST": "acme.appforge.dev",
          "APPFORGE_USERNAME": "you@example.com",
          "APPFORGE_PASSWORD": "..."
        }
      }
    }
  }

Learn more: https://github.com/appforgehq/appforge
`, appserver.Version)
}
