package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hllvc/toconline-mcp/internal/app"
	"github.com/hllvc/toconline-mcp/internal/observability"
	"github.com/hllvc/toconline-mcp/internal/tools"
)

// version is set at build time via -ldflags.
var version = "dev"

// Execute runs the root command with the given context and arguments.
// Running without a subcommand starts the MCP server.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:    "toconline-mcp",
		Usage:   "MCP server for the TOC Online accounting platform",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--transport",
				Usage: "transport (stdio|http)",
				Value: string(app.DefaultConfigServerTransport),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "HTTP server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "HTTP server port",
				Value: app.DefaultConfigServerPort,
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "TOC Online API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.BoolFlag{
				Name:  "safety--read-only",
				Usage: "reject all write operations",
			},
			&cli.StringFlag{
				Name:  "modules",
				Usage: fmt.Sprintf("comma-separated tool modules to load (default all: %s)", strings.Join(tools.ModuleNames(), ",")),
			},
		},
		Commands: []*cli.Command{
			authCommand(),
		},
		Action: serveAction,
	}

	return cmd.Run(ctx, args)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	err = observability.Instrument(cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Exporter)
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(flushCtx); err != nil {
			slog.Warn("flushing telemetry", "error", err)
		}
	}()

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting", "transport", cfg.Server.Transport)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
