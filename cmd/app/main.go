package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/questline/internal"
	pkgconfig "github.com/starford/questline/pkg/config"
)

// loadConfig reads the optional config file, applies QUESTLINE_* variables
// and then the command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if p := cmd.String("document"); p != "" {
		expanded, err := pkgconfig.ExpandPath(p)
		if err != nil {
			return nil, err
		}
		cfg.Document.Path = expanded
	}
	if sel := cmd.StringSlice("select"); len(sel) > 0 {
		cfg.Document.Selection = sel
	}
	if cmd.IsSet("settle-delay") {
		cfg.Scan.SettleDelay = cmd.Duration("settle-delay")
	}
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:   "questline",
		Usage:  "Scan questline frames, validate quests and export per-state image bundles",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "document",
				Aliases: []string{"d"},
				Usage:   "Scene snapshot to operate on (overrides document.path)",
			},
			&cli.StringSliceFlag{
				Name:  "select",
				Usage: "Node id or name to select (overrides document.selection)",
			},
			&cli.DurationFlag{
				Name:  "settle-delay",
				Usage: "Wait after each state switch before rendering",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP, SSE and WebSocket server (default)",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "Scan the selected questline and print the result as JSON",
				Action: scanCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "images", Usage: "Keep preview data URLs in the output"},
				},
			},
			{
				Name:   "export",
				Usage:  "Scan, export and write the bundle zip",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output zip path (default <questlineId>.zip)",
					},
				},
			},
			{
				Name:   "inspect",
				Usage:  "Print how each child of the questline is interpreted",
				Action: inspectCommand,
			},
			{
				Name:      "verify",
				Usage:     "Check a bundle zip against the bundle layout",
				ArgsUsage: "<bundle.zip>",
				Action:    verifyCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdin/stdout",
				Action: mcpCommand,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
