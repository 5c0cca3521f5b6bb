package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/questline/internal"
	"github.com/starford/questline/internal/bundle"
	"github.com/starford/questline/internal/export"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/mcpserver"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/plugin"
)

// errIssues is returned when a command finished but reported blocking issues.
var errIssues = errors.New("questline has blocking issues")

// openRuntime wires the core for a one-shot command. Logs go to stderr so
// stdout carries only the command output.
func openRuntime(cmd *cli.Command, opts ...plugin.Option) (*internal.Runtime, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	rt, err := internal.NewRuntime(cfg, logger, nil, opts...)
	if err != nil {
		return nil, nil, err
	}
	return rt, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scanCommand(ctx context.Context, cmd *cli.Command) error {
	rt, _, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Session.Scan(ctx)
	if err != nil {
		return err
	}
	out := res
	if !cmd.Bool("images") {
		out = res.WithoutImages()
	}
	if err := printJSON(cmd.Root().Writer, out); err != nil {
		return err
	}
	if issue.HasErrors(res.Issues) {
		return errIssues
	}
	return nil
}

func exportCommand(ctx context.Context, cmd *cli.Command) error {
	var (
		written string
		sinkErr error
	)
	toFile := export.SinkFunc(func(_ context.Context, b models.Bundle) error {
		path := cmd.String("out")
		if path == "" {
			path = models.FolderName(b.QuestlineID) + ".zip"
		}
		data, err := bundle.Pack(b)
		if err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
		if err != nil {
			sinkErr = fmt.Errorf("write bundle %s: %w", path, err)
			return sinkErr
		}
		written = path
		return nil
	})

	rt, logger, err := openRuntime(cmd, plugin.WithSink(toFile))
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Session.Export(ctx, nil)
	if err != nil {
		return err
	}
	if res.Manifest == nil {
		for _, i := range res.Issues {
			fmt.Fprintf(cmd.Root().ErrWriter, "%s: %s\n\n%s\n\n", i.Code, i.Message, issue.Describe(i))
		}
		return errIssues
	}
	if sinkErr != nil {
		return fmt.Errorf("export: %w", sinkErr)
	}
	if written == "" {
		return errors.New("export: no bundle was written")
	}

	logger.Info("bundle written",
		slog.String("path", written),
		slog.String("questline_id", res.Manifest.QuestlineID),
		slog.Int("quests", len(res.Manifest.Quests)))
	return printJSON(cmd.Root().Writer, res.Manifest)
}

func inspectCommand(ctx context.Context, cmd *cli.Command) error {
	rt, _, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rep, err := rt.Session.Inspect(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, rep)
}

func verifyCommand(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("verify: bundle path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	rep, err := bundle.VerifyArchive(data)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if err := printJSON(cmd.Root().Writer, rep); err != nil {
		return err
	}
	return rep.Err()
}

func mcpCommand(_ context.Context, cmd *cli.Command) error {
	rt, _, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	return mcpserver.New(rt.Session, rt.Archive).ServeStdio()
}
