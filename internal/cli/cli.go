// Package cli provides the command-line interface for dirsync.
package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dirsync/internal/config"
	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:      "dirsync",
		Usage:     "Reconcile two directory trees with repeated rsync passes",
		UsageText: "dirsync [-c -d -n -o -v] source_dir target_uri",
		Version:   Version,
		Description: `Reconcile a local source directory against a target, which is either a
   local path or host:path reachable over ssh. Each invocation is one
   non-overlapping pass: changes since the last pass are detected from
   directory snapshots, locally modified paths are shielded from the pull,
   and rsync performs the actual transfers with versioned backups.

   Examples:
     dirsync ~/work backuphost:work
     dirsync -n ~/work /mnt/mirror/work`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "cvsignore",
				Aliases: []string{"c"},
				Usage:   "Sync ~/.cvsignore to the target host and honor its patterns",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Preview the pass without modifying either endpoint (implies verbose)",
			},
			&cli.BoolFlag{
				Name:    "override",
				Aliases: []string{"o"},
				Usage:   "Let the endpoint settings file override invocation options",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output (info level logging)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			configureColors(cmd)
			return ctx, configureLogging(cmd)
		},
		Action: runPass,
	}
	return app.Run(ctx, args)
}

// configureColors sets up color output based on configuration and TTY state.
func configureColors(_ *cli.Command) {
	cfg, err := config.Load()
	if err != nil {
		return
	}
	switch cfg.Output.Color {
	case "never":
		ui.DisableColors()
	case "always":
		ui.EnableColors()
	default:
		if !ui.IsTerminal() {
			ui.DisableColors()
		}
	}
}

// configureLogging sets up the logging level based on CLI flags.
func configureLogging(cmd *cli.Command) error {
	opts := logging.DefaultOptions()

	switch {
	case cmd.Bool("debug"):
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	case cmd.Bool("verbose") || cmd.Bool("dry-run"):
		opts.Level = slog.LevelInfo
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}
