package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dirsync/internal/config"
	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/engine"
	"github.com/klauern/dirsync/internal/ui"
)

// runPass is the root action: one reconciliation pass per invocation.
func runPass(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() < 2 {
		// Too few positional arguments reads as a request for usage,
		// same as -h: show help and exit 0.
		return cli.ShowAppHelp(cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	opts := endpoint.Options{
		DryRun:        cmd.Bool("dry-run"),
		Verbose:       cmd.Bool("verbose") || cmd.Bool("debug") || cfg.Output.Verbose,
		SyncCVSIgnore: cmd.Bool("cvsignore"),
		AllowOverride: cmd.Bool("override"),
	}
	// A dry run is only useful if you can see what it would do.
	if opts.DryRun {
		opts.Verbose = true
	}

	sess, err := endpoint.NewSession(args.Get(0), args.Get(1), opts, time.Now())
	if err != nil {
		return err
	}

	result, err := engine.New(cfg).Run(ctx, sess)
	if err != nil {
		return err
	}

	if result.Disabled {
		fmt.Fprintln(os.Stderr, ui.StatusSkipped("endpoint disabled, nothing to do"))
		return nil
	}

	if opts.Verbose {
		fmt.Fprintln(os.Stderr, ui.RenderReport(ui.Report{
			Pass:          result.Pass,
			Mode:          string(result.Mode),
			DryRun:        result.DryRun,
			Added:         result.Added,
			Removed:       result.Removed,
			Protected:     result.Protected,
			PullRan:       result.PullRan,
			PushRan:       result.PushRan,
			PullBackupDir: result.PullBackupDir,
			PushBackupDir: result.PushBackupDir,
			HistoryDir:    result.HistoryDir,
			Duration:      result.Duration,
		}))
	}

	return nil
}
