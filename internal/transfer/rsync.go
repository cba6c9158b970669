// Package transfer wraps the external transfer engine (rsync) and the
// remote shell (ssh). The engine is a black box to the rest of dirsync:
// it mirrors a tree, deletes destination entries absent from the source,
// honors exclusion patterns, and backs up anything it overwrites or
// deletes. Nothing here inspects file contents.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/klauern/dirsync/internal/config"
	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/util"
)

// ErrEngineFailure is returned when the transfer engine exits non-zero.
// The engine's own retry and robustness are trusted; dirsync adds no retry
// layer of its own, so the failure propagates straight out of the pass.
var ErrEngineFailure = errors.New("transfer engine failure")

// Request describes one mirror invocation.
type Request struct {
	// Source and Dest are the two sides of the transfer. Content flows
	// source to dest.
	Source endpoint.Endpoint
	Dest   endpoint.Endpoint

	// Delete removes destination entries absent from the source.
	Delete bool

	// DryRun previews the transfer without modifying the destination.
	DryRun bool

	// Verbose passes the engine's verbose flag through.
	Verbose bool

	// CVSIgnore honors the engine's ignore-file conventions.
	CVSIgnore bool

	// ExcludeFrom names a local file of exclusion patterns (the protected
	// list). Empty means only the control directory is excluded.
	ExcludeFrom string

	// BackupDir receives versioned copies of everything the engine
	// overwrites or deletes. Interpreted relative to the destination side.
	BackupDir string
}

// Engine invokes the transfer engine according to the loaded configuration.
type Engine struct {
	runner    Runner
	rsync     string
	extraArgs []string
}

// New creates an Engine backed by a real ExecRunner with the configured
// per-invocation timeout.
func New(cfg *config.Config) *Engine {
	return NewWithRunner(cfg, &ExecRunner{Timeout: cfg.Transfer.Timeout})
}

// NewWithRunner creates an Engine with a caller-supplied runner, which tests
// use to script the engine's behavior.
func NewWithRunner(cfg *config.Config, runner Runner) *Engine {
	return &Engine{
		runner:    runner,
		rsync:     cfg.Transfer.Rsync,
		extraArgs: cfg.Transfer.ExtraArgs,
	}
}

// Mirror runs one transfer. A non-zero engine exit wraps ErrEngineFailure
// with the tail of the engine's stderr.
func (e *Engine) Mirror(ctx context.Context, req Request) error {
	args := e.buildArgs(req)

	logging.Debug("invoking transfer engine",
		logging.Operation("mirror"),
		slog.String("source", req.Source.Spec()),
		slog.String("dest", req.Dest.Spec()),
		slog.Bool("delete", req.Delete),
		slog.Bool("dry_run", req.DryRun),
	)

	res, err := e.runner.Run(ctx, e.rsync, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: exit %d: %s", ErrEngineFailure, res.ExitCode, stderrTail(res.Stderr))
	}
	return nil
}

// buildArgs assembles the rsync argv for a request.
func (e *Engine) buildArgs(req Request) []string {
	args := []string{"-a"}

	if req.DryRun {
		args = append(args, "-n")
	}
	if req.Verbose {
		args = append(args, "-v")
	}
	if req.CVSIgnore {
		args = append(args, "-C")
	}
	if req.Delete {
		args = append(args, "--delete")
	}

	// The control directory never crosses between endpoints.
	args = append(args, "--exclude=/"+util.ControlDirName)
	if req.ExcludeFrom != "" {
		args = append(args, "--exclude-from="+req.ExcludeFrom)
	}

	if req.BackupDir != "" {
		args = append(args, "--backup", "--backup-dir="+req.BackupDir)
	}

	args = append(args, e.extraArgs...)

	// A trailing slash on the source mirrors the tree's contents rather
	// than the directory itself.
	src := strings.TrimSuffix(req.Source.Spec(), "/") + "/"
	args = append(args, src, req.Dest.Spec())

	return args
}

// PushIgnoreFile copies the user's ~/.cvsignore to the target host's home
// directory so both sides ignore the same patterns.
func (e *Engine) PushIgnoreFile(ctx context.Context, host string) error {
	src := filepath.Join(util.HomeDir(), ".cvsignore")

	res, err := e.runner.Run(ctx, e.rsync, src, host+":")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: exit %d: %s", ErrEngineFailure, res.ExitCode, stderrTail(res.Stderr))
	}
	return nil
}

// stderrTail keeps error messages readable when the engine is chatty.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	const keep = 3
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, "; ")
}
