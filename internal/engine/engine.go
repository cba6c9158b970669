// Package engine sequences one reconciliation pass: resolve the mode, take
// the lock, rotate and capture snapshots, derive the protected set, invoke
// the transfer engine in the mode's direction order, and finalize.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauern/dirsync/internal/config"
	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/history"
	"github.com/klauern/dirsync/internal/lock"
	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/progress"
	"github.com/klauern/dirsync/internal/protect"
	"github.com/klauern/dirsync/internal/settings"
	"github.com/klauern/dirsync/internal/state"
	"github.com/klauern/dirsync/internal/transfer"
	"github.com/klauern/dirsync/internal/util"
)

// passPhases is the number of progress steps in a full pass.
const passPhases = 6

// Orchestrator runs reconciliation passes.
type Orchestrator struct {
	cfg    *config.Config
	engine *transfer.Engine
	shell  *transfer.RemoteShell
}

// New creates an orchestrator that invokes the real transfer engine and
// remote shell.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		engine: transfer.New(cfg),
		shell:  transfer.NewRemoteShell(cfg),
	}
}

// NewWithRunner creates an orchestrator whose external invocations all go
// through runner. Tests use it to script engine behavior.
func NewWithRunner(cfg *config.Config, runner transfer.Runner) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		engine: transfer.NewWithRunner(cfg, runner),
		shell:  transfer.NewRemoteShellWithRunner(cfg, runner),
	}
}

// Run executes one pass for the session. The lock is released on every
// exit path once acquired, including cancellation; no other state is
// guaranteed consistent if the pass is interrupted, and the next pass's
// rotate/capture steps reconcile whatever partial state remains.
func (o *Orchestrator) Run(ctx context.Context, sess *endpoint.Session) (*Result, error) {
	defer logging.Timer("pass")()
	start := time.Now()

	result := &Result{
		Pass:   sess.Timestamp,
		Phase:  PhaseIdle,
		DryRun: sess.Options.DryRun,
	}

	tracker := state.NewTracker(sess.Primary.Path)

	firstPass, err := o.resolveMode(ctx, sess, tracker)
	if err != nil {
		return result, err
	}
	result.Mode = sess.Mode

	// The settings gate runs before locking: a disabled endpoint is a
	// clean no-op, not a contended session.
	cfg, err := settings.Load(util.SettingsPath(sess.Primary.Path))
	if err != nil {
		return result, err
	}
	if !cfg.Enabled {
		logging.Info("endpoint disabled, skipping pass", logging.Endpoint(sess.Primary.Path))
		result.Disabled = true
		result.Duration = time.Since(start)
		return result, nil
	}
	if sess.Options.AllowOverride && cfg.Mode != "" {
		logging.Debug("settings override mode",
			logging.Endpoint(sess.Primary.Path),
			logging.Mode(string(cfg.Mode)),
		)
		sess.Upgrade(cfg.Mode)
		result.Mode = sess.Mode
	}

	handle, err := lock.Acquire(sess.Primary.Path)
	if err != nil {
		return result, err
	}
	defer handle.Release()
	result.Phase = PhaseLocked

	var bar *progress.Bar
	if sess.Options.Verbose {
		bar = progress.Steps(passPhases, "reconciling")
	}
	step := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	recorder := history.NewRecorder(tracker)
	if err := recorder.Begin(); err != nil {
		return result, err
	}

	if err := tracker.Rotate(); err != nil {
		return result, err
	}
	if _, err := tracker.CaptureCurrent(); err != nil {
		return result, err
	}
	step()

	cmp, err := tracker.ComputeDelta()
	if err != nil {
		return result, err
	}
	result.Added, result.Removed = cmp.Delta.Counts()
	step()

	shield, err := protect.Build(sess.Primary.Path, cmp.Delta, tracker.LastRun())
	if err != nil {
		return result, err
	}
	protectedList := util.ProtectedListPath(sess.Primary.Path)
	if err := shield.WriteFile(protectedList); err != nil {
		return result, err
	}
	result.Protected = shield.Len()
	step()

	// The ignore-file push is a real transfer with no preview form, so a
	// dry run skips it entirely.
	if sess.Options.SyncCVSIgnore && sess.Secondary.IsRemote() && !sess.Options.DryRun {
		if err := o.engine.PushIgnoreFile(ctx, sess.Secondary.Host); err != nil {
			return result, err
		}
	}

	pull, push := directions(sess.Mode)
	logging.Info("starting pass",
		logging.Endpoint(sess.Primary.Path),
		logging.Mode(string(sess.Mode)),
		logging.Pass(sess.Timestamp),
		slog.Bool("first_pass", firstPass),
		slog.Bool("dry_run", sess.Options.DryRun),
	)

	if pull.run {
		req := transfer.Request{
			Source:    sess.Secondary,
			Dest:      sess.Primary,
			Delete:    pull.delete,
			DryRun:    sess.Options.DryRun,
			Verbose:   sess.Options.Verbose,
			CVSIgnore: sess.Options.SyncCVSIgnore,
			BackupDir: filepath.Join(util.BackupDir(sess.Primary.Path, sess.Timestamp), "pull"),
		}
		if pull.masked {
			req.ExcludeFrom = protectedList
		}
		if err := o.engine.Mirror(ctx, req); err != nil {
			return result, fmt.Errorf("pull phase: %w", err)
		}
		result.PullRan = true
		result.PullBackupDir = req.BackupDir
		result.Phase = PhasePulled
	}
	step()

	if push.run {
		req := transfer.Request{
			Source:    sess.Primary,
			Dest:      sess.Secondary,
			Delete:    push.delete,
			DryRun:    sess.Options.DryRun,
			Verbose:   sess.Options.Verbose,
			CVSIgnore: sess.Options.SyncCVSIgnore,
			// The engine resolves a relative backup-dir against the
			// destination directory, so this slash-form relative path puts
			// push backups under the secondary's control directory whether
			// the target is local or remote.
			BackupDir: path.Join(util.ControlDirName, util.BackupDirName, sess.Timestamp, "push"),
		}
		if err := o.engine.Mirror(ctx, req); err != nil {
			return result, fmt.Errorf("push phase: %w", err)
		}
		result.PushRan = true
		result.PushBackupDir = req.BackupDir
		result.Phase = PhasePushed
	}
	step()

	if sess.Options.DryRun {
		if err := recorder.Discard(); err != nil {
			return result, err
		}
		// A dry first pass had to scaffold the control directory for its
		// working files; a preview must not leave the endpoint initialized.
		if firstPass {
			if err := os.RemoveAll(util.ControlDir(sess.Primary.Path)); err != nil {
				return result, fmt.Errorf("remove previewed control directory: %w", err)
			}
		}
	} else {
		if err := recorder.Commit(ctx, sess, o.shell, start); err != nil {
			return result, err
		}
		result.HistoryDir = util.HistoryDir(sess.Primary.Path, sess.Timestamp)

		if _, err := history.Prune(sess.Primary.Path, o.cfg.History.Keep); err != nil {
			logging.Warn("history pruning failed", logging.Endpoint(sess.Primary.Path), logging.Err(err))
		}
	}
	result.Phase = PhaseFinalized
	step()
	if bar != nil {
		_ = bar.Finish()
	}

	result.Duration = time.Since(start)
	return result, nil
}

// resolveMode is the single mode-resolution step per pass. A session
// starts in mirror mode; an uninitialized primary is initialized and the
// pass proceeds as a first mirror pass; when both endpoints are already
// initialized the mode upgrades to full-duplex.
func (o *Orchestrator) resolveMode(ctx context.Context, sess *endpoint.Session, tracker *state.Tracker) (firstPass bool, err error) {
	if !tracker.IsInitialized() {
		if err := tracker.Initialize(); err != nil {
			return false, err
		}
		return true, nil
	}

	if sess.Mode == endpoint.ModeMirror && state.IsEndpointInitialized(ctx, sess.Secondary, o.shell) {
		sess.Upgrade(endpoint.ModeFullDuplex)
		logging.Debug("mode upgraded",
			logging.Endpoint(sess.Primary.Path),
			logging.Mode(string(sess.Mode)),
		)
	}
	return false, nil
}
