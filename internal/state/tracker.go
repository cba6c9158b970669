package state

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/settings"
	"github.com/klauern/dirsync/internal/transfer"
	"github.com/klauern/dirsync/internal/util"
)

// Tracker manages the snapshot lifecycle for one local endpoint root:
// rotate the prior pass's current snapshot into previous, capture a fresh
// current, and compute the delta between the two.
type Tracker struct {
	root string
}

// NewTracker creates a tracker for a local endpoint root.
func NewTracker(root string) *Tracker {
	return &Tracker{root: root}
}

// Root returns the endpoint root this tracker is bound to.
func (t *Tracker) Root() string {
	return t.root
}

// IsInitialized reports whether the control directory exists.
func (t *Tracker) IsInitialized() bool {
	info, err := os.Stat(util.ControlDir(t.root))
	return err == nil && info.IsDir()
}

// Initialize creates the control directory layout and a default settings
// file. It is idempotent: calling it on an initialized endpoint changes
// nothing.
func (t *Tracker) Initialize() error {
	dirs := []string{
		util.ControlDir(t.root),
		util.BackupRoot(t.root),
		util.HistoryRoot(t.root),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("initialize %s: %w", t.root, err)
		}
	}

	settingsPath := util.SettingsPath(t.root)
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := settings.Default().Write(settingsPath); err != nil {
			return fmt.Errorf("initialize %s: %w", t.root, err)
		}
	}

	logging.Debug("endpoint initialized", logging.Endpoint(t.root))
	return nil
}

// Rotate renames the current snapshot to previous. On the first pass no
// current snapshot exists and rotation is a no-op. A stale current snapshot
// left behind by an interrupted pass is simply consumed here; the fresh
// capture that follows overwrites whatever partial state remained.
func (t *Tracker) Rotate() error {
	cur := util.CurSnapshotPath(t.root)
	if _, err := os.Stat(cur); os.IsNotExist(err) {
		logging.Debug("no current snapshot to rotate", logging.Endpoint(t.root))
		return nil
	}

	if err := os.Rename(cur, util.PrevSnapshotPath(t.root)); err != nil {
		return fmt.Errorf("rotate snapshot: %w", err)
	}
	return nil
}

// CaptureCurrent walks the endpoint tree and writes the new current
// snapshot.
func (t *Tracker) CaptureCurrent() (Snapshot, error) {
	snap, err := Capture(t.root)
	if err != nil {
		return nil, err
	}
	if err := snap.Write(util.CurSnapshotPath(t.root)); err != nil {
		return nil, err
	}

	logging.Debug("captured current snapshot",
		logging.Endpoint(t.root),
		logging.Count(len(snap)),
	)
	return snap, nil
}

// ComputeDelta compares the previous and current snapshots. With no
// previous snapshot (first pass) the delta is empty. The delta is written
// to the control directory for the audit trail.
func (t *Tracker) ComputeDelta() (Comparison, error) {
	prev, havePrev, err := ReadSnapshot(util.PrevSnapshotPath(t.root))
	if err != nil {
		return Comparison{Outcome: CompareFailed}, err
	}
	cur, haveCur, err := ReadSnapshot(util.CurSnapshotPath(t.root))
	if err != nil {
		return Comparison{Outcome: CompareFailed}, err
	}
	if !haveCur {
		return Comparison{Outcome: CompareFailed}, fmt.Errorf("no current snapshot for %s", t.root)
	}

	if !havePrev {
		logging.Debug("first pass, empty delta", logging.Endpoint(t.root))
		return Comparison{Outcome: NoDifference}, nil
	}

	cmp := Compare(prev, cur)
	if err := WriteDelta(cmp.Delta, util.DeltaPath(t.root)); err != nil {
		return Comparison{Outcome: CompareFailed}, err
	}

	added, removed := cmp.Delta.Counts()
	logging.Debug("computed delta",
		logging.Endpoint(t.root),
		slog.Int("added", added),
		slog.Int("removed", removed),
	)

	return cmp, nil
}

// LastRun reads the last-successful-pass marker. A missing marker returns
// the zero time: every path then counts as older than the boundary and the
// modification-time scan is skipped.
func (t *Tracker) LastRun() time.Time {
	data, err := os.ReadFile(util.LastRunPath(t.root)) // #nosec G304
	if err != nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		logging.Warn("unreadable lastrun marker", logging.Endpoint(t.root), logging.Err(err))
		return time.Time{}
	}
	return ts
}

// AdvanceLastRun moves the marker to when. Only committed passes call it.
func (t *Tracker) AdvanceLastRun(when time.Time) error {
	// #nosec G306 - marker is working state, not a secret
	if err := os.WriteFile(util.LastRunPath(t.root), []byte(when.Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("advance lastrun marker: %w", err)
	}
	return nil
}

// IsEndpointInitialized probes an endpoint, remote or local, for its
// control directory. Probe failure reads as "not initialized" rather than
// fatal: an unreachable host will fail loudly in the transfer phase if it
// is genuinely down.
func IsEndpointInitialized(ctx context.Context, ep endpoint.Endpoint, shell *transfer.RemoteShell) bool {
	if ep.IsRemote() {
		return shell.DirExists(ctx, ep.Host, util.ControlDir(ep.Path))
	}
	info, err := os.Stat(util.ControlDir(ep.Path))
	return err == nil && info.IsDir()
}

// InitializeEndpoint creates the control directory layout on an endpoint,
// remote or local. Like Tracker.Initialize it is idempotent.
func InitializeEndpoint(ctx context.Context, ep endpoint.Endpoint, shell *transfer.RemoteShell) error {
	if !ep.IsRemote() {
		return NewTracker(ep.Path).Initialize()
	}

	dirs := []string{
		util.ControlDir(ep.Path),
		util.BackupRoot(ep.Path),
		util.HistoryRoot(ep.Path),
	}
	if err := shell.MkdirAll(ctx, ep.Host, dirs...); err != nil {
		return err
	}

	settingsPath := filepath.ToSlash(util.SettingsPath(ep.Path))
	content := fmt.Sprintf("%s true\n", settings.KeyEnabled)
	if err := shell.WriteFile(ctx, ep.Host, settingsPath, content); err != nil {
		return err
	}

	logging.Debug("remote endpoint initialized",
		logging.Host(ep.Host),
		logging.Endpoint(ep.Path),
	)
	return nil
}
