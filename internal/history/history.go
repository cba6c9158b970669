// Package history archives consumed pass state and finalizes each pass.
// History entries are write-once: the engine never reads them back, they
// exist purely as an audit trail.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/state"
	"github.com/klauern/dirsync/internal/transfer"
	"github.com/klauern/dirsync/internal/util"
)

// Recorder finalizes one pass over a primary endpoint. Begin captures the
// pre-pass working state so a dry run can be rolled back; exactly one of
// Commit or Discard runs afterwards.
type Recorder struct {
	tracker *state.Tracker

	// pre-pass bytes of the snapshot and delta working files, nil when absent
	prevBytes  []byte
	curBytes   []byte
	deltaBytes []byte
	begun      bool
}

// NewRecorder creates a recorder bound to the primary's tracker.
func NewRecorder(tracker *state.Tracker) *Recorder {
	return &Recorder{tracker: tracker}
}

// Begin captures the pre-pass snapshot files. It must run before the
// tracker rotates, or a dry run cannot be rolled back.
func (r *Recorder) Begin() error {
	root := r.tracker.Root()

	var err error
	r.prevBytes, err = readIfPresent(util.PrevSnapshotPath(root))
	if err != nil {
		return err
	}
	r.curBytes, err = readIfPresent(util.CurSnapshotPath(root))
	if err != nil {
		return err
	}
	r.deltaBytes, err = readIfPresent(util.DeltaPath(root))
	if err != nil {
		return err
	}

	r.begun = true
	return nil
}

// Commit finalizes a committed (non-dry-run) pass: initialize the secondary
// if it is not yet, archive the consumed previous snapshot and delta under
// this pass's timestamp, append the pass to the index, and advance the
// last-run marker.
func (r *Recorder) Commit(ctx context.Context, sess *endpoint.Session, shell *transfer.RemoteShell, passTime time.Time) error {
	if !r.begun {
		return fmt.Errorf("recorder: commit before begin")
	}

	if !state.IsEndpointInitialized(ctx, sess.Secondary, shell) {
		if err := state.InitializeEndpoint(ctx, sess.Secondary, shell); err != nil {
			return fmt.Errorf("initialize secondary: %w", err)
		}
	}

	root := r.tracker.Root()
	dir := util.HistoryDir(root, sess.Timestamp)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create history entry: %w", err)
	}

	archived := 0
	for _, name := range []string{util.PrevSnapshotName, util.DeltaFileName} {
		src := filepath.Join(util.ControlDir(root), name)
		moved, err := moveIfPresent(src, filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if moved {
			archived++
		}
	}

	if err := appendIndex(root, Record{
		Pass:     sess.Timestamp,
		Mode:     string(sess.Mode),
		Archived: archived,
		When:     passTime,
	}); err != nil {
		// The index is an audit convenience; a failed append must not
		// fail an otherwise committed pass.
		logging.Warn("failed to update history index", logging.Endpoint(root), logging.Err(err))
	}

	if err := r.tracker.AdvanceLastRun(passTime); err != nil {
		return err
	}

	logging.Debug("pass committed",
		logging.Endpoint(root),
		logging.Pass(sess.Timestamp),
	)
	return nil
}

// Discard rolls back a dry-run pass: the captured current snapshot is
// thrown away and the pre-pass snapshot files are restored byte for byte,
// so the next real pass still sees accurate previous/current state. The
// last-run marker is untouched.
func (r *Recorder) Discard() error {
	if !r.begun {
		return fmt.Errorf("recorder: discard before begin")
	}

	root := r.tracker.Root()
	if err := restore(util.PrevSnapshotPath(root), r.prevBytes); err != nil {
		return err
	}
	if err := restore(util.CurSnapshotPath(root), r.curBytes); err != nil {
		return err
	}
	if err := restore(util.DeltaPath(root), r.deltaBytes); err != nil {
		return err
	}

	logging.Debug("dry run discarded", logging.Endpoint(root))
	return nil
}

func readIfPresent(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is under the control directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func moveIfPresent(src, dst string) (bool, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Rename(src, dst); err != nil {
		return false, fmt.Errorf("archive %s: %w", src, err)
	}
	return true, nil
}

func restore(path string, pre []byte) error {
	if pre == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restore %s: %w", path, err)
		}
		return nil
	}
	// #nosec G306 - snapshot files are working state, not secrets
	if err := os.WriteFile(path, pre, 0o644); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	return nil
}
