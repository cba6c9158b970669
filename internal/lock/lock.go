// Package lock provides the per-primary mutual-exclusion marker. A single
// directory entry under the control directory is the lock: directory
// creation is atomic on every filesystem dirsync targets, so an existing
// marker means another session holds the primary.
package lock

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/util"
)

// ErrHeld is returned when the lock marker already exists. There is no
// retry and no waiting: concurrent sessions against one primary are
// serialized externally (e.g. cron spacing), and a second invocation is
// expected to fail fast.
var ErrHeld = errors.New("session lock already held")

// Handle is a held lock. Release is idempotent and must run on every exit
// path; callers defer it immediately after Acquire succeeds.
type Handle struct {
	path string
	once sync.Once
}

// Acquire attempts to take the lock for the primary endpoint rooted at root.
// The marker directory is created atomically; if it already exists the
// acquisition fails with ErrHeld and nothing is modified.
func Acquire(root string) (*Handle, error) {
	path := util.LockPath(root)

	if err := os.Mkdir(path, 0o750); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, path)
		}
		return nil, fmt.Errorf("create lock marker: %w", err)
	}

	logging.Debug("lock acquired", logging.Path(path))
	return &Handle{path: path}, nil
}

// Release removes the lock marker. It is safe to call more than once, and
// safe to call after a partial failure: removal errors are logged, not
// returned, because there is nothing the caller can do on the way out.
func (h *Handle) Release() {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			logging.Error("failed to release lock", logging.Path(h.path), logging.Err(err))
		} else {
			logging.Debug("lock released", logging.Path(h.path))
		}
	})
}
