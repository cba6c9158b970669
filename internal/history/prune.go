package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/util"
)

// Prune trims the history and backup subtrees under root to the newest
// keep passes each. Zero keeps everything. Returned paths are the entries
// removed; pruning failures are reported but a caller treats them as
// advisory, never as a pass failure.
func Prune(root string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}

	var removed []string
	for _, subtree := range []string{util.HistoryRoot(root), util.BackupRoot(root)} {
		pruned, err := pruneSubtree(subtree, keep)
		if err != nil {
			return removed, err
		}
		removed = append(removed, pruned...)
	}

	if len(removed) > 0 {
		logging.Debug("pruned old pass artifacts",
			logging.Endpoint(root),
			logging.Count(len(removed)),
		)
	}
	return removed, nil
}

// pruneSubtree removes the oldest timestamped entries beyond keep. Entries
// sort lexically, which for the pass timestamp format is chronological.
func pruneSubtree(dir string, keep int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var passes []string
	for _, e := range entries {
		if e.IsDir() {
			passes = append(passes, e.Name())
		}
	}
	if len(passes) <= keep {
		return nil, nil
	}

	sort.Strings(passes)
	var removed []string
	for _, name := range passes[:len(passes)-keep] {
		path := filepath.Join(dir, name)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("prune %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}
