// Package state tracks what an endpoint's tree looked like the last time a
// pass ran. A snapshot is a flat listing of relative paths; change detection
// is the set difference between two consecutive snapshots of the same
// endpoint. No content hashing, no per-file metadata: timestamps and entry
// lists are the whole model.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauern/dirsync/internal/util"
)

// Snapshot is the set of relative paths (files, directories, symlinks)
// under an endpoint root, excluding the control directory. Entries use
// slash separators and are kept sorted so snapshot files diff cleanly.
type Snapshot []string

// Capture walks the tree rooted at root and returns its snapshot. Walk
// order is irrelevant to consumers; entries are sorted before return.
func Capture(root string) (Snapshot, error) {
	var entries []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == util.ControlDirName {
			return filepath.SkipDir
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(entries)
	return Snapshot(entries), nil
}

// ReadSnapshot loads a snapshot file. A missing file returns (nil, false,
// nil): the first pass has no previous snapshot and that is not an error.
func ReadSnapshot(path string) (Snapshot, bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is under the control directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			entries = append(entries, line)
		}
	}
	return Snapshot(entries), true, nil
}

// Write persists the snapshot, one path per line.
func (s Snapshot) Write(path string) error {
	var b strings.Builder
	for _, entry := range s {
		b.WriteString(entry)
		b.WriteString("\n")
	}

	// #nosec G306 - snapshot files are working state, not secrets
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// Contains reports whether the snapshot includes a path.
func (s Snapshot) Contains(path string) bool {
	i := sort.SearchStrings(s, path)
	return i < len(s) && s[i] == path
}
