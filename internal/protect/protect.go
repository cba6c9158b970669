// Package protect derives the set of paths the pull phase must not
// overwrite. The set is rebuilt every pass and consumed immediately as
// exclusion input to the transfer engine; it is never persisted beyond the
// pass that produced it.
package protect

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/dirsync/internal/logging"
	"github.com/klauern/dirsync/internal/state"
	"github.com/klauern/dirsync/internal/util"
)

// Set is an ordered, deduplicated list of exclusion patterns in the
// transfer engine's anchored syntax (a leading slash roots the pattern at
// the transfer root). The control-directory pattern is always first.
type Set struct {
	patterns []string
	seen     map[string]struct{}
}

// Build derives the protected set for one pass.
//
// The set starts with the control-directory pattern, then shields every
// path named in the delta: an entry that disappeared locally must not be
// resurrected by the pull, and one that appeared must not be immediately
// overwritten. Finally it shields every path modified after lastRun, which
// catches same-pass edits a snapshot-vs-snapshot delta cannot see because
// the current snapshot was only just captured.
//
// A path modified on the primary and independently deleted on the secondary
// inside the same pass window ends up protected from deletion. That is a
// known, intentional limit of the model: the two endpoints are assumed to
// change asynchronously, not concurrently.
func Build(root string, delta state.Delta, lastRun time.Time) (*Set, error) {
	s := &Set{seen: make(map[string]struct{})}
	s.add(util.ControlDirName)

	for _, entry := range delta {
		s.add(entry.Path)
	}

	// No marker yet means no committed pass to measure "newer" against.
	if !lastRun.IsZero() {
		if err := s.addNewerThan(root, lastRun); err != nil {
			return nil, err
		}
	}

	logging.Debug("protected set built",
		logging.Endpoint(root),
		logging.Count(len(s.patterns)),
	)
	return s, nil
}

// addNewerThan walks root and shields every entry whose modification time
// is strictly after the boundary.
func (s *Set) addNewerThan(root string, boundary time.Time) error {
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

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if info.ModTime().After(boundary) {
			s.add(rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s for recent changes: %w", root, err)
	}
	return nil
}

func (s *Set) add(rel string) {
	pattern := "/" + rel
	if _, dup := s.seen[pattern]; dup {
		return
	}
	s.seen[pattern] = struct{}{}
	s.patterns = append(s.patterns, pattern)
}

// Patterns returns the exclusion patterns in insertion order.
func (s *Set) Patterns() []string {
	return s.patterns
}

// Len returns the number of patterns.
func (s *Set) Len() int {
	return len(s.patterns)
}

// Contains reports whether a relative path is shielded.
func (s *Set) Contains(rel string) bool {
	_, ok := s.seen["/"+rel]
	return ok
}

// WriteFile persists the set in the engine's exclude-from syntax.
func (s *Set) WriteFile(path string) error {
	var b strings.Builder
	for _, p := range s.patterns {
		b.WriteString(p)
		b.WriteString("\n")
	}

	// #nosec G306 - the protected list is working state, not a secret
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write protected list: %w", err)
	}
	return nil
}
