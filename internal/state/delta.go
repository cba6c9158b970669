package state

import (
	"fmt"
	"os"
	"strings"
)

// Tag marks the direction of one delta entry.
type Tag string

const (
	// Added means the path is present in the current snapshot only.
	Added Tag = "+"
	// Removed means the path is present in the previous snapshot only.
	Removed Tag = "-"
)

// Entry is one path that changed between two snapshots.
type Entry struct {
	Tag  Tag
	Path string
}

// Delta is the symmetric difference between the previous and current
// snapshots of one endpoint. It is only meaningful relative to the
// snapshot pair it was computed from.
type Delta []Entry

// Paths returns every path named in the delta, added and removed alike.
func (d Delta) Paths() []string {
	paths := make([]string, len(d))
	for i, e := range d {
		paths[i] = e.Path
	}
	return paths
}

// Counts returns the number of added and removed entries.
func (d Delta) Counts() (added, removed int) {
	for _, e := range d {
		if e.Tag == Added {
			added++
		} else {
			removed++
		}
	}
	return added, removed
}

// Outcome is the three-valued result of a delta computation. Differences
// are the expected success signal, not a failure; only CompareFailed is an
// actual fault.
type Outcome int

const (
	// NoDifference means the two snapshots are identical (or no previous
	// snapshot exists yet).
	NoDifference Outcome = iota
	// DifferencesFound means the delta is non-empty.
	DifferencesFound
	// CompareFailed means the snapshots could not be compared at all.
	CompareFailed
)

// Comparison pairs an outcome with its delta.
type Comparison struct {
	Outcome Outcome
	Delta   Delta
}

// Compare computes the tagged symmetric difference between two snapshots of
// the same endpoint. Both inputs must be sorted, which Capture and
// ReadSnapshot guarantee.
func Compare(prev, cur Snapshot) Comparison {
	var delta Delta

	i, j := 0, 0
	for i < len(prev) && j < len(cur) {
		switch {
		case prev[i] == cur[j]:
			i++
			j++
		case prev[i] < cur[j]:
			delta = append(delta, Entry{Tag: Removed, Path: prev[i]})
			i++
		default:
			delta = append(delta, Entry{Tag: Added, Path: cur[j]})
			j++
		}
	}
	for ; i < len(prev); i++ {
		delta = append(delta, Entry{Tag: Removed, Path: prev[i]})
	}
	for ; j < len(cur); j++ {
		delta = append(delta, Entry{Tag: Added, Path: cur[j]})
	}

	if len(delta) == 0 {
		return Comparison{Outcome: NoDifference}
	}
	return Comparison{Outcome: DifferencesFound, Delta: delta}
}

// WriteDelta persists the delta as line-tagged entries ("+ path" / "- path")
// for the audit trail.
func WriteDelta(d Delta, path string) error {
	var b strings.Builder
	for _, e := range d {
		b.WriteString(string(e.Tag))
		b.WriteString(" ")
		b.WriteString(e.Path)
		b.WriteString("\n")
	}

	// #nosec G306 - delta files are working state, not secrets
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write delta %s: %w", path, err)
	}
	return nil
}
