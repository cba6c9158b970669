package engine

import (
	"github.com/klauern/dirsync/internal/endpoint"
)

// direction describes one phase of the mode→direction table.
type direction struct {
	// run is false when the phase is skipped entirely for the mode.
	run bool
	// delete propagates deletions to the phase's destination.
	delete bool
	// masked applies the protected set as exclusion input.
	masked bool
}

// directions resolves the mode→direction table: which endpoint may create
// and delete versus read/update-only, per phase.
//
//	mode        pull (secondary→primary)      push (primary→secondary)
//	mirror      none                          full mirror incl. deletion
//	full-duplex masked, no deletion           full mirror incl. deletion
//	primary     no deletion                   full mirror incl. deletion
//	secondary   full mirror incl. deletion    no deletion
func directions(mode endpoint.Mode) (pull, push direction) {
	switch mode {
	case endpoint.ModeMirror:
		return direction{}, direction{run: true, delete: true}
	case endpoint.ModeFullDuplex:
		return direction{run: true, masked: true}, direction{run: true, delete: true}
	case endpoint.ModePrimary:
		return direction{run: true}, direction{run: true, delete: true}
	case endpoint.ModeSecondary:
		return direction{run: true, delete: true}, direction{run: true}
	default:
		return direction{}, direction{}
	}
}
