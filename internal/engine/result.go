package engine

import (
	"time"

	"github.com/klauern/dirsync/internal/endpoint"
)

// Phase tracks how far a pass progressed through the state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLocked    Phase = "locked"
	PhasePulled    Phase = "pulled"
	PhasePushed    Phase = "pushed"
	PhaseFinalized Phase = "finalized"
)

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Pass is the pass timestamp token.
	Pass string

	// Mode is the mode the pass actually ran in, after resolution.
	Mode endpoint.Mode

	// Phase is the last state the pass reached.
	Phase Phase

	// DryRun reports whether the pass was a preview.
	DryRun bool

	// Disabled is set when the primary's settings opted out of syncing;
	// the pass performed no work.
	Disabled bool

	// Added and Removed are the delta entry counts.
	Added   int
	Removed int

	// Protected is the size of the protected set, control-directory
	// pattern included.
	Protected int

	// PullRan and PushRan report which transfer phases were invoked.
	PullRan bool
	PushRan bool

	// PullBackupDir is the primary-side backup destination, empty if the
	// pull phase never ran.
	PullBackupDir string

	// PushBackupDir is the push backup destination relative to the target
	// root, empty if the push phase never ran.
	PushBackupDir string

	// HistoryDir is the archived history entry, empty for dry runs.
	HistoryDir string

	// Duration is the wall-clock time of the pass.
	Duration time.Duration
}
