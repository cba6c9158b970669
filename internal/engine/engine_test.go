package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauern/dirsync/internal/config"
	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/lock"
	"github.com/klauern/dirsync/internal/transfer"
	"github.com/klauern/dirsync/internal/util"
)

// fakeRunner records every external invocation and succeeds unless told
// otherwise.
type fakeRunner struct {
	calls    [][]string
	failWith map[int]*transfer.Result // call index -> scripted result
}

func (f *fakeRunner) Run(_ context.Context, program string, args ...string) (*transfer.Result, error) {
	i := len(f.calls)
	f.calls = append(f.calls, append([]string{program}, args...))
	if res, ok := f.failWith[i]; ok {
		return res, nil
	}
	return &transfer.Result{}, nil
}

// rsyncCalls filters the recorded invocations down to transfer-engine runs.
func (f *fakeRunner) rsyncCalls() [][]string {
	var out [][]string
	for _, c := range f.calls {
		if c[0] == "rsync" {
			out = append(out, c)
		}
	}
	return out
}

func newHarness(t *testing.T) (*Orchestrator, *fakeRunner, string, string) {
	t.Helper()
	runner := &fakeRunner{}
	orch := NewWithRunner(config.Default(), runner)
	primary := util.CreateTempDir(t)
	secondary := util.CreateTempDir(t)
	return orch, runner, primary, secondary
}

func newSession(t *testing.T, primary, secondary string, opts endpoint.Options) *endpoint.Session {
	t.Helper()
	sess, err := endpoint.NewSession(primary, secondary, opts, time.Now())
	util.AssertNoError(t, err)
	return sess
}

// backupDirArg extracts the --backup-dir value from a recorded argv.
func backupDirArg(t *testing.T, call []string) string {
	t.Helper()
	for _, arg := range call {
		if v, ok := strings.CutPrefix(arg, "--backup-dir="); ok {
			return v
		}
	}
	t.Fatalf("no --backup-dir in %v", call)
	return ""
}

func TestFirstPassRunsMirrorPushOnly(t *testing.T) {
	orch, runner, primary, secondary := newHarness(t)
	util.WriteFile(t, filepath.Join(primary, "a.txt"), "a")

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	util.AssertEqual(t, result.Mode, endpoint.ModeMirror)
	util.AssertEqual(t, result.PullRan, false)
	util.AssertEqual(t, result.PushRan, true)
	util.AssertEqual(t, result.Phase, PhaseFinalized)

	// First pass: no previous snapshot, so the delta is empty.
	util.AssertEqual(t, result.Added, 0)
	util.AssertEqual(t, result.Removed, 0)

	calls := runner.rsyncCalls()
	util.AssertEqual(t, len(calls), 1)
	if !slices.Contains(calls[0], "--delete") {
		t.Errorf("mirror push must propagate deletions: %v", calls[0])
	}

	// Push backups go under the secondary's control directory; only the
	// pull phase has a primary-side backup destination.
	util.AssertEqual(t, result.PullBackupDir, "")
	util.AssertEqual(t, result.PushBackupDir, ".dirsync/backup/"+result.Pass+"/push")

	// Committing initialized both endpoints and advanced the marker.
	if _, err := os.Stat(util.ControlDir(secondary)); err != nil {
		t.Errorf("secondary not initialized: %v", err)
	}
	if _, err := os.Stat(util.LastRunPath(primary)); err != nil {
		t.Errorf("lastrun marker missing: %v", err)
	}

	// And the lock is gone.
	if _, err := os.Stat(util.LockPath(primary)); !os.IsNotExist(err) {
		t.Errorf("lock still held after pass: %v", err)
	}
}

func TestSecondPassUpgradesToFullDuplex(t *testing.T) {
	orch, runner, primary, secondary := newHarness(t)
	util.WriteFile(t, filepath.Join(primary, "a.txt"), "a")

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	util.AssertEqual(t, result.Mode, endpoint.ModeFullDuplex)
	util.AssertEqual(t, result.PullRan, true)
	util.AssertEqual(t, result.PushRan, true)

	calls := runner.rsyncCalls()
	util.AssertEqual(t, len(calls), 3) // pass 1 push, pass 2 pull + push

	pull := calls[1]
	if slices.Contains(pull, "--delete") {
		t.Errorf("full-duplex pull must not delete: %v", pull)
	}
	masked := false
	for _, arg := range pull {
		if strings.HasPrefix(arg, "--exclude-from=") {
			masked = true
		}
	}
	if !masked {
		t.Errorf("full-duplex pull must be masked by the protected set: %v", pull)
	}

	push := calls[2]
	if !slices.Contains(push, "--delete") {
		t.Errorf("full-duplex push must propagate deletions: %v", push)
	}

	// The pull backs up into the primary's own control directory; the push
	// backup-dir is relative so the engine resolves it against the target.
	util.AssertEqual(t, result.PullBackupDir, filepath.Join(util.BackupDir(primary, result.Pass), "pull"))
	util.AssertEqual(t, backupDirArg(t, pull), result.PullBackupDir)
	util.AssertEqual(t, backupDirArg(t, push), ".dirsync/backup/"+result.Pass+"/push")
}

func TestRelativeEndpointsKeepBackupsInControlDirs(t *testing.T) {
	runner := &fakeRunner{}
	orch := NewWithRunner(config.Default(), runner)

	// Cron lines invoke the tool with relative paths; a relative backup-dir
	// joined from them would nest a stray tree under the destination.
	t.Chdir(util.CreateTempDir(t))
	util.AssertNoError(t, os.Mkdir("work", 0o750))
	util.AssertNoError(t, os.Mkdir("mirror", 0o750))
	util.WriteFile(t, filepath.Join("work", "a.txt"), "a")

	sess := newSession(t, "work", "mirror", endpoint.Options{})
	if !filepath.IsAbs(sess.Primary.Path) {
		t.Fatalf("primary path not absolute: %q", sess.Primary.Path)
	}

	result, err := orch.Run(context.Background(), sess)
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.PushRan, true)

	push := runner.rsyncCalls()[0]
	util.AssertEqual(t, backupDirArg(t, push), ".dirsync/backup/"+result.Pass+"/push")

	// The control directory landed inside the source tree, not the cwd.
	if _, err := os.Stat(filepath.Join("work", util.ControlDirName)); err != nil {
		t.Errorf("control directory missing under source: %v", err)
	}
}

func TestRepeatedPassIsIdempotent(t *testing.T) {
	orch, _, primary, secondary := newHarness(t)
	util.WriteFile(t, filepath.Join(primary, "a.txt"), "a")
	util.WriteFile(t, filepath.Join(primary, "b.txt"), "b")

	// Make sure the test files predate the first pass's marker.
	past := time.Now().Add(-time.Hour)
	for _, name := range []string{"a.txt", "b.txt"} {
		util.AssertNoError(t, os.Chtimes(filepath.Join(primary, name), past, past))
	}

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	util.AssertEqual(t, result.Added, 0)
	util.AssertEqual(t, result.Removed, 0)
	// Only the control-directory pattern remains protected.
	util.AssertEqual(t, result.Protected, 1)
}

func TestDeltaFlowsIntoProtectedSet(t *testing.T) {
	orch, _, primary, secondary := newHarness(t)
	util.WriteFile(t, filepath.Join(primary, "a.txt"), "a")

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	// Change the tree between passes: a removed, c added.
	util.AssertNoError(t, os.Remove(filepath.Join(primary, "a.txt")))
	util.WriteFile(t, filepath.Join(primary, "c.txt"), "c")

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	util.AssertEqual(t, result.Added, 1)
	util.AssertEqual(t, result.Removed, 1)

	data, readErr := os.ReadFile(util.ProtectedListPath(primary))
	util.AssertNoError(t, readErr)
	list := string(data)
	for _, want := range []string{"/a.txt\n", "/c.txt\n", "/" + util.ControlDirName + "\n"} {
		if !strings.Contains(list, want) {
			t.Errorf("protected list missing %q:\n%s", want, list)
		}
	}
}

func TestDryRunLeavesStateUntouched(t *testing.T) {
	orch, runner, primary, secondary := newHarness(t)
	util.WriteFile(t, filepath.Join(primary, "a.txt"), "a")

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	curBefore, err := os.ReadFile(util.CurSnapshotPath(primary))
	util.AssertNoError(t, err)
	markerBefore, err := os.ReadFile(util.LastRunPath(primary))
	util.AssertNoError(t, err)

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{DryRun: true}))
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.DryRun, true)
	util.AssertEqual(t, result.HistoryDir, "")

	// The engine was invoked in preview mode only.
	calls := runner.rsyncCalls()
	for _, c := range calls[1:] {
		if !slices.Contains(c, "-n") {
			t.Errorf("dry-run invocation missing -n: %v", c)
		}
	}

	curAfter, err := os.ReadFile(util.CurSnapshotPath(primary))
	util.AssertNoError(t, err)
	util.AssertEqual(t, string(curAfter), string(curBefore))

	markerAfter, err := os.ReadFile(util.LastRunPath(primary))
	util.AssertNoError(t, err)
	util.AssertEqual(t, string(markerAfter), string(markerBefore))

	// The first pass wrote no delta file, so the dry run must not leave one.
	if _, err := os.Stat(util.DeltaPath(primary)); !os.IsNotExist(err) {
		t.Errorf("dry run left a delta working file: %v", err)
	}
}

func TestLockHeldFailsFast(t *testing.T) {
	orch, runner, primary, secondary := newHarness(t)

	// First pass initializes, then we take the lock by hand.
	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)
	callsBefore := len(runner.calls)

	util.AssertNoError(t, os.Mkdir(util.LockPath(primary), 0o750))

	_, err = orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	if !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}

	// No transfer was attempted while the lock was held.
	util.AssertEqual(t, len(runner.calls), callsBefore)
}

func TestDisabledEndpointIsCleanNoop(t *testing.T) {
	orch, runner, primary, secondary := newHarness(t)

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)
	callsBefore := len(runner.calls)

	util.WriteFile(t, util.SettingsPath(primary), "enabled false\n")

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.Disabled, true)
	util.AssertEqual(t, len(runner.calls), callsBefore)

	// Nothing was locked either.
	if _, err := os.Stat(util.LockPath(primary)); !os.IsNotExist(err) {
		t.Errorf("disabled pass took the lock: %v", err)
	}
}

func TestSettingsOverrideMode(t *testing.T) {
	orch, runner, primary, secondary := newHarness(t)

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)

	util.WriteFile(t, util.SettingsPath(primary), "enabled true\nmode secondary\n")

	// Without -o the settings mode is ignored.
	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.Mode, endpoint.ModeFullDuplex)

	// With -o the pass runs in secondary mode: pull deletes, push does not.
	result, err = orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{AllowOverride: true}))
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.Mode, endpoint.ModeSecondary)

	calls := runner.rsyncCalls()
	pull := calls[len(calls)-2]
	push := calls[len(calls)-1]
	if !slices.Contains(pull, "--delete") {
		t.Errorf("secondary-mode pull must delete: %v", pull)
	}
	if slices.Contains(push, "--delete") {
		t.Errorf("secondary-mode push must not delete: %v", push)
	}
}

func TestPushFailurePropagatesAndReleasesLock(t *testing.T) {
	runner := &fakeRunner{failWith: map[int]*transfer.Result{}}
	orch := NewWithRunner(config.Default(), runner)
	primary := util.CreateTempDir(t)
	secondary := util.CreateTempDir(t)

	// The only rsync call of a first pass is the push; fail it.
	runner.failWith[0] = &transfer.Result{ExitCode: 12, Stderr: "connection closed"}

	_, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{}))
	if !errors.Is(err, transfer.ErrEngineFailure) {
		t.Fatalf("expected ErrEngineFailure, got %v", err)
	}

	// The scoped release ran on the failure path.
	if _, statErr := os.Stat(util.LockPath(primary)); !os.IsNotExist(statErr) {
		t.Errorf("lock still held after failed pass: %v", statErr)
	}

	// No marker was advanced.
	if _, statErr := os.Stat(util.LastRunPath(primary)); !os.IsNotExist(statErr) {
		t.Errorf("failed pass advanced the lastrun marker: %v", statErr)
	}
}

func TestCVSIgnoreSyncToRemoteSecondary(t *testing.T) {
	runner := &fakeRunner{}
	orch := NewWithRunner(config.Default(), runner)
	primary := util.CreateTempDir(t)

	sess, err := endpoint.NewSession(primary, "backuphost:work", endpoint.Options{SyncCVSIgnore: true}, time.Now())
	util.AssertNoError(t, err)

	_, err = orch.Run(context.Background(), sess)
	util.AssertNoError(t, err)

	calls := runner.rsyncCalls()
	// First engine call ships the ignore file to the host's home.
	util.AssertEqual(t, calls[0][len(calls[0])-1], "backuphost:")

	// Transfers honor the ignore conventions.
	push := calls[len(calls)-1]
	if !slices.Contains(push, "-C") {
		t.Errorf("push missing -C with cvsignore sync enabled: %v", push)
	}
}

func TestDryRunSkipsIgnoreFilePush(t *testing.T) {
	runner := &fakeRunner{}
	orch := NewWithRunner(config.Default(), runner)
	primary := util.CreateTempDir(t)

	sess, err := endpoint.NewSession(primary, "backuphost:work",
		endpoint.Options{DryRun: true, SyncCVSIgnore: true}, time.Now())
	util.AssertNoError(t, err)

	_, err = orch.Run(context.Background(), sess)
	util.AssertNoError(t, err)

	// The ignore-file copy has no preview form, so it must not run at all;
	// every engine invocation of a dry pass carries -n.
	for _, call := range runner.rsyncCalls() {
		if !slices.Contains(call, "-n") {
			t.Errorf("dry pass ran a mutating engine invocation: %v", call)
		}
		if call[len(call)-1] == "backuphost:" {
			t.Errorf("dry pass shipped the ignore file: %v", call)
		}
	}
}

func TestDryRunFirstPassLeavesNoControlDir(t *testing.T) {
	orch, _, primary, secondary := newHarness(t)
	util.WriteFile(t, filepath.Join(primary, "a.txt"), "a")

	result, err := orch.Run(context.Background(), newSession(t, primary, secondary, endpoint.Options{DryRun: true}))
	util.AssertNoError(t, err)

	// The pass still previewed a first mirror push.
	util.AssertEqual(t, result.Mode, endpoint.ModeMirror)
	util.AssertEqual(t, result.PushRan, true)

	// But the preview initialized nothing on either side.
	if _, err := os.Stat(util.ControlDir(primary)); !os.IsNotExist(err) {
		t.Errorf("dry first pass left the primary initialized: %v", err)
	}
	if _, err := os.Stat(util.ControlDir(secondary)); !os.IsNotExist(err) {
		t.Errorf("dry first pass initialized the secondary: %v", err)
	}
}
