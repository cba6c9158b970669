package util

import (
	"os"
	"path/filepath"
)

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// DirsyncConfigPath returns the directory holding the global tool
// configuration. DIRSYNC_HOME overrides it, which tests rely on.
func DirsyncConfigPath() string {
	if v := os.Getenv("DIRSYNC_HOME"); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), ".config", "dirsync")
}

// ControlDirName is the hidden directory dirsync maintains under each
// endpoint root. It is excluded from snapshots and from every transfer.
const ControlDirName = ".dirsync"

// Control-directory entry names.
const (
	SettingsFileName  = "settings"
	LastRunFileName   = "lastrun"
	PrevSnapshotName  = "state.prev"
	CurSnapshotName   = "state.cur"
	DeltaFileName     = "state.delta"
	ProtectedListName = "protected.lst"
	LockDirName       = "lock"
	BackupDirName     = "backup"
	HistoryDirName    = "history"
)

// ControlDir returns the control directory for an endpoint root.
func ControlDir(root string) string {
	return filepath.Join(root, ControlDirName)
}

// SettingsPath returns the per-endpoint settings file path.
func SettingsPath(root string) string {
	return filepath.Join(root, ControlDirName, SettingsFileName)
}

// LastRunPath returns the last-successful-pass marker path.
func LastRunPath(root string) string {
	return filepath.Join(root, ControlDirName, LastRunFileName)
}

// PrevSnapshotPath returns the previous-snapshot file path.
func PrevSnapshotPath(root string) string {
	return filepath.Join(root, ControlDirName, PrevSnapshotName)
}

// CurSnapshotPath returns the current-snapshot file path.
func CurSnapshotPath(root string) string {
	return filepath.Join(root, ControlDirName, CurSnapshotName)
}

// DeltaPath returns the delta working file path.
func DeltaPath(root string) string {
	return filepath.Join(root, ControlDirName, DeltaFileName)
}

// ProtectedListPath returns the protected-list working file path.
func ProtectedListPath(root string) string {
	return filepath.Join(root, ControlDirName, ProtectedListName)
}

// LockPath returns the lock marker directory path.
func LockPath(root string) string {
	return filepath.Join(root, ControlDirName, LockDirName)
}

// BackupRoot returns the backup subtree root for an endpoint.
func BackupRoot(root string) string {
	return filepath.Join(root, ControlDirName, BackupDirName)
}

// BackupDir returns the backup directory for one pass timestamp.
func BackupDir(root, timestamp string) string {
	return filepath.Join(root, ControlDirName, BackupDirName, timestamp)
}

// HistoryRoot returns the history subtree root for an endpoint.
func HistoryRoot(root string) string {
	return filepath.Join(root, ControlDirName, HistoryDirName)
}

// HistoryDir returns the history directory for one pass timestamp.
func HistoryDir(root, timestamp string) string {
	return filepath.Join(root, ControlDirName, HistoryDirName, timestamp)
}
