package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/dirsync/internal/util"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	util.AssertEqual(t, cfg.Transfer.Rsync, "rsync")
	util.AssertEqual(t, cfg.Transfer.Timeout, 5*time.Minute)
	util.AssertEqual(t, cfg.Remote.Shell, "ssh")
	util.AssertEqual(t, cfg.History.Keep, 0)
	util.AssertEqual(t, cfg.Output.Color, "auto")
	util.AssertEqual(t, cfg.Output.Verbose, false)
}

func TestLoadFromPath(t *testing.T) {
	dir := util.CreateTempDir(t)
	path := filepath.Join(dir, "config.yaml")
	util.WriteFile(t, path, `transfer:
  rsync: /opt/rsync/bin/rsync
  timeout: 30s
remote:
  shell: mosh
history:
  keep: 5
`)

	cfg, err := LoadFromPath(path)
	util.AssertNoError(t, err)

	util.AssertEqual(t, cfg.Transfer.Rsync, "/opt/rsync/bin/rsync")
	util.AssertEqual(t, cfg.Transfer.Timeout, 30*time.Second)
	util.AssertEqual(t, cfg.Remote.Shell, "mosh")
	util.AssertEqual(t, cfg.History.Keep, 5)

	// Unset keys keep their defaults.
	util.AssertEqual(t, cfg.Output.Color, "auto")
}

func TestLoadFromPathMissingFile(t *testing.T) {
	dir := util.CreateTempDir(t)

	_, err := LoadFromPath(filepath.Join(dir, "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromPathInvalidYAML(t *testing.T) {
	dir := util.CreateTempDir(t)
	path := filepath.Join(dir, "config.yaml")
	util.WriteFile(t, path, "transfer: [broken")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DIRSYNC_RSYNC", "/usr/local/bin/rsync")
	t.Setenv("DIRSYNC_TIMEOUT", "90s")
	t.Setenv("DIRSYNC_SSH", "autossh")
	t.Setenv("DIRSYNC_HISTORY_KEEP", "3")
	t.Setenv("DIRSYNC_OUTPUT_COLOR", "never")
	t.Setenv("DIRSYNC_OUTPUT_VERBOSE", "true")

	cfg := Default()
	cfg.applyEnvironment()

	util.AssertEqual(t, cfg.Transfer.Rsync, "/usr/local/bin/rsync")
	util.AssertEqual(t, cfg.Transfer.Timeout, 90*time.Second)
	util.AssertEqual(t, cfg.Remote.Shell, "autossh")
	util.AssertEqual(t, cfg.History.Keep, 3)
	util.AssertEqual(t, cfg.Output.Color, "never")
	util.AssertEqual(t, cfg.Output.Verbose, true)
}

func TestEnvironmentIgnoresBadValues(t *testing.T) {
	t.Setenv("DIRSYNC_TIMEOUT", "soon")
	t.Setenv("DIRSYNC_HISTORY_KEEP", "-2")

	cfg := Default()
	cfg.applyEnvironment()

	util.AssertEqual(t, cfg.Transfer.Timeout, 5*time.Minute)
	util.AssertEqual(t, cfg.History.Keep, 0)
}
