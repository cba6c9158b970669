package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/klauern/dirsync/internal/config"
	"github.com/klauern/dirsync/internal/logging"
)

// RemoteShell runs commands on a remote host through the configured shell
// binary. Authentication is assumed to be pre-arranged (key-based ssh);
// a prompt would hang an unattended pass.
type RemoteShell struct {
	runner Runner
	shell  string
}

// NewRemoteShell creates a RemoteShell backed by a real ExecRunner.
func NewRemoteShell(cfg *config.Config) *RemoteShell {
	return NewRemoteShellWithRunner(cfg, &ExecRunner{Timeout: cfg.Transfer.Timeout})
}

// NewRemoteShellWithRunner creates a RemoteShell with a caller-supplied runner.
func NewRemoteShellWithRunner(cfg *config.Config, runner Runner) *RemoteShell {
	return &RemoteShell{
		runner: runner,
		shell:  cfg.Remote.Shell,
	}
}

// Run executes a command line on host and returns its result. A non-zero
// exit is not an error here; probes depend on reading the exit status.
func (r *RemoteShell) Run(ctx context.Context, host string, command ...string) (*Result, error) {
	args := append([]string{host}, command...)

	logging.Debug("remote command",
		logging.Host(host),
		logging.Operation(strings.Join(command, " ")),
	)

	return r.runner.Run(ctx, r.shell, args...)
}

// DirExists probes for a directory on host. Any failure to reach the host
// reads as "no": initialization treats an unreachable endpoint as not yet
// initialized and lets the transfer phase surface the real error.
func (r *RemoteShell) DirExists(ctx context.Context, host, path string) bool {
	res, err := r.Run(ctx, host, "test", "-d", shellQuote(path))
	if err != nil {
		logging.Debug("remote probe failed", logging.Host(host), logging.Err(err))
		return false
	}
	return res.ExitCode == 0
}

// MkdirAll creates a directory tree on host.
func (r *RemoteShell) MkdirAll(ctx context.Context, host string, paths ...string) error {
	args := append([]string{"mkdir", "-p"}, quoteAll(paths)...)
	res, err := r.Run(ctx, host, args...)
	if err != nil {
		return fmt.Errorf("remote mkdir on %s: %w", host, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("remote mkdir on %s: exit %d: %s", host, res.ExitCode, stderrTail(res.Stderr))
	}
	return nil
}

// WriteFile writes content to a file on host.
func (r *RemoteShell) WriteFile(ctx context.Context, host, path, content string) error {
	command := fmt.Sprintf("printf '%%s' %s > %s", shellQuote(content), shellQuote(path))
	res, err := r.Run(ctx, host, command)
	if err != nil {
		return fmt.Errorf("remote write on %s: %w", host, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("remote write on %s: exit %d: %s", host, res.ExitCode, stderrTail(res.Stderr))
	}
	return nil
}

// shellQuote single-quotes s for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quoteAll(paths []string) []string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = shellQuote(p)
	}
	return quoted
}
