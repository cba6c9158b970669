// Package endpoint models the two sides of a reconciliation session and the
// target URI grammar used to address them.
package endpoint

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Endpoint is one side of a session: a local filesystem path, or a path on a
// remote host reachable through the remote shell.
type Endpoint struct {
	// Path is the directory tree root on the endpoint.
	Path string

	// Host is the remote host identifier, empty for local endpoints.
	Host string
}

// Local returns a local endpoint for the given path.
func Local(path string) Endpoint {
	return Endpoint{Path: path}
}

// ParseTarget parses a target URI of the form [host:]path. The split is on
// the first colon; a target without a colon is purely local. No network
// validation happens here: an unreachable host surfaces later as a transfer
// failure.
func ParseTarget(target string) (Endpoint, error) {
	if target == "" {
		return Endpoint{}, fmt.Errorf("empty target")
	}

	host, path, found := strings.Cut(target, ":")
	if !found {
		return Endpoint{Path: target}, nil
	}
	if host == "" {
		// ":path" degenerates to a local path
		return Endpoint{Path: path}, nil
	}
	if path == "" {
		return Endpoint{}, fmt.Errorf("target %q: missing path after host", target)
	}
	return Endpoint{Path: path, Host: host}, nil
}

// IsRemote reports whether the endpoint lives on another host.
func (e Endpoint) IsRemote() bool {
	return e.Host != ""
}

// Spec returns the endpoint in the host:path form the transfer engine
// accepts, or the bare path for local endpoints.
func (e Endpoint) Spec() string {
	if e.Host == "" {
		return e.Path
	}
	return e.Host + ":" + e.Path
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.Spec()
}

// Mode is the directional policy governing one pass.
type Mode string

const (
	// ModeMirror is the starting mode: push-only, the secondary is a
	// read/update-only replica of the primary.
	ModeMirror Mode = "mirror"

	// ModeFullDuplex pulls secondary changes masked by the protected set,
	// then pushes a full mirror including deletions.
	ModeFullDuplex Mode = "full-duplex"

	// ModePrimary is the explicit one-way variant: pull without deletion,
	// push a full mirror.
	ModePrimary Mode = "primary"

	// ModeSecondary is the explicit one-way variant in the other direction:
	// pull a full mirror, push without deletion.
	ModeSecondary Mode = "secondary"
)

// ParseMode parses a mode value as written in a settings file.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMirror:
		return ModeMirror, nil
	case ModeFullDuplex:
		return ModeFullDuplex, nil
	case ModePrimary:
		return ModePrimary, nil
	case ModeSecondary:
		return ModeSecondary, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Options carries the per-invocation flags into the engine.
type Options struct {
	// DryRun previews the pass without committing anything.
	DryRun bool

	// Verbose enables detailed output.
	Verbose bool

	// SyncCVSIgnore pushes the user's ~/.cvsignore to the target host and
	// honors its patterns during transfers.
	SyncCVSIgnore bool

	// AllowOverride lets the primary's settings file override the computed
	// mode for this pass.
	AllowOverride bool
}

// TimestampFormat is the pass timestamp token format, used to key backup and
// history directories.
const TimestampFormat = "20060102-150405"

// Session is one reconciliation pass over a primary/secondary endpoint pair.
// It is built once per invocation and immutable afterwards, except for the
// mode, which may be upgraded once both endpoints are found initialized.
type Session struct {
	Primary   Endpoint
	Secondary Endpoint
	Mode      Mode
	Options   Options

	// Timestamp is this pass's token, keying its backup and history entries.
	Timestamp string
}

// NewSession builds a session from the two positional arguments. The primary
// is always local and resolved to an absolute path: paths derived from it
// end up in transfer-engine argv, where a relative path would be resolved
// against the engine's own notion of a working directory instead of ours.
// The secondary may be remote. Sessions start in mirror mode and may be
// upgraded by the orchestrator's mode-resolution step.
func NewSession(source, target string, opts Options, now time.Time) (*Session, error) {
	if source == "" {
		return nil, fmt.Errorf("empty source directory")
	}
	source, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	secondary, err := ParseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}

	return &Session{
		Primary:   Local(source),
		Secondary: secondary,
		Mode:      ModeMirror,
		Options:   opts,
		Timestamp: now.Format(TimestampFormat),
	}, nil
}

// Upgrade switches the session to the given mode.
func (s *Session) Upgrade(m Mode) {
	s.Mode = m
}
