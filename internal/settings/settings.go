// Package settings reads and writes the per-endpoint settings file kept in
// the control directory. The format is one "key value" pair per line;
// unrecognized or malformed lines are ignored so a hand-edited file can
// never abort a session.
package settings

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/klauern/dirsync/internal/endpoint"
	"github.com/klauern/dirsync/internal/logging"
)

// Recognized keys.
const (
	KeyEnabled = "enabled"
	KeyMode    = "mode"
)

// Settings holds the per-endpoint configuration.
type Settings struct {
	// Enabled gates the whole session: false means the endpoint opted out
	// and a pass against it is a clean no-op.
	Enabled bool

	// Mode, when set, overrides the computed mode if the invocation allows
	// settings overrides.
	Mode endpoint.Mode
}

// Default returns the settings written when an endpoint is initialized.
func Default() Settings {
	return Settings{Enabled: true}
}

// Load reads the settings file at path. A missing file yields the defaults;
// only a genuine read failure is an error.
func Load(path string) (Settings, error) {
	s := Default()

	f, err := os.Open(path) // #nosec G304 - path is under the control directory
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, " ")
		if !found {
			logging.Debug("ignoring malformed settings line", logging.Path(path))
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case KeyEnabled:
			if b, err := strconv.ParseBool(value); err == nil {
				s.Enabled = b
			} else {
				logging.Debug("ignoring bad enabled value", logging.Path(path))
			}
		case KeyMode:
			if m, err := endpoint.ParseMode(value); err == nil {
				s.Mode = m
			} else {
				logging.Debug("ignoring bad mode value", logging.Path(path), logging.Err(err))
			}
		default:
			logging.Debug("ignoring unrecognized settings key", logging.Path(path))
		}
	}
	if err := scanner.Err(); err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}

	return s, nil
}

// Write persists the settings to path in the plain key-value format.
func (s Settings) Write(path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %t\n", KeyEnabled, s.Enabled)
	if s.Mode != "" {
		fmt.Fprintf(&b, "%s %s\n", KeyMode, s.Mode)
	}

	// #nosec G306 - settings are endpoint metadata, not secrets
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
