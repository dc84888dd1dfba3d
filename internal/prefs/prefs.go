// Package prefs loads the persisted display preferences of logcatd.
// Preferences are stored in ~/.config/logcatd/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/logcat"
)

const defaultPrefsPath = "~/.config/logcatd/prefs.toml"

// Prefs selects the fields of the display header.
type Prefs struct {
	ShowDate    bool `toml:"show_date" json:"show_date"`
	ShowTime    bool `toml:"show_time" json:"show_time"`
	ShowEpoch   bool `toml:"show_epoch" json:"show_epoch"`
	ShowPIDTID  bool `toml:"show_pid_tid" json:"show_pid_tid"`
	ShowPackage bool `toml:"show_package" json:"show_package"`
	ShowTag     bool `toml:"show_tag" json:"show_tag"`
}

// Default shows every field with a date-time timestamp.
func Default() Prefs {
	return FromFormatOptions(logcat.DefaultFormatOptions())
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// FromFormatOptions converts formatter options into preferences.
func FromFormatOptions(o logcat.FormatOptions) Prefs {
	return Prefs{
		ShowDate:    o.ShowDate,
		ShowTime:    o.ShowTime,
		ShowEpoch:   o.ShowEpoch,
		ShowPIDTID:  o.ShowPIDTID,
		ShowPackage: o.ShowPackage,
		ShowTag:     o.ShowTag,
	}
}

// FormatOptions converts the preferences into formatter options.
func (p Prefs) FormatOptions() logcat.FormatOptions {
	return logcat.FormatOptions{
		ShowDate:    p.ShowDate,
		ShowTime:    p.ShowTime,
		ShowEpoch:   p.ShowEpoch,
		ShowPIDTID:  p.ShowPIDTID,
		ShowPackage: p.ShowPackage,
		ShowTag:     p.ShowTag,
	}
}

// Load reads preferences from path. Keys missing from the file keep their
// default. A missing or unreadable file yields the defaults.
func Load(path string) Prefs {
	prefs := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		log.Warn().Err(err).Msg("prefs.Load: using defaults")
		return prefs
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", resolved).Msg("prefs.Load: using defaults")
		}
		return prefs
	}

	if err := toml.Unmarshal(data, &prefs); err != nil {
		log.Warn().Err(err).Str("path", resolved).Msg("prefs.Load: invalid preferences, using defaults")
		return Default()
	}
	return prefs
}

// Save writes preferences to path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("prefs.Save: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("prefs.Save: create dir: %w", err)
	}

	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs.Save: marshal: %w", err)
	}

	if err := os.WriteFile(resolved, data, 0o644); err != nil { //nolint:gosec // preferences are not secret
		return fmt.Errorf("prefs.Save: write: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = defaultPrefsPath
	}
	if rest, ok := strings.CutPrefix(trimmed, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, rest)
	}
	return filepath.Abs(trimmed)
}
