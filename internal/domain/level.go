package domain

import (
	"fmt"
	"strings"
)

// LogLevel is an Android log priority. Values follow android.util.Log, so the
// natural integer order is the severity order.
type LogLevel int

const (
	LevelVerbose LogLevel = iota + 2
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelAssert
)

var levelNames = map[LogLevel]string{ //nolint:gochecknoglobals // lookup table
	LevelVerbose: "VERBOSE",
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelAssert:  "ASSERT",
}

// LevelFromLetter maps a logcat priority letter onto a LogLevel. "F" (fatal)
// is reported by newer devices for what older ones print as "A".
func LevelFromLetter(c byte) (LogLevel, bool) {
	switch c {
	case 'V':
		return LevelVerbose, true
	case 'D':
		return LevelDebug, true
	case 'I':
		return LevelInfo, true
	case 'W':
		return LevelWarning, true
	case 'E':
		return LevelError, true
	case 'A', 'F':
		return LevelAssert, true
	default:
		return 0, false
	}
}

// Letter returns the single-character priority used in logcat output.
func (l LogLevel) Letter() byte {
	switch l {
	case LevelVerbose:
		return 'V'
	case LevelDebug:
		return 'D'
	case LevelInfo:
		return 'I'
	case LevelWarning:
		return 'W'
	case LevelError:
		return 'E'
	case LevelAssert:
		return 'A'
	default:
		return '?'
	}
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// MarshalText encodes the level by name.
func (l LogLevel) MarshalText() ([]byte, error) {
	name, ok := levelNames[l]
	if !ok {
		return nil, fmt.Errorf("domain.LogLevel.MarshalText: unknown level %d", int(l))
	}
	return []byte(name), nil
}

// UnmarshalText accepts a level name or a single priority letter.
func (l *LogLevel) UnmarshalText(text []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	if len(s) == 1 {
		if lvl, ok := LevelFromLetter(s[0]); ok {
			*l = lvl
			return nil
		}
	}
	for lvl, name := range levelNames {
		if name == s {
			*l = lvl
			return nil
		}
	}
	return fmt.Errorf("domain.LogLevel.UnmarshalText: unknown level %q", string(text))
}
