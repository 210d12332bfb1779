package logging

import (
	"log/slog"
)

// Level represents a log level. Its value hierarchy is ordered: each level
// logs everything the levels before it log.
type Level uint

const (
	// LevelDisabled indicates that logging is completely disabled.
	LevelDisabled Level = iota
	// LevelError indicates that only errors are logged.
	LevelError
	// LevelWarn indicates that errors and warnings (e.g. 5xx responses) are
	// logged.
	LevelWarn
	// LevelInfo indicates that requests and startup information are logged
	// (in addition to all errors and warnings).
	LevelInfo
	// LevelDebug indicates that additional diagnostic information is logged.
	LevelDebug
	// LevelTrace indicates that low-level execution information is logged.
	LevelTrace
)

// DefaultLevel is the level used when none is configured.
const DefaultLevel = LevelInfo

// NameToLevel converts a string-based representation of a log level to the
// appropriate Level value. It returns a boolean indicating whether or not the
// conversion was valid. If the name is invalid, LevelDisabled is returned.
func NameToLevel(name string) (Level, bool) {
	switch name {
	case "disabled":
		return LevelDisabled, true
	case "error":
		return LevelError, true
	case "warn":
		return LevelWarn, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	case "trace":
		return LevelTrace, true
	default:
		return LevelDisabled, false
	}
}

// String provides a human-readable representation of a log level.
func (l Level) String() string {
	switch l {
	case LevelDisabled:
		return "disabled"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// levelDisabled is above every level slog emits.
const levelDisabled = slog.LevelError + 100

// levelTrace is one step below slog's debug level.
const levelTrace = slog.LevelDebug - 4

// Slog returns the minimum slog level enabled by l.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	case LevelTrace:
		return levelTrace
	default:
		return levelDisabled
	}
}
