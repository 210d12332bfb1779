package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// EnvironmentVariable names the environment variable holding the log level.
const EnvironmentVariable = "LOG_LEVEL"

// New creates a structured logger writing to w at the given level.
// Terminals get human-readable text lines, anything else gets JSON lines.
func New(w io.Writer, level Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level.Slog()}

	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, options))
	}

	return slog.New(slog.NewJSONHandler(w, options))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
