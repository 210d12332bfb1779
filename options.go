package spaserve

import (
	"log/slog"
)

// Byte unit helpers.
const (
	B = 1 << (10 * iota)
	KB
	MB
	GB
	TB
	PB
	EB
)

// DefaultIndexName is the index document served for "/" and for directories.
const DefaultIndexName = "index.html"

// DefaultOptions holds the default option values for `New`.
var DefaultOptions = Options{
	RedirectDirectories: false,
}

// Options contains the optional settings that `New` can use to serve files.
type Options struct {
	// If true then a request for a directory which contains an index document
	// but does not end with a slash is redirected to the same path plus a slash,
	// so relative asset URLs of that index resolve inside the directory.
	// Defaults to false: the index contents are served directly.
	RedirectDirectories bool

	// Files streamed with a limit of bytes sent per second.
	Throttle Throttle

	// Logger receives server-side errors (e.g. unreadable index).
	// Defaults to `slog.Default()`.
	Logger *slog.Logger
}

// Throttle options for files that should be streamed with a bandwidth limit.
// See `Options`.
type Throttle struct {
	// Bytes per second. Zero or negative disables throttling.
	Limit float64
	// Maximum bytes sent at once. Defaults to 32KB when Limit is set.
	Burst int
	// Only files of at least MinSize bytes are throttled.
	MinSize int64
}

func (t Throttle) enabled(size int64) bool {
	return t.Limit > 0 && size >= t.MinSize
}

// ResolverOptions contains the optional settings of `NewResolver`.
type ResolverOptions struct {
	// The index document of the root and of every directory.
	// Defaults to "index.html". It must be a plain file name.
	IndexName string

	// Deny holds doublestar patterns matched against the slash separated,
	// root-relative path of each resolved file and of each of its parent
	// directories, e.g. "**/.*" hides dotfiles and everything inside dot
	// directories, ".git" hides the whole ".git" directory.
	// Matching files are reported as not found.
	Deny []string
}
