// Package config loads the server configuration from defaults, an optional
// YAML file, the environment (optionally layered over a .env file) and,
// finally, command line flags applied by the caller.
package config

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kataras/spaserve"
	"github.com/kataras/spaserve/internal/logging"
)

// Environment variables understood by ApplyEnvironment.
const (
	EnvAddress      = "SPASERVE_ADDRESS"
	EnvRoot         = "SPASERVE_ROOT"
	EnvIndex        = "SPASERVE_INDEX"
	EnvDeny         = "SPASERVE_DENY"
	EnvThrottleRate = "SPASERVE_THROTTLE_RATE"
	EnvLogLevel     = logging.EnvironmentVariable
)

// Config is the complete server configuration.
type Config struct {
	// Address is the TCP address to listen on.
	Address string `yaml:"address"`
	// Root is the static root directory.
	Root string `yaml:"root"`
	// Index is the index document name.
	Index string `yaml:"index"`
	// Deny lists doublestar patterns of files never served.
	Deny []string `yaml:"deny"`
	// RedirectDirectories redirects directory paths to their slash-terminated form.
	RedirectDirectories bool `yaml:"redirectDirectories"`
	// Throttle configures bandwidth limiting of large files.
	Throttle Throttle `yaml:"throttle"`
	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `yaml:"logLevel"`
	// ShutdownTimeout bounds the connection draining on termination.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Throttle holds human-readable byte sizes, e.g. "64KB" or "1MiB".
type Throttle struct {
	// Rate is the number of bytes per second. Empty or zero disables throttling.
	Rate string `yaml:"rate"`
	// Burst is the maximum number of bytes sent at once.
	Burst string `yaml:"burst"`
	// MinSize is the smallest file size that gets throttled.
	MinSize string `yaml:"minSize"`
}

// Default returns the default configuration: serve "static" on port 8080 of
// all interfaces, logging at the info level.
func Default() *Config {
	return &Config{
		Address:         ":8080",
		Root:            "static",
		Index:           spaserve.DefaultIndexName,
		LogLevel:        logging.DefaultLevel.String(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load returns the default configuration overlaid with the YAML file at path.
// An empty path skips the file. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "unable to parse configuration file %s", path)
	}

	return c, nil
}

// Environment returns the process environment layered over the variables of
// the dotenv file at path. Process variables win. A missing file is ignored.
func Environment(path string) (map[string]string, error) {
	env := make(map[string]string)

	if path != "" {
		fileEnvironment, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "unable to load environment file %s", path)
		}
		for k, v := range fileEnvironment {
			env[k] = v
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	return env, nil
}

// ApplyEnvironment overlays the non-empty variables of env on c.
func (c *Config) ApplyEnvironment(env map[string]string) {
	if v := env[EnvAddress]; v != "" {
		c.Address = v
	}
	if v := env[EnvRoot]; v != "" {
		c.Root = v
	}
	if v := env[EnvIndex]; v != "" {
		c.Index = v
	}
	if v := env[EnvDeny]; v != "" {
		c.Deny = splitList(v)
	}
	if v := env[EnvThrottleRate]; v != "" {
		c.Throttle.Rate = v
	}
	if v := env[EnvLogLevel]; v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// Validate reports the first invalid setting of c.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("empty listen address")
	}
	if c.Root == "" {
		return errors.New("empty static root")
	}
	if err := spaserve.ValidateIndexName(c.Index); err != nil {
		return err
	}
	for _, pattern := range c.Deny {
		if err := spaserve.ValidateDenyPattern(pattern); err != nil {
			return err
		}
	}
	if _, err := c.Throttle.options(); err != nil {
		return err
	}
	if _, ok := logging.NameToLevel(c.LogLevel); !ok {
		return errors.Errorf("invalid log level: %q", c.LogLevel)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	return nil
}

// Level returns the configured log level, the default one if invalid.
func (c *Config) Level() logging.Level {
	if level, ok := logging.NameToLevel(c.LogLevel); ok {
		return level
	}
	return logging.DefaultLevel
}

// ResolverOptions converts c to resolver options.
func (c *Config) ResolverOptions() spaserve.ResolverOptions {
	return spaserve.ResolverOptions{
		IndexName: c.Index,
		Deny:      c.Deny,
	}
}

// Options converts c to handler options which log through logger.
func (c *Config) Options(logger *slog.Logger) (spaserve.Options, error) {
	throttle, err := c.Throttle.options()
	if err != nil {
		return spaserve.Options{}, err
	}

	options := spaserve.DefaultOptions
	options.RedirectDirectories = c.RedirectDirectories
	options.Throttle = throttle
	options.Logger = logger
	return options, nil
}

func (t Throttle) options() (spaserve.Throttle, error) {
	var throttle spaserve.Throttle

	limit, err := parseSize(t.Rate, "throttle rate")
	if err != nil || limit == 0 {
		return throttle, err
	}
	burst, err := parseSize(t.Burst, "throttle burst")
	if err != nil {
		return throttle, err
	}
	if burst > math.MaxInt {
		return throttle, errors.Errorf("throttle burst too large: %s", t.Burst)
	}
	minSize, err := parseSize(t.MinSize, "throttle minimum size")
	if err != nil {
		return throttle, err
	}

	throttle.Limit = float64(limit)
	throttle.Burst = int(burst)
	throttle.MinSize = int64(minSize)
	return throttle, nil
}

func parseSize(s, what string) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", what)
	}
	if n > math.MaxInt64 {
		return 0, errors.Errorf("%s too large: %s", what, s)
	}
	return n, nil
}
