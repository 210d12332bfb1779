package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kataras/spaserve"
	"github.com/kataras/spaserve/internal/logging"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal("unable to write file:", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()

	if c.Address != ":8080" || c.Root != "static" || c.Index != "index.html" || c.LogLevel != "info" {
		t.Error("unexpected defaults:", c)
	}
	if err := c.Validate(); err != nil {
		t.Error("defaults are invalid:", err)
	}

	options, err := c.Options(nil)
	if err != nil {
		t.Fatal("unable to convert defaults:", err)
	}
	if options.Throttle.Limit != 0 || options.RedirectDirectories {
		t.Error("unexpected default options:", options)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "spaserve.yaml", `
address: 127.0.0.1:9000
root: public
index: default.htm
deny:
  - "**/.*"
redirectDirectories: true
throttle:
  rate: 64KiB
  burst: 8KiB
  minSize: 1MiB
logLevel: debug
shutdownTimeout: 3s
`)

	c, err := Load(path)
	if err != nil {
		t.Fatal("unable to load configuration:", err)
	}

	expected := &Config{
		Address:             "127.0.0.1:9000",
		Root:                "public",
		Index:               "default.htm",
		Deny:                []string{"**/.*"},
		RedirectDirectories: true,
		Throttle:            Throttle{Rate: "64KiB", Burst: "8KiB", MinSize: "1MiB"},
		LogLevel:            "debug",
		ShutdownTimeout:     3 * time.Second,
	}
	if !reflect.DeepEqual(c, expected) {
		t.Fatalf("loaded %+v, expected %+v", c, expected)
	}

	if err := c.Validate(); err != nil {
		t.Fatal("loaded configuration is invalid:", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	options, err := c.Options(logger)
	if err != nil {
		t.Fatal("unable to convert configuration:", err)
	}
	expectedThrottle := spaserve.Throttle{Limit: 64 * spaserve.KB, Burst: 8 * spaserve.KB, MinSize: spaserve.MB}
	if options.Throttle != expectedThrottle {
		t.Error("unexpected throttle:", options.Throttle)
	}
	if options.Logger != logger || !options.RedirectDirectories {
		t.Error("unexpected options:", options)
	}

	if r := c.ResolverOptions(); r.IndexName != "default.htm" || len(r.Deny) != 1 {
		t.Error("unexpected resolver options:", r)
	}
	if c.Level() != logging.LevelDebug {
		t.Error("unexpected level:", c.Level())
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	c, err := Load(writeFile(t, "spaserve.yaml", "root: www\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Root != "www" || c.Address != ":8080" || c.ShutdownTimeout != 10*time.Second {
		t.Error("unexpected configuration:", c)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	c, err := Load(writeFile(t, "spaserve.yaml", ""))
	if err != nil {
		t.Fatal("unable to load empty file:", err)
	}
	if !reflect.DeepEqual(c, Default()) {
		t.Error("empty file changed defaults:", c)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "unknown.yaml", "port: 8080\n")); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := Load(writeFile(t, "bad.yaml", "root: [\n")); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestApplyEnvironment(t *testing.T) {
	c := Default()
	c.ApplyEnvironment(map[string]string{
		EnvAddress:      ":9090",
		EnvRoot:         "/srv/www",
		EnvIndex:        "",
		EnvDeny:         " **/.* , *.map ,,",
		EnvThrottleRate: "1MB",
		EnvLogLevel:     "WARN",
	})

	if c.Address != ":9090" || c.Root != "/srv/www" || c.Index != "index.html" {
		t.Error("unexpected configuration:", c)
	}
	if !reflect.DeepEqual(c.Deny, []string{"**/.*", "*.map"}) {
		t.Error("unexpected deny list:", c.Deny)
	}
	if c.Throttle.Rate != "1MB" || c.LogLevel != "warn" {
		t.Error("unexpected configuration:", c)
	}
	if err := c.Validate(); err != nil {
		t.Error("unexpected validation error:", err)
	}
}

func TestEnvironment(t *testing.T) {
	path := writeFile(t, ".env", "SPASERVE_ROOT=from-file\nSPASERVE_INDEX=from-file.html\n")
	t.Setenv(EnvIndex, "from-process.html")

	env, err := Environment(path)
	if err != nil {
		t.Fatal("unable to read environment:", err)
	}
	if env[EnvRoot] != "from-file" {
		t.Error("file variable missing:", env[EnvRoot])
	}
	if env[EnvIndex] != "from-process.html" {
		t.Error("process variable did not win:", env[EnvIndex])
	}

	if _, err := Environment(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Error("missing environment file not ignored:", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []func(*Config){
		func(c *Config) { c.Address = "" },
		func(c *Config) { c.Root = "" },
		func(c *Config) { c.Index = "a/b.html" },
		func(c *Config) { c.Deny = []string{"[a"} },
		func(c *Config) { c.Throttle.Rate = "fast" },
		func(c *Config) { c.Throttle = Throttle{Rate: "1MB", Burst: "lots"} },
		func(c *Config) { c.LogLevel = "loud" },
		func(c *Config) { c.Throttle = Throttle{Rate: "1MB", Burst: "10EB"} },
		func(c *Config) { c.Throttle = Throttle{Rate: "1MB", MinSize: "10EB"} },
		func(c *Config) { c.Throttle = Throttle{Rate: "10EB"} },
		func(c *Config) { c.ShutdownTimeout = -time.Second },
		func(c *Config) { c.ShutdownTimeout = 0 },
	}

	for i, mutate := range tests {
		c := Default()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, c)
		}
	}
}
