package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kataras/spaserve"
	"github.com/kataras/spaserve/internal/config"
	"github.com/kataras/spaserve/internal/logging"
)

// dotenvPath is the optional environment file read at startup.
const dotenvPath = ".env"

// rootMain is the entry point for the root command.
func rootMain(command *cobra.Command, configuration *rootConfiguration) error {
	env, err := config.Environment(dotenvPath)
	if err != nil {
		return err
	}

	c, err := config.Load(configuration.config)
	if err != nil {
		return err
	}
	c.ApplyEnvironment(env)
	applyFlags(command, configuration, c)

	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger := logging.New(command.ErrOrStderr(), c.Level())
	slog.SetDefault(logger)

	resolver, err := spaserve.NewResolver(c.Root, c.ResolverOptions())
	if err != nil {
		return err
	}

	options, err := c.Options(logger)
	if err != nil {
		return err
	}

	checkRoot(resolver, logger)

	// Binding is the only startup failure which is fatal.
	listener, err := net.Listen("tcp", c.Address)
	if err != nil {
		logger.Error("unable to bind", slog.String("address", c.Address), slog.Any("error", err))
		return errors.Wrapf(err, "unable to bind %s", c.Address)
	}

	server := &http.Server{
		Handler:  spaserve.Log(spaserve.New(resolver, options), logger),
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	fmt.Fprintf(color.Error, "%s %s at %s\n",
		color.GreenString("Serving"), color.CyanString(resolver.Root()), color.CyanString("http://"+listener.Addr().String()))
	logger.Info("listening", slog.String("address", listener.Addr().String()), slog.String("root", resolver.Root()))

	ctx, stop := signal.NotifyContext(context.Background(), TerminationSignals...)
	defer stop()

	return serve(ctx, server, listener, c.ShutdownTimeout, logger)
}

// serve serves HTTP on listener until ctx is done, then shuts the server down
// and waits up to timeout for in-flight requests.
func serve(ctx context.Context, server *http.Server, listener net.Listener, timeout time.Duration, logger *slog.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Serve(listener)
	}()

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server termination")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "unable to shut down gracefully")
	}

	return nil
}

// checkRoot warns about a missing static root or index document.
// Neither is fatal, they may appear after startup.
func checkRoot(resolver *spaserve.Resolver, logger *slog.Logger) {
	if info, err := os.Stat(resolver.Root()); err != nil || !info.IsDir() {
		logger.Warn("static root is not a readable directory", slog.String("root", resolver.Root()))
		return
	}

	if _, err := os.Stat(resolver.Index()); err != nil {
		logger.Warn("index document is missing", slog.String("index", resolver.Index()), slog.Any("error", err))
	}
}

// applyFlags overlays the explicitly set flags on c.
func applyFlags(command *cobra.Command, configuration *rootConfiguration, c *config.Config) {
	flags := command.Flags()
	if flags.Changed("address") {
		c.Address = configuration.address
	}
	if flags.Changed("root") {
		c.Root = configuration.root
	}
	if flags.Changed("index") {
		c.Index = configuration.index
	}
	if flags.Changed("deny") {
		c.Deny = configuration.deny
	}
	if flags.Changed("redirect-directories") {
		c.RedirectDirectories = configuration.redirectDirectories
	}
	if flags.Changed("throttle-rate") {
		c.Throttle.Rate = configuration.throttleRate
	}
	if flags.Changed("throttle-burst") {
		c.Throttle.Burst = configuration.throttleBurst
	}
	if flags.Changed("throttle-min-size") {
		c.Throttle.MinSize = configuration.throttleMinSize
	}
	if flags.Changed("log-level") {
		c.LogLevel = configuration.logLevel
	}
	if flags.Changed("shutdown-timeout") {
		c.ShutdownTimeout = configuration.shutdownTimeout
	}
}

// rootConfiguration stores configuration for the root command.
type rootConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// config is the path of an optional YAML configuration file.
	config string
	// address is the TCP listen address.
	address string
	// root is the static root directory.
	root string
	// index is the index document name.
	index string
	// deny holds patterns of files never served.
	deny []string
	// redirectDirectories enables slash redirects for directories.
	redirectDirectories bool
	// throttleRate is the bandwidth limit per response.
	throttleRate string
	// throttleBurst is the maximum bytes sent at once when throttled.
	throttleBurst string
	// throttleMinSize is the smallest throttled file size.
	throttleMinSize string
	// logLevel is the log level name.
	logLevel string
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout time.Duration
}

// newRootCommand creates the root command along with the configuration its
// flags are bound to.
func newRootCommand() (*cobra.Command, *rootConfiguration) {
	configuration := &rootConfiguration{}
	defaults := config.Default()

	command := &cobra.Command{
		Use:   "spaserve",
		Short: "Serve the static files of a single page application",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return rootMain(command, configuration)
		},
		SilenceUsage: true,
		// Errors are printed by Fatal.
		SilenceErrors: true,
	}

	// Grab a handle for the command line flags.
	flags := command.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&configuration.help, "help", "h", false, "Show help information")

	flags.StringVarP(&configuration.config, "config", "c", "", "Read configuration from a YAML file")
	flags.StringVarP(&configuration.address, "address", "a", defaults.Address, "Listen on the specified TCP address ("+config.EnvAddress+")")
	flags.StringVarP(&configuration.root, "root", "r", defaults.Root, "Serve files from the specified directory ("+config.EnvRoot+")")
	flags.StringVar(&configuration.index, "index", defaults.Index, "Use the specified index document name ("+config.EnvIndex+")")
	flags.StringSliceVar(&configuration.deny, "deny", nil, "Never serve files matching the specified pattern ("+config.EnvDeny+")")
	flags.BoolVar(&configuration.redirectDirectories, "redirect-directories", false, "Redirect directory paths without a trailing slash")
	flags.StringVar(&configuration.throttleRate, "throttle-rate", "", "Limit each response to the specified bytes per second ("+config.EnvThrottleRate+")")
	flags.StringVar(&configuration.throttleBurst, "throttle-burst", "", "Send at most the specified bytes at once when throttled")
	flags.StringVar(&configuration.throttleMinSize, "throttle-min-size", "", "Throttle only files of at least the specified size")
	flags.StringVarP(&configuration.logLevel, "log-level", "l", defaults.LogLevel, "Set the log level ("+config.EnvLogLevel+")")
	flags.DurationVar(&configuration.shutdownTimeout, "shutdown-timeout", defaults.ShutdownTimeout, "Wait at most the specified duration for requests on termination")

	return command, configuration
}

func main() {
	command, _ := newRootCommand()
	if err := command.Execute(); err != nil {
		Fatal(err)
	}
}
