package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/greengrass-edge/shadow-sync/internal/cloud"
	"github.com/greengrass-edge/shadow-sync/internal/config"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDBPath     string
	flagCloudURL   string
	flagTokenEnv   string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is the resolved, immutable view of the persistent flags a RunE
// handler needs, bundled so it isn't threaded individually through call
// chains.
type CLIFlags struct {
	ConfigPath string
	DBPath     string
	CloudURL   string
	TokenEnv   string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext bundles the resolved configuration and logger every subcommand
// needs. Built once in PersistentPreRunE and reused by every subcommand.
type CLIContext struct {
	Config *config.Config
	Flags  CLIFlags
	Logger *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Programmer error only: PersistentPreRunE guarantees the context
// is populated before any RunE runs.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE did not run")
	}

	return cc
}

// httpClientTimeout bounds the cloud client's per-request wall time so a
// hung connection cannot block a CLI invocation indefinitely.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// envTokenSource reads a bearer token from an environment variable on every
// call, so a rotated token takes effect without restarting the process.
type envTokenSource struct {
	envVar string
}

func (s envTokenSource) Token() (string, error) {
	v := os.Getenv(s.envVar)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is not set", s.envVar)
	}

	return v, nil
}

// newCloudClient builds a cloud.Client from the resolved CLI flags and the
// active rate-limit configuration.
func newCloudClient(cc *CLIContext) *cloud.Client {
	maxOutbound := float64(cc.Config.RateLimits.MaxOutboundUpdatesPerSecond)

	return cloud.NewClient(
		cc.Flags.CloudURL,
		defaultHTTPClient(),
		envTokenSource{envVar: cc.Flags.TokenEnv},
		maxOutbound,
		cc.Logger,
	)
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shadow-sync",
		Short:   "Edge-device shadow sync engine",
		Long:    "A bidirectional shadow-document sync engine between local storage and a cloud device-data service.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "shadow-sync.db", "SQLite store path")
	cmd.PersistentFlags().StringVar(&flagCloudURL, "cloud-url", cloud.DefaultBaseURL, "device-data service base URL")
	cmd.PersistentFlags().StringVar(&flagTokenEnv, "token-env", "SHADOWSYNC_TOKEN", "environment variable holding the bearer token")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newShadowCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

// loadCLIContext resolves configuration and builds the logger, storing the
// result on the command's context for RunE handlers to retrieve.
func loadCLIContext(cmd *cobra.Command) error {
	logger := buildLogger()

	path := config.ResolveConfigPath(flagConfigPath, "shadow-sync.toml")

	cfg, err := config.LoadOrDefault(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Config: cfg,
		Flags: CLIFlags{
			ConfigPath: path,
			DBPath:     flagDBPath,
			CloudURL:   flagCloudURL,
			TokenEnv:   flagTokenEnv,
			JSON:       flagJSON,
			Verbose:    flagVerbose,
			Quiet:      flagQuiet,
		},
		Logger: logger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger whose level follows --verbose/--quiet,
// with flags taking precedence over everything else.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// syncConfiguration expands cc's loaded config into the internal/sync
// Configuration the Sync Handler consumes.
func syncConfiguration(cc *CLIContext) sync.Configuration {
	return config.ToSyncConfiguration(cc.Config)
}
