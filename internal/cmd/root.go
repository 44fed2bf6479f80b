// Package cmd implements the gostratus command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/config"
	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/credentials"
	"github.com/3leaps/gostratus/pkg/filestore"
	"github.com/3leaps/gostratus/pkg/jobs"
	"github.com/3leaps/gostratus/pkg/platform"
	"github.com/3leaps/gostratus/pkg/workspace"
)

// versionInfo holds build metadata injected by the linker via SetVersionInfo.
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo records build metadata. Called from main before Execute.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

var rootCmd = &cobra.Command{
	Use:   "gostratus",
	Short: "Workspace and job automation for the analytics platform",
	Long: `gostratus imports script trees into a platform workspace and manages
the jobs that run them.

Credentials resolve from flags, then GOSTRATUS_HOST/GOSTRATUS_TOKEN,
then a netrc-format file (~/.netrc by default). Tokens never appear in
logs or output.

Examples:
  gostratus workspace sync ./labs /Users/me@example.com/course --include '**/*.R'
  gostratus jobs create --file job.yaml
  gostratus runs submit nightly-refresh --param week=3`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

// Persistent flags, shared by every subcommand.
var (
	flagConfig    string
	flagHost      string
	flagToken     string
	flagNetrc     string
	flagTimeout   time.Duration
	flagRateLimit float64
	flagLogLevel  string
	flagJSONLogs  bool
)

// cfg is the configuration resolved for the current invocation.
var cfg *config.Config

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to config file (default ./gostratus.yaml, ~/.config/gostratus/)")
	pf.StringVar(&flagHost, "host", "", "Workspace URL (or GOSTRATUS_HOST)")
	pf.StringVar(&flagToken, "token", "", "Access token (prefer GOSTRATUS_TOKEN or netrc over this flag)")
	pf.StringVar(&flagNetrc, "netrc", "", "Credential file path (default ~/.netrc)")
	pf.DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout (default 30s)")
	pf.Float64Var(&flagRateLimit, "rate-limit", 0, "Max API requests per second (0 = unlimited)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flagJSONLogs, "json-logs", false, "Emit logs as JSON")
}

// initRuntime loads configuration and initializes logging. Flags the user
// actually set are applied as overrides so they beat environment and file.
func initRuntime(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("host") {
		overrides["host"] = flagHost
	}
	if flags.Changed("netrc") {
		overrides["netrc"] = flagNetrc
	}
	if flags.Changed("timeout") {
		overrides["timeout"] = flagTimeout.String()
	}
	if flags.Changed("rate-limit") {
		overrides["rate_limit"] = flagRateLimit
	}
	if flags.Changed("log-level") {
		overrides["logging.level"] = flagLogLevel
	}
	if flags.Changed("json-logs") && flagJSONLogs {
		overrides["logging.profile"] = "json"
	}

	loaded, err := config.Load(flagConfig, overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	cfg = loaded

	observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Profile == "json")
	return nil
}

// Execute runs the root command and terminates the process on failure.
// Interrupt and termination signals cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
		_ = observability.Sync()
		os.Exit(exitCodeFor(err))
	}
	_ = observability.Sync()
}

// codedError carries a process exit code from a RunE back to Execute.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.msg, e.err, e.code)
}

func (e *codedError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, msg: message, err: err}
}

// exitCodeFor extracts the exit code from an error chain. Errors without a
// code exit 1.
func exitCodeFor(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return 1
}

// ExitWithCode logs the error and terminates the process immediately.
// Prefer returning exitError from RunE; this exists for checks that must
// not continue past a failure.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err))
	_ = logger.Sync()
	os.Exit(code)
}

// resolveClient builds an authenticated platform client from the resolved
// configuration and the credential chain.
func resolveClient() (*platform.Client, error) {
	cred, err := credentials.Resolve(credentials.ResolveOptions{
		Host:      cfg.Host,
		Token:     flagToken,
		NetrcPath: cfg.Netrc,
	})
	if err != nil {
		return nil, err
	}

	return platform.NewClient(cred, platform.Options{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: userAgent(),
		Logger:    observability.CLILogger,
	})
}

func userAgent() string {
	if versionInfo.Version == "" {
		return ""
	}
	return "gostratus/" + versionInfo.Version
}

func newWorkspaceService() (*workspace.Service, error) {
	client, err := resolveClient()
	if err != nil {
		return nil, err
	}
	return workspace.New(client, observability.CLILogger), nil
}

func newJobsService() (*jobs.Service, error) {
	client, err := resolveClient()
	if err != nil {
		return nil, err
	}
	return jobs.New(client, observability.CLILogger), nil
}

func newFileStoreService() (*filestore.Service, error) {
	client, err := resolveClient()
	if err != nil {
		return nil, err
	}
	return filestore.New(client, observability.CLILogger), nil
}

// apiExitError maps a failed platform call onto an exit-coded error.
// Cancellation wins over whatever error the call surfaced.
func apiExitError(ctx context.Context, action string, err error) error {
	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, action+" cancelled", err)
	}
	switch {
	case errors.Is(err, platform.ErrNotFound):
		return exitError(foundry.ExitFileNotFound, action+" failed", err)
	case errors.Is(err, platform.ErrConflict), errors.Is(err, platform.ErrPermissionDenied):
		return exitError(foundry.ExitInvalidArgument, action+" failed", err)
	}
	return exitError(foundry.ExitExternalServiceUnavailable, action+" failed", err)
}
