package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/credentials"
)

var (
	doctorLive bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  gostratus doctor         # Environment and credential checks
  gostratus doctor --live  # Also verify the workspace API is reachable`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorLive, "live", false, "Probe the workspace API with the resolved credential")
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== gostratus doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 6

	if doctorLive {
		totalChecks = 7
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Crucible access
	version := crucible.GetVersion()
	if version.Crucible != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ v%s", checkNum, totalChecks, version.Crucible),
			zap.String("crucible_version", version.Crucible))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			fmt.Errorf("crucible version unavailable"))
	}
	checkNum++

	// Check 3: Gofulmen access
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot find config directory", err)
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 5: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 6: Workspace credentials. The token itself is never shown, only
	// where resolution found it.
	cred, credErr := credentials.Resolve(credentials.ResolveOptions{
		Host:      cfg.Host,
		Token:     flagToken,
		NetrcPath: cfg.Netrc,
	})
	if credErr != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking workspace credentials... ❌ %v", checkNum, totalChecks, credErr))
		printCredentialsHelp()
		allChecks = false
	} else {
		source := tokenSource(flagToken != "", os.Getenv(credentials.EnvToken) != "")
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking workspace credentials... ✅ %s (token from %s)", checkNum, totalChecks, cred.Host, source),
			zap.String("host", cred.Host),
			zap.String("token_source", source))
	}
	checkNum++

	// Live API check
	if doctorLive {
		if credErr != nil {
			observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking workspace API... ❌ No credential to probe with", checkNum, totalChecks))
			allChecks = false
		} else {
			allChecks = runLiveCheck(cmd, checkNum, totalChecks) && allChecks
		}
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your gostratus installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// runLiveCheck stats the workspace root to verify connectivity and that the
// token is accepted.
func runLiveCheck(cmd *cobra.Command, checkNum, totalChecks int) bool {
	ws, err := newWorkspaceService()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking workspace API... ❌ %v", checkNum, totalChecks, err))
		return false
	}

	obj, err := ws.Stat(cmd.Context(), "/")
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking workspace API... ❌ %v", checkNum, totalChecks, err),
			zap.Error(err))
		return false
	}

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking workspace API... ✅ reachable (%s is a %s)", checkNum, totalChecks, obj.Path, obj.ObjectType),
		zap.String("object_type", string(obj.ObjectType)))
	return true
}

// tokenSource names where credential resolution found the token.
func tokenSource(fromFlag, fromEnv bool) string {
	switch {
	case fromFlag:
		return "flag"
	case fromEnv:
		return "environment"
	default:
		return "netrc file"
	}
}

// printCredentialsHelp prints help for configuring workspace credentials.
func printCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure workspace credentials:")
	observability.CLILogger.Info("  1. Set GOSTRATUS_HOST and GOSTRATUS_TOKEN environment variables, or")
	observability.CLILogger.Info("  2. Add a machine entry for your workspace host to ~/.netrc, or")
	observability.CLILogger.Info("  3. Pass --host (and rely on netrc for the token)")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Generate a personal access token from your workspace user settings.")
	observability.CLILogger.Info("")
}
