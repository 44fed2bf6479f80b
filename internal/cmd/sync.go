package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/match"
	"github.com/3leaps/gostratus/pkg/mirror"
	"github.com/3leaps/gostratus/pkg/output"
	"github.com/3leaps/gostratus/pkg/source"
	"github.com/3leaps/gostratus/pkg/source/local"
	s3source "github.com/3leaps/gostratus/pkg/source/s3"
)

var workspaceSyncCmd = &cobra.Command{
	Use:   "sync <source> <workspace-prefix>",
	Short: "Mirror a script tree into the workspace",
	Long: `Mirror a local directory or S3 prefix into the workspace.

Matched scripts are imported as workspace objects under the given prefix,
with the source extension stripped the way the import endpoint names
notebooks. Results stream to stdout as JSONL records; use --output to
write them to a file instead.

Without --include, scripts in the supported languages are matched
(.R, .py, .sql, .scala). --plan prints what would run without touching
the network; --dry-run lists and matches for real but imports nothing,
emitting a skip record per planned import.

Examples:
  gostratus workspace sync ./labs /Users/me@example.com/course
  gostratus workspace sync ./labs /Users/me@example.com/course --include '**/*.R' --exclude '**/scratch/**'
  gostratus workspace sync s3://bucket/courses/2026/ /Users/me@example.com/course --overwrite
  gostratus workspace sync ./labs /Users/me@example.com/course --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkspaceSync,
}

var (
	syncIncludes       []string
	syncExcludes       []string
	syncIncludeHidden  bool
	syncOverwrite      bool
	syncDryRun         bool
	syncPlan           bool
	syncOutput         string
	syncConcurrency    int
	syncMinSize        string
	syncMaxSize        string
	syncModifiedAfter  string
	syncModifiedBefore string
	syncKeyRegex       string
	syncRegion         string
	syncEndpoint       string
	syncProfile        string
)

// defaultSyncIncludes matches the languages the import endpoint accepts.
var defaultSyncIncludes = []string{"**/*.R", "**/*.r", "**/*.py", "**/*.sql", "**/*.scala"}

func init() {
	workspaceCmd.AddCommand(workspaceSyncCmd)

	flags := workspaceSyncCmd.Flags()
	flags.StringArrayVar(&syncIncludes, "include", nil, "Glob pattern entries must match (repeatable)")
	flags.StringArrayVar(&syncExcludes, "exclude", nil, "Glob pattern entries must not match (repeatable)")
	flags.BoolVar(&syncIncludeHidden, "include-hidden", false, "Match hidden files and directories")
	flags.BoolVar(&syncOverwrite, "overwrite", false, "Replace existing workspace objects")
	flags.BoolVar(&syncDryRun, "dry-run", false, "List and match without importing")
	flags.BoolVar(&syncPlan, "plan", false, "Show the sync plan and exit without network calls")
	flags.StringVarP(&syncOutput, "output", "o", "", "Write JSONL records to a file instead of stdout")
	flags.IntVar(&syncConcurrency, "concurrency", 0, "Parallel workers per stage (default from config)")
	flags.StringVar(&syncMinSize, "min-size", "", "Skip entries smaller than this (e.g. 1KB)")
	flags.StringVar(&syncMaxSize, "max-size", "", "Skip entries larger than this (e.g. 10MB)")
	flags.StringVar(&syncModifiedAfter, "modified-after", "", "Skip entries modified before this time (ISO 8601)")
	flags.StringVar(&syncModifiedBefore, "modified-before", "", "Skip entries modified at or after this time (ISO 8601)")
	flags.StringVar(&syncKeyRegex, "key-regex", "", "Regex entries must match after glob matching")
	flags.StringVar(&syncRegion, "region", "", "AWS region for s3 sources")
	flags.StringVar(&syncEndpoint, "endpoint", "", "Custom endpoint for S3-compatible sources")
	flags.StringVar(&syncProfile, "profile", "", "AWS profile for s3 sources")
}

func runWorkspaceSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	loc, err := parseSourceLocation(args[0])
	if err != nil {
		observability.CLILogger.Error("Invalid source location",
			zap.String("source", args[0]),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid source location", err)
	}

	remotePrefix := strings.TrimRight(args[1], "/")
	if !strings.HasPrefix(remotePrefix, "/") {
		return exitError(foundry.ExitInvalidArgument, "Invalid workspace prefix",
			fmt.Errorf("workspace prefix must be absolute, got %q", args[1]))
	}

	includes := append([]string{}, syncIncludes...)
	if loc.IsPattern() {
		includes = append(includes, loc.Pattern)
	}
	if len(includes) == 0 {
		includes = defaultSyncIncludes
	}

	if syncPlan {
		return showSyncPlan(loc, remotePrefix, includes)
	}

	return executeSync(ctx, loc, remotePrefix, includes)
}

// showSyncPlan displays what would be synced without executing.
func showSyncPlan(loc *SourceLocation, remotePrefix string, includes []string) error {
	fmt.Println("=== Sync Plan ===")
	fmt.Println()
	fmt.Printf("Source:      %s\n", loc)
	if loc.Scheme == "s3" {
		if syncRegion != "" {
			fmt.Printf("Region:      %s\n", syncRegion)
		}
		if syncEndpoint != "" {
			fmt.Printf("Endpoint:    %s\n", syncEndpoint)
		}
	}
	fmt.Printf("Destination: %s\n", remotePrefix)
	fmt.Println()
	fmt.Println("Patterns:")
	fmt.Println("  Include:")
	for _, p := range includes {
		fmt.Printf("    - %s\n", p)
	}
	if len(syncExcludes) > 0 {
		fmt.Println("  Exclude:")
		for _, p := range syncExcludes {
			fmt.Printf("    - %s\n", p)
		}
	}
	fmt.Println()

	if syncMinSize != "" || syncMaxSize != "" || syncModifiedAfter != "" || syncModifiedBefore != "" || syncKeyRegex != "" {
		fmt.Println("Filters:")
		if syncMinSize != "" || syncMaxSize != "" {
			fmt.Printf("  Size:      min=%s max=%s\n", syncMinSize, syncMaxSize)
		}
		if syncModifiedAfter != "" || syncModifiedBefore != "" {
			fmt.Printf("  Modified:  after=%s before=%s\n", syncModifiedAfter, syncModifiedBefore)
		}
		if syncKeyRegex != "" {
			fmt.Printf("  Key Regex: %s\n", syncKeyRegex)
		}
		fmt.Println()
	}

	fmt.Printf("Concurrency: %d\n", effectiveSyncConcurrency())
	if cfg.RateLimit > 0 {
		fmt.Printf("Rate Limit:  %.1f req/s\n", cfg.RateLimit)
	}
	fmt.Printf("Overwrite:   %v\n", syncOverwrite)
	fmt.Printf("Dry Run:     %v\n", syncDryRun)
	if syncOutput != "" {
		fmt.Printf("Output:      %s\n", syncOutput)
	} else {
		fmt.Printf("Output:      stdout\n")
	}
	fmt.Println()
	fmt.Println("Plan validated. Remove --plan to execute.")
	return nil
}

// executeSync runs the actual sync.
func executeSync(ctx context.Context, loc *SourceLocation, remotePrefix string, includes []string) error {
	// Generate the job ID early so the writer can carry it from the start
	jobID := uuid.New().String()

	src, err := createSource(ctx, loc)
	if err != nil {
		observability.CLILogger.Error("Failed to open source", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open source", err)
	}
	defer func() { _ = src.Close() }()

	matcher, err := match.New(match.Config{
		Includes:      includes,
		Excludes:      syncExcludes,
		IncludeHidden: syncIncludeHidden,
	})
	if err != nil {
		observability.CLILogger.Error("Failed to create matcher", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
	}

	filter, err := buildSyncFilter()
	if err != nil {
		observability.CLILogger.Error("Invalid filters", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid filters", err)
	}

	writer, cleanup, err := createWriter(syncOutput, jobID, loc.Scheme)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	ws, err := newWorkspaceService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	mirrorCfg := mirror.Config{
		Concurrency:   effectiveSyncConcurrency(),
		ChannelBuffer: cfg.Sync.ChannelBuffer,
		RateLimit:     cfg.RateLimit,
		ProgressEvery: cfg.Sync.ProgressEvery,
		Overwrite:     syncOverwrite,
		DryRun:        syncDryRun,
	}

	m := mirror.New(src, matcher, ws, writer, remotePrefix, jobID, mirrorCfg)
	if filter != nil {
		m.WithFilter(filter)
	}

	observability.CLILogger.Info("Starting sync",
		zap.String("job_id", jobID),
		zap.String("source", loc.String()),
		zap.String("destination", remotePrefix),
		zap.Int("concurrency", mirrorCfg.Concurrency),
		zap.Bool("dry_run", syncDryRun))

	summary, err := m.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			fields := []zap.Field{zap.String("job_id", jobID)}
			if summary != nil {
				fields = append(fields, zap.Int64("imported", summary.Imported))
			}
			observability.CLILogger.Warn("Sync cancelled", fields...)
			return exitError(foundry.ExitSignalInt, "Sync cancelled", err)
		}
		observability.CLILogger.Error("Sync failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Sync failed", err)
	}

	observability.CLILogger.Info("Sync completed",
		zap.String("job_id", jobID),
		zap.Int64("entries_listed", summary.EntriesListed),
		zap.Int64("entries_matched", summary.EntriesMatched),
		zap.Int64("imported", summary.Imported),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("failed", summary.Failed),
		zap.Int64("bytes_total", summary.BytesTotal),
		zap.Duration("duration", summary.Duration))

	if summary.Failed > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Sync completed with failures",
			fmt.Errorf("%d of %d imports failed", summary.Failed, summary.EntriesMatched))
	}
	return nil
}

func effectiveSyncConcurrency() int {
	if syncConcurrency > 0 {
		return syncConcurrency
	}
	return cfg.Sync.Concurrency
}

// buildSyncFilter assembles the metadata filter from flags. Returns nil
// when no filter flags are set.
func buildSyncFilter() (*match.CompositeFilter, error) {
	filterCfg := &match.FilterConfig{KeyRegex: syncKeyRegex}

	if syncMinSize != "" || syncMaxSize != "" {
		filterCfg.Size = &match.SizeFilterConfig{Min: syncMinSize, Max: syncMaxSize}
	}
	if syncModifiedAfter != "" || syncModifiedBefore != "" {
		filterCfg.Modified = &match.DateFilterConfig{After: syncModifiedAfter, Before: syncModifiedBefore}
	}

	return match.NewFilterFromConfig(filterCfg)
}

// createSource opens the sync source named by the parsed location.
func createSource(ctx context.Context, loc *SourceLocation) (source.Source, error) {
	if loc.Scheme == "local" {
		return local.New(local.Config{Dir: loc.Dir})
	}

	return s3source.New(ctx, s3source.Config{
		Bucket:   loc.Bucket,
		Prefix:   loc.Prefix,
		Region:   syncRegion,
		Endpoint: syncEndpoint,
		Profile:  syncProfile,
		// S3-compatible services (moto, MinIO, etc.) require path-style URLs.
		ForcePathStyle: syncEndpoint != "",
	})
}

// createWriter creates the JSONL record writer. Returns the writer, a
// cleanup function, and any error.
func createWriter(dest, jobID, sourceScheme string) (output.Writer, func(), error) {
	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, jobID, sourceScheme)
		return w, func() { _ = w.Close() }, nil
	}

	path := dest
	if strings.HasPrefix(dest, "file:") {
		path = strings.TrimPrefix(dest, "file:")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, jobID, sourceScheme)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
