package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/jobs"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Trigger and inspect job runs",
	Long: `Trigger runs and watch them finish.

A trigger returns immediately with the run in the queued state. Use
--watch (or 'runs get --watch') to poll until the run reaches a
terminal state: succeeded, failed, or cancelled.

Examples:
  gostratus runs submit nightly-refresh --param week=3
  gostratus runs submit 1042 --idempotency-token deploy-2026-08-25 --watch
  gostratus runs get 5096 --watch
  gostratus runs list --job-id 1042`,
}

var runsSubmitCmd = &cobra.Command{
	Use:   "submit <job-id|name>",
	Short: "Trigger a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsSubmit,
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show a run's state",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsGet,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE:  runRunsList,
}

var (
	runsSubmitParams     []string
	runsSubmitToken      string
	runsSubmitIdempotent bool
	runsSubmitWatch      bool
	runsGetJSON          bool
	runsGetWatch         bool
	runsWatchEvery       time.Duration
	runsListJobID        int64
	runsListJobName      string
	runsListLimit        int
	runsListJSON         bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsSubmitCmd)
	runsCmd.AddCommand(runsGetCmd)
	runsCmd.AddCommand(runsListCmd)

	runsSubmitCmd.Flags().StringArrayVar(&runsSubmitParams, "param", nil, "Run parameter as key=value, overrides the job's base parameters (repeatable)")
	runsSubmitCmd.Flags().StringVar(&runsSubmitToken, "idempotency-token", "", "Token making this trigger safe to repeat")
	runsSubmitCmd.Flags().BoolVar(&runsSubmitIdempotent, "idempotent", false, "Generate an idempotency token when none is given")
	runsSubmitCmd.Flags().BoolVar(&runsSubmitWatch, "watch", false, "Poll until the run reaches a terminal state")
	runsSubmitCmd.Flags().DurationVar(&runsWatchEvery, "interval", 10*time.Second, "Poll interval for --watch")

	runsGetCmd.Flags().BoolVar(&runsGetJSON, "json", false, "Output as JSON")
	runsGetCmd.Flags().BoolVar(&runsGetWatch, "watch", false, "Poll until the run reaches a terminal state")
	runsGetCmd.Flags().DurationVar(&runsWatchEvery, "interval", 10*time.Second, "Poll interval for --watch")

	runsListCmd.Flags().Int64Var(&runsListJobID, "job-id", 0, "Only runs of this job id")
	runsListCmd.Flags().StringVar(&runsListJobName, "name", "", "Only runs of the job with exactly this name")
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 0, "Stop after this many runs (0 = all)")
	runsListCmd.Flags().BoolVar(&runsListJSON, "json", false, "Output as JSON")
}

func runRunsSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts := jobs.RunNowOptions{IdempotencyToken: runsSubmitToken}
	if opts.IdempotencyToken == "" && runsSubmitIdempotent {
		opts.IdempotencyToken = uuid.New().String()
	}
	if len(runsSubmitParams) > 0 {
		params, err := parseParams(runsSubmitParams)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --param value", err)
		}
		opts.Parameters = params
	}

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	var run *jobs.Run
	if id, parseErr := strconv.ParseInt(args[0], 10, 64); parseErr == nil {
		run, err = svc.RunNow(ctx, id, opts)
	} else {
		run, err = svc.RunNowByName(ctx, args[0], opts)
	}
	if err != nil {
		observability.CLILogger.Error("Submit failed",
			zap.String("job", args[0]),
			zap.Error(err))
		if errors.Is(err, jobs.ErrAmbiguousName) {
			return exitError(foundry.ExitInvalidArgument, "Ambiguous job name", err)
		}
		return apiExitError(ctx, "Submit", err)
	}

	observability.CLILogger.Info("Run triggered",
		zap.Int64("run_id", run.RunID),
		zap.Int64("job_id", run.JobID),
		zap.String("state", string(run.State)))

	_, _ = fmt.Fprintf(os.Stdout, "Run %d started (job %d, %s)\n", run.RunID, run.JobID, run.State)
	if run.RunPageURL != "" {
		_, _ = fmt.Fprintf(os.Stdout, "  %s\n", run.RunPageURL)
	}

	if runsSubmitWatch {
		return watchRun(ctx, svc, run.RunID)
	}
	return nil
}

func runRunsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid run id",
			fmt.Errorf("run id must be numeric, got %q", args[0]))
	}

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if runsGetWatch {
		return watchRun(ctx, svc, runID)
	}

	run, err := svc.GetRun(ctx, runID)
	if err != nil {
		observability.CLILogger.Error("Get failed",
			zap.Int64("run_id", runID),
			zap.Error(err))
		return apiExitError(ctx, "Get", err)
	}

	if runsGetJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	printRun(run)
	return nil
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if runsListJobID != 0 && runsListJobName != "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid flags",
			errors.New("--job-id and --name are mutually exclusive"))
	}

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	opts := jobs.ListRunsOptions{
		JobID:    runsListJobID,
		PageSize: cfg.Jobs.PageSize,
	}

	var it *jobs.RunIterator
	if runsListJobName != "" {
		it, err = svc.ListRunsByName(ctx, runsListJobName, opts)
		if err != nil {
			observability.CLILogger.Error("List failed",
				zap.String("name", runsListJobName),
				zap.Error(err))
			if errors.Is(err, jobs.ErrAmbiguousName) {
				return exitError(foundry.ExitInvalidArgument, "Ambiguous job name", err)
			}
			return apiExitError(ctx, "List", err)
		}
	} else {
		it = svc.ListRuns(opts)
	}

	var listed []jobs.Run
	for it.Next(ctx) {
		listed = append(listed, it.Run())
		if runsListLimit > 0 && len(listed) >= runsListLimit {
			break
		}
	}
	if err := it.Err(); err != nil {
		observability.CLILogger.Error("List failed", zap.Error(err))
		return apiExitError(ctx, "List", err)
	}

	if len(listed) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No runs found")
		return nil
	}

	if runsListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "RUN ID\tJOB ID\tSTATE\tSTARTED\tENDED")
	for _, r := range listed {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
			r.RunID,
			r.JobID,
			r.State,
			formatEpochMillis(r.StartTime),
			formatEpochMillis(r.EndTime),
		)
	}

	return nil
}

// watchRun polls a run until it reaches a terminal state. State changes are
// logged as they are observed; the final state decides the exit code.
func watchRun(ctx context.Context, svc *jobs.Service, runID int64) error {
	interval := runsWatchEvery
	if interval < time.Second {
		interval = time.Second
	}

	var lastState jobs.RunState
	for {
		run, err := svc.GetRun(ctx, runID)
		if err != nil {
			observability.CLILogger.Error("Watch failed",
				zap.Int64("run_id", runID),
				zap.Error(err))
			return apiExitError(ctx, "Watch", err)
		}

		if run.State != lastState {
			observability.CLILogger.Info("Run state changed",
				zap.Int64("run_id", runID),
				zap.String("state", string(run.State)))
			lastState = run.State
		}

		if run.State.Terminal() {
			printRun(run)
			if run.State != jobs.RunStateSucceeded {
				return exitError(foundry.ExitExternalServiceUnavailable, "Run did not succeed",
					fmt.Errorf("run %d finished %s", runID, run.State))
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return exitError(foundry.ExitSignalInt, "Watch cancelled", ctx.Err())
		case <-time.After(interval):
		}
	}
}

func printRun(run *jobs.Run) {
	_, _ = fmt.Fprintf(os.Stdout, "run_id=%d\n", run.RunID)
	_, _ = fmt.Fprintf(os.Stdout, "job_id=%d\n", run.JobID)
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", run.State)
	if run.StartTime != 0 {
		_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", formatEpochMillis(run.StartTime))
	}
	if run.EndTime != 0 {
		_, _ = fmt.Fprintf(os.Stdout, "ended_at=%s\n", formatEpochMillis(run.EndTime))
	}
	if run.RunPageURL != "" {
		_, _ = fmt.Fprintf(os.Stdout, "run_page_url=%s\n", run.RunPageURL)
	}
}
