package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	templatesassets "github.com/3leaps/gostratus/internal/assets/templates"
	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage platform jobs",
	Long: `Manage jobs that run workspace scripts on a schedule or on demand.

Jobs are identified by the numeric id the platform assigns at creation.
Commands also accept a job name where noted, but names are not unique:
an ambiguous name is an error, never a silent pick.

Examples:
  gostratus jobs init
  gostratus jobs create --file job.yaml
  gostratus jobs list --json
  gostratus jobs get nightly-refresh
  gostratus jobs reset 1042 --file job.yaml
  gostratus jobs delete 1042`,
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job",
	RunE:  runJobsCreate,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id|name>",
	Short: "Show a job's stored settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsResetCmd = &cobra.Command{
	Use:   "reset <job-id>",
	Short: "Replace a job's settings wholesale",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsReset,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter job settings file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsInit,
}

var (
	jobsCreateFile   string
	jobsCreateName   string
	jobsCreateScript string
	jobsCreateParams []string
	jobsResetFile    string
	jobsGetJSON      bool
	jobsListName     string
	jobsListLimit    int
	jobsListJSON     bool
	jobsInitForce    bool
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsResetCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsInitCmd)

	jobsCreateCmd.Flags().StringVarP(&jobsCreateFile, "file", "f", "", "Settings file (YAML or JSON)")
	jobsCreateCmd.Flags().StringVar(&jobsCreateName, "name", "", "Job name (with --script, instead of --file)")
	jobsCreateCmd.Flags().StringVar(&jobsCreateScript, "script", "", "Workspace path of the script to run")
	jobsCreateCmd.Flags().StringArrayVar(&jobsCreateParams, "param", nil, "Base parameter as key=value (repeatable)")

	jobsResetCmd.Flags().StringVarP(&jobsResetFile, "file", "f", "", "Settings file (required)")
	_ = jobsResetCmd.MarkFlagRequired("file")

	jobsGetCmd.Flags().BoolVar(&jobsGetJSON, "json", false, "Output as JSON")

	jobsListCmd.Flags().StringVar(&jobsListName, "name", "", "Only jobs with exactly this name")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 0, "Stop after this many jobs (0 = all)")
	jobsListCmd.Flags().BoolVar(&jobsListJSON, "json", false, "Output as JSON")

	jobsInitCmd.Flags().BoolVar(&jobsInitForce, "force", false, "Overwrite an existing file")
}

func runJobsCreate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings, err := collectCreateSettings()
	if err != nil {
		observability.CLILogger.Error("Invalid job settings", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job settings", err)
	}

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	job, err := svc.Create(ctx, *settings)
	if err != nil {
		observability.CLILogger.Error("Create failed",
			zap.String("name", settings.Name),
			zap.Error(err))
		if errors.Is(err, jobs.ErrInvalidSettings) {
			return exitError(foundry.ExitInvalidArgument, "Invalid job settings", err)
		}
		return apiExitError(ctx, "Create", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Created job %d (%s)\n", job.JobID, job.Settings.Name)
	return nil
}

// collectCreateSettings builds settings from --file or from the
// --name/--script/--param shorthand.
func collectCreateSettings() (*jobs.Settings, error) {
	if jobsCreateFile != "" {
		if jobsCreateName != "" || jobsCreateScript != "" {
			return nil, errors.New("--file cannot be combined with --name or --script")
		}
		return jobs.LoadSettings(jobsCreateFile)
	}

	if jobsCreateName == "" || jobsCreateScript == "" {
		return nil, errors.New("pass --file, or both --name and --script")
	}

	settings := jobs.DefaultSettings(jobsCreateName, jobsCreateScript)
	if len(jobsCreateParams) > 0 {
		params, err := parseParams(jobsCreateParams)
		if err != nil {
			return nil, err
		}
		settings.Task.BaseParameters = params
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	job, err := getJobByRef(ctx, svc, args[0])
	if err != nil {
		observability.CLILogger.Error("Get failed",
			zap.String("job", args[0]),
			zap.Error(err))
		if errors.Is(err, jobs.ErrAmbiguousName) {
			return exitError(foundry.ExitInvalidArgument, "Ambiguous job name", err)
		}
		return apiExitError(ctx, "Get", err)
	}

	if jobsGetJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%d\n", job.JobID)
	_, _ = fmt.Fprintf(os.Stdout, "name=%s\n", job.Settings.Name)
	_, _ = fmt.Fprintf(os.Stdout, "script=%s\n", job.Settings.Task.WorkspacePath)
	_, _ = fmt.Fprintf(os.Stdout, "node_type=%s\n", job.Settings.Cluster.NodeType)
	_, _ = fmt.Fprintf(os.Stdout, "runtime=%s\n", job.Settings.Cluster.RuntimeVersion)
	_, _ = fmt.Fprintf(os.Stdout, "workers=%d\n", job.Settings.Cluster.NumWorkers)
	for k, v := range job.Settings.Task.BaseParameters {
		_, _ = fmt.Fprintf(os.Stdout, "param.%s=%s\n", k, v)
	}
	if job.CreatedAt != 0 {
		_, _ = fmt.Fprintf(os.Stdout, "created_at=%s\n", formatEpochMillis(job.CreatedAt))
	}
	return nil
}

func runJobsReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	jobID, err := parseJobID(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}

	settings, err := jobs.LoadSettings(jobsResetFile)
	if err != nil {
		observability.CLILogger.Error("Invalid job settings",
			zap.String("path", jobsResetFile),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job settings", err)
	}

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if err := svc.Reset(ctx, jobID, *settings); err != nil {
		observability.CLILogger.Error("Reset failed",
			zap.Int64("job_id", jobID),
			zap.Error(err))
		return apiExitError(ctx, "Reset", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Reset job %d\n", jobID)
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	jobID, err := parseJobID(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if err := svc.Delete(ctx, jobID); err != nil {
		observability.CLILogger.Error("Delete failed",
			zap.Int64("job_id", jobID),
			zap.Error(err))
		return apiExitError(ctx, "Delete", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Deleted job %d\n", jobID)
	return nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svc, err := newJobsService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	it := svc.List(jobs.ListOptions{
		Name:     jobsListName,
		PageSize: cfg.Jobs.PageSize,
	})

	var listed []jobs.Job
	for it.Next(ctx) {
		listed = append(listed, it.Job())
		if jobsListLimit > 0 && len(listed) >= jobsListLimit {
			break
		}
	}
	if err := it.Err(); err != nil {
		observability.CLILogger.Error("List failed", zap.Error(err))
		return apiExitError(ctx, "List", err)
	}

	if len(listed) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jobsListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tNAME\tSCRIPT\tCREATED")
	for _, j := range listed {
		name := j.Settings.Name
		if name == "" {
			name = "-"
		}
		script := j.Settings.Task.WorkspacePath
		if script == "" {
			script = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			j.JobID,
			name,
			script,
			formatEpochMillis(j.CreatedAt),
		)
	}

	return nil
}

func runJobsInit(cmd *cobra.Command, args []string) error {
	path := "job.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if !jobsInitForce {
		if _, err := os.Stat(path); err == nil {
			return exitError(foundry.ExitInvalidArgument, "File already exists",
				fmt.Errorf("%s exists, pass --force to overwrite", path))
		}
	}

	if err := os.WriteFile(path, templatesassets.JobSettingsTemplate, 0o644); err != nil {
		observability.CLILogger.Error("Failed to write settings file",
			zap.String("path", path),
			zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write settings file", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
	return nil
}

// getJobByRef fetches a job by numeric id or unique name.
func getJobByRef(ctx context.Context, svc *jobs.Service, ref string) (*jobs.Job, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return svc.Get(ctx, id)
	}
	return svc.ResolveName(ctx, ref)
}

// parseJobID parses a job id argument for commands that refuse names.
func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("job id must be numeric, got %q", arg)
	}
	return id, nil
}

// parseParams parses repeated key=value flags.
func parseParams(raw []string) (map[string]string, error) {
	params := make(map[string]string, len(raw))
	for _, p := range raw {
		key, val, found := strings.Cut(p, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("parameter must be key=value, got %q", p)
		}
		params[key] = val
	}
	return params, nil
}

// formatEpochMillis renders platform timestamps; zero renders as "-".
func formatEpochMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
