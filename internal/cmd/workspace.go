package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Import and inspect workspace objects",
	Long: `Import source files into the workspace tree and inspect what is there.

Workspace paths are absolute and slash-separated, rooted at the user
directory, e.g. /Users/me@example.com/course/setup.

Examples:
  gostratus workspace import ./setup.R /Users/me@example.com/course/setup
  gostratus workspace stat /Users/me@example.com/course/setup
  gostratus workspace mkdirs /Users/me@example.com/course/labs`,
}

var workspaceImportCmd = &cobra.Command{
	Use:   "import <local-file> <workspace-path>",
	Short: "Import a source file as a workspace object",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceImport,
}

var workspaceStatCmd = &cobra.Command{
	Use:   "stat <workspace-path>",
	Short: "Show metadata for a workspace object",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceStat,
}

var workspaceMkdirsCmd = &cobra.Command{
	Use:   "mkdirs <workspace-path>",
	Short: "Create a workspace directory and missing parents",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceMkdirs,
}

var (
	workspaceImportLanguage  string
	workspaceImportOverwrite bool
	workspaceStatJSON        bool
)

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceImportCmd)
	workspaceCmd.AddCommand(workspaceStatCmd)
	workspaceCmd.AddCommand(workspaceMkdirsCmd)

	workspaceImportCmd.Flags().StringVar(&workspaceImportLanguage, "language", "", "Override language inference (python|r|sql|scala)")
	workspaceImportCmd.Flags().BoolVar(&workspaceImportOverwrite, "overwrite", false, "Replace an existing object at the target path")

	workspaceStatCmd.Flags().BoolVar(&workspaceStatJSON, "json", false, "Output as JSON")
}

func runWorkspaceImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	localPath, workspacePath := args[0], args[1]

	opts := workspace.ImportOptions{Overwrite: workspaceImportOverwrite}
	if workspaceImportLanguage != "" {
		lang, err := parseLanguageFlag(workspaceImportLanguage)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --language value", err)
		}
		opts.Language = lang
	}

	ws, err := newWorkspaceService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	obj, err := ws.Import(ctx, localPath, workspacePath, opts)
	if err != nil {
		observability.CLILogger.Error("Import failed",
			zap.String("local_path", localPath),
			zap.String("workspace_path", workspacePath),
			zap.Error(err))
		switch {
		case errors.Is(err, workspace.ErrUnknownLanguage):
			return exitError(foundry.ExitInvalidArgument, "Cannot infer language, pass --language", err)
		case errors.Is(err, fs.ErrNotExist):
			return exitError(foundry.ExitFileNotFound, "Local file not found", err)
		case errors.Is(err, fs.ErrPermission):
			return exitError(foundry.ExitFileReadError, "Cannot read local file", err)
		}
		return apiExitError(ctx, "Import", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Imported %s as %s (%s)\n", localPath, obj.Path, obj.Language)
	return nil
}

func runWorkspaceStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	workspacePath := args[0]

	ws, err := newWorkspaceService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	obj, err := ws.Stat(ctx, workspacePath)
	if err != nil {
		observability.CLILogger.Error("Stat failed",
			zap.String("workspace_path", workspacePath),
			zap.Error(err))
		return apiExitError(ctx, "Stat", err)
	}

	if workspaceStatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	}

	_, _ = fmt.Fprintf(os.Stdout, "path=%s\n", obj.Path)
	_, _ = fmt.Fprintf(os.Stdout, "object_type=%s\n", obj.ObjectType)
	if obj.ObjectID != 0 {
		_, _ = fmt.Fprintf(os.Stdout, "object_id=%d\n", obj.ObjectID)
	}
	if obj.Language != "" {
		_, _ = fmt.Fprintf(os.Stdout, "language=%s\n", obj.Language)
	}
	if obj.ModifiedAt != 0 {
		modified := time.UnixMilli(obj.ModifiedAt).UTC().Format(time.RFC3339)
		_, _ = fmt.Fprintf(os.Stdout, "modified_at=%s\n", modified)
	}
	return nil
}

func runWorkspaceMkdirs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	workspacePath := args[0]

	ws, err := newWorkspaceService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if err := ws.Mkdirs(ctx, workspacePath); err != nil {
		observability.CLILogger.Error("Mkdirs failed",
			zap.String("workspace_path", workspacePath),
			zap.Error(err))
		return apiExitError(ctx, "Mkdirs", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Created %s\n", workspacePath)
	return nil
}

// parseLanguageFlag maps a --language value onto a workspace language.
func parseLanguageFlag(v string) (workspace.Language, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "PYTHON":
		return workspace.LanguagePython, nil
	case "R":
		return workspace.LanguageR, nil
	case "SQL":
		return workspace.LanguageSQL, nil
	case "SCALA":
		return workspace.LanguageScala, nil
	default:
		return "", fmt.Errorf("unsupported language %q (supported: python, r, sql, scala)", v)
	}
}
