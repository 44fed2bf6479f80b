package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/filestore"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Work with the workspace file store",
	Long: `Upload, read, and manage files in the workspace file store.

The file store holds data files (CSVs, fixtures, small artifacts) that
scripts read at run time. It is separate from the workspace script tree
managed by 'gostratus workspace'.

Examples:
  gostratus fs put ./grades.csv /course/data/grades.csv
  gostratus fs cat /course/data/grades.csv
  gostratus fs rm /course/data --recursive`,
}

var fsPutCmd = &cobra.Command{
	Use:   "put <local-file> <remote-path>",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE:  runFsPut,
}

var fsCatCmd = &cobra.Command{
	Use:   "cat <remote-path>",
	Short: "Print a file's contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runFsCat,
}

var fsStatCmd = &cobra.Command{
	Use:   "stat <remote-path>",
	Short: "Show file metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runFsStat,
}

var fsRmCmd = &cobra.Command{
	Use:   "rm <remote-path>",
	Short: "Delete a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runFsRm,
}

var fsMkdirsCmd = &cobra.Command{
	Use:   "mkdirs <remote-path>",
	Short: "Create a directory and its parents",
	Args:  cobra.ExactArgs(1),
	RunE:  runFsMkdirs,
}

var (
	fsPutOverwrite bool
	fsStatJSON     bool
	fsRmRecursive  bool
)

func init() {
	rootCmd.AddCommand(fsCmd)
	fsCmd.AddCommand(fsPutCmd)
	fsCmd.AddCommand(fsCatCmd)
	fsCmd.AddCommand(fsStatCmd)
	fsCmd.AddCommand(fsRmCmd)
	fsCmd.AddCommand(fsMkdirsCmd)

	fsPutCmd.Flags().BoolVar(&fsPutOverwrite, "overwrite", false, "Replace the remote file if it exists")
	fsStatCmd.Flags().BoolVar(&fsStatJSON, "json", false, "Output as JSON")
	fsRmCmd.Flags().BoolVar(&fsRmRecursive, "recursive", false, "Delete directories and their contents")
}

func runFsPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	localPath, remotePath := args[0], args[1]

	info, err := os.Stat(localPath)
	if err != nil {
		observability.CLILogger.Error("Cannot read local file",
			zap.String("path", localPath),
			zap.Error(err))
		if errors.Is(err, fs.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Local file not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Cannot read local file", err)
	}
	if info.IsDir() {
		return exitError(foundry.ExitInvalidArgument, "Cannot upload a directory",
			fmt.Errorf("%s is a directory", localPath))
	}
	if info.Size() > filestore.MaxPutBytes {
		return exitError(foundry.ExitInvalidArgument, "File too large for a single upload",
			fmt.Errorf("%s is %d bytes, limit is %d", localPath, info.Size(), filestore.MaxPutBytes))
	}

	f, err := os.Open(localPath)
	if err != nil {
		observability.CLILogger.Error("Cannot read local file",
			zap.String("path", localPath),
			zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Cannot read local file", err)
	}
	defer func() { _ = f.Close() }()

	svc, err := newFileStoreService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if err := svc.Put(ctx, remotePath, f, filestore.PutOptions{Overwrite: fsPutOverwrite}); err != nil {
		observability.CLILogger.Error("Upload failed",
			zap.String("local", localPath),
			zap.String("remote", remotePath),
			zap.Error(err))
		return apiExitError(ctx, "Upload", err)
	}

	observability.CLILogger.Info("File uploaded",
		zap.String("remote", remotePath),
		zap.Int64("bytes", info.Size()))
	_, _ = fmt.Fprintf(os.Stdout, "Uploaded %s to %s (%d bytes)\n", localPath, remotePath, info.Size())
	return nil
}

func runFsCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newFileStoreService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	rc := svc.Open(ctx, args[0])
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(os.Stdout, rc); err != nil {
		observability.CLILogger.Error("Read failed",
			zap.String("path", args[0]),
			zap.Error(err))
		return apiExitError(ctx, "Read", err)
	}
	return nil
}

func runFsStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newFileStoreService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	entry, err := svc.Stat(ctx, args[0])
	if err != nil {
		observability.CLILogger.Error("Stat failed",
			zap.String("path", args[0]),
			zap.Error(err))
		return apiExitError(ctx, "Stat", err)
	}

	if fsStatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}

	_, _ = fmt.Fprintf(os.Stdout, "path=%s\n", entry.Path)
	_, _ = fmt.Fprintf(os.Stdout, "is_dir=%t\n", entry.IsDir)
	_, _ = fmt.Fprintf(os.Stdout, "size=%d\n", entry.Size)
	if entry.ModificationTime != 0 {
		_, _ = fmt.Fprintf(os.Stdout, "modified_at=%s\n", formatEpochMillis(entry.ModificationTime))
	}
	return nil
}

func runFsRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newFileStoreService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if err := svc.Delete(ctx, args[0], fsRmRecursive); err != nil {
		observability.CLILogger.Error("Delete failed",
			zap.String("path", args[0]),
			zap.Error(err))
		return apiExitError(ctx, "Delete", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
	return nil
}

func runFsMkdirs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newFileStoreService()
	if err != nil {
		observability.CLILogger.Error("Credential resolution failed", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "No usable workspace credentials", err)
	}

	if err := svc.Mkdirs(ctx, args[0]); err != nil {
		observability.CLILogger.Error("Mkdirs failed",
			zap.String("path", args[0]),
			zap.Error(err))
		return apiExitError(ctx, "Mkdirs", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Created %s\n", args[0])
	return nil
}
