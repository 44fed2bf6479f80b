// Package output provides JSONL output for workspace sync results.
//
// Output is structured as typed record envelopes containing imports,
// skips, errors, and progress updates. Each line is a self-contained
// JSON object that can be parsed independently, so reports can be
// streamed to a file or piped into jq while a sync is running.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: gostratus.<type>.v<version>
const (
	// TypeImport identifies records for scripts imported into the workspace.
	TypeImport = "gostratus.import.v1"

	// TypeSkip identifies records for entries that were deliberately not imported.
	TypeSkip = "gostratus.skip.v1"

	// TypeError identifies error records.
	TypeError = "gostratus.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "gostratus.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "gostratus.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "gostratus.import.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this sync run.
	JobID string `json:"job_id"`

	// Source identifies the source scheme (e.g., "local", "s3").
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ImportRecord is the data payload for imported scripts.
//
// One record is emitted per source entry that was written into the
// workspace.
type ImportRecord struct {
	// Key is the source entry key relative to the sync root.
	Key string `json:"key"`

	// Path is the workspace object path the script was imported to.
	Path string `json:"path"`

	// Language is the workspace language inferred from the key
	// (e.g., "R", "PYTHON", "SQL", "SCALA").
	Language string `json:"language"`

	// Format is the import format used (e.g., "SOURCE").
	Format string `json:"format"`

	// Size is the script size in bytes.
	Size int64 `json:"size"`

	// Overwrite reports whether the import was allowed to replace an
	// existing workspace object.
	Overwrite bool `json:"overwrite,omitempty"`
}

// SkipRecord is the data payload for entries deliberately not imported.
//
// Skips are expected outcomes, not failures: a conflicting workspace
// object without overwrite, an extension the platform cannot ingest,
// or a dry run.
type SkipRecord struct {
	// Key is the source entry key relative to the sync root.
	Key string `json:"key"`

	// Path is the workspace object path that would have been written,
	// if one was computed before the skip decision.
	Path string `json:"path,omitempty"`

	// Reason is a machine-readable skip reason.
	Reason string `json:"reason"`

	// Detail is an optional human-readable explanation.
	Detail string `json:"detail,omitempty"`
}

// Skip reasons for SkipRecord.
const (
	// SkipReasonExists indicates the workspace object already exists
	// and overwrite was not requested.
	SkipReasonExists = "exists"

	// SkipReasonUnsupported indicates the entry extension maps to no
	// importable workspace language.
	SkipReasonUnsupported = "unsupported_language"

	// SkipReasonDryRun indicates the sync ran in dry-run mode.
	SkipReasonDryRun = "dry_run"
)

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire sync,
// allowing partial results when some operations fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Key is the source entry key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Prefix is the prefix being listed when the error occurred.
	Prefix string `json:"prefix,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the entry or source root was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeThrottled indicates rate limiting by the source or platform.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeUnavailable indicates the source or platform could not be reached.
	ErrCodeUnavailable = "UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates.
//
// Progress records are emitted periodically during syncs to provide
// visibility into long-running operations.
type ProgressRecord struct {
	// Phase indicates the current sync phase.
	Phase string `json:"phase"`

	// EntriesFound is the total number of source entries seen so far.
	EntriesFound int64 `json:"entries_found"`

	// EntriesMatched is the number of entries matching patterns.
	EntriesMatched int64 `json:"entries_matched"`

	// Imported is the number of scripts imported so far.
	Imported int64 `json:"imported"`

	// BytesTotal is the cumulative size of imported scripts in bytes.
	BytesTotal int64 `json:"bytes_total"`

	// Prefix is the current prefix being listed, if applicable.
	Prefix string `json:"prefix,omitempty"`
}

// Progress phase constants.
const (
	// PhaseStarting indicates the sync is initializing.
	PhaseStarting = "starting"

	// PhaseListing indicates source entries are being listed.
	PhaseListing = "listing"

	// PhaseImporting indicates scripts are being imported.
	PhaseImporting = "importing"

	// PhaseComplete indicates the sync has finished.
	PhaseComplete = "complete"
)

// SummaryRecord is the data payload for final summaries.
//
// A summary record is emitted at the end of a sync with aggregate
// statistics.
type SummaryRecord struct {
	// EntriesFound is the total number of source entries seen.
	EntriesFound int64 `json:"entries_found"`

	// EntriesMatched is the number of entries matching patterns.
	EntriesMatched int64 `json:"entries_matched"`

	// Imported is the number of scripts imported.
	Imported int64 `json:"imported"`

	// Skipped is the number of entries deliberately not imported.
	Skipped int64 `json:"skipped"`

	// Failed is the number of entries whose import failed.
	Failed int64 `json:"failed"`

	// BytesTotal is the cumulative size of imported scripts in bytes.
	BytesTotal int64 `json:"bytes_total"`

	// Duration is the total sync duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`

	// Prefixes lists the source prefixes that were listed.
	Prefixes []string `json:"prefixes,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
