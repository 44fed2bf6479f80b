// Package mirror implements a bounded streaming pipeline for mirroring
// script trees into the platform workspace.
//
// The mirror coordinates three stages:
//   - Lister: Fetches entry listings from the source (parallelized by prefix)
//   - Matcher: Filters entries by glob patterns and metadata filters
//   - Importer: Uploads matched scripts as workspace objects (parallelized)
//
// Bounded channels between stages provide backpressure so a large course
// tree never has to fit in memory.
package mirror

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/3leaps/gostratus/pkg/match"
	"github.com/3leaps/gostratus/pkg/output"
	"github.com/3leaps/gostratus/pkg/platform"
	"github.com/3leaps/gostratus/pkg/source"
	"github.com/3leaps/gostratus/pkg/workspace"
)

// Importer is the workspace surface the mirror needs. *workspace.Service
// implements it.
type Importer interface {
	ImportBytes(ctx context.Context, content []byte, workspacePath string, opts workspace.ImportOptions) (*workspace.Object, error)
	Mkdirs(ctx context.Context, workspacePath string) error
}

// Config configures mirror behavior.
type Config struct {
	// Concurrency is the number of parallel operations per stage.
	// Listing is parallelized by prefix and imports by entry, each
	// bounded by this value.
	// Default: 4
	Concurrency int

	// ChannelBuffer is the size of bounded channels between pipeline stages.
	// Larger buffers reduce blocking but increase memory usage.
	// Default: 1000
	ChannelBuffer int

	// RateLimit is the maximum requests per second across source listing
	// and workspace calls. Zero means unlimited.
	// Default: 0
	RateLimit float64

	// ProgressEvery controls how often progress records are emitted.
	// A progress record is written every N imported scripts.
	// Default: 100
	ProgressEvery int

	// Overwrite replaces existing workspace objects. When false, a
	// conflicting object is recorded as a skip and left untouched.
	Overwrite bool

	// DryRun plans paths and emits skip records without touching the
	// workspace.
	DryRun bool
}

// DefaultConfig returns the default mirror configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		ChannelBuffer: 1000,
		RateLimit:     0,
		ProgressEvery: 100,
	}
}

// Summary contains aggregate statistics from a completed sync.
type Summary struct {
	// EntriesListed is the total number of entries seen from the source.
	EntriesListed int64

	// EntriesMatched is the number of entries that passed patterns and filters.
	EntriesMatched int64

	// Filtered is the number of entries that matched a glob but failed a
	// metadata filter.
	Filtered int64

	// Imported is the number of scripts written into the workspace.
	Imported int64

	// Skipped is the number of matched entries deliberately not imported.
	Skipped int64

	// Failed is the number of matched entries whose import failed.
	Failed int64

	// BytesTotal is the cumulative size of imported scripts in bytes.
	BytesTotal int64

	// Duration is the total time spent syncing.
	Duration time.Duration

	// Errors is the count of non-fatal errors encountered.
	Errors int64

	// Prefixes lists the source prefixes that were listed.
	Prefixes []string
}

// Mirror executes one sync of a script tree into the workspace.
//
// Mirror is safe for single use only. Create a new Mirror for each sync.
type Mirror struct {
	source       source.Source
	matcher      *match.Matcher
	filter       *match.CompositeFilter // Optional metadata filter
	ws           Importer
	writer       output.Writer
	remotePrefix string
	jobID        string
	config       Config

	prefixes []string

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	// Parent directories already ensured this run
	dirs dirSet

	// Atomic counters for stats
	entriesListed  atomic.Int64
	entriesMatched atomic.Int64
	filtered       atomic.Int64
	imported       atomic.Int64
	skipped        atomic.Int64
	failed         atomic.Int64
	bytesTotal     atomic.Int64
	errorCount     atomic.Int64
}

// New creates a new mirror.
//
// Parameters:
//   - src: Source for listing and reading script entries
//   - m: Matcher for selecting entries by pattern
//   - ws: Workspace surface for directory creation and imports
//   - w: Writer for JSONL output
//   - remotePrefix: Workspace directory the tree is mirrored under
//   - jobID: Correlation ID for this sync run
//   - cfg: Mirror configuration (use DefaultConfig() as base)
//
// Use WithFilter() to add metadata filters after creation.
func New(src source.Source, m *match.Matcher, ws Importer, w output.Writer, remotePrefix, jobID string, cfg Config) *Mirror {
	// Apply defaults for zero values
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = DefaultConfig().ChannelBuffer
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultConfig().ProgressEvery
	}

	mir := &Mirror{
		source:       src,
		matcher:      m,
		ws:           ws,
		writer:       w,
		remotePrefix: strings.TrimRight(remotePrefix, "/"),
		jobID:        jobID,
		config:       cfg,
	}
	mir.dirs.entries = make(map[string]*dirEntry)

	// Set up rate limiter if configured
	if cfg.RateLimit > 0 {
		mir.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return mir
}

// WithFilter sets an optional metadata filter for the mirror.
// Filters are applied after glob pattern matching with AND semantics.
// Returns the mirror for method chaining.
func (m *Mirror) WithFilter(f *match.CompositeFilter) *Mirror {
	m.filter = f
	return m
}

// WithPrefixes overrides the prefixes to list.
//
// When set, the mirror uses these prefixes instead of matcher-derived prefixes.
func (m *Mirror) WithPrefixes(prefixes []string) *Mirror {
	m.prefixes = prefixes
	return m
}

// Run executes the sync and returns summary statistics.
//
// Run blocks until the sync completes, is cancelled via context, or
// encounters a fatal error. Non-fatal errors (e.g., one script failing
// to import) are written as error records and counted in the summary.
//
// The sync can be cancelled by cancelling the context. Cancellation is
// graceful: in-flight operations complete, channels are drained, and a
// partial summary is returned.
func (m *Mirror) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()

	// Get prefixes to list
	prefixes := m.prefixes
	if prefixes == nil {
		prefixes = m.matcher.Prefixes()
	}
	if len(prefixes) == 0 {
		// No prefixes means match everything - use empty prefix
		prefixes = []string{""}
	}

	// Write initial progress
	if err := m.writeProgress(ctx, output.PhaseStarting, ""); err != nil {
		return nil, err
	}

	// The sync root must exist before any worker plans paths under it.
	// Failing here is fatal: nothing can be imported.
	if !m.config.DryRun {
		if err := m.ensureDir(ctx, m.remotePrefix); err != nil {
			return nil, err
		}
	}

	// Run the pipeline
	if err := m.runPipeline(ctx, prefixes); err != nil {
		// Check if it's a context error (cancellation/timeout)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Return partial summary on cancellation
			return m.buildSummary(prefixes, time.Since(startTime)), err
		}
		return nil, err
	}

	summary := m.buildSummary(prefixes, time.Since(startTime))

	// Write final summary record
	if err := m.writeSummary(ctx, summary); err != nil {
		return summary, err
	}

	return summary, nil
}

// buildSummary creates a Summary from the atomic counters.
func (m *Mirror) buildSummary(prefixes []string, duration time.Duration) *Summary {
	return &Summary{
		EntriesListed:  m.entriesListed.Load(),
		EntriesMatched: m.entriesMatched.Load(),
		Filtered:       m.filtered.Load(),
		Imported:       m.imported.Load(),
		Skipped:        m.skipped.Load(),
		Failed:         m.failed.Load(),
		BytesTotal:     m.bytesTotal.Load(),
		Duration:       duration,
		Errors:         m.errorCount.Load(),
		Prefixes:       prefixes,
	}
}

// writeProgress emits a progress record.
func (m *Mirror) writeProgress(ctx context.Context, phase, prefix string) error {
	prog := &output.ProgressRecord{
		Phase:          phase,
		EntriesFound:   m.entriesListed.Load(),
		EntriesMatched: m.entriesMatched.Load(),
		Imported:       m.imported.Load(),
		BytesTotal:     m.bytesTotal.Load(),
		Prefix:         prefix,
	}
	return m.writer.WriteProgress(ctx, prog)
}

// writeSummary emits a summary record.
func (m *Mirror) writeSummary(ctx context.Context, summary *Summary) error {
	sum := &output.SummaryRecord{
		EntriesFound:   summary.EntriesListed,
		EntriesMatched: summary.EntriesMatched,
		Imported:       summary.Imported,
		Skipped:        summary.Skipped,
		Failed:         summary.Failed,
		BytesTotal:     summary.BytesTotal,
		Duration:       summary.Duration,
		DurationHuman:  summary.Duration.Round(time.Millisecond).String(),
		Errors:         summary.Errors,
		Prefixes:       summary.Prefixes,
	}
	return m.writer.WriteSummary(ctx, sum)
}

// writeError emits an error record and increments the error counter.
func (m *Mirror) writeError(ctx context.Context, code, message, key, prefix string) {
	m.errorCount.Add(1)

	errRec := &output.ErrorRecord{
		Code:    code,
		Message: message,
		Key:     key,
		Prefix:  prefix,
	}

	// Best effort - don't fail the sync if we can't write the error
	_ = m.writer.WriteError(ctx, errRec)
}

// writeSkip emits a skip record and increments the skip counter.
func (m *Mirror) writeSkip(ctx context.Context, key, wsPath, reason, detail string) {
	m.skipped.Add(1)

	skip := &output.SkipRecord{
		Key:    key,
		Path:   wsPath,
		Reason: reason,
		Detail: detail,
	}

	_ = m.writer.WriteSkip(ctx, skip)
}

// waitForRateLimit blocks until the rate limiter allows a request.
// Returns immediately if rate limiting is disabled.
func (m *Mirror) waitForRateLimit(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

// entryItem represents a source entry flowing through the pipeline.
type entryItem struct {
	entry  source.Entry
	prefix string // The prefix this entry was listed under
}

// runPipeline orchestrates the lister → matcher → importer pipeline.
func (m *Mirror) runPipeline(ctx context.Context, prefixes []string) error {
	// Create a cancellable context for the pipeline
	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Channels between stages
	listCh := make(chan entryItem, m.config.ChannelBuffer)
	matchCh := make(chan entryItem, m.config.ChannelBuffer)

	// Error channel for fatal errors from any stage
	errCh := make(chan error, 1)

	var wg sync.WaitGroup

	// Start lister goroutines (one per prefix, limited by concurrency)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(listCh)
		if err := m.runListers(pipeCtx, prefixes, listCh); err != nil {
			select {
			case errCh <- err:
			default:
			}
			cancel()
		}
	}()

	// Start matcher goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(matchCh)
		m.runMatcher(pipeCtx, listCh, matchCh)
	}()

	// Start importer workers
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.runImporters(pipeCtx, matchCh); err != nil {
			select {
			case errCh <- err:
			default:
			}
			cancel()
		}
	}()

	// Wait for all goroutines to complete
	wg.Wait()

	// Check for fatal errors
	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// runListers runs listing operations for all prefixes with bounded concurrency.
func (m *Mirror) runListers(ctx context.Context, prefixes []string, out chan<- entryItem) error {
	// Use a semaphore to limit concurrency
	sem := make(chan struct{}, m.config.Concurrency)

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, prefix := range prefixes {
		// Acquire semaphore or bail on cancellation.
		// We must only release the semaphore if we successfully acquired it,
		// so we use a select that either acquires or returns early.
		select {
		case <-ctx.Done():
			// Context cancelled before we could acquire - exit the loop
			// (break here only exits select, so we rely on the ctx.Err check below)
		case sem <- struct{}{}:
			// Successfully acquired semaphore - proceed to launch goroutine
		}

		// Check if we exited due to cancellation
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore we acquired above

			if err := m.listPrefix(ctx, p, out); err != nil {
				// Capture first error
				errOnce.Do(func() {
					firstErr = err
				})
			}
		}(prefix)
	}

	wg.Wait()
	return firstErr
}

// listPrefix lists all entries with the given prefix and sends them to the channel.
func (m *Mirror) listPrefix(ctx context.Context, prefix string, out chan<- entryItem) error {
	var continuationToken string

	for {
		// Check for cancellation
		if err := ctx.Err(); err != nil {
			return err
		}

		// Wait for rate limiter
		if err := m.waitForRateLimit(ctx); err != nil {
			return err
		}

		// List a page of entries
		result, err := m.source.List(ctx, source.ListOptions{
			Prefix:            prefix,
			ContinuationToken: continuationToken,
		})
		if err != nil {
			// Classify the error
			if source.IsAccessDenied(err) || source.IsInvalidCredentials(err) {
				m.writeError(ctx, output.ErrCodeAccessDenied, err.Error(), "", prefix)
				return nil // Non-fatal: skip this prefix
			}
			if source.IsNotFound(err) || source.IsBucketNotFound(err) {
				m.writeError(ctx, output.ErrCodeNotFound, err.Error(), "", prefix)
				return nil // Non-fatal: skip this prefix
			}
			if source.IsThrottled(err) {
				m.writeError(ctx, output.ErrCodeThrottled, err.Error(), "", prefix)
				return nil
			}
			if source.IsUnavailable(err) {
				m.writeError(ctx, output.ErrCodeUnavailable, err.Error(), "", prefix)
				// Treat as non-fatal: mark run partial and continue other prefixes.
				return nil
			}
			// Fatal error
			return err
		}

		// Send entries to the matcher channel
		for _, e := range result.Entries {
			m.entriesListed.Add(1)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- entryItem{entry: e, prefix: prefix}:
			}
		}

		// Check for more pages
		if !result.IsTruncated || result.ContinuationToken == "" {
			break
		}
		continuationToken = result.ContinuationToken
	}

	return nil
}

// runMatcher filters entries by glob patterns and optional metadata filters,
// then forwards matches to the importer channel.
func (m *Mirror) runMatcher(ctx context.Context, in <-chan entryItem, out chan<- entryItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return // Input channel closed
			}

			// Apply glob pattern matching first
			if !m.matcher.Match(item.entry.Key) {
				continue
			}

			// Apply optional metadata filters (size, date, regex)
			if m.filter != nil && !m.filter.Match(&item.entry) {
				m.filtered.Add(1)
				continue
			}

			m.entriesMatched.Add(1)

			select {
			case <-ctx.Done():
				return
			case out <- item:
			}
		}
	}
}

// runImporters drains the match channel with a pool of import workers.
//
// Import failures for individual entries are recorded and counted, not
// fatal. Report writer failures and context cancellation stop the run.
func (m *Mirror) runImporters(ctx context.Context, in <-chan entryItem) error {
	// A fatal error in one worker must stop the others without waiting
	// for them to drain the channel.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i := 0; i < m.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					errOnce.Do(func() { firstErr = workerCtx.Err() })
					return
				case item, ok := <-in:
					if !ok {
						return
					}
					if err := m.importEntry(workerCtx, item); err != nil {
						errOnce.Do(func() { firstErr = err })
						cancelWorkers()
						return
					}
				}
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return m.writeProgress(ctx, output.PhaseComplete, "")
}

// importEntry mirrors one matched entry into the workspace.
//
// The returned error is fatal for the whole run; per-entry problems are
// recorded via skip or error records and return nil.
func (m *Mirror) importEntry(ctx context.Context, item entryItem) error {
	key := item.entry.Key

	lang, err := workspace.InferLanguage(key)
	if err != nil {
		m.writeSkip(ctx, key, "", output.SkipReasonUnsupported, err.Error())
		return nil
	}

	wsPath := m.planPath(key)

	if m.config.DryRun {
		m.writeSkip(ctx, key, wsPath, output.SkipReasonDryRun, "")
		return nil
	}

	if err := m.ensureDir(ctx, path.Dir(wsPath)); err != nil {
		if isFatal(err) {
			return err
		}
		m.failed.Add(1)
		m.writeError(ctx, classifyCode(err), err.Error(), key, item.prefix)
		return nil
	}

	content, err := m.readEntry(ctx, key)
	if err != nil {
		if isFatal(err) {
			return err
		}
		m.failed.Add(1)
		m.writeError(ctx, classifyCode(err), err.Error(), key, item.prefix)
		return nil
	}

	if err := m.waitForRateLimit(ctx); err != nil {
		return err
	}

	obj, err := m.ws.ImportBytes(ctx, content, wsPath, workspace.ImportOptions{
		Language:  lang,
		Overwrite: m.config.Overwrite,
	})
	if err != nil {
		if platform.IsConflict(err) {
			m.writeSkip(ctx, key, wsPath, output.SkipReasonExists, "")
			return nil
		}
		if isFatal(err) {
			return err
		}
		m.failed.Add(1)
		m.writeError(ctx, classifyCode(err), err.Error(), key, item.prefix)
		return nil
	}

	n := m.imported.Add(1)
	m.bytesTotal.Add(int64(len(content)))

	imp := &output.ImportRecord{
		Key:       key,
		Path:      obj.Path,
		Language:  string(obj.Language),
		Format:    "SOURCE",
		Size:      int64(len(content)),
		Overwrite: m.config.Overwrite,
	}
	if err := m.writer.WriteImport(ctx, imp); err != nil {
		return err
	}

	// Emit progress periodically
	if m.config.ProgressEvery > 0 && n%int64(m.config.ProgressEvery) == 0 {
		if err := m.writeProgress(ctx, output.PhaseImporting, item.prefix); err != nil {
			return err
		}
	}

	return nil
}

// readEntry opens a source entry and reads all its content.
func (m *Mirror) readEntry(ctx context.Context, key string) ([]byte, error) {
	if err := m.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	rc, _, err := m.source.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// planPath maps a source key onto its workspace object path. The import
// endpoint names notebooks without the source extension, so setup.R under
// /Users/t/labs becomes /Users/t/labs/setup.
func (m *Mirror) planPath(key string) string {
	ext := path.Ext(key)
	stem := key[:len(key)-len(ext)]
	return m.remotePrefix + "/" + stem
}

// dirSet tracks workspace directories already ensured during this run,
// so each unique parent costs one mkdirs call no matter how many workers
// import into it.
type dirSet struct {
	mu      sync.Mutex
	entries map[string]*dirEntry
}

type dirEntry struct {
	once sync.Once
	err  error
}

// ensureDir creates a workspace directory once per run. Concurrent callers
// for the same directory share a single mkdirs call and its outcome.
func (m *Mirror) ensureDir(ctx context.Context, dir string) error {
	m.dirs.mu.Lock()
	e, ok := m.dirs.entries[dir]
	if !ok {
		e = &dirEntry{}
		m.dirs.entries[dir] = e
	}
	m.dirs.mu.Unlock()

	e.once.Do(func() {
		if err := m.waitForRateLimit(ctx); err != nil {
			e.err = err
			return
		}
		e.err = m.ws.Mkdirs(ctx, dir)
	})
	return e.err
}

// isFatal reports whether an error must stop the whole run rather than
// being recorded against a single entry.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// classifyCode maps source and platform errors onto report error codes.
func classifyCode(err error) string {
	switch {
	case source.IsAccessDenied(err), source.IsInvalidCredentials(err), platform.IsPermissionDenied(err):
		return output.ErrCodeAccessDenied
	case source.IsNotFound(err), source.IsBucketNotFound(err), platform.IsNotFound(err):
		return output.ErrCodeNotFound
	case source.IsThrottled(err), platform.IsThrottled(err):
		return output.ErrCodeThrottled
	case source.IsUnavailable(err), platform.IsUnavailable(err), platform.IsTransient(err):
		return output.ErrCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	default:
		return output.ErrCodeInternal
	}
}
