package jobs

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// RunState is the lifecycle state of a run.
type RunState string

// Run states as the platform reports them. Every run starts queued.
const (
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// Terminal reports whether the state is final. Non-terminal runs are still
// waiting for capacity or executing.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// Run is one execution of a job. Run history is append-only from the
// client's perspective: runs are never deleted here.
type Run struct {
	RunID int64 `json:"run_id"`
	JobID int64 `json:"job_id"`

	State RunState `json:"state"`

	// RunPageURL links to the platform UI page for the run.
	RunPageURL string `json:"run_page_url,omitempty"`

	// StartTime and EndTime are epoch milliseconds, zero until reached.
	StartTime int64 `json:"start_time,omitempty"`
	EndTime   int64 `json:"end_time,omitempty"`
}

// RunNowOptions controls a single run trigger.
type RunNowOptions struct {
	// Parameters override the task's base parameters for this run only.
	Parameters map[string]string

	// IdempotencyToken makes the trigger safe for the caller to repeat:
	// the platform returns the run it already started for a token it has
	// seen instead of starting another. Empty sends no token. The client
	// itself never retries either way.
	IdempotencyToken string
}

type runNowRequest struct {
	JobID            int64             `json:"job_id"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	IdempotencyToken string            `json:"idempotency_token,omitempty"`
}

type runNowResponse struct {
	RunID int64 `json:"run_id"`
}

// RunNow triggers a run and returns immediately with the run in the queued
// state. It never waits for completion; poll GetRun to observe progress.
func (s *Service) RunNow(ctx context.Context, jobID int64, opts RunNowOptions) (*Run, error) {
	req := runNowRequest{
		JobID:            jobID,
		Parameters:       opts.Parameters,
		IdempotencyToken: opts.IdempotencyToken,
	}

	var resp runNowResponse
	if err := s.client.Post(ctx, pathRunNow, req, &resp); err != nil {
		return nil, err
	}

	s.logger.Debug("triggered run",
		zap.Int64("job_id", jobID),
		zap.Int64("run_id", resp.RunID))

	return &Run{
		RunID: resp.RunID,
		JobID: jobID,
		State: RunStateQueued,
	}, nil
}

// RunNowByName resolves a job name and triggers a run. Zero matches report
// platform.ErrNotFound; several matches report ErrAmbiguousName rather than
// running an arbitrary one of them. The id-based RunNow has no such branch.
func (s *Service) RunNowByName(ctx context.Context, name string, opts RunNowOptions) (*Run, error) {
	job, err := s.ResolveName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.RunNow(ctx, job.JobID, opts)
}

// GetRun fetches the current snapshot of a run. This is a single
// point-in-time read: callers that want to wait for completion poll it at
// their own interval.
func (s *Service) GetRun(ctx context.Context, runID int64) (*Run, error) {
	q := url.Values{}
	q.Set("run_id", strconv.FormatInt(runID, 10))

	var run Run
	if err := s.client.Get(ctx, pathRunsGet, q, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRunsOptions controls run listing.
type ListRunsOptions struct {
	// JobID restricts results to runs of one job. Zero lists runs of all
	// jobs in the workspace.
	JobID int64

	// PageSize is runs per request. Zero takes DefaultPageSize; values
	// over MaxPageSize are clamped.
	PageSize int

	// PageToken resumes listing from a previous page's NextPageToken.
	PageToken string
}

// RunsPage is one page of runs as the platform returned it.
type RunsPage struct {
	Runs          []Run  `json:"runs"`
	HasMore       bool   `json:"has_more"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// ListRunsPage fetches a single page of runs, most recent first.
func (s *Service) ListRunsPage(ctx context.Context, opts ListRunsOptions) (*RunsPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(clampPageSize(opts.PageSize)))
	if opts.JobID != 0 {
		q.Set("job_id", strconv.FormatInt(opts.JobID, 10))
	}
	if opts.PageToken != "" {
		q.Set("page_token", opts.PageToken)
	}

	var page RunsPage
	if err := s.client.Get(ctx, pathRunsList, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListRuns returns a lazy iterator over runs, fetching pages on demand.
func (s *Service) ListRuns(opts ListRunsOptions) *RunIterator {
	return &RunIterator{svc: s, opts: opts}
}

// ListRunsByName resolves a job name and lists its runs, with the same
// zero/ambiguous failure modes as RunNowByName.
func (s *Service) ListRunsByName(ctx context.Context, name string, opts ListRunsOptions) (*RunIterator, error) {
	job, err := s.ResolveName(ctx, name)
	if err != nil {
		return nil, err
	}
	opts.JobID = job.JobID
	return s.ListRuns(opts), nil
}

// RunIterator walks runs across pages. Not safe for concurrent use.
type RunIterator struct {
	svc     *Service
	opts    ListRunsOptions
	buf     []Run
	idx     int
	nextTok string
	done    bool
	err     error
	current Run
}

// Next advances to the next run, fetching pages as needed.
func (it *RunIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for {
		if it.idx < len(it.buf) {
			it.current = it.buf[it.idx]
			it.idx++
			return true
		}

		if it.done {
			return false
		}

		page, err := it.svc.ListRunsPage(ctx, ListRunsOptions{
			JobID:     it.opts.JobID,
			PageSize:  it.opts.PageSize,
			PageToken: it.nextTok,
		})
		if err != nil {
			it.err = err
			return false
		}

		it.buf = page.Runs
		it.idx = 0
		it.nextTok = page.NextPageToken
		if !page.HasMore || page.NextPageToken == "" {
			it.done = true
		}
	}
}

// Run returns the run Next advanced to.
func (it *RunIterator) Run() Run {
	return it.current
}

// Err returns the first error encountered while iterating.
func (it *RunIterator) Err() error {
	return it.err
}
