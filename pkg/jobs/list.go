package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/gostratus/pkg/platform"
)

// Page size bounds for list endpoints. The platform rejects pages over the
// maximum, so requests are clamped instead of failing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ErrAmbiguousName indicates a job name matched more than one job. Names
// carry no uniqueness guarantee; use the job id to disambiguate.
var ErrAmbiguousName = errors.New("job name is ambiguous")

// ListOptions controls job listing.
type ListOptions struct {
	// Name filters results to jobs with exactly this name. The platform
	// has no server-side name filter, so matching happens client-side
	// while pages stream through.
	Name string

	// PageSize is jobs per request. Zero takes DefaultPageSize; values
	// over MaxPageSize are clamped.
	PageSize int

	// PageToken resumes listing from a previous page's NextPageToken.
	PageToken string
}

// ListPage is one unfiltered page of jobs as the platform returned it.
type ListPage struct {
	Jobs          []Job  `json:"jobs"`
	HasMore       bool   `json:"has_more"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// ListPage fetches a single page. Most callers want List, which walks pages
// lazily; this exists for callers doing their own page bookkeeping.
func (s *Service) ListPage(ctx context.Context, opts ListOptions) (*ListPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(clampPageSize(opts.PageSize)))
	if opts.PageToken != "" {
		q.Set("page_token", opts.PageToken)
	}

	var page ListPage
	if err := s.client.Get(ctx, pathList, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// List returns a lazy iterator over jobs. Pages are fetched on demand as
// the caller advances, so breaking out early stops remote traffic:
//
//	it := svc.List(jobs.ListOptions{Name: "nightly"})
//	for it.Next(ctx) {
//		job := it.Job()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
//
// With a Name filter, a second match logs a warning: duplicate names are
// legal upstream but usually a mistake worth surfacing.
func (s *Service) List(opts ListOptions) *Iterator {
	return &Iterator{svc: s, opts: opts}
}

// Iterator walks jobs across pages. Not safe for concurrent use.
type Iterator struct {
	svc     *Service
	opts    ListOptions
	buf     []Job
	idx     int
	nextTok string
	done    bool
	err     error
	current Job
	matches int
}

// Next advances to the next job, fetching pages as needed. It returns false
// when the listing is exhausted or an error occurred; check Err afterwards.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for {
		for it.idx < len(it.buf) {
			candidate := it.buf[it.idx]
			it.idx++

			if it.opts.Name != "" && candidate.Settings.Name != it.opts.Name {
				continue
			}

			it.current = candidate
			it.matches++
			if it.opts.Name != "" && it.matches == 2 {
				it.svc.logger.Warn("job name matches multiple jobs",
					zap.String("name", it.opts.Name))
			}
			return true
		}

		if it.done {
			return false
		}

		page, err := it.svc.ListPage(ctx, ListOptions{
			PageSize:  it.opts.PageSize,
			PageToken: it.nextTok,
		})
		if err != nil {
			it.err = err
			return false
		}

		it.buf = page.Jobs
		it.idx = 0
		it.nextTok = page.NextPageToken
		if !page.HasMore || page.NextPageToken == "" {
			it.done = true
		}
	}
}

// Job returns the job Next advanced to.
func (it *Iterator) Job() Job {
	return it.current
}

// Err returns the first error encountered while iterating.
func (it *Iterator) Err() error {
	return it.err
}

// ResolveName finds the single job with the given name. Zero matches report
// platform.ErrNotFound and more than one reports ErrAmbiguousName; there is
// no silent pick. Iteration stops at the second match, so resolution does
// not walk the full job list on ambiguity.
func (s *Service) ResolveName(ctx context.Context, name string) (*Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("job name must not be empty")
	}

	it := s.List(ListOptions{Name: name})

	var matches []Job
	for it.Next(ctx) {
		matches = append(matches, it.Job())
		if len(matches) > 1 {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no job named %q: %w", name, platform.ErrNotFound)
	case 1:
		job := matches[0]
		return &job, nil
	default:
		return nil, fmt.Errorf("job name %q matches more than one job, use a job id: %w", name, ErrAmbiguousName)
	}
}

// clampPageSize applies the default and the platform maximum.
func clampPageSize(requested int) int {
	if requested <= 0 {
		requested = DefaultPageSize
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}
