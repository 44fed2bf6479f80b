// Package jobs manages platform jobs and their runs: create, reset, delete,
// paginated listing, and run triggering and inspection.
//
// Jobs are identified by the platform-assigned numeric id. Names carry no
// uniqueness guarantee, so every name-based entry point either resolves to
// exactly one job or fails loudly; nothing here silently picks one of
// several matches.
package jobs

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/3leaps/gostratus/pkg/platform"
)

// Jobs API endpoints.
const (
	pathCreate   = "/api/2.1/jobs/create"
	pathGet      = "/api/2.1/jobs/get"
	pathReset    = "/api/2.1/jobs/reset"
	pathDelete   = "/api/2.1/jobs/delete"
	pathList     = "/api/2.1/jobs/list"
	pathRunNow   = "/api/2.1/jobs/run-now"
	pathRunsGet  = "/api/2.1/jobs/runs/get"
	pathRunsList = "/api/2.1/jobs/runs/list"
)

// Job pairs the platform-assigned id with the stored settings.
type Job struct {
	// JobID is the authoritative identifier assigned at creation.
	JobID int64 `json:"job_id"`

	// Settings is the configuration as the platform stores it.
	Settings Settings `json:"settings"`

	// CreatedAt is epoch milliseconds of creation, when reported.
	CreatedAt int64 `json:"created_time,omitempty"`
}

// Service provides job and run operations over one platform client.
type Service struct {
	client *platform.Client
	logger *zap.Logger
}

// New builds a jobs Service. A nil logger disables logging.
func New(client *platform.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

type createResponse struct {
	JobID int64 `json:"job_id"`
}

// Create registers a new job and returns it with the platform-assigned id.
// Settings failing local validation report ErrInvalidSettings without a
// network call. Creating twice creates two jobs; names are not unique.
func (s *Service) Create(ctx context.Context, settings Settings) (*Job, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var resp createResponse
	if err := s.client.Post(ctx, pathCreate, settings, &resp); err != nil {
		return nil, err
	}

	s.logger.Debug("created job",
		zap.Int64("job_id", resp.JobID),
		zap.String("name", settings.Name))

	return &Job{JobID: resp.JobID, Settings: settings}, nil
}

// Get fetches a job and its stored settings. A missing id reports
// platform.ErrNotFound.
func (s *Service) Get(ctx context.Context, jobID int64) (*Job, error) {
	q := url.Values{}
	q.Set("job_id", strconv.FormatInt(jobID, 10))

	var job Job
	if err := s.client.Get(ctx, pathGet, q, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

type resetRequest struct {
	JobID       int64    `json:"job_id"`
	NewSettings Settings `json:"new_settings"`
}

// Reset replaces a job's settings wholesale. Fields absent from settings
// are cleared, not merged, so callers send the complete document. The job
// keeps its id and run history. A missing id reports platform.ErrNotFound.
func (s *Service) Reset(ctx context.Context, jobID int64, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	req := resetRequest{JobID: jobID, NewSettings: settings}
	if err := s.client.Post(ctx, pathReset, req, nil); err != nil {
		return err
	}

	s.logger.Debug("reset job settings", zap.Int64("job_id", jobID))
	return nil
}

type deleteRequest struct {
	JobID int64 `json:"job_id"`
}

// Delete removes a job. Deleting a job that does not exist succeeds, so
// cleanup scripts converge when run twice. This is the one deliberately
// idempotent operation in the package.
func (s *Service) Delete(ctx context.Context, jobID int64) error {
	err := s.client.Post(ctx, pathDelete, deleteRequest{JobID: jobID}, nil)
	if err != nil {
		if platform.IsNotFound(err) {
			s.logger.Debug("job already deleted", zap.Int64("job_id", jobID))
			return nil
		}
		return err
	}

	s.logger.Debug("deleted job", zap.Int64("job_id", jobID))
	return nil
}
