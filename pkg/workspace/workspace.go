// Package workspace imports source files into the platform workspace tree
// and inspects what is already there.
package workspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/3leaps/gostratus/pkg/platform"
)

// Workspace API endpoints.
const (
	pathImport    = "/api/2.0/workspace/import"
	pathGetStatus = "/api/2.0/workspace/get-status"
	pathMkdirs    = "/api/2.0/workspace/mkdirs"
)

// formatSource marks uploads as raw source files rather than archive exports.
const formatSource = "SOURCE"

// ObjectType classifies a workspace object.
type ObjectType string

// Object types reported by get-status.
const (
	ObjectNotebook  ObjectType = "NOTEBOOK"
	ObjectDirectory ObjectType = "DIRECTORY"
	ObjectFile      ObjectType = "FILE"
)

// Object describes one workspace object.
type Object struct {
	// Path is the canonical workspace path, as the platform stores it.
	Path string `json:"path"`

	// ObjectType classifies the object.
	ObjectType ObjectType `json:"object_type"`

	// ObjectID is the platform-assigned numeric id.
	ObjectID int64 `json:"object_id,omitempty"`

	// Language is set for notebooks.
	Language Language `json:"language,omitempty"`

	// ModifiedAt is epoch milliseconds of the last change, when reported.
	ModifiedAt int64 `json:"modified_at,omitempty"`
}

// ImportOptions controls a single import.
type ImportOptions struct {
	// Language overrides extension-based inference. Required for
	// ImportBytes, where there is no filename to infer from.
	Language Language

	// Overwrite replaces an existing object instead of failing. When
	// false, an existing object at the target path is a conflict and the
	// remote object is left untouched.
	Overwrite bool
}

// Service provides workspace operations over one platform client.
type Service struct {
	client *platform.Client
	logger *zap.Logger
}

// New builds a workspace Service. A nil logger disables logging.
func New(client *platform.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

type importRequest struct {
	Path      string   `json:"path"`
	Format    string   `json:"format"`
	Language  Language `json:"language,omitempty"`
	Content   string   `json:"content"`
	Overwrite bool     `json:"overwrite"`
}

type importResponse struct {
	Path string `json:"path"`
}

// Import uploads a local source file as a workspace object and returns the
// object at its canonical path.
//
// The language comes from opts.Language or, when unset, from the file
// extension; unknown extensions fail with ErrUnknownLanguage before any
// network call. With Overwrite false an existing object at workspacePath is
// a conflict (platform.ErrConflict) and nothing is modified.
func (s *Service) Import(ctx context.Context, localPath, workspacePath string, opts ImportOptions) (*Object, error) {
	if opts.Language == "" {
		lang, err := InferLanguage(localPath)
		if err != nil {
			return nil, err
		}
		opts.Language = lang
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", localPath, err)
	}

	return s.ImportBytes(ctx, data, workspacePath, opts)
}

// ImportBytes uploads source bytes as a workspace object. opts.Language is
// required; content is treated as opaque bytes and never inspected.
func (s *Service) ImportBytes(ctx context.Context, content []byte, workspacePath string, opts ImportOptions) (*Object, error) {
	if opts.Language == "" {
		return nil, fmt.Errorf("no language for workspace import of %s: %w", workspacePath, ErrUnknownLanguage)
	}

	if !opts.Overwrite {
		// Read-only precheck keeps the common failure deterministic. A
		// lost race still surfaces as the same sentinel from the import
		// call itself.
		existing, err := s.Stat(ctx, workspacePath)
		if err != nil && !platform.IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("workspace object %s already exists: %w", workspacePath, platform.ErrConflict)
		}
	}

	req := importRequest{
		Path:      workspacePath,
		Format:    formatSource,
		Language:  opts.Language,
		Content:   base64.StdEncoding.EncodeToString(content),
		Overwrite: opts.Overwrite,
	}

	var resp importResponse
	if err := s.client.Post(ctx, pathImport, req, &resp); err != nil {
		return nil, err
	}

	canonical := resp.Path
	if canonical == "" {
		canonical = workspacePath
	}

	s.logger.Debug("imported workspace object",
		zap.String("path", canonical),
		zap.String("language", string(opts.Language)),
		zap.Int("bytes", len(content)),
		zap.Bool("overwrite", opts.Overwrite))

	return &Object{
		Path:       canonical,
		ObjectType: ObjectNotebook,
		Language:   opts.Language,
	}, nil
}

// Stat fetches metadata for a workspace object. A missing object reports
// platform.ErrNotFound.
func (s *Service) Stat(ctx context.Context, workspacePath string) (*Object, error) {
	q := url.Values{}
	q.Set("path", workspacePath)

	var obj Object
	if err := s.client.Get(ctx, pathGetStatus, q, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// Mkdirs creates a workspace directory and any missing parents. Creating a
// directory that already exists is not an error.
func (s *Service) Mkdirs(ctx context.Context, workspacePath string) error {
	req := struct {
		Path string `json:"path"`
	}{Path: workspacePath}
	return s.client.Post(ctx, pathMkdirs, req, nil)
}
