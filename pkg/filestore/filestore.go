// Package filestore reads and writes the platform's mounted file store,
// used for helper files and init scripts that live outside the workspace
// object tree.
package filestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/zap"

	"github.com/3leaps/gostratus/pkg/platform"
)

// File store API endpoints.
const (
	pathPut       = "/api/2.0/fs/put"
	pathRead      = "/api/2.0/fs/read"
	pathGetStatus = "/api/2.0/fs/get-status"
	pathDelete    = "/api/2.0/fs/delete"
	pathMkdirs    = "/api/2.0/fs/mkdirs"
)

// MaxPutBytes is the platform's limit for a single-request upload. Put is
// meant for helper files and init scripts, not bulk data.
const MaxPutBytes = 1 << 20

// readChunkBytes is the slice length requested per read. The platform may
// return fewer bytes; only a zero-byte response means end of file.
const readChunkBytes = 1 << 20

// Entry describes one file store path.
type Entry struct {
	Path             string `json:"path"`
	IsDir            bool   `json:"is_dir"`
	Size             int64  `json:"file_size"`
	ModificationTime int64  `json:"modification_time,omitempty"`
}

// PutOptions controls a single upload.
type PutOptions struct {
	// Overwrite replaces an existing file instead of failing with
	// platform.ErrConflict.
	Overwrite bool
}

// Service provides file store operations over one platform client.
type Service struct {
	client *platform.Client
	logger *zap.Logger
}

// New builds a file store Service. A nil logger disables logging.
func New(client *platform.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

type putRequest struct {
	Path      string `json:"path"`
	Contents  string `json:"contents"`
	Overwrite bool   `json:"overwrite"`
}

// Put uploads contents to path in a single request. Payloads over
// MaxPutBytes are rejected locally; an existing file without Overwrite
// reports platform.ErrConflict.
func (s *Service) Put(ctx context.Context, path string, contents io.Reader, opts PutOptions) error {
	data, err := io.ReadAll(io.LimitReader(contents, MaxPutBytes+1))
	if err != nil {
		return fmt.Errorf("read contents for %s: %w", path, err)
	}
	if len(data) > MaxPutBytes {
		return fmt.Errorf("put %s: payload exceeds the %d byte single-request limit", path, MaxPutBytes)
	}

	req := putRequest{
		Path:      path,
		Contents:  base64.StdEncoding.EncodeToString(data),
		Overwrite: opts.Overwrite,
	}
	if err := s.client.Post(ctx, pathPut, req, nil); err != nil {
		return err
	}

	s.logger.Debug("wrote file store path",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
		zap.Bool("overwrite", opts.Overwrite))
	return nil
}

type readResponse struct {
	BytesRead int64  `json:"bytes_read"`
	Data      string `json:"data"`
}

// Open returns a streaming reader over the file at path. Chunks are fetched
// on demand so memory stays constant for large files. The reader is bound
// to ctx: cancelling it fails subsequent reads.
func (s *Service) Open(ctx context.Context, path string) io.ReadCloser {
	return &chunkReader{svc: s, ctx: ctx, path: path}
}

// chunkReader pages through a file via offset/length reads. A response
// with bytes_read == 0 marks end of file; short reads before that just
// advance the offset.
type chunkReader struct {
	svc    *Service
	ctx    context.Context
	path   string
	offset int64
	buf    []byte
	eof    bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.eof {
			return 0, io.EOF
		}

		q := url.Values{}
		q.Set("path", r.path)
		q.Set("offset", fmt.Sprintf("%d", r.offset))
		q.Set("length", fmt.Sprintf("%d", readChunkBytes))

		var resp readResponse
		if err := r.svc.client.Get(r.ctx, pathRead, q, &resp); err != nil {
			return 0, err
		}
		if resp.BytesRead == 0 {
			r.eof = true
			return 0, io.EOF
		}

		data, err := base64.StdEncoding.DecodeString(resp.Data)
		if err != nil {
			return 0, fmt.Errorf("decode chunk of %s at offset %d: %w", r.path, r.offset, err)
		}
		r.offset += resp.BytesRead
		r.buf = data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	return nil
}

// Stat fetches metadata for a file store path. A missing path reports
// platform.ErrNotFound.
func (s *Service) Stat(ctx context.Context, path string) (*Entry, error) {
	q := url.Values{}
	q.Set("path", path)

	var entry Entry
	if err := s.client.Get(ctx, pathGetStatus, q, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

type deleteRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// Delete removes a file or, with recursive, a directory tree. A missing
// path reports platform.ErrNotFound; callers that want remove-if-present
// check for it with platform.IsNotFound.
func (s *Service) Delete(ctx context.Context, path string, recursive bool) error {
	return s.client.Post(ctx, pathDelete, deleteRequest{Path: path, Recursive: recursive}, nil)
}

// Mkdirs creates a directory and any missing parents. Creating a directory
// that already exists is not an error.
func (s *Service) Mkdirs(ctx context.Context, path string) error {
	req := struct {
		Path string `json:"path"`
	}{Path: path}
	return s.client.Post(ctx, pathMkdirs, req, nil)
}
