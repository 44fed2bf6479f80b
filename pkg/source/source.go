// Package source defines abstractions for reading script trees that get
// mirrored into the workspace.
//
// Sources implement a minimal surface focused on listing entries and
// opening their content. Keys are relative to the source root and use
// forward slashes, so the same key maps to the same workspace path
// regardless of backend. Authentication is the backend's concern - the
// local source needs none, the bucket source uses the AWS SDK default
// credential chain.
package source

import (
	"context"
	"io"
	"time"
)

// Source abstracts a tree of script files.
//
// Implementations should:
//   - Return keys relative to the configured root, slash-separated
//   - Support pagination via continuation tokens
//   - Be safe for concurrent use
type Source interface {
	// List returns a page of entries whose keys start with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Open returns a reader for the entry's content and its size.
	// Returns ErrNotFound if the entry does not exist.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Close releases any resources held by the source.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists the whole tree.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// MaxEntries limits the number of entries returned per page.
	// Zero uses the source default.
	MaxEntries int
}

// ListResult contains a page of entries from a List operation.
type ListResult struct {
	// Entries contains the entries for this page.
	Entries []Entry

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// Entry describes a single file in the source tree.
type Entry struct {
	// Key is the file's path relative to the source root, slash-separated.
	Key string

	// Size is the file size in bytes.
	Size int64

	// ModTime is when the file was last modified.
	ModTime time.Time
}

// Scheme identifies a source backend.
type Scheme string

const (
	// SchemeLocal represents a local directory tree.
	SchemeLocal Scheme = "local"

	// SchemeS3 represents an S3 bucket or S3-compatible storage.
	SchemeS3 Scheme = "s3"
)

// String returns the string representation of the scheme.
func (s Scheme) String() string {
	return string(s)
}
