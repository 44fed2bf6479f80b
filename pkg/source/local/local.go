// Package local implements the source interface for local directory trees.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/gostratus/pkg/source"
)

// DefaultMaxEntries is the default page size for List operations.
const DefaultMaxEntries = 1000

// Source implements source.Source for a local directory.
//
// Keys are paths relative to Dir, slash-separated. The tree is walked
// on every List call, so listings reflect the directory's current state.
type Source struct {
	dir string
}

var _ source.Source = (*Source)(nil)

// Config configures a local directory source.
type Config struct {
	// Dir is the root of the script tree (required).
	Dir string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("source dir is required")
	}
	return nil
}

// New creates a local directory source rooted at cfg.Dir.
func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{dir: filepath.Clean(cfg.Dir)}, nil
}

// Close releases resources. Local sources hold none.
func (s *Source) Close() error { return nil }

// List returns a page of files under the prefix, ordered by key.
func (s *Source) List(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
	_ = ctx
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	entries, err := s.collectEntries(prefix)
	if err != nil {
		return nil, s.wrapError("List", opts.Prefix, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		start = sort.Search(len(entries), func(i int) bool {
			return entries[i].Key > opts.ContinuationToken
		})
	}

	end := start + maxEntries
	if end > len(entries) {
		end = len(entries)
	}

	res := &source.ListResult{Entries: entries[start:end]}
	if end < len(entries) {
		res.IsTruncated = true
		res.ContinuationToken = entries[end-1].Key
	}
	return res, nil
}

// Open returns a reader for the file at key along with its size.
func (s *Source) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return nil, 0, s.wrapError("Open", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, &source.SourceError{Op: "Open", Scheme: source.SchemeLocal, Root: s.dir, Key: key, Err: source.ErrNotFound}
		}
		return nil, 0, s.wrapError("Open", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, s.wrapError("Open", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, &source.SourceError{Op: "Open", Scheme: source.SchemeLocal, Root: s.dir, Key: key, Err: source.ErrNotFound}
	}
	return f, st.Size(), nil
}

func (s *Source) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

// collectEntries walks the tree under prefix and returns every regular file
// keyed by its slash-separated path relative to the source root.
func (s *Source) collectEntries(prefix string) ([]source.Entry, error) {
	if _, err := os.Stat(s.dir); err != nil {
		return nil, err
	}

	var entries []source.Entry
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, source.Entry{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Source) wrapError(op, key string, err error) error {
	wrapped := &source.SourceError{Op: op, Scheme: source.SchemeLocal, Root: s.dir, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to source sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = source.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = source.ErrAccessDenied
	}
	return wrapped
}
