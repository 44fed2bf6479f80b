package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/gostratus/pkg/match"
)

// Source location parsing errors
var (
	// ErrUnsupportedScheme indicates the location scheme is not supported.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")

	// ErrMissingBucket indicates an s3 location is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// SourceLocation is a parsed sync source argument.
//
// Example locations:
//   - ./labs
//   - /srv/courses/2026
//   - s3://bucket/courses/2026/
//   - s3://bucket/courses/**/*.R
type SourceLocation struct {
	// Scheme is "local" or "s3".
	Scheme string

	// Dir is the local directory. Set for local locations.
	Dir string

	// Bucket is the bucket name. Set for s3 locations.
	Bucket string

	// Prefix is the key prefix acting as the tree root. May be empty for
	// the bucket root.
	Prefix string

	// Pattern is set if the s3 key contains glob characters. When set,
	// Prefix is the literal part before the first glob character and the
	// pattern joins the include list.
	Pattern string
}

// String returns the location in canonical form.
func (l *SourceLocation) String() string {
	if l.Scheme == "local" {
		return l.Dir
	}
	if l.Pattern != "" {
		return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Pattern)
	}
	if l.Prefix != "" {
		return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Prefix)
	}
	return fmt.Sprintf("s3://%s/", l.Bucket)
}

// IsPattern returns true if the location carries glob pattern characters.
func (l *SourceLocation) IsPattern() bool {
	return l.Pattern != ""
}

// parseSourceLocation parses a sync source argument.
//
// Arguments without a scheme are local directories and are taken as-is;
// glob selection for local trees comes from --include flags instead.
//
// Supported s3 forms:
//   - s3://bucket
//   - s3://bucket/prefix/
//   - s3://bucket/prefix/**/*.R
func parseSourceLocation(arg string) (*SourceLocation, error) {
	if arg == "" {
		return nil, errors.New("source location must not be empty")
	}

	// Parse manually to handle glob characters like ? which url.Parse
	// treats as a query delimiter.
	schemeEnd := strings.Index(arg, "://")
	if schemeEnd == -1 {
		return &SourceLocation{Scheme: "local", Dir: arg}, nil
	}

	scheme := strings.ToLower(arg[:schemeEnd])
	if scheme != "s3" {
		return nil, fmt.Errorf("%w: %s (supported: s3, or a local directory)", ErrUnsupportedScheme, scheme)
	}

	remainder := arg[schemeEnd+3:]
	if remainder == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, arg)
	}

	var bucket, key string
	slashIdx := strings.Index(remainder, "/")
	if slashIdx == -1 {
		bucket = remainder
	} else {
		bucket = remainder[:slashIdx]
		key = remainder[slashIdx+1:]
	}

	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, arg)
	}

	loc := &SourceLocation{Scheme: "s3", Bucket: bucket}

	// Escape-aware glob detection, so \* means a literal asterisk in a key.
	if match.IsGlobPattern(key) {
		loc.Pattern = key
		loc.Prefix = match.DerivePrefix(key)
	} else {
		loc.Prefix = match.DerivePrefix(key)
	}

	return loc, nil
}
