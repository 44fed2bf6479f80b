// Package match provides pattern matching for source entry keys using
// doublestar semantics with prefix derivation for efficient listing.
package match

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Normalization rules:
//   - Unescaped backslashes converted to forward slashes (Windows compat)
//   - Escaped backslashes and glob metacharacters preserved (\*, \?, \[, etc.)
//   - Leading slash, trailing slash, and // sequences preserved
//
// This allows Windows users to write patterns like "labs\week1\**\*.R"
// while preserving escape semantics for literal matching.
//
// Examples:
//
//	"labs/week1/**"      → "labs/week1/**"     (unchanged)
//	"labs\week1\**"      → "labs/week1/**"     (backslash → slash)
//	"labs/file\*.R"      → "labs/file\*.R"     (escape preserved)
//	"labs\\old\\*"       → "labs/old/*"        (unescaped \ → /)
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\\' && i+1 < len(runes) {
			next := runes[i+1]
			// Preserve escape sequences for glob metacharacters
			if strings.ContainsRune(globEscapable, next) {
				result.WriteRune('\\')
				result.WriteRune(next)
				i++
				continue
			}
			// Unescaped backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		if r == '\\' {
			// Trailing backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		result.WriteRune(r)
	}

	return result.String()
}

// IsHidden returns true if any path segment starts with a dot.
//
// Hidden segments follow Unix convention where files/directories
// starting with '.' are considered hidden. Course trees routinely
// carry .git, .Rproj.user and similar directories that must not end
// up in the workspace.
//
// The key is matched as-is, using '/' as separator.
//
// Examples:
//
//	"labs/week1/setup.R"   → false
//	".git/config"          → true
//	"labs/.Rhistory"       → true
//	"labs/week1/file.R."   → false (dot at end is not hidden)
func IsHidden(key string) bool {
	if key == "" {
		return false
	}

	segments := strings.Split(key, "/")
	for _, seg := range segments {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}

	return false
}
