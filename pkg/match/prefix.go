package match

import (
	"sort"
	"strings"
)

// DerivePrefix extracts the longest static prefix from a glob pattern.
//
// The prefix is the portion of the pattern before any unescaped glob
// metacharacter. Escaped metacharacters (\*, \?, \[, \{) are treated as
// literals and included in the prefix. The prefix can be used to scope
// source listings so only the relevant subtree is walked.
//
// Examples:
//
//	"labs/week1/**/*.R"    → "labs/week1/"
//	"*.R"                  → ""
//	"labs/day-{1,2}/*.R"   → "labs/"
//	"exact/path/setup.R"   → "exact/path/setup.R"
//	"labs/file\*.R"        → "labs/file*.R" (escaped * is literal)
func DerivePrefix(pattern string) string {
	if pattern == "" {
		return ""
	}

	pattern = NormalizePattern(pattern)

	metaIdx := findFirstUnescapedMeta(pattern)

	if metaIdx == -1 {
		// No unescaped metacharacters - pattern is an exact match.
		// Unescape for the listing prefix (remove backslashes before metacharacters).
		return unescapePrefix(pattern)
	}

	if metaIdx == 0 {
		// Starts with unescaped metacharacter - no prefix
		return ""
	}

	prefix := pattern[:metaIdx]

	// Truncate to last complete path segment
	// e.g., "labs/week" becomes "labs/" not "labs/week"
	lastSlash := strings.LastIndex(prefix, "/")
	if lastSlash >= 0 {
		return unescapePrefix(prefix[:lastSlash+1])
	}

	// No slash before metacharacter - no usable prefix
	return ""
}

// findFirstUnescapedMeta returns the index of the first unescaped glob
// metacharacter (* ? [ {) in the pattern, or -1 if none found.
//
// The scan is escape-aware: simple string search cannot distinguish
// literal metacharacters (escaped with \) from glob metacharacters.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]

		if c == '\\' && i+1 < len(pattern) {
			next := pattern[i+1]
			// Escaped metacharacter or backslash - skip both characters.
			if next == '*' || next == '?' || next == '[' || next == '{' || next == '\\' {
				i++
				continue
			}
			// Backslash before non-meta char - not an escape in glob context
			continue
		}

		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// unescapePrefix removes escape backslashes from glob metacharacters in a
// prefix. Source keys don't use escape sequences, so a pattern prefix
// like "labs/file\*" must become the key prefix "labs/file*".
func unescapePrefix(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}

	var result strings.Builder
	result.Grow(len(prefix))

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]

		if c == '\\' && i+1 < len(prefix) {
			next := prefix[i+1]
			// Remove the escape backslash, keep the literal character.
			if next == '*' || next == '?' || next == '[' || next == ']' ||
				next == '{' || next == '}' || next == '\\' {
				result.WriteByte(next)
				i++
				continue
			}
		}

		result.WriteByte(c)
	}

	return result.String()
}

// DerivePrefixes extracts prefixes from multiple patterns and deduplicates them.
//
// The returned prefixes are:
//   - Derived from each include pattern
//   - Deduplicated (parent prefixes subsume children)
//   - Sorted for deterministic ordering
//
// Examples:
//
//	["labs/week1/**", "labs/week2/**"] → ["labs/week1/", "labs/week2/"]
//	["labs/**", "labs/week1/**"]       → ["labs/"]  (parent subsumes child)
//	["**/*.R"]                         → [""]       (empty = full listing)
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefixes = append(prefixes, DerivePrefix(p))
	}

	return deduplicatePrefixes(prefixes)
}

// deduplicatePrefixes removes prefixes that are subsumed by shorter prefixes.
//
// A prefix P1 subsumes P2 if P2 starts with P1.
// For example, "labs/" subsumes "labs/week1/".
//
// Special case: empty string "" subsumes all prefixes (means full listing).
func deduplicatePrefixes(prefixes []string) []string {
	if len(prefixes) == 0 {
		return nil
	}

	for _, p := range prefixes {
		if p == "" {
			return []string{""}
		}
	}

	// Sort by length (shortest first) for subsumption check
	sorted := make([]string, len(prefixes))
	copy(sorted, prefixes)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) < len(sorted[j])
	})

	result := make([]string, 0, len(sorted))
	for _, candidate := range sorted {
		subsumed := false
		for _, existing := range result {
			if strings.HasPrefix(candidate, existing) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			result = append(result, candidate)
		}
	}

	// Sort alphabetically for deterministic output
	sort.Strings(result)

	return result
}

// HasEmptyPrefix returns true if any derived prefix is empty.
// An empty prefix means a full tree listing is required. For bucket
// sources this is a scale concern and callers may want to warn users.
func HasEmptyPrefix(patterns []string) bool {
	for _, p := range patterns {
		if DerivePrefix(p) == "" {
			return true
		}
	}
	return false
}

// IsGlobPattern returns true if the pattern contains unescaped glob metacharacters.
//
// This is escape-aware: literal metacharacters escaped with backslash
// (\*, \?, \[, \{) are not considered glob characters.
//
// Examples:
//
//	"labs/**/*.R"      → true  (unescaped glob)
//	"labs/file\*.R"    → false (escaped asterisk is literal)
//	"labs/setup.R"     → false (no metacharacters)
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(pattern) != -1
}
