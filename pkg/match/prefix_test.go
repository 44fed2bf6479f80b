package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePrefix(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		// Basic cases
		{"empty pattern", "", ""},
		{"exact match", "labs/week1/setup.R", "labs/week1/setup.R"},
		{"simple wildcard", "*.R", ""},
		{"wildcard at end", "labs/*.R", "labs/"},
		{"double star", "labs/**", "labs/"},
		{"double star with suffix", "labs/**/*.R", "labs/"},

		// Complex patterns
		{"brace expansion", "labs/day-{1,2}/*.R", "labs/"},
		{"character class", "labs/[0-9]*/*.R", "labs/"},
		{"question mark", "labs/part?.R", "labs/"},
		{"nested wildcards", "courses/2026/labs/**/*.py", "courses/2026/labs/"},

		// Edge cases
		{"leading wildcard", "**/setup.R", ""},
		{"wildcard in middle", "labs/*/setup.R", "labs/"},
		{"partial segment wildcard", "labs/week-*/*.R", "labs/"},
		{"only slash", "/", "/"},
		{"trailing slash preserved", "labs/week1/", "labs/week1/"},

		// Pattern normalization (Windows compat)
		// In "labs\week1\**\*.R": \w -> /w (not escapable), but \* is an escape.
		// Normalized: "labs/week1\**\*.R" where \* is a literal asterisk, so the
		// first unescaped meta is the second star and the prefix stops at "labs/".
		{"backslashes with escapes", "labs\\week1\\**\\*.R", "labs/"},
		// Windows path with \** also has \* (escape) + * (glob), same behavior.
		// Windows users who want the full prefix should use forward slashes for globs.
		{"windows path with glob", "labs\\week1\\day2\\**", "labs/week1/"},
		{"windows path forward glob", "labs\\week1\\day2/**", "labs/week1/day2/"},
		// Leading slash is preserved (pattern identity)
		{"leading slash preserved", "/labs/week1/**", "/labs/week1/"},

		// Escaped metacharacters (literal matching)
		// \* means literal asterisk, not glob - included in the prefix
		{"escaped asterisk exact", "labs/file\\*.R", "labs/file*.R"},
		{"escaped asterisk in dir", "labs/file\\*/solutions/*.R", "labs/file*/solutions/"},
		{"escaped question mark", "labs/file\\?.R", "labs/file?.R"},
		{"escaped bracket", "labs/\\[archive\\]/setup.R", "labs/[archive]/setup.R"},
		{"escaped brace", "labs/\\{v1\\}/setup.R", "labs/{v1}/setup.R"},
		{"escaped backslash", "labs/path\\\\/setup.R", "labs/path\\/setup.R"},
		{"mixed escaped and glob", "labs/\\[2026\\]/**/*.R", "labs/[2026]/"},
		{"escaped asterisk before slash", "labs/file\\*/*.R", "labs/file*/"},

		// Real-world examples
		{"workshop scripts", "courses/sparklyr/**/*.R", "courses/sparklyr/"},
		{"scratch exclude", "**/scratch/**", ""},
		{"git exclude", "**/.git/**", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DerivePrefix(tt.pattern)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDerivePrefixes(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{"nil", nil, nil},
		{"empty", []string{}, nil},
		{"single pattern", []string{"labs/week1/**"}, []string{"labs/week1/"}},

		// Deduplication
		{"parent subsumes child", []string{"labs/**", "labs/week1/**"}, []string{"labs/"}},
		{"child not subsumed", []string{"labs/week1/**", "labs/week2/**"}, []string{"labs/week1/", "labs/week2/"}},
		{"multiple parents", []string{"a/**", "b/**", "a/x/**"}, []string{"a/", "b/"}},

		// Empty prefix handling
		{"empty prefix from wildcard", []string{"**/*.R"}, []string{""}},
		{"empty subsumes all", []string{"labs/week1/**", "**/*.R"}, []string{""}},

		// Sorting
		{"sorted output", []string{"z/**", "a/**", "m/**"}, []string{"a/", "m/", "z/"}},

		// Real-world
		{
			"typical sync",
			[]string{"labs/week1/**/*.R", "labs/week1/**/*.py"},
			[]string{"labs/week1/"},
		},
		{
			"multi-week",
			[]string{"labs/week1/**", "labs/week2/**", "labs/week3/**"},
			[]string{"labs/week1/", "labs/week2/", "labs/week3/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DerivePrefixes(tt.patterns)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDeduplicatePrefixes(t *testing.T) {
	tests := []struct {
		name     string
		prefixes []string
		expected []string
	}{
		{"nil", nil, nil},
		{"empty", []string{}, nil},
		{"single", []string{"labs/"}, []string{"labs/"}},
		{"no overlap", []string{"a/", "b/"}, []string{"a/", "b/"}},
		{"parent subsumes", []string{"labs/", "labs/week1/"}, []string{"labs/"}},
		{"child before parent", []string{"labs/week1/", "labs/"}, []string{"labs/"}},
		{"empty subsumes all", []string{"labs/", ""}, []string{""}},
		{"multiple empty", []string{"", "", "labs/"}, []string{""}},
		{"complex chain", []string{"a/b/c/", "a/b/", "a/"}, []string{"a/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := deduplicatePrefixes(tt.prefixes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHasEmptyPrefixPatterns(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		expected bool
	}{
		{"nil", nil, false},
		{"no empty", []string{"labs/week1/**"}, false},
		{"has empty", []string{"**/*.R"}, true},
		{"mixed", []string{"labs/**", "**/*.R"}, true},
		// Escaped patterns should NOT have empty prefix
		{"escaped asterisk not empty", []string{"labs/file\\*.R"}, false},
		{"escaped leading not empty", []string{"\\*\\*/labs/*.R"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HasEmptyPrefix(tt.patterns)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsGlobPattern(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected bool
	}{
		{"empty", "", false},
		{"exact path", "labs/week1/setup.R", false},
		{"double star", "labs/**", true},
		{"single star", "labs/*.R", true},
		{"question mark", "labs/part?.R", true},
		{"character class", "labs/[0-9].R", true},
		{"brace", "labs/{a,b}.R", true},
		{"escaped star is literal", "labs/file\\*.R", false},
		{"escaped then real glob", "labs/file\\*/*.R", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsGlobPattern(tt.pattern)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func BenchmarkDerivePrefix(b *testing.B) {
	pattern := "courses/2026/labs/week-*/day-*/**/*.R"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DerivePrefix(pattern)
	}
}

func BenchmarkDerivePrefixes(b *testing.B) {
	patterns := []string{
		"labs/week1/**/*.R",
		"labs/week1/**/*.py",
		"labs/week2/**/*.R",
		"solutions/**/*.R",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DerivePrefixes(patterns)
	}
}
