package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Language identifies the source language of a workspace notebook, as the
// platform spells it.
type Language string

// Languages the import endpoint accepts.
const (
	LanguagePython Language = "PYTHON"
	LanguageR      Language = "R"
	LanguageSQL    Language = "SQL"
	LanguageScala  Language = "SCALA"
)

// ErrUnknownLanguage indicates no language could be determined for a source
// file. Raised before any network call.
var ErrUnknownLanguage = errors.New("unknown source language")

// InferLanguage maps a source file extension onto a notebook language.
// Matching is exact: .py, .r, .R, .sql, .scala. Anything else needs an
// explicit language from the caller.
func InferLanguage(path string) (Language, error) {
	switch ext := filepath.Ext(path); ext {
	case ".py":
		return LanguagePython, nil
	case ".r", ".R":
		return LanguageR, nil
	case ".sql":
		return LanguageSQL, nil
	case ".scala":
		return LanguageScala, nil
	default:
		return "", fmt.Errorf("no language for %q: %w", path, ErrUnknownLanguage)
	}
}
