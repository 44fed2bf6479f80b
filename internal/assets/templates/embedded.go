// Package templatesassets provides embedded file templates for standalone binary behavior.
//
// Templates are embedded at compile time so the CLI works correctly
// regardless of the working directory or installation location.
package templatesassets

import _ "embed"

// JobSettingsTemplate is the embedded starter job-settings file.
//
// This allows 'jobs init' to write a commented, ready-to-edit settings
// file in installed binaries without requiring template files on disk.
//
//go:embed job-settings.yaml
var JobSettingsTemplate []byte
