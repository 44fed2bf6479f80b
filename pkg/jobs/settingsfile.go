package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSettings reads job settings from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. If the extension is unrecognized, YAML is attempted first, then JSON.
// Cluster defaults are applied to unset fields and the result is validated.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("settings file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading settings: %s", path)
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return LoadSettingsFromBytes(data, path)
}

// LoadSettingsFromBytes parses and validates settings from raw bytes.
// The path parameter is used for error messages and format detection.
func LoadSettingsFromBytes(data []byte, path string) (*Settings, error) {
	if len(data) == 0 {
		return nil, errors.New("settings file is empty")
	}

	settings, err := parseSettings(data, path)
	if err != nil {
		return nil, err
	}

	settings.ApplyDefaults()

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// parseSettings parses the settings data based on file extension.
func parseSettings(data []byte, path string) (*Settings, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseSettingsJSON(data)
	case ".yaml", ".yml":
		return parseSettingsYAML(data)
	default:
		// Unknown extension: try YAML first (more permissive), then JSON
		settings, yamlErr := parseSettingsYAML(data)
		if yamlErr == nil {
			return settings, nil
		}
		settings, jsonErr := parseSettingsJSON(data)
		if jsonErr == nil {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to parse settings (tried YAML and JSON): %w", yamlErr)
	}
}

func parseSettingsJSON(data []byte) (*Settings, error) {
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid JSON in settings: %w", err)
	}
	return &settings, nil
}

func parseSettingsYAML(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid YAML in settings: %w", err)
	}
	return &settings, nil
}
