package jobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettingsYAML() string {
	return `name: nightly
task:
  workspace_path: /Users/u/script
  base_parameters:
    env: prod
notifications:
  on_failure:
    - oncall@example.com
`
}

func validSettingsJSON() string {
	return `{
  "name": "nightly",
  "cluster": {"node_type": "standard-8", "runtime_version": "15.1-lts", "num_workers": 4},
  "task": {"workspace_path": "/Users/u/script"}
}`
}

func TestLoadSettings(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		filename    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, s *Settings)
	}{
		{
			name:     "valid YAML with defaults applied",
			content:  validSettingsYAML(),
			filename: "job.yaml",
			validate: func(t *testing.T, s *Settings) {
				assert.Equal(t, "nightly", s.Name)
				assert.Equal(t, "/Users/u/script", s.Task.WorkspacePath)
				assert.Equal(t, map[string]string{"env": "prod"}, s.Task.BaseParameters)
				assert.Equal(t, []string{"oncall@example.com"}, s.Notifications.OnFailure)
				// Cluster was omitted entirely; defaults fill it.
				assert.Equal(t, DefaultNodeType, s.Cluster.NodeType)
				assert.Equal(t, DefaultRuntimeVersion, s.Cluster.RuntimeVersion)
				assert.Equal(t, DefaultNumWorkers, s.Cluster.NumWorkers)
			},
		},
		{
			name:     "valid JSON preserves explicit cluster",
			content:  validSettingsJSON(),
			filename: "job.json",
			validate: func(t *testing.T, s *Settings) {
				assert.Equal(t, "standard-8", s.Cluster.NodeType)
				assert.Equal(t, "15.1-lts", s.Cluster.RuntimeVersion)
				assert.Equal(t, 4, s.Cluster.NumWorkers)
			},
		},
		{
			name:     "yml extension works",
			content:  validSettingsYAML(),
			filename: "job.yml",
		},
		{
			name:     "unknown extension tries YAML first",
			content:  validSettingsYAML(),
			filename: "job.conf",
		},
		{
			name:        "empty file",
			content:     "",
			filename:    "empty.yaml",
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "invalid YAML syntax",
			content:     "name: [unclosed",
			filename:    "bad.yaml",
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:        "invalid JSON syntax",
			content:     `{"name": "x"`,
			filename:    "bad.json",
			wantErr:     true,
			errContains: "invalid JSON",
		},
		{
			name:        "missing workspace path fails validation",
			content:     "name: incomplete\n",
			filename:    "incomplete.yaml",
			wantErr:     true,
			errContains: "workspace_path",
		},
		{
			name:        "missing name fails validation",
			content:     "task:\n  workspace_path: /Users/u/script\n",
			filename:    "unnamed.yaml",
			wantErr:     true,
			errContains: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			s, err := LoadSettings(path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)
			if tt.validate != nil {
				tt.validate(t, s)
			}
		})
	}
}

func TestLoadSettings_FileNotFound(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadSettingsFromBytes_ValidationErrorIsTyped(t *testing.T) {
	_, err := LoadSettingsFromBytes([]byte("name: x\n"), "job.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
