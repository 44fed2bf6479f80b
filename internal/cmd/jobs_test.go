package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostratus/pkg/jobs"
)

func TestParseJobID(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    int64
		wantErr bool
	}{
		{
			name: "plain id",
			arg:  "1042",
			want: 1042,
		},
		{
			name: "surrounding whitespace",
			arg:  " 7 ",
			want: 7,
		},
		{
			name:    "job name instead of id",
			arg:     "nightly-refresh",
			wantErr: true,
		},
		{
			name:    "trailing garbage",
			arg:     "12a",
			wantErr: true,
		},
		{
			name:    "empty",
			arg:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJobID(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "must be numeric")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "single pair",
			raw:  []string{"week=3"},
			want: map[string]string{"week": "3"},
		},
		{
			name: "multiple pairs",
			raw:  []string{"week=3", "course=stats101"},
			want: map[string]string{"week": "3", "course": "stats101"},
		},
		{
			name: "value containing equals",
			raw:  []string{"filter=a=b"},
			want: map[string]string{"filter": "a=b"},
		},
		{
			name: "empty value",
			raw:  []string{"flag="},
			want: map[string]string{"flag": ""},
		},
		{
			name: "last duplicate wins",
			raw:  []string{"week=1", "week=2"},
			want: map[string]string{"week": "2"},
		},
		{
			name:    "missing equals",
			raw:     []string{"week"},
			wantErr: true,
		},
		{
			name:    "empty key",
			raw:     []string{"=3"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "key=value")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatEpochMillis(t *testing.T) {
	assert.Equal(t, "-", formatEpochMillis(0))
	assert.Equal(t, "2023-11-14T22:13:20Z", formatEpochMillis(1700000000000))
}

func TestCollectCreateSettings(t *testing.T) {
	// Save original flag values
	origFile := jobsCreateFile
	origName := jobsCreateName
	origScript := jobsCreateScript
	origParams := jobsCreateParams
	restore := func() {
		jobsCreateFile = origFile
		jobsCreateName = origName
		jobsCreateScript = origScript
		jobsCreateParams = origParams
	}
	defer restore()

	t.Run("name and script build default settings", func(t *testing.T) {
		restore()
		jobsCreateName = "weekly-grades"
		jobsCreateScript = "/Users/ta@example.com/course/grades"
		jobsCreateParams = []string{"week=3"}

		settings, err := collectCreateSettings()
		require.NoError(t, err)
		assert.Equal(t, "weekly-grades", settings.Name)
		assert.Equal(t, "/Users/ta@example.com/course/grades", settings.Task.WorkspacePath)
		assert.Equal(t, map[string]string{"week": "3"}, settings.Task.BaseParameters)
		assert.Equal(t, jobs.DefaultNodeType, settings.Cluster.NodeType)
		assert.Equal(t, jobs.DefaultRuntimeVersion, settings.Cluster.RuntimeVersion)
		assert.Equal(t, jobs.DefaultNumWorkers, settings.Cluster.NumWorkers)
	})

	t.Run("settings file", func(t *testing.T) {
		restore()
		path := filepath.Join(t.TempDir(), "job.yaml")
		contents := `name: from-file
task:
  workspace_path: /Users/ta@example.com/course/setup
`
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		jobsCreateFile = path

		settings, err := collectCreateSettings()
		require.NoError(t, err)
		assert.Equal(t, "from-file", settings.Name)
		assert.Equal(t, "/Users/ta@example.com/course/setup", settings.Task.WorkspacePath)
		assert.Equal(t, jobs.DefaultNodeType, settings.Cluster.NodeType)
	})

	t.Run("file and name are mutually exclusive", func(t *testing.T) {
		restore()
		jobsCreateFile = "job.yaml"
		jobsCreateName = "weekly-grades"

		_, err := collectCreateSettings()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be combined")
	})

	t.Run("name without script", func(t *testing.T) {
		restore()
		jobsCreateName = "weekly-grades"

		_, err := collectCreateSettings()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both --name and --script")
	})

	t.Run("no flags at all", func(t *testing.T) {
		restore()

		_, err := collectCreateSettings()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--file")
	})

	t.Run("bad parameter", func(t *testing.T) {
		restore()
		jobsCreateName = "weekly-grades"
		jobsCreateScript = "/Users/ta@example.com/course/grades"
		jobsCreateParams = []string{"not-a-pair"}

		_, err := collectCreateSettings()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key=value")
	})
}
