package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Cluster defaults for jobs created without an explicit cluster spec. The
// runtime is pinned so scheduled scripts do not break under them when the
// platform rolls its default forward.
const (
	DefaultNodeType       = "standard-4"
	DefaultRuntimeVersion = "14.3-lts"
	DefaultNumWorkers     = 2
)

// ErrInvalidSettings indicates job settings that fail local validation.
// Raised before any network call.
var ErrInvalidSettings = errors.New("invalid job settings")

// ClusterSpec describes the compute a run gets: one driver plus NumWorkers
// workers on the pinned runtime.
type ClusterSpec struct {
	// NodeType is the instance type for driver and workers.
	NodeType string `json:"node_type" yaml:"node_type"`

	// RuntimeVersion pins the runtime image.
	RuntimeVersion string `json:"runtime_version" yaml:"runtime_version"`

	// NumWorkers is the worker count. Zero takes DefaultNumWorkers.
	NumWorkers int `json:"num_workers" yaml:"num_workers"`
}

// TaskSpec points a job at the workspace object it executes.
type TaskSpec struct {
	// WorkspacePath is the workspace path of the script to run. Required.
	WorkspacePath string `json:"workspace_path" yaml:"workspace_path"`

	// BaseParameters are default parameters for every run, which a
	// run-now call may override per run.
	BaseParameters map[string]string `json:"base_parameters,omitempty" yaml:"base_parameters,omitempty"`
}

// Notifications lists email recipients per lifecycle event.
type Notifications struct {
	OnStart   []string `json:"on_start,omitempty" yaml:"on_start,omitempty"`
	OnSuccess []string `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure []string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Settings is the full job configuration document, used both on the wire
// and in settings files.
type Settings struct {
	// Name labels the job. Names are advisory: the platform enforces no
	// uniqueness, so the job id remains the only reliable identifier.
	Name string `json:"name" yaml:"name"`

	Cluster       ClusterSpec   `json:"cluster" yaml:"cluster"`
	Task          TaskSpec      `json:"task" yaml:"task"`
	Notifications Notifications `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// DefaultSettings returns the house default configuration for a scheduled
// script job: one driver, two workers, pinned runtime, no notifications.
func DefaultSettings(name, workspacePath string) Settings {
	return Settings{
		Name: name,
		Cluster: ClusterSpec{
			NodeType:       DefaultNodeType,
			RuntimeVersion: DefaultRuntimeVersion,
			NumWorkers:     DefaultNumWorkers,
		},
		Task: TaskSpec{WorkspacePath: workspacePath},
	}
}

// ApplyDefaults fills zero cluster fields with the house defaults.
func (s *Settings) ApplyDefaults() {
	if s.Cluster.NodeType == "" {
		s.Cluster.NodeType = DefaultNodeType
	}
	if s.Cluster.RuntimeVersion == "" {
		s.Cluster.RuntimeVersion = DefaultRuntimeVersion
	}
	if s.Cluster.NumWorkers == 0 {
		s.Cluster.NumWorkers = DefaultNumWorkers
	}
}

// Validate checks the fields the client can check locally. The platform
// validates the rest; this runs before any network call so an unrunnable
// job is rejected without a round trip.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidSettings)
	}
	if strings.TrimSpace(s.Task.WorkspacePath) == "" {
		return fmt.Errorf("task.workspace_path is required: %w", ErrInvalidSettings)
	}
	if s.Cluster.NumWorkers < 0 {
		return fmt.Errorf("cluster.num_workers must not be negative: %w", ErrInvalidSettings)
	}
	return nil
}
