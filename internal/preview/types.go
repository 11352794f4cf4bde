// Package preview implements the Preview Sandbox + Watcher (§4.9):
// project-type detection, minimal per-type container definitions, a
// port allocator bounded by a configured range, lifecycle management
// with a reaper, and a commit-polling Watcher that turns new VFS
// commits into rebuild-and-reload events.
package preview

import "time"

// ProjectType is the file-signature classification §4.9 defines.
type ProjectType string

const (
	ProjectPythonService ProjectType = "python-service"
	ProjectReactSPA      ProjectType = "react-spa"
	ProjectNodeService   ProjectType = "node-service"
	ProjectStaticSite    ProjectType = "static-site"
	ProjectUnknown       ProjectType = "unknown"
)

// Status is a PreviewEnvironment's lifecycle state.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// PreviewEnvironment is one project's ephemeral container preview.
type PreviewEnvironment struct {
	ID            string
	ProjectID     string
	Type          ProjectType
	Status        Status
	Port          int
	ContainerID   string
	ContainerName string
	WorkDir       string
	CommitID      string
	LastError     string
	Logs          []string
	CreatedAt     time.Time
	LastAccessed  time.Time
}

// touch refreshes LastAccessed, used by the reaper's idle-expiry check.
func (p *PreviewEnvironment) touch() {
	p.LastAccessed = time.Now()
}

// ReloadEvent is pushed to subscribers once per observed commit during
// a preview's lifetime (§4.9's Watcher causality invariant, §8).
type ReloadEvent struct {
	ProjectID string
	CommitID  string
	Timestamp time.Time
}
