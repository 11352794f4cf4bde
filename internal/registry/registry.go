// Package registry implements the supervised per-project registry the
// Design Notes call for in place of global singletons: "Global
// singletons (router, validators)... Model as a supervised registry
// keyed by project_id." It owns each project's VFS and advisory write
// lock, and hands out shared access to the process-wide Memory store
// and Preview manager, with explicit create/close lifecycle.
package registry

import (
	"context"
	"sync"
	"time"

	"apploom/internal/memory"
	"apploom/internal/preview"
	"apploom/internal/utils"
	"apploom/internal/vfs"
)

// Handle is one project's live state: its VFS and the advisory lock that
// serializes writers, per §5's "one writer at a time" VFS ordering
// guarantee — the orchestrator holds writeMu for the duration of a
// generate or edit pipeline run, from the first write_file through
// commit.
type Handle struct {
	ProjectID  string
	VFS        *vfs.VFS
	CreatedAt  time.Time
	LastUsedAt time.Time

	writeMu sync.Mutex
}

// Lock acquires the advisory write lock. Callers must call Unlock when
// the write sequence (write_file*...→commit) is complete.
func (h *Handle) Lock() { h.writeMu.Lock() }

// Unlock releases the advisory write lock.
func (h *Handle) Unlock() { h.writeMu.Unlock() }

// Files returns every file in the project's current commit, the same
// snapshot a Preview rebuild or an edit pipeline run would see.
func (h *Handle) Files(ctx context.Context) (map[string]string, error) {
	return vfsProjectSource{v: h.VFS}.Files(ctx)
}

// vfsProjectSource adapts *vfs.VFS to preview.ProjectSource so the
// Watcher can poll a project's VFS without this package (or
// internal/preview) importing the other's concrete type — the Design
// Notes' prescribed fix for the flagged VFS↔preview↔watcher cycle.
type vfsProjectSource struct {
	v          *vfs.VFS
	exportRoot string
}

func (s vfsProjectSource) CurrentCommitID() string { return s.v.CurrentCommitID() }

func (s vfsProjectSource) Files(ctx context.Context) (map[string]string, error) {
	commitID := s.v.CurrentCommitID()
	if commitID == "" {
		return map[string]string{}, nil
	}
	for _, c := range s.v.GetHistory() {
		if c.ID != commitID {
			continue
		}
		files := make(map[string]string, len(c.Files))
		for path, f := range c.Files {
			files[path] = f.Content
		}
		return files, nil
	}
	return map[string]string{}, nil
}

// Registry supervises every active project's Handle plus the process-
// wide Memory store and Preview manager, neither of which is a project's
// own state.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	memoryStore    memory.Store
	previewManager *preview.Manager
	uids           *utils.UIDGenerator
}

// New builds a Registry over the given process-wide Memory store and
// Preview manager. Either may be nil when that subsystem is unconfigured
// (e.g. no MEMORY_POSTGRES_DSN); callers must check for nil before use.
// A Preview manager built where no container runtime was found is not
// nil; it reports Available() == false.
func New(memoryStore memory.Store, previewManager *preview.Manager) *Registry {
	return &Registry{
		handles:        map[string]*Handle{},
		memoryStore:    memoryStore,
		previewManager: previewManager,
		uids:           utils.NewUIDGenerator(),
	}
}

// NewProjectID mints a unique project id from a caller-supplied seed
// (e.g. the requested project name), so concurrent requests with the
// same name never collide.
func (r *Registry) NewProjectID(seed string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uids.Generate(seed)
}

// Handle returns the project's Handle, creating an empty one on first
// use.
func (r *Registry) Handle(projectID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[projectID]; ok {
		h.LastUsedAt = time.Now()
		return h
	}
	h := &Handle{ProjectID: projectID, VFS: vfs.New(projectID), CreatedAt: time.Now(), LastUsedAt: time.Now()}
	r.handles[projectID] = h
	return h
}

// MemoryStore returns the shared Memory store, or nil if unconfigured.
func (r *Registry) MemoryStore() memory.Store { return r.memoryStore }

// PreviewManager returns the shared Preview manager, or nil if New was
// given none.
func (r *Registry) PreviewManager() *preview.Manager { return r.previewManager }

// WatchPreview starts (or restarts) a Watcher over projectID's VFS,
// rebuilding the preview on every new commit. A no-op if no Preview
// manager is configured.
func (r *Registry) WatchPreview(ctx context.Context, projectID string, pollInterval time.Duration) {
	if r.previewManager == nil {
		return
	}
	h := r.Handle(projectID)
	r.previewManager.WatchProject(ctx, projectID, vfsProjectSource{v: h.VFS}, pollInterval)
}

// Close tears down projectID's preview (if any) and drops its Handle.
// The project's commit history is not otherwise persisted by this
// package; callers that need durability should export_to_disk or rely
// on Memory's own store before calling Close.
func (r *Registry) Close(ctx context.Context, projectID string) error {
	r.mu.Lock()
	delete(r.handles, projectID)
	r.mu.Unlock()

	if r.previewManager != nil {
		return r.previewManager.StopPreview(ctx, projectID)
	}
	return nil
}

// Projects lists every currently-registered project id.
func (r *Registry) Projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handles))
	for id := range r.handles {
		out = append(out, id)
	}
	return out
}
