package preview

import (
	"context"
	"time"
)

// ProjectSource is the minimal view of a project's VFS a Watcher needs.
// Per the Design Notes' note on cyclic data ("the watcher holds no
// reference to the preview object beyond a project_id and asks the
// Preview manager to act on it"), the Watcher depends only on this
// narrow interface, never on internal/vfs.VFS directly, so the
// preview↔watcher↔vfs triangle never becomes a real import cycle.
type ProjectSource interface {
	CurrentCommitID() string
	Files(ctx context.Context) (map[string]string, error)
}

// WatchProject polls source at pollInterval until ctx is cancelled. On
// observing a new commit id it asks the Manager to rebuild the preview
// and, when the rebuild succeeds, publishes exactly one ReloadEvent
// (a failed rebuild publishes none), satisfying §8's Watcher
// causality invariant: "Every observed commit id leads to exactly one
// rebuild invocation."
func (m *Manager) WatchProject(ctx context.Context, projectID string, source ProjectSource, pollInterval time.Duration) {
	watchCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if existing, ok := m.stopFns[projectID]; ok {
		existing()
	}
	m.stopFns[projectID] = cancel
	m.mu.Unlock()

	go m.runWatchLoop(watchCtx, projectID, source, pollInterval)
}

func (m *Manager) runWatchLoop(ctx context.Context, projectID string, source ProjectSource, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastSeen := source.CurrentCommitID()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			commitID := source.CurrentCommitID()
			if commitID == "" || commitID == lastSeen {
				continue
			}
			lastSeen = commitID

			files, err := source.Files(ctx)
			if err != nil {
				continue
			}
			if err := m.UpdatePreview(ctx, projectID, files); err != nil {
				continue
			}
			m.mu.Lock()
			if env, ok := m.envs[projectID]; ok {
				env.CommitID = commitID
			}
			m.mu.Unlock()
			m.publishReload(projectID, commitID)
		}
	}
}
