package preview

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"apploom/internal/errkind"
)

// HealthProbeInterval and HealthProbeBudget bound the "health probe
// succeeds within a build-time budget" step of §4.9's lifecycle.
const (
	HealthProbeInterval = 500 * time.Millisecond
	HealthProbeBudget   = 120 * time.Second
)

// Manager owns every PreviewEnvironment, the shared port allocator, and
// the subscriber registry the Watcher publishes reload events into.
type Manager struct {
	mu      sync.Mutex
	cfg     managerConfig
	runtime Runtime
	ports   *portAllocator
	envs    map[string]*PreviewEnvironment // keyed by project id
	subs    map[string][]chan ReloadEvent  // keyed by project id
	stopFns map[string]context.CancelFunc  // watcher cancel funcs, keyed by project id
}

// managerConfig is the narrow slice of internal/config.Config this
// package needs, accepted by value so this package has no import-cycle
// risk with internal/config and tests can construct it inline.
type managerConfig struct {
	PortRangeStart int
	PortRangeEnd   int
	HardExpiry     time.Duration
	IdleExpiry     time.Duration
	MaxConcurrent  int
	MemoryMiB      int
	CPUs           float64
	Network        string
}

// NewManager builds a Manager over the given config, auto-detecting
// the container runtime.
func NewManager(cfg managerConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		runtime: detectRuntime(),
		ports:   newPortAllocator(cfg.PortRangeStart, cfg.PortRangeEnd),
		envs:    map[string]*PreviewEnvironment{},
		subs:    map[string][]chan ReloadEvent{},
		stopFns: map[string]context.CancelFunc{},
	}
}

// NewManagerConfig adapts internal/config.Config's preview-related
// fields into the managerConfig this package consumes, keeping this
// package decoupled from internal/config's full surface.
func NewManagerConfig(portStart, portEnd int, hardExpiry, idleExpiry time.Duration, maxConcurrent, memoryMiB int, cpus float64, network string) managerConfig {
	return managerConfig{
		PortRangeStart: portStart, PortRangeEnd: portEnd,
		HardExpiry: hardExpiry, IdleExpiry: idleExpiry,
		MaxConcurrent: maxConcurrent, MemoryMiB: memoryMiB, CPUs: cpus, Network: network,
	}
}

// Available reports whether a container runtime was found. §4.9:
// "Docker-daemon unavailability → whole subsystem reports unavailable;
// preview endpoints 503."
func (m *Manager) Available() bool { return m.runtime != RuntimeNone }

// CreatePreview builds and starts a fresh preview for projectID from
// files, rejecting the request outright if the active-preview ceiling
// is already reached (§5's ResourceExhausted case).
func (m *Manager) CreatePreview(ctx context.Context, projectID string, files map[string]string) (*PreviewEnvironment, error) {
	if !m.Available() {
		return nil, errkind.New(errkind.PreviewBuildFailed, "container runtime unavailable")
	}

	m.mu.Lock()
	if len(m.envs) >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return nil, errkind.New(errkind.ResourceExhausted, "active preview count exceeds configured ceiling")
	}
	m.mu.Unlock()

	port, err := m.ports.Allocate()
	if err != nil {
		return nil, errkind.Wrap(errkind.ResourceExhausted, "port allocation failed", err)
	}

	workDir, err := os.MkdirTemp("", fmt.Sprintf("apploom-preview-%s-*", projectID))
	if err != nil {
		m.ports.Release(port)
		return nil, errkind.Wrap(errkind.PreviewBuildFailed, "create work directory", err)
	}

	env := &PreviewEnvironment{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Type:          DetectProjectType(files),
		Status:        StatusCreating,
		Port:          port,
		WorkDir:       workDir,
		ContainerName: fmt.Sprintf("apploom-preview-%s", projectID),
		CreatedAt:     time.Now(),
	}
	env.touch()

	m.mu.Lock()
	m.envs[projectID] = env
	m.mu.Unlock()

	if err := m.buildAndRun(ctx, env, files); err != nil {
		env.Status = StatusError
		env.LastError = err.Error()
		m.ports.Release(port)
		return env, err
	}

	env.Status = StatusRunning
	return env, nil
}

// buildAndRun materializes files, writes the synthesised Dockerfile,
// builds the image, and starts the container, probing health before
// returning. It is also the rebuild path UpdatePreview uses.
func (m *Manager) buildAndRun(ctx context.Context, env *PreviewEnvironment, files map[string]string) error {
	def := buildContainerDef(env.Type, m.cfg.MemoryMiB, m.cfg.CPUs)

	if err := writeTree(env.WorkDir, files); err != nil {
		return errkind.Wrap(errkind.PreviewBuildFailed, "write project tree", err)
	}
	if err := os.WriteFile(filepath.Join(env.WorkDir, "Dockerfile"), []byte(def.Dockerfile), 0o644); err != nil {
		return errkind.Wrap(errkind.PreviewBuildFailed, "write dockerfile", err)
	}

	buildCtx, cancel := context.WithTimeout(ctx, HealthProbeBudget)
	defer cancel()

	image := fmt.Sprintf("%s:latest", env.ContainerName)
	if out, err := runContainerCmd(buildCtx, m.runtime, "build", "-t", image, env.WorkDir); err != nil {
		return errkind.Wrap(errkind.PreviewBuildFailed, "image build failed: "+out, err)
	}

	// Replace any existing container under this name idempotently.
	_, _ = runContainerCmd(buildCtx, m.runtime, "rm", "-f", env.ContainerName)

	runArgs := []string{
		"run", "-d",
		"--name", env.ContainerName,
		"--network", m.cfg.Network,
		"--memory", fmt.Sprintf("%dm", def.MemoryMiB),
		"--cpus", fmt.Sprintf("%.2f", def.CPUs),
		"-p", fmt.Sprintf("%d:%d", env.Port, def.ContainerPort),
		image,
	}
	out, err := runContainerCmd(buildCtx, m.runtime, runArgs...)
	if err != nil {
		return errkind.Wrap(errkind.PreviewBuildFailed, "container run failed: "+out, err)
	}
	env.ContainerID = out

	if err := probeHealth(buildCtx, env.Port); err != nil {
		return errkind.Wrap(errkind.PreviewBuildFailed, "health probe failed", err)
	}
	return nil
}

func writeTree(dir string, files map[string]string) error {
	for path, content := range files {
		full := filepath.Join(dir, filepath.Clean("/"+path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// probeHealth is injectable in tests so they don't need a real listener
// bound to an allocated port.
var probeHealth = func(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	client := &http.Client{Timeout: 2 * time.Second}

	ticker := time.NewTicker(HealthProbeInterval)
	defer ticker.Stop()

	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UpdatePreview rewrites the working directory with files and rebuilds.
// On build failure the previous container, if still running, keeps
// serving — §4.9: "Build failure → Error status, last good container
// continues serving (if any)."
func (m *Manager) UpdatePreview(ctx context.Context, projectID string, files map[string]string) error {
	m.mu.Lock()
	env, ok := m.envs[projectID]
	m.mu.Unlock()
	if !ok {
		return errkind.New(errkind.PreviewBuildFailed, "no preview for project")
	}

	env.touch()
	if err := m.buildAndRun(ctx, env, files); err != nil {
		env.Status = StatusError
		env.LastError = err.Error()
		return err
	}
	env.Status = StatusRunning
	env.LastError = ""
	return nil
}

// StopPreview removes the container, deletes the temp directory, and
// releases the port. Idempotent, per §4.9.
func (m *Manager) StopPreview(ctx context.Context, projectID string) error {
	m.mu.Lock()
	env, ok := m.envs[projectID]
	if ok {
		delete(m.envs, projectID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.stopWatcher(projectID)

	if m.runtime != RuntimeNone && env.ContainerName != "" {
		_, _ = runContainerCmd(ctx, m.runtime, "rm", "-f", env.ContainerName)
	}
	if env.WorkDir != "" {
		_ = os.RemoveAll(env.WorkDir)
	}
	m.ports.Release(env.Port)
	env.Status = StatusStopped

	m.mu.Lock()
	for _, ch := range m.subs[projectID] {
		close(ch)
	}
	delete(m.subs, projectID)
	m.mu.Unlock()
	return nil
}

// GetStatus returns the current PreviewEnvironment for projectID,
// touching LastAccessed as an access.
func (m *Manager) GetStatus(projectID string) (*PreviewEnvironment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.envs[projectID]
	if ok {
		env.touch()
	}
	return env, ok
}

// Subscribe registers a channel that receives one ReloadEvent per
// observed commit for projectID during the preview's lifetime. The
// returned cancel func unregisters and closes the channel.
func (m *Manager) Subscribe(projectID string) (<-chan ReloadEvent, func()) {
	ch := make(chan ReloadEvent, 8)
	m.mu.Lock()
	m.subs[projectID] = append(m.subs[projectID], ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[projectID]
		for i, c := range subs {
			if c == ch {
				m.subs[projectID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// publishReload fans a ReloadEvent out to every subscriber for
// projectID, non-blocking: a slow subscriber drops events rather than
// stalling the Watcher.
func (m *Manager) publishReload(projectID, commitID string) {
	evt := ReloadEvent{ProjectID: projectID, CommitID: commitID, Timestamp: time.Now()}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[projectID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *Manager) stopWatcher(projectID string) {
	m.mu.Lock()
	cancel, ok := m.stopFns[projectID]
	if ok {
		delete(m.stopFns, projectID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Reap removes every PreviewEnvironment older than hard-expiry or idle
// past idle-expiry, per §4.9's background reaper.
func (m *Manager) Reap(ctx context.Context) []string {
	now := time.Now()

	m.mu.Lock()
	var expired []string
	for projectID, env := range m.envs {
		if now.Sub(env.CreatedAt) > m.cfg.HardExpiry || now.Sub(env.LastAccessed) > m.cfg.IdleExpiry {
			expired = append(expired, projectID)
		}
	}
	m.mu.Unlock()

	for _, projectID := range expired {
		_ = m.StopPreview(ctx, projectID)
	}
	return expired
}

// RunReaper loops Reap at pollInterval until ctx is cancelled,
// cooperatively — the reaper is owned by whoever starts it and stops
// the moment ctx is done, per the Design Notes' coroutine-control-flow
// rule against fire-and-forget background tasks.
func (m *Manager) RunReaper(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}
