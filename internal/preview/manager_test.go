package preview

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func testManagerConfig() managerConfig {
	return managerConfig{
		PortRangeStart: 20000, PortRangeEnd: 20010,
		HardExpiry: time.Hour, IdleExpiry: time.Hour,
		MaxConcurrent: 2, MemoryMiB: 256, CPUs: 1, Network: "bridge",
	}
}

func newTestManager() *Manager {
	m := NewManager(testManagerConfig())
	m.runtime = RuntimeDocker // force Available() true without exec.LookPath
	return m
}

func withStubbedExec(t *testing.T, runErr error, probeErr error) {
	t.Helper()
	origRun := runContainerCmd
	origProbe := probeHealth
	runContainerCmd = func(ctx context.Context, runtime Runtime, args ...string) (string, error) {
		if runErr != nil {
			return "boom", runErr
		}
		return "deadbeef", nil
	}
	probeHealth = func(ctx context.Context, port int) error {
		return probeErr
	}
	t.Cleanup(func() {
		runContainerCmd = origRun
		probeHealth = origProbe
	})
}

func TestManager_CreatePreview_Succeeds(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()

	env, err := m.CreatePreview(context.Background(), "proj-1", map[string]string{
		"index.html": "<html></html>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Status != StatusRunning {
		t.Fatalf("got status %v, want Running", env.Status)
	}
	if env.Port < 20000 || env.Port > 20010 {
		t.Fatalf("port %d outside configured range", env.Port)
	}
}

func TestManager_CreatePreview_BuildFailureReleasesPort(t *testing.T) {
	withStubbedExec(t, fmt.Errorf("build failed"), nil)
	m := newTestManager()

	env, err := m.CreatePreview(context.Background(), "proj-1", map[string]string{"index.html": "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if env.Status != StatusError {
		t.Fatalf("got status %v, want Error", env.Status)
	}

	// port must have been released back to the allocator
	held := map[int]bool{}
	for i := 0; i < 11; i++ {
		p, aerr := m.ports.Allocate()
		if aerr != nil {
			t.Fatalf("unexpected exhaustion: %v", aerr)
		}
		held[p] = true
	}
	if !held[env.Port] {
		t.Fatalf("expected released port %d to be allocatable again", env.Port)
	}
}

func TestManager_CreatePreview_RejectsOverCeiling(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.CreatePreview(ctx, "proj-2", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.CreatePreview(ctx, "proj-3", map[string]string{"index.html": "x"}); err == nil {
		t.Fatalf("expected ResourceExhausted error for third concurrent preview")
	}
}

func TestManager_UpdatePreview_FailureLeavesPriorContainerServing(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	ctx := context.Background()

	env, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	priorContainerID := env.ContainerID
	priorContainerName := env.ContainerName
	priorPort := env.Port

	runContainerCmd = func(ctx context.Context, runtime Runtime, args ...string) (string, error) {
		return "boom", fmt.Errorf("rebuild failed")
	}

	if err := m.UpdatePreview(ctx, "proj-1", map[string]string{"index.html": "y"}); err == nil {
		t.Fatalf("expected update error")
	}

	got, ok := m.GetStatus("proj-1")
	if !ok {
		t.Fatalf("expected preview to still exist")
	}
	if got.Status != StatusError {
		t.Fatalf("got status %v, want Error", got.Status)
	}
	if got.ContainerID != priorContainerID || got.ContainerName != priorContainerName || got.Port != priorPort {
		t.Fatalf("expected prior container identity to be preserved on failed update")
	}
}

func TestManager_StopPreview_IsIdempotent(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.StopPreview(ctx, "proj-1"); err != nil {
		t.Fatalf("unexpected error on first stop: %v", err)
	}
	if err := m.StopPreview(ctx, "proj-1"); err != nil {
		t.Fatalf("unexpected error on second stop: %v", err)
	}
	if _, ok := m.GetStatus("proj-1"); ok {
		t.Fatalf("expected preview to be gone after stop")
	}
}

func TestManager_Reap_RemovesExpiredPreviews(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	m.cfg.HardExpiry = time.Hour
	m.cfg.IdleExpiry = time.Hour
	ctx := context.Background()

	if _, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.mu.Lock()
	m.envs["proj-1"].LastAccessed = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	expired := m.Reap(ctx)
	if len(expired) != 1 || expired[0] != "proj-1" {
		t.Fatalf("got %v, want [proj-1]", expired)
	}
	if _, ok := m.GetStatus("proj-1"); ok {
		t.Fatalf("expected proj-1 to be reaped")
	}
}

func TestManager_SubscribePublishesReload(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch, cancel := m.Subscribe("proj-1")
	defer cancel()

	m.publishReload("proj-1", "commit-abc")

	select {
	case evt := <-ch:
		if evt.CommitID != "commit-abc" {
			t.Fatalf("got commit %q, want commit-abc", evt.CommitID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for reload event")
	}
}
