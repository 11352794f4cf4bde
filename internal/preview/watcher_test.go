package preview

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeProjectSource struct {
	mu      sync.Mutex
	commits []string
	idx     int
}

func (f *fakeProjectSource) CurrentCommitID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.commits) {
		return f.commits[len(f.commits)-1]
	}
	c := f.commits[f.idx]
	f.idx++
	return c
}

func (f *fakeProjectSource) Files(ctx context.Context) (map[string]string, error) {
	return map[string]string{"index.html": "<html></html>"}, nil
}

func TestManager_WatchProject_OneRebuildPerCommit(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch, cancel := m.Subscribe("proj-1")
	defer cancel()

	source := &fakeProjectSource{commits: []string{"", "c1", "c1", "c2", "c2", "c3"}}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	m.WatchProject(watchCtx, "proj-1", source, 10*time.Millisecond)

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case evt := <-ch:
			seen[evt.CommitID] = true
		case <-deadline:
			t.Fatalf("timed out, saw commits: %v", seen)
		}
	}

	for _, want := range []string{"c1", "c2", "c3"} {
		if !seen[want] {
			t.Fatalf("expected to observe commit %q, saw %v", want, seen)
		}
	}

	env, ok := m.GetStatus("proj-1")
	if !ok {
		t.Fatalf("expected preview to exist")
	}
	if env.CommitID == "" {
		t.Fatalf("expected env.CommitID to be set after watch loop updates")
	}
}

func TestManager_WatchProject_ReplacesPriorWatcher(t *testing.T) {
	withStubbedExec(t, nil, nil)
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.CreatePreview(ctx, "proj-1", map[string]string{"index.html": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch, cancel := m.Subscribe("proj-1")
	defer cancel()

	source1 := &fakeProjectSource{commits: []string{"", "c1"}}
	watchCtx1, cancel1 := context.WithCancel(ctx)
	defer cancel1()
	m.WatchProject(watchCtx1, "proj-1", source1, time.Hour)

	source2 := &fakeProjectSource{commits: []string{"", "c2"}}
	watchCtx2, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	m.WatchProject(watchCtx2, "proj-1", source2, 10*time.Millisecond)

	select {
	case evt := <-ch:
		if evt.CommitID != "c2" {
			t.Fatalf("got commit %q from replaced watcher, want c2", evt.CommitID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reload event from second watcher")
	}
}
