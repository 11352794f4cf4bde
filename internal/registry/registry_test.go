package registry

import (
	"context"
	"testing"
	"time"

	"apploom/internal/tester"
	"apploom/internal/vfs"
)

func TestRegistry_HandleCreatesOnFirstUseAndReusesAfter(t *testing.T) {
	r := New(nil, nil)
	h1 := r.Handle("proj-1")
	h2 := r.Handle("proj-1")
	if h1 != h2 {
		t.Fatalf("expected the same handle instance on reuse")
	}
	if h1.VFS == nil {
		t.Fatalf("expected a VFS to be initialized")
	}
}

func TestRegistry_NewProjectID_NeverCollides(t *testing.T) {
	r := New(nil, nil)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id := r.NewProjectID("todo-app")
		if seen[id] {
			t.Fatalf("got duplicate project id %q", id)
		}
		seen[id] = true
	}
}

func TestRegistry_HandleLockSerializesWriters(t *testing.T) {
	r := New(nil, nil)
	h := r.Handle("proj-1")

	h.Lock()
	unlocked := make(chan struct{})
	go func() {
		h.Lock()
		close(unlocked)
		h.Unlock()
	}()

	select {
	case <-unlocked:
		tester.True(t, false, "second writer acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}
	h.Unlock()

	select {
	case <-unlocked:
	case <-time.After(time.Second):
		tester.True(t, false, "second writer never acquired the lock after release")
	}
}

func TestRegistry_WatchPreview_NoopWithoutManager(t *testing.T) {
	r := New(nil, nil)
	r.WatchPreview(context.Background(), "proj-1", 10*time.Millisecond)
	// must not panic and must not register a handle implicitly: with no
	// manager, WatchPreview returns before calling Handle()
	if len(r.Projects()) != 0 {
		t.Fatalf("got %d projects, want 0", len(r.Projects()))
	}
}

func TestRegistry_Close_RemovesHandle(t *testing.T) {
	r := New(nil, nil)
	r.Handle("proj-1")
	if err := r.Close(context.Background(), "proj-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Projects()) != 0 {
		t.Fatalf("expected no projects after close, got %v", r.Projects())
	}
}

func TestVFSProjectSource_FilesReturnsCommitSnapshot(t *testing.T) {
	h := &Handle{}
	h.VFS = vfs.New("proj-1")
	_ = h.VFS.WriteFile("a.txt", "hello")
	commit, err := h.VFS.Commit("initial")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src := vfsProjectSource{v: h.VFS}
	if src.CurrentCommitID() != commit.ID {
		t.Fatalf("got %q, want %q", src.CurrentCommitID(), commit.ID)
	}
	files, err := src.Files(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files["a.txt"] != "hello" {
		t.Fatalf("got %q, want hello", files["a.txt"])
	}
}
