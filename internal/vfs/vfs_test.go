package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVFS_RollbackScenario(t *testing.T) {
	v := New("proj-1")

	require.NoError(t, v.WriteFile("main.py", "print('hello')"))
	c1, err := v.Commit("v1")
	require.NoError(t, err)

	require.NoError(t, v.WriteFile("main.py", "print('world')"))
	_, err = v.Commit("v2")
	require.NoError(t, err)

	require.NoError(t, v.Rollback(c1.ID))

	content, err := v.ReadFile("main.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hello')", content)
	assert.Equal(t, c1.ID, v.CurrentCommitID())
	assert.Len(t, v.GetHistory(), 2)
}

func TestVFS_WriteFileStatusTransitions(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("a.txt", "one"))
	assert.Equal(t, StatusAdded, v.files["a.txt"].Status)

	_, err := v.Commit("c1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, v.files["a.txt"].Status)

	require.NoError(t, v.WriteFile("a.txt", "one"))
	assert.Equal(t, StatusUnchanged, v.files["a.txt"].Status, "rewriting identical content must not mark modified")

	require.NoError(t, v.WriteFile("a.txt", "two"))
	assert.Equal(t, StatusModified, v.files["a.txt"].Status)
}

func TestVFS_DeleteExcludedFromExport(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("keep.txt", "k"))
	require.NoError(t, v.WriteFile("drop.txt", "d"))
	_, err := v.Commit("c1")
	require.NoError(t, err)

	require.NoError(t, v.DeleteFile("drop.txt"))
	_, err = v.Commit("c2")
	require.NoError(t, err)

	_, err = v.ReadFile("drop.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)

	dir := t.TempDir()
	require.NoError(t, v.ExportToDisk(context.Background(), dir, ""))
	_, statErr := os.Stat(filepath.Join(dir, "drop.txt"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "keep.txt"))
	assert.NoError(t, statErr)
}

func TestVFS_GetDiff_AgainstEmpty(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("a.txt", "content"))
	diff, err := v.GetDiff("")
	require.NoError(t, err)
	require.Len(t, diff, 1)
	assert.Equal(t, StatusAdded, diff[0].Status)
	assert.Equal(t, "content", diff[0].NewContent)
}

func TestVFS_GetDiff_BetweenCommits(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("a.txt", "v1"))
	c1, err := v.Commit("c1")
	require.NoError(t, err)

	require.NoError(t, v.WriteFile("a.txt", "v2"))
	require.NoError(t, v.WriteFile("b.txt", "new"))

	diff, err := v.GetDiff(c1.ID)
	require.NoError(t, err)
	assert.Len(t, diff, 2)
}

func TestVFS_CommitIDsAreUnique(t *testing.T) {
	v := New("proj-1")
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		require.NoError(t, v.WriteFile("f.txt", string(rune('a'+i))))
		c, err := v.Commit("msg")
		require.NoError(t, err)
		assert.False(t, seen[c.ID], "commit id %s reused", c.ID)
		seen[c.ID] = true
	}
}

func TestVFS_ExportImportRoundTrip(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("src/main.go", "package main"))
	require.NoError(t, v.WriteFile("README.md", "hello"))
	_, err := v.Commit("c1")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, v.ExportToDisk(context.Background(), dir, ""))

	v2 := New("proj-2")
	require.NoError(t, v2.ImportFromDisk(dir))

	content, err := v2.ReadFile("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", content)
}

func TestVFS_BranchAndCheckout(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("a.txt", "main-content"))
	mainCommit, err := v.Commit("main c1")
	require.NoError(t, err)

	require.NoError(t, v.Branch("feature"))
	require.NoError(t, v.Checkout("feature"))
	require.NoError(t, v.WriteFile("a.txt", "feature-content"))
	_, err = v.Commit("feature c1")
	require.NoError(t, err)

	require.NoError(t, v.Checkout("main"))
	content, err := v.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "main-content", content)
	assert.Equal(t, mainCommit.ID, v.CurrentCommitID())
}

func TestVFS_PathTraversalRejected(t *testing.T) {
	v := New("proj-1")
	err := v.WriteFile("../escape.txt", "x")
	assert.ErrorIs(t, err, ErrPathInvalid)
}

func TestVFS_SnapshotEncodeDecodeRoundTrip(t *testing.T) {
	v := New("proj-1")
	require.NoError(t, v.WriteFile("a.txt", "content"))
	c, err := v.Commit("c1")
	require.NoError(t, err)

	raw, err := v.EncodeSnapshot(c.ID)
	require.NoError(t, err)

	projectID, decoded, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", projectID)
	assert.Equal(t, c.ID, decoded.ID)
	assert.Equal(t, "content", decoded.Files["a.txt"].Content)
}
