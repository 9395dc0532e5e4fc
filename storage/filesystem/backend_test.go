package filesystem

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
	"github.com/gitvault/gitvault/storage/filesystem/dotgit"
)

func initialized(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend(memfs.New())
	require.NoError(t, b.Init(context.Background(), storage.InitOptions{DefaultBranch: "main"}))
	return b
}

func TestInitLayout(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	head, err := b.ReadRawRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "ref: refs/heads/main\n", head)

	for _, p := range []string{"config", "description", "objects/pack", "refs/heads", "hooks", "info"} {
		ok, err := b.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	ok, err := b.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLooseObjectLayoutAndWriteOnce(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	oid := plumbing.MustFromHex("a98c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("first-bytes")))

	ok, err := b.Exists(ctx, "objects/a9/8c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, err)
	assert.True(t, ok)

	// Write-once: a second write with different bytes is skipped.
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("other-bytes")))
	data, err := b.ReadLoose(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, []byte("first-bytes"), data)

	list, err := b.ListLoose(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, oid, list[0])
}

func TestReadLooseNotFound(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	missing := plumbing.MustFromHex("78981922613b2afb6025042ff6bd878ac1994e85")
	_, err := b.ReadLoose(ctx, missing)
	assert.ErrorIs(t, err, plumbing.ErrObjectNotFound)
}

func TestRefFilesAndListing(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	require.NoError(t, b.WriteRawRef(ctx, "refs/heads/x", "78981922613b2afb6025042ff6bd878ac1994e85\n"))
	require.NoError(t, b.WriteRawRef(ctx, "refs/tags/v1", "78981922613b2afb6025042ff6bd878ac1994e85\n"))

	names, err := b.ListRefNames(ctx, "refs/heads/")
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/heads/x"}, names)

	names, err = b.ListRefNames(ctx, "")
	require.NoError(t, err)
	assert.Len(t, names, 2)

	require.NoError(t, b.DeleteRawRef(ctx, "refs/heads/x"))
	_, err = b.ReadRawRef(ctx, "refs/heads/x")
	assert.ErrorIs(t, err, plumbing.ErrRefNotFound)
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	idx := index.New()
	idx.Insert(&index.Entry{
		Name: "a.txt",
		Hash: plumbing.MustFromHex("78981922613b2afb6025042ff6bd878ac1994e85"),
		Mode: plumbing.Regular,
	})
	require.NoError(t, b.WriteIndex(ctx, idx))

	got, err := b.ReadIndex(ctx)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "a.txt", got.Entries[0].Name)
}

func TestIndexLockExcludes(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	lock, err := b.LockIndex(ctx)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.LockIndex(cancelled)
	require.Error(t, err)

	require.NoError(t, lock.Unlock())
	lock2, err := b.LockIndex(ctx)
	require.NoError(t, err)
	require.NoError(t, lock2.Unlock())
}

func TestReflogAppendAndList(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	require.NoError(t, b.AppendReflog(ctx, "refs/heads/main", []byte("line1\n")))
	require.NoError(t, b.AppendReflog(ctx, "refs/heads/main", []byte("line2\n")))

	data, err := b.ReadReflog(ctx, "refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(data))

	refs, err := b.ListReflogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/heads/main"}, refs)
}

func TestStateFiles(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	require.NoError(t, b.WriteState(ctx, "MERGE_HEAD", []byte("abc\n")))
	require.NoError(t, b.WriteState(ctx, "sequencer/todo", []byte("pick x\n")))

	data, err := b.ReadState(ctx, "MERGE_HEAD")
	require.NoError(t, err)
	assert.Equal(t, "abc\n", string(data))

	names, err := b.ListState(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "MERGE_HEAD")
	assert.Contains(t, names, "sequencer/todo")

	require.NoError(t, b.DeleteState(ctx, "MERGE_HEAD"))
	_, err = b.ReadState(ctx, "MERGE_HEAD")
	assert.ErrorIs(t, err, plumbing.ErrNotFound)
}

func TestWorktreeSpecificRefRouting(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()

	main := NewBackend(fs)
	require.NoError(t, main.Init(ctx, storage.InitOptions{DefaultBranch: "main"}))
	require.NoError(t, main.AddWorktree(ctx, "wt1", "/work/wt1"))

	linked := NewLinkedBackend(fs, "wt1")

	oid := "78981922613b2afb6025042ff6bd878ac1994e85"
	require.NoError(t, linked.WriteRawRef(ctx, "HEAD", oid+"\n"))
	require.NoError(t, linked.WriteRawRef(ctx, "refs/heads/x", oid+"\n"))
	require.NoError(t, linked.WriteState(ctx, "MERGE_HEAD", []byte(oid+"\n")))

	// Worktree-specific files landed in the linked gitdir.
	data, err := util.ReadFile(fs, "worktrees/wt1/HEAD")
	require.NoError(t, err)
	assert.Equal(t, oid+"\n", string(data))

	_, err = util.ReadFile(fs, "worktrees/wt1/MERGE_HEAD")
	require.NoError(t, err)

	// Shared refs landed in the main gitdir.
	data, err = util.ReadFile(fs, "refs/heads/x")
	require.NoError(t, err)
	assert.Equal(t, oid+"\n", string(data))

	// The main gitdir's HEAD is untouched.
	head, err := main.ReadRawRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "ref: refs/heads/main\n", head)
}

func TestWorktreeScaffolding(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	require.NoError(t, b.AddWorktree(ctx, "wt1", "/work/wt1"))

	list, err := b.ListWorktrees(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wt1"}, list)

	for _, p := range []string{"worktrees/wt1/HEAD", "worktrees/wt1/gitdir", "worktrees/wt1/commondir"} {
		ok, err := b.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	require.NoError(t, b.RemoveWorktree(ctx, "wt1"))
	list, err = b.ListWorktrees(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDiscoverLinkedGitdir(t *testing.T) {
	main, wt, linked := dotgit.DiscoverLinked("/repo/.git/worktrees/wt1")
	assert.True(t, linked)
	assert.Equal(t, "/repo/.git", main)
	assert.Equal(t, "wt1", wt)

	_, _, linked = dotgit.DiscoverLinked("/repo/.git")
	assert.False(t, linked)
}

func TestDaemonExportFlag(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	ok, err := b.DaemonExportOK(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SetDaemonExportOK(ctx, true))
	ok, err = b.DaemonExportOK(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHooksPathOverride(t *testing.T) {
	ctx := context.Background()
	b := initialized(t)

	raw, err := b.ReadConfig(ctx)
	require.NoError(t, err)
	raw.Section("core").SetOption("hooksPath", "custom-hooks")
	require.NoError(t, b.WriteConfig(ctx, raw))

	require.NoError(t, b.WriteHook(ctx, "pre-commit", []byte("#!/bin/sh\n")))
	ok, err := b.HasHook(ctx, "pre-commit")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, "custom-hooks/pre-commit")
	require.NoError(t, err)
	assert.True(t, ok)
}
