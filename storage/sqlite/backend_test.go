package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
)

func openTestDB(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.Init(context.Background(), storage.InitOptions{DefaultBranch: "main"}))
	return b
}

func TestInitAndReinit(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	ok, err := b.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	head, err := b.ReadRawRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "ref: refs/heads/main\n", head)

	// Re-init with the same format is a no-op; a format change is
	// refused.
	require.NoError(t, b.Init(ctx, storage.InitOptions{DefaultBranch: "main"}))
	err = b.Init(ctx, storage.InitOptions{ObjectFormat: "sha256"})
	assert.ErrorIs(t, err, storage.ErrFormatLocked)
}

func TestLooseObjectWriteOnce(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	oid := plumbing.MustFromHex("a98c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("first")))
	// Insert-or-ignore: the second write leaves the row unchanged.
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("second")))

	data, err := b.ReadLoose(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	list, err := b.ListLoose(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRefsAndPackedRefs(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	oid := "78981922613b2afb6025042ff6bd878ac1994e85"
	require.NoError(t, b.WriteRawRef(ctx, "refs/heads/x", oid+"\n"))

	content, err := b.ReadRawRef(ctx, "refs/heads/x")
	require.NoError(t, err)
	assert.Equal(t, oid+"\n", content)

	names, err := b.ListRefNames(ctx, "refs/heads/")
	require.NoError(t, err)
	assert.Contains(t, names, "refs/heads/x")

	require.NoError(t, b.WritePackedRefs(ctx, "# pack-refs\n"+oid+" refs/heads/packed\n"))
	text, err := b.ReadPackedRefs(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "refs/heads/packed")

	require.NoError(t, b.DeleteRawRef(ctx, "refs/heads/x"))
	_, err = b.ReadRawRef(ctx, "refs/heads/x")
	assert.ErrorIs(t, err, plumbing.ErrRefNotFound)
}

func TestReflogAppend(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	require.NoError(t, b.AppendReflog(ctx, "refs/heads/main", []byte("one\n")))
	require.NoError(t, b.AppendReflog(ctx, "refs/heads/main", []byte("two\n")))

	data, err := b.ReadReflog(ctx, "refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	refs, err := b.ListReflogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/heads/main"}, refs)
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

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

func TestStateAndFlags(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	require.NoError(t, b.WriteState(ctx, "MERGE_HEAD", []byte("abc\n")))
	names, err := b.ListState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MERGE_HEAD"}, names)

	require.NoError(t, b.DeleteState(ctx, "MERGE_HEAD"))
	_, err = b.ReadState(ctx, "MERGE_HEAD")
	assert.ErrorIs(t, err, plumbing.ErrNotFound)

	require.NoError(t, b.SetDaemonExportOK(ctx, true))
	ok, err := b.DaemonExportOK(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHooksTable(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	ok, err := b.HasHook(ctx, "pre-commit")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.WriteHook(ctx, "pre-commit", []byte("#!/bin/sh\n")))
	ok, err = b.HasHook(ctx, "pre-commit")
	require.NoError(t, err)
	assert.True(t, ok)

	body, err := b.ReadHook(ctx, "pre-commit")
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(body))
}

func TestExistsMapping(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t)

	ok, err := b.Exists(ctx, "HEAD")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, "refs/heads/nope")
	require.NoError(t, err)
	assert.False(t, ok)

	oid := plumbing.MustFromHex("a98c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("x")))
	ok, err = b.Exists(ctx, "objects/a9/8c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, err)
	assert.True(t, ok)
}
