package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/storage"
)

func TestExistsTracksWrittenFiles(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	ok, err := b.Exists(ctx, "HEAD")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Init(ctx, storage.InitOptions{DefaultBranch: "main"}))

	for _, p := range []string{"HEAD", "config"} {
		ok, err := b.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	oid := plumbing.MustFromHex("a98c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("z")))
	ok, err = b.Exists(ctx, "objects/a9/8c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseClears(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	require.NoError(t, b.Init(ctx, storage.InitOptions{}))

	require.NoError(t, b.Close())

	ok, err := b.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Exists(ctx, "HEAD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteOnceLooseObjects(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	require.NoError(t, b.Init(ctx, storage.InitOptions{}))

	oid := plumbing.MustFromHex("a98c46c71c932a57a1ec95007803ea5509cc6316")
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("first")))
	require.NoError(t, b.WriteLoose(ctx, oid, []byte("second")))

	data, err := b.ReadLoose(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestRefLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	require.NoError(t, b.Init(ctx, storage.InitOptions{DefaultBranch: "main"}))

	head, err := b.ReadRawRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "ref: refs/heads/main\n", head)

	require.NoError(t, b.WriteRawRef(ctx, "refs/heads/x", "abc\n"))
	names, err := b.ListRefNames(ctx, "refs/heads/")
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/heads/x"}, names)

	require.NoError(t, b.DeleteRawRef(ctx, "refs/heads/x"))
	_, err = b.ReadRawRef(ctx, "refs/heads/x")
	assert.ErrorIs(t, err, plumbing.ErrRefNotFound)
}
