package gitvault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
)

func TestCheckoutBranchMaterializesTree(t *testing.T) {
	ctx := context.Background()
	r, wt, base := mergeFixture(t)

	commitOnBranch(t, r, "refs/heads/feat", base, "extra.txt", "x\n", "feat")

	require.NoError(t, r.Checkout(ctx, wt, "feat", CheckoutOptions{}))

	head, err := r.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, plumbing.SymbolicReference, head.Type())
	assert.Equal(t, plumbing.ReferenceName("refs/heads/feat"), head.Target())

	data, err := wt.Read("extra.txt")
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data))

	idx, err := r.backend.ReadIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx.HasPath("extra.txt"))
	assert.True(t, idx.HasPath("f"))

	entries, err := r.ReadReflog(ctx, "HEAD")
	require.NoError(t, err)
	assert.Contains(t, entries[len(entries)-1].Message, "checkout: moving from")
}

func TestCheckoutDetached(t *testing.T) {
	ctx := context.Background()
	r, wt, base := mergeFixture(t)

	require.NoError(t, r.Checkout(ctx, wt, base.String(), CheckoutOptions{}))

	head, err := r.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, plumbing.HashReference, head.Type())
	assert.Equal(t, base, head.Hash())
}

func TestCheckoutRemovesStaleFiles(t *testing.T) {
	ctx := context.Background()
	r, wt, base := mergeFixture(t)

	// main gains a second file; checking out the base drops it.
	commitOnBranch(t, r, "refs/heads/main", base, "stale.txt", "s\n", "second")
	require.NoError(t, r.Checkout(ctx, wt, "main", CheckoutOptions{}))
	_, err := wt.Read("stale.txt")
	require.NoError(t, err)

	require.NoError(t, r.Checkout(ctx, wt, base.String(), CheckoutOptions{}))
	_, err = wt.Read("stale.txt")
	assert.ErrorIs(t, err, plumbing.ErrNotFound)
}

func TestResetModes(t *testing.T) {
	ctx := context.Background()
	r, wt, base := mergeFixture(t)

	second := commitOnBranch(t, r, "refs/heads/main", base, "g", "v2\n", "second")
	require.NoError(t, r.Checkout(ctx, wt, "main", CheckoutOptions{}))

	// Soft: ref moves, index still matches the second commit.
	require.NoError(t, r.Reset(ctx, wt, base.String(), SoftReset))
	head, err := r.ResolveOID(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, base, head)

	idx, err := r.backend.ReadIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx.HasPath("g"))

	origHead, err := r.backend.ReadState(ctx, "ORIG_HEAD")
	require.NoError(t, err)
	assert.Equal(t, second.String()+"\n", string(origHead))

	// Mixed: the index follows the target commit.
	require.NoError(t, r.Reset(ctx, wt, second.String(), MixedReset))
	idx, err = r.backend.ReadIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx.HasPath("g"))

	require.NoError(t, r.Reset(ctx, wt, base.String(), MixedReset))
	idx, err = r.backend.ReadIndex(ctx)
	require.NoError(t, err)
	assert.False(t, idx.HasPath("g"))

	// Hard: the worktree follows too.
	require.NoError(t, r.Reset(ctx, wt, second.String(), HardReset))
	data, err := wt.Read("g")
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(data))

	require.NoError(t, r.Reset(ctx, wt, base.String(), HardReset))
	_, err = wt.Read("g")
	assert.ErrorIs(t, err, plumbing.ErrNotFound)
}

func TestSubmodulesParsing(t *testing.T) {
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	gitmodules := `[submodule "libfoo"]
	path = vendor/libfoo
	url = https://example.com/libfoo.git
[submodule "libbar"]
	path = vendor/libbar
	url = https://example.com/libbar.git
	branch = stable
[submodule "libfoo"]
	branch = main
`
	require.NoError(t, wt.Write(".gitmodules", []byte(gitmodules)))

	subs, err := r.Submodules(wt)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	// Duplicate sections merge field-wise, later values winning.
	foo := subs[0]
	assert.Equal(t, "libfoo", foo.Name)
	assert.Equal(t, "vendor/libfoo", foo.Path)
	assert.Equal(t, "main", foo.Branch)

	bar, err := r.Submodule(wt, "vendor/libbar")
	require.NoError(t, err)
	assert.Equal(t, "stable", bar.Branch)

	_, err = r.Submodule(wt, "vendor/missing")
	assert.ErrorIs(t, err, plumbing.ErrNotFound)
}

func TestSubmodulesAbsentFile(t *testing.T) {
	r := testBackends(t)["memory"]()
	subs, err := r.Submodules(NewMemWorktree())
	require.NoError(t, err)
	assert.Empty(t, subs)
}
