package gitvault

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/plumbing/object"
	"github.com/gitvault/gitvault/storage"
	"github.com/gitvault/gitvault/storage/filesystem"
	"github.com/gitvault/gitvault/storage/memory"
)

const emptyTreeSHA1 = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

func testSig() *object.Signature {
	return &object.Signature{
		Name:  "A",
		Email: "a@x",
		When:  time.Unix(1700000000, 0).In(time.FixedZone("+0000", 0)),
	}
}

// backends under test: each returns a fresh initialized repository.
func testBackends(t *testing.T) map[string]func() *Repository {
	t.Helper()
	newRepo := func(b storage.Backend) *Repository {
		r := New(b)
		require.NoError(t, r.Init(context.Background(), storage.InitOptions{DefaultBranch: "main"}))
		return r
	}
	return map[string]func() *Repository{
		"memory": func() *Repository {
			return newRepo(memory.NewBackend())
		},
		"filesystem": func() *Repository {
			return newRepo(filesystem.NewBackend(memfs.New()))
		},
	}
}

func TestInitWritesBareStructure(t *testing.T) {
	for name, mk := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := mk()

			head, err := r.Head(ctx)
			require.NoError(t, err)
			assert.Equal(t, plumbing.SymbolicReference, head.Type())
			assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), head.Target())

			cfg, err := r.typedConfig(ctx)
			require.NoError(t, err)
			assert.True(t, cfg.Core.Bare)
			assert.Equal(t, "main", cfg.Init.DefaultBranch)
			assert.Equal(t, format.Version0, cfg.Core.RepositoryFormatVersion)

			ok, err := r.backend.IsInitialized(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestReInitRefusesFormatChange(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewBackend())
	require.NoError(t, r.Init(ctx, storage.InitOptions{}))

	// Same format: no-op.
	require.NoError(t, r.Init(ctx, storage.InitOptions{ObjectFormat: format.SHA1}))

	err := r.Init(ctx, storage.InitOptions{ObjectFormat: format.SHA256})
	assert.ErrorIs(t, err, storage.ErrFormatLocked)
}

func TestInitSHA256SetsExtension(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewBackend())
	require.NoError(t, r.Init(ctx, storage.InitOptions{ObjectFormat: format.SHA256}))

	f, err := r.ObjectFormat(ctx)
	require.NoError(t, err)
	assert.Equal(t, format.SHA256, f)

	cfg, err := r.typedConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, format.Version1, cfg.Core.RepositoryFormatVersion)
}

func TestWriteReadObjectRoundTrip(t *testing.T) {
	for name, mk := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := mk()

			oid, err := r.WriteObject(ctx, plumbing.BlobObject, []byte("# r\n"), plumbing.ContentForm, false)
			require.NoError(t, err)
			assert.Equal(t, "a98c46c71c932a57a1ec95007803ea5509cc6316", oid.String())

			obj, err := r.ReadObject(ctx, oid, plumbing.ContentForm)
			require.NoError(t, err)
			assert.Equal(t, plumbing.BlobObject, obj.Type)
			assert.Equal(t, []byte("# r\n"), obj.Data)

			wrapped, err := r.ReadObject(ctx, oid, plumbing.WrappedForm)
			require.NoError(t, err)
			assert.Equal(t, []byte("blob 4\x00# r\n"), wrapped.Data)

			deflated, err := r.ReadObject(ctx, oid, plumbing.DeflatedForm)
			require.NoError(t, err)
			assert.Equal(t, plumbing.BlobObject, deflated.Type)

			// The deflated form is what write_object accepts back.
			again, err := r.WriteObject(ctx, plumbing.BlobObject, deflated.Data, plumbing.DeflatedForm, false)
			require.NoError(t, err)
			assert.Equal(t, oid, again)
		})
	}
}

func TestWriteObjectIdempotent(t *testing.T) {
	for name, mk := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := mk()

			oid1, err := r.WriteObject(ctx, plumbing.BlobObject, []byte("x"), plumbing.ContentForm, false)
			require.NoError(t, err)
			before, err := r.backend.ListLoose(ctx)
			require.NoError(t, err)

			oid2, err := r.WriteObject(ctx, plumbing.BlobObject, []byte("x"), plumbing.ContentForm, false)
			require.NoError(t, err)
			after, err := r.backend.ListLoose(ctx)
			require.NoError(t, err)

			assert.Equal(t, oid1, oid2)
			assert.Len(t, after, len(before))
		})
	}
}

func TestWriteObjectDryRun(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()

	oid, err := r.WriteObject(ctx, plumbing.BlobObject, []byte("dry"), plumbing.ContentForm, true)
	require.NoError(t, err)
	assert.False(t, oid.IsZero())

	_, err = r.ReadObject(ctx, oid, plumbing.ContentForm)
	assert.ErrorIs(t, err, plumbing.ErrObjectNotFound)
}

func TestReadObjectNotFound(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()

	missing := plumbing.MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70")
	_, err := r.ReadObject(ctx, missing, plumbing.ContentForm)
	assert.ErrorIs(t, err, plumbing.ErrObjectNotFound)
}

func TestEmptyIndexBuildsEmptyTree(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()

	oid, err := r.BuildTree(ctx, index.New(), true)
	require.NoError(t, err)
	assert.Equal(t, emptyTreeSHA1, oid.String())
}

func TestBuildTreeNestedAndSorted(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()

	blob, err := r.WriteObject(ctx, plumbing.BlobObject, []byte("a\n"), plumbing.ContentForm, false)
	require.NoError(t, err)

	idx := index.New()
	for _, p := range []string{"dir/inner.txt", "dir-file", "top.txt"} {
		idx.Insert(&index.Entry{Name: p, Hash: blob, Mode: plumbing.Regular})
	}

	oid, err := r.BuildTree(ctx, idx, false)
	require.NoError(t, err)

	obj, err := r.ReadObject(ctx, oid, plumbing.ContentForm)
	require.NoError(t, err)
	tree, err := object.DecodeTree(obj.Data, 20)
	require.NoError(t, err)

	var names []string
	for _, e := range tree.Entries {
		names = append(names, e.Name)
	}
	// Canonical order: "dir" sorts as "dir/", after "dir-file".
	assert.Equal(t, []string{"dir-file", "dir", "top.txt"}, names)
	assert.Equal(t, plumbing.Dir, tree.Entry("dir").Mode)

	// Dry-run computes the same ID without writing more objects.
	dry, err := r.BuildTree(ctx, idx, true)
	require.NoError(t, err)
	assert.Equal(t, oid, dry)
}

// Scenario: initial commit on a fresh bare repo.
func TestInitialCommit(t *testing.T) {
	for name, mk := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := mk()
			wt := NewMemWorktree()

			require.NoError(t, wt.Write("README.md", []byte("# r\n")))
			require.NoError(t, r.Add(ctx, wt, []string{"README.md"}, AddOptions{}))

			oid, err := r.Commit(ctx, wt, "first", CommitOptions{Author: testSig(), Committer: testSig()})
			require.NoError(t, err)

			// HEAD stayed a symref to the branch and the branch holds
			// the commit.
			head, err := r.Head(ctx)
			require.NoError(t, err)
			assert.Equal(t, plumbing.SymbolicReference, head.Type())
			assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), head.Target())

			resolved, err := r.ResolveOID(ctx, "refs/heads/main")
			require.NoError(t, err)
			assert.Equal(t, oid, resolved)

			commit, err := readCommit(ctx, r.backend, nil, oid)
			require.NoError(t, err)
			assert.Empty(t, commit.Parents)
			assert.Equal(t, "first\n", commit.Message)

			tree, err := readTree(ctx, r.backend, nil, commit.Tree)
			require.NoError(t, err)
			require.Len(t, tree.Entries, 1)
			assert.Equal(t, "README.md", tree.Entries[0].Name)
			assert.Equal(t, plumbing.Regular, tree.Entries[0].Mode)
			assert.Equal(t, "a98c46c71c932a57a1ec95007803ea5509cc6316", tree.Entries[0].Hash.String())

			// Exactly one reflog line, from the zero OID.
			entries, err := r.ReadReflog(ctx, "refs/heads/main")
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.True(t, entries[0].Old.IsZero())
			assert.Equal(t, oid, entries[0].New)
			assert.Equal(t, "A", entries[0].Name)
			assert.Equal(t, "a@x", entries[0].Email)
			assert.Equal(t, "commit (initial): first", entries[0].Message)
		})
	}
}

func TestCommitChainsParents(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))
	first, err := r.Commit(ctx, wt, "first", CommitOptions{Author: testSig()})
	require.NoError(t, err)

	require.NoError(t, wt.Write("f", []byte("b\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))
	second, err := r.Commit(ctx, wt, "second", CommitOptions{Author: testSig()})
	require.NoError(t, err)

	commit, err := readCommit(ctx, r.backend, nil, second)
	require.NoError(t, err)
	require.Len(t, commit.Parents, 1)
	assert.Equal(t, first, commit.Parents[0])

	head, err := r.ResolveOID(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, second, head)
}

func TestCommitAmend(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))
	_, err := r.Commit(ctx, wt, "first", CommitOptions{Author: testSig()})
	require.NoError(t, err)

	require.NoError(t, wt.Write("g", []byte("b\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"g"}, AddOptions{}))
	second, err := r.Commit(ctx, wt, "second", CommitOptions{Author: testSig()})
	require.NoError(t, err)

	amended, err := r.Commit(ctx, wt, "", CommitOptions{Author: testSig(), Amend: true})
	require.NoError(t, err)
	assert.NotEqual(t, second, amended)

	commit, err := readCommit(ctx, r.backend, nil, amended)
	require.NoError(t, err)
	// Amend inherits the replaced commit's parents and message.
	secondCommit, err := readCommit(ctx, r.backend, nil, second)
	require.NoError(t, err)
	assert.Equal(t, secondCommit.Parents, commit.Parents)
	assert.Equal(t, "second\n", commit.Message)

	entries, err := r.ReadReflog(ctx, "refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, "commit (amend): second", entries[len(entries)-1].Message)
}

func TestCommitAmendOnEmptyHistory(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	_, err := r.Commit(ctx, wt, "nope", CommitOptions{Author: testSig(), Amend: true})
	assert.ErrorIs(t, err, plumbing.ErrNoCommit)
}

func TestCommitRequiresMessage(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	_, err := r.Commit(ctx, wt, "", CommitOptions{Author: testSig()})
	assert.ErrorIs(t, err, plumbing.ErrMissingParameter)
}

func TestCommitRequiresAuthorName(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	_, err := r.Commit(ctx, wt, "m", CommitOptions{Author: &object.Signature{Email: "a@x"}})
	assert.ErrorIs(t, err, plumbing.ErrMissingName)
}

func TestCommitFailsOnUnmergedPaths(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()
	wt := NewMemWorktree()

	blob := plumbing.MustFromHex("78981922613b2afb6025042ff6bd878ac1994e85")
	idx := index.New()
	idx.Insert(&index.Entry{Name: "f", Hash: blob, Mode: plumbing.Regular, Stage: index.OurMode})
	idx.Insert(&index.Entry{Name: "f", Hash: blob, Mode: plumbing.Regular, Stage: index.TheirMode})
	require.NoError(t, r.backend.WriteIndex(ctx, idx))

	_, err := r.Commit(ctx, wt, "m", CommitOptions{Author: testSig()})
	assert.ErrorIs(t, err, plumbing.ErrUnmergedPaths)
}

func TestErrorsCarryCallerTag(t *testing.T) {
	ctx := context.Background()
	r := testBackends(t)["memory"]()

	_, err := r.Commit(ctx, NewMemWorktree(), "", CommitOptions{Author: testSig(), Amend: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gitvault.commit:")
}
