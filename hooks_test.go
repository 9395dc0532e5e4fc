package gitvault

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor records invocations and replays scripted results.
type fakeExecutor struct {
	results map[string]HookResult
	runs    []HookInvocation
	mutate  func(inv HookInvocation)
}

func (f *fakeExecutor) Run(ctx context.Context, inv HookInvocation) (HookResult, error) {
	f.runs = append(f.runs, inv)
	if f.mutate != nil {
		f.mutate(inv)
	}
	if res, ok := f.results[inv.Name]; ok {
		return res, nil
	}
	return HookResult{ExitCode: 0}, nil
}

func TestRunHookMissingSynthesizesSuccess(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	r := New(testBackends(t)["memory"]().backend, WithHookExecutor(exec))

	res, err := r.RunHook(ctx, "pre-commit", HookContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, exec.runs)
}

func TestRunHookNonZeroExit(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{results: map[string]HookResult{
		"pre-commit": {ExitCode: 1, Stderr: "lint failed"},
	}}
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithHookExecutor(exec))
	require.NoError(t, r.backend.WriteHook(ctx, "pre-commit", []byte("#!/bin/sh\nexit 1\n")))

	_, err := r.RunHook(ctx, "pre-commit", HookContext{}, nil)
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "pre-commit", hookErr.Hook)
	assert.Equal(t, 1, hookErr.ExitCode)
	assert.Equal(t, "lint failed", hookErr.Stderr)
}

func TestHookEnvLayering(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithHookExecutor(exec))
	require.NoError(t, r.backend.WriteHook(ctx, "post-checkout", []byte("x")))

	_, err := r.RunHook(ctx, "post-checkout", HookContext{
		WorkTree: "/wt", Branch: "main", Head: "abc",
	}, nil, "old", "new", "1")
	require.NoError(t, err)

	require.Len(t, exec.runs, 1)
	inv := exec.runs[0]
	assert.Contains(t, inv.Env, "GIT_WORK_TREE=/wt")
	assert.Contains(t, inv.Env, "GIT_BRANCH=main")
	assert.Contains(t, inv.Env, "GIT_HEAD=abc")
	assert.Equal(t, []string{"old", "new", "1"}, inv.Args)
}

func TestPreCommitHookAbortsCommit(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{results: map[string]HookResult{
		"pre-commit": {ExitCode: 2},
	}}
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithHookExecutor(exec))
	require.NoError(t, r.backend.WriteHook(ctx, "pre-commit", []byte("x")))

	wt := NewMemWorktree()
	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	_, err := r.Commit(ctx, wt, "m", CommitOptions{Author: testSig()})
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)

	// Nothing was committed.
	_, err = r.ResolveOID(ctx, "refs/heads/main")
	assert.Error(t, err)
}

func TestNoVerifySkipsPreCommit(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{results: map[string]HookResult{
		"pre-commit": {ExitCode: 2},
	}}
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithHookExecutor(exec))
	require.NoError(t, r.backend.WriteHook(ctx, "pre-commit", []byte("x")))

	wt := NewMemWorktree()
	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	_, err := r.Commit(ctx, wt, "m", CommitOptions{Author: testSig(), NoVerify: true})
	require.NoError(t, err)
}

func TestPostCommitFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{results: map[string]HookResult{
		"post-commit": {ExitCode: 1},
	}}
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithHookExecutor(exec))
	require.NoError(t, r.backend.WriteHook(ctx, "post-commit", []byte("x")))

	wt := NewMemWorktree()
	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	oid, err := r.Commit(ctx, wt, "m", CommitOptions{Author: testSig()})
	require.NoError(t, err)
	assert.False(t, oid.IsZero())
}

func TestCommitMsgHookMutatesMessage(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	exec.mutate = func(inv HookInvocation) {
		if inv.Name == "commit-msg" && len(inv.Args) == 1 {
			_ = os.WriteFile(inv.Args[0], []byte("rewritten by hook\n"), 0o644)
		}
	}
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithHookExecutor(exec))
	require.NoError(t, r.backend.WriteHook(ctx, "commit-msg", []byte("x")))

	wt := NewMemWorktree()
	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	oid, err := r.Commit(ctx, wt, "original", CommitOptions{Author: testSig()})
	require.NoError(t, err)

	commit, err := readCommit(ctx, r.backend, nil, oid)
	require.NoError(t, err)
	assert.Equal(t, "rewritten by hook\n", commit.Message)
}

func TestSignedCommitCarriesSignature(t *testing.T) {
	ctx := context.Background()
	base := testBackends(t)["memory"]()
	r := New(base.backend, WithSigner(SignerFunc(func(payload []byte) ([]byte, error) {
		return []byte("-----BEGIN PGP SIGNATURE-----\nfake\n-----END PGP SIGNATURE-----\n"), nil
	})))

	wt := NewMemWorktree()
	require.NoError(t, wt.Write("f", []byte("a\n")))
	require.NoError(t, r.Add(ctx, wt, []string{"f"}, AddOptions{}))

	oid, err := r.Commit(ctx, wt, "signed", CommitOptions{Author: testSig()})
	require.NoError(t, err)

	commit, err := readCommit(ctx, r.backend, nil, oid)
	require.NoError(t, err)
	assert.Contains(t, commit.GPGSig, "BEGIN PGP SIGNATURE")
}
