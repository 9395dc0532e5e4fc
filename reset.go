package gitvault

import (
	"context"
	"fmt"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
)

// ResetMode selects how much state a reset rewrites.
type ResetMode int

const (
	// SoftReset moves the branch ref only.
	SoftReset ResetMode = iota
	// MixedReset also rebuilds the index from the target commit.
	MixedReset
	// HardReset additionally materializes the target tree into the
	// worktree.
	HardReset
)

// Reset moves the current branch (or detached HEAD) to ref. The
// previous HEAD value is preserved in ORIG_HEAD.
func (r *Repository) Reset(ctx context.Context, wt WorktreeBackend, ref string, mode ResetMode) error {
	return wrapOp("reset", r.reset(ctx, wt, ref, mode))
}

func (r *Repository) reset(ctx context.Context, wt WorktreeBackend, ref string, mode ResetMode) error {
	if mode == HardReset && wt == nil {
		return fmt.Errorf("%w: worktree", plumbing.ErrMissingParameter)
	}

	oid, err := r.ResolveOID(ctx, ref)
	if err != nil {
		return err
	}

	prev := r.resolvedOrZero(ctx, "HEAD")
	if !prev.IsZero() {
		if err := r.backend.WriteState(ctx, "ORIG_HEAD", []byte(prev.String()+"\n")); err != nil {
			return err
		}
	}

	// Move the branch HEAD points at; detached HEAD moves itself.
	target := "HEAD"
	if content, err := r.backend.ReadRawRef(ctx, "HEAD"); err == nil {
		if t, ok := plumbing.IsSymbolicContent(content); ok {
			target = string(t)
		}
	}
	if err := r.writeRef(ctx, target, oid, true, ""); err != nil {
		return err
	}
	who := r.defaultIdentity(ctx)
	r.appendReflog(ctx, target, prev, oid, who, "reset: moving to "+ref)
	if target != "HEAD" {
		r.appendReflog(ctx, "HEAD", prev, oid, who, "reset: moving to "+ref)
	}

	if mode == SoftReset {
		return nil
	}

	cache := storage.NewObjectCache(r.backend)
	commit, err := readCommit(ctx, r.backend, cache, oid)
	if err != nil {
		return err
	}
	files, err := flattenTree(ctx, r.backend, cache, commit.Tree, "")
	if err != nil {
		return err
	}

	oldIdx, err := r.backend.ReadIndex(ctx)
	if err != nil {
		return err
	}

	if mode == HardReset {
		if err := r.materializeTree(ctx, wt, cache, files, oldIdx); err != nil {
			return err
		}
	}

	newIdx := index.New()
	for _, path := range sortedKeys(files) {
		e := files[path]
		entry := &index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode}
		entry.NormalizeStat()
		newIdx.Insert(entry)
	}
	return r.backend.WriteIndex(ctx, newIdx)
}
