package gitvault

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/plumbing/object"
	"github.com/gitvault/gitvault/storage"
)

// CheckoutOptions control tree materialization.
type CheckoutOptions struct {
	// Keep leaves the worktree alone and only moves HEAD and the
	// index.
	Keep bool
}

// Checkout materializes a ref's tree into the worktree, rewrites the
// index to match and moves HEAD: a symref when the target is a branch,
// detached otherwise.
func (r *Repository) Checkout(ctx context.Context, wt WorktreeBackend, ref string, opts CheckoutOptions) error {
	return wrapOp("checkout", r.checkout(ctx, wt, ref, opts))
}

func (r *Repository) checkout(ctx context.Context, wt WorktreeBackend, ref string, opts CheckoutOptions) error {
	if wt == nil && !opts.Keep {
		return fmt.Errorf("%w: worktree", plumbing.ErrMissingParameter)
	}

	cache := storage.NewObjectCache(r.backend)

	prev := r.resolvedOrZero(ctx, "HEAD")

	branch, oid, err := r.checkoutTarget(ctx, ref)
	if err != nil {
		return err
	}

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

	if !opts.Keep {
		if err := r.materializeTree(ctx, wt, cache, files, oldIdx); err != nil {
			return err
		}
	}

	newIdx := index.New()
	for _, path := range sortedKeys(files) {
		e := files[path]
		entry := &index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode}
		if wt != nil {
			if stat, err := wt.Lstat(path); err == nil {
				entry.Size = uint32(stat.Size)
				entry.CreatedAt = stat.Ctime
				entry.ModifiedAt = stat.Mtime
			}
		}
		entry.NormalizeStat()
		newIdx.Insert(entry)
	}
	if err := r.backend.WriteIndex(ctx, newIdx); err != nil {
		return err
	}

	branchFlag := "0"
	if branch != "" {
		branchFlag = "1"
		head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(branch))
		if err := r.backend.WriteRawRef(ctx, "HEAD", head.Content()); err != nil {
			return err
		}
	} else {
		head := plumbing.NewHashReference(plumbing.HEAD, oid)
		if err := r.backend.WriteRawRef(ctx, "HEAD", head.Content()); err != nil {
			return err
		}
	}

	who := r.defaultIdentity(ctx)
	msg := fmt.Sprintf("checkout: moving from %s to %s", abbrevOrName(prev), ref)
	r.appendReflog(ctx, "HEAD", prev, oid, who, msg)

	hctx := HookContext{
		WorkTree:     worktreeDir(wt),
		PreviousHead: prev.String(),
		Head:         oid.String(),
		Branch:       plumbing.ReferenceName(branch).Short(),
	}
	args := hookArgs("post-checkout", map[string]string{
		"prev": prev.String(), "new": oid.String(), "branch_flag": branchFlag,
	})
	if _, err := r.runHook(ctx, "post-checkout", hctx, nil, args); err != nil {
		r.log.WithFields(logrus.Fields{"hook": "post-checkout", "err": err}).Warn("post-checkout hook failed")
	}
	return nil
}

// checkoutTarget resolves a checkout argument: a branch (by short or
// full name) yields its name and tip, anything else a detached OID.
func (r *Repository) checkoutTarget(ctx context.Context, ref string) (branch string, oid plumbing.ObjectID, err error) {
	canonical, expandErr := r.ExpandRef(ctx, ref)
	if expandErr == nil && plumbing.ReferenceName(canonical).IsBranch() {
		oid, err = r.ResolveOID(ctx, canonical)
		return canonical, oid, err
	}

	oid, err = r.ResolveOID(ctx, ref)
	return "", oid, err
}

// materializeTree writes the target tree's blobs through the worktree
// backend and removes files the old index tracked that are absent in
// the target.
func (r *Repository) materializeTree(ctx context.Context, wt WorktreeBackend, cache *storage.ObjectCache, files map[string]object.TreeEntry, oldIdx *index.Index) error {
	for _, path := range sortedKeys(files) {
		e := files[path]
		obj, err := readObject(ctx, r.backend, cache, e.Hash, plumbing.ContentForm)
		if err != nil {
			return err
		}
		if err := wt.Write(path, obj.Data); err != nil {
			return err
		}
	}

	for _, e := range oldIdx.StageEntries() {
		if _, keep := files[e.Name]; keep {
			continue
		}
		if err := wt.Remove(e.Name); err != nil && !errors.Is(err, plumbing.ErrNotFound) {
			return err
		}
	}
	return nil
}

func abbrevOrName(oid plumbing.ObjectID) string {
	s := oid.String()
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
