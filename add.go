package gitvault

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
)

// AddOptions control staging.
type AddOptions struct {
	// Sequential disables the parallel blob fan-out.
	Sequential bool
}

// RemoveOptions control unstaging.
type RemoveOptions struct {
	// Cached removes paths from the index only, leaving the worktree
	// file in place.
	Cached bool
}

// UpdateIndexOptions control a single-path index update.
type UpdateIndexOptions struct {
	// Remove drops the path when it no longer exists in the worktree.
	Remove bool
	// Stage places the entry at a conflict stage instead of 0.
	Stage index.Stage
}

// stagedBlob is one hashed file waiting for serial index application.
type stagedBlob struct {
	path  string
	oid   plumbing.ObjectID
	mode  plumbing.FileMode
	stat  FileStat
	gone  bool
}

// Add stages paths from the worktree: directories recurse, missing
// tracked paths record their deletion. Blob hashing and writing fan
// out across the file list — safe because object writes are
// content-addressed and idempotent — and index mutation is applied
// serially afterwards. Independent per-path failures are collected
// into a MultiError before raising.
func (r *Repository) Add(ctx context.Context, wt WorktreeBackend, paths []string, opts AddOptions) error {
	return wrapOp("add", r.add(ctx, wt, paths, opts))
}

func (r *Repository) add(ctx context.Context, wt WorktreeBackend, paths []string, opts AddOptions) error {
	if wt == nil {
		return fmt.Errorf("%w: worktree", plumbing.ErrMissingParameter)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: paths", plumbing.ErrMissingParameter)
	}

	idx, err := r.backend.ReadIndex(ctx)
	if err != nil {
		return err
	}

	var files []string
	var pathErrs []error
	for _, p := range paths {
		p = index.CanonicalPath(p)
		expanded, err := expandWorktreePath(wt, p, idx)
		if err != nil {
			pathErrs = append(pathErrs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		files = append(files, expanded...)
	}
	sort.Strings(files)

	blobs := make([]*stagedBlob, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if opts.Sequential {
		g.SetLimit(1)
	} else {
		g.SetLimit(runtime.NumCPU())
	}

	for i, file := range files {
		g.Go(func() error {
			blob, err := r.hashWorktreeFile(gctx, wt, file)
			if err != nil {
				mu.Lock()
				pathErrs = append(pathErrs, fmt.Errorf("%s: %w", file, err))
				mu.Unlock()
				return nil
			}
			blobs[i] = blob
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Index mutation is deferred until all blobs are written, then
	// applied serially.
	for _, blob := range blobs {
		if blob == nil {
			continue
		}
		if blob.gone {
			idx.Remove(blob.path)
			continue
		}
		e := &index.Entry{
			Name:       blob.path,
			Hash:       blob.oid,
			Mode:       blob.mode,
			Size:       uint32(blob.stat.Size),
			CreatedAt:  blob.stat.Ctime,
			ModifiedAt: blob.stat.Mtime,
			Dev:        blob.stat.Dev,
			Inode:      blob.stat.Inode,
			UID:        blob.stat.UID,
			GID:        blob.stat.GID,
		}
		e.NormalizeStat()
		idx.Insert(e)
	}

	if err := r.backend.WriteIndex(ctx, idx); err != nil {
		return err
	}
	return errOrMulti(pathErrs)
}

// expandWorktreePath resolves one user path: a file stays itself, a
// directory walks recursively, a missing-but-tracked path records a
// deletion, and a missing untracked path is an error.
func expandWorktreePath(wt WorktreeBackend, p string, idx *index.Index) ([]string, error) {
	stat, err := wt.Lstat(p)
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			if idx.HasPath(p) {
				return []string{p}, nil
			}
			return nil, plumbing.ErrNotFound
		}
		return nil, err
	}

	if !stat.IsDir {
		return []string{p}, nil
	}

	var out []string
	names, err := wt.Readdir(p)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		child := name
		if p != "." && p != "" {
			child = p + "/" + name
		}
		sub, err := expandWorktreePath(wt, child, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// hashWorktreeFile hashes one worktree path into a blob, returning a
// deletion marker for tracked paths that disappeared.
func (r *Repository) hashWorktreeFile(ctx context.Context, wt WorktreeBackend, p string) (*stagedBlob, error) {
	stat, err := wt.Lstat(p)
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return &stagedBlob{path: p, gone: true}, nil
		}
		return nil, err
	}

	var content []byte
	mode := plumbing.Regular
	switch {
	case stat.IsSymlink:
		target, err := wt.Readlink(p)
		if err != nil {
			return nil, err
		}
		content = []byte(index.CanonicalPath(target))
		mode = plumbing.Symlink
	default:
		content, err = wt.Read(p)
		if err != nil {
			return nil, err
		}
		if stat.Mode&0o111 != 0 {
			mode = plumbing.Executable
		}
	}

	oid, err := writeObject(ctx, r.backend, plumbing.BlobObject, content, plumbing.ContentForm, false)
	if err != nil {
		return nil, err
	}

	return &stagedBlob{path: p, oid: oid, mode: mode, stat: stat}, nil
}

// Remove unstages paths; without Cached the worktree files are deleted
// too.
func (r *Repository) Remove(ctx context.Context, wt WorktreeBackend, paths []string, opts RemoveOptions) error {
	return wrapOp("remove", r.remove(ctx, wt, paths, opts))
}

func (r *Repository) remove(ctx context.Context, wt WorktreeBackend, paths []string, opts RemoveOptions) error {
	idx, err := r.backend.ReadIndex(ctx)
	if err != nil {
		return err
	}

	var pathErrs []error
	for _, p := range paths {
		p = index.CanonicalPath(p)
		if err := idx.Remove(p); err != nil {
			pathErrs = append(pathErrs, fmt.Errorf("%s: %w", p, plumbing.ErrNotFound))
			continue
		}
		if !opts.Cached && wt != nil {
			if err := wt.Remove(p); err != nil && !errors.Is(err, plumbing.ErrNotFound) {
				pathErrs = append(pathErrs, fmt.Errorf("%s: %w", p, err))
			}
		}
	}

	if err := r.backend.WriteIndex(ctx, idx); err != nil {
		return err
	}
	return errOrMulti(pathErrs)
}

// UpdateIndex refreshes a single path's stat and content in the index.
func (r *Repository) UpdateIndex(ctx context.Context, wt WorktreeBackend, path string, opts UpdateIndexOptions) error {
	return wrapOp("update_index", r.updateIndex(ctx, wt, path, opts))
}

func (r *Repository) updateIndex(ctx context.Context, wt WorktreeBackend, path string, opts UpdateIndexOptions) error {
	if wt == nil {
		return fmt.Errorf("%w: worktree", plumbing.ErrMissingParameter)
	}
	path = index.CanonicalPath(path)

	idx, err := r.backend.ReadIndex(ctx)
	if err != nil {
		return err
	}

	blob, err := r.hashWorktreeFile(ctx, wt, path)
	if err != nil {
		return err
	}

	if blob.gone {
		if !opts.Remove {
			return fmt.Errorf("%w: %s", plumbing.ErrNotFound, path)
		}
		if err := idx.Remove(path); err != nil {
			return fmt.Errorf("%w: %s", plumbing.ErrNotFound, path)
		}
		return r.backend.WriteIndex(ctx, idx)
	}

	e := &index.Entry{
		Name:       path,
		Hash:       blob.oid,
		Mode:       blob.mode,
		Size:       uint32(blob.stat.Size),
		CreatedAt:  blob.stat.Ctime,
		ModifiedAt: blob.stat.Mtime,
		Stage:      opts.Stage,
	}
	e.NormalizeStat()
	idx.Insert(e)

	return r.backend.WriteIndex(ctx, idx)
}
