package gitvault

import (
	"context"

	"github.com/gitvault/gitvault/config"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
)

// Config returns the typed view over the local-scope config, defaults
// applied.
func (r *Repository) Config(ctx context.Context) (*config.Config, error) {
	cfg, err := r.typedConfig(ctx)
	return cfg, wrapOp("read_config", err)
}

// SetConfig writes the typed config back to the local scope. Only the
// local scope is writable; system and global layers are read-only
// inputs a caller merges through config.Provider.
func (r *Repository) SetConfig(ctx context.Context, cfg *config.Config) error {
	if _, err := cfg.Marshal(); err != nil {
		return wrapOp("write_config", err)
	}
	return wrapOp("write_config", r.backend.WriteConfig(ctx, cfg.Raw))
}

// Index returns the staging area.
func (r *Repository) Index(ctx context.Context) (*index.Index, error) {
	idx, err := r.backend.ReadIndex(ctx)
	return idx, wrapOp("read_index", err)
}

// SetIndex replaces the staging area.
func (r *Repository) SetIndex(ctx context.Context, idx *index.Index) error {
	return wrapOp("write_index", r.backend.WriteIndex(ctx, idx))
}

// ReadState returns a named state file (ORIG_HEAD, MERGE_HEAD,
// sequencer/todo, lfs/…).
func (r *Repository) ReadState(ctx context.Context, name string) ([]byte, error) {
	data, err := r.backend.ReadState(ctx, name)
	return data, wrapOp("read_state", err)
}

// WriteState stores a named state file.
func (r *Repository) WriteState(ctx context.Context, name string, data []byte) error {
	return wrapOp("write_state", r.backend.WriteState(ctx, name, data))
}

// DeleteState removes a named state file.
func (r *Repository) DeleteState(ctx context.Context, name string) error {
	return wrapOp("delete_state", r.backend.DeleteState(ctx, name))
}

// ListState enumerates present state files.
func (r *Repository) ListState(ctx context.Context) ([]string, error) {
	names, err := r.backend.ListState(ctx)
	return names, wrapOp("list_state", err)
}

// Worktrees enumerates linked worktrees.
func (r *Repository) Worktrees(ctx context.Context) ([]string, error) {
	names, err := r.backend.ListWorktrees(ctx)
	return names, wrapOp("list_worktrees", err)
}

// AddWorktree scaffolds a linked worktree gitdir pointing back at
// worktreeDir.
func (r *Repository) AddWorktree(ctx context.Context, name, worktreeDir string) error {
	return wrapOp("add_worktree", r.backend.AddWorktree(ctx, name, worktreeDir))
}

// RemoveWorktree deletes a linked worktree gitdir.
func (r *Repository) RemoveWorktree(ctx context.Context, name string) error {
	return wrapOp("remove_worktree", r.backend.RemoveWorktree(ctx, name))
}

// Cached returns a read-through object cache handle scoped to one
// logical call; objects are immutable so nothing invalidates.
func (r *Repository) Cached() *storage.ObjectCache {
	return storage.NewObjectCache(r.backend)
}

// Exists reports the presence of a repository-relative path.
func (r *Repository) Exists(ctx context.Context, relpath string) (bool, error) {
	ok, err := r.backend.Exists(ctx, relpath)
	return ok, wrapOp("exists", err)
}
