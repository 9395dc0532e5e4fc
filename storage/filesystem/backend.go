// Package filesystem implements the backend contract over a git
// directory on a billy filesystem, bit-compatible with stock git.
package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/gitvault/gitvault/config"
	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
	"github.com/gitvault/gitvault/storage/filesystem/dotgit"
)

// Backend stores a repository in a gitdir on a filesystem. The zero
// value is not usable; construct with NewBackend or NewBackendFromPath.
type Backend struct {
	dot        *dotgit.DotGit
	packReader storage.PackReader

	mu           sync.Mutex
	cachedFormat format.ObjectFormat
}

// Option configures a Backend.
type Option func(*Backend)

// WithPackReader wires the external pack resolution capability.
func WithPackReader(pr storage.PackReader) Option {
	return func(b *Backend) { b.packReader = pr }
}

// NewBackend returns a Backend over a filesystem rooted at the main
// gitdir.
func NewBackend(fs billy.Filesystem, opts ...Option) *Backend {
	b := &Backend{dot: dotgit.New(fs)}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewLinkedBackend returns a Backend whose worktree-specific files
// route to worktrees/<name>/ under the main gitdir.
func NewLinkedBackend(fs billy.Filesystem, worktree string, opts ...Option) *Backend {
	b := &Backend{dot: dotgit.NewLinked(fs, worktree)}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewBackendFromPath opens a gitdir path on the host filesystem,
// resolving linked-worktree gitdirs to their main gitdir.
func NewBackendFromPath(gitdir string, opts ...Option) (*Backend, error) {
	main, worktree, linked := dotgit.DiscoverLinked(gitdir)
	if linked && !dotgit.HasGitdirFile(osfs.New(gitdir)) {
		// worktrees/<name> without a gitdir backlink is not a linked
		// gitdir; treat the path as a main gitdir.
		main, worktree = gitdir, ""
	}

	fs := osfs.New(main)
	if worktree != "" {
		return NewLinkedBackend(fs, worktree, opts...), nil
	}
	return NewBackend(fs, opts...), nil
}

func check(ctx context.Context) error {
	return ctx.Err()
}

// Init writes the bare repository structure. Re-initialization is a
// no-op that refuses to change an already-set object format.
func (b *Backend) Init(ctx context.Context, opts storage.InitOptions) error {
	if err := check(ctx); err != nil {
		return err
	}
	if err := storage.ApplyInitDefaults(&opts); err != nil {
		return err
	}
	if !opts.ObjectFormat.Valid() {
		return format.ErrInvalidObjectFormat
	}

	if ok, err := b.IsInitialized(ctx); err != nil {
		return err
	} else if ok {
		current, err := b.ObjectFormat(ctx)
		if err != nil {
			return err
		}
		if current != opts.ObjectFormat {
			return fmt.Errorf("%w: %s", storage.ErrFormatLocked, current)
		}
		return nil
	}

	cfg := config.NewDefault()
	cfg.Core.Bare = true
	if opts.ObjectFormat == format.SHA256 {
		cfg.Core.RepositoryFormatVersion = format.Version1
		cfg.Extensions.ObjectFormat = format.SHA256
	}
	cfg.Init.DefaultBranch = opts.DefaultBranch

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := b.dot.WriteConfig(data); err != nil {
		return err
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD,
		plumbing.NewBranchReferenceName(opts.DefaultBranch))
	if err := b.dot.WriteRawRef("HEAD", head.Content()); err != nil {
		return err
	}

	if err := b.dot.WriteDescription([]byte("Unnamed repository; edit this file 'description' to name the repository.\n")); err != nil {
		return err
	}

	fs := b.dot.Filesystem()
	for _, dir := range []string{
		"objects/info", "objects/pack",
		"refs/heads", "refs/tags",
		"hooks", "info",
	} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// IsInitialized reports whether the gitdir holds a repository.
func (b *Backend) IsInitialized(ctx context.Context) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	head, err := b.dot.Exists("HEAD")
	if err != nil || !head {
		return false, err
	}
	return b.dot.Exists("objects")
}

// Exists reports the presence of a gitdir-relative path.
func (b *Backend) Exists(ctx context.Context, relpath string) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	return b.dot.Exists(relpath)
}

// Close is a no-op for the filesystem backend.
func (b *Backend) Close() error { return nil }

// ObjectFormat returns the repository hash family; cached after the
// first read since the family is locked once objects exist.
func (b *Backend) ObjectFormat(ctx context.Context) (format.ObjectFormat, error) {
	b.mu.Lock()
	if b.cachedFormat.Valid() {
		f := b.cachedFormat
		b.mu.Unlock()
		return f, nil
	}
	b.mu.Unlock()

	raw, err := b.ReadConfig(ctx)
	if err != nil {
		return format.UnsetObjectFormat, err
	}
	f := config.ReadFrom(raw).ObjectFormat()

	b.mu.Lock()
	b.cachedFormat = f
	b.mu.Unlock()
	return f, nil
}

// ReadConfig returns the local-scope raw config; empty when absent.
func (b *Backend) ReadConfig(ctx context.Context) (*format.Config, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	data, err := b.dot.ReadConfig()
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return format.New(), nil
		}
		return nil, err
	}
	return parseRaw(data)
}

// WriteConfig replaces the local-scope config.
func (b *Backend) WriteConfig(ctx context.Context, cfg *format.Config) error {
	if err := check(ctx); err != nil {
		return err
	}
	data, err := serializeRaw(cfg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cachedFormat = format.UnsetObjectFormat
	b.mu.Unlock()
	return b.dot.WriteConfig(data)
}

// ReadWorktreeConfig returns the worktree-scope raw config.
func (b *Backend) ReadWorktreeConfig(ctx context.Context) (*format.Config, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	data, err := b.dot.ReadWorktreeConfig()
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return format.New(), nil
		}
		return nil, err
	}
	return parseRaw(data)
}

// WriteWorktreeConfig replaces the worktree-scope config.
func (b *Backend) WriteWorktreeConfig(ctx context.Context, cfg *format.Config) error {
	if err := check(ctx); err != nil {
		return err
	}
	data, err := serializeRaw(cfg)
	if err != nil {
		return err
	}
	return b.dot.WriteWorktreeConfig(data)
}

func parseRaw(data []byte) (*format.Config, error) {
	raw := format.New()
	if err := format.NewDecoder(bytes.NewReader(data)).Decode(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func serializeRaw(cfg *format.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := format.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadDescription returns the repository description text.
func (b *Backend) ReadDescription(ctx context.Context) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	data, err := b.dot.ReadDescription()
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WriteDescription replaces the description.
func (b *Backend) WriteDescription(ctx context.Context, text string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WriteDescription([]byte(text))
}

// ReadState returns a named state file.
func (b *Backend) ReadState(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ReadState(name)
}

// WriteState replaces a named state file.
func (b *Backend) WriteState(ctx context.Context, name string, data []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WriteState(name, data)
}

// DeleteState removes a named state file.
func (b *Backend) DeleteState(ctx context.Context, name string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.DeleteState(name)
}

// ListState enumerates present state files.
func (b *Backend) ListState(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ListState()
}

// ReadShallow returns the shallow commit list.
func (b *Backend) ReadShallow(ctx context.Context) ([]plumbing.ObjectID, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ReadShallow()
}

// WriteShallow replaces the shallow commit list.
func (b *Backend) WriteShallow(ctx context.Context, oids []plumbing.ObjectID) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WriteShallow(oids)
}

// DaemonExportOK reflects the presence of git-daemon-export-ok.
func (b *Backend) DaemonExportOK(ctx context.Context) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	return b.dot.DaemonExportOK()
}

// SetDaemonExportOK creates or removes the export flag.
func (b *Backend) SetDaemonExportOK(ctx context.Context, ok bool) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.SetDaemonExportOK(ok)
}

// ReadIndex decodes the staging area; a fresh empty index when the
// file is absent.
func (b *Backend) ReadIndex(ctx context.Context) (*index.Index, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	data, err := b.dot.ReadIndexBytes()
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return index.New(), nil
		}
		return nil, err
	}

	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return nil, err
	}

	idx := &index.Index{}
	if err := index.NewDecoder(bytes.NewReader(data), f).Decode(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// WriteIndex serializes and replaces the staging area.
func (b *Backend) WriteIndex(ctx context.Context, idx *index.Index) error {
	if err := check(ctx); err != nil {
		return err
	}
	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := index.NewEncoder(&buf, f).Encode(idx); err != nil {
		return err
	}
	return b.dot.WriteIndexBytes(buf.Bytes())
}

// LockIndex acquires the exclusive index lock.
func (b *Backend) LockIndex(ctx context.Context) (storage.Unlocker, error) {
	return b.dot.LockIndex(ctx)
}

// IndexPath returns the host path of the active index file.
func (b *Backend) IndexPath() string {
	return b.dot.Filesystem().Join(b.Gitdir(), b.dot.IndexPath())
}

// ReadLoose returns the deflated bytes of a loose object.
func (b *Backend) ReadLoose(ctx context.Context, oid plumbing.ObjectID) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ReadLoose(oid)
}

// WriteLoose stores a loose object, write-once.
func (b *Backend) WriteLoose(ctx context.Context, oid plumbing.ObjectID, deflated []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WriteLoose(oid, deflated)
}

// HasLoose reports loose object presence.
func (b *Backend) HasLoose(ctx context.Context, oid plumbing.ObjectID) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	return b.dot.HasLoose(oid)
}

// ListLoose enumerates loose objects of the active hash family.
func (b *Backend) ListLoose(ctx context.Context) ([]plumbing.ObjectID, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return nil, err
	}
	return b.dot.ListLoose(f.HexSize())
}

// ReadPack returns a packfile by basename.
func (b *Backend) ReadPack(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ReadPack(name)
}

// WritePack stores a packfile.
func (b *Backend) WritePack(ctx context.Context, name string, data []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WritePack(name, data)
}

// ListPacks enumerates pack basenames.
func (b *Backend) ListPacks(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ListPacks()
}

// ReadPackIndex returns a pack index by pack basename.
func (b *Backend) ReadPackIndex(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ReadPackIndex(name)
}

// WritePackIndex stores a pack index.
func (b *Backend) WritePackIndex(ctx context.Context, name string, data []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WritePackIndex(name, data)
}

// PackReader returns the wired pack capability, or nil.
func (b *Backend) PackReader() storage.PackReader {
	return b.packReader
}

// ReadRawRef returns the loose serialization of a ref.
func (b *Backend) ReadRawRef(ctx context.Context, name string) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	return b.dot.ReadRawRef(name)
}

// WriteRawRef replaces a loose ref atomically.
func (b *Backend) WriteRawRef(ctx context.Context, name string, content string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WriteRawRef(name, content)
}

// DeleteRawRef removes a loose ref.
func (b *Backend) DeleteRawRef(ctx context.Context, name string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.DeleteRawRef(name)
}

// ListRefNames enumerates loose refs under a prefix.
func (b *Backend) ListRefNames(ctx context.Context, prefix string) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ListRefNames(prefix)
}

// LockRef acquires the per-ref write lock.
func (b *Backend) LockRef(ctx context.Context, name string) (storage.Unlocker, error) {
	return b.dot.LockRef(ctx, name)
}

// ReadPackedRefs returns the packed-refs body.
func (b *Backend) ReadPackedRefs(ctx context.Context) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	return b.dot.ReadPackedRefs()
}

// WritePackedRefs replaces the packed-refs table.
func (b *Backend) WritePackedRefs(ctx context.Context, text string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.WritePackedRefs(text)
}

// ReadReflog returns a ref's log body.
func (b *Backend) ReadReflog(ctx context.Context, ref string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ReadReflog(ref)
}

// AppendReflog appends one entry to a ref's log.
func (b *Backend) AppendReflog(ctx context.Context, ref string, line []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.AppendReflog(ref, line)
}

// DeleteReflog removes a ref's log.
func (b *Backend) DeleteReflog(ctx context.Context, ref string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.DeleteReflog(ref)
}

// ListReflogs enumerates refs that have logs.
func (b *Backend) ListReflogs(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ListReflogs()
}

// hooksDir resolves the hooks directory, honoring core.hooksPath as a
// gitdir-relative path.
func (b *Backend) hooksDir(ctx context.Context) (string, error) {
	raw, err := b.ReadConfig(ctx)
	if err != nil {
		return "", err
	}
	if p := config.ReadFrom(raw).Core.HooksPath; p != "" {
		return p, nil
	}
	return "hooks", nil
}

// HasHook reports whether a hook file exists.
func (b *Backend) HasHook(ctx context.Context, name string) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	dir, err := b.hooksDir(ctx)
	if err != nil {
		return false, err
	}
	return b.dot.Exists(b.dot.Filesystem().Join(dir, name))
}

// ReadHook returns a hook file body.
func (b *Backend) ReadHook(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	dir, err := b.hooksDir(ctx)
	if err != nil {
		return nil, err
	}
	return b.dot.ReadHook(dir, name)
}

// WriteHook stores a hook body, marking it executable where the
// filesystem supports it.
func (b *Backend) WriteHook(ctx context.Context, name string, body []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	dir, err := b.hooksDir(ctx)
	if err != nil {
		return err
	}
	return b.dot.WriteHook(dir, name, body)
}

// HookPath returns the host path of a hook file.
func (b *Backend) HookPath(name string) string {
	return b.dot.Filesystem().Join(b.Gitdir(), "hooks", name)
}

// ListWorktrees enumerates linked worktrees.
func (b *Backend) ListWorktrees(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return b.dot.ListWorktrees()
}

// AddWorktree scaffolds a linked worktree gitdir.
func (b *Backend) AddWorktree(ctx context.Context, name string, worktreeDir string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.AddWorktree(name, worktreeDir)
}

// RemoveWorktree deletes a linked worktree gitdir.
func (b *Backend) RemoveWorktree(ctx context.Context, name string) error {
	if err := check(ctx); err != nil {
		return err
	}
	return b.dot.RemoveWorktree(name)
}

// Gitdir returns the host path of the main gitdir; empty for purely
// in-memory filesystems.
func (b *Backend) Gitdir() string {
	return b.dot.Filesystem().Root()
}

var _ storage.Backend = (*Backend)(nil)

func init() {
	if err := storage.Register("filesystem", func(opts storage.Options) (storage.Backend, error) {
		if opts.Filesystem == nil || opts.Filesystem.Gitdir == "" {
			return nil, fmt.Errorf("%w: filesystem backend needs a gitdir", storage.ErrUnknownBackend)
		}
		return NewBackendFromPath(opts.Filesystem.Gitdir)
	}); err != nil && !errors.Is(err, storage.ErrBackendExists) {
		panic(err)
	}
}
