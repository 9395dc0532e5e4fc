// Package dotgit models the on-disk layout of a git directory over a
// billy filesystem: loose and packed objects, references, reflogs,
// state files and linked worktrees. It is bit-compatible with stock
// git.
//
// https://github.com/git/git/blob/master/Documentation/gitrepository-layout.txt
package dotgit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/gitvault/gitvault/plumbing"
)

const (
	headPath        = "HEAD"
	configPath      = "config"
	worktreeCfgPath = "config.worktree"
	indexPath       = "index"
	descriptionPath = "description"
	packedRefsPath  = "packed-refs"
	shallowPath     = "shallow"
	daemonExportOk  = "git-daemon-export-ok"

	objectsPath = "objects"
	packPath    = "pack"
	refsPath    = "refs"
	logsPath    = "logs"
	hooksPath   = "hooks"
	infoPath    = "info"
	worktrees   = "worktrees"

	gitdirFile    = "gitdir"
	commondirFile = "commondir"

	packExt = ".pack"
	idxExt  = ".idx"

	tmpPrefix = "tmp_"

	lockRetryInterval = 10 * time.Millisecond
)

// ErrLockTimeout is returned when a lock acquisition is cancelled.
var ErrLockTimeout = errors.New("lock acquisition cancelled")

// worktreeSpecific is the set of exact ref names that live in a linked
// worktree's own gitdir rather than the shared one.
var worktreeSpecific = map[string]bool{
	"HEAD":             true,
	"ORIG_HEAD":        true,
	"FETCH_HEAD":       true,
	"MERGE_HEAD":       true,
	"CHERRY_PICK_HEAD": true,
	"REVERT_HEAD":      true,
}

// IsWorktreeSpecific reports whether a ref name routes to the linked
// worktree gitdir: the fixed head-state set plus any BISECT_* name.
func IsWorktreeSpecific(name string) bool {
	return worktreeSpecific[name] || strings.HasPrefix(name, "BISECT_")
}

// DotGit gives structured access to a git directory. fs is rooted at
// the main (shared) gitdir; worktree names the active linked worktree,
// empty when operating on the main gitdir directly.
type DotGit struct {
	fs       billy.Filesystem
	worktree string
}

// New returns a DotGit over the main gitdir.
func New(fs billy.Filesystem) *DotGit {
	return &DotGit{fs: fs}
}

// NewLinked returns a DotGit whose worktree-specific files route to
// worktrees/<name>/ under the main gitdir.
func NewLinked(fs billy.Filesystem, worktree string) *DotGit {
	return &DotGit{fs: fs, worktree: worktree}
}

// Worktree returns the active linked worktree name, empty for the main
// gitdir.
func (d *DotGit) Worktree() string {
	return d.worktree
}

// Filesystem returns the underlying main-gitdir filesystem.
func (d *DotGit) Filesystem() billy.Filesystem {
	return d.fs
}

// activeDir returns the path prefix of the active gitdir: empty for
// the main gitdir, worktrees/<name> for a linked worktree.
func (d *DotGit) activeDir() string {
	if d.worktree == "" {
		return ""
	}
	return d.fs.Join(worktrees, d.worktree)
}

// activePath routes a worktree-local file to the active gitdir.
func (d *DotGit) activePath(elem ...string) string {
	if d.worktree == "" {
		return d.fs.Join(elem...)
	}
	return d.fs.Join(append([]string{worktrees, d.worktree}, elem...)...)
}

// RefPath maps a ref name to its loose file path, applying the
// worktree routing rules: worktree-specific names go to the active
// gitdir, everything else to the shared one.
func (d *DotGit) RefPath(name string) string {
	if IsWorktreeSpecific(name) {
		return d.activePath(name)
	}
	return d.fs.Join(strings.Split(name, "/")...)
}

// logPath maps a ref name to its reflog file path. Reflogs of
// worktree-specific refs live under the active gitdir's logs/.
func (d *DotGit) logPath(name string) string {
	if IsWorktreeSpecific(name) {
		return d.activePath(logsPath, name)
	}
	return d.fs.Join(append([]string{logsPath}, strings.Split(name, "/")...)...)
}

// Exists reports the presence of a path relative to the main gitdir.
func (d *DotGit) Exists(relpath string) (bool, error) {
	_, err := d.fs.Stat(relpath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// readFile returns a file's bytes, mapping absence to
// plumbing.ErrNotFound.
func (d *DotGit) readFile(p string) ([]byte, error) {
	data, err := util.ReadFile(d.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", plumbing.ErrNotFound, p)
		}
		return nil, err
	}
	return data, nil
}

// writeFileAtomic writes bytes through a temp file and a rename, so
// readers never observe a partial write.
func (d *DotGit) writeFileAtomic(p string, data []byte) error {
	dir := path.Dir(p)
	if dir != "." {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := util.TempFile(d.fs, dir, tmpPrefix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		d.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		d.fs.Remove(tmpName)
		return err
	}

	if err := d.fs.Rename(tmpName, p); err != nil {
		d.fs.Remove(tmpName)
		return err
	}
	return nil
}

// removeFile deletes a file, mapping absence to plumbing.ErrNotFound.
func (d *DotGit) removeFile(p string) error {
	err := d.fs.Remove(p)
	if err != nil && os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", plumbing.ErrNotFound, p)
	}
	return err
}

// fileLock is an exclusively-created marker file; the git-compatible
// lock primitive.
type fileLock struct {
	fs   billy.Filesystem
	path string
	done bool
}

func (l *fileLock) Unlock() error {
	if l.done {
		return nil
	}
	l.done = true
	err := l.fs.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// acquireLock blocks until the marker file can be created exclusively
// or the context is cancelled.
func (d *DotGit) acquireLock(ctx context.Context, p string) (*fileLock, error) {
	if dir := path.Dir(p); dir != "." {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	for {
		f, err := d.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return &fileLock{fs: d.fs, path: p}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, p)
		case <-time.After(lockRetryInterval):
		}
	}
}

// LockIndex acquires the index lock of the active gitdir.
func (d *DotGit) LockIndex(ctx context.Context) (*fileLock, error) {
	return d.acquireLock(ctx, d.activePath(indexPath+".lock"))
}

// LockRef acquires the per-ref write lock.
func (d *DotGit) LockRef(ctx context.Context, name string) (*fileLock, error) {
	return d.acquireLock(ctx, d.RefPath(name)+".lock")
}
