package gitvault

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"github.com/gitvault/gitvault/plumbing"
)

// FileStat is the stat view the index cares about. Substrates that
// cannot supply POSIX fields leave them zero; the index tolerates that
// at the cost of more false-positive dirty detection.
type FileStat struct {
	IsDir     bool
	IsFile    bool
	IsSymlink bool
	// Mode is the host permission bits; only the executable bit is
	// consulted.
	Mode os.FileMode
	Size int64
	// Ctime and Mtime are the best approximation the host offers.
	Ctime time.Time
	Mtime time.Time
	// Dev, Inode, UID and GID are zero on non-POSIX substrates.
	Dev, Inode uint32
	UID, GID   uint32
}

// WorktreeBackend is the working-directory collaborator. The backend
// owns everything under the gitdir; the worktree backend owns
// everything under the working directory, and nothing reaches across
// that boundary. All paths are slash-separated and relative to the
// working-tree root.
type WorktreeBackend interface {
	// Read returns a file's bytes, or plumbing.ErrNotFound.
	Read(path string) ([]byte, error)
	// Write replaces a file's bytes, creating parents as needed.
	Write(path string, data []byte) error
	// Readlink returns a symlink's target.
	Readlink(path string) (string, error)
	// Lstat stats a path without following symlinks.
	Lstat(path string) (FileStat, error)
	// Readdir lists the names inside a directory.
	Readdir(path string) ([]string, error)
	// Mkdir creates a directory, recursively when asked.
	Mkdir(path string, recursive bool) error
	// Remove deletes a file.
	Remove(path string) error
	// Directory returns the absolute working-tree root, empty when
	// the worktree is not path-based.
	Directory() string
}

// billyWorktree adapts a billy filesystem to the WorktreeBackend
// contract. memfs gives an ephemeral worktree for tests and for the
// in-memory backend.
type billyWorktree struct {
	fs billy.Filesystem
}

// NewBillyWorktree wraps a billy filesystem rooted at the working
// tree.
func NewBillyWorktree(fs billy.Filesystem) WorktreeBackend {
	return &billyWorktree{fs: fs}
}

// NewMemWorktree returns an empty in-memory worktree.
func NewMemWorktree() WorktreeBackend {
	return &billyWorktree{fs: memfs.New()}
}

func (w *billyWorktree) Read(p string) ([]byte, error) {
	f, err := w.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("worktree: %w: %s", plumbing.ErrNotFound, p)
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (w *billyWorktree) Write(p string, data []byte) error {
	if dir := path.Dir(p); dir != "." {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := w.fs.Create(p)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (w *billyWorktree) Readlink(p string) (string, error) {
	return w.fs.Readlink(p)
}

func (w *billyWorktree) Lstat(p string) (FileStat, error) {
	fi, err := w.fs.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return FileStat{}, fmt.Errorf("worktree: %w: %s", plumbing.ErrNotFound, p)
		}
		return FileStat{}, err
	}

	return FileStat{
		IsDir:     fi.IsDir(),
		IsFile:    fi.Mode().IsRegular(),
		IsSymlink: fi.Mode()&os.ModeSymlink != 0,
		Mode:      fi.Mode(),
		Size:      fi.Size(),
		Ctime:     fi.ModTime(),
		Mtime:     fi.ModTime(),
	}, nil
}

func (w *billyWorktree) Readdir(p string) ([]string, error) {
	entries, err := w.fs.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (w *billyWorktree) Mkdir(p string, recursive bool) error {
	if recursive {
		return w.fs.MkdirAll(p, 0o755)
	}
	if dir := path.Dir(p); dir != "." {
		if _, err := w.fs.Lstat(dir); err != nil {
			return err
		}
	}
	return w.fs.MkdirAll(p, 0o755)
}

func (w *billyWorktree) Remove(p string) error {
	err := w.fs.Remove(p)
	if err != nil && os.IsNotExist(err) {
		return fmt.Errorf("worktree: %w: %s", plumbing.ErrNotFound, p)
	}
	return err
}

func (w *billyWorktree) Directory() string {
	return w.fs.Root()
}
