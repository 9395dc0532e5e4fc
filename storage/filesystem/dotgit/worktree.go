package dotgit

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"

	"github.com/gitvault/gitvault/plumbing"
)

// DiscoverLinked inspects a gitdir path and reports whether it sits
// where a linked worktree gitdir lives, <main>/worktrees/<name>/. It
// returns the main gitdir path and the worktree name. Discovery walks
// up two levels and confirms the parent is a worktrees/ directory; it
// looks at the path only, and the gitdir file is checked separately by
// HasGitdirFile.
func DiscoverLinked(gitdir string) (main string, worktree string, linked bool) {
	clean := filepath.Clean(gitdir)
	parent := filepath.Dir(clean)
	if filepath.Base(parent) != worktrees {
		return gitdir, "", false
	}
	return filepath.Dir(parent), filepath.Base(clean), true
}

// HasGitdirFile reports whether fs (rooted at a candidate linked
// gitdir) carries the gitdir backlink file.
func HasGitdirFile(fs billy.Filesystem) bool {
	_, err := fs.Stat(gitdirFile)
	return err == nil
}

// AddWorktree scaffolds worktrees/<name>/ in the main gitdir: its own
// HEAD (copied from the main one), the gitdir backlink to the working
// directory, and the commondir pointer. Only the worktree name is
// stored; absolute paths are recomputed lazily by consumers.
func (d *DotGit) AddWorktree(name, worktreeDir string) error {
	base := d.fs.Join(worktrees, name)
	if ok, err := d.Exists(base); err != nil {
		return err
	} else if ok {
		return os.ErrExist
	}

	if err := d.fs.MkdirAll(base, 0o755); err != nil {
		return err
	}

	head, err := d.readFile(headPath)
	if err != nil {
		if !errors.Is(err, plumbing.ErrNotFound) {
			return err
		}
		head = []byte("ref: refs/heads/master\n")
	}

	if err := d.writeFileAtomic(d.fs.Join(base, headPath), head); err != nil {
		return err
	}
	if err := d.writeFileAtomic(d.fs.Join(base, gitdirFile), []byte(worktreeDir+"\n")); err != nil {
		return err
	}
	return d.writeFileAtomic(d.fs.Join(base, commondirFile), []byte("../..\n"))
}

// RemoveWorktree deletes worktrees/<name>/ unless it is locked.
func (d *DotGit) RemoveWorktree(name string) error {
	base := d.fs.Join(worktrees, name)
	if ok, err := d.Exists(base); err != nil {
		return err
	} else if !ok {
		return plumbing.ErrNotFound
	}

	if ok, _ := d.Exists(d.fs.Join(base, "locked")); ok {
		return errors.New("worktree is locked")
	}
	return d.RemoveAll(base)
}

// ListWorktrees enumerates linked worktree names.
func (d *DotGit) ListWorktrees() ([]string, error) {
	entries, err := d.fs.ReadDir(worktrees)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// LockWorktree marks a worktree locked with an optional reason.
func (d *DotGit) LockWorktree(name, reason string) error {
	return d.writeFileAtomic(d.fs.Join(worktrees, name, "locked"), []byte(reason))
}

// UnlockWorktree clears a worktree lock.
func (d *DotGit) UnlockWorktree(name string) error {
	err := d.removeFile(d.fs.Join(worktrees, name, "locked"))
	if errors.Is(err, plumbing.ErrNotFound) {
		return nil
	}
	return err
}
