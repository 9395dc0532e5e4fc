package dotgit

import (
	"errors"
	"os"
	"path"

	"github.com/gitvault/gitvault/plumbing"
)

// ReadReflog returns the reflog body for a ref, empty when no log
// exists yet.
func (d *DotGit) ReadReflog(name string) ([]byte, error) {
	data, err := d.readFile(d.logPath(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// AppendReflog appends one serialized entry to a ref's log, creating
// intermediate directories lazily.
func (d *DotGit) AppendReflog(name string, line []byte) error {
	p := d.logPath(name)
	if err := d.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}

	f, err := d.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DeleteReflog removes a ref's log file.
func (d *DotGit) DeleteReflog(name string) error {
	err := d.removeFile(d.logPath(name))
	if errors.Is(err, plumbing.ErrNotFound) {
		return nil
	}
	return err
}

// ListReflogs enumerates every ref name that has a log, across the
// shared logs/ tree and the active worktree's.
func (d *DotGit) ListReflogs() ([]string, error) {
	var out []string
	err := walkFiles(d, logsPath, func(p string) {
		out = append(out, p[len(logsPath)+1:])
	})
	if err != nil {
		return nil, err
	}

	if d.worktree != "" {
		wtLogs := d.activePath(logsPath)
		err = walkFiles(d, wtLogs, func(p string) {
			out = append(out, p[len(wtLogs)+1:])
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
