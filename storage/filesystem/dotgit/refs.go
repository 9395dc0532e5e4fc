package dotgit

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	"github.com/gitvault/gitvault/plumbing"
)

// ReadRawRef returns the loose serialization of a ref, routed per the
// worktree rules. Absence is plumbing.ErrRefNotFound; packed-refs is
// not consulted here.
func (d *DotGit) ReadRawRef(name string) (string, error) {
	data, err := d.readFile(d.RefPath(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
		}
		return "", err
	}
	return string(data), nil
}

// WriteRawRef replaces the loose ref atomically (temp file plus
// rename).
func (d *DotGit) WriteRawRef(name string, content string) error {
	return d.writeFileAtomic(d.RefPath(name), []byte(content))
}

// DeleteRawRef removes the loose ref file. Packed-refs entries are
// not touched.
func (d *DotGit) DeleteRawRef(name string) error {
	err := d.removeFile(d.RefPath(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
		}
		return err
	}

	// Leave refs/<ns>/ directories in place; git does the same until
	// pack-refs prunes them.
	return nil
}

// ListRefNames enumerates loose refs below prefix ("refs/heads/",
// "refs/"…). An empty prefix lists everything under refs/.
func (d *DotGit) ListRefNames(prefix string) ([]string, error) {
	if prefix == "" {
		prefix = refsPath + "/"
	}
	root := strings.TrimSuffix(prefix, "/")

	var out []string
	err := walkFiles(d, root, func(p string) {
		out = append(out, p)
	})
	if err != nil {
		return nil, err
	}

	// A prefix that names a single loose ref file matches itself.
	if len(out) == 0 {
		if ok, _ := d.Exists(root); ok {
			out = append(out, root)
		}
	}
	return out, nil
}

func walkFiles(d *DotGit, dir string, fn func(p string)) error {
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := walkFiles(d, p, fn); err != nil {
				return err
			}
			continue
		}
		if strings.HasSuffix(e.Name(), ".lock") || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		fn(p)
	}
	return nil
}

// ReadPackedRefs returns the packed-refs body, empty when the file is
// absent.
func (d *DotGit) ReadPackedRefs() (string, error) {
	data, err := d.readFile(packedRefsPath)
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WritePackedRefs replaces the packed-refs table atomically.
func (d *DotGit) WritePackedRefs(text string) error {
	return d.writeFileAtomic(packedRefsPath, []byte(text))
}

// RemoveAll removes a path recursively; used by worktree teardown.
func (d *DotGit) RemoveAll(p string) error {
	return util.RemoveAll(d.fs, p)
}
