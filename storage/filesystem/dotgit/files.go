package dotgit

import (
	"errors"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
)

// ReadConfig returns the shared config file bytes.
func (d *DotGit) ReadConfig() ([]byte, error) {
	return d.readFile(configPath)
}

// WriteConfig replaces the shared config file.
func (d *DotGit) WriteConfig(data []byte) error {
	return d.writeFileAtomic(configPath, data)
}

// ReadWorktreeConfig returns the worktree-scope config bytes, routed
// to the active gitdir.
func (d *DotGit) ReadWorktreeConfig() ([]byte, error) {
	return d.readFile(d.activePath(worktreeCfgPath))
}

// WriteWorktreeConfig replaces the worktree-scope config.
func (d *DotGit) WriteWorktreeConfig(data []byte) error {
	return d.writeFileAtomic(d.activePath(worktreeCfgPath), data)
}

// ReadDescription returns the repository description.
func (d *DotGit) ReadDescription() ([]byte, error) {
	return d.readFile(descriptionPath)
}

// WriteDescription replaces the repository description.
func (d *DotGit) WriteDescription(data []byte) error {
	return d.writeFileAtomic(descriptionPath, data)
}

// statePath routes named state files to the active gitdir; sequencer
// state keeps its subdirectory.
func (d *DotGit) statePath(name string) string {
	return d.activePath(strings.Split(name, "/")...)
}

// ReadState returns a named state file (MERGE_HEAD, MERGE_MSG,
// sequencer/todo, …).
func (d *DotGit) ReadState(name string) ([]byte, error) {
	return d.readFile(d.statePath(name))
}

// WriteState replaces a named state file.
func (d *DotGit) WriteState(name string, data []byte) error {
	return d.writeFileAtomic(d.statePath(name), data)
}

// DeleteState removes a named state file.
func (d *DotGit) DeleteState(name string) error {
	return d.removeFile(d.statePath(name))
}

// structural is the set of top-level gitdir files that ListState
// skips: they are part of the layout, not state.
var structural = map[string]bool{
	headPath: true, configPath: true, worktreeCfgPath: true,
	indexPath: true, descriptionPath: true, packedRefsPath: true,
	shallowPath: true, daemonExportOk: true, gitdirFile: true,
	commondirFile: true,
}

// ListState enumerates present state files in the active gitdir,
// including sequencer entries.
func (d *DotGit) ListState() ([]string, error) {
	dir := d.activeDir()
	if dir == "" {
		dir = "."
	}

	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if name == "sequencer" {
				subs, err := d.fs.ReadDir(d.activePath(name))
				if err != nil {
					return nil, err
				}
				for _, s := range subs {
					if !s.IsDir() {
						out = append(out, path.Join(name, s.Name()))
					}
				}
			}
			continue
		}
		if structural[name] || strings.HasSuffix(name, ".lock") || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ReadShallow returns the shallow commit list, nil when absent.
func (d *DotGit) ReadShallow() ([]plumbing.ObjectID, error) {
	data, err := d.readFile(shallowPath)
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var out []plumbing.ObjectID
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, ok := plumbing.FromHex(line)
		if !ok {
			return nil, &plumbing.CorruptError{What: "shallow entry"}
		}
		out = append(out, id)
	}
	return out, nil
}

// WriteShallow replaces the shallow list; an empty list removes the
// file.
func (d *DotGit) WriteShallow(oids []plumbing.ObjectID) error {
	if len(oids) == 0 {
		err := d.removeFile(shallowPath)
		if errors.Is(err, plumbing.ErrNotFound) {
			return nil
		}
		return err
	}

	var b strings.Builder
	for _, id := range oids {
		b.WriteString(id.String())
		b.WriteByte('\n')
	}
	return d.writeFileAtomic(shallowPath, []byte(b.String()))
}

// DaemonExportOK reports the presence of the export flag file.
func (d *DotGit) DaemonExportOK() (bool, error) {
	return d.Exists(daemonExportOk)
}

// SetDaemonExportOK creates or removes the export flag file.
func (d *DotGit) SetDaemonExportOK(ok bool) error {
	if ok {
		return d.writeFileAtomic(daemonExportOk, nil)
	}
	err := d.removeFile(daemonExportOk)
	if errors.Is(err, plumbing.ErrNotFound) {
		return nil
	}
	return err
}

// ReadIndexBytes returns the active gitdir's index file bytes.
func (d *DotGit) ReadIndexBytes() ([]byte, error) {
	return d.readFile(d.activePath(indexPath))
}

// WriteIndexBytes replaces the active gitdir's index file.
func (d *DotGit) WriteIndexBytes(data []byte) error {
	return d.writeFileAtomic(d.activePath(indexPath), data)
}

// IndexPath returns the index path relative to the main gitdir.
func (d *DotGit) IndexPath() string {
	return d.activePath(indexPath)
}
