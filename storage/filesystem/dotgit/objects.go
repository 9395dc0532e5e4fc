package dotgit

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
)

// objectPath maps an OID to objects/<first2>/<rest>.
func (d *DotGit) objectPath(oid plumbing.ObjectID) string {
	hex := oid.String()
	return d.fs.Join(objectsPath, hex[:2], hex[2:])
}

// ReadLoose returns the raw deflated bytes of a loose object.
func (d *DotGit) ReadLoose(oid plumbing.ObjectID) ([]byte, error) {
	data, err := d.readFile(d.objectPath(oid))
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", plumbing.ErrObjectNotFound, oid)
		}
		return nil, err
	}
	return data, nil
}

// HasLoose reports whether the loose object file exists.
func (d *DotGit) HasLoose(oid plumbing.ObjectID) (bool, error) {
	return d.Exists(d.objectPath(oid))
}

// WriteLoose stores the deflated bytes of a loose object. Writes are
// write-once: when the file already exists the write is skipped, since
// content addressing guarantees equivalence. Directory creation is
// lazy.
func (d *DotGit) WriteLoose(oid plumbing.ObjectID, deflated []byte) error {
	p := d.objectPath(oid)

	if ok, err := d.Exists(p); err != nil {
		return err
	} else if ok {
		return nil
	}

	return d.writeFileAtomic(p, deflated)
}

// ListLoose enumerates every loose object: regular files under a
// two-hex-digit directory whose name has the remaining hex digits of
// the active hash family.
func (d *DotGit) ListLoose(hexSize int) ([]plumbing.ObjectID, error) {
	dirs, err := d.fs.ReadDir(objectsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []plumbing.ObjectID
	for _, dir := range dirs {
		if !dir.IsDir() || len(dir.Name()) != 2 || !isHex(dir.Name()) {
			continue
		}

		files, err := d.fs.ReadDir(d.fs.Join(objectsPath, dir.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || len(f.Name()) != hexSize-2 || !isHex(f.Name()) {
				continue
			}
			if id, ok := plumbing.FromHex(dir.Name() + f.Name()); ok {
				out = append(out, id)
			}
		}
	}

	return out, nil
}

// packFilePath maps a pack name ("pack-<hash>") and extension to its
// path under objects/pack/.
func (d *DotGit) packFilePath(name, ext string) string {
	return d.fs.Join(objectsPath, packPath, name+ext)
}

// ReadPack returns a packfile's bytes by basename.
func (d *DotGit) ReadPack(name string) ([]byte, error) {
	return d.readFile(d.packFilePath(name, packExt))
}

// WritePack stores a packfile.
func (d *DotGit) WritePack(name string, data []byte) error {
	return d.writeFileAtomic(d.packFilePath(name, packExt), data)
}

// ReadPackIndex returns a pack index's bytes by pack basename.
func (d *DotGit) ReadPackIndex(name string) ([]byte, error) {
	return d.readFile(d.packFilePath(name, idxExt))
}

// WritePackIndex stores a pack index.
func (d *DotGit) WritePackIndex(name string, data []byte) error {
	return d.writeFileAtomic(d.packFilePath(name, idxExt), data)
}

// ListPacks enumerates pack basenames under objects/pack/.
func (d *DotGit) ListPacks() ([]string, error) {
	files, err := d.fs.ReadDir(d.fs.Join(objectsPath, packPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, f := range files {
		if strings.HasSuffix(f.Name(), packExt) {
			out = append(out, strings.TrimSuffix(f.Name(), packExt))
		}
	}
	return out, nil
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
