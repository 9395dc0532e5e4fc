package dotgit

import (
	"os"
)

// ReadHook returns a hook body from the given hooks directory of the
// main gitdir.
func (d *DotGit) ReadHook(dir, name string) ([]byte, error) {
	return d.readFile(d.fs.Join(dir, name))
}

// WriteHook stores a hook body and sets the executable bit where the
// filesystem honors it.
func (d *DotGit) WriteHook(dir, name string, body []byte) error {
	p := d.fs.Join(dir, name)
	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := d.fs.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
