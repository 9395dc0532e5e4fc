package storage

import (
	"fmt"
	"strings"
	"sync"

	"dario.cat/mergo"
)

// Options is the tagged union handed to backend factories. Exactly one
// of the realization structs is set; Custom carries options for
// externally registered backends.
type Options struct {
	Filesystem *FilesystemOptions
	SQL        *SQLOptions
	InMemory   bool
	Custom     map[string]string
}

// FilesystemOptions locate a gitdir on a filesystem.
type FilesystemOptions struct {
	// Gitdir is the repository directory path (a main gitdir or a
	// linked worktree gitdir).
	Gitdir string
}

// SQLOptions locate a single-file SQL repository.
type SQLOptions struct {
	// DBPath is the database file path.
	DBPath string
	// Driver is not consulted; the sql backend always opens SQLite.
	Driver string
}

// Factory builds a backend from options.
type Factory func(opts Options) (Backend, error)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: map[string]Factory{}}

// Register installs a named backend factory. Registration is one-shot
// per name: a second registration fails with ErrBackendExists rather
// than silently reconfiguring the process.
func Register(name string, f Factory) error {
	registry.Lock()
	defer registry.Unlock()

	if _, ok := registry.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrBackendExists, name)
	}
	registry.factories[name] = f
	return nil
}

// Open builds a backend by registry name.
func Open(name string, opts Options) (Backend, error) {
	registry.RLock()
	f, ok := registry.factories[name]
	registry.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return f(opts)
}

// Detect picks a backend name from a repository path: the SQL backend
// for database file suffixes, the filesystem backend otherwise.
func Detect(path string) string {
	for _, suffix := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, suffix) {
			return "sql"
		}
	}
	return "filesystem"
}

// ApplyInitDefaults fills the zero fields of init options with the
// documented defaults.
func ApplyInitDefaults(opts *InitOptions) error {
	return mergo.Merge(opts, InitOptions{
		DefaultBranch: "master",
		ObjectFormat:  "sha1",
	})
}
