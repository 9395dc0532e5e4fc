// Package storage defines the backend contract: the uniform operation
// surface over a repository's storage substrate. Three realizations
// exist: filesystem (bit-compatible with stock git), embedded SQLite
// and in-memory. Higher-level semantics (ref resolution, commit,
// merge) are plain functions over this contract, in the root package.
package storage

import (
	"context"
	"errors"

	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
	"github.com/gitvault/gitvault/plumbing/format/index"
)

var (
	// ErrUnknownBackend is returned by the registry when no factory is
	// registered under the requested name.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrBackendExists is returned when registering a name twice.
	ErrBackendExists = errors.New("backend already registered")
	// ErrNotInitialized is returned by operations that need an
	// initialized repository.
	ErrNotInitialized = errors.New("repository not initialized")
	// ErrFormatLocked is returned when re-initialization attempts to
	// change an already-set object format.
	ErrFormatLocked = errors.New("object format is locked")
)

// Unlocker releases a held lock. Unlock is idempotent.
type Unlocker interface {
	Unlock() error
}

// PackReader resolves objects stored in packfiles. Pack parsing and
// delta-chain reconstruction live outside this core; backends expose
// whatever reader they were wired with, or nil.
type PackReader interface {
	// ReadPacked returns the type and content-form bytes of a packed
	// object, or plumbing.ErrObjectNotFound.
	ReadPacked(ctx context.Context, oid plumbing.ObjectID) (plumbing.ObjectType, []byte, error)
}

// InitOptions configure repository initialization. Init always
// produces a bare structure.
type InitOptions struct {
	// DefaultBranch is the branch HEAD will point at; "master" when
	// empty.
	DefaultBranch string
	// ObjectFormat selects the hash family; sha1 when empty.
	ObjectFormat format.ObjectFormat
}

// Backend is the storage substrate contract. Every method takes a
// context and suspends at its substrate boundary; absent values are
// signalled with the plumbing sentinel errors, except that config,
// description, shallow list, index, packed-refs and reflogs read as
// empty values with no error when absent.
type Backend interface {
	// Init writes the bare repository structure. Re-initialization is
	// a no-op that refuses to change an already-set object format
	// (ErrFormatLocked).
	Init(ctx context.Context, opts InitOptions) error
	// IsInitialized reports whether the substrate holds a repository.
	IsInitialized(ctx context.Context) (bool, error)
	// Exists reports whether a repository-relative path is present.
	Exists(ctx context.Context, relpath string) (bool, error)
	// Close releases substrate resources. The in-memory backend clears
	// on Close.
	Close() error

	// ObjectFormat returns the repository hash family from config.
	ObjectFormat(ctx context.Context) (format.ObjectFormat, error)

	// ReadConfig returns the local-scope raw config.
	ReadConfig(ctx context.Context) (*format.Config, error)
	// WriteConfig replaces the local-scope raw config.
	WriteConfig(ctx context.Context, cfg *format.Config) error
	// ReadWorktreeConfig and WriteWorktreeConfig access the
	// worktree-scope config file, routed to the active gitdir.
	ReadWorktreeConfig(ctx context.Context) (*format.Config, error)
	WriteWorktreeConfig(ctx context.Context, cfg *format.Config) error

	ReadDescription(ctx context.Context) (string, error)
	WriteDescription(ctx context.Context, text string) error

	// State files are the named one-off files of the gitdir: MERGE_HEAD,
	// MERGE_MSG, ORIG_HEAD, sequencer/todo and friends. Worktree-
	// specific names are routed per the worktree rules.
	ReadState(ctx context.Context, name string) ([]byte, error)
	WriteState(ctx context.Context, name string, data []byte) error
	DeleteState(ctx context.Context, name string) error
	ListState(ctx context.Context) ([]string, error)

	ReadShallow(ctx context.Context) ([]plumbing.ObjectID, error)
	WriteShallow(ctx context.Context, oids []plumbing.ObjectID) error

	// DaemonExportOK reflects the presence of git-daemon-export-ok.
	DaemonExportOK(ctx context.Context) (bool, error)
	SetDaemonExportOK(ctx context.Context, ok bool) error

	// ReadIndex returns the staging area; a fresh empty index when the
	// substrate has none yet.
	ReadIndex(ctx context.Context) (*index.Index, error)
	WriteIndex(ctx context.Context, idx *index.Index) error
	// LockIndex acquires the exclusive index lock: one concurrent
	// commit per index.
	LockIndex(ctx context.Context) (Unlocker, error)
	// IndexPath is the substrate path of the index, for hook
	// environments; empty when the substrate is not path-based.
	IndexPath() string

	// Loose objects. WriteLoose is write-once: an existing object is
	// left untouched.
	ReadLoose(ctx context.Context, oid plumbing.ObjectID) ([]byte, error)
	WriteLoose(ctx context.Context, oid plumbing.ObjectID, deflated []byte) error
	HasLoose(ctx context.Context, oid plumbing.ObjectID) (bool, error)
	ListLoose(ctx context.Context) ([]plumbing.ObjectID, error)

	// Packfiles and their indices, by basename without extension
	// ("pack-<hash>").
	ReadPack(ctx context.Context, name string) ([]byte, error)
	WritePack(ctx context.Context, name string, data []byte) error
	ListPacks(ctx context.Context) ([]string, error)
	ReadPackIndex(ctx context.Context, name string) ([]byte, error)
	WritePackIndex(ctx context.Context, name string, data []byte) error
	// PackReader returns the wired pack resolution capability, or nil.
	PackReader() PackReader

	// Raw references. Content is the loose serialization ("<oid>\n" or
	// "ref: <target>\n"). Worktree-specific names route to the active
	// worktree gitdir. Writes are atomic.
	ReadRawRef(ctx context.Context, name string) (string, error)
	WriteRawRef(ctx context.Context, name string, content string) error
	DeleteRawRef(ctx context.Context, name string) error
	// ListRefNames enumerates loose refs under a prefix such as
	// "refs/heads/"; empty prefix lists all of refs/.
	ListRefNames(ctx context.Context, prefix string) ([]string, error)
	// LockRef guards the read-modify-write cycle of a single ref.
	LockRef(ctx context.Context, name string) (Unlocker, error)
	// ReadPackedRefs returns the packed-refs file body, empty when
	// absent.
	ReadPackedRefs(ctx context.Context) (string, error)
	WritePackedRefs(ctx context.Context, text string) error

	// Reflogs, by ref name. AppendReflog lazily creates the log.
	ReadReflog(ctx context.Context, ref string) ([]byte, error)
	AppendReflog(ctx context.Context, ref string, line []byte) error
	DeleteReflog(ctx context.Context, ref string) error
	ListReflogs(ctx context.Context) ([]string, error)

	// Hooks. HasHook respects core.hooksPath on path-based substrates.
	HasHook(ctx context.Context, name string) (bool, error)
	ReadHook(ctx context.Context, name string) ([]byte, error)
	WriteHook(ctx context.Context, name string, body []byte) error
	// HookPath is the substrate path of a hook, for executors; empty
	// when the substrate is not path-based.
	HookPath(name string) string

	// Linked worktrees.
	ListWorktrees(ctx context.Context) ([]string, error)
	AddWorktree(ctx context.Context, name string, worktreeDir string) error
	RemoveWorktree(ctx context.Context, name string) error

	// Gitdir is the substrate path of the active gitdir; empty when
	// not path-based.
	Gitdir() string
}
