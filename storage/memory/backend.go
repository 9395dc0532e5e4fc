// Package memory implements the backend contract in process memory,
// mirroring the SQL backend's table shapes. It is ephemeral: Close
// clears everything. Because there is no ambient file presence, a
// writtenFiles set backs Exists.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gitvault/gitvault/config"
	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
)

// Backend stores a repository in memory.
type Backend struct {
	mu sync.Mutex

	initialized bool
	configText  []byte
	wtConfig    []byte
	description string
	state       map[string][]byte
	shallow     []plumbing.ObjectID
	daemonOK    bool

	indexBytes []byte

	loose     map[string][]byte
	packs     map[string][]byte
	packIdxs  map[string][]byte
	refs      map[string]string
	packed    string
	reflogs   map[string][]byte
	hooks     map[string][]byte
	worktrees map[string]string

	// writtenFiles tracks Exists semantics; memory has no ambient
	// file presence.
	writtenFiles map[string]bool

	indexLock sync.Mutex
	refLocks  map[string]*sync.Mutex

	packReader storage.PackReader
}

// NewBackend returns an empty in-memory backend.
func NewBackend() *Backend {
	b := &Backend{}
	b.reset()
	return b
}

func (b *Backend) reset() {
	b.initialized = false
	b.configText = nil
	b.wtConfig = nil
	b.description = ""
	b.state = map[string][]byte{}
	b.shallow = nil
	b.daemonOK = false
	b.indexBytes = nil
	b.loose = map[string][]byte{}
	b.packs = map[string][]byte{}
	b.packIdxs = map[string][]byte{}
	b.refs = map[string]string{}
	b.packed = ""
	b.reflogs = map[string][]byte{}
	b.hooks = map[string][]byte{}
	b.worktrees = map[string]string{}
	b.writtenFiles = map[string]bool{}
	b.refLocks = map[string]*sync.Mutex{}
}

func check(ctx context.Context) error { return ctx.Err() }

// Init writes the bare structure into memory. Re-initialization
// refuses to change an already-set object format.
func (b *Backend) Init(ctx context.Context, opts storage.InitOptions) error {
	if err := check(ctx); err != nil {
		return err
	}
	if err := storage.ApplyInitDefaults(&opts); err != nil {
		return err
	}
	if !opts.ObjectFormat.Valid() {
		return format.ErrInvalidObjectFormat
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		current := b.objectFormatLocked()
		if current != opts.ObjectFormat {
			return fmt.Errorf("%w: %s", storage.ErrFormatLocked, current)
		}
		return nil
	}

	cfg := config.NewDefault()
	cfg.Core.Bare = true
	if opts.ObjectFormat == format.SHA256 {
		cfg.Core.RepositoryFormatVersion = format.Version1
		cfg.Extensions.ObjectFormat = format.SHA256
	}
	cfg.Init.DefaultBranch = opts.DefaultBranch

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	b.configText = data
	b.refs["HEAD"] = plumbing.NewSymbolicReference(plumbing.HEAD,
		plumbing.NewBranchReferenceName(opts.DefaultBranch)).Content()
	b.writtenFiles["HEAD"] = true
	b.writtenFiles["config"] = true
	b.initialized = true
	return nil
}

// IsInitialized reports whether Init has run.
func (b *Backend) IsInitialized(ctx context.Context) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized, nil
}

// Exists reports whether a relpath has been written.
func (b *Backend) Exists(ctx context.Context, relpath string) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writtenFiles[relpath], nil
}

// Close clears the whole store.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	return nil
}

func (b *Backend) objectFormatLocked() format.ObjectFormat {
	raw := format.New()
	if len(b.configText) > 0 {
		_ = format.NewDecoder(bytes.NewReader(b.configText)).Decode(raw)
	}
	return config.ReadFrom(raw).ObjectFormat()
}

// ObjectFormat returns the configured hash family.
func (b *Backend) ObjectFormat(ctx context.Context) (format.ObjectFormat, error) {
	if err := check(ctx); err != nil {
		return format.UnsetObjectFormat, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objectFormatLocked(), nil
}

// ReadConfig returns the local-scope raw config.
func (b *Backend) ReadConfig(ctx context.Context) (*format.Config, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	data := b.configText
	b.mu.Unlock()

	raw := format.New()
	if len(data) == 0 {
		return raw, nil
	}
	if err := format.NewDecoder(bytes.NewReader(data)).Decode(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WriteConfig replaces the local-scope config.
func (b *Backend) WriteConfig(ctx context.Context, cfg *format.Config) error {
	if err := check(ctx); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := format.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}

	b.mu.Lock()
	b.configText = buf.Bytes()
	b.writtenFiles["config"] = true
	b.mu.Unlock()
	return nil
}

// ReadWorktreeConfig returns the worktree-scope raw config.
func (b *Backend) ReadWorktreeConfig(ctx context.Context) (*format.Config, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	data := b.wtConfig
	b.mu.Unlock()

	raw := format.New()
	if len(data) == 0 {
		return raw, nil
	}
	if err := format.NewDecoder(bytes.NewReader(data)).Decode(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WriteWorktreeConfig replaces the worktree-scope config.
func (b *Backend) WriteWorktreeConfig(ctx context.Context, cfg *format.Config) error {
	if err := check(ctx); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := format.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}

	b.mu.Lock()
	b.wtConfig = buf.Bytes()
	b.writtenFiles["config.worktree"] = true
	b.mu.Unlock()
	return nil
}

// ReadDescription returns the description text.
func (b *Backend) ReadDescription(ctx context.Context) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.description, nil
}

// WriteDescription replaces the description.
func (b *Backend) WriteDescription(ctx context.Context, text string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.description = text
	b.writtenFiles["description"] = true
	b.mu.Unlock()
	return nil
}

// ReadState returns a named state blob.
func (b *Backend) ReadState(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.state[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", plumbing.ErrNotFound, name)
	}
	return data, nil
}

// WriteState stores a named state blob.
func (b *Backend) WriteState(ctx context.Context, name string, data []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.state[name] = data
	b.writtenFiles[name] = true
	b.mu.Unlock()
	return nil
}

// DeleteState removes a named state blob.
func (b *Backend) DeleteState(ctx context.Context, name string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.state[name]; !ok {
		return fmt.Errorf("%w: %s", plumbing.ErrNotFound, name)
	}
	delete(b.state, name)
	delete(b.writtenFiles, name)
	return nil
}

// ListState enumerates present state names.
func (b *Backend) ListState(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.state))
	for name := range b.state {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ReadShallow returns the shallow list.
func (b *Backend) ReadShallow(ctx context.Context) ([]plumbing.ObjectID, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]plumbing.ObjectID(nil), b.shallow...), nil
}

// WriteShallow replaces the shallow list.
func (b *Backend) WriteShallow(ctx context.Context, oids []plumbing.ObjectID) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.shallow = append([]plumbing.ObjectID(nil), oids...)
	b.mu.Unlock()
	return nil
}

// DaemonExportOK reflects the export flag.
func (b *Backend) DaemonExportOK(ctx context.Context) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.daemonOK, nil
}

// SetDaemonExportOK toggles the export flag.
func (b *Backend) SetDaemonExportOK(ctx context.Context, ok bool) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.daemonOK = ok
	if ok {
		b.writtenFiles["git-daemon-export-ok"] = true
	} else {
		delete(b.writtenFiles, "git-daemon-export-ok")
	}
	b.mu.Unlock()
	return nil
}

// ReadIndex decodes the staging area.
func (b *Backend) ReadIndex(ctx context.Context) (*index.Index, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	data := b.indexBytes
	f := b.objectFormatLocked()
	b.mu.Unlock()

	if len(data) == 0 {
		return index.New(), nil
	}
	idx := &index.Index{}
	if err := index.NewDecoder(bytes.NewReader(data), f).Decode(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// WriteIndex serializes and stores the staging area.
func (b *Backend) WriteIndex(ctx context.Context, idx *index.Index) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	f := b.objectFormatLocked()
	b.mu.Unlock()

	var buf bytes.Buffer
	if err := index.NewEncoder(&buf, f).Encode(idx); err != nil {
		return err
	}

	b.mu.Lock()
	b.indexBytes = buf.Bytes()
	b.writtenFiles["index"] = true
	b.mu.Unlock()
	return nil
}

type mutexUnlocker struct {
	mu   *sync.Mutex
	once sync.Once
}

func (u *mutexUnlocker) Unlock() error {
	u.once.Do(u.mu.Unlock)
	return nil
}

// LockIndex acquires the index lock.
func (b *Backend) LockIndex(ctx context.Context) (storage.Unlocker, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.indexLock.Lock()
	return &mutexUnlocker{mu: &b.indexLock}, nil
}

// IndexPath is empty: memory is not path-based.
func (b *Backend) IndexPath() string { return "" }

// ReadLoose returns a loose object's deflated bytes.
func (b *Backend) ReadLoose(ctx context.Context, oid plumbing.ObjectID) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.loose[oid.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", plumbing.ErrObjectNotFound, oid)
	}
	return data, nil
}

// WriteLoose stores a loose object; write-once.
func (b *Backend) WriteLoose(ctx context.Context, oid plumbing.ObjectID, deflated []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := oid.String()
	if _, ok := b.loose[key]; ok {
		return nil
	}
	b.loose[key] = deflated
	b.writtenFiles["objects/"+key[:2]+"/"+key[2:]] = true
	return nil
}

// HasLoose reports loose object presence.
func (b *Backend) HasLoose(ctx context.Context, oid plumbing.ObjectID) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.loose[oid.String()]
	return ok, nil
}

// ListLoose enumerates loose object IDs.
func (b *Backend) ListLoose(ctx context.Context) ([]plumbing.ObjectID, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]plumbing.ObjectID, 0, len(b.loose))
	for k := range b.loose {
		if id, ok := plumbing.FromHex(k); ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(a, c int) bool { return out[a].String() < out[c].String() })
	return out, nil
}

// ReadPack returns a packfile by basename.
func (b *Backend) ReadPack(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.packs[name]
	if !ok {
		return nil, fmt.Errorf("%w: pack %s", plumbing.ErrNotFound, name)
	}
	return data, nil
}

// WritePack stores a packfile.
func (b *Backend) WritePack(ctx context.Context, name string, data []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.packs[name] = data
	b.writtenFiles["objects/pack/"+name+".pack"] = true
	b.mu.Unlock()
	return nil
}

// ListPacks enumerates pack basenames.
func (b *Backend) ListPacks(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.packs))
	for name := range b.packs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ReadPackIndex returns a pack index by basename.
func (b *Backend) ReadPackIndex(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.packIdxs[name]
	if !ok {
		return nil, fmt.Errorf("%w: pack index %s", plumbing.ErrNotFound, name)
	}
	return data, nil
}

// WritePackIndex stores a pack index.
func (b *Backend) WritePackIndex(ctx context.Context, name string, data []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.packIdxs[name] = data
	b.writtenFiles["objects/pack/"+name+".idx"] = true
	b.mu.Unlock()
	return nil
}

// PackReader returns the wired pack capability, or nil.
func (b *Backend) PackReader() storage.PackReader { return b.packReader }

// ReadRawRef returns the loose serialization of a ref.
func (b *Backend) ReadRawRef(ctx context.Context, name string) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.refs[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
	}
	return content, nil
}

// WriteRawRef replaces a ref.
func (b *Backend) WriteRawRef(ctx context.Context, name string, content string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.refs[name] = content
	b.writtenFiles[name] = true
	b.mu.Unlock()
	return nil
}

// DeleteRawRef removes a ref.
func (b *Backend) DeleteRawRef(ctx context.Context, name string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refs[name]; !ok {
		return fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
	}
	delete(b.refs, name)
	delete(b.writtenFiles, name)
	return nil
}

// ListRefNames enumerates refs under a prefix.
func (b *Backend) ListRefNames(ctx context.Context, prefix string) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "refs/"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for name := range b.refs {
		if strings.HasPrefix(name, prefix) || name == strings.TrimSuffix(prefix, "/") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LockRef acquires the per-ref write lock.
func (b *Backend) LockRef(ctx context.Context, name string) (storage.Unlocker, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	mu, ok := b.refLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		b.refLocks[name] = mu
	}
	b.mu.Unlock()

	mu.Lock()
	return &mutexUnlocker{mu: mu}, nil
}

// ReadPackedRefs returns the packed-refs body.
func (b *Backend) ReadPackedRefs(ctx context.Context) (string, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.packed, nil
}

// WritePackedRefs replaces the packed-refs body.
func (b *Backend) WritePackedRefs(ctx context.Context, text string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.packed = text
	b.writtenFiles["packed-refs"] = true
	b.mu.Unlock()
	return nil
}

// ReadReflog returns a ref's log body.
func (b *Backend) ReadReflog(ctx context.Context, ref string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reflogs[ref], nil
}

// AppendReflog appends one entry to a ref's log.
func (b *Backend) AppendReflog(ctx context.Context, ref string, line []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.reflogs[ref] = append(b.reflogs[ref], line...)
	b.writtenFiles["logs/"+ref] = true
	b.mu.Unlock()
	return nil
}

// DeleteReflog removes a ref's log.
func (b *Backend) DeleteReflog(ctx context.Context, ref string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.reflogs, ref)
	delete(b.writtenFiles, "logs/"+ref)
	b.mu.Unlock()
	return nil
}

// ListReflogs enumerates refs that have logs.
func (b *Backend) ListReflogs(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.reflogs))
	for ref := range b.reflogs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out, nil
}

// HasHook reports stored hook presence.
func (b *Backend) HasHook(ctx context.Context, name string) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.hooks[name]
	return ok, nil
}

// ReadHook returns a stored hook body.
func (b *Backend) ReadHook(ctx context.Context, name string) ([]byte, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.hooks[name]
	if !ok {
		return nil, fmt.Errorf("%w: hook %s", plumbing.ErrNotFound, name)
	}
	return body, nil
}

// WriteHook stores a hook body.
func (b *Backend) WriteHook(ctx context.Context, name string, body []byte) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.hooks[name] = body
	b.writtenFiles["hooks/"+name] = true
	b.mu.Unlock()
	return nil
}

// HookPath is empty: memory is not path-based.
func (b *Backend) HookPath(name string) string { return "" }

// ListWorktrees enumerates linked worktrees.
func (b *Backend) ListWorktrees(ctx context.Context) ([]string, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.worktrees))
	for name := range b.worktrees {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// AddWorktree records a linked worktree.
func (b *Backend) AddWorktree(ctx context.Context, name string, worktreeDir string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.worktrees[name]; ok {
		return fmt.Errorf("worktree %s already exists", name)
	}
	b.worktrees[name] = worktreeDir
	b.writtenFiles["worktrees/"+name+"/gitdir"] = true
	return nil
}

// RemoveWorktree forgets a linked worktree.
func (b *Backend) RemoveWorktree(ctx context.Context, name string) error {
	if err := check(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.worktrees[name]; !ok {
		return plumbing.ErrNotFound
	}
	delete(b.worktrees, name)
	delete(b.writtenFiles, "worktrees/"+name+"/gitdir")
	return nil
}

// Gitdir is empty: memory is not path-based.
func (b *Backend) Gitdir() string { return "" }

var _ storage.Backend = (*Backend)(nil)

func init() {
	_ = storage.Register("memory", func(opts storage.Options) (storage.Backend, error) {
		return NewBackend(), nil
	})
}
