// Package sqlite implements the backend contract in a single SQLite
// database file, using the pure-Go driver. Observable semantics match
// the filesystem backend; the substrate differs.
package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/gitvault/gitvault/config"
	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/storage"
)

const (
	metaConfig         = "config"
	metaWorktreeConfig = "config.worktree"
	metaDescription    = "description"
	metaIndex          = "index"
)

// Backend stores a repository in a SQLite database.
type Backend struct {
	db *gorm.DB

	indexLock sync.Mutex
	refMu     sync.Mutex
	refLocks  map[string]*sync.Mutex

	packReader storage.PackReader
}

// Option configures a Backend.
type Option func(*Backend)

// WithPackReader wires the external pack resolution capability.
func WithPackReader(pr storage.PackReader) Option {
	return func(b *Backend) { b.packReader = pr }
}

// Open opens (creating if needed) a repository database. WAL mode
// keeps readers unblocked while a writer is active; busy_timeout
// retries instead of failing with SQLITE_BUSY.
func Open(dbPath string, opts ...Option) (*Backend, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open repository database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout = 5000")

	if err := db.AutoMigrate(
		&CoreMetadata{}, &LooseObject{}, &Packfile{}, &Ref{}, &PackedRefs{},
		&Reflog{}, &Hook{}, &State{}, &Shallow{}, &Worktree{}, &Flags{},
	); err != nil {
		return nil, fmt.Errorf("migrate repository schema: %w", err)
	}

	b := &Backend{db: db, refLocks: map[string]*sync.Mutex{}}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Backend) conn(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (b *Backend) flags(ctx context.Context) (Flags, error) {
	var f Flags
	err := b.conn(ctx).First(&f, "id = 1").Error
	if notFound(err) {
		return Flags{ID: 1}, nil
	}
	return f, err
}

func (b *Backend) saveFlags(ctx context.Context, f Flags) error {
	f.ID = 1
	return b.conn(ctx).Save(&f).Error
}

func (b *Backend) readMeta(ctx context.Context, key string) ([]byte, error) {
	var row CoreMetadata
	err := b.conn(ctx).First(&row, "key = ?", key).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", plumbing.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return row.Value, nil
}

func (b *Backend) writeMeta(ctx context.Context, key string, value []byte) error {
	return b.conn(ctx).Save(&CoreMetadata{Key: key, Value: value}).Error
}

// Init writes the bare structure. Re-initialization refuses to change
// an already-set object format.
func (b *Backend) Init(ctx context.Context, opts storage.InitOptions) error {
	if err := storage.ApplyInitDefaults(&opts); err != nil {
		return err
	}
	if !opts.ObjectFormat.Valid() {
		return format.ErrInvalidObjectFormat
	}

	flags, err := b.flags(ctx)
	if err != nil {
		return err
	}
	if flags.Initialized {
		current, err := b.ObjectFormat(ctx)
		if err != nil {
			return err
		}
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
	if err := b.writeMeta(ctx, metaConfig, data); err != nil {
		return err
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD,
		plumbing.NewBranchReferenceName(opts.DefaultBranch))
	if err := b.WriteRawRef(ctx, "HEAD", head.Content()); err != nil {
		return err
	}

	flags.Initialized = true
	return b.saveFlags(ctx, flags)
}

// IsInitialized reports whether Init has run.
func (b *Backend) IsInitialized(ctx context.Context) (bool, error) {
	flags, err := b.flags(ctx)
	if err != nil {
		return false, err
	}
	return flags.Initialized, nil
}

// Exists maps well-known relpaths onto table presence.
func (b *Backend) Exists(ctx context.Context, relpath string) (bool, error) {
	switch {
	case relpath == "HEAD" || strings.HasPrefix(relpath, "refs/"):
		var n int64
		err := b.conn(ctx).Model(&Ref{}).Where("ref = ?", relpath).Count(&n).Error
		return n > 0, err
	case relpath == "config" || relpath == "description" || relpath == "index":
		_, err := b.readMeta(ctx, relpath)
		if errors.Is(err, plumbing.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	case strings.HasPrefix(relpath, "objects/pack/"):
		name := strings.TrimPrefix(relpath, "objects/pack/")
		kind := "pack"
		if strings.HasSuffix(name, ".idx") {
			kind = "idx"
		}
		name = strings.TrimSuffix(strings.TrimSuffix(name, ".idx"), ".pack")
		var n int64
		err := b.conn(ctx).Model(&Packfile{}).Where("name = ? AND kind = ?", name, kind).Count(&n).Error
		return n > 0, err
	case strings.HasPrefix(relpath, "objects/"):
		oid := strings.ReplaceAll(strings.TrimPrefix(relpath, "objects/"), "/", "")
		var n int64
		err := b.conn(ctx).Model(&LooseObject{}).Where("oid = ?", oid).Count(&n).Error
		return n > 0, err
	case strings.HasPrefix(relpath, "logs/"):
		var n int64
		err := b.conn(ctx).Model(&Reflog{}).Where("ref = ?", strings.TrimPrefix(relpath, "logs/")).Count(&n).Error
		return n > 0, err
	case strings.HasPrefix(relpath, "hooks/"):
		var n int64
		err := b.conn(ctx).Model(&Hook{}).Where("name = ?", strings.TrimPrefix(relpath, "hooks/")).Count(&n).Error
		return n > 0, err
	case relpath == "git-daemon-export-ok":
		return b.DaemonExportOK(ctx)
	default:
		var n int64
		err := b.conn(ctx).Model(&State{}).Where("name = ?", relpath).Count(&n).Error
		return n > 0, err
	}
}

// Close closes the database connection.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ObjectFormat returns the configured hash family.
func (b *Backend) ObjectFormat(ctx context.Context) (format.ObjectFormat, error) {
	raw, err := b.ReadConfig(ctx)
	if err != nil {
		return format.UnsetObjectFormat, err
	}
	return config.ReadFrom(raw).ObjectFormat(), nil
}

func (b *Backend) readConfigKey(ctx context.Context, key string) (*format.Config, error) {
	data, err := b.readMeta(ctx, key)
	if errors.Is(err, plumbing.ErrNotFound) {
		return format.New(), nil
	}
	if err != nil {
		return nil, err
	}

	raw := format.New()
	if err := format.NewDecoder(bytes.NewReader(data)).Decode(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *Backend) writeConfigKey(ctx context.Context, key string, cfg *format.Config) error {
	var buf bytes.Buffer
	if err := format.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return b.writeMeta(ctx, key, buf.Bytes())
}

// ReadConfig returns the local-scope raw config.
func (b *Backend) ReadConfig(ctx context.Context) (*format.Config, error) {
	return b.readConfigKey(ctx, metaConfig)
}

// WriteConfig replaces the local-scope config.
func (b *Backend) WriteConfig(ctx context.Context, cfg *format.Config) error {
	return b.writeConfigKey(ctx, metaConfig, cfg)
}

// ReadWorktreeConfig returns the worktree-scope raw config.
func (b *Backend) ReadWorktreeConfig(ctx context.Context) (*format.Config, error) {
	return b.readConfigKey(ctx, metaWorktreeConfig)
}

// WriteWorktreeConfig replaces the worktree-scope config.
func (b *Backend) WriteWorktreeConfig(ctx context.Context, cfg *format.Config) error {
	return b.writeConfigKey(ctx, metaWorktreeConfig, cfg)
}

// ReadDescription returns the description text.
func (b *Backend) ReadDescription(ctx context.Context) (string, error) {
	data, err := b.readMeta(ctx, metaDescription)
	if errors.Is(err, plumbing.ErrNotFound) {
		return "", nil
	}
	return string(data), err
}

// WriteDescription replaces the description.
func (b *Backend) WriteDescription(ctx context.Context, text string) error {
	return b.writeMeta(ctx, metaDescription, []byte(text))
}

// ReadState returns a named state blob.
func (b *Backend) ReadState(ctx context.Context, name string) ([]byte, error) {
	var row State
	err := b.conn(ctx).First(&row, "name = ?", name).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", plumbing.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return row.Val, nil
}

// WriteState stores a named state blob.
func (b *Backend) WriteState(ctx context.Context, name string, data []byte) error {
	return b.conn(ctx).Save(&State{Name: name, Val: data}).Error
}

// DeleteState removes a named state blob.
func (b *Backend) DeleteState(ctx context.Context, name string) error {
	res := b.conn(ctx).Delete(&State{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", plumbing.ErrNotFound, name)
	}
	return nil
}

// ListState enumerates present state names.
func (b *Backend) ListState(ctx context.Context) ([]string, error) {
	var names []string
	err := b.conn(ctx).Model(&State{}).Order("name").Pluck("name", &names).Error
	return names, err
}

// ReadShallow returns the shallow list.
func (b *Backend) ReadShallow(ctx context.Context) ([]plumbing.ObjectID, error) {
	var rows []Shallow
	if err := b.conn(ctx).Order("oid").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []plumbing.ObjectID
	for _, r := range rows {
		if id, ok := plumbing.FromHex(r.OID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// WriteShallow replaces the shallow list.
func (b *Backend) WriteShallow(ctx context.Context, oids []plumbing.ObjectID) error {
	return b.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Shallow{}).Error; err != nil {
			return err
		}
		for _, id := range oids {
			if err := tx.Create(&Shallow{OID: id.String()}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DaemonExportOK reflects the export flag.
func (b *Backend) DaemonExportOK(ctx context.Context) (bool, error) {
	flags, err := b.flags(ctx)
	return flags.DaemonExportOK, err
}

// SetDaemonExportOK toggles the export flag.
func (b *Backend) SetDaemonExportOK(ctx context.Context, ok bool) error {
	flags, err := b.flags(ctx)
	if err != nil {
		return err
	}
	flags.DaemonExportOK = ok
	return b.saveFlags(ctx, flags)
}

// ReadIndex decodes the staging area.
func (b *Backend) ReadIndex(ctx context.Context) (*index.Index, error) {
	data, err := b.readMeta(ctx, metaIndex)
	if errors.Is(err, plumbing.ErrNotFound) {
		return index.New(), nil
	}
	if err != nil {
		return nil, err
	}

	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return nil, err
	}
	idx := &index.Index{}
	if err := index.NewDecoder(bytes.NewReader(data), f).Decode(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// WriteIndex serializes and stores the staging area.
func (b *Backend) WriteIndex(ctx context.Context, idx *index.Index) error {
	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := index.NewEncoder(&buf, f).Encode(idx); err != nil {
		return err
	}
	return b.writeMeta(ctx, metaIndex, buf.Bytes())
}

type mutexUnlocker struct {
	mu   *sync.Mutex
	once sync.Once
}

func (u *mutexUnlocker) Unlock() error {
	u.once.Do(u.mu.Unlock)
	return nil
}

// LockIndex acquires the index lock, an in-process mutex of this
// Backend value; no database row is locked.
func (b *Backend) LockIndex(ctx context.Context) (storage.Unlocker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.indexLock.Lock()
	return &mutexUnlocker{mu: &b.indexLock}, nil
}

// IndexPath is empty: the database is not path-based.
func (b *Backend) IndexPath() string { return "" }

// ReadLoose returns a loose object's deflated bytes.
func (b *Backend) ReadLoose(ctx context.Context, oid plumbing.ObjectID) ([]byte, error) {
	var row LooseObject
	err := b.conn(ctx).First(&row, "oid = ?", oid.String()).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", plumbing.ErrObjectNotFound, oid)
	}
	if err != nil {
		return nil, err
	}
	return row.Blob, nil
}

// WriteLoose stores a loose object. Write-once semantics are kept with
// insert-or-ignore.
func (b *Backend) WriteLoose(ctx context.Context, oid plumbing.ObjectID, deflated []byte) error {
	return b.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LooseObject{OID: oid.String(), Blob: deflated}).Error
}

// HasLoose reports loose object presence.
func (b *Backend) HasLoose(ctx context.Context, oid plumbing.ObjectID) (bool, error) {
	var n int64
	err := b.conn(ctx).Model(&LooseObject{}).Where("oid = ?", oid.String()).Count(&n).Error
	return n > 0, err
}

// ListLoose enumerates loose object IDs.
func (b *Backend) ListLoose(ctx context.Context) ([]plumbing.ObjectID, error) {
	var oids []string
	if err := b.conn(ctx).Model(&LooseObject{}).Order("oid").Pluck("oid", &oids).Error; err != nil {
		return nil, err
	}
	var out []plumbing.ObjectID
	for _, s := range oids {
		if id, ok := plumbing.FromHex(s); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (b *Backend) readPackKind(ctx context.Context, name, kind string) ([]byte, error) {
	var row Packfile
	err := b.conn(ctx).First(&row, "name = ? AND kind = ?", name, kind).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s %s", plumbing.ErrNotFound, kind, name)
	}
	if err != nil {
		return nil, err
	}
	return row.Blob, nil
}

// ReadPack returns a packfile by basename.
func (b *Backend) ReadPack(ctx context.Context, name string) ([]byte, error) {
	return b.readPackKind(ctx, name, "pack")
}

// WritePack stores a packfile.
func (b *Backend) WritePack(ctx context.Context, name string, data []byte) error {
	return b.conn(ctx).Save(&Packfile{Name: name, Kind: "pack", Blob: data}).Error
}

// ListPacks enumerates pack basenames.
func (b *Backend) ListPacks(ctx context.Context) ([]string, error) {
	var names []string
	err := b.conn(ctx).Model(&Packfile{}).Where("kind = ?", "pack").Order("name").Pluck("name", &names).Error
	return names, err
}

// ReadPackIndex returns a pack index by basename.
func (b *Backend) ReadPackIndex(ctx context.Context, name string) ([]byte, error) {
	return b.readPackKind(ctx, name, "idx")
}

// WritePackIndex stores a pack index.
func (b *Backend) WritePackIndex(ctx context.Context, name string, data []byte) error {
	return b.conn(ctx).Save(&Packfile{Name: name, Kind: "idx", Blob: data}).Error
}

// PackReader returns the wired pack capability, or nil.
func (b *Backend) PackReader() storage.PackReader { return b.packReader }

// ReadRawRef returns the loose serialization of a ref.
func (b *Backend) ReadRawRef(ctx context.Context, name string) (string, error) {
	var row Ref
	err := b.conn(ctx).First(&row, "ref = ?", name).Error
	if notFound(err) {
		return "", fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// WriteRawRef replaces a ref.
func (b *Backend) WriteRawRef(ctx context.Context, name string, content string) error {
	return b.conn(ctx).Save(&Ref{Ref: name, Value: content}).Error
}

// DeleteRawRef removes a ref.
func (b *Backend) DeleteRawRef(ctx context.Context, name string) error {
	res := b.conn(ctx).Delete(&Ref{}, "ref = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
	}
	return nil
}

// ListRefNames enumerates refs under a prefix.
func (b *Backend) ListRefNames(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = "refs/"
	}

	var names []string
	err := b.conn(ctx).Model(&Ref{}).
		Where("ref LIKE ? OR ref = ?", prefix+"%", strings.TrimSuffix(prefix, "/")).
		Order("ref").Pluck("ref", &names).Error
	return names, err
}

// LockRef acquires the per-ref advisory lock.
func (b *Backend) LockRef(ctx context.Context, name string) (storage.Unlocker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.refMu.Lock()
	mu, ok := b.refLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		b.refLocks[name] = mu
	}
	b.refMu.Unlock()

	mu.Lock()
	return &mutexUnlocker{mu: mu}, nil
}

// ReadPackedRefs returns the packed-refs body.
func (b *Backend) ReadPackedRefs(ctx context.Context) (string, error) {
	var row PackedRefs
	err := b.conn(ctx).First(&row, "id = 1").Error
	if notFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Data, nil
}

// WritePackedRefs replaces the packed-refs body.
func (b *Backend) WritePackedRefs(ctx context.Context, text string) error {
	return b.conn(ctx).Save(&PackedRefs{ID: 1, Data: text}).Error
}

// ReadReflog returns a ref's log body.
func (b *Backend) ReadReflog(ctx context.Context, ref string) ([]byte, error) {
	var row Reflog
	err := b.conn(ctx).First(&row, "ref = ?", ref).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

// AppendReflog appends one entry to a ref's log row.
func (b *Backend) AppendReflog(ctx context.Context, ref string, line []byte) error {
	return b.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var row Reflog
		err := tx.First(&row, "ref = ?", ref).Error
		if err != nil && !notFound(err) {
			return err
		}
		row.Ref = ref
		row.Data = append(row.Data, line...)
		return tx.Save(&row).Error
	})
}

// DeleteReflog removes a ref's log.
func (b *Backend) DeleteReflog(ctx context.Context, ref string) error {
	return b.conn(ctx).Delete(&Reflog{}, "ref = ?", ref).Error
}

// ListReflogs enumerates refs that have logs.
func (b *Backend) ListReflogs(ctx context.Context) ([]string, error) {
	var refs []string
	err := b.conn(ctx).Model(&Reflog{}).Order("ref").Pluck("ref", &refs).Error
	return refs, err
}

// HasHook reports stored hook presence.
func (b *Backend) HasHook(ctx context.Context, name string) (bool, error) {
	var n int64
	err := b.conn(ctx).Model(&Hook{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

// ReadHook returns a stored hook body.
func (b *Backend) ReadHook(ctx context.Context, name string) ([]byte, error) {
	var row Hook
	err := b.conn(ctx).First(&row, "name = ?", name).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: hook %s", plumbing.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return row.Blob, nil
}

// WriteHook stores a hook body.
func (b *Backend) WriteHook(ctx context.Context, name string, body []byte) error {
	return b.conn(ctx).Save(&Hook{Name: name, Blob: body}).Error
}

// HookPath is empty: the database is not path-based.
func (b *Backend) HookPath(name string) string { return "" }

// ListWorktrees enumerates linked worktrees.
func (b *Backend) ListWorktrees(ctx context.Context) ([]string, error) {
	var names []string
	err := b.conn(ctx).Model(&Worktree{}).Order("name").Pluck("name", &names).Error
	sort.Strings(names)
	return names, err
}

// AddWorktree records a linked worktree.
func (b *Backend) AddWorktree(ctx context.Context, name string, worktreeDir string) error {
	var n int64
	if err := b.conn(ctx).Model(&Worktree{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("worktree %s already exists", name)
	}
	return b.conn(ctx).Create(&Worktree{Name: name, Dir: worktreeDir}).Error
}

// RemoveWorktree forgets a linked worktree.
func (b *Backend) RemoveWorktree(ctx context.Context, name string) error {
	res := b.conn(ctx).Delete(&Worktree{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return plumbing.ErrNotFound
	}
	return nil
}

// Gitdir is empty: the database is not path-based.
func (b *Backend) Gitdir() string { return "" }

var _ storage.Backend = (*Backend)(nil)

func init() {
	_ = storage.Register("sql", func(opts storage.Options) (storage.Backend, error) {
		if opts.SQL == nil || opts.SQL.DBPath == "" {
			return nil, fmt.Errorf("%w: sql backend needs a database path", storage.ErrUnknownBackend)
		}
		return Open(opts.SQL.DBPath)
	})
}
