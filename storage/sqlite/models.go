package sqlite

// The table set mirrors the gitdir: one table per storage concern,
// singletons guarded with CHECK (id = 1).

// CoreMetadata holds one-off gitdir files keyed by name: config,
// config.worktree, description, index.
type CoreMetadata struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value []byte `gorm:"column:value"`
}

func (CoreMetadata) TableName() string { return "core_metadata" }

// LooseObject is a loose object row; the insert path preserves
// write-once semantics with insert-or-ignore on the oid key.
type LooseObject struct {
	OID  string `gorm:"primaryKey;column:oid"`
	Blob []byte `gorm:"column:blob"`
}

func (LooseObject) TableName() string { return "loose_objects" }

// Packfile rows carry packs and their derived files, discriminated by
// kind: pack, idx, bitmap or midx.
type Packfile struct {
	Name string `gorm:"primaryKey;column:name"`
	Kind string `gorm:"primaryKey;column:kind"`
	Blob []byte `gorm:"column:blob"`
}

func (Packfile) TableName() string { return "packfiles" }

// Ref is a loose reference row; value is the loose serialization.
type Ref struct {
	Ref   string `gorm:"primaryKey;column:ref"`
	Value string `gorm:"column:value"`
}

func (Ref) TableName() string { return "refs" }

// PackedRefs is the packed-refs table body, a singleton.
type PackedRefs struct {
	ID   int    `gorm:"primaryKey;column:id;check:id = 1"`
	Data string `gorm:"column:data"`
}

func (PackedRefs) TableName() string { return "packed_refs" }

// Reflog is a whole per-ref log body; appends rewrite the row.
type Reflog struct {
	Ref  string `gorm:"primaryKey;column:ref"`
	Data []byte `gorm:"column:data"`
}

func (Reflog) TableName() string { return "reflogs" }

// Hook is a stored hook body.
type Hook struct {
	Name string `gorm:"primaryKey;column:name"`
	Blob []byte `gorm:"column:blob"`
}

func (Hook) TableName() string { return "hooks" }

// State is a named state file: MERGE_HEAD, ORIG_HEAD, sequencer/todo…
type State struct {
	Name string `gorm:"primaryKey;column:name"`
	Val  []byte `gorm:"column:val"`
}

func (State) TableName() string { return "state" }

// Shallow is one shallow commit boundary row.
type Shallow struct {
	OID string `gorm:"primaryKey;column:oid"`
}

func (Shallow) TableName() string { return "shallow" }

// Worktree records a linked worktree and its working directory.
type Worktree struct {
	Name string `gorm:"primaryKey;column:name"`
	Dir  string `gorm:"column:dir"`
}

func (Worktree) TableName() string { return "worktrees" }

// Flags is the singleton row of boolean repository flags.
type Flags struct {
	ID             int  `gorm:"primaryKey;column:id;check:id = 1"`
	Initialized    bool `gorm:"column:initialized"`
	DaemonExportOK bool `gorm:"column:daemon_export_ok"`
}

func (Flags) TableName() string { return "flags" }
