// Package index implements the binary staging-area format (DIRC
// versions 2 and 3), including conflict stages.
package index

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gitvault/gitvault/plumbing"
)

var (
	// ErrUnsupportedVersion is returned by Decode when the index file
	// version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported index version")
	// ErrEntryNotFound is returned by Index.Entry, if an entry is not found.
	ErrEntryNotFound = errors.New("entry not found")

	indexSignature = []byte{'D', 'I', 'R', 'C'}
)

// Stage during merge.
type Stage int

const (
	// Merged is the default stage, fully merged.
	Merged Stage = 0
	// AncestorMode is the common ancestor during a conflict.
	AncestorMode Stage = 1
	// OurMode is the first tree revision, ours.
	OurMode Stage = 2
	// TheirMode is the second tree revision, theirs.
	TheirMode Stage = 3
)

// Index is the staging area: a flat list of path entries, kept sorted
// by (path, stage), plus the version the file round-trips at.
type Index struct {
	// Version is the index format version, 2 or 3. Version 3 is
	// required once any entry carries extended flags.
	Version uint32
	// Entries collection of entries represented by this Index, sorted
	// by (Name, Stage).
	Entries []*Entry
}

// Entry represents a single stage of a file in the staging area. If a
// path is unmerged then multiple Entry instances exist for it.
type Entry struct {
	// Hash is the object ID of the staged content.
	Hash plumbing.ObjectID
	// Name is the entry path, slash-separated, relative to the root.
	Name string
	// CreatedAt and ModifiedAt are the cached stat timestamps,
	// truncated to seconds plus nanoseconds.
	CreatedAt  time.Time
	ModifiedAt time.Time
	// Dev and Inode of the tracked path; zero on substrates that
	// cannot supply them.
	Dev, Inode uint32
	// Mode of the path.
	Mode plumbing.FileMode
	// UID and GID of the owner; zero on substrates that cannot supply
	// them.
	UID, GID uint32
	// Size is the length in bytes for regular files.
	Size uint32
	// Stage identifies the conflict slot this entry occupies.
	Stage Stage
	// SkipWorktree is used in sparse checkouts.
	SkipWorktree bool
	// IntentToAdd records only the fact that the path will be added
	// later.
	IntentToAdd bool
}

func (e *Entry) extended() bool {
	return e.SkipWorktree || e.IntentToAdd
}

// New returns an empty version-2 index.
func New() *Index {
	return &Index{Version: 2}
}

// CanonicalPath normalizes a path for index storage: forward slashes,
// no leading "./".
func CanonicalPath(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// Insert upserts an entry, keyed on (Name, Stage), keeping the entry
// list sorted. The entry's path is canonicalized in place.
func (i *Index) Insert(e *Entry) {
	e.Name = CanonicalPath(e.Name)

	pos := sort.Search(len(i.Entries), func(k int) bool {
		return !entryLess(i.Entries[k], e)
	})

	if pos < len(i.Entries) && i.Entries[pos].Name == e.Name && i.Entries[pos].Stage == e.Stage {
		i.Entries[pos] = e
		return
	}

	i.Entries = append(i.Entries, nil)
	copy(i.Entries[pos+1:], i.Entries[pos:])
	i.Entries[pos] = e
}

// Entry returns the entry at path for the given stage.
func (i *Index) Entry(path string, stage Stage) (*Entry, error) {
	path = CanonicalPath(path)
	for _, e := range i.Entries {
		if e.Name == path && e.Stage == stage {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Has reports whether any entry exists at path with the given stage.
func (i *Index) Has(path string, stage Stage) bool {
	_, err := i.Entry(path, stage)
	return err == nil
}

// HasPath reports whether any stage exists at path.
func (i *Index) HasPath(path string) bool {
	path = CanonicalPath(path)
	for _, e := range i.Entries {
		if e.Name == path {
			return true
		}
	}
	return false
}

// Remove removes every stage at path, returning ErrEntryNotFound when
// the path is not present at all.
func (i *Index) Remove(path string) error {
	path = CanonicalPath(path)
	kept := i.Entries[:0]
	found := false
	for _, e := range i.Entries {
		if e.Name == path {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	i.Entries = kept

	if !found {
		return ErrEntryNotFound
	}
	return nil
}

// RemoveStage removes a single stage at path.
func (i *Index) RemoveStage(path string, stage Stage) error {
	path = CanonicalPath(path)
	for k, e := range i.Entries {
		if e.Name == path && e.Stage == stage {
			i.Entries = append(i.Entries[:k], i.Entries[k+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

// UnmergedPaths returns the set of paths holding any stage above
// Merged, each path once, in index order.
func (i *Index) UnmergedPaths() []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range i.Entries {
		if e.Stage > Merged && !seen[e.Name] {
			seen[e.Name] = true
			out = append(out, e.Name)
		}
	}
	return out
}

// StageEntries returns the stage-0 entries only, the tree builder's
// input.
func (i *Index) StageEntries() []*Entry {
	var out []*Entry
	for _, e := range i.Entries {
		if e.Stage == Merged {
			out = append(out, e)
		}
	}
	return out
}

// SortEntries restores the canonical (Name, Stage) order.
func (i *Index) SortEntries() {
	sort.SliceStable(i.Entries, func(a, b int) bool {
		return entryLess(i.Entries[a], i.Entries[b])
	})
}

func entryLess(a, b *Entry) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Stage < b.Stage
}

// NormalizeStat applies the stat normalization rules: timestamps
// truncated to seconds plus nanoseconds, absent POSIX fields zeroed.
func (e *Entry) NormalizeStat() {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Unix(0, 0)
	}
	if e.ModifiedAt.IsZero() {
		e.ModifiedAt = time.Unix(0, 0)
	}
	e.CreatedAt = time.Unix(e.CreatedAt.Unix(), int64(e.CreatedAt.Nanosecond()))
	e.ModifiedAt = time.Unix(e.ModifiedAt.Unix(), int64(e.ModifiedAt.Nanosecond()))
}
