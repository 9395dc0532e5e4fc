package object

import (
	"bytes"
	"sort"

	"github.com/gitvault/gitvault/plumbing"
)

// Tree is a flat directory listing, pointing to blobs and to other
// trees.
type Tree struct {
	Entries []TreeEntry
}

// TreeEntry represents a file or a subtree.
type TreeEntry struct {
	Name string
	Mode plumbing.FileMode
	Hash plumbing.ObjectID
}

// Entry returns the entry with the given name, or nil.
func (t *Tree) Entry(name string) *TreeEntry {
	for i := range t.Entries {
		if t.Entries[i].Name == name {
			return &t.Entries[i]
		}
	}
	return nil
}

// Sort orders the entries by the canonical git rule: names compare as
// byte sequences, with tree names carrying an implicit trailing slash,
// so "dir" sorts after "dir-file".
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(a, b int) bool {
		return sortName(t.Entries[a]) < sortName(t.Entries[b])
	})
}

func sortName(e TreeEntry) string {
	if e.Mode == plumbing.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Encode serializes the tree into its canonical object body:
// "<mode> <name>\x00<raw-oid>" per entry, entries in canonical order.
// Modes serialize as 6-digit octal, the leading zero of directory
// entries preserved.
func (t *Tree) Encode() []byte {
	t.Sort()

	var buf bytes.Buffer
	for _, e := range t.Entries {
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash.Bytes())
	}
	return buf.Bytes()
}

// DecodeTree parses a tree object body. Both 6-digit and git's
// zero-stripped 5-digit directory modes are accepted.
func DecodeTree(data []byte, oidSize int) (*Tree, error) {
	t := &Tree{}

	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, &plumbing.CorruptError{What: "tree entry mode"}
		}

		modeStr := string(data[:sp])
		if len(modeStr) == 5 {
			modeStr = "0" + modeStr
		}
		mode, err := plumbing.NewFileMode(modeStr)
		if err != nil {
			return nil, &plumbing.CorruptError{What: "tree entry mode", Err: err}
		}
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, &plumbing.CorruptError{What: "tree entry name"}
		}
		name := string(data[:nul])
		data = data[nul+1:]

		if len(data) < oidSize {
			return nil, &plumbing.CorruptError{What: "tree entry oid"}
		}
		id, ok := plumbing.FromBytes(data[:oidSize])
		if !ok {
			return nil, &plumbing.CorruptError{What: "tree entry oid"}
		}
		data = data[oidSize:]

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, Hash: id})
	}

	return t, nil
}
