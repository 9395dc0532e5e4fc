package plumbing

import (
	"fmt"
	"strconv"
)

// FileMode is the mode of a tree or index entry, in the fixed set git
// actually stores.
type FileMode uint32

const (
	// Empty is used as the zero value of FileMode.
	Empty FileMode = 0
	// Dir represents a directory (a tree entry pointing to a tree).
	Dir FileMode = 0o040000
	// Regular represents non-executable files.
	Regular FileMode = 0o100644
	// Executable represents files with the executable bit set.
	Executable FileMode = 0o100755
	// Symlink represents symbolic links to files.
	Symlink FileMode = 0o120000
	// Submodule represents git submodules (gitlinks).
	Submodule FileMode = 0o160000
)

// NewFileMode parses an octal string and converts it to a FileMode,
// rejecting modes outside the storable set.
func NewFileMode(s string) (FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Empty, fmt.Errorf("invalid file mode %q: %w", s, err)
	}

	m := FileMode(n)
	switch m {
	case Dir, Regular, Executable, Symlink, Submodule:
		return m, nil
	}
	return Empty, fmt.Errorf("%w: file mode %o", ErrCorrupt, n)
}

// String returns the mode serialized as a 6-digit octal string, with
// the leading zero preserved for trees.
func (m FileMode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

// IsFile reports whether the mode represents blob content in the
// working tree (regular, executable or symlink).
func (m FileMode) IsFile() bool {
	return m == Regular || m == Executable || m == Symlink
}
