package plumbing

import (
	"bytes"
	"encoding/hex"

	format "github.com/gitvault/gitvault/plumbing/format/config"
)

var empty = make([]byte, format.SHA256Size)

// ObjectID represents the ID of a Git object: the content hash of its
// wrapped form in the repository's hash family. The zero value is the
// all-zeroes SHA1 ID.
type ObjectID struct {
	hash   [format.SHA256Size]byte
	format format.ObjectFormat
}

// FromHex parses a hexadecimal string and returns an ObjectID and a
// boolean confirming whether the operation was successful. The object
// format is inferred from the length of the input.
func FromHex(in string) (ObjectID, bool) {
	var id ObjectID

	switch len(in) {
	case format.SHA1HexSize:
		id.format = format.SHA1
	case format.SHA256HexSize:
		id.format = format.SHA256
	default:
		return id, false
	}

	out, err := hex.DecodeString(in)
	if err != nil {
		return ObjectID{}, false
	}

	copy(id.hash[:], out)
	return id, true
}

// FromBytes creates an ObjectID based off its raw bytes. The object
// format is inferred from the length of the input.
func FromBytes(in []byte) (ObjectID, bool) {
	var id ObjectID

	switch len(in) {
	case format.SHA1Size:
		id.format = format.SHA1
	case format.SHA256Size:
		id.format = format.SHA256
	default:
		return id, false
	}

	copy(id.hash[:], in)
	return id, true
}

// MustFromHex parses a hexadecimal string, panicking when it is not a
// valid object ID. For use in tests and constants.
func MustFromHex(in string) ObjectID {
	id, ok := FromHex(in)
	if !ok {
		panic("invalid object id: " + in)
	}
	return id
}

// ZeroID returns the all-zeroes ObjectID for the given object format.
func ZeroID(f format.ObjectFormat) ObjectID {
	return ObjectID{format: f}
}

// ValidHex returns true if the given string is a well-formed hex object
// ID for the given object format.
func ValidHex(in string, f format.ObjectFormat) bool {
	if len(in) != f.HexSize() {
		return false
	}

	_, err := hex.DecodeString(in)
	return err == nil
}

// Format returns the hash family of the ID.
func (s ObjectID) Format() format.ObjectFormat {
	if s.format == format.UnsetObjectFormat {
		return format.SHA1
	}
	return s.format
}

// Size returns the length in bytes of the hash.
func (s ObjectID) Size() int {
	return s.Format().Size()
}

// HexSize returns the length of the hexadecimal representation.
func (s ObjectID) HexSize() int {
	return s.Size() * 2
}

// Bytes returns the slice of bytes containing the hash.
func (s ObjectID) Bytes() []byte {
	return s.hash[:s.Size()]
}

// Compare compares the hash's sum with a slice of bytes.
func (s ObjectID) Compare(b []byte) int {
	return bytes.Compare(s.hash[:s.Size()], b)
}

// Equal reports whether both IDs carry the same sum.
func (s ObjectID) Equal(in ObjectID) bool {
	return s.hash == in.hash
}

// IsZero returns true if the hash is all zeroes.
func (s ObjectID) IsZero() bool {
	return bytes.Equal(s.hash[:], empty)
}

// String returns the hexadecimal representation of the ObjectID.
func (s ObjectID) String() string {
	return hex.EncodeToString(s.hash[:s.Size()])
}
