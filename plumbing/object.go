package plumbing

import (
	"bytes"
	"fmt"
)

// ObjectType internal object type.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	default:
		return "unknown"
	}
}

// Bytes returns the type name as it appears inside a wrapped object
// header.
func (t ObjectType) Bytes() []byte {
	return []byte(t.String())
}

// Valid reports whether t is one of the four storable object types.
func (t ObjectType) Valid() bool {
	return t >= CommitObject && t <= TagObject
}

// ParseObjectType parses a string representation of an ObjectType.
func ParseObjectType(value string) (ObjectType, error) {
	switch value {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	default:
		return InvalidObject, fmt.Errorf("%w: %q", ErrInvalidType, value)
	}
}

// ObjectForm names one of the three byte representations of an object.
type ObjectForm string

const (
	// ContentForm is the object body alone.
	ContentForm ObjectForm = "content"
	// WrappedForm is "<type> <len>\x00" ++ body; its hash is the OID.
	WrappedForm ObjectForm = "wrapped"
	// DeflatedForm is zlib(wrapped); the loose on-disk representation.
	DeflatedForm ObjectForm = "deflated"
)

// Valid reports whether f is a known object form.
func (f ObjectForm) Valid() bool {
	switch f {
	case ContentForm, WrappedForm, DeflatedForm:
		return true
	}
	return false
}

// RawObject is an object in one concrete byte form, as returned by the
// backend's object read path.
type RawObject struct {
	Type ObjectType
	Form ObjectForm
	Data []byte
}

// Content returns the object body; it is only meaningful when Form is
// ContentForm.
func (o *RawObject) Content() []byte {
	return o.Data
}

// Equal reports form, type and byte equality.
func (o *RawObject) Equal(other *RawObject) bool {
	return o.Type == other.Type && o.Form == other.Form && bytes.Equal(o.Data, other.Data)
}
