package plumbing

import (
	"crypto"
	"fmt"
	"hash"
	"strconv"
	"sync"

	"github.com/pjbgf/sha1cd"

	format "github.com/gitvault/gitvault/plumbing/format/config"
)

// ObjectHasher computes object IDs for Git objects. Differences to a
// plain hash.Hash:
//
//   - ObjectType awareness: the wrapped-form header is hashed in front
//     of the body.
//   - Format awareness: produces SHA1 or SHA256 sums depending on the
//     repository object format.
//   - Thread-safety.
type ObjectHasher struct {
	hasher hash.Hash
	m      sync.Mutex
	format format.ObjectFormat
}

// FromObjectFormat returns the ObjectHasher for the given ObjectFormat.
//
// If the format is not recognised, an ErrInvalidObjectFormat error is
// returned.
func FromObjectFormat(f format.ObjectFormat) (*ObjectHasher, error) {
	switch f {
	case format.SHA1:
		return &ObjectHasher{hasher: sha1cd.New(), format: f}, nil
	case format.SHA256:
		return &ObjectHasher{hasher: crypto.SHA256.New(), format: f}, nil
	default:
		return nil, format.ErrInvalidObjectFormat
	}
}

// Format returns the hash family this hasher produces IDs for.
func (h *ObjectHasher) Format() format.ObjectFormat {
	return h.format
}

// Size returns the size in bytes of the resulting sums.
func (h *ObjectHasher) Size() int {
	return h.hasher.Size()
}

// Compute calculates the ObjectID for a wrapped object whose type is ot
// and whose body is d.
func (h *ObjectHasher) Compute(ot ObjectType, d []byte) (ObjectID, error) {
	if !ot.Valid() {
		return ObjectID{}, fmt.Errorf("%w: %d", ErrInvalidType, ot)
	}

	h.m.Lock()
	defer h.m.Unlock()

	h.hasher.Reset()
	writeHeader(h.hasher, ot, int64(len(d)))
	if _, err := h.hasher.Write(d); err != nil {
		return ObjectID{}, fmt.Errorf("failed to compute hash: %w", err)
	}

	id, _ := FromBytes(h.hasher.Sum(nil))
	return id, nil
}

// ComputeWrapped calculates the ObjectID of an already-wrapped byte
// sequence.
func (h *ObjectHasher) ComputeWrapped(wrapped []byte) (ObjectID, error) {
	h.m.Lock()
	defer h.m.Unlock()

	h.hasher.Reset()
	if _, err := h.hasher.Write(wrapped); err != nil {
		return ObjectID{}, fmt.Errorf("failed to compute hash: %w", err)
	}

	id, _ := FromBytes(h.hasher.Sum(nil))
	return id, nil
}

func writeHeader(h hash.Hash, ot ObjectType, sz int64) {
	h.Write(ot.Bytes())
	h.Write([]byte(" "))
	h.Write([]byte(strconv.FormatInt(sz, 10)))
	h.Write([]byte{0})
}
