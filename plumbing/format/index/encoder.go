package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"
	"io"
	"time"

	"github.com/pjbgf/sha1cd"

	format "github.com/gitvault/gitvault/plumbing/format/config"
)

var (
	// ErrInvalidTimestamp is returned by Encode if an entry carries a
	// negative timestamp.
	ErrInvalidTimestamp = errors.New("negative timestamps are not allowed")

	// ErrMixedStageOrder is returned when entries are not sorted by
	// (path, stage).
	ErrMixedStageOrder = errors.New("index entries not sorted by (path, stage)")
)

const (
	entryHeaderLength = 62
	nameMask          = 0xfff
	entryExtended     = 1 << 14
	intentToAddMask   = 1 << 13
	skipWorkTreeMask  = 1 << 14
)

// An Encoder writes an Index to an output stream in the binary DIRC
// format, with the trailing checksum in the given hash family.
type Encoder struct {
	w    io.Writer
	hash hash.Hash
}

// NewEncoder returns a new encoder that writes to w, producing the
// trailing hash in the repository's object format.
func NewEncoder(w io.Writer, f format.ObjectFormat) *Encoder {
	h := familyHash(f)
	return &Encoder{w: io.MultiWriter(w, h), hash: h}
}

func familyHash(f format.ObjectFormat) hash.Hash {
	if f == format.SHA256 {
		return sha256.New()
	}
	return sha1cd.New()
}

// Encode writes idx to the stream. The version written is the index's
// own, bumped to 3 when any entry needs extended flags.
func (e *Encoder) Encode(idx *Index) error {
	version := idx.Version
	if version < 2 {
		version = 2
	}
	for _, entry := range idx.Entries {
		if entry.extended() {
			version = 3
			break
		}
	}
	if version > 3 {
		return ErrUnsupportedVersion
	}

	if err := e.encodeHeader(version, len(idx.Entries)); err != nil {
		return err
	}

	if err := e.encodeEntries(idx); err != nil {
		return err
	}

	return e.encodeFooter()
}

func (e *Encoder) encodeHeader(version uint32, entries int) error {
	if _, err := e.w.Write(indexSignature); err != nil {
		return err
	}
	if err := binary.Write(e.w, binary.BigEndian, version); err != nil {
		return err
	}
	return binary.Write(e.w, binary.BigEndian, uint32(entries))
}

func (e *Encoder) encodeEntries(idx *Index) error {
	for k, entry := range idx.Entries {
		if k > 0 && !entryLess(idx.Entries[k-1], entry) {
			return ErrMixedStageOrder
		}

		if err := e.encodeEntry(entry); err != nil {
			return err
		}
	}

	return nil
}

func (e *Encoder) encodeEntry(entry *Entry) error {
	csec, cnsec, err := timeToUint32(entry.CreatedAt)
	if err != nil {
		return err
	}
	msec, mnsec, err := timeToUint32(entry.ModifiedAt)
	if err != nil {
		return err
	}

	flags := uint16(entry.Stage&0x3) << 12
	if l := len(entry.Name); l < nameMask {
		flags |= uint16(l)
	} else {
		flags |= nameMask
	}

	for _, v := range []uint32{
		csec, cnsec, msec, mnsec,
		entry.Dev, entry.Inode,
		uint32(entry.Mode),
		entry.UID, entry.GID, entry.Size,
	} {
		if err := binary.Write(e.w, binary.BigEndian, v); err != nil {
			return err
		}
	}

	if _, err := e.w.Write(entry.Hash.Bytes()); err != nil {
		return err
	}

	wrote := entryHeaderLength - 20 + entry.Hash.Size()
	if entry.extended() {
		flags |= entryExtended
		var extended uint16
		if entry.IntentToAdd {
			extended |= intentToAddMask
		}
		if entry.SkipWorktree {
			extended |= skipWorkTreeMask
		}
		if err := binary.Write(e.w, binary.BigEndian, flags); err != nil {
			return err
		}
		if err := binary.Write(e.w, binary.BigEndian, extended); err != nil {
			return err
		}
		wrote += 2
	} else if err := binary.Write(e.w, binary.BigEndian, flags); err != nil {
		return err
	}

	if _, err := io.WriteString(e.w, entry.Name); err != nil {
		return err
	}
	wrote += len(entry.Name)

	pad := 8 - wrote%8
	_, err = e.w.Write(bytes.Repeat([]byte{0}, pad))
	return err
}

func (e *Encoder) encodeFooter() error {
	_, err := e.w.Write(e.hash.Sum(nil))
	return err
}

func timeToUint32(t time.Time) (uint32, uint32, error) {
	if t.IsZero() {
		return 0, 0, nil
	}
	if t.Unix() < 0 || t.UnixNano() < 0 {
		return 0, 0, ErrInvalidTimestamp
	}
	return uint32(t.Unix()), uint32(t.Nanosecond()), nil
}
