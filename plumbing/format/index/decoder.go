package index

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
)

// A Decoder reads an Index from a DIRC byte stream, verifying the
// trailing checksum against the given hash family.
type Decoder struct {
	r      io.Reader
	format format.ObjectFormat
}

// NewDecoder returns a new decoder that reads from r, expecting object
// IDs and the trailing checksum in the given hash family.
func NewDecoder(r io.Reader, f format.ObjectFormat) *Decoder {
	return &Decoder{r: r, format: f}
}

// Decode reads the whole index from its input and stores it in idx.
func (d *Decoder) Decode(idx *Index) error {
	data, err := io.ReadAll(d.r)
	if err != nil {
		return &plumbing.CorruptError{What: "index", Err: err}
	}
	return decodeBytes(data, d.format, idx)
}

func decodeBytes(data []byte, f format.ObjectFormat, idx *Index) error {
	sumSize := f.Size()
	if len(data) < 12+sumSize {
		return &plumbing.CorruptError{What: "index: truncated"}
	}

	// The checksum covers everything before itself.
	body, stored := data[:len(data)-sumSize], data[len(data)-sumSize:]
	h := familyHash(f)
	h.Write(body)
	if !bytes.Equal(h.Sum(nil), stored) {
		return &plumbing.CorruptError{What: "index checksum mismatch"}
	}

	if !bytes.Equal(body[:4], indexSignature) {
		return &plumbing.CorruptError{What: "index signature"}
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version < 2 || version > 3 {
		return ErrUnsupportedVersion
	}
	count := binary.BigEndian.Uint32(body[8:12])
	idx.Version = version

	rest := body[12:]
	for i := uint32(0); i < count; i++ {
		e, n, err := decodeEntry(rest, f, version)
		if err != nil {
			return err
		}
		idx.Entries = append(idx.Entries, e)
		rest = rest[n:]
	}

	// Whatever follows the entries up to the checksum is extension
	// chunks; they are tolerated and dropped.
	return nil
}

func decodeEntry(data []byte, f format.ObjectFormat, version uint32) (*Entry, int, error) {
	oidSize := f.Size()
	fixedLen := 40 + oidSize + 2
	if len(data) < fixedLen {
		return nil, 0, &plumbing.CorruptError{What: "index entry: truncated"}
	}

	var fixed [10]uint32
	for i := range fixed {
		fixed[i] = binary.BigEndian.Uint32(data[i*4:])
	}

	id, _ := plumbing.FromBytes(data[40 : 40+oidSize])
	flags := binary.BigEndian.Uint16(data[40+oidSize:])

	e := &Entry{
		Hash:       id,
		CreatedAt:  time.Unix(int64(fixed[0]), int64(fixed[1])),
		ModifiedAt: time.Unix(int64(fixed[2]), int64(fixed[3])),
		Dev:        fixed[4],
		Inode:      fixed[5],
		Mode:       plumbing.FileMode(fixed[6]),
		UID:        fixed[7],
		GID:        fixed[8],
		Size:       fixed[9],
		Stage:      Stage(flags >> 12 & 0x3),
	}

	read := fixedLen
	if flags&entryExtended != 0 {
		if version < 3 {
			return nil, 0, &plumbing.CorruptError{What: "extended flags in v2 index"}
		}
		if len(data) < read+2 {
			return nil, 0, &plumbing.CorruptError{What: "index entry: truncated extended flags"}
		}
		extended := binary.BigEndian.Uint16(data[read:])
		e.IntentToAdd = extended&intentToAddMask != 0
		e.SkipWorktree = extended&skipWorkTreeMask != 0
		read += 2
	}

	nameLen := int(flags & nameMask)
	if nameLen < nameMask {
		if len(data) < read+nameLen {
			return nil, 0, &plumbing.CorruptError{What: "index entry: truncated name"}
		}
		e.Name = string(data[read : read+nameLen])
	} else {
		nul := bytes.IndexByte(data[read:], 0)
		if nul < 0 {
			return nil, 0, &plumbing.CorruptError{What: "index entry: unterminated name"}
		}
		e.Name = string(data[read : read+nul])
	}
	read += len(e.Name)

	read += 8 - read%8
	if len(data) < read {
		return nil, 0, &plumbing.CorruptError{What: "index entry: truncated padding"}
	}
	return e, read, nil
}
