// Package packedrefs implements the packed-refs single-file table:
// a header comment, "<oid> <ref>" lines and optional "^<peeled>"
// lines pinning annotated-tag peels.
package packedrefs

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
)

// Header is the comment line stock git writes; its traits are ignored
// on read.
const Header = "# pack-refs with: peeled fully-peeled sorted \n"

// Record is one packed ref, optionally carrying the peeled object ID
// of an annotated tag.
type Record struct {
	Name   plumbing.ReferenceName
	Hash   plumbing.ObjectID
	Peeled plumbing.ObjectID
	// HasPeeled distinguishes a zero peeled OID from an absent one.
	HasPeeled bool
}

// PackedRefs is the parsed table, ordered by ref name.
type PackedRefs struct {
	Records []*Record
}

// Lookup returns the record for name, or nil.
func (p *PackedRefs) Lookup(name plumbing.ReferenceName) *Record {
	for _, r := range p.Records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Set upserts a record, keeping the table sorted by name.
func (p *PackedRefs) Set(r *Record) {
	for i, existing := range p.Records {
		if existing.Name == r.Name {
			p.Records[i] = r
			return
		}
	}
	p.Records = append(p.Records, r)
	sort.Slice(p.Records, func(a, b int) bool {
		return p.Records[a].Name < p.Records[b].Name
	})
}

// Remove deletes the record for name; it reports whether anything was
// removed.
func (p *PackedRefs) Remove(name plumbing.ReferenceName) bool {
	for i, r := range p.Records {
		if r.Name == name {
			p.Records = append(p.Records[:i], p.Records[i+1:]...)
			return true
		}
	}
	return false
}

// Parse decodes a packed-refs file body.
func Parse(data []byte) (*PackedRefs, error) {
	p := &PackedRefs{}
	var last *Record

	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		line := string(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "^"):
			if last == nil {
				return nil, &plumbing.CorruptError{What: "packed-refs: peel line without a ref"}
			}
			id, ok := plumbing.FromHex(line[1:])
			if !ok {
				return nil, &plumbing.CorruptError{What: "packed-refs: peel oid"}
			}
			last.Peeled = id
			last.HasPeeled = true
		default:
			oid, name, found := strings.Cut(line, " ")
			if !found {
				return nil, &plumbing.CorruptError{What: "packed-refs line"}
			}
			id, ok := plumbing.FromHex(oid)
			if !ok {
				return nil, &plumbing.CorruptError{What: "packed-refs oid"}
			}
			last = &Record{Name: plumbing.ReferenceName(name), Hash: id}
			p.Records = append(p.Records, last)
		}
	}

	return p, nil
}

// Serialize encodes the table back to the file body, header included.
func (p *PackedRefs) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	for _, r := range p.Records {
		fmt.Fprintf(&buf, "%s %s\n", r.Hash.String(), r.Name)
		if r.HasPeeled {
			fmt.Fprintf(&buf, "^%s\n", r.Peeled.String())
		}
	}
	return buf.Bytes()
}
