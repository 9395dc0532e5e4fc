package plumbing

import (
	"fmt"
	"strings"
)

const (
	refPrefix       = "refs/"
	refHeadPrefix   = refPrefix + "heads/"
	refTagPrefix    = refPrefix + "tags/"
	refRemotePrefix = refPrefix + "remotes/"
	refNotePrefix   = refPrefix + "notes/"
	symrefPrefix    = "ref: "
)

// HEAD is the name of the current-branch pointer.
const HEAD ReferenceName = "HEAD"

// ReferenceType reference type's.
type ReferenceType int8

const (
	InvalidReference  ReferenceType = 0
	HashReference     ReferenceType = 1
	SymbolicReference ReferenceType = 2
)

func (r ReferenceType) String() string {
	switch r {
	case InvalidReference:
		return "invalid-reference"
	case HashReference:
		return "hash-reference"
	case SymbolicReference:
		return "symbolic-reference"
	}
	return ""
}

// ReferenceName reference name's.
type ReferenceName string

// NewBranchReferenceName returns a reference name describing a branch
// based on its short name.
func NewBranchReferenceName(name string) ReferenceName {
	return ReferenceName(refHeadPrefix + name)
}

// NewTagReferenceName returns a reference name describing a tag based
// on its short name.
func NewTagReferenceName(name string) ReferenceName {
	return ReferenceName(refTagPrefix + name)
}

// NewRemoteReferenceName returns a reference name describing a remote
// branch based on a remote and a branch short name.
func NewRemoteReferenceName(remote, name string) ReferenceName {
	return ReferenceName(refRemotePrefix + remote + "/" + name)
}

func (r ReferenceName) String() string {
	return string(r)
}

// IsBranch checks if a reference is a branch.
func (r ReferenceName) IsBranch() bool {
	return strings.HasPrefix(string(r), refHeadPrefix)
}

// IsTag checks if a reference is a tag.
func (r ReferenceName) IsTag() bool {
	return strings.HasPrefix(string(r), refTagPrefix)
}

// IsRemote checks if a reference is a remote-tracking branch.
func (r ReferenceName) IsRemote() bool {
	return strings.HasPrefix(string(r), refRemotePrefix)
}

// Short returns the short name of a ReferenceName: the name with the
// well-known prefixes trimmed.
func (r ReferenceName) Short() string {
	s := string(r)
	for _, p := range []string{refHeadPrefix, refTagPrefix, refRemotePrefix, refNotePrefix, refPrefix} {
		if strings.HasPrefix(s, p) {
			return s[len(p):]
		}
	}
	return s
}

// Reference is a named pointer: either direct (target is an object ID)
// or symbolic (target is another reference name).
type Reference struct {
	t      ReferenceType
	n      ReferenceName
	hash   ObjectID
	target ReferenceName
}

// NewHashReference creates a direct reference from a name and an
// object ID.
func NewHashReference(n ReferenceName, h ObjectID) *Reference {
	return &Reference{t: HashReference, n: n, hash: h}
}

// NewSymbolicReference creates a symbolic reference from a name and a
// target name.
func NewSymbolicReference(n, target ReferenceName) *Reference {
	return &Reference{t: SymbolicReference, n: n, target: target}
}

// ParseReferenceContent parses the content of a loose reference file
// for the given name: either a symbolic serialization or a hex object
// ID.
func ParseReferenceContent(n ReferenceName, content string) (*Reference, error) {
	body := strings.TrimSpace(content)
	if target, ok := strings.CutPrefix(body, symrefPrefix); ok {
		return NewSymbolicReference(n, ReferenceName(strings.TrimSpace(target))), nil
	}

	id, ok := FromHex(body)
	if !ok {
		return nil, &CorruptError{What: fmt.Sprintf("reference %s", n)}
	}
	return NewHashReference(n, id), nil
}

// IsSymbolicContent reports whether a loose reference body is a
// symbolic serialization.
func IsSymbolicContent(content string) (ReferenceName, bool) {
	target, ok := strings.CutPrefix(strings.TrimSpace(content), symrefPrefix)
	if !ok {
		return "", false
	}
	return ReferenceName(strings.TrimSpace(target)), true
}

// Type returns the type of a reference.
func (r *Reference) Type() ReferenceType {
	return r.t
}

// Name returns the name of a reference.
func (r *Reference) Name() ReferenceName {
	return r.n
}

// Hash returns the hash of a hash reference.
func (r *Reference) Hash() ObjectID {
	return r.hash
}

// Target returns the target of a symbolic reference.
func (r *Reference) Target() ReferenceName {
	return r.target
}

// Content returns the serialized body of the reference as stored in a
// loose reference file.
func (r *Reference) Content() string {
	switch r.t {
	case SymbolicReference:
		return symrefPrefix + r.target.String() + "\n"
	default:
		return r.hash.String() + "\n"
	}
}

// String implements fmt.Stringer, in the for-each-ref output shape.
func (r *Reference) String() string {
	if r.t == SymbolicReference {
		return fmt.Sprintf("%s %s", symrefPrefix+r.target.String(), r.n)
	}
	return fmt.Sprintf("%s %s", r.hash.String(), r.n)
}
