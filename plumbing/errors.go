package plumbing

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when an object is missing from both
	// the loose store and every pack.
	ErrObjectNotFound = errors.New("object not found")
	// ErrRefNotFound is returned when a reference cannot be found, after
	// the short-name probe order has been exhausted.
	ErrRefNotFound = errors.New("reference not found")
	// ErrNotFound is returned for any other absent repository file.
	ErrNotFound = errors.New("not found")
	// ErrInvalidType is returned when an unknown object type is named.
	ErrInvalidType = errors.New("invalid object type")
	// ErrInvalidOid is returned when an object ID has the wrong length
	// or characters for the repository's hash family.
	ErrInvalidOid = errors.New("invalid object id")
	// ErrCorrupt is returned when stored bytes cannot be decoded: a
	// malformed object header, an index checksum mismatch, an invalid
	// pack index.
	ErrCorrupt = errors.New("corrupt")
	// ErrUnmergedPaths is returned when a commit or merge is attempted
	// while the index holds conflict stages.
	ErrUnmergedPaths = errors.New("unmerged paths in index")
	// ErrFastForward is returned when ff_only was requested but the
	// merge is not a fast-forward.
	ErrFastForward = errors.New("not a fast-forward")
	// ErrMergeNotSupported is returned for zero or multiple merge bases
	// without the matching opt-in.
	ErrMergeNotSupported = errors.New("merge not supported")
	// ErrNoCommit is returned when amend is requested on empty history.
	ErrNoCommit = errors.New("no commit to amend")
	// ErrMissingParameter is returned when a required argument is absent.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrMissingName is returned when an identity lacks a name.
	ErrMissingName = errors.New("missing name")
	// ErrRefConflict is returned when an optimistic expected-old check
	// on a reference write fails.
	ErrRefConflict = errors.New("reference has changed")
)

// CorruptError wraps ErrCorrupt with a description of what failed to
// decode.
type CorruptError struct {
	What string
	Err  error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("corrupt %s", e.What)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }
