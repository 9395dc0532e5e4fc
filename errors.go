package gitvault

import (
	"errors"
	"fmt"
	"strings"
)

// opError tags every error leaving a public operation with the caller
// name ("gitvault.add"), to aid aggregation. The underlying error is
// preserved for errors.Is matching.
type opError struct {
	Op  string
	Err error
}

func (e *opError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *opError) Unwrap() error { return e.Err }

// wrapOp tags err with the caller name; nil stays nil, and an already
// tagged error is not re-tagged.
func wrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *opError
	if errors.As(err, &tagged) {
		return err
	}
	return &opError{Op: "gitvault." + op, Err: err}
}

// MergeConflictError reports the conflicting paths of a three-way
// merge. It is always raised; abortOnConflict only controls whether
// the conflicted index was persisted first.
type MergeConflictError struct {
	// Filepaths is every conflicted path.
	Filepaths []string
	// BothModified are paths changed on both sides.
	BothModified []string
	// BothAdded are paths added on both sides with different content.
	BothAdded []string
	// DeletedByUs are paths deleted on ours, modified on theirs.
	DeletedByUs []string
	// DeletedByThem are paths modified on ours, deleted on theirs.
	DeletedByThem []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict in: %s", strings.Join(e.Filepaths, ", "))
}

// HookError reports a verifying hook that exited non-zero.
type HookError struct {
	Hook     string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *HookError) Error() string {
	msg := fmt.Sprintf("hook %s exited with code %d", e.Hook, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// MultiError collects independent failures of a batch operation, such
// as a multi-path add, before raising them together.
type MultiError struct {
	Errs []error
}

func (e *MultiError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errs), strings.Join(parts, "; "))
}

// Unwrap exposes the collected errors for errors.Is traversal.
func (e *MultiError) Unwrap() []error { return e.Errs }

// errOrMulti folds collected errors: nil for none, the error itself
// for one, a MultiError otherwise.
func errOrMulti(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &MultiError{Errs: errs}
	}
}
