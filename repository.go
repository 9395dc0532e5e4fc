// Package gitvault implements the higher-level repository semantics —
// object access, reference resolution, staging, commits and merges —
// as plain functions over the storage backend contract. A Repository
// wires a backend together with the optional hook-execution and
// signing capabilities.
package gitvault

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
	"github.com/gitvault/gitvault/plumbing/format/objfile"
	"github.com/gitvault/gitvault/plumbing/object"
	"github.com/gitvault/gitvault/storage"
)

// Repository is the operation façade over a storage backend. All
// collaborators are wired at construction; none are looked up
// ambiently.
type Repository struct {
	backend storage.Backend
	hooks   HookExecutor
	signer  Signer
	log     *logrus.Entry
}

// Option configures a Repository.
type Option func(*Repository)

// WithHookExecutor wires the capability that actually runs hook
// processes. Without it every hook synthesizes success.
func WithHookExecutor(h HookExecutor) Option {
	return func(r *Repository) { r.hooks = h }
}

// WithSigner wires the commit-signing capability.
func WithSigner(s Signer) Option {
	return func(r *Repository) { r.signer = s }
}

// WithLogger overrides the logger used for swallowed failures.
func WithLogger(l *logrus.Entry) Option {
	return func(r *Repository) { r.log = l }
}

// New wires a Repository over a backend.
func New(b storage.Backend, opts ...Option) *Repository {
	r := &Repository{
		backend: b,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Backend exposes the underlying storage contract.
func (r *Repository) Backend() storage.Backend {
	return r.backend
}

// Init initializes the backend; always a bare structure.
func (r *Repository) Init(ctx context.Context, opts storage.InitOptions) error {
	return wrapOp("init", r.backend.Init(ctx, opts))
}

// Close releases the backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}

// Head returns the HEAD reference: symbolic while on a branch, direct
// when detached.
func (r *Repository) Head(ctx context.Context) (*plumbing.Reference, error) {
	content, err := r.backend.ReadRawRef(ctx, "HEAD")
	if err != nil {
		return nil, wrapOp("head", err)
	}
	ref, err := plumbing.ParseReferenceContent(plumbing.HEAD, content)
	return ref, wrapOp("head", err)
}

// SetHead replaces HEAD with the given reference.
func (r *Repository) SetHead(ctx context.Context, ref *plumbing.Reference) error {
	return wrapOp("set_head", r.backend.WriteRawRef(ctx, "HEAD", ref.Content()))
}

// ObjectFormat returns the repository hash family.
func (r *Repository) ObjectFormat(ctx context.Context) (format.ObjectFormat, error) {
	f, err := r.backend.ObjectFormat(ctx)
	return f, wrapOp("object_format", err)
}

// validateOid rejects IDs of the wrong hash family for this repo.
func (r *Repository) validateOid(ctx context.Context, oid plumbing.ObjectID) error {
	f, err := r.backend.ObjectFormat(ctx)
	if err != nil {
		return err
	}
	if oid.Format() != f {
		return fmt.Errorf("%w: %s is not a %s id", plumbing.ErrInvalidOid, oid, f)
	}
	return nil
}

// ReadObject returns an object in the requested form, trying the loose
// store first and falling back to the wired pack reader.
func (r *Repository) ReadObject(ctx context.Context, oid plumbing.ObjectID, form plumbing.ObjectForm) (*plumbing.RawObject, error) {
	obj, err := readObject(ctx, r.backend, nil, oid, form)
	return obj, wrapOp("read_object", err)
}

// readObject is the shared lookup; cache may be nil.
func readObject(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, oid plumbing.ObjectID, form plumbing.ObjectForm) (*plumbing.RawObject, error) {
	if !form.Valid() {
		return nil, fmt.Errorf("%w: object form %q", plumbing.ErrMissingParameter, form)
	}

	deflated, err := readLooseMaybeCached(ctx, b, cache, oid)
	if err == nil {
		if form == plumbing.DeflatedForm {
			typ, err := deflatedType(deflated)
			if err != nil {
				return nil, err
			}
			return &plumbing.RawObject{Type: typ, Form: form, Data: deflated}, nil
		}

		wrapped, err := objfile.Inflate(deflated)
		if err != nil {
			return nil, err
		}
		typ, body, err := objfile.Unwrap(wrapped)
		if err != nil {
			return nil, err
		}
		if form == plumbing.WrappedForm {
			return &plumbing.RawObject{Type: typ, Form: form, Data: wrapped}, nil
		}
		return &plumbing.RawObject{Type: typ, Form: form, Data: body}, nil
	}

	// Loose miss: delegate to the pack subsystem when wired.
	pr := b.PackReader()
	if pr == nil {
		return nil, fmt.Errorf("%w: %s", plumbing.ErrObjectNotFound, oid)
	}
	typ, content, err := pr.ReadPacked(ctx, oid)
	if err != nil {
		return nil, err
	}

	switch form {
	case plumbing.ContentForm:
		return &plumbing.RawObject{Type: typ, Form: form, Data: content}, nil
	case plumbing.WrappedForm, plumbing.DeflatedForm:
		wrapped, err := objfile.Wrap(typ, content)
		if err != nil {
			return nil, err
		}
		if form == plumbing.WrappedForm {
			return &plumbing.RawObject{Type: typ, Form: form, Data: wrapped}, nil
		}
		// Packs do not store the loose representation; it is
		// reconstructed, which round-trips identically.
		z, err := objfile.Deflate(wrapped)
		if err != nil {
			return nil, err
		}
		return &plumbing.RawObject{Type: typ, Form: form, Data: z}, nil
	}
	return nil, fmt.Errorf("%w: object form %q", plumbing.ErrMissingParameter, form)
}

func readLooseMaybeCached(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, oid plumbing.ObjectID) ([]byte, error) {
	if cache != nil {
		return cache.ReadLoose(ctx, oid)
	}
	return b.ReadLoose(ctx, oid)
}

func deflatedType(deflated []byte) (plumbing.ObjectType, error) {
	wrapped, err := objfile.Inflate(deflated)
	if err != nil {
		return plumbing.InvalidObject, err
	}
	typ, _, err := objfile.Unwrap(wrapped)
	return typ, err
}

// WriteObject stores an object given in any form and returns its ID.
// Writes are content-addressed and idempotent; dryRun computes the ID
// without persisting.
func (r *Repository) WriteObject(ctx context.Context, typ plumbing.ObjectType, data []byte, form plumbing.ObjectForm, dryRun bool) (plumbing.ObjectID, error) {
	oid, err := writeObject(ctx, r.backend, typ, data, form, dryRun)
	return oid, wrapOp("write_object", err)
}

func writeObject(ctx context.Context, b storage.Backend, typ plumbing.ObjectType, data []byte, form plumbing.ObjectForm, dryRun bool) (plumbing.ObjectID, error) {
	var wrapped []byte
	var err error

	switch form {
	case plumbing.ContentForm:
		wrapped, err = objfile.Wrap(typ, data)
	case plumbing.WrappedForm:
		_, _, err = objfile.Unwrap(data)
		wrapped = data
	case plumbing.DeflatedForm:
		wrapped, err = objfile.Inflate(data)
		if err == nil {
			_, _, err = objfile.Unwrap(wrapped)
		}
	default:
		err = fmt.Errorf("%w: object form %q", plumbing.ErrMissingParameter, form)
	}
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	hasher, err := plumbing.FromObjectFormat(f)
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	oid, err := hasher.ComputeWrapped(wrapped)
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	if dryRun {
		return oid, nil
	}

	deflated := data
	if form != plumbing.DeflatedForm {
		deflated, err = objfile.Deflate(wrapped)
		if err != nil {
			return plumbing.ObjectID{}, err
		}
	}
	return oid, b.WriteLoose(ctx, oid, deflated)
}

// readCommit loads and decodes a commit object.
func readCommit(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, oid plumbing.ObjectID) (*object.Commit, error) {
	obj, err := readObject(ctx, b, cache, oid, plumbing.ContentForm)
	if err != nil {
		return nil, err
	}
	if obj.Type != plumbing.CommitObject {
		return nil, fmt.Errorf("%w: %s is a %s, not a commit", plumbing.ErrInvalidType, oid, obj.Type)
	}
	return object.DecodeCommit(obj.Data)
}

// readTree loads and decodes a tree object.
func readTree(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, oid plumbing.ObjectID) (*object.Tree, error) {
	obj, err := readObject(ctx, b, cache, oid, plumbing.ContentForm)
	if err != nil {
		return nil, err
	}
	if obj.Type != plumbing.TreeObject {
		return nil, fmt.Errorf("%w: %s is a %s, not a tree", plumbing.ErrInvalidType, oid, obj.Type)
	}
	return object.DecodeTree(obj.Data, oid.Size())
}

// ReadDescription returns the repository description.
func (r *Repository) ReadDescription(ctx context.Context) (string, error) {
	text, err := r.backend.ReadDescription(ctx)
	return text, wrapOp("read_description", err)
}

// WriteDescription replaces the repository description.
func (r *Repository) WriteDescription(ctx context.Context, text string) error {
	return wrapOp("write_description", r.backend.WriteDescription(ctx, text))
}
