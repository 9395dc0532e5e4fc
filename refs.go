package gitvault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/packedrefs"
	"github.com/gitvault/gitvault/plumbing/object"
	"github.com/gitvault/gitvault/storage"
)

// DefaultRefDepth caps symbolic-ref hops during resolution.
const DefaultRefDepth = 5

// refProbeOrder builds the canonicalization candidates for a short
// name, in the documented probe order.
func refProbeOrder(name string) []string {
	return []string{
		name,
		"refs/" + name,
		"refs/tags/" + name,
		"refs/heads/" + name,
		"refs/remotes/" + name,
		"refs/remotes/" + name + "/HEAD",
	}
}

// readRefContent finds the stored content for a possibly-short name:
// each probe candidate is checked loose first, then in packed-refs.
// When both locations hold the same ref, the loose one wins.
func readRefContent(ctx context.Context, b storage.Backend, name string) (canonical, content string, err error) {
	var packed *packedrefs.PackedRefs

	for _, candidate := range refProbeOrder(name) {
		content, err := b.ReadRawRef(ctx, candidate)
		if err == nil {
			return candidate, content, nil
		}
		if !errors.Is(err, plumbing.ErrRefNotFound) {
			return "", "", err
		}

		if packed == nil {
			text, err := b.ReadPackedRefs(ctx)
			if err != nil {
				return "", "", err
			}
			packed, err = packedrefs.Parse([]byte(text))
			if err != nil {
				return "", "", err
			}
		}
		if rec := packed.Lookup(plumbing.ReferenceName(candidate)); rec != nil {
			return candidate, rec.Hash.String() + "\n", nil
		}
	}

	return "", "", fmt.Errorf("%w: %s", plumbing.ErrRefNotFound, name)
}

// ResolveRef resolves a name to an object ID string, following at most
// depth symbolic hops. When the hop budget runs out the current name
// is returned unresolved, not an error. A full object ID of the active
// family resolves to itself.
func (r *Repository) ResolveRef(ctx context.Context, name string, depth int) (string, error) {
	out, err := resolveRef(ctx, r.backend, name, depth)
	return out, wrapOp("read_ref", err)
}

func resolveRef(ctx context.Context, b storage.Backend, name string, depth int) (string, error) {
	f, err := b.ObjectFormat(ctx)
	if err != nil {
		return "", err
	}
	if plumbing.ValidHex(name, f) {
		return name, nil
	}

	// The name may itself be a symbolic serialization.
	if target, ok := plumbing.IsSymbolicContent(name); ok {
		if depth == 0 {
			return name, nil
		}
		return resolveRef(ctx, b, string(target), depth-1)
	}

	current, content, err := readRefContent(ctx, b, name)
	if err != nil {
		return "", err
	}

	if target, ok := plumbing.IsSymbolicContent(content); ok {
		// Out of hops: the current name is returned unresolved.
		if depth == 0 {
			return current, nil
		}
		return resolveRef(ctx, b, string(target), depth-1)
	}

	return strings.TrimSpace(content), nil
}

// ResolveOID resolves a name fully and parses the result as an object
// ID, failing when the hop budget left it unresolved.
func (r *Repository) ResolveOID(ctx context.Context, name string) (plumbing.ObjectID, error) {
	out, err := r.ResolveRef(ctx, name, DefaultRefDepth)
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	id, ok := plumbing.FromHex(out)
	if !ok {
		return plumbing.ObjectID{}, wrapOp("read_ref",
			fmt.Errorf("%w: %s did not resolve to an object id", plumbing.ErrRefNotFound, name))
	}
	return id, nil
}

// ExpandRef returns the first probe path under which a short name
// resolves, or ErrRefNotFound.
func (r *Repository) ExpandRef(ctx context.Context, short string) (string, error) {
	canonical, _, err := readRefContent(ctx, r.backend, short)
	return canonical, wrapOp("expand_ref", err)
}

// WriteRef points a ref at an object ID. The previous resolved value
// (zero for a fresh ref) is captured for the reflog; skipReflog lets
// callers append a richer entry themselves.
func (r *Repository) WriteRef(ctx context.Context, name string, oid plumbing.ObjectID, skipReflog bool) error {
	return wrapOp("write_ref", r.writeRef(ctx, name, oid, skipReflog, ""))
}

func (r *Repository) writeRef(ctx context.Context, name string, oid plumbing.ObjectID, skipReflog bool, message string) error {
	if err := r.validateOid(ctx, oid); err != nil {
		return err
	}

	lock, err := r.backend.LockRef(ctx, name)
	if err != nil {
		return err
	}

	old := r.resolvedOrZero(ctx, name)

	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), oid)
	if err := r.backend.WriteRawRef(ctx, name, ref.Content()); err != nil {
		lock.Unlock()
		return err
	}

	// The ref lock is released before the reflog append; the reflog is
	// an aid to humans, not a transactional dependency.
	if err := lock.Unlock(); err != nil {
		return err
	}

	if !skipReflog {
		r.appendReflog(ctx, name, old, oid, r.defaultIdentity(ctx), message)
	}
	return nil
}

// resolvedOrZero captures a ref's current resolution, zero when absent
// or unresolved.
func (r *Repository) resolvedOrZero(ctx context.Context, name string) plumbing.ObjectID {
	f, err := r.backend.ObjectFormat(ctx)
	if err != nil {
		return plumbing.ObjectID{}
	}

	out, err := resolveRef(ctx, r.backend, name, DefaultRefDepth)
	if err != nil {
		return plumbing.ZeroID(f)
	}
	if id, ok := plumbing.FromHex(out); ok {
		return id
	}
	return plumbing.ZeroID(f)
}

// WriteSymbolicRef points a ref at another ref name. A non-empty
// expectedOld is an optimistic check against the current value (target
// name or object ID); mismatch fails with ErrRefConflict and no side
// effects.
func (r *Repository) WriteSymbolicRef(ctx context.Context, name, target, expectedOld string) error {
	return wrapOp("write_symref", r.writeSymbolicRef(ctx, name, target, expectedOld))
}

func (r *Repository) writeSymbolicRef(ctx context.Context, name, target, expectedOld string) error {
	lock, err := r.backend.LockRef(ctx, name)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if expectedOld != "" {
		current := ""
		content, err := r.backend.ReadRawRef(ctx, name)
		if err == nil {
			if t, ok := plumbing.IsSymbolicContent(content); ok {
				current = string(t)
			} else {
				current = strings.TrimSpace(content)
			}
		} else if !errors.Is(err, plumbing.ErrRefNotFound) {
			return err
		}

		if current != expectedOld {
			return fmt.Errorf("%w: %s is %q, expected %q", plumbing.ErrRefConflict, name, current, expectedOld)
		}
	}

	ref := plumbing.NewSymbolicReference(plumbing.ReferenceName(name), plumbing.ReferenceName(target))
	return r.backend.WriteRawRef(ctx, name, ref.Content())
}

// ReadSymbolicRef returns the target of a symbolic ref; a direct ref
// fails with an error wrapping ErrRefNotFound.
func (r *Repository) ReadSymbolicRef(ctx context.Context, name string) (string, error) {
	content, err := r.backend.ReadRawRef(ctx, name)
	if err != nil {
		return "", wrapOp("read_symref", err)
	}
	target, ok := plumbing.IsSymbolicContent(content)
	if !ok {
		return "", wrapOp("read_symref", fmt.Errorf("%w: %s is not symbolic", plumbing.ErrRefNotFound, name))
	}
	return string(target), nil
}

// DeleteRef removes a loose ref and its reflog. Packed-refs entries
// are left alone.
func (r *Repository) DeleteRef(ctx context.Context, name string) error {
	if err := r.backend.DeleteRawRef(ctx, name); err != nil {
		return wrapOp("delete_ref", err)
	}
	if err := r.backend.DeleteReflog(ctx, name); err != nil {
		r.log.WithFields(map[string]any{"ref": name, "err": err}).Warn("reflog delete failed")
	}
	return nil
}

// ListRefs returns every ref under a prefix, merging loose refs and
// packed-refs; the loose location wins for a ref present in both.
func (r *Repository) ListRefs(ctx context.Context, prefix string) ([]*plumbing.Reference, error) {
	refs, err := listRefs(ctx, r.backend, prefix)
	return refs, wrapOp("list_refs", err)
}

func listRefs(ctx context.Context, b storage.Backend, prefix string) ([]*plumbing.Reference, error) {
	byName := map[string]*plumbing.Reference{}

	text, err := b.ReadPackedRefs(ctx)
	if err != nil {
		return nil, err
	}
	packed, err := packedrefs.Parse([]byte(text))
	if err != nil {
		return nil, err
	}
	for _, rec := range packed.Records {
		name := string(rec.Name)
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		byName[name] = plumbing.NewHashReference(rec.Name, rec.Hash)
	}

	names, err := b.ListRefNames(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		content, err := b.ReadRawRef(ctx, name)
		if err != nil {
			if errors.Is(err, plumbing.ErrRefNotFound) {
				continue
			}
			return nil, err
		}
		ref, err := plumbing.ParseReferenceContent(plumbing.ReferenceName(name), content)
		if err != nil {
			return nil, err
		}
		byName[name] = ref
	}

	out := make([]*plumbing.Reference, 0, len(byName))
	for _, ref := range byName {
		out = append(out, ref)
	}
	sort.Slice(out, func(a, c int) bool { return out[a].Name() < out[c].Name() })
	return out, nil
}

// PackRefs folds every loose ref under refs/ into the packed-refs
// table, pinning peeled object IDs for annotated tags, then removes
// the loose files.
func (r *Repository) PackRefs(ctx context.Context) error {
	return wrapOp("pack_refs", r.packRefs(ctx))
}

func (r *Repository) packRefs(ctx context.Context) error {
	b := r.backend

	text, err := b.ReadPackedRefs(ctx)
	if err != nil {
		return err
	}
	packed, err := packedrefs.Parse([]byte(text))
	if err != nil {
		return err
	}

	names, err := b.ListRefNames(ctx, "refs/")
	if err != nil {
		return err
	}

	var folded []string
	for _, name := range names {
		content, err := b.ReadRawRef(ctx, name)
		if err != nil {
			return err
		}
		// Symbolic refs stay loose; only direct refs pack.
		if _, ok := plumbing.IsSymbolicContent(content); ok {
			continue
		}
		id, ok := plumbing.FromHex(strings.TrimSpace(content))
		if !ok {
			return &plumbing.CorruptError{What: "reference " + name}
		}

		rec := &packedrefs.Record{Name: plumbing.ReferenceName(name), Hash: id}
		if peeled, ok := r.peelTag(ctx, id); ok {
			rec.Peeled = peeled
			rec.HasPeeled = true
		}
		packed.Set(rec)
		folded = append(folded, name)
	}

	if err := b.WritePackedRefs(ctx, string(packed.Serialize())); err != nil {
		return err
	}

	for _, name := range folded {
		if err := b.DeleteRawRef(ctx, name); err != nil && !errors.Is(err, plumbing.ErrRefNotFound) {
			return err
		}
	}
	return nil
}

// peelTag follows an annotated tag to its target object.
func (r *Repository) peelTag(ctx context.Context, id plumbing.ObjectID) (plumbing.ObjectID, bool) {
	obj, err := readObject(ctx, r.backend, nil, id, plumbing.ContentForm)
	if err != nil || obj.Type != plumbing.TagObject {
		return plumbing.ObjectID{}, false
	}
	tag, err := object.DecodeTag(obj.Data)
	if err != nil {
		return plumbing.ObjectID{}, false
	}
	return tag.Object, true
}
