package gitvault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/plumbing/object"
	"github.com/gitvault/gitvault/storage"
)

// Merge state file names.
const (
	mergeHeadState = "MERGE_HEAD"
	mergeModeState = "MERGE_MODE"
	mergeMsgState  = "MERGE_MSG"
)

// MergeOptions control the merge state machine.
type MergeOptions struct {
	// FFOnly fails with ErrFastForward when the merge cannot
	// fast-forward.
	FFOnly bool
	// NoFF forces a merge commit even when fast-forwarding is
	// possible.
	NoFF bool
	// Message overrides the merge commit message.
	Message string
	// Author and Committer identify the merge commit; config user
	// when nil.
	Author    *object.Signature
	Committer *object.Signature
	// DryRun computes the outcome without persisting anything.
	DryRun bool
	// AllowUnrelated substitutes the empty tree when the histories
	// share no base.
	AllowUnrelated bool
	// AbortOnConflict leaves the index untouched on conflict; when
	// false the conflicted index is persisted with stages 1/2/3 before
	// the error is raised. The error is raised either way.
	AbortOnConflict bool
}

// MergeResult reports a completed merge.
type MergeResult struct {
	// FastForward is set when the target ref simply advanced.
	FastForward bool
	// AlreadyMerged is set when theirs was already reachable.
	AlreadyMerged bool
	// OID is the resulting commit: theirs for fast-forward, ours when
	// already merged, the merge commit otherwise. Zero for dry runs that
	// stop before committing.
	OID plumbing.ObjectID
	// Tree is the resulting root tree.
	Tree plumbing.ObjectID
}

// Merge merges theirsRef into oursRef.
func (r *Repository) Merge(ctx context.Context, wt WorktreeBackend, oursRef, theirsRef string, opts MergeOptions) (*MergeResult, error) {
	res, err := r.merge(ctx, wt, oursRef, theirsRef, opts)
	return res, wrapOp("merge", err)
}

func (r *Repository) merge(ctx context.Context, wt WorktreeBackend, oursRef, theirsRef string, opts MergeOptions) (*MergeResult, error) {
	cache := storage.NewObjectCache(r.backend)

	oursName, err := r.ExpandRef(ctx, oursRef)
	if err != nil {
		return nil, err
	}
	theirsName, err := r.ExpandRef(ctx, theirsRef)
	if err != nil {
		return nil, err
	}

	oursOid, err := r.ResolveOID(ctx, oursName)
	if err != nil {
		return nil, err
	}
	theirsOid, err := r.ResolveOID(ctx, theirsName)
	if err != nil {
		return nil, err
	}

	bases, err := mergeBases(ctx, r.backend, cache, oursOid, theirsOid)
	if err != nil {
		return nil, err
	}

	theirsCommit, err := readCommit(ctx, r.backend, cache, theirsOid)
	if err != nil {
		return nil, err
	}

	switch {
	case len(bases) == 1 && bases[0].Equal(theirsOid):
		return &MergeResult{AlreadyMerged: true, OID: oursOid}, nil

	case len(bases) == 1 && bases[0].Equal(oursOid) && !opts.NoFF:
		return r.fastForward(ctx, oursName, theirsName, oursOid, theirsOid, theirsCommit, opts)

	case len(bases) == 0 && !opts.AllowUnrelated:
		return nil, fmt.Errorf("%w: refusing to merge unrelated histories", plumbing.ErrMergeNotSupported)

	case len(bases) > 1:
		// Recursive merge-base is out of scope; callers supply a base
		// through MergeTree or opt into unrelated histories.
		return nil, fmt.Errorf("%w: %d merge bases", plumbing.ErrMergeNotSupported, len(bases))
	}

	var baseTree *plumbing.ObjectID
	if len(bases) == 1 {
		baseCommit, err := readCommit(ctx, r.backend, cache, bases[0])
		if err != nil {
			return nil, err
		}
		baseTree = &baseCommit.Tree
	}

	return r.threeWay(ctx, wt, cache, oursName, theirsName, oursOid, theirsOid, baseTree, theirsCommit, opts)
}

// fastForward advances ours to theirs.
func (r *Repository) fastForward(ctx context.Context, oursName, theirsName string, oursOid, theirsOid plumbing.ObjectID, theirsCommit *object.Commit, opts MergeOptions) (*MergeResult, error) {
	if !opts.DryRun {
		if err := r.writeRef(ctx, oursName, theirsOid, true, ""); err != nil {
			return nil, err
		}
		who := r.mergeIdentity(ctx, opts)
		msg := fmt.Sprintf("merge %s: Fast-forward", plumbing.ReferenceName(theirsName).Short())
		r.appendReflog(ctx, oursName, oursOid, theirsOid, who, msg)
	}

	return &MergeResult{FastForward: true, OID: theirsOid, Tree: theirsCommit.Tree}, nil
}

func (r *Repository) threeWay(ctx context.Context, wt WorktreeBackend, cache *storage.ObjectCache, oursName, theirsName string, oursOid, theirsOid plumbing.ObjectID, baseTree *plumbing.ObjectID, theirsCommit *object.Commit, opts MergeOptions) (*MergeResult, error) {
	if opts.FFOnly {
		return nil, fmt.Errorf("%w: %s is not a descendant of %s", plumbing.ErrFastForward, theirsName, oursName)
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s'", plumbing.ReferenceName(theirsName).Short())
	}

	if !opts.DryRun {
		if err := r.backend.WriteState(ctx, mergeHeadState, []byte(theirsOid.String()+"\n")); err != nil {
			return nil, err
		}
		mode := ""
		if opts.NoFF {
			mode = "no-ff"
		}
		if err := r.backend.WriteState(ctx, mergeModeState, []byte(mode+"\n")); err != nil {
			return nil, err
		}
		if err := r.backend.WriteState(ctx, mergeMsgState, []byte(ensureTrailingNewline(message))); err != nil {
			return nil, err
		}
	}

	idx, err := r.backend.ReadIndex(ctx)
	if err != nil {
		return nil, err
	}
	if unmerged := idx.UnmergedPaths(); len(unmerged) > 0 {
		return nil, fmt.Errorf("%w: resolve the in-progress merge first", plumbing.ErrUnmergedPaths)
	}

	oursCommit, err := readCommit(ctx, r.backend, cache, oursOid)
	if err != nil {
		return nil, err
	}

	var base map[string]object.TreeEntry
	if baseTree != nil {
		base, err = flattenTree(ctx, r.backend, cache, *baseTree, "")
		if err != nil {
			return nil, err
		}
	} else {
		// Unrelated histories merge against the empty tree.
		base = map[string]object.TreeEntry{}
	}

	ours, err := flattenTree(ctx, r.backend, cache, oursCommit.Tree, "")
	if err != nil {
		return nil, err
	}
	theirs, err := flattenTree(ctx, r.backend, cache, theirsCommit.Tree, "")
	if err != nil {
		return nil, err
	}

	merged, conflicts := mergeTrees(base, ours, theirs)

	if conflicts != nil {
		if !opts.DryRun && !opts.AbortOnConflict {
			stageConflicts(idx, base, ours, theirs, conflicts.Filepaths, merged)
			if err := r.backend.WriteIndex(ctx, idx); err != nil {
				return nil, err
			}
		}
		// Conflicts are always raised; abortOnConflict only decided
		// whether the staged index was persisted first.
		return nil, conflicts
	}

	mergedIdx := index.New()
	for _, path := range sortedKeys(merged) {
		e := merged[path]
		mergedIdx.Insert(&index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode})
	}

	treeID, err := buildTreeFromIndex(ctx, r.backend, mergedIdx, opts.DryRun)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &MergeResult{Tree: treeID}, nil
	}

	who := r.mergeIdentity(ctx, opts)
	author := opts.Author
	if author == nil {
		author = &who
	}
	committer := opts.Committer
	if committer == nil {
		committer = author
	}

	commit := &object.Commit{
		Tree:      treeID,
		Parents:   []plumbing.ObjectID{oursOid, theirsOid},
		Author:    *author,
		Committer: *committer,
		Message:   ensureTrailingNewline(message),
	}
	oid, err := writeObject(ctx, r.backend, plumbing.CommitObject, commit.Encode(), plumbing.ContentForm, false)
	if err != nil {
		return nil, err
	}

	if err := r.backend.WriteIndex(ctx, mergedIdx); err != nil {
		return nil, err
	}

	if err := r.writeRef(ctx, oursName, oid, true, ""); err != nil {
		return nil, err
	}
	logMsg := fmt.Sprintf("merge %s: Merge made by the 'ort' strategy.", plumbing.ReferenceName(theirsName).Short())
	r.appendReflog(ctx, oursName, oursOid, oid, *committer, logMsg)

	for _, state := range []string{mergeHeadState, mergeModeState, mergeMsgState} {
		if err := r.backend.DeleteState(ctx, state); err != nil && !errors.Is(err, plumbing.ErrNotFound) {
			return nil, err
		}
	}

	return &MergeResult{OID: oid, Tree: treeID}, nil
}

func (r *Repository) mergeIdentity(ctx context.Context, opts MergeOptions) object.Signature {
	if opts.Committer != nil {
		return *opts.Committer
	}
	if opts.Author != nil {
		return *opts.Author
	}
	sig := r.defaultIdentity(ctx)
	if sig.When.IsZero() {
		sig.When = time.Now()
	}
	return sig
}

// MergeTree performs a bare three-way tree merge with an explicit
// base, touching neither refs nor the index. It returns the merged
// tree ID or a MergeConflictError.
func (r *Repository) MergeTree(ctx context.Context, wt WorktreeBackend, oursTree, baseTree, theirsTree plumbing.ObjectID, dryRun bool) (plumbing.ObjectID, error) {
	oid, err := r.mergeTree(ctx, oursTree, baseTree, theirsTree, dryRun)
	return oid, wrapOp("merge_tree", err)
}

func (r *Repository) mergeTree(ctx context.Context, oursTree, baseTree, theirsTree plumbing.ObjectID, dryRun bool) (plumbing.ObjectID, error) {
	cache := storage.NewObjectCache(r.backend)

	base, err := flattenTree(ctx, r.backend, cache, baseTree, "")
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	ours, err := flattenTree(ctx, r.backend, cache, oursTree, "")
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	theirs, err := flattenTree(ctx, r.backend, cache, theirsTree, "")
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	merged, conflicts := mergeTrees(base, ours, theirs)
	if conflicts != nil {
		return plumbing.ObjectID{}, conflicts
	}

	idx := index.New()
	for _, path := range sortedKeys(merged) {
		e := merged[path]
		idx.Insert(&index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode})
	}
	return buildTreeFromIndex(ctx, r.backend, idx, dryRun)
}

// mergeTrees merges three flat path maps. The second return is nil
// when every path converged.
func mergeTrees(base, ours, theirs map[string]object.TreeEntry) (map[string]object.TreeEntry, *MergeConflictError) {
	paths := map[string]bool{}
	for p := range base {
		paths[p] = true
	}
	for p := range ours {
		paths[p] = true
	}
	for p := range theirs {
		paths[p] = true
	}

	merged := map[string]object.TreeEntry{}
	conflict := &MergeConflictError{}

	for _, p := range sortedPaths(paths) {
		b, inBase := base[p]
		o, inOurs := ours[p]
		t, inTheirs := theirs[p]

		switch {
		case sameEntry(o, inOurs, t, inTheirs):
			// Both sides agree, including both-deleted.
			if inOurs {
				merged[p] = o
			}
		case sameEntry(b, inBase, o, inOurs):
			// Unchanged by us: theirs wins, including their deletion.
			if inTheirs {
				merged[p] = t
			}
		case sameEntry(b, inBase, t, inTheirs):
			// Unchanged by them: ours wins.
			if inOurs {
				merged[p] = o
			}
		default:
			conflict.Filepaths = append(conflict.Filepaths, p)
			switch {
			case !inBase && inOurs && inTheirs:
				conflict.BothAdded = append(conflict.BothAdded, p)
			case inBase && !inOurs && inTheirs:
				conflict.DeletedByUs = append(conflict.DeletedByUs, p)
			case inBase && inOurs && !inTheirs:
				conflict.DeletedByThem = append(conflict.DeletedByThem, p)
			default:
				conflict.BothModified = append(conflict.BothModified, p)
			}
		}
	}

	if len(conflict.Filepaths) > 0 {
		return merged, conflict
	}
	return merged, nil
}

func sameEntry(a object.TreeEntry, inA bool, b object.TreeEntry, inB bool) bool {
	if inA != inB {
		return false
	}
	if !inA {
		return true
	}
	return a.Hash.Equal(b.Hash) && a.Mode == b.Mode
}

// stageConflicts rewrites the index for conflicted paths: the merged
// result stays at stage 0, conflicts get stages 1/2/3 where present.
func stageConflicts(idx *index.Index, base, ours, theirs map[string]object.TreeEntry, conflicted []string, merged map[string]object.TreeEntry) {
	for path, e := range merged {
		idx.Insert(&index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode})
	}

	for _, path := range conflicted {
		idx.Remove(path)
		if e, ok := base[path]; ok {
			idx.Insert(&index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode, Stage: index.AncestorMode})
		}
		if e, ok := ours[path]; ok {
			idx.Insert(&index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode, Stage: index.OurMode})
		}
		if e, ok := theirs[path]; ok {
			idx.Insert(&index.Entry{Name: path, Hash: e.Hash, Mode: e.Mode, Stage: index.TheirMode})
		}
	}
}

// flattenTree walks a tree recursively into a map of full slash paths
// to blob entries.
func flattenTree(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, treeID plumbing.ObjectID, prefix string) (map[string]object.TreeEntry, error) {
	out := map[string]object.TreeEntry{}

	tree, err := readTree(ctx, b, cache, treeID)
	if err != nil {
		return nil, err
	}

	for _, e := range tree.Entries {
		full := e.Name
		if prefix != "" {
			full = prefix + "/" + e.Name
		}
		if e.Mode == plumbing.Dir {
			sub, err := flattenTree(ctx, b, cache, e.Hash, full)
			if err != nil {
				return nil, err
			}
			for p, se := range sub {
				out[p] = se
			}
			continue
		}
		out[full] = object.TreeEntry{Name: full, Mode: e.Mode, Hash: e.Hash}
	}

	return out, nil
}

// mergeBases finds the common ancestors of two commits with a
// two-source walk: every ancestor of ours is marked, then a frontier
// ordered by committer date descends from theirs and stops at the
// first marked commits. Candidates that are ancestors of other
// candidates are dropped.
func mergeBases(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, ours, theirs plumbing.ObjectID) ([]plumbing.ObjectID, error) {
	if ours.Equal(theirs) {
		return []plumbing.ObjectID{ours}, nil
	}

	oursSet, err := ancestorSet(ctx, b, cache, ours)
	if err != nil {
		return nil, err
	}

	type frontierItem struct {
		oid    plumbing.ObjectID
		commit *object.Commit
	}
	heap := binaryheap.NewWith(func(a, c interface{}) int {
		at := a.(*frontierItem).commit.Committer.When.Unix()
		ct := c.(*frontierItem).commit.Committer.When.Unix()
		// Newest first.
		switch {
		case at > ct:
			return -1
		case at < ct:
			return 1
		default:
			return 0
		}
	})

	push := func(oid plumbing.ObjectID) error {
		c, err := readCommit(ctx, b, cache, oid)
		if err != nil {
			return err
		}
		heap.Push(&frontierItem{oid: oid, commit: c})
		return nil
	}
	if err := push(theirs); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var bases []plumbing.ObjectID

	for !heap.Empty() {
		v, _ := heap.Pop()
		item := v.(*frontierItem)
		key := item.oid.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		if oursSet[key] {
			bases = append(bases, item.oid)
			// A base's own ancestors cannot be independent bases.
			continue
		}
		for _, p := range item.commit.Parents {
			if err := push(p); err != nil {
				return nil, err
			}
		}
	}

	return independentBases(ctx, b, cache, bases)
}

// ancestorSet collects a commit and all its ancestors.
func ancestorSet(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, start plumbing.ObjectID) (map[string]bool, error) {
	set := map[string]bool{}
	queue := []plumbing.ObjectID{start}

	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		key := oid.String()
		if set[key] {
			continue
		}
		set[key] = true

		c, err := readCommit(ctx, b, cache, oid)
		if err != nil {
			return nil, err
		}
		queue = append(queue, c.Parents...)
	}
	return set, nil
}

// independentBases drops candidates reachable from other candidates.
func independentBases(ctx context.Context, b storage.Backend, cache *storage.ObjectCache, bases []plumbing.ObjectID) ([]plumbing.ObjectID, error) {
	if len(bases) <= 1 {
		return bases, nil
	}

	var out []plumbing.ObjectID
	for i, candidate := range bases {
		dominated := false
		for j, other := range bases {
			if i == j {
				continue
			}
			set, err := ancestorSet(ctx, b, cache, other)
			if err != nil {
				return nil, err
			}
			if set[candidate.String()] && !other.Equal(candidate) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]object.TreeEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedPaths(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
