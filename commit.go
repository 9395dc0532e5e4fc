package gitvault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/object"
)

// CommitOptions control the commit pipeline.
type CommitOptions struct {
	// Ref is the target ref; empty resolves it from HEAD (symref
	// target, literal HEAD when detached, or the default branch for
	// the initial commit).
	Ref string
	// Author of the commit; falls back to user.name/user.email from
	// config. An identity without a name fails with ErrMissingName.
	Author *object.Signature
	// Committer of the commit; defaults to the author.
	Committer *object.Signature
	// Parents overrides parent determination entirely.
	Parents []plumbing.ObjectID
	// Amend replaces the ref's current commit, inheriting its parents
	// and, when no message is given, its message.
	Amend bool
	// NoVerify skips the pre-commit hook.
	NoVerify bool
}

// Commit creates a commit from the current index. The worktree handle
// is part of the signature because conflict cleanup and hook contexts
// reference the working directory; the pipeline itself only mutates
// the gitdir.
func (r *Repository) Commit(ctx context.Context, wt WorktreeBackend, message string, opts CommitOptions) (plumbing.ObjectID, error) {
	oid, err := r.commit(ctx, wt, message, opts)
	return oid, wrapOp("commit", err)
}

func (r *Repository) commit(ctx context.Context, wt WorktreeBackend, message string, opts CommitOptions) (plumbing.ObjectID, error) {
	targetRef, initial, err := r.resolveCommitTarget(ctx, opts.Ref)
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	// One concurrent commit per index.
	lock, err := r.backend.LockIndex(ctx)
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	defer lock.Unlock()

	idx, err := r.backend.ReadIndex(ctx)
	if err != nil {
		return plumbing.ObjectID{}, err
	}
	if unmerged := idx.UnmergedPaths(); len(unmerged) > 0 {
		return plumbing.ObjectID{}, fmt.Errorf("%w: %s", plumbing.ErrUnmergedPaths, strings.Join(unmerged, ", "))
	}
	if len(idx.StageEntries()) == 0 && !initial && !opts.Amend {
		return plumbing.ObjectID{}, fmt.Errorf("%w: nothing staged and history is not empty", plumbing.ErrMissingParameter)
	}

	author, committer, err := r.resolveIdentities(ctx, opts)
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	hctx := HookContext{WorkTree: worktreeDir(wt), Branch: plumbing.ReferenceName(targetRef).Short()}

	if !opts.NoVerify {
		if _, err := r.runHook(ctx, "pre-commit", hctx, nil, nil); err != nil {
			return plumbing.ObjectID{}, err
		}
	}

	var currentOid plumbing.ObjectID
	if !initial {
		currentOid, err = r.ResolveOID(ctx, targetRef)
		if err != nil {
			return plumbing.ObjectID{}, err
		}
	}

	parents, inheritedMessage, err := r.resolveParents(ctx, opts, initial, currentOid)
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	if message == "" {
		if !opts.Amend {
			return plumbing.ObjectID{}, fmt.Errorf("%w: commit message", plumbing.ErrMissingParameter)
		}
		message = inheritedMessage
	}

	message = r.runMessageHook(ctx, "prepare-commit-msg", hctx, message)

	treeID, err := buildTreeFromIndex(ctx, r.backend, idx, false)
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	commit := &object.Commit{
		Tree:      treeID,
		Parents:   parents,
		Author:    *author,
		Committer: *committer,
		Message:   ensureTrailingNewline(message),
	}

	if err := r.signCommit(commit); err != nil {
		return plumbing.ObjectID{}, err
	}

	mutated := r.runMessageHook(ctx, "commit-msg", hctx, commit.Message)
	if mutated != commit.Message {
		commit.Message = ensureTrailingNewline(mutated)
		commit.GPGSig = ""
		if err := r.signCommit(commit); err != nil {
			return plumbing.ObjectID{}, err
		}
	}

	oid, err := writeObject(ctx, r.backend, plumbing.CommitObject, commit.Encode(), plumbing.ContentForm, false)
	if err != nil {
		return plumbing.ObjectID{}, err
	}

	if err := r.updateCommitRef(ctx, targetRef, oid, initial); err != nil {
		return plumbing.ObjectID{}, err
	}

	logMessage := "commit: " + commit.Subject()
	switch {
	case opts.Amend:
		logMessage = "commit (amend): " + commit.Subject()
	case initial:
		logMessage = "commit (initial): " + commit.Subject()
	}
	old := currentOid
	if old.IsZero() {
		f, _ := r.backend.ObjectFormat(ctx)
		old = plumbing.ZeroID(f)
	}
	r.appendReflog(ctx, targetRef, old, oid, *committer, logMessage)
	if targetRef != "HEAD" {
		r.appendReflog(ctx, "HEAD", old, oid, *committer, logMessage)
	}

	hctx.Commit = oid.String()
	if _, err := r.runHook(ctx, "post-commit", hctx, nil, nil); err != nil {
		r.log.WithFields(logrus.Fields{"hook": "post-commit", "err": err}).Warn("post-commit hook failed")
	}

	return oid, nil
}

// resolveCommitTarget finds the ref a commit updates and whether this
// is the initial-commit path.
func (r *Repository) resolveCommitTarget(ctx context.Context, explicit string) (ref string, initial bool, err error) {
	ref = explicit
	if ref == "" {
		content, err := r.backend.ReadRawRef(ctx, "HEAD")
		switch {
		case err == nil:
			if target, ok := plumbing.IsSymbolicContent(content); ok {
				ref = string(target)
			} else {
				// Detached HEAD commits move HEAD itself.
				ref = "HEAD"
			}
		case errors.Is(err, plumbing.ErrRefNotFound):
			cfg, cfgErr := r.typedConfig(ctx)
			if cfgErr != nil {
				return "", false, cfgErr
			}
			ref = "refs/heads/" + cfg.Init.DefaultBranch
		default:
			return "", false, err
		}
	}

	_, err = resolveRef(ctx, r.backend, ref, DefaultRefDepth)
	if errors.Is(err, plumbing.ErrRefNotFound) {
		return ref, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref, false, nil
}

func (r *Repository) resolveIdentities(ctx context.Context, opts CommitOptions) (author, committer *object.Signature, err error) {
	author = opts.Author
	if author == nil {
		cfg, err := r.typedConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		author = &object.Signature{Name: cfg.User.Name, Email: cfg.User.Email, When: time.Now()}
	}
	if author.Name == "" {
		return nil, nil, fmt.Errorf("%w: author", plumbing.ErrMissingName)
	}
	if author.When.IsZero() {
		author.When = time.Now()
	}

	committer = opts.Committer
	if committer == nil {
		committer = author
	}
	if committer.Name == "" {
		return nil, nil, fmt.Errorf("%w: committer", plumbing.ErrMissingName)
	}
	if committer.When.IsZero() {
		committer.When = time.Now()
	}
	return author, committer, nil
}

// resolveParents applies the precedence: explicit override, amend
// (inherit the replaced commit's parents), initial (none), otherwise
// the ref's current commit.
func (r *Repository) resolveParents(ctx context.Context, opts CommitOptions, initial bool, currentOid plumbing.ObjectID) ([]plumbing.ObjectID, string, error) {
	if len(opts.Parents) > 0 {
		return opts.Parents, "", nil
	}
	if opts.Amend {
		if initial || currentOid.IsZero() {
			return nil, "", plumbing.ErrNoCommit
		}
		current, err := readCommit(ctx, r.backend, nil, currentOid)
		if err != nil {
			return nil, "", err
		}
		return current.Parents, current.Message, nil
	}
	if initial {
		return nil, "", nil
	}
	return []plumbing.ObjectID{currentOid}, "", nil
}

// runMessageHook runs a message-mutating hook through a temp file,
// returning the possibly-modified message. When the host cannot
// provide a temp file the hook is skipped and the message passes
// through untouched.
func (r *Repository) runMessageHook(ctx context.Context, name string, hctx HookContext, message string) string {
	if r.hooks == nil {
		return message
	}
	if ok, err := r.backend.HasHook(ctx, name); err != nil || !ok {
		return message
	}

	tmp, err := os.CreateTemp("", "gitvault-msg-")
	if err != nil {
		r.log.WithFields(logrus.Fields{"hook": name, "err": err}).Warn("no temp file substrate, hook skipped")
		return message
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(message); err != nil {
		tmp.Close()
		return message
	}
	tmp.Close()

	if _, err := r.runHook(ctx, name, hctx, []byte(message), hookArgs(name, map[string]string{"file": tmpName})); err != nil {
		r.log.WithFields(logrus.Fields{"hook": name, "err": err}).Warn("message hook failed")
		return message
	}

	out, err := os.ReadFile(tmpName)
	if err != nil {
		return message
	}
	return string(out)
}

func (r *Repository) signCommit(commit *object.Commit) error {
	if r.signer == nil {
		return nil
	}
	sig, err := r.signer.Sign(commit.EncodeWithoutSignature())
	if err != nil {
		return err
	}
	commit.GPGSig = string(sig)
	return nil
}

// updateCommitRef advances the target ref. On the initial-commit path
// the branch ref is created and HEAD repaired to point at it.
func (r *Repository) updateCommitRef(ctx context.Context, targetRef string, oid plumbing.ObjectID, initial bool) error {
	if err := r.writeRef(ctx, targetRef, oid, true, ""); err != nil {
		return err
	}
	if !initial || targetRef == "HEAD" {
		return nil
	}

	content, err := r.backend.ReadRawRef(ctx, "HEAD")
	switch {
	case errors.Is(err, plumbing.ErrRefNotFound):
		// No HEAD yet: create the symref.
	case err != nil:
		return err
	default:
		if target, ok := plumbing.IsSymbolicContent(content); ok && string(target) == targetRef {
			return nil
		}
	}
	return r.writeSymbolicRef(ctx, "HEAD", targetRef, "")
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func worktreeDir(wt WorktreeBackend) string {
	if wt == nil {
		return ""
	}
	return wt.Directory()
}
