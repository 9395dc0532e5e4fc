package gitvault

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitvault/gitvault/config"
	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/reflog"
	"github.com/gitvault/gitvault/plumbing/object"
)

// appendReflog appends one entry to a ref's log. Failures are
// swallowed and logged: a failed reflog never aborts the primary
// operation.
func (r *Repository) appendReflog(ctx context.Context, ref string, old, new plumbing.ObjectID, who object.Signature, message string) {
	cfg, err := r.typedConfig(ctx)
	if err == nil && !cfg.Core.LogAllRefUpdates {
		return
	}

	entry := &reflog.Entry{
		Old:     old,
		New:     new,
		Name:    who.Name,
		Email:   who.Email,
		When:    who.When,
		Message: message,
	}
	if err := r.backend.AppendReflog(ctx, ref, entry.Format()); err != nil {
		r.log.WithFields(logrus.Fields{"ref": ref, "err": err}).Warn("reflog append failed")
	}
}

// ReadReflog returns a ref's log entries, oldest first.
func (r *Repository) ReadReflog(ctx context.Context, ref string) ([]*reflog.Entry, error) {
	data, err := r.backend.ReadReflog(ctx, ref)
	if err != nil {
		return nil, wrapOp("read_reflog", err)
	}
	entries, err := reflog.Parse(data)
	return entries, wrapOp("read_reflog", err)
}

// AppendReflog appends a caller-built entry; unlike internal appends,
// failures propagate.
func (r *Repository) AppendReflog(ctx context.Context, ref string, entry *reflog.Entry) error {
	return wrapOp("append_reflog", r.backend.AppendReflog(ctx, ref, entry.Format()))
}

// DeleteReflog removes a ref's log.
func (r *Repository) DeleteReflog(ctx context.Context, ref string) error {
	return wrapOp("delete_reflog", r.backend.DeleteReflog(ctx, ref))
}

// ListReflogs enumerates refs with logs.
func (r *Repository) ListReflogs(ctx context.Context) ([]string, error) {
	out, err := r.backend.ListReflogs(ctx)
	return out, wrapOp("list_reflogs", err)
}

// typedConfig reads the local config through the typed view.
func (r *Repository) typedConfig(ctx context.Context) (*config.Config, error) {
	raw, err := r.backend.ReadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return config.ReadFrom(raw), nil
}

// defaultIdentity builds the identity for internally-generated reflog
// entries from config, with a fixed fallback.
func (r *Repository) defaultIdentity(ctx context.Context) object.Signature {
	sig := object.Signature{Name: "gitvault", Email: "gitvault@localhost", When: time.Now()}
	if cfg, err := r.typedConfig(ctx); err == nil {
		if cfg.User.Name != "" {
			sig.Name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			sig.Email = cfg.User.Email
		}
	}
	return sig
}
