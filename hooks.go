package gitvault

import (
	"context"
	"errors"

	"github.com/gitvault/gitvault/plumbing"
)

// HookResult carries a hook's observable outcome.
type HookResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// HookInvocation is everything an executor needs to run one hook. The
// core is blind to shebangs and interpreters; dispatch is the
// executor's concern. Path is set on path-based substrates, Body
// always carries the stored hook bytes.
type HookInvocation struct {
	Name  string
	Path  string
	Body  []byte
	Env   []string
	Args  []string
	Stdin []byte
}

// HookExecutor is the capability that actually runs hook processes.
// The core decides when hooks fire, what env and args they get, and
// how their exit status is interpreted; it never spawns processes
// itself.
type HookExecutor interface {
	Run(ctx context.Context, inv HookInvocation) (HookResult, error)
}

// HookContext is the caller context layered into a hook's
// environment.
type HookContext struct {
	WorkTree     string
	Branch       string
	PreviousHead string
	Head         string
	Commit       string
	Remote       string
	RemoteURL    string
}

// HasHook reports whether the named hook is present.
func (r *Repository) HasHook(ctx context.Context, name string) (bool, error) {
	ok, err := r.backend.HasHook(ctx, name)
	return ok, wrapOp("has_hook", err)
}

// RunHook fires the named hook. A missing hook — or a repository with
// no executor wired — synthesizes success. A non-zero exit becomes a
// HookError carrying the captured output.
func (r *Repository) RunHook(ctx context.Context, name string, hctx HookContext, stdin []byte, args ...string) (HookResult, error) {
	res, err := r.runHook(ctx, name, hctx, stdin, args)
	return res, wrapOp("run_hook", err)
}

func (r *Repository) runHook(ctx context.Context, name string, hctx HookContext, stdin []byte, args []string) (HookResult, error) {
	ok, err := r.backend.HasHook(ctx, name)
	if err != nil {
		return HookResult{}, err
	}
	if !ok || r.hooks == nil {
		return HookResult{ExitCode: 0}, nil
	}

	body, err := r.backend.ReadHook(ctx, name)
	if err != nil && !errors.Is(err, plumbing.ErrNotFound) {
		return HookResult{}, err
	}

	inv := HookInvocation{
		Name:  name,
		Path:  r.backend.HookPath(name),
		Body:  body,
		Env:   r.hookEnv(ctx, hctx),
		Args:  args,
		Stdin: stdin,
	}

	res, err := r.hooks.Run(ctx, inv)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, &HookError{
			Hook:     name,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// hookEnv layers the caller context onto the repository environment.
func (r *Repository) hookEnv(ctx context.Context, hctx HookContext) []string {
	env := []string{
		"GIT_DIR=" + r.backend.Gitdir(),
		"GIT_INDEX_FILE=" + r.backend.IndexPath(),
	}
	add := func(key, val string) {
		if val != "" {
			env = append(env, key+"="+val)
		}
	}
	add("GIT_WORK_TREE", hctx.WorkTree)
	add("GIT_BRANCH", hctx.Branch)
	add("GIT_PREVIOUS_HEAD", hctx.PreviousHead)
	add("GIT_HEAD", hctx.Head)
	add("GIT_COMMIT", hctx.Commit)
	add("GIT_REMOTE", hctx.Remote)
	add("GIT_REMOTE_URL", hctx.RemoteURL)

	if cfg, err := r.typedConfig(ctx); err == nil {
		add("GIT_AUTHOR_NAME", cfg.User.Name)
		add("GIT_AUTHOR_EMAIL", cfg.User.Email)
	}
	return env
}

// hookArgs builds the per-hook argument list from the fixed table.
func hookArgs(name string, params map[string]string) []string {
	switch name {
	case "post-checkout":
		return []string{params["prev"], params["new"], params["branch_flag"]}
	case "post-merge":
		return []string{params["squash_flag"]}
	case "pre-push":
		return []string{params["remote"], params["remote_url"]}
	case "prepare-commit-msg":
		return []string{params["file"], "message"}
	case "commit-msg":
		return []string{params["file"]}
	default:
		return nil
	}
}
