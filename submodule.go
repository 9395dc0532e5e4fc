package gitvault

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
)

const gitmodulesFile = ".gitmodules"

// SubmoduleDescriptor is one entry parsed from .gitmodules.
type SubmoduleDescriptor struct {
	Name   string
	Path   string
	URL    string
	Branch string
}

// Submodules parses .gitmodules from the worktree. Duplicate sections
// with the same name merge field-wise, later values winning per field.
func (r *Repository) Submodules(wt WorktreeBackend) ([]*SubmoduleDescriptor, error) {
	subs, err := parseGitmodules(wt)
	return subs, wrapOp("submodules", err)
}

// Submodule returns the descriptor whose path matches.
func (r *Repository) Submodule(wt WorktreeBackend, path string) (*SubmoduleDescriptor, error) {
	subs, err := parseGitmodules(wt)
	if err != nil {
		return nil, wrapOp("submodule", err)
	}
	for _, s := range subs {
		if s.Path == path {
			return s, nil
		}
	}
	return nil, wrapOp("submodule", fmt.Errorf("%w: submodule at %s", plumbing.ErrNotFound, path))
}

func parseGitmodules(wt WorktreeBackend) ([]*SubmoduleDescriptor, error) {
	if wt == nil {
		return nil, fmt.Errorf("%w: worktree", plumbing.ErrMissingParameter)
	}

	data, err := wt.Read(gitmodulesFile)
	if err != nil {
		if errors.Is(err, plumbing.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	raw := format.New()
	if err := format.NewDecoder(bytes.NewReader(data)).Decode(raw); err != nil {
		return nil, err
	}

	var order []string
	byName := map[string]*SubmoduleDescriptor{}

	for _, sec := range raw.Sections {
		if !sec.IsName("submodule") {
			continue
		}
		for _, ss := range sec.Subsections {
			sub, ok := byName[ss.Name]
			if !ok {
				sub = &SubmoduleDescriptor{Name: ss.Name}
				byName[ss.Name] = sub
				order = append(order, ss.Name)
			}
			// Merge duplicate sections field-wise: later values win.
			if v := ss.GetOption("path"); v != "" {
				sub.Path = v
			}
			if v := ss.GetOption("url"); v != "" {
				sub.URL = v
			}
			if v := ss.GetOption("branch"); v != "" {
				sub.Branch = v
			}
		}
	}

	out := make([]*SubmoduleDescriptor, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}
