package config

import (
	format "github.com/gitvault/gitvault/plumbing/format/config"
)

// Scope identifies which configuration layer a value came from. Local
// values override worktree values, which override global, which
// override system — matching git's precedence. Only LocalScope is
// writable through this module.
type Scope int

const (
	SystemScope Scope = iota
	GlobalScope
	WorktreeScope
	LocalScope
)

func (s Scope) String() string {
	switch s {
	case SystemScope:
		return "system"
	case GlobalScope:
		return "global"
	case WorktreeScope:
		return "worktree"
	case LocalScope:
		return "local"
	}
	return "unknown"
}

// Provider layers raw configs by scope; Get answers section/key
// queries layer by layer and Merged builds the typed merged view. System and global layers are read-only
// inputs; the local layer is the repository's own config file.
type Provider struct {
	layers map[Scope]*format.Config
}

// NewProvider returns a provider with empty layers.
func NewProvider() *Provider {
	return &Provider{layers: map[Scope]*format.Config{}}
}

// SetLayer installs a raw config for a scope, replacing any previous
// one.
func (p *Provider) SetLayer(s Scope, raw *format.Config) {
	p.layers[s] = raw
}

// Layer returns the raw config for a scope, creating an empty one on
// first use.
func (p *Provider) Layer(s Scope) *format.Config {
	if p.layers[s] == nil {
		p.layers[s] = format.New()
	}
	return p.layers[s]
}

// Get looks up section.key, or section.subsection.key when subsection
// is non-empty, across the layers, highest-priority scope first. The
// boolean reports whether any layer held the key.
func (p *Provider) Get(section, subsection, key string) (string, bool) {
	for _, s := range []Scope{LocalScope, WorktreeScope, GlobalScope, SystemScope} {
		raw := p.layers[s]
		if raw == nil {
			continue
		}
		var has bool
		var v string
		if subsection == "" {
			has = raw.Section(section).HasOption(key)
			v = raw.Section(section).GetOption(key)
		} else {
			has = raw.Section(section).Subsection(subsection).HasOption(key)
			v = raw.Section(section).Subsection(subsection).GetOption(key)
		}
		if has {
			return v, true
		}
	}
	return "", false
}

// Merged builds the typed view over the merged layers, defaults
// applied last.
func (p *Provider) Merged() *Config {
	merged := format.New()
	// Lowest priority first so higher scopes override.
	for _, s := range []Scope{SystemScope, GlobalScope, WorktreeScope, LocalScope} {
		raw := p.layers[s]
		if raw == nil {
			continue
		}
		for _, sec := range raw.Sections {
			for _, o := range sec.Options {
				merged.Section(sec.Name).SetOption(o.Key, o.Value)
			}
			for _, ss := range sec.Subsections {
				for _, o := range ss.Options {
					merged.Section(sec.Name).Subsection(ss.Name).SetOption(o.Key, o.Value)
				}
			}
		}
	}
	return ReadFrom(merged)
}
