// Package config provides the typed view over gitconfig contents, with
// the fixed defaults table applied at read time. Only the local scope
// is writable through this package.
package config

import (
	"bytes"
	"io"
	"strconv"

	format "github.com/gitvault/gitvault/plumbing/format/config"
)

// Section and key names used by the typed view.
const (
	coreSection       = "core"
	extensionsSection = "extensions"
	initSection       = "init"
	userSection       = "user"

	bareKey             = "bare"
	fileModeKey         = "filemode"
	symlinksKey         = "symlinks"
	ignoreCaseKey       = "ignorecase"
	formatVersionKey    = "repositoryformatversion"
	logAllRefUpdatesKey = "logallrefupdates"
	hooksPathKey        = "hooksPath"
	objectFormatKey     = "objectformat"
	defaultBranchKey    = "defaultBranch"
	nameKey             = "name"
	emailKey            = "email"
)

// Config is the typed configuration view. Raw preserves every section
// and option, including ones the typed fields do not model, so writes
// round-trip unknown keys.
type Config struct {
	Core struct {
		// Bare reports whether the repository has no working tree.
		Bare bool
		// FileMode tracks the executable bit in the working tree.
		FileMode bool
		// Symlinks materializes symbolic links in the working tree.
		Symlinks bool
		// IgnoreCase treats paths case-insensitively.
		IgnoreCase bool
		// RepositoryFormatVersion is "0", or "1" when extensions are
		// in play.
		RepositoryFormatVersion format.RepositoryFormatVersion
		// LogAllRefUpdates enables reflog appends on ref writes.
		LogAllRefUpdates bool
		// HooksPath overrides the hooks directory when set.
		HooksPath string
	}

	Extensions struct {
		// ObjectFormat is the repository hash family. Locked after the
		// first object write.
		ObjectFormat format.ObjectFormat
	}

	Init struct {
		// DefaultBranch is the branch HEAD points at in a fresh
		// repository.
		DefaultBranch string
	}

	User struct {
		Name  string
		Email string
	}

	// Raw contains the underlying parsed file.
	Raw *format.Config
}

// The defaults table, applied at read time.
func defaults(c *Config) {
	c.Core.FileMode = false
	c.Core.Symlinks = false
	c.Core.IgnoreCase = true
	c.Core.Bare = false
	c.Core.RepositoryFormatVersion = format.Version0
	c.Core.LogAllRefUpdates = true
	c.Init.DefaultBranch = "master"
}

// NewDefault returns a Config holding only the defaults table.
func NewDefault() *Config {
	c := &Config{Raw: format.New()}
	defaults(c)
	return c
}

// ReadFrom builds the typed view over a parsed raw config, applying the
// defaults table for keys the raw config does not set.
func ReadFrom(raw *format.Config) *Config {
	c := &Config{Raw: raw}
	defaults(c)

	core := raw.Section(coreSection)
	if core.HasOption(bareKey) {
		c.Core.Bare = boolVal(core.GetOption(bareKey))
	}
	if core.HasOption(fileModeKey) {
		c.Core.FileMode = boolVal(core.GetOption(fileModeKey))
	}
	if core.HasOption(symlinksKey) {
		c.Core.Symlinks = boolVal(core.GetOption(symlinksKey))
	}
	if core.HasOption(ignoreCaseKey) {
		c.Core.IgnoreCase = boolVal(core.GetOption(ignoreCaseKey))
	}
	if core.HasOption(formatVersionKey) {
		c.Core.RepositoryFormatVersion = format.RepositoryFormatVersion(core.GetOption(formatVersionKey))
	}
	if core.HasOption(logAllRefUpdatesKey) {
		c.Core.LogAllRefUpdates = boolVal(core.GetOption(logAllRefUpdatesKey))
	}
	c.Core.HooksPath = core.GetOption(hooksPathKey)

	c.Extensions.ObjectFormat = format.ObjectFormat(raw.Section(extensionsSection).GetOption(objectFormatKey))

	if v := raw.Section(initSection).GetOption(defaultBranchKey); v != "" {
		c.Init.DefaultBranch = v
	}

	c.User.Name = raw.Section(userSection).GetOption(nameKey)
	c.User.Email = raw.Section(userSection).GetOption(emailKey)

	return c
}

// Decode parses gitconfig text into the typed view.
func Decode(r io.Reader) (*Config, error) {
	raw := format.New()
	if err := format.NewDecoder(r).Decode(raw); err != nil {
		return nil, err
	}
	return ReadFrom(raw), nil
}

// Marshal folds the typed fields back into Raw and serializes it.
func (c *Config) Marshal() ([]byte, error) {
	if c.Raw == nil {
		c.Raw = format.New()
	}

	core := c.Raw.Section(coreSection)
	core.SetOption(formatVersionKey, string(c.Core.RepositoryFormatVersion))
	core.SetOption(fileModeKey, strconv.FormatBool(c.Core.FileMode))
	core.SetOption(bareKey, strconv.FormatBool(c.Core.Bare))
	core.SetOption(symlinksKey, strconv.FormatBool(c.Core.Symlinks))
	core.SetOption(ignoreCaseKey, strconv.FormatBool(c.Core.IgnoreCase))
	core.SetOption(logAllRefUpdatesKey, strconv.FormatBool(c.Core.LogAllRefUpdates))
	if c.Core.HooksPath != "" {
		core.SetOption(hooksPathKey, c.Core.HooksPath)
	}

	if c.Extensions.ObjectFormat != format.UnsetObjectFormat {
		c.Raw.Section(extensionsSection).SetOption(objectFormatKey, string(c.Extensions.ObjectFormat))
	}

	if c.Init.DefaultBranch != "" {
		c.Raw.Section(initSection).SetOption(defaultBranchKey, c.Init.DefaultBranch)
	}

	if c.User.Name != "" {
		c.Raw.Section(userSection).SetOption(nameKey, c.User.Name)
	}
	if c.User.Email != "" {
		c.Raw.Section(userSection).SetOption(emailKey, c.User.Email)
	}

	var buf bytes.Buffer
	if err := format.NewEncoder(&buf).Encode(c.Raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ObjectFormat returns the configured hash family, defaulting to SHA1
// when the extension is unset.
func (c *Config) ObjectFormat() format.ObjectFormat {
	if c.Extensions.ObjectFormat.Valid() {
		return c.Extensions.ObjectFormat
	}
	return format.DefaultObjectFormat
}

func boolVal(v string) bool {
	switch v {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}
