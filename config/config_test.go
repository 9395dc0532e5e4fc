package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	format "github.com/gitvault/gitvault/plumbing/format/config"
)

func TestDefaultsTable(t *testing.T) {
	c := NewDefault()
	assert.False(t, c.Core.FileMode)
	assert.False(t, c.Core.Symlinks)
	assert.True(t, c.Core.IgnoreCase)
	assert.False(t, c.Core.Bare)
	assert.Equal(t, format.Version0, c.Core.RepositoryFormatVersion)
	assert.True(t, c.Core.LogAllRefUpdates)
	assert.Equal(t, "master", c.Init.DefaultBranch)
}

func TestDecodeOverridesDefaults(t *testing.T) {
	text := `[core]
	bare = true
	repositoryformatversion = 1
[extensions]
	objectformat = sha256
[init]
	defaultBranch = main
[user]
	name = A
	email = a@x
`
	c, err := Decode(strings.NewReader(text))
	require.NoError(t, err)
	assert.True(t, c.Core.Bare)
	assert.Equal(t, format.Version1, c.Core.RepositoryFormatVersion)
	assert.Equal(t, format.SHA256, c.Extensions.ObjectFormat)
	assert.Equal(t, format.SHA256, c.ObjectFormat())
	assert.Equal(t, "main", c.Init.DefaultBranch)
	assert.Equal(t, "A", c.User.Name)
	assert.Equal(t, "a@x", c.User.Email)
	// Untouched keys keep their defaults.
	assert.True(t, c.Core.IgnoreCase)
}

func TestMarshalRoundTrip(t *testing.T) {
	c := NewDefault()
	c.Core.Bare = true
	c.Extensions.ObjectFormat = format.SHA256
	c.Init.DefaultBranch = "main"

	data, err := c.Marshal()
	require.NoError(t, err)

	got, err := Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.True(t, got.Core.Bare)
	assert.Equal(t, format.SHA256, got.Extensions.ObjectFormat)
	assert.Equal(t, "main", got.Init.DefaultBranch)
}

func TestMarshalPreservesUnknownKeys(t *testing.T) {
	text := "[custom]\n\tanswer = 42\n"
	c, err := Decode(strings.NewReader(text))
	require.NoError(t, err)

	data, err := c.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "answer = 42")
}

func TestProviderPrecedence(t *testing.T) {
	p := NewProvider()

	system := format.New()
	system.Section("user").SetOption("name", "system-user")
	system.Section("core").SetOption("pager", "less")
	p.SetLayer(SystemScope, system)

	global := format.New()
	global.Section("user").SetOption("name", "global-user")
	p.SetLayer(GlobalScope, global)

	local := format.New()
	local.Section("user").SetOption("name", "local-user")
	p.SetLayer(LocalScope, local)

	v, ok := p.Get("user", "", "name")
	require.True(t, ok)
	assert.Equal(t, "local-user", v)

	v, ok = p.Get("core", "", "pager")
	require.True(t, ok)
	assert.Equal(t, "less", v)

	_, ok = p.Get("core", "", "editor")
	assert.False(t, ok)

	merged := p.Merged()
	assert.Equal(t, "local-user", merged.User.Name)
}
