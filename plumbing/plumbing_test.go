package plumbing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHexInfersFormat(t *testing.T) {
	sha1Hex := "89dce6a446a69d6b9bdc7e236188de47bc7a2b70"
	id, ok := FromHex(sha1Hex)
	require.True(t, ok)
	assert.Equal(t, sha1Hex, id.String())
	assert.Equal(t, 20, id.Size())
	assert.Equal(t, "sha1", string(id.Format()))

	sha256Hex := "6ef19b41225c5369f1c104d45d8d85efa9b057b53b14b4b9b939dd74decc5321"
	id, ok = FromHex(sha256Hex)
	require.True(t, ok)
	assert.Equal(t, sha256Hex, id.String())
	assert.Equal(t, 32, id.Size())

	_, ok = FromHex("abc")
	assert.False(t, ok)
	_, ok = FromHex("zzdce6a446a69d6b9bdc7e236188de47bc7a2b70")
	assert.False(t, ok)
}

func TestValidHexRespectsFamily(t *testing.T) {
	sha1Hex := "89dce6a446a69d6b9bdc7e236188de47bc7a2b70"
	assert.True(t, ValidHex(sha1Hex, "sha1"))
	assert.False(t, ValidHex(sha1Hex, "sha256"))
}

func TestZeroID(t *testing.T) {
	z := ZeroID("sha1")
	assert.True(t, z.IsZero())
	assert.Equal(t, "0000000000000000000000000000000000000000", z.String())

	z256 := ZeroID("sha256")
	assert.Len(t, z256.String(), 64)
}

func TestHasherKnownVectors(t *testing.T) {
	h, err := FromObjectFormat("sha1")
	require.NoError(t, err)

	// git hash-object of "# r\n".
	id, err := h.Compute(BlobObject, []byte("# r\n"))
	require.NoError(t, err)
	assert.Equal(t, "a98c46c71c932a57a1ec95007803ea5509cc6316", id.String())

	// The empty tree sentinel.
	id, err = h.Compute(TreeObject, nil)
	require.NoError(t, err)
	assert.Equal(t, "4b825dc642cb6eb9a060e54bf8d69288fbee4904", id.String())
}

func TestHasherRejectsInvalidType(t *testing.T) {
	h, err := FromObjectFormat("sha1")
	require.NoError(t, err)
	_, err = h.Compute(InvalidObject, nil)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestParseObjectType(t *testing.T) {
	for name, want := range map[string]ObjectType{
		"blob": BlobObject, "tree": TreeObject, "commit": CommitObject, "tag": TagObject,
	} {
		got, err := ParseObjectType(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseObjectType("glob")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestReferenceContentRoundTrip(t *testing.T) {
	sym := NewSymbolicReference(HEAD, "refs/heads/main")
	assert.Equal(t, "ref: refs/heads/main\n", sym.Content())

	parsed, err := ParseReferenceContent(HEAD, sym.Content())
	require.NoError(t, err)
	assert.Equal(t, SymbolicReference, parsed.Type())
	assert.Equal(t, ReferenceName("refs/heads/main"), parsed.Target())

	id := MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70")
	direct := NewHashReference("refs/heads/main", id)
	parsed, err = ParseReferenceContent("refs/heads/main", direct.Content())
	require.NoError(t, err)
	assert.Equal(t, HashReference, parsed.Type())
	assert.Equal(t, id, parsed.Hash())

	_, err = ParseReferenceContent("refs/heads/x", "not a ref\n")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReferenceNameHelpers(t *testing.T) {
	assert.Equal(t, ReferenceName("refs/heads/main"), NewBranchReferenceName("main"))
	assert.Equal(t, ReferenceName("refs/tags/v1"), NewTagReferenceName("v1"))
	assert.Equal(t, ReferenceName("refs/remotes/origin/main"), NewRemoteReferenceName("origin", "main"))

	assert.True(t, ReferenceName("refs/heads/main").IsBranch())
	assert.True(t, ReferenceName("refs/tags/v1").IsTag())
	assert.True(t, ReferenceName("refs/remotes/origin/main").IsRemote())
	assert.Equal(t, "main", ReferenceName("refs/heads/main").Short())
	assert.Equal(t, "v1", ReferenceName("refs/tags/v1").Short())
}

func TestFileModeString(t *testing.T) {
	assert.Equal(t, "040000", Dir.String())
	assert.Equal(t, "100644", Regular.String())
	assert.Equal(t, "100755", Executable.String())
	assert.Equal(t, "120000", Symlink.String())
	assert.Equal(t, "160000", Submodule.String())

	m, err := NewFileMode("040000")
	require.NoError(t, err)
	assert.Equal(t, Dir, m)

	m, err = NewFileMode("40000")
	require.NoError(t, err)
	assert.Equal(t, Dir, m)

	_, err = NewFileMode("123456")
	assert.ErrorIs(t, err, ErrCorrupt)
}
