package index

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
	format "github.com/gitvault/gitvault/plumbing/format/config"
)

func entry(name string, stage Stage) *Entry {
	e := &Entry{
		Hash:       plumbing.MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70"),
		Name:       name,
		Mode:       plumbing.Regular,
		Size:       4,
		Stage:      stage,
		CreatedAt:  time.Unix(1700000000, 0),
		ModifiedAt: time.Unix(1700000000, 0),
	}
	return e
}

func TestInsertKeepsOrder(t *testing.T) {
	idx := New()
	idx.Insert(entry("b.txt", Merged))
	idx.Insert(entry("a.txt", Merged))
	idx.Insert(entry("a.txt", TheirMode))
	idx.Insert(entry("a.txt", OurMode))

	var got []string
	for _, e := range idx.Entries {
		got = append(got, e.Name)
	}
	assert.Equal(t, []string{"a.txt", "a.txt", "a.txt", "b.txt"}, got)
	assert.Equal(t, Merged, idx.Entries[0].Stage)
	assert.Equal(t, OurMode, idx.Entries[1].Stage)
	assert.Equal(t, TheirMode, idx.Entries[2].Stage)
}

func TestInsertUpserts(t *testing.T) {
	idx := New()
	idx.Insert(entry("a.txt", Merged))
	e := entry("a.txt", Merged)
	e.Size = 42
	idx.Insert(e)

	require.Len(t, idx.Entries, 1)
	assert.Equal(t, uint32(42), idx.Entries[0].Size)
}

func TestInsertCanonicalizesPath(t *testing.T) {
	idx := New()
	idx.Insert(entry("./dir/f.txt", Merged))
	assert.Equal(t, "dir/f.txt", idx.Entries[0].Name)
	assert.True(t, idx.HasPath("dir/f.txt"))
}

func TestUnmergedPaths(t *testing.T) {
	idx := New()
	idx.Insert(entry("clean.txt", Merged))
	idx.Insert(entry("f", AncestorMode))
	idx.Insert(entry("f", OurMode))
	idx.Insert(entry("f", TheirMode))

	assert.Equal(t, []string{"f"}, idx.UnmergedPaths())
	assert.Len(t, idx.StageEntries(), 1)
}

func TestRemove(t *testing.T) {
	idx := New()
	idx.Insert(entry("f", AncestorMode))
	idx.Insert(entry("f", OurMode))
	require.NoError(t, idx.Remove("f"))
	assert.Empty(t, idx.Entries)
	assert.ErrorIs(t, idx.Remove("f"), ErrEntryNotFound)
}

func TestRemoveStage(t *testing.T) {
	idx := New()
	idx.Insert(entry("f", AncestorMode))
	idx.Insert(entry("f", OurMode))
	require.NoError(t, idx.RemoveStage("f", AncestorMode))
	require.Len(t, idx.Entries, 1)
	assert.Equal(t, OurMode, idx.Entries[0].Stage)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, f := range []format.ObjectFormat{format.SHA1, format.SHA256} {
		idx := New()
		e1 := entry("README.md", Merged)
		e2 := entry("deep/nested/file.go", Merged)
		e2.Mode = plumbing.Executable
		if f == format.SHA256 {
			id := plumbing.MustFromHex("6dcd4ce23d88e2ee9568ba546c007c63d9131c1b1e2bab34dc5b5d5e08cca9df")
			e1.Hash, e2.Hash = id, id
		}
		idx.Insert(e1)
		idx.Insert(e2)

		var buf bytes.Buffer
		require.NoError(t, NewEncoder(&buf, f).Encode(idx))

		var got Index
		require.NoError(t, NewDecoder(&buf, f).Decode(&got))
		assert.Equal(t, uint32(2), got.Version)
		require.Len(t, got.Entries, 2)
		assert.Equal(t, *idx.Entries[0], *got.Entries[0])
		assert.Equal(t, *idx.Entries[1], *got.Entries[1])
	}
}

func TestEncodeBumpsToV3OnExtendedFlags(t *testing.T) {
	idx := New()
	e := entry("a.txt", Merged)
	e.IntentToAdd = true
	idx.Insert(e)

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf, format.SHA1).Encode(idx))

	var got Index
	require.NoError(t, NewDecoder(&buf, format.SHA1).Decode(&got))
	assert.Equal(t, uint32(3), got.Version)
	assert.True(t, got.Entries[0].IntentToAdd)
}

func TestEncodeStagesRoundTrip(t *testing.T) {
	idx := New()
	idx.Insert(entry("f", AncestorMode))
	idx.Insert(entry("f", OurMode))
	idx.Insert(entry("f", TheirMode))

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf, format.SHA1).Encode(idx))

	var got Index
	require.NoError(t, NewDecoder(&buf, format.SHA1).Decode(&got))
	assert.Equal(t, []string{"f"}, got.UnmergedPaths())
	assert.Equal(t, AncestorMode, got.Entries[0].Stage)
	assert.Equal(t, OurMode, got.Entries[1].Stage)
	assert.Equal(t, TheirMode, got.Entries[2].Stage)
}

func TestDecodeChecksumMismatch(t *testing.T) {
	idx := New()
	idx.Insert(entry("a.txt", Merged))

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf, format.SHA1).Encode(idx))

	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	var got Index
	err := NewDecoder(bytes.NewReader(data), format.SHA1).Decode(&got)
	assert.ErrorIs(t, err, plumbing.ErrCorrupt)
}

func TestEncodeRejectsUnsortedEntries(t *testing.T) {
	idx := New()
	idx.Entries = []*Entry{entry("b", Merged), entry("a", Merged)}

	var buf bytes.Buffer
	assert.ErrorIs(t, NewEncoder(&buf, format.SHA1).Encode(idx), ErrMixedStageOrder)
}
