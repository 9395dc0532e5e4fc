package reflog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvault/gitvault/plumbing"
)

func TestFormat(t *testing.T) {
	e := &Entry{
		Old:     plumbing.ZeroID("sha1"),
		New:     plumbing.MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70"),
		Name:    "A",
		Email:   "a@x",
		When:    time.Unix(1700000000, 0).In(time.FixedZone("+0000", 0)),
		Message: "commit: first",
	}

	line := string(e.Format())
	assert.Equal(t,
		"0000000000000000000000000000000000000000 89dce6a446a69d6b9bdc7e236188de47bc7a2b70 A <a@x> 1700000000 +0000\tcommit: first\n",
		line)
}

func TestParseRoundTrip(t *testing.T) {
	e := &Entry{
		Old:     plumbing.MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70"),
		New:     plumbing.MustFromHex("78981922613b2afb6025042ff6bd878ac1994e85"),
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		When:    time.Unix(1700000000, 0).In(time.FixedZone("-0500", -5*3600)),
		Message: "merge feat: Fast-forward",
	}

	entries, err := Parse(e.Format())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, e.Old, got.Old)
	assert.Equal(t, e.New, got.New)
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, e.When.Unix(), got.When.Unix())
	assert.Equal(t, e.Message, got.Message)
	assert.Equal(t, string(e.Format()), string(got.Format()))
}

func TestParseMultipleLines(t *testing.T) {
	a := &Entry{
		Old: plumbing.ZeroID("sha1"), New: plumbing.MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70"),
		Name: "A", Email: "a@x", When: time.Unix(1, 0).UTC(), Message: "commit (initial): one",
	}
	b := &Entry{
		Old: a.New, New: plumbing.MustFromHex("78981922613b2afb6025042ff6bd878ac1994e85"),
		Name: "A", Email: "a@x", When: time.Unix(2, 0).UTC(), Message: "commit: two",
	}

	entries, err := Parse(append(a.Format(), b.Format()...))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "commit (initial): one", entries[0].Message)
	assert.Equal(t, "commit: two", entries[1].Message)
}

func TestMessageSanitization(t *testing.T) {
	e := &Entry{
		Old: plumbing.ZeroID("sha1"), New: plumbing.MustFromHex("89dce6a446a69d6b9bdc7e236188de47bc7a2b70"),
		Name: "A", Email: "a@x", When: time.Unix(1, 0).UTC(),
		Message: "multi\nline\tmessage",
	}
	entries, err := Parse(e.Format())
	require.NoError(t, err)
	assert.Equal(t, "multi line message", entries[0].Message)
}

func TestParseCorrupt(t *testing.T) {
	_, err := Parse([]byte("not a reflog line\n"))
	assert.ErrorIs(t, err, plumbing.ErrCorrupt)
}
