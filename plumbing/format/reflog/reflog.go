// Package reflog implements the append-only per-ref log format stored
// under logs/: one line per update,
// "<old> <new> <who> <ts> <tz>\t<message>".
package reflog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gitvault/gitvault/plumbing"
)

// Entry is a single reflog line.
type Entry struct {
	// Old is the previous value of the ref; all-zeroes for the ref's
	// first entry.
	Old plumbing.ObjectID
	// New is the value the ref was updated to.
	New plumbing.ObjectID
	// Name and Email identify who performed the update.
	Name  string
	Email string
	// When is the update time; its zone offset is serialized as +HHMM.
	When time.Time
	// Message describes the update, e.g. "commit: first".
	Message string
}

// Format serializes the entry as one reflog line including the
// trailing newline.
func (e *Entry) Format() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s <%s> %d %s\t%s\n",
		e.Old.String(), e.New.String(),
		e.Name, e.Email,
		e.When.Unix(), formatOffset(e.When),
		sanitizeMessage(e.Message),
	)
	return buf.Bytes()
}

// Parse decodes a whole reflog file body into entries, oldest first.
func Parse(data []byte) ([]*Entry, error) {
	var out []*Entry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		e, err := parseLine(string(line))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func parseLine(line string) (*Entry, error) {
	head, msg, _ := strings.Cut(line, "\t")

	fields := strings.Fields(head)
	if len(fields) < 4 {
		return nil, &plumbing.CorruptError{What: "reflog line"}
	}

	old, ok := plumbing.FromHex(fields[0])
	if !ok {
		return nil, &plumbing.CorruptError{What: "reflog old oid"}
	}
	nw, ok := plumbing.FromHex(fields[1])
	if !ok {
		return nil, &plumbing.CorruptError{What: "reflog new oid"}
	}

	// The identity is "<name words> <email>"; timestamp and zone are
	// the last two fields.
	tz := fields[len(fields)-1]
	ts, err := strconv.ParseInt(fields[len(fields)-2], 10, 64)
	if err != nil {
		return nil, &plumbing.CorruptError{What: "reflog timestamp", Err: err}
	}

	who := strings.Join(fields[2:len(fields)-2], " ")
	name, email := splitIdentity(who)

	loc, err := parseOffset(tz)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Old:     old,
		New:     nw,
		Name:    name,
		Email:   email,
		When:    time.Unix(ts, 0).In(loc),
		Message: msg,
	}, nil
}

func splitIdentity(who string) (name, email string) {
	lt := strings.IndexByte(who, '<')
	gt := strings.LastIndexByte(who, '>')
	if lt < 0 || gt < lt {
		return strings.TrimSpace(who), ""
	}
	return strings.TrimSpace(who[:lt]), who[lt+1 : gt]
}

func formatOffset(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d%02d", sign, offset/3600, offset%3600/60)
}

func parseOffset(tz string) (*time.Location, error) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return nil, &plumbing.CorruptError{What: "reflog timezone"}
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return nil, &plumbing.CorruptError{What: "reflog timezone"}
	}
	offset := hh*3600 + mm*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset), nil
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.ReplaceAll(msg, "\t", " ")
}
