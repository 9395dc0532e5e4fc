package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature is an author or committer identity with a timestamp.
type Signature struct {
	// Name represents a person name. It is an arbitrary string.
	Name string
	// Email is an email, but it cannot be assumed to be well-formed.
	Email string
	// When is the timestamp of the signature.
	When time.Time
}

// Encode serializes the signature as "Name <email> <unix> <±HHMM>".
func (s *Signature) Encode(w *bytes.Buffer) {
	fmt.Fprintf(w, "%s <%s> %d %s", clean(s.Name), clean(s.Email), s.When.Unix(), offset(s.When))
}

// String implements fmt.Stringer.
func (s *Signature) String() string {
	var buf bytes.Buffer
	s.Encode(&buf)
	return buf.String()
}

// DecodeSignature parses the serialized form back into a Signature.
func DecodeSignature(b []byte) (Signature, error) {
	var s Signature
	line := string(b)

	lt := strings.IndexByte(line, '<')
	gt := strings.IndexByte(line, '>')
	if lt < 0 || gt < lt {
		return s, fmt.Errorf("malformed signature %q", line)
	}

	s.Name = strings.TrimSpace(line[:lt])
	s.Email = line[lt+1 : gt]

	rest := strings.Fields(line[gt+1:])
	if len(rest) != 2 {
		return s, fmt.Errorf("malformed signature timestamp %q", line)
	}

	ts, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return s, fmt.Errorf("malformed signature timestamp: %w", err)
	}

	tz := rest[1]
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return s, fmt.Errorf("malformed signature timezone %q", tz)
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return s, fmt.Errorf("malformed signature timezone %q", tz)
	}
	secs := hh*3600 + mm*60
	if tz[0] == '-' {
		secs = -secs
	}

	s.When = time.Unix(ts, 0).In(time.FixedZone(tz, secs))
	return s, nil
}

func offset(t time.Time) string {
	_, secs := t.Zone()
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("%s%02d%02d", sign, secs/3600, secs%3600/60)
}

func clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '\n':
			return -1
		}
		return r
	}, s)
}
