package object

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
)

// Tag is an annotated tag object pointing at another object, usually a
// commit.
type Tag struct {
	Object  plumbing.ObjectID
	Type    plumbing.ObjectType
	Name    string
	Tagger  Signature
	Message string
}

// Encode serializes the tag into its canonical object body.
func (t *Tag) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object.String())
	fmt.Fprintf(&buf, "type %s\n", t.Type.String())
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	buf.WriteString("tagger ")
	t.Tagger.Encode(&buf)
	buf.WriteString("\n\n")
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// DecodeTag parses a tag object body.
func DecodeTag(data []byte) (*Tag, error) {
	t := &Tag{}

	headers, message, _ := bytes.Cut(data, []byte("\n\n"))
	t.Message = string(message)

	for _, line := range strings.Split(string(headers), "\n") {
		if line == "" {
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "object":
			id, ok := plumbing.FromHex(value)
			if !ok {
				return nil, &plumbing.CorruptError{What: "tag object header"}
			}
			t.Object = id
		case "type":
			typ, err := plumbing.ParseObjectType(value)
			if err != nil {
				return nil, &plumbing.CorruptError{What: "tag type header", Err: err}
			}
			t.Type = typ
		case "tag":
			t.Name = value
		case "tagger":
			sig, err := DecodeSignature([]byte(value))
			if err != nil {
				return nil, &plumbing.CorruptError{What: "tagger", Err: err}
			}
			t.Tagger = sig
		}
	}

	if t.Object.IsZero() {
		return nil, &plumbing.CorruptError{What: "tag object"}
	}
	return t, nil
}
