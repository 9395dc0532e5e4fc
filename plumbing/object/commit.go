package object

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
)

const (
	headerTree      = "tree"
	headerParent    = "parent"
	headerAuthor    = "author"
	headerCommitter = "committer"
	headerGPGSig    = "gpgsig"
)

// Commit points to a single tree, marking it as what the project
// looked like at a certain point in time. The first parent is "ours"
// for merges.
type Commit struct {
	// Tree is the root tree of the commit.
	Tree plumbing.ObjectID
	// Parents are the IDs of the parent commits, ordered.
	Parents []plumbing.ObjectID
	// Author is the original author of the commit.
	Author Signature
	// Committer is the one performing the commit.
	Committer Signature
	// GPGSig is the armored signature of the commit, if signed.
	GPGSig string
	// Message is the commit message, with arbitrary length and
	// a trailing newline by convention.
	Message string
}

// Subject returns the first line of the message.
func (c *Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return subject
}

// Encode serializes the commit into its canonical object body.
func (c *Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\n", headerTree, c.Tree.String())
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "%s %s\n", headerParent, p.String())
	}

	buf.WriteString(headerAuthor + " ")
	c.Author.Encode(&buf)
	buf.WriteString("\n" + headerCommitter + " ")
	c.Committer.Encode(&buf)
	buf.WriteByte('\n')

	if c.GPGSig != "" {
		buf.WriteString(headerGPGSig + " ")
		// Continuation lines of a multi-line header are prefixed with
		// a space.
		sig := strings.TrimSuffix(c.GPGSig, "\n")
		buf.WriteString(strings.ReplaceAll(sig, "\n", "\n "))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// EncodeWithoutSignature serializes the commit omitting the gpgsig
// header; this is the payload a signer signs.
func (c *Commit) EncodeWithoutSignature() []byte {
	sig := c.GPGSig
	c.GPGSig = ""
	out := c.Encode()
	c.GPGSig = sig
	return out
}

// DecodeCommit parses a commit object body.
func DecodeCommit(data []byte) (*Commit, error) {
	c := &Commit{}

	headers, message, found := bytes.Cut(data, []byte("\n\n"))
	if !found {
		// A commit with an empty message may end right after the
		// headers.
		headers = bytes.TrimSuffix(data, []byte("\n"))
	}
	c.Message = string(message)

	lines := strings.Split(string(headers), "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		switch key {
		case headerTree:
			id, ok := plumbing.FromHex(value)
			if !ok {
				return nil, &plumbing.CorruptError{What: "commit tree header"}
			}
			c.Tree = id
		case headerParent:
			id, ok := plumbing.FromHex(value)
			if !ok {
				return nil, &plumbing.CorruptError{What: "commit parent header"}
			}
			c.Parents = append(c.Parents, id)
		case headerAuthor:
			sig, err := DecodeSignature([]byte(value))
			if err != nil {
				return nil, &plumbing.CorruptError{What: "commit author", Err: err}
			}
			c.Author = sig
		case headerCommitter:
			sig, err := DecodeSignature([]byte(value))
			if err != nil {
				return nil, &plumbing.CorruptError{What: "commit committer", Err: err}
			}
			c.Committer = sig
		case headerGPGSig:
			sig := []string{value}
			for i+1 < len(lines) && strings.HasPrefix(lines[i+1], " ") {
				i++
				sig = append(sig, lines[i][1:])
			}
			c.GPGSig = strings.Join(sig, "\n") + "\n"
		}
	}

	if c.Tree.IsZero() && len(c.Parents) == 0 && c.Author.Name == "" {
		return nil, &plumbing.CorruptError{What: "commit object"}
	}
	return c, nil
}
