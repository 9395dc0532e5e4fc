// Package objfile implements the loose-object codec: the wrapped form
// "<type> <len>\x00<body>" and its zlib-deflated representation.
package objfile

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/gitvault/gitvault/plumbing"
)

// Wrap builds the canonical wrapped form of an object body. The hash
// of the returned bytes is the object's ID.
func Wrap(t plumbing.ObjectType, body []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", plumbing.ErrInvalidType, t)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	buf.Write(t.Bytes())
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(len(body)))
	buf.WriteByte(0)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Unwrap splits a wrapped object into its type and body. It fails with
// a corrupt error when the "type SP len NUL" header is missing or the
// announced length disagrees with the body.
func Unwrap(wrapped []byte) (plumbing.ObjectType, []byte, error) {
	sp := bytes.IndexByte(wrapped, ' ')
	if sp < 0 {
		return plumbing.InvalidObject, nil, &plumbing.CorruptError{What: "object header: no space"}
	}

	nul := bytes.IndexByte(wrapped[sp+1:], 0)
	if nul < 0 {
		return plumbing.InvalidObject, nil, &plumbing.CorruptError{What: "object header: no NUL"}
	}
	nul += sp + 1

	t, err := plumbing.ParseObjectType(string(wrapped[:sp]))
	if err != nil {
		return plumbing.InvalidObject, nil, &plumbing.CorruptError{What: "object header", Err: err}
	}

	size, err := strconv.ParseInt(string(wrapped[sp+1:nul]), 10, 64)
	if err != nil {
		return plumbing.InvalidObject, nil, &plumbing.CorruptError{What: "object header length", Err: err}
	}

	body := wrapped[nul+1:]
	if int64(len(body)) != size {
		return plumbing.InvalidObject, nil, &plumbing.CorruptError{
			What: fmt.Sprintf("object body: header says %d bytes, got %d", size, len(body)),
		}
	}

	return t, body, nil
}

// Deflate compresses bytes with zlib, the on-disk representation of
// loose objects.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a zlib stream produced by Deflate or by any
// stock git.
func Inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &plumbing.CorruptError{What: "zlib stream", Err: err}
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &plumbing.CorruptError{What: "zlib stream", Err: err}
	}
	return out, nil
}
