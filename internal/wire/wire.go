// Package wire demarcates message boundaries on a socket byte stream.
//
// The socket transport carries self-describing JSON objects with no length
// prefix, so the consumer finds boundaries itself by counting opening and
// closing braces across the chunks it reads. A payload is complete when the
// running counts balance. String escapes are not a concern because the
// encoder never emits braces inside field values.
package wire

import (
	"bytes"
	"io"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
)

// Reader extracts brace-balanced payloads from an io.Reader.
// A Reader keeps bytes read past the end of one payload and uses them as the
// prefix of the next, so chunk boundaries never split or merge messages.
//
// Reader is not safe for concurrent use; each consumer loop owns one.
type Reader struct {
	r       io.Reader
	pending []byte
	chunk   []byte
	maxSize int
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       r,
		chunk:   make([]byte, config.DefaultReadChunkSize),
		maxSize: config.DefaultMaxMessageSize,
	}
}

// ReadMessage reads from the stream until one balanced payload is available
// and returns it. A zero-byte read means the connection is broken and is
// reported as ErrEndOfStream rather than looping forever.
func (r *Reader) ReadMessage() ([]byte, error) {
	for {
		if payload, rest, ok := splitBalanced(r.pending); ok {
			r.pending = rest
			return payload, nil
		}
		if len(r.pending) > r.maxSize {
			return nil, errors.Wrap(errors.ErrDecodeFailure, "unterminated payload")
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.chunk[:n]...)
			continue
		}
		if err == nil || err == io.EOF {
			return nil, errors.ErrEndOfStream
		}
		return nil, err
	}
}

// splitBalanced scans buf for the first balanced {...} span. It returns the
// span, the remaining bytes after it, and whether a span was found. Bytes
// before the first '{' are noise and are discarded.
func splitBalanced(buf []byte) (payload, rest []byte, ok bool) {
	start := bytes.IndexByte(buf, '{')
	if start < 0 {
		return nil, buf, false
	}

	depth := 0
	for i := start; i < len(buf); i++ {
		switch buf[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buf[start : i+1], buf[i+1:], true
			}
		}
	}
	return nil, buf, false
}

// ChopBalanced returns exactly the substring of s from the first '{' to the
// matching '}' that brings the nesting depth back to zero, discarding
// everything before and after. It is used when a receive buffer may contain
// trailing noise after a legitimately balanced payload.
//
// ChopBalanced is idempotent: applying it to its own output is a no-op.
// If s contains no balanced span, ErrUnbalanced is returned.
func ChopBalanced(s []byte) ([]byte, error) {
	payload, _, ok := splitBalanced(s)
	if !ok {
		return nil, errors.ErrUnbalanced
	}
	return payload, nil
}
