// Package reader provides a forward cursor over an immutable input segment.
//
// The cursor position is the only mutable state and is what a step
// checkpoints; resuming a Reader is constructing a new one over the same
// input and seeking to the saved position. Bytes are fetched through a
// read-ahead window of fixed size, one external read per window. The window
// is a cache only and is never checkpointed.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/steparena/blobstore"
)

// DefaultWindow is the read-ahead window size.
const DefaultWindow = 4096

// ParseError reports malformed input or a cursor move outside the input.
type ParseError struct {
	Pos    int64
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("reader: at %d: %s", e.Pos, e.Reason)
}

// Signed is a parsed signed integer as magnitude and sign.
type Signed struct {
	Abs uint64
	Neg bool
}

// Int64 converts s, reporting false on overflow.
func (s Signed) Int64() (int64, bool) {
	if s.Neg {
		if s.Abs > math.MaxInt64+1 {
			return 0, false
		}
		return -int64(s.Abs-1) - 1, true
	}
	if s.Abs > math.MaxInt64 {
		return 0, false
	}
	return int64(s.Abs), true
}

// Option configures a Reader.
type Option func(*Reader)

// WithWindow sets the read-ahead window size.
func WithWindow(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.winSize = n
		}
	}
}

// Reader is a resumable cursor over b. It is not safe for concurrent use.
type Reader struct {
	blob    blobstore.Blob
	pos     int64
	length  int64
	winSize int
	win     []byte
	winOff  int64
}

// New returns a Reader at position 0 over the whole of b.
func New(b blobstore.Blob, opts ...Option) *Reader {
	r := &Reader{blob: b, length: b.Size(), winSize: DefaultWindow}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pos returns the cursor position.
func (r *Reader) Pos() int64 { return r.pos }

// Len returns the input length.
func (r *Reader) Len() int64 { return r.length }

// Available reports whether bytes remain.
func (r *Reader) Available() bool { return r.pos < r.length }

// Done reports whether the cursor is at the end of the input.
func (r *Reader) Done() bool { return r.pos == r.length }

func (r *Reader) fail(pos int64, format string, args ...any) error {
	return &ParseError{Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

// Seek moves the cursor to pos.
func (r *Reader) Seek(pos int64) error {
	if pos < 0 || pos > r.length {
		return r.fail(pos, "seek outside input of %d bytes", r.length)
	}
	r.pos = pos
	return nil
}

// Skip advances the cursor by n.
func (r *Reader) Skip(n int64) error {
	if n < 0 || r.pos+n > r.length {
		return r.fail(r.pos, "skip %d past input of %d bytes", n, r.length)
	}
	r.pos += n
	return nil
}

// fill loads the window starting at off.
func (r *Reader) fill(ctx context.Context, off int64) error {
	n := min(int64(r.winSize), r.length-off)
	if cap(r.win) < int(n) {
		r.win = make([]byte, n)
	}
	r.win = r.win[:n]
	if _, err := r.blob.ReadAt(ctx, r.win, off); err != nil && !errors.Is(err, io.EOF) {
		r.win = r.win[:0]
		return err
	}
	r.winOff = off
	return nil
}

// window returns the buffered bytes starting at off, filling if needed.
// off must be < length.
func (r *Reader) window(ctx context.Context, off int64) ([]byte, error) {
	if off < r.winOff || off >= r.winOff+int64(len(r.win)) {
		if err := r.fill(ctx, off); err != nil {
			return nil, err
		}
	}
	return r.win[off-r.winOff:], nil
}

// Peek returns a copy of the n bytes at start without moving the cursor.
func (r *Reader) Peek(ctx context.Context, start, n int64) ([]byte, error) {
	if start < 0 || n < 0 || start+n > r.length {
		return nil, r.fail(start, "peek %d bytes past input of %d bytes", n, r.length)
	}
	out := make([]byte, 0, n)
	for off := start; off < start+n; {
		w, err := r.window(ctx, off)
		if err != nil {
			return nil, err
		}
		take := min(int64(len(w)), start+n-off)
		out = append(out, w[:take]...)
		off += take
	}
	return out, nil
}

// Next returns the n bytes at the cursor and advances past them.
func (r *Reader) Next(ctx context.Context, n int64) ([]byte, error) {
	b, err := r.Peek(ctx, r.pos, n)
	if err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

// IndexByte returns the absolute position of the next c at or after the
// cursor, or -1.
func (r *Reader) IndexByte(ctx context.Context, c byte) (int64, error) {
	for off := r.pos; off < r.length; {
		w, err := r.window(ctx, off)
		if err != nil {
			return -1, err
		}
		if i := bytes.IndexByte(w, c); i >= 0 {
			return off + int64(i), nil
		}
		off += int64(len(w))
	}
	return -1, nil
}

// NextLine returns the bytes up to the next '\n' and advances past the
// newline. Without a newline before the end it fails and the cursor stays.
func (r *Reader) NextLine(ctx context.Context) ([]byte, error) {
	nl, err := r.IndexByte(ctx, '\n')
	if err != nil {
		return nil, err
	}
	if nl < 0 {
		return nil, r.fail(r.pos, "no newline before end of input")
	}
	line, err := r.Peek(ctx, r.pos, nl-r.pos)
	if err != nil {
		return nil, err
	}
	r.pos = nl + 1
	return line, nil
}

// Byte returns the byte at the cursor without consuming it.
func (r *Reader) Byte(ctx context.Context) (byte, error) {
	if r.pos >= r.length {
		return 0, r.fail(r.pos, "unexpected end of input")
	}
	w, err := r.window(ctx, r.pos)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

// Expect consumes c or fails without moving.
func (r *Reader) Expect(ctx context.Context, c byte) error {
	got, err := r.Byte(ctx)
	if err != nil {
		return err
	}
	if got != c {
		return r.fail(r.pos, "expected %q, found %q", c, got)
	}
	r.pos++
	return nil
}

// NextUint parses the maximal run of ASCII digits at the cursor. It returns
// false without consuming when the first byte is not a digit or the input is
// exhausted. The byte after the run is not consumed.
func (r *Reader) NextUint(ctx context.Context) (uint64, bool, error) {
	var v uint64
	start := r.pos
	off := r.pos
	for off < r.length {
		w, err := r.window(ctx, off)
		if err != nil {
			return 0, false, err
		}
		i := 0
		for ; i < len(w); i++ {
			c := w[i]
			if c < '0' || c > '9' {
				break
			}
			d := uint64(c - '0')
			if v > (math.MaxUint64-d)/10 {
				return 0, false, r.fail(start, "integer overflows uint64")
			}
			v = v*10 + d
		}
		off += int64(i)
		if i < len(w) {
			break
		}
	}
	if off == start {
		return 0, false, nil
	}
	r.pos = off
	return v, true, nil
}

// NextInt is NextUint permitting one leading '-'. A '-' not followed by a
// digit returns false without consuming.
func (r *Reader) NextInt(ctx context.Context) (Signed, bool, error) {
	start := r.pos
	neg := false
	if r.Available() {
		c, err := r.Byte(ctx)
		if err != nil {
			return Signed{}, false, err
		}
		if c == '-' {
			neg = true
			r.pos++
		}
	}
	v, ok, err := r.NextUint(ctx)
	if err != nil || !ok {
		r.pos = start
		return Signed{}, false, err
	}
	return Signed{Abs: v, Neg: neg}, true, nil
}
