package reader

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T, input string, opts ...Option) (*Reader, *blobstore.Counter) {
	t.Helper()
	s := blobstore.NewMemoryStore()
	require.NoError(t, s.Put(context.Background(), "input", []byte(input)))
	b, err := s.Open(context.Background(), "input")
	require.NoError(t, err)
	c := &blobstore.Counter{}
	return New(blobstore.Metered(b, c), opts...), c
}

func TestReader_Pairs(t *testing.T) {
	ctx := context.Background()
	r, _ := newReader(t, "12,7\n3,400\n")

	var pairs [][2]uint64
	for r.Available() {
		a, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, r.Expect(ctx, ','))
		b, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		rest, err := r.NextLine(ctx)
		require.NoError(t, err)
		require.Empty(t, rest)
		pairs = append(pairs, [2]uint64{a, b})
	}

	assert.Equal(t, [][2]uint64{{12, 7}, {3, 400}}, pairs)
	assert.True(t, r.Done())
}

func TestReader_LinesReconstructInput(t *testing.T) {
	ctx := context.Background()
	input := "alpha\n\nbeta gamma\n" + string(bytes.Repeat([]byte("x"), 50)) + "\nz\n"
	r, c := newReader(t, input, WithWindow(8))

	var lines [][]byte
	for !r.Done() {
		line, err := r.NextLine(ctx)
		require.NoError(t, err)
		lines = append(lines, line)
	}
	assert.Equal(t, input, string(bytes.Join(lines, []byte("\n")))+"\n")
	assert.Greater(t, c.Reads, 1, "a line longer than the window spans several reads")
}

func TestReader_WindowBatchesReads(t *testing.T) {
	ctx := context.Background()
	r, c := newReader(t, "1\n2\n3\n4\n5\n")

	var sum uint64
	for r.Available() {
		v, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		sum += v
		require.NoError(t, r.Skip(1))
	}
	assert.Equal(t, uint64(15), sum)
	assert.Equal(t, 1, c.Reads)
}

func TestReader_NextLineWithoutNewline(t *testing.T) {
	ctx := context.Background()
	r, _ := newReader(t, "ok\ntail")

	_, err := r.NextLine(ctx)
	require.NoError(t, err)

	_, err = r.NextLine(ctx)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(3), r.Pos(), "position is unchanged on failure")
}

func TestReader_NextUint(t *testing.T) {
	ctx := context.Background()

	t.Run("NonDigit", func(t *testing.T) {
		r, _ := newReader(t, "x12")
		_, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(0), r.Pos())
	})

	t.Run("AtEnd", func(t *testing.T) {
		r, _ := newReader(t, "7")
		v, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(7), v)
		assert.True(t, r.Done())

		_, ok, err = r.NextUint(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SeekAndReparse", func(t *testing.T) {
		r, _ := newReader(t, "  90210-")
		require.NoError(t, r.Skip(2))
		prev := r.Pos()
		v1, _, err := r.NextUint(ctx)
		require.NoError(t, err)
		b, err := r.Byte(ctx)
		require.NoError(t, err)
		assert.Equal(t, byte('-'), b, "terminator is not consumed")

		require.NoError(t, r.Seek(prev))
		v2, _, err := r.NextUint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(90210), v1)
		assert.Equal(t, v1, v2)
	})

	t.Run("Max", func(t *testing.T) {
		r, _ := newReader(t, "18446744073709551615\n")
		v, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(math.MaxUint64), v)
	})

	t.Run("Overflow", func(t *testing.T) {
		r, _ := newReader(t, "18446744073709551616\n")
		_, _, err := r.NextUint(ctx)
		var pe *ParseError
		assert.ErrorAs(t, err, &pe)
		assert.Equal(t, int64(0), r.Pos())
	})

	t.Run("AcrossWindows", func(t *testing.T) {
		r, _ := newReader(t, "123456789,", WithWindow(4))
		v, ok, err := r.NextUint(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(123456789), v)
		assert.Equal(t, int64(9), r.Pos())
	})
}

func TestReader_NextInt(t *testing.T) {
	ctx := context.Background()
	r, _ := newReader(t, "-15,8,-,x")

	v, ok, err := r.NextInt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Signed{Abs: 15, Neg: true}, v)
	n, ok := v.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(-15), n)

	require.NoError(t, r.Expect(ctx, ','))
	v, ok, err = r.NextInt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Signed{Abs: 8}, v)

	require.NoError(t, r.Expect(ctx, ','))
	pos := r.Pos()
	_, ok, err = r.NextInt(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lone minus")
	assert.Equal(t, pos, r.Pos())
}

// flakyBlob fails its first failures reads.
type flakyBlob struct {
	blobstore.Blob
	failures int
}

func (b *flakyBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if b.failures > 0 {
		b.failures--
		return 0, blobstore.ErrInjected
	}
	return b.Blob.ReadAt(ctx, p, off)
}

func TestReader_NextIntReportsReadFailure(t *testing.T) {
	ctx := context.Background()
	s := blobstore.NewMemoryStore()
	require.NoError(t, s.Put(ctx, "input", []byte("-42")))
	b, err := s.Open(ctx, "input")
	require.NoError(t, err)

	r := New(&flakyBlob{Blob: b, failures: 1})
	_, ok, err := r.NextInt(ctx)
	require.ErrorIs(t, err, blobstore.ErrInjected)
	assert.False(t, ok)
	assert.Equal(t, int64(0), r.Pos())

	v, ok, err := r.NextInt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Signed{Abs: 42, Neg: true}, v)
}

func TestReader_NextIntAtEnd(t *testing.T) {
	r, _ := newReader(t, "")
	_, ok, err := r.NextInt(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigned_Int64(t *testing.T) {
	n, ok := Signed{Abs: 1 << 63, Neg: true}.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), n)

	_, ok = Signed{Abs: 1 << 63}.Int64()
	assert.False(t, ok)

	n, ok = Signed{Abs: 0, Neg: true}.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)
}

func TestReader_PeekNextSeek(t *testing.T) {
	ctx := context.Background()
	r, _ := newReader(t, "abcdefgh")

	b, err := r.Peek(ctx, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, "fgh", string(b))
	assert.Equal(t, int64(0), r.Pos())

	b, err = r.Next(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))
	assert.Equal(t, int64(3), r.Pos())

	var pe *ParseError
	_, err = r.Next(ctx, 6)
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(3), r.Pos())

	assert.ErrorAs(t, r.Seek(9), &pe)
	assert.ErrorAs(t, r.Skip(-1), &pe)
	assert.ErrorAs(t, r.Expect(ctx, 'x'), &pe)

	require.NoError(t, r.Seek(8))
	assert.True(t, r.Done())
	_, err = r.Byte(ctx)
	assert.ErrorAs(t, err, &pe)

	idx, err := r.IndexByte(ctx, 'a')
	require.NoError(t, err)
	assert.Equal(t, int64(-1), idx)
}

func TestReader_ResumeAtPosition(t *testing.T) {
	ctx := context.Background()
	input := "10\n20\n30\n"

	r1, _ := newReader(t, input)
	v, _, err := r1.NextUint(ctx)
	require.NoError(t, err)
	require.NoError(t, r1.Skip(1))
	saved := r1.Pos()

	r2, _ := newReader(t, input)
	require.NoError(t, r2.Seek(saved))
	v2, _, err := r2.NextUint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
	assert.Equal(t, uint64(20), v2)
}
