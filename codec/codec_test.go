package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	assert.ElementsMatch(t, []string{"json", "go-json"}, Names())
	for _, name := range Names() {
		c, ok := Lookup(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := Lookup("msgpack")
	assert.False(t, ok)
}

func TestDocumentsAreInterchangeable(t *testing.T) {
	doc := map[string]uint64{"_reader": 42, "_out:total": math.MaxUint64}

	b, err := GoJSON{}.Marshal(doc)
	require.NoError(t, err)
	var got map[string]uint64
	require.NoError(t, JSON{}.Unmarshal(b, &got))
	assert.Equal(t, doc, got)

	b, err = JSON{}.Marshal(doc)
	require.NoError(t, err)
	got = nil
	require.NoError(t, Default.Unmarshal(b, &got))
	assert.Equal(t, doc, got)
}

func TestElements(t *testing.T) {
	b := make([]byte, 8)

	Uint64{}.Put(b, 0x0102030405060708)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b)
	assert.Equal(t, uint64(0x0102030405060708), Uint64{}.Get(b))

	Uint32{}.Put(b, 7)
	assert.Equal(t, uint32(7), Uint32{}.Get(b))
	Uint16{}.Put(b, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), Uint16{}.Get(b))
	Uint8{}.Put(b, 9)
	assert.Equal(t, uint8(9), Uint8{}.Get(b))

	Int64{}.Put(b, -5)
	assert.Equal(t, int64(-5), Int64{}.Get(b))

	Bool{}.Put(b, true)
	assert.True(t, Bool{}.Get(b))
	Bool{}.Put(b, false)
	assert.False(t, Bool{}.Get(b))

	bs := Bytes{N: 4}
	assert.Equal(t, 4, bs.Width())
	buf := []byte{9, 9, 9, 9, 9}
	bs.Put(buf, []byte("ab"))
	assert.Equal(t, []byte{'a', 'b', 0, 0, 9}, buf)
	bs.Put(buf, []byte("abcdef"))
	assert.Equal(t, []byte("abcd"), bs.Get(buf))
	assert.Equal(t, 2, bs.Len([]byte("ab")))
}

func roundTrip[T any](t *testing.T, c Element[T], v T) {
	t.Helper()
	b := make([]byte, c.Width()+2)
	b[c.Width()] = 0xAA
	c.Put(b, v)
	assert.Equal(t, v, c.Get(b))
	assert.Equal(t, byte(0xAA), b[c.Width()], "Put wrote past its width")
}

func TestElementsRoundTripExtremes(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"uint8", func(t *testing.T) {
			roundTrip[uint8](t, Uint8{}, 0)
			roundTrip[uint8](t, Uint8{}, math.MaxUint8)
		}},
		{"uint16", func(t *testing.T) {
			roundTrip[uint16](t, Uint16{}, 0)
			roundTrip[uint16](t, Uint16{}, math.MaxUint16)
		}},
		{"uint32", func(t *testing.T) {
			roundTrip[uint32](t, Uint32{}, 0)
			roundTrip[uint32](t, Uint32{}, math.MaxUint32)
		}},
		{"uint64", func(t *testing.T) {
			roundTrip[uint64](t, Uint64{}, 0)
			roundTrip[uint64](t, Uint64{}, math.MaxUint64)
		}},
		{"int64", func(t *testing.T) {
			roundTrip[int64](t, Int64{}, 0)
			roundTrip[int64](t, Int64{}, math.MinInt64)
			roundTrip[int64](t, Int64{}, math.MaxInt64)
		}},
		{"bool", func(t *testing.T) {
			roundTrip[bool](t, Bool{}, false)
			roundTrip[bool](t, Bool{}, true)
		}},
		{"bytes", func(t *testing.T) {
			roundTrip[[]byte](t, Bytes{N: 3}, []byte{0, 0, 0})
			roundTrip[[]byte](t, Bytes{N: 3}, []byte{0xFF, 0xFF, 0xFF})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}
