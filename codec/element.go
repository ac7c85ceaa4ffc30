package codec

import "encoding/binary"

// Element encodes a fixed-width value. Put and Get assume len(b) >= Width().
type Element[T any] interface {
	Width() int
	Put(b []byte, v T)
	Get(b []byte) T
}

// Sized is implemented by elements whose values carry a length. Put
// round-trips only values with Len(v) == Width().
type Sized[T any] interface {
	Len(v T) int
}

// Uint64 is a big-endian 8-byte element.
type Uint64 struct{}

func (Uint64) Width() int             { return 8 }
func (Uint64) Put(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func (Uint64) Get(b []byte) uint64    { return binary.BigEndian.Uint64(b) }

// Uint32 is a big-endian 4-byte element.
type Uint32 struct{}

func (Uint32) Width() int             { return 4 }
func (Uint32) Put(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func (Uint32) Get(b []byte) uint32    { return binary.BigEndian.Uint32(b) }

// Uint16 is a big-endian 2-byte element.
type Uint16 struct{}

func (Uint16) Width() int             { return 2 }
func (Uint16) Put(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func (Uint16) Get(b []byte) uint16    { return binary.BigEndian.Uint16(b) }

// Uint8 is a single byte.
type Uint8 struct{}

func (Uint8) Width() int            { return 1 }
func (Uint8) Put(b []byte, v uint8) { b[0] = v }
func (Uint8) Get(b []byte) uint8    { return b[0] }

// Int64 stores a two's complement int64 big-endian.
type Int64 struct{}

func (Int64) Width() int            { return 8 }
func (Int64) Put(b []byte, v int64) { binary.BigEndian.PutUint64(b, uint64(v)) }
func (Int64) Get(b []byte) int64    { return int64(binary.BigEndian.Uint64(b)) }

// Bool is a single byte, 0 or 1.
type Bool struct{}

func (Bool) Width() int { return 1 }

func (Bool) Put(b []byte, v bool) {
	if v {
		b[0] = 1
	} else {
		b[0] = 0
	}
}

func (Bool) Get(b []byte) bool { return b[0] != 0 }

// Bytes is a fixed-length byte string of exactly N bytes. Put truncates or
// zero-pads other lengths; typed arena views reject them instead.
type Bytes struct {
	N int
}

func (c Bytes) Width() int { return c.N }

func (Bytes) Len(v []byte) int { return len(v) }

func (c Bytes) Put(b []byte, v []byte) {
	n := copy(b[:c.N], v)
	clear(b[n:c.N])
}

func (c Bytes) Get(b []byte) []byte {
	out := make([]byte, c.N)
	copy(out, b)
	return out
}
