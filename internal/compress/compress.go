// Package compress implements the self-describing block format shared by
// the step journal and state archives.
//
// Block layout:
//
//	[Type 1][UncompressedSize 4][StoredSize 4][Data StoredSize]
//
// A block whose compressed form does not beat the raw bytes by at least 10%
// is stored with Type None.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type selects the compression algorithm.
type Type uint8

const (
	// None stores blocks raw.
	None Type = 0
	// LZ4 favours speed.
	LZ4 Type = 1
	// ZSTD favours ratio.
	ZSTD Type = 2
)

// HeaderSize is the fixed size of a block header.
const HeaderSize = 9

var (
	ErrShortBlock   = errors.New("compress: block too small")
	ErrSizeMismatch = errors.New("compress: decompressed size mismatch")
	ErrUnknownType  = errors.New("compress: unknown compression type")
	ErrBlockTooBig  = errors.New("compress: block exceeds 4GiB")
)

// ParseType maps a configuration name to a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
}

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Encode returns data wrapped in a block header, compressed with t when
// that pays off.
func Encode(data []byte, t Type) ([]byte, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, ErrBlockTooBig
	}

	var packed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case ZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}

	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9 {
		t, packed = None, data
	}

	out := make([]byte, HeaderSize+len(packed))
	out[0] = byte(t)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(packed)))
	copy(out[HeaderSize:], packed)
	return out, nil
}

// Decode reverses Encode. It returns the number of bytes of block consumed
// so that blocks can be concatenated.
func Decode(block []byte) ([]byte, int, error) {
	if len(block) < HeaderSize {
		return nil, 0, ErrShortBlock
	}
	t := Type(block[0])
	rawSize := binary.LittleEndian.Uint32(block[1:])
	storedSize := binary.LittleEndian.Uint32(block[5:])
	end := HeaderSize + int64(storedSize)
	if int64(len(block)) < end {
		return nil, 0, ErrShortBlock
	}
	stored := block[HeaderSize:end]

	switch t {
	case None:
		if storedSize != rawSize {
			return nil, 0, ErrSizeMismatch
		}
		out := make([]byte, rawSize)
		copy(out, stored)
		return out, int(end), nil
	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, 0, err
		}
		if uint32(n) != rawSize {
			return nil, 0, ErrSizeMismatch
		}
		return out, int(end), nil
	case ZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, 0, err
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, 0, err
		}
		if uint32(len(out)) != rawSize {
			return nil, 0, ErrSizeMismatch
		}
		return out, int(end), nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}
