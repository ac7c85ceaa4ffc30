package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/internal/compress"
	"github.com/hupe1980/steparena/internal/hash"
)

// RecordType identifies a journal record.
type RecordType uint8

const (
	// RecordRange holds the pre-image of a byte range of the work segment.
	RecordRange RecordType = 1
	// RecordScalar holds the prior value of a scalar, or its absence.
	RecordScalar RecordType = 2
)

var (
	ErrInvalidCRC  = errors.New("journal: invalid record checksum")
	ErrInvalidType = errors.New("journal: invalid record type")
	ErrShortRecord = errors.New("journal: short record")
	ErrSequence    = errors.New("journal: record out of sequence")
)

// headerSize is CRC(4) + Type(1) + Seq(8) + Len(4).
const headerSize = 17

// record is one undo entry.
//
// Layout: [CRC32C 4][Type 1][Seq 8][Len 4][Payload Len]. The CRC covers
// everything after itself.
//
// Range payload: [Off 8][compress block]
// Scalar payload: [KeyLen 2][Key][Kind 1][value], where Kind 0 marks an
// absent key, 1 a uint ([8]) and 2 bytes ([Len 2][Bytes]).
type record struct {
	typ RecordType
	seq uint64

	off  int64
	data []byte

	key     string
	present bool
	value   checkpoint.Value
}

const (
	scalarAbsent = 0
	scalarUint   = 1
	scalarBytes  = 2
)

func (r *record) payload(ct compress.Type) ([]byte, error) {
	switch r.typ {
	case RecordRange:
		block, err := compress.Encode(r.data, ct)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 8+len(block))
		binary.LittleEndian.PutUint64(out, uint64(r.off))
		copy(out[8:], block)
		return out, nil
	case RecordScalar:
		if len(r.key) > math.MaxUint16 {
			return nil, fmt.Errorf("journal: key %q too long", r.key)
		}
		out := binary.LittleEndian.AppendUint16(nil, uint16(len(r.key)))
		out = append(out, r.key...)
		switch {
		case !r.present:
			out = append(out, scalarAbsent)
		case r.value.Kind == checkpoint.KindBytes:
			out = append(out, scalarBytes)
			out = binary.LittleEndian.AppendUint16(out, uint16(len(r.value.Bytes)))
			out = append(out, r.value.Bytes...)
		default:
			out = append(out, scalarUint)
			out = binary.LittleEndian.AppendUint64(out, r.value.Num)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, r.typ)
	}
}

// appendRecord encodes r onto dst.
func appendRecord(dst []byte, r *record, ct compress.Type) ([]byte, error) {
	payload, err := r.payload(ct)
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, compress.ErrBlockTooBig
	}
	var h [headerSize]byte
	h[4] = byte(r.typ)
	binary.LittleEndian.PutUint64(h[5:], r.seq)
	binary.LittleEndian.PutUint32(h[13:], uint32(len(payload)))

	crc := hash.NewCRC32C()
	_, _ = crc.Write(h[4:])
	_, _ = crc.Write(payload)
	binary.LittleEndian.PutUint32(h[:4], crc.Sum32())

	dst = append(dst, h[:]...)
	return append(dst, payload...), nil
}

// decodeRecords parses a whole journal.
func decodeRecords(buf []byte) ([]record, error) {
	var out []record
	for seq := uint64(0); len(buf) > 0; seq++ {
		if len(buf) < headerSize {
			return nil, ErrShortRecord
		}
		sum := binary.LittleEndian.Uint32(buf)
		typ := RecordType(buf[4])
		rs := binary.LittleEndian.Uint64(buf[5:])
		n := int64(binary.LittleEndian.Uint32(buf[13:]))
		if int64(len(buf)-headerSize) < n {
			return nil, ErrShortRecord
		}
		if hash.CRC32C(buf[4:headerSize+n]) != sum {
			return nil, ErrInvalidCRC
		}
		if rs != seq {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrSequence, rs, seq)
		}
		r, err := decodePayload(typ, buf[headerSize:headerSize+n])
		if err != nil {
			return nil, err
		}
		r.seq = rs
		out = append(out, r)
		buf = buf[headerSize+n:]
	}
	return out, nil
}

func decodePayload(typ RecordType, p []byte) (record, error) {
	r := record{typ: typ}
	switch typ {
	case RecordRange:
		if len(p) < 8 {
			return r, ErrShortRecord
		}
		r.off = int64(binary.LittleEndian.Uint64(p))
		data, _, err := compress.Decode(p[8:])
		if err != nil {
			return r, err
		}
		r.data = data
	case RecordScalar:
		if len(p) < 3 {
			return r, ErrShortRecord
		}
		kl := int(binary.LittleEndian.Uint16(p))
		if len(p) < 2+kl+1 {
			return r, ErrShortRecord
		}
		r.key = string(p[2 : 2+kl])
		rest := p[2+kl+1:]
		switch p[2+kl] {
		case scalarAbsent:
		case scalarUint:
			if len(rest) < 8 {
				return r, ErrShortRecord
			}
			r.present, r.value = true, checkpoint.Uint(binary.LittleEndian.Uint64(rest))
		case scalarBytes:
			if len(rest) < 2 || len(rest) < 2+int(binary.LittleEndian.Uint16(rest)) {
				return r, ErrShortRecord
			}
			r.present, r.value = true, checkpoint.Bytes(rest[2:2+int(binary.LittleEndian.Uint16(rest))])
		default:
			return r, fmt.Errorf("%w: scalar kind %d", ErrInvalidType, p[2+kl])
		}
	default:
		return r, fmt.Errorf("%w: %d", ErrInvalidType, typ)
	}
	return r, nil
}
