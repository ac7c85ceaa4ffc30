package steparena

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/codec"
	"github.com/hupe1980/steparena/internal/compress"
	"github.com/hupe1980/steparena/internal/conv"
	"github.com/hupe1980/steparena/internal/hash"
)

// Archive layout:
//
//	[Magic 4][Version 1]
//	repeated: [Kind 1][NameLen 2][Name][BlockLen 4][compress block]
//	[KindEnd 1][CRC32C 4]
//
// The CRC covers every byte before it.
const (
	archiveMagic   = "SPAR"
	archiveVersion = 1

	sectionScalars byte = 1
	sectionInput   byte = 2
	sectionWork    byte = 3
	sectionEnd     byte = 0xff
)

var (
	// ErrBadArchive is returned by Import for a malformed or corrupt archive.
	ErrBadArchive = errors.New("steparena: bad archive")
)

type archiveValue struct {
	Kind  checkpoint.Kind `json:"k"`
	Num   uint64          `json:"n,omitempty"`
	Bytes []byte          `json:"b,omitempty"`
}

// Export writes the persisted state of the computation (scalars, input and
// work segment) to w. compression is "none", "lz4" or "zstd". It must not
// run concurrently with a step.
func (c *Computation) Export(ctx context.Context, w io.Writer, compression string) error {
	ct, err := compress.ParseType(compression)
	if err != nil {
		return err
	}
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	base, err := c.openWork(ctx)
	if err != nil {
		return err
	}
	if base != nil {
		defer func() { _ = base.Close() }()
	}
	if err := c.recover(ctx, base); err != nil {
		return err
	}
	values, err := c.scalars.LoadAll(ctx)
	if err != nil {
		return storeErr("load", "scalars", err)
	}
	doc := make(map[string]archiveValue, len(values))
	for k, v := range values {
		doc[k] = archiveValue{Kind: v.Kind, Num: v.Num, Bytes: v.Bytes}
	}
	scalars, err := codec.Default.Marshal(doc)
	if err != nil {
		return err
	}

	crc := hash.NewCRC32C()
	out := io.MultiWriter(w, crc)
	if _, err := out.Write(append([]byte(archiveMagic), archiveVersion)); err != nil {
		return err
	}
	if err := writeSection(out, sectionScalars, "scalars", scalars, ct); err != nil {
		return err
	}
	for _, s := range []struct {
		kind byte
		name string
	}{{sectionInput, c.InputSegment()}, {sectionWork, c.WorkSegment()}} {
		data, err := blobstore.ReadAll(ctx, c.store, s.name)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return storeErr("read", s.name, err)
		}
		if err := writeSection(out, s.kind, s.name, data, ct); err != nil {
			return err
		}
	}
	if _, err := out.Write([]byte{sectionEnd}); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, crc.Sum32())
}

func writeSection(w io.Writer, kind byte, name string, data []byte, ct compress.Type) error {
	block, err := compress.Encode(data, ct)
	if err != nil {
		return err
	}
	n, err := conv.Length("section name", len(name))
	if err != nil {
		return err
	}
	hdr := []byte{kind}
	hdr = binary.LittleEndian.AppendUint16(hdr, n)
	hdr = append(hdr, name...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(block)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err = w.Write(block)
	return err
}

// Import replaces the persisted state of the computation with an archive
// written by Export, possibly from another instance or backend.
func (c *Computation) Import(ctx context.Context, r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	sections, err := parseArchive(buf)
	if err != nil {
		return err
	}
	var doc map[string]archiveValue
	if err := codec.Default.Unmarshal(sections[sectionScalars], &doc); err != nil {
		return fmt.Errorf("%w: scalars: %w", ErrBadArchive, err)
	}
	values := make(map[string]checkpoint.Value, len(doc))
	for k, v := range doc {
		values[k] = checkpoint.Value{Kind: v.Kind, Num: v.Num, Bytes: v.Bytes}
	}

	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	if err := c.journal.Remove(ctx); err != nil {
		return storeErr("delete", c.JournalSegment(), err)
	}
	for _, s := range []struct {
		kind  byte
		store blobstore.BlobStore
		name  string
	}{{sectionInput, c.input, c.InputSegment()}, {sectionWork, c.store, c.WorkSegment()}} {
		data, ok := sections[s.kind]
		if !ok {
			err = s.store.Delete(ctx, s.name)
		} else {
			err = s.store.Put(ctx, s.name, data)
		}
		if err != nil {
			return storeErr("put", s.name, err)
		}
	}

	if err := c.scalars.Clear(ctx); err != nil {
		return storeErr("clear", "scalars", err)
	}
	if err := checkpoint.Apply(ctx, c.scalars, values, nil); err != nil {
		return storeErr("save", "scalars", err)
	}
	return nil
}

func parseArchive(buf []byte) (map[byte][]byte, error) {
	if len(buf) < len(archiveMagic)+1+1+4 || !bytes.Equal(buf[:4], []byte(archiveMagic)) {
		return nil, fmt.Errorf("%w: missing header", ErrBadArchive)
	}
	if buf[4] != archiveVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadArchive, buf[4])
	}
	body, sum := buf[:len(buf)-4], binary.LittleEndian.Uint32(buf[len(buf)-4:])
	if hash.CRC32C(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadArchive)
	}

	sections := make(map[byte][]byte)
	p := body[5:]
	for {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: truncated", ErrBadArchive)
		}
		kind := p[0]
		if kind == sectionEnd {
			break
		}
		if len(p) < 3 {
			return nil, fmt.Errorf("%w: truncated", ErrBadArchive)
		}
		nl := int(binary.LittleEndian.Uint16(p[1:]))
		if len(p) < 3+nl+4 {
			return nil, fmt.Errorf("%w: truncated", ErrBadArchive)
		}
		bl := int(binary.LittleEndian.Uint32(p[3+nl:]))
		p = p[3+nl+4:]
		if len(p) < bl {
			return nil, fmt.Errorf("%w: truncated", ErrBadArchive)
		}
		data, _, err := compress.Decode(p[:bl])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadArchive, err)
		}
		sections[kind] = data
		p = p[bl:]
	}
	if _, ok := sections[sectionScalars]; !ok {
		return nil, fmt.Errorf("%w: no scalars", ErrBadArchive)
	}
	return sections, nil
}
