package blobstore

import "context"

// Op identifies a store primitive for metering.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "write"
	}
	return "read"
}

// Meter is charged once per store call, before the call is issued. A
// non-nil error aborts the call.
type Meter interface {
	ChargeIO(op Op, bytes int) error
}

// MeterFunc adapts a function to Meter.
type MeterFunc func(op Op, bytes int) error

func (f MeterFunc) ChargeIO(op Op, bytes int) error { return f(op, bytes) }

// Metered wraps b so that every ReadAt and WriteAt is charged to m.
func Metered(b Blob, m Meter) Blob {
	return &meteredBlob{Blob: b, m: m}
}

type meteredBlob struct {
	Blob
	m Meter
}

func (b *meteredBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.m.ChargeIO(OpRead, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}

func (b *meteredBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.m.ChargeIO(OpWrite, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.WriteAt(ctx, p, off)
}

// Counter is a Meter that counts calls. It is not safe for concurrent use.
type Counter struct {
	Reads, Writes           int
	ReadBytes, WrittenBytes int
}

func (c *Counter) ChargeIO(op Op, bytes int) error {
	if op == OpWrite {
		c.Writes++
		c.WrittenBytes += bytes
	} else {
		c.Reads++
		c.ReadBytes += bytes
	}
	return nil
}
