package blobstore

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	//
	// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
	ErrNotFound = os.ErrNotExist

	// ErrExists is returned by Create when the blob already exists.
	ErrExists = os.ErrExist

	// ErrOutOfRange is returned by WriteAt when the write would extend past
	// the blob's fixed size, and by ReadAt for negative offsets.
	ErrOutOfRange = errors.New("blobstore: access out of range")

	// ErrClosed is returned when using a closed blob.
	ErrClosed = errors.New("blobstore: blob is closed")
)

// BlobStore is a flat namespace of fixed-size, byte-addressable blobs.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens an existing blob for reading and writing.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a zero-filled blob of the given size. It fails with
	// ErrExists if the blob already exists.
	Create(ctx context.Context, name string, size int64) (Blob, error)
	// Put atomically replaces the whole blob, creating it if needed.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a handle to a fixed-size blob.
//
// ReadAt follows io.ReaderAt conventions: a short read at the end of the
// blob returns io.EOF. WriteAt never grows the blob.
type Blob interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)
	Size() int64
	Close() error
}

// ReadAll reads the whole blob name.
func ReadAll(ctx context.Context, s BlobStore, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	buf := make([]byte, b.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := b.ReadAt(ctx, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// SizeOf returns the size of blob name, or 0 and no error if it is missing.
func SizeOf(ctx context.Context, s BlobStore, name string) (int64, error) {
	b, err := s.Open(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() { _ = b.Close() }()
	return b.Size(), nil
}

func checkWrite(size int64, p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > size {
		return ErrOutOfRange
	}
	return nil
}
