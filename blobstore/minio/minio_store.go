package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/minio/minio-go/v7"
)

// Store keeps segments as objects under prefix in one bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ blobstore.BlobStore = (*Store)(nil)

// NewStore returns a store for bucket. Blob names are joined to prefix.
func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) objectName(name string) string { return path.Join(s.prefix, name) }

func (s *Store) blobName(object string) string {
	return strings.TrimPrefix(strings.TrimPrefix(object, s.prefix), "/")
}

func missing(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func (s *Store) upload(ctx context.Context, object string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{SendContentMd5: true})
	return err
}

func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	object := s.objectName(name)
	info, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	if missing(err) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &segment{store: s, object: object, size: info.Size}, nil
}

// Create uploads a zero-filled segment. Stat and upload are separate
// requests, so two racing creators both succeed.
func (s *Store) Create(ctx context.Context, name string, size int64) (blobstore.Blob, error) {
	if size < 0 {
		return nil, blobstore.ErrOutOfRange
	}
	object := s.objectName(name)
	_, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return nil, blobstore.ErrExists
	case !missing(err):
		return nil, err
	}
	data := make([]byte, size)
	if err := s.upload(ctx, object, data); err != nil {
		return nil, err
	}
	return &segment{store: s, object: object, size: size, data: data}, nil
}

// Put replaces a whole object. Object PUTs are atomic.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return s.upload(ctx, s.objectName(name), data)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectName(name), minio.RemoveObjectOptions{})
	if err != nil && !missing(err) {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	want := s.objectName(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(want, "/") {
		want += "/"
	}
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: want, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if name := s.blobName(obj.Key); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// segment is an open object. The first WriteAt downloads the object; later
// reads and writes go through that copy and every write uploads it again.
type segment struct {
	store  *Store
	object string
	size   int64

	mu   sync.Mutex
	data []byte
}

func (b *segment) Size() int64 { return b.size }

func (b *segment) Close() error {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
	return nil
}

func (b *segment) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, blobstore.ErrOutOfRange
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= b.size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), b.size)

	b.mu.Lock()
	local := b.data
	b.mu.Unlock()
	var n int
	if local != nil {
		n = copy(p, local[off:end])
	} else {
		var err error
		if n, err = b.fetch(ctx, p[:end-off], off); err != nil {
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *segment) fetch(ctx context.Context, p []byte, off int64) (int, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+int64(len(p))-1); err != nil {
		return 0, err
	}
	obj, err := b.store.client.GetObject(ctx, b.store.bucket, b.object, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()
	n, err := io.ReadFull(obj, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (b *segment) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > b.size {
		return 0, blobstore.ErrOutOfRange
	}
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.data == nil {
		data := make([]byte, b.size)
		if _, err := b.fetch(ctx, data, 0); err != nil {
			return 0, fmt.Errorf("minio: load %s: %w", b.object, err)
		}
		b.data = data
	}
	next := slices.Clone(b.data)
	copy(next[off:], p)
	if err := b.store.upload(ctx, b.object, next); err != nil {
		return 0, err
	}
	b.data = next
	return len(p), nil
}
