package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/steparena/blobstore"
)

// ErrConflict is returned by Blob.WriteAt when the object changed since the
// blob last saw it, which means another process is writing the segment.
var ErrConflict = errors.New("s3: segment modified concurrently")

// Store keeps segments as objects under a key prefix.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
}

var _ blobstore.BlobStore = (*Store)(nil)

// NewStore returns a store for bucket with the default upload settings.
// Blob names are joined to prefix.
func NewStore(client Client, bucket, prefix string) *Store {
	cfg := DefaultUploadConfig()
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		upload:   cfg,
		uploader: newUploader(client, cfg),
	}
}

func (s *Store) objectKey(name string) string { return path.Join(s.prefix, name) }

func (s *Store) blobName(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.objectKey(name)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if errorCode(err, "NotFound", "NoSuchKey") {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &segment{
		store: s,
		key:   key,
		size:  aws.ToInt64(head.ContentLength),
		etag:  aws.ToString(head.ETag),
	}, nil
}

// Create uploads a zero-filled segment with If-None-Match, so only one
// creator of a name succeeds.
func (s *Store) Create(ctx context.Context, name string, size int64) (blobstore.Blob, error) {
	if size < 0 {
		return nil, blobstore.ErrOutOfRange
	}
	key := s.objectKey(name)
	data := make([]byte, size)
	out, err := putObject(ctx, s.client, s.bucket, key, data, condition{ifNoneMatch: true})
	if errorCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
		return nil, blobstore.ErrExists
	}
	if err != nil {
		return nil, err
	}
	return &segment{store: s, key: key, size: size, etag: aws.ToString(out.ETag), data: data}, nil
}

// Put replaces an object. Payloads above the part size use the multipart
// uploader.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.objectKey(name)
	if int64(len(data)) > s.upload.PartSize {
		return uploadObject(ctx, s.uploader, s.bucket, key, data)
	}
	_, err := putObject(ctx, s.client, s.bucket, key, data, condition{})
	return err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.objectKey(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil && !errorCode(err, "NotFound", "NoSuchKey") {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	want := s.objectKey(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(want, "/") {
		want += "/"
	}
	var names []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &want})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			names = append(names, s.blobName(aws.ToString(obj.Key)))
		}
	}
	slices.Sort(names)
	return names, nil
}

// errorCode reports whether err carries one of the S3 error codes. The
// modeled types.NotFound and types.NoSuchKey report their own codes.
func errorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && slices.Contains(codes, apiErr.ErrorCode())
}

// segment is an open object of fixed size. The first WriteAt loads the
// object; later calls patch that copy and upload it with If-Match on the
// last seen ETag.
type segment struct {
	store *Store
	key   string
	size  int64

	mu   sync.Mutex
	etag string
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
		if n, err = b.fetchRange(ctx, p[:end-off], off); err != nil {
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *segment) fetchRange(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := b.store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.store.bucket,
		Key:    &b.key,
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	n, err := io.ReadFull(resp.Body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (b *segment) load(ctx context.Context) error {
	in := &s3.GetObjectInput{Bucket: &b.store.bucket, Key: &b.key}
	if b.etag != "" {
		in.IfMatch = aws.String(b.etag)
	}
	resp, err := b.store.client.GetObject(ctx, in)
	if errorCode(err, "PreconditionFailed") {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if int64(len(data)) != b.size {
		return fmt.Errorf("s3: segment %s is %d bytes, opened as %d", b.key, len(data), b.size)
	}
	b.data = data
	return nil
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
		if err := b.load(ctx); err != nil {
			return 0, err
		}
	}
	next := slices.Clone(b.data)
	copy(next[off:], p)
	out, err := putObject(ctx, b.store.client, b.store.bucket, b.key, next, condition{ifMatch: b.etag})
	if errorCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	b.data, b.etag = next, aws.ToString(out.ETag)
	return len(p), nil
}
