package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ifs "github.com/hupe1980/steparena/internal/fs"
	"github.com/hupe1980/steparena/internal/mmap"
)

// LocalStore implements BlobStore on a local directory. Blob names may
// contain slashes; they map to subdirectories of the root.
type LocalStore struct {
	root string
	fs   ifs.FileSystem
	mmap bool
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem replaces the filesystem, typically with a FaultyFS in tests.
// A custom filesystem disables memory mapping.
func WithFileSystem(fsys ifs.FileSystem) LocalOption {
	return func(s *LocalStore) {
		s.fs = fsys
	}
}

// WithMmap serves opened blobs from shared read-write mappings where the
// platform supports them.
func WithMmap(enabled bool) LocalOption {
	return func(s *LocalStore) {
		s.mmap = enabled
	}
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{root: root, fs: ifs.Default}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *LocalStore) useMmap() bool {
	_, local := s.fs.(ifs.OSFS)
	return s.mmap && local && mmap.Supported
}

func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(name)

	if s.useMmap() {
		m, err := mmap.OpenRW(path)
		if err != nil {
			return nil, mapNotExist(err)
		}
		if err := m.Advise(mmap.PatternFor(streamed(name))); err != nil {
			_ = m.Close()
			return nil, err
		}
		return &mappedBlob{m: m}, nil
	}

	f, err := s.fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, mapNotExist(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileBlob{f: f, size: info.Size()}, nil
}

func (s *LocalStore) Create(ctx context.Context, name string, size int64) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, ErrOutOfRange
	}
	path := s.path(name)
	f, err := ifs.CreateSized(s.fs, path, size)
	if err != nil {
		if errors.Is(err, ifs.ErrExist) {
			return nil, ErrExists
		}
		return nil, err
	}
	if !s.useMmap() || size == 0 {
		return &fileBlob{f: f, size: size}, nil
	}

	if err := f.Close(); err != nil {
		return nil, err
	}
	m, err := mmap.OpenRW(path)
	if err != nil {
		return nil, err
	}
	return &mappedBlob{m: m}, nil
}

// Put writes to a temporary file and renames it over name.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ifs.ReplaceFile(s.fs, s.path(name), data)
}

func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ifs.RemoveIfExists(s.fs, s.path(name))
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	if err := s.walk(ctx, "", prefix, &names); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) walk(ctx context.Context, dir, prefix string, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if dir != "" {
			name = dir + "/" + name
		}
		if e.IsDir() {
			if strings.HasPrefix(name, prefix) || strings.HasPrefix(prefix, name+"/") {
				if err := s.walk(ctx, name, prefix, out); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasSuffix(name, ifs.TempSuffix) {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			*out = append(*out, name)
		}
	}
	return nil
}

// streamed reports whether a blob is read front to back, as input segments
// are.
func streamed(name string) bool {
	return name == "input" || strings.HasSuffix(name, "/input")
}

func mapNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

type fileBlob struct {
	f    ifs.File
	size int64
}

func (b *fileBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrOutOfRange
	}
	return b.f.ReadAt(p, off)
}

func (b *fileBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkWrite(b.size, p, off); err != nil {
		return 0, err
	}
	return b.f.WriteAt(p, off)
}

func (b *fileBlob) Size() int64 { return b.size }

func (b *fileBlob) Close() error {
	if err := b.f.Sync(); err != nil {
		_ = b.f.Close()
		return err
	}
	return b.f.Close()
}

type mappedBlob struct {
	m *mmap.Mapping
}

func (b *mappedBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.m.ReadAt(p, off)
}

func (b *mappedBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkWrite(int64(b.m.Size()), p, off); err != nil {
		return 0, err
	}
	return b.m.WriteAt(p, off)
}

func (b *mappedBlob) Size() int64 { return int64(b.m.Size()) }

func (b *mappedBlob) Close() error {
	if err := b.m.Sync(); err != nil {
		_ = b.m.Close()
		return err
	}
	return b.m.Close()
}
