package fs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// File is an open segment file.
type File interface {
	io.Writer
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem is the set of directory operations a LocalStore performs.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	Stat(name string) (os.FileInfo, error)
	Truncate(name string, size int64) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// OSFS reaches the host filesystem through package os.
type OSFS struct{}

func (OSFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		// A typed nil *os.File must not escape as a non-nil File.
		return nil, err
	}
	return f, nil
}

func (OSFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFS) ReadDir(name string) ([]os.DirEntry, error)   { return os.ReadDir(name) }
func (OSFS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (OSFS) Truncate(name string, size int64) error       { return os.Truncate(name, size) }
func (OSFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (OSFS) Remove(name string) error                     { return os.Remove(name) }

// Default is the host filesystem.
var Default FileSystem = OSFS{}

// ErrExist reports that CreateSized found a file already in place.
var ErrExist = fs.ErrExist

// TempSuffix marks files written by ReplaceFile that are not yet renamed
// into place. Listings skip them.
const TempSuffix = ".tmp"

// CreateSized creates path exclusively, with its parent directories, and
// extends it to size zero bytes.
func CreateSized(fsys FileSystem, path string, size int64) (File, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	if err := fsys.Truncate(path, size); err != nil {
		_ = f.Close()
		_ = fsys.Remove(path)
		return nil, err
	}
	return f, nil
}

// ReplaceFile writes data next to path and renames it over path once
// synced. Readers observe either the old or the new content.
func ReplaceFile(fsys FileSystem, path string, data []byte) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + TempSuffix
	f, err := fsys.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return fsys.Rename(tmp, path)
}

// RemoveIfExists deletes path and treats a missing file as success.
func RemoveIfExists(fsys FileSystem, path string) error {
	if err := fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
