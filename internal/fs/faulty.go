package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by a Fault with no explicit Err.
var ErrInjected = errors.New("injected fault error")

// Fault defines failure behavior for files whose name matches a rule.
type Fault struct {
	// FailAfterBytes fails writes once this many bytes were written to the
	// file. -1 disables the limit.
	FailAfterBytes int64
	FailOnRead     bool
	FailOnSync     bool
	FailOnClose    bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that injects errors by file name.
type FaultyFS struct {
	FS      FileSystem
	mu      sync.Mutex
	rules   map[string]Fault
	Default Fault
	written int64
}

// NewFaultyFS creates a new FaultyFS wrapping fs (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:      fs,
		rules:   make(map[string]Fault),
		Default: Fault{FailAfterBytes: -1},
	}
}

// AddRule registers a fault for every file whose name contains pattern.
// Files already open keep the fault they were opened with.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

// Written returns the total bytes written through this FaultyFS.
func (f *FaultyFS) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	fault := f.Default
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault = rule
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, fault: f.faultFor(name)}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error  { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }
func (f *FaultyFS) Truncate(name string, size int64) error     { return f.FS.Truncate(name, size) }

type faultyFile struct {
	File
	fs      *FaultyFS
	fault   Fault
	written int64
}

func (ff *faultyFile) admit(n int) error {
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(n) > ff.fault.FailAfterBytes {
		return ff.fault.err()
	}
	ff.written += int64(n)
	ff.fs.mu.Lock()
	ff.fs.written += int64(n)
	ff.fs.mu.Unlock()
	return nil
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.admit(len(p)); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.admit(len(p)); err != nil {
		return 0, err
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fault.err()
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		_ = ff.File.Close()
		return ff.fault.err()
	}
	return ff.File.Close()
}
