// Package mmap maps local segment files read-write and shared, so that
// blobstore.LocalStore can serve area reads and writes without a syscall per
// call.
//
//	m, err := mmap.OpenRW("work.seg")
//	if err != nil { ... }
//	defer m.Close()
//	_, _ = m.WriteAt(p, off)
//	_ = m.Sync()
//
// On platforms without mmap(2) OpenRW fails with ErrUnsupported and callers
// fall back to file I/O.
package mmap
