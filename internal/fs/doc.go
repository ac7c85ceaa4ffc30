// Package fs provides the filesystem abstraction behind blobstore.LocalStore.
//
//   - [OSFS]: production implementation over the os package
//   - [FaultyFS]: fault injection for tests (failed writes, reads, syncs)
//
// Tests inject [FaultyFS] to make a segment file fail mid-commit:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("/work", fs.Fault{FailAfterBytes: 0})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// Operations take no context.Context; cancellation is handled one layer up
// in blobstore.
package fs
