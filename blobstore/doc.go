// Package blobstore provides the external byte store behind persistent
// segments.
//
// A BlobStore is a flat namespace of fixed-size blobs addressed by byte
// offset. Every ReadAt and WriteAt is one call to the external store; the
// arena layer exists to keep the number of those calls small.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests and single-process runs
//   - LocalStore: local directory, optionally memory mapped
//   - s3.Store: Amazon S3 (ranged GETs, read-modify-write PUTs)
//   - minio.Store: MinIO and other S3-compatible services
//
// # Wrappers
//
//   - CachingStore: block cache for read-mostly blobs such as step input
//   - ThrottledStore: IO rate limiting through resource.Controller
//   - FaultyStore: failure injection for tests
//   - Metered: per-call cost accounting against a step budget
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name, size) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
