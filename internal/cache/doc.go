// Package cache provides the LRU block cache used by blobstore.CachingStore
// to serve repeated reads of the immutable input segment without paying the
// external store's per-call cost.
package cache
