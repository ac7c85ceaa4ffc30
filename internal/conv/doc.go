// Package conv provides checked integer conversions.
//
// Offsets, sizes and the reader cursor are persisted as uint64 scalars but
// used as int64/int in memory. Values read back from a checkpoint store are
// untrusted, so narrowing them goes through the checked helpers here.
package conv
