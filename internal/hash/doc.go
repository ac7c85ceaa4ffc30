// Package hash holds the CRC32-Castagnoli helpers steparena relies on.
//
// Journal records and exported archives carry a CRC32C so torn or altered
// bytes are rejected on read. [Sizes] folds an arena layout into the
// fingerprint persisted after the first step, which later steps compare to
// detect a program whose allocations changed.
package hash
