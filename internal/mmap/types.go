package mmap

import "errors"

// AccessPattern tells the kernel how a mapped segment will be touched.
// Input segments are streamed front to back; work segments are patched at
// scattered offsets.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	AccessSequential
	AccessRandom
)

// PatternFor picks the access pattern for a segment by its role.
func PatternFor(sequential bool) AccessPattern {
	if sequential {
		return AccessSequential
	}
	return AccessRandom
}

var (
	ErrClosed        = errors.New("mmap: segment mapping closed")
	ErrInvalidSize   = errors.New("mmap: segment size does not fit in memory")
	ErrOutOfBounds   = errors.New("mmap: access past end of segment")
	ErrInvalidOffset = errors.New("mmap: negative offset")
	ErrUnsupported   = errors.New("mmap: shared mappings unavailable on this platform")
)
