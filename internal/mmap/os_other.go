//go:build !unix

package mmap

import "os"

// Supported reports whether shared mappings are available.
const Supported = false

func osMapShared(*os.File, int) ([]byte, mapOps, error) {
	return nil, mapOps{}, ErrUnsupported
}
