//go:build unix

package mmap

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Supported reports whether shared mappings are available.
const Supported = true

func osMapShared(f *os.File, size int) ([]byte, mapOps, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, mapOps{}, err
	}
	return data, mapOps{
		unmap:  unix.Munmap,
		sync:   func(b []byte) error { return unix.Msync(b, unix.MS_SYNC) },
		advise: osAdvise,
	}, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	advice := unix.MADV_NORMAL
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	}
	err := unix.Madvise(data, advice)
	if errors.Is(err, unix.EINVAL) {
		return nil
	}
	return err
}
