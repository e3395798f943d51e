//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/oarkflow/coreengine/errs"
)

// openBackingFile opens path for read/write, optionally with O_DIRECT so
// page I/O bypasses the kernel page cache (the database already caches
// pages itself, in the BufferPoolManager). O_DIRECT requires
// page-aligned, page-sized buffers and offsets, which every DiskManager
// I/O call already satisfies (PageSize is 4096).
func openBackingFile(path string, direct bool) (*os.File, error) {
	flags := os.O_RDWR | os.O_CREATE
	if direct {
		flags |= unix.O_DIRECT
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil && direct {
		// Some filesystems (tmpfs, overlayfs) reject O_DIRECT; fall back to
		// buffered I/O rather than fail the whole engine over it.
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	}
	return f, err
}

// newAlignedBuffer returns a page-aligned buffer of size bytes, required
// for O_DIRECT reads/writes. mmap'd anonymous memory is page-aligned by
// construction.
func newAlignedBuffer(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errs.IoErrorf("newAlignedBuffer", err)
	}
	return buf, nil
}

func freeAlignedBuffer(buf []byte) error {
	if buf == nil {
		return nil
	}
	return unix.Munmap(buf)
}
