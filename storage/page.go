// Package storage implements the leaf-level durability primitives: the fixed
// 4 KB page, the disk manager that owns the database file, and the
// LRU-K-replaced buffer pool cache in front of it.
package storage

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// PageSize is the fixed on-disk and in-memory size of every page.
	PageSize = 4096
	// HeaderSize is the fixed size of the page header, cache-line aligned.
	HeaderSize = 64
	// DataSize is the usable data region following the header.
	DataSize = PageSize - HeaderSize

	// InvalidPageID is the reserved "no page" sentinel.
	InvalidPageID PageID = 0
	// HeaderPageID is the reserved superblock page.
	HeaderPageID PageID = 1

	// InvalidLSN marks a page that has never been touched by a log record.
	InvalidLSN LSN = 0
)

// PageID is a 32-bit page identifier. 0 is invalid; 1 is the header page.
type PageID uint32

// LSN is a monotonic 64-bit log sequence number. 0 is invalid.
type LSN uint64

// PageType tags the structural role of a page; it replaces an inheritance
// hierarchy with a single variant byte in the header.
type PageType uint8

const (
	PageTypeInvalid PageType = iota
	PageTypeHeader
	PageTypeBTreeInternal
	PageTypeLeaf
	PageTypeHeap
	PageTypeOverflow
	PageTypeFreeSpace
	PageTypeVectorHNSW
)

// header field byte offsets within the 64-byte header.
const (
	offPageID        = 0
	offLSN           = 4
	offPinCount      = 12
	offChecksum      = 16
	offDirty         = 20
	offPageType      = 21
	offFreeSpaceHint = 22
	// bytes 24..64 are reserved padding.
)

// Page is a fixed 4 KB frame: a 64-byte header followed by a 4032-byte data
// region. Header and data layout are stable on disk.
type Page struct {
	buf [PageSize]byte
}

// NewPage returns a zeroed page with the invalid id and type.
func NewPage() *Page {
	return &Page{}
}

func (p *Page) PageID() PageID {
	return PageID(binary.LittleEndian.Uint32(p.buf[offPageID:]))
}

func (p *Page) SetPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.buf[offPageID:], uint32(id))
}

func (p *Page) PageLSN() LSN {
	return LSN(binary.LittleEndian.Uint64(p.buf[offLSN:]))
}

func (p *Page) SetPageLSN(lsn LSN) {
	binary.LittleEndian.PutUint64(p.buf[offLSN:], uint64(lsn))
}

func (p *Page) PinCount() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[offPinCount:]))
}

func (p *Page) IncPin() {
	binary.LittleEndian.PutUint32(p.buf[offPinCount:], uint32(p.PinCount()+1))
}

// DecPin saturates at 0; it never goes negative.
func (p *Page) DecPin() {
	c := p.PinCount()
	if c <= 0 {
		binary.LittleEndian.PutUint32(p.buf[offPinCount:], 0)
		return
	}
	binary.LittleEndian.PutUint32(p.buf[offPinCount:], uint32(c-1))
}

func (p *Page) IsDirty() bool {
	return p.buf[offDirty] != 0
}

func (p *Page) SetDirty(dirty bool) {
	if dirty {
		p.buf[offDirty] = 1
	} else {
		p.buf[offDirty] = 0
	}
}

func (p *Page) Type() PageType {
	return PageType(p.buf[offPageType])
}

func (p *Page) SetType(t PageType) {
	p.buf[offPageType] = byte(t)
}

func (p *Page) FreeSpaceHint() uint16 {
	return binary.LittleEndian.Uint16(p.buf[offFreeSpaceHint:])
}

func (p *Page) SetFreeSpaceHint(hint uint16) {
	binary.LittleEndian.PutUint16(p.buf[offFreeSpaceHint:], hint)
}

// Data returns the mutable 4032-byte data region.
func (p *Page) Data() []byte {
	return p.buf[HeaderSize:PageSize]
}

// Bytes returns the full 4 KB backing buffer, header included.
func (p *Page) Bytes() []byte {
	return p.buf[:]
}

// Checksum returns the stored checksum field.
func (p *Page) Checksum() uint32 {
	return binary.LittleEndian.Uint32(p.buf[offChecksum:])
}

// computeChecksum computes CRC32 over the whole page with the checksum
// field treated as zero, per the page contract.
func (p *Page) computeChecksum() uint32 {
	var tmp [PageSize]byte
	copy(tmp[:], p.buf[:])
	binary.LittleEndian.PutUint32(tmp[offChecksum:], 0)
	return crc32.ChecksumIEEE(tmp[:])
}

// UpdateChecksum recomputes and stores the checksum; call before any write.
func (p *Page) UpdateChecksum() {
	binary.LittleEndian.PutUint32(p.buf[offChecksum:], p.computeChecksum())
}

// VerifyChecksum reports whether the stored checksum matches the page
// contents.
func (p *Page) VerifyChecksum() bool {
	return p.Checksum() == p.computeChecksum()
}

// Reset clears the page to its zero state, ready for reuse by a frame.
func (p *Page) Reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
}

// CopyFrom overwrites this page's bytes with src's.
func (p *Page) CopyFrom(src *Page) {
	copy(p.buf[:], src.buf[:])
}
