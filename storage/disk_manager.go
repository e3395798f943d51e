package storage

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/oarkflow/coreengine/errs"
)

// Stats mirrors the original engine's per-DiskManager counters.
type Stats struct {
	Reads       uint64
	Writes      uint64
	BytesRead   uint64
	BytesWriten uint64
	Syncs       uint64
}

// ReadRequest/WriteRequest describe one page's worth of batched I/O.
type ReadRequest struct {
	ID  PageID
	Out *Page
}

type WriteRequest struct {
	ID PageID
	In *Page
}

// DiskManager owns the single database file: aligned page read/write at
// computed offsets, monotonic page allocation, and durable sync.
type DiskManager struct {
	mu        sync.Mutex
	file      *os.File
	pageCount uint32

	fixedBuffers map[string]struct{}

	direct     bool
	alignedBuf []byte

	stats Stats
}

// Open opens or creates the backing file at path for ordinary buffered I/O.
// If the file is new, page 0 is initialized as a zeroed reserved page. An
// existing file whose size is not a multiple of PageSize is reported as
// corruption.
func Open(path string) (*DiskManager, error) {
	return OpenWithOptions(path, false)
}

// OpenWithOptions is Open with control over the direct-I/O path: when
// direct is true, the backing file is opened with O_DIRECT where the
// platform supports it (Linux only; other platforms silently use buffered
// I/O), and page reads/writes go through a page-aligned scratch buffer
// instead of the Page's own backing array. Direct I/O trades the kernel's
// page cache for the BufferPoolManager's own LRU-K cache, avoiding the
// double-caching a buffered-I/O database otherwise pays for.
func OpenWithOptions(path string, direct bool) (*DiskManager, error) {
	f, err := openBackingFile(path, direct)
	if err != nil {
		return nil, errs.IoErrorf("DiskManager.Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.IoErrorf("DiskManager.Open", err)
	}
	dm := &DiskManager{file: f, fixedBuffers: make(map[string]struct{}), direct: direct}
	if direct {
		buf, err := newAlignedBuffer(PageSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		dm.alignedBuf = buf
	}

	if info.Size() == 0 {
		zero := NewPage()
		zero.SetPageID(HeaderPageID)
		zero.SetType(PageTypeHeader)
		zero.UpdateChecksum()
		if err := dm.writeAt(HeaderPageID, zero); err != nil {
			f.Close()
			return nil, err
		}
		dm.pageCount = 2 // page 0 reserved slot + header page occupy ids 0,1
		return dm, nil
	}

	if info.Size()%PageSize != 0 {
		f.Close()
		return nil, errs.Corruptf("DiskManager.Open", "file size %d is not a multiple of %d", info.Size(), PageSize)
	}
	dm.pageCount = uint32(info.Size() / PageSize)
	return dm, nil
}

func (dm *DiskManager) offset(id PageID) int64 {
	return int64(id) * PageSize
}

func (dm *DiskManager) writeAt(id PageID, p *Page) error {
	src := p.Bytes()
	if dm.direct {
		copy(dm.alignedBuf, src)
		src = dm.alignedBuf
	}
	n, err := dm.file.WriteAt(src, dm.offset(id))
	if err != nil {
		return errs.IoErrorf("DiskManager.WritePage", err)
	}
	if n != PageSize {
		return errs.IoErrorf("DiskManager.WritePage", fmt.Errorf("short write: %d of %d bytes", n, PageSize))
	}
	atomic.AddUint64(&dm.stats.Writes, 1)
	atomic.AddUint64(&dm.stats.BytesWriten, PageSize)
	return nil
}

// WritePage writes a single page at its computed offset, updating its
// checksum first if it is not already current.
func (dm *DiskManager) WritePage(id PageID, p *Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if !p.VerifyChecksum() {
		p.UpdateChecksum()
	}
	return dm.writeAt(id, p)
}

// ReadPage reads a single page, verifying its checksum and page id.
func (dm *DiskManager) ReadPage(id PageID, out *Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dst := out.Bytes()
	readInto := dst
	if dm.direct {
		readInto = dm.alignedBuf
	}
	n, err := dm.file.ReadAt(readInto, dm.offset(id))
	if err != nil {
		return errs.IoErrorf("DiskManager.ReadPage", err)
	}
	if n != PageSize {
		return errs.Corruptf("DiskManager.ReadPage", "short read: %d of %d bytes", n, PageSize)
	}
	if dm.direct {
		copy(dst, dm.alignedBuf)
	}
	atomic.AddUint64(&dm.stats.Reads, 1)
	atomic.AddUint64(&dm.stats.BytesRead, PageSize)
	if !out.VerifyChecksum() {
		return errs.Corruptf("DiskManager.ReadPage", "checksum mismatch for page %d", id)
	}
	if out.PageID() != InvalidPageID && out.PageID() != id {
		return errs.Corruptf("DiskManager.ReadPage", "page id mismatch: want %d got %d", id, out.PageID())
	}
	return nil
}

// AllocatePage atomically returns the next page id and grows the logical
// page count.
func (dm *DiskManager) AllocatePage() PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	id := PageID(dm.pageCount)
	dm.pageCount++
	return id
}

// PageCount returns the current logical page count.
func (dm *DiskManager) PageCount() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.pageCount
}

// ReadContiguous reads len(out) pages starting at id into out in order.
func (dm *DiskManager) ReadContiguous(id PageID, out []*Page) error {
	for i, p := range out {
		if err := dm.ReadPage(id+PageID(i), p); err != nil {
			return err
		}
	}
	return nil
}

// WriteContiguous writes len(in) pages starting at id; the logical file may
// be extended by up to one page past the current end, never leaving a gap.
func (dm *DiskManager) WriteContiguous(id PageID, in []*Page) error {
	dm.mu.Lock()
	maxID := uint32(id) + uint32(len(in))
	if maxID > dm.pageCount+1 {
		dm.mu.Unlock()
		return errs.Internalf("DiskManager.WriteContiguous", "write at %d..%d would leave a gap past page count %d", id, maxID, dm.pageCount)
	}
	if maxID > dm.pageCount {
		dm.pageCount = maxID
	}
	dm.mu.Unlock()

	for i, p := range in {
		if err := dm.WritePage(id+PageID(i), p); err != nil {
			return err
		}
	}
	return nil
}

// BatchRead executes each ReadRequest; all requests complete before return,
// and the first error aborts the batch.
func (dm *DiskManager) BatchRead(reqs []ReadRequest) error {
	for _, r := range reqs {
		if err := dm.ReadPage(r.ID, r.Out); err != nil {
			return err
		}
	}
	return nil
}

// BatchWrite executes each WriteRequest; all requests complete before
// return, and the first error aborts the batch.
func (dm *DiskManager) BatchWrite(reqs []WriteRequest) error {
	for _, r := range reqs {
		if err := dm.WritePage(r.ID, r.In); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFixedBuffers records a set of page-aligned page buffers as
// registered. It rejects non-aligned buffers and double registration.
// BatchRead and BatchWrite perform sequential single-page I/O and do not
// consult the registered set.
func (dm *DiskManager) RegisterFixedBuffers(pages []*Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, p := range pages {
		if uintptr(unsafe.Pointer(&p.buf[0]))%PageSize != 0 {
			return errs.InvalidArgf("DiskManager.RegisterFixedBuffers", "buffer is not %d-byte aligned", PageSize)
		}
		key := bufferIdentity(p)
		if _, exists := dm.fixedBuffers[key]; exists {
			return errs.InvalidArgf("DiskManager.RegisterFixedBuffers", "buffer already registered")
		}
	}
	for _, p := range pages {
		dm.fixedBuffers[bufferIdentity(p)] = struct{}{}
	}
	return nil
}

func bufferIdentity(p *Page) string {
	return fmt.Sprintf("%p", p)
}

// Sync forces all pending writes to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.file.Sync(); err != nil {
		return errs.IoErrorf("DiskManager.Sync", err)
	}
	atomic.AddUint64(&dm.stats.Syncs, 1)
	return nil
}

// Stats returns a point-in-time copy of the disk manager's counters.
func (dm *DiskManager) Stats() Stats {
	return Stats{
		Reads:       atomic.LoadUint64(&dm.stats.Reads),
		Writes:      atomic.LoadUint64(&dm.stats.Writes),
		BytesRead:   atomic.LoadUint64(&dm.stats.BytesRead),
		BytesWriten: atomic.LoadUint64(&dm.stats.BytesWriten),
		Syncs:       atomic.LoadUint64(&dm.stats.Syncs),
	}
}

// Close flushes and closes the backing file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		return errs.IoErrorf("DiskManager.Close", err)
	}
	if err := dm.file.Close(); err != nil {
		return errs.IoErrorf("DiskManager.Close", err)
	}
	if dm.alignedBuf != nil {
		if err := freeAlignedBuffer(dm.alignedBuf); err != nil {
			return errs.IoErrorf("DiskManager.Close", err)
		}
		dm.alignedBuf = nil
	}
	return nil
}
