package storage

import (
	"sync"
	"sync/atomic"

	"github.com/oarkflow/coreengine/errs"
)

// BufferPoolStats mirrors the original engine's pool-level counters.
type BufferPoolStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func (s BufferPoolStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type frame struct {
	page *Page
}

// BufferPoolManager is a fixed-capacity cache of Page frames in front of a
// DiskManager, with LRU-K eviction of unpinned frames.
type BufferPoolManager struct {
	mu sync.RWMutex

	disk *DiskManager

	frames    []frame
	pageTable map[PageID]int
	freeList  []int
	replacer  *lruKReplacer

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewBufferPoolManager creates a pool of poolSize frames backed by disk,
// using an LRU-K replacer with the given K.
func NewBufferPoolManager(disk *DiskManager, poolSize int, k int) *BufferPoolManager {
	bp := &BufferPoolManager{
		disk:      disk,
		frames:    make([]frame, poolSize),
		pageTable: make(map[PageID]int, poolSize),
		freeList:  make([]int, poolSize),
		replacer:  newLRUKReplacer(k),
	}
	for i := 0; i < poolSize; i++ {
		bp.frames[i] = frame{page: NewPage()}
		bp.freeList[i] = poolSize - 1 - i
	}
	return bp
}

func (bp *BufferPoolManager) obtainFrame() (int, error) {
	if n := len(bp.freeList); n > 0 {
		idx := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return idx, nil
	}
	victim, ok := bp.replacer.Victim()
	if !ok {
		return 0, errs.IoErrorf("BufferPoolManager.FetchPage", errNoEvictableFrame)
	}
	fr := &bp.frames[victim]
	if fr.page.IsDirty() {
		if err := bp.disk.WritePage(fr.page.PageID(), fr.page); err != nil {
			return 0, err
		}
	}
	for id, fidx := range bp.pageTable {
		if fidx == victim {
			delete(bp.pageTable, id)
			break
		}
	}
	bp.replacer.Remove(victim)
	atomic.AddUint64(&bp.evictions, 1)
	return victim, nil
}

var errNoEvictableFrame = errNoFrame{}

type errNoFrame struct{}

func (errNoFrame) Error() string { return "no evictable frame available" }

// FetchPage returns a pinned reference to id, loading it from disk if not
// already resident.
func (bp *BufferPoolManager) FetchPage(id PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if idx, ok := bp.pageTable[id]; ok {
		atomic.AddUint64(&bp.hits, 1)
		bp.frames[idx].page.IncPin()
		bp.replacer.RecordAccess(idx)
		bp.replacer.SetEvictable(idx, false)
		return bp.frames[idx].page, nil
	}

	atomic.AddUint64(&bp.misses, 1)
	idx, err := bp.obtainFrame()
	if err != nil {
		return nil, err
	}
	p := bp.frames[idx].page
	p.Reset()
	if err := bp.disk.ReadPage(id, p); err != nil {
		bp.freeList = append(bp.freeList, idx)
		return nil, err
	}
	bp.pageTable[id] = idx
	p.IncPin()
	bp.replacer.RecordAccess(idx)
	bp.replacer.SetEvictable(idx, false)
	return p, nil
}

// UnpinPage decrements the pin count and ORs in is_dirty; a pin count of 0
// makes the frame evictable.
func (bp *BufferPoolManager) UnpinPage(id PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, ok := bp.pageTable[id]
	if !ok {
		return errs.NotFoundf("BufferPoolManager.UnpinPage", "page %d not resident", id)
	}
	p := bp.frames[idx].page
	if isDirty {
		p.SetDirty(true)
	}
	p.DecPin()
	if p.PinCount() == 0 {
		bp.replacer.SetEvictable(idx, true)
	}
	return nil
}

// NewPage allocates a page via the disk manager and brings it into a
// pinned, dirty frame.
func (bp *BufferPoolManager) NewPage() (PageID, *Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, err := bp.obtainFrame()
	if err != nil {
		return InvalidPageID, nil, err
	}
	id := bp.disk.AllocatePage()
	p := bp.frames[idx].page
	p.Reset()
	p.SetPageID(id)
	p.SetDirty(true)
	p.IncPin()
	bp.pageTable[id] = idx
	bp.replacer.RecordAccess(idx)
	bp.replacer.SetEvictable(idx, false)
	return id, p, nil
}

// FlushPage writes a dirty page to disk without evicting it.
func (bp *BufferPoolManager) FlushPage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, ok := bp.pageTable[id]
	if !ok {
		return errs.NotFoundf("BufferPoolManager.FlushPage", "page %d not resident", id)
	}
	p := bp.frames[idx].page
	if err := bp.disk.WritePage(id, p); err != nil {
		return err
	}
	p.SetDirty(false)
	return nil
}

// FlushAllPages writes every dirty resident page to disk.
func (bp *BufferPoolManager) FlushAllPages() error {
	bp.mu.Lock()
	ids := make([]PageID, 0, len(bp.pageTable))
	for id := range bp.pageTable {
		ids = append(ids, id)
	}
	bp.mu.Unlock()

	for _, id := range ids {
		if err := bp.FlushPage(id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes an unpinned page from the pool and returns its frame
// to the free list.
func (bp *BufferPoolManager) DeletePage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, ok := bp.pageTable[id]
	if !ok {
		return nil
	}
	if bp.frames[idx].page.PinCount() > 0 {
		return errs.InvalidArgf("BufferPoolManager.DeletePage", "page %d is pinned", id)
	}
	delete(bp.pageTable, id)
	bp.replacer.Remove(idx)
	bp.frames[idx].page.Reset()
	bp.freeList = append(bp.freeList, idx)
	return nil
}

// Stats returns a point-in-time copy of the pool's hit/miss/eviction
// counters.
func (bp *BufferPoolManager) Stats() BufferPoolStats {
	return BufferPoolStats{
		Hits:      atomic.LoadUint64(&bp.hits),
		Misses:    atomic.LoadUint64(&bp.misses),
		Evictions: atomic.LoadUint64(&bp.evictions),
	}
}
