package coreengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oarkflow/coreengine/corelog"
	"github.com/oarkflow/coreengine/errs"
	"github.com/oarkflow/coreengine/storage"
	"github.com/oarkflow/coreengine/vector"
)

// maxKeyValueLen is the WAL/SSTable sanity cap shared by every length
// field in the wire formats (§3): 64 MiB.
const maxKeyValueLen = 64 << 20

// maxRecoverySearchLevels bounds how deep Open searches for a legacy
// manifest record whose level tag is unknown.
const maxRecoverySearchLevels = 16

// vectorKeyPrefix namespaces vector values inside the same key/value space
// Put/Get use, so a vector's raw bytes get the same WAL/SSTable durability
// as any other entry; the in-memory HNSW graph is rebuilt from these
// entries at Open (see reloadVectorIndex).
var vectorKeyPrefix = []byte{0x00, 'v', 'e', 'c', 0x00}

func vectorStorageKey(key string) []byte {
	return append(append([]byte(nil), vectorKeyPrefix...), key...)
}

func isVectorKey(key []byte) (string, bool) {
	if len(key) < len(vectorKeyPrefix) {
		return "", false
	}
	for i, b := range vectorKeyPrefix {
		if key[i] != b {
			return "", false
		}
	}
	return string(key[len(vectorKeyPrefix):]), true
}

// opStat is a lock-free running count/total-duration pair used for the
// per-operation latency counters GetStats reports.
type opStat struct {
	count uint64
	nanos uint64
}

func (s *opStat) record(d time.Duration) {
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.nanos, uint64(d.Nanoseconds()))
}

func (s *opStat) snapshot() (count uint64, avgNanos float64) {
	count = atomic.LoadUint64(&s.count)
	total := atomic.LoadUint64(&s.nanos)
	if count == 0 {
		return 0, 0
	}
	return count, float64(total) / float64(count)
}

// Stats is a point-in-time snapshot of the engine's operational counters.
type Stats struct {
	BufferPool          storage.BufferPoolStats
	BloomSaved          uint64
	BloomFalsePositives uint64

	PutCount       uint64
	GetCount       uint64
	DeleteCount    uint64
	ScanCount      uint64
	AvgPutNanos    float64
	AvgGetNanos    float64
	AvgDeleteNanos float64
	AvgScanNanos   float64

	VectorCount int
}

// Op is one operation inside a BatchWrite call.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// GetResult is one slot of a BatchGet call, preserving the absent/present
// distinction Get reports.
type GetResult struct {
	Key   []byte
	Value []byte
	Found bool
}

// ScanOptions tunes Scan's output per §4.10.
type ScanOptions struct {
	Reverse  bool
	Limit    int
	KeysOnly bool
}

// KV is one key/value pair returned by Scan or GetAllEntries.
type KV struct {
	Key   []byte
	Value []byte
}

// VectorStats summarizes the HNSW index's configuration and population.
type VectorStats struct {
	Enabled   bool
	Dimension int
	Metric    vector.Metric
	Count     int
}

// batchState tracks an open BeginBatch/EndBatch span.
type batchState struct {
	txnID uint64
}

// Engine is the façade that routes Put/Get/Delete/Scan/BatchWrite through
// the LSM tree and WAL, maintains a best-effort key->PageId hint index over
// a page-based buffer pool, and owns the HNSW vector index. No public
// method blocks on a failed subsystem: every failure is reported to the
// caller rather than retried or silently swallowed.
type Engine struct {
	mu sync.RWMutex

	cfg Config

	memTable *MemTable
	wal      *WAL
	lsm      *LeveledLSM
	manifest *Manifest

	disk       *storage.DiskManager
	bufferPool *storage.BufferPoolManager
	hintMu     sync.Mutex
	hintIndex  map[string]storage.PageID

	vectorIndex *vector.Index
	valueCache  *LRUCache

	batchMu   sync.Mutex
	batch     *batchState
	nextTxnID uint64

	putStat    opStat
	getStat    opStat
	deleteStat opStat
	scanStat   opStat

	closed bool
}

// Open opens (or creates) a database using the Embedded preset rooted at
// path.
func Open(path string) (*Engine, error) {
	return OpenConfig(EmbeddedConfig(path))
}

// OpenConfig opens (or creates) a database per cfg: it creates directories,
// initializes the Manifest, replays the LSM WAL into a fresh MemTable,
// loads every live SSTable, and, if enabled, rebuilds the HNSW index from
// persisted vector entries.
func OpenConfig(cfg Config) (*Engine, error) {
	cfg = applyDefaults(cfg)
	if err := ensureDirs(cfg); err != nil {
		return nil, errs.IoErrorf("Engine.Open", err)
	}

	manifest, err := OpenManifest(manifestPath(cfg))
	if err != nil {
		return nil, err
	}

	lsm, err := NewLeveledLSM(cfg.DataDir)
	if err != nil {
		manifest.Close()
		return nil, err
	}
	lsm.SetTuning(cfg.L0CompactionTrigger, cfg.BaseLevelBytes)

	liveIDs, levels, err := manifest.LiveSet()
	if err != nil {
		manifest.Close()
		return nil, err
	}

	var maxID uint64
	for _, id := range liveIDs {
		if id > maxID {
			maxID = id
		}
		lvl := levels[id]
		path, foundLevel, err := locateSSTable(lsm, cfg.DataDir, id, lvl)
		if err != nil {
			lsm.Close()
			manifest.Close()
			return nil, err
		}
		sst, err := LoadSSTable(path)
		if err != nil {
			lsm.Close()
			manifest.Close()
			return nil, err
		}
		lsm.AddRecovered(sst, foundLevel)
	}
	lsm.SetNextID(maxID)

	wal, err := OpenWAL(walPath(cfg), cfg.WALSyncMode)
	if err != nil {
		lsm.Close()
		manifest.Close()
		return nil, err
	}
	if err := wal.EnableRotation(cfg.WALRotateBytes, walArchiveDir(cfg)); err != nil {
		wal.Close()
		lsm.Close()
		manifest.Close()
		return nil, err
	}

	memTable := NewMemTable()
	replayErr := Replay(walPath(cfg), walArchiveDir(cfg), func(recType byte, key, value []byte) error {
		if recType == walRecordPut {
			memTable.Put(key, value)
		} else {
			memTable.Delete(key)
		}
		return nil
	})
	if replayErr != nil {
		wal.Close()
		lsm.Close()
		manifest.Close()
		return nil, replayErr
	}

	disk, err := storage.OpenWithOptions(filepath.Join(cfg.DataDir, "pages.dat"), cfg.DirectIO)
	if err != nil {
		wal.Close()
		lsm.Close()
		manifest.Close()
		return nil, err
	}
	bufferPool := storage.NewBufferPoolManager(disk, cfg.BufferPoolSize, 2)

	e := &Engine{
		cfg:        cfg,
		memTable:   memTable,
		wal:        wal,
		lsm:        lsm,
		manifest:   manifest,
		disk:       disk,
		bufferPool: bufferPool,
		hintIndex:  make(map[string]storage.PageID),
	}

	if cfg.BlockCacheSizeBytes > 0 {
		e.valueCache = NewLRUCache(cfg.BlockCacheSizeBytes)
	}

	if cfg.EnableVectorIndex {
		e.vectorIndex = vector.New(cfg.HNSWParams)
		if err := e.reloadVectorIndex(); err != nil {
			wal.Close()
			lsm.Close()
			manifest.Close()
			disk.Close()
			return nil, err
		}
	}

	corelog.Infof("engine: opened %s (buffer_pool=%d vector=%v)", cfg.RootDir, cfg.BufferPoolSize, cfg.EnableVectorIndex)
	return e, nil
}

// locateSSTable resolves the on-disk path for a live manifest id. When the
// manifest recorded an explicit level it is tried first; otherwise (legacy
// manifests predating the level tag) every level directory and finally the
// legacy flat location under dataDir are searched, per §6's recovery
// tolerance and the manifest-format Open Question in §9.
func locateSSTable(lsm *LeveledLSM, dataDir string, id uint64, level int) (string, int, error) {
	if level >= 0 {
		p := lsm.SSTablePath(level, int(id))
		if fileExists(p) {
			return p, level, nil
		}
	}
	for i := 0; i < maxRecoverySearchLevels; i++ {
		p := lsm.SSTablePath(i, int(id))
		if fileExists(p) {
			return p, i, nil
		}
	}
	legacy := filepath.Join(dataDir, fmt.Sprintf("sstable_%d.sst", id))
	if fileExists(legacy) {
		return legacy, 0, nil
	}
	return "", -1, errs.Corruptf("Engine.Open", "no sstable file found for live manifest id %d", id)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sstableLevelFromPath(path string) int {
	dir := filepath.Base(filepath.Dir(path))
	var lvl int
	fmt.Sscanf(dir, "level_%d", &lvl)
	return lvl
}

// reloadVectorIndex rebuilds the in-memory HNSW graph from persisted
// vector-namespaced entries; the graph itself has no on-disk format, so
// reconstruction from the durable KV path is the recovery strategy.
func (e *Engine) reloadVectorIndex() error {
	all, err := e.scanAllLocked()
	if err != nil {
		return err
	}
	for _, kv := range all {
		key, ok := isVectorKey(kv.Key)
		if !ok {
			continue
		}
		v, err := vector.Deserialize(kv.Value)
		if err != nil {
			return err
		}
		if err := e.vectorIndex.Insert(key, v); err != nil && !errs.Is(err, errs.AlreadyExists) {
			return err
		}
	}
	return nil
}

func validateKeyValue(op string, key, value []byte) error {
	if len(key) == 0 {
		return errs.InvalidArgf(op, "key must not be empty")
	}
	if len(key) > maxKeyValueLen {
		return errs.InvalidArgf(op, "key length %d exceeds %d byte cap", len(key), maxKeyValueLen)
	}
	if len(value) > maxKeyValueLen {
		return errs.InvalidArgf(op, "value length %d exceeds %d byte cap", len(value), maxKeyValueLen)
	}
	return nil
}

// Put durably appends a WAL record before the MemTable is mutated, then
// best-effort refreshes the page hint index. Outside of a batch, the WAL
// append is synced before Put returns when the WAL runs in SyncEveryWrite
// mode; see WAL.AppendPut for the other modes.
func (e *Engine) Put(key, value []byte) error {
	start := time.Now()
	if err := validateKeyValue("Engine.Put", key, value); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.batchMu.Lock()
	inBatch := e.batch != nil
	e.batchMu.Unlock()

	var err error
	if inBatch {
		err = e.wal.AppendPutDeferred(key, value)
	} else {
		err = e.wal.AppendPut(key, value)
	}
	if err != nil {
		return err
	}

	e.memTable.Put(key, value)
	e.putPageHint(key, value)
	if e.valueCache != nil {
		e.valueCache.Put(string(key), value)
	}

	if !inBatch {
		if err := e.maybeFlushAndCompactLocked(); err != nil {
			return err
		}
	}
	e.putStat.record(time.Since(start))
	return nil
}

// Delete replaces key's entry with a tombstone; a subsequent Get reports
// absence, never the tombstone itself.
func (e *Engine) Delete(key []byte) error {
	start := time.Now()
	if len(key) == 0 {
		return errs.InvalidArgf("Engine.Delete", "key must not be empty")
	}
	if len(key) > maxKeyValueLen {
		return errs.InvalidArgf("Engine.Delete", "key length %d exceeds %d byte cap", len(key), maxKeyValueLen)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.batchMu.Lock()
	inBatch := e.batch != nil
	e.batchMu.Unlock()

	var err error
	if inBatch {
		err = e.wal.AppendDeleteDeferred(key)
	} else {
		err = e.wal.AppendDelete(key)
	}
	if err != nil {
		return err
	}

	e.memTable.Delete(key)
	e.deletePageHint(key)
	if e.valueCache != nil {
		e.valueCache.Remove(string(key))
	}

	if !inBatch {
		if err := e.maybeFlushAndCompactLocked(); err != nil {
			return err
		}
	}
	e.deleteStat.record(time.Since(start))
	return nil
}

// Get returns the value for key, false if absent or tombstoned, and an
// error only on a downstream I/O or corruption failure.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.valueCache != nil {
		if v, ok := e.valueCache.Get(string(key)); ok {
			e.getStat.record(time.Since(start))
			return append([]byte(nil), v...), true, nil
		}
	}

	if entry := e.memTable.Get(key); entry != nil {
		e.getStat.record(time.Since(start))
		if entry.Deleted {
			return nil, false, nil
		}
		return append([]byte(nil), entry.Value...), true, nil
	}

	for _, sst := range e.lsm.GetAllSSTables() {
		raw, hit := sst.GetRaw(key)
		if !hit {
			continue
		}
		e.getStat.record(time.Since(start))
		if raw.Deleted {
			return nil, false, nil
		}
		if e.valueCache != nil {
			e.valueCache.Put(string(key), raw.Value)
		}
		return append([]byte(nil), raw.Value...), true, nil
	}
	e.getStat.record(time.Since(start))
	return nil, false, nil
}

// maybeFlushAndCompactLocked flushes the MemTable to a new L0 SSTable once
// it crosses the configured byte threshold, registers it with the
// manifest, then drains any cascading compactions, updating the manifest
// after each one. Callers must hold e.mu for writing.
func (e *Engine) maybeFlushAndCompactLocked() error {
	if e.memTable.Size() < e.cfg.MemTableFlushBytes {
		return nil
	}
	entries := e.memTable.SortedIterator()
	e.memTable = NewMemTable()
	if len(entries) == 0 {
		return nil
	}

	id := e.lsm.NextID()
	path := e.lsm.SSTablePath(0, int(id))
	sst, err := BuildSSTable(path, entries)
	if err != nil {
		return err
	}
	e.lsm.AddL0SSTable(sst)
	if err := e.manifest.AddSSTable(id, 0); err != nil {
		return err
	}
	corelog.Debugf("engine: flushed memtable to L0 sstable %d (%d entries)", id, len(entries))
	return e.drainCompactionsLocked()
}

func (e *Engine) drainCompactionsLocked() error {
	for {
		added, removed, err := e.lsm.MaybeCompact()
		if err != nil {
			return err
		}
		if len(added) == 0 && len(removed) == 0 {
			return nil
		}
		if err := e.applyCompactionResultLocked(added, removed); err != nil {
			return err
		}
		corelog.Debugf("engine: compaction added=%v removed=%v", added, removed)
	}
}

// applyCompactionResultLocked records new outputs in the manifest before
// retiring their inputs, preserving coverage of every key at every
// instant, per the caller-updates-manifest-in-order contract of §4.8.
func (e *Engine) applyCompactionResultLocked(added, removed []uint64) error {
	if len(added) > 0 {
		all := e.lsm.GetAllSSTables()
		byID := make(map[uint64]*SSTable, len(all))
		for _, s := range all {
			byID[idFromPath(s.Path())] = s
		}
		for _, id := range added {
			lvl := 0
			if s, ok := byID[id]; ok {
				lvl = sstableLevelFromPath(s.Path())
			}
			if err := e.manifest.AddSSTable(id, lvl); err != nil {
				return err
			}
		}
	}
	if len(removed) > 0 {
		if err := e.manifest.RemoveSSTables(removed); err != nil {
			return err
		}
	}
	return nil
}

// BeginBatch opens a shared transaction id; intervening Puts/Deletes append
// WAL records but defer the sync until EndBatch.
func (e *Engine) BeginBatch() error {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	if e.batch != nil {
		return errs.Internalf("Engine.BeginBatch", "a batch is already open")
	}
	e.nextTxnID++
	e.batch = &batchState{txnID: e.nextTxnID}
	return nil
}

// EndBatch issues exactly one sync for the whole batch and closes it. Each
// batched write is applied to the MemTable, and its WAL record handed to
// the OS, as it is made. The WAL carries no commit marker for a batch and
// Replay applies every record it finds, so a crash before EndBatch returns
// can leave any prefix of the batch's records in the log.
func (e *Engine) EndBatch() error {
	e.batchMu.Lock()
	if e.batch == nil {
		e.batchMu.Unlock()
		return errs.Internalf("Engine.EndBatch", "no batch is open")
	}
	if err := e.wal.Sync(); err != nil {
		e.batchMu.Unlock()
		return err
	}
	e.batch = nil
	// Release before taking e.mu: Put/Delete acquire e.mu then batchMu, so
	// holding batchMu across this acquisition would invert the lock order.
	e.batchMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maybeFlushAndCompactLocked()
}

// Flush syncs the WAL without ending an open batch.
func (e *Engine) Flush() error {
	return e.wal.Sync()
}

// BatchWrite opens a batch, applies every op in order, and closes the
// batch with a single sync. An empty op list is a no-op.
func (e *Engine) BatchWrite(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	if err := e.BeginBatch(); err != nil {
		return err
	}
	for _, op := range ops {
		var err error
		if op.Delete {
			err = e.Delete(op.Key)
		} else {
			err = e.Put(op.Key, op.Value)
		}
		if err != nil {
			e.batchMu.Lock()
			e.batch = nil
			e.batchMu.Unlock()
			return err
		}
	}
	return e.EndBatch()
}

// BatchGet performs n independent Gets, preserving input order.
func (e *Engine) BatchGet(keys [][]byte) []GetResult {
	out := make([]GetResult, len(keys))
	for i, k := range keys {
		v, ok, err := e.Get(k)
		if err != nil {
			corelog.Warnf("engine: BatchGet(%q): %v", k, err)
			continue
		}
		out[i] = GetResult{Key: k, Value: v, Found: ok}
	}
	return out
}

func inRange(key, start, end []byte) bool {
	if start != nil && compareKeys(key, start) < 0 {
		return false
	}
	if end != nil && compareKeys(key, end) >= 0 {
		return false
	}
	return true
}

// Scan returns every live pair with start <= key < end (nil start/end are
// unbounded), newest version per key, tombstones excluded. Reverse flips
// output order; Limit > 0 caps it; KeysOnly blanks returned values.
func (e *Engine) Scan(start, end []byte, opts ScanOptions) ([]KV, error) {
	scanStart := time.Now()
	e.mu.RLock()
	out, err := e.scanRangeLocked(start, end, opts)
	e.mu.RUnlock()
	if err == nil {
		e.scanStat.record(time.Since(scanStart))
	}
	return out, err
}

// scanAllLocked returns every live pair with no range bound, used
// internally for vector-index reconstruction and GetAllEntries. Caller
// must hold e.mu for at least reading except during Open, where no
// concurrent access is possible yet.
func (e *Engine) scanAllLocked() ([]KV, error) {
	return e.scanRangeLocked(nil, nil, ScanOptions{})
}

func (e *Engine) scanRangeLocked(start, end []byte, opts ScanOptions) ([]KV, error) {
	seen := make(map[string]bool)
	var out []KV

	process := func(entries []sstableEntry) {
		for _, en := range entries {
			if !inRange(en.Key, start, end) {
				continue
			}
			k := string(en.Key)
			if seen[k] {
				continue
			}
			seen[k] = true
			if en.Deleted {
				continue
			}
			val := append([]byte(nil), en.Value...)
			if opts.KeysOnly {
				val = []byte{}
			}
			out = append(out, KV{Key: append([]byte(nil), en.Key...), Value: val})
		}
	}

	memEntries := e.memTable.SortedIterator()
	asSSTableEntries := make([]sstableEntry, len(memEntries))
	for i, me := range memEntries {
		asSSTableEntries[i] = sstableEntry{Key: me.Key, Value: me.Value, Deleted: me.Deleted}
	}
	process(asSSTableEntries)

	for _, sst := range e.lsm.GetAllSSTables() {
		process(sst.Entries())
	}

	sort.Slice(out, func(i, j int) bool { return compareKeys(out[i].Key, out[j].Key) < 0 })
	if opts.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// GetAllEntries returns every live key/value pair in ascending key order.
func (e *Engine) GetAllEntries() ([]KV, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scanAllLocked()
}

// pageHintMaxValueLen bounds what the best-effort page hint index will
// cache: values must fit the 4-byte length prefix plus payload in the
// 4032-byte data region.
const pageHintMaxValueLen = storage.DataSize - 4

// putPageHint best-effort mirrors key/value into a buffer-pool page,
// exercising the page/buffer-pool subsystem as a read accelerator. Its
// absence never changes observed correctness: Get never consults it.
func (e *Engine) putPageHint(key, value []byte) {
	if len(value) > pageHintMaxValueLen {
		return
	}
	e.hintMu.Lock()
	defer e.hintMu.Unlock()

	k := string(key)
	var id storage.PageID
	var page *storage.Page
	var err error
	if existing, ok := e.hintIndex[k]; ok {
		page, err = e.bufferPool.FetchPage(existing)
		if err == nil {
			id = existing
		}
	}
	if page == nil {
		id, page, err = e.bufferPool.NewPage()
		if err != nil {
			return
		}
	}

	page.SetType(storage.PageTypeHeap)
	data := page.Data()
	data[0] = byte(len(value))
	data[1] = byte(len(value) >> 8)
	data[2] = byte(len(value) >> 16)
	data[3] = byte(len(value) >> 24)
	copy(data[4:], value)
	page.UpdateChecksum()

	e.hintIndex[k] = id
	if err := e.bufferPool.UnpinPage(id, true); err != nil {
		corelog.Warnf("engine: unpin page hint for %q: %v", key, err)
	}
}

func (e *Engine) deletePageHint(key []byte) {
	e.hintMu.Lock()
	defer e.hintMu.Unlock()
	id, ok := e.hintIndex[string(key)]
	if !ok {
		return
	}
	delete(e.hintIndex, string(key))
	if err := e.bufferPool.DeletePage(id); err != nil {
		corelog.Warnf("engine: delete page hint for %q: %v", key, err)
	}
}

// GetPageHint exposes the key->PageId accelerator for diagnostic use; it is
// a performance cache, never an authority, and may legitimately miss a key
// that Get finds.
func (e *Engine) GetPageHint(key []byte) (storage.PageID, bool) {
	e.hintMu.Lock()
	defer e.hintMu.Unlock()
	id, ok := e.hintIndex[string(key)]
	return id, ok
}

// PutVector validates the dimension, durably persists the vector's raw
// bytes via the normal KV path, and upserts it into the HNSW graph
// (removing any prior entry for key first, since HNSW itself has no
// in-place update).
func (e *Engine) PutVector(key string, v vector.Vector) error {
	if e.vectorIndex == nil {
		return errs.Unimplementedf("Engine.PutVector", "vector index is not enabled")
	}
	if len(v) != e.cfg.VectorDimension {
		return errs.InvalidArgf("Engine.PutVector", "vector dimension %d does not match configured dimension %d", len(v), e.cfg.VectorDimension)
	}
	if err := e.Put(vectorStorageKey(key), v.Serialize()); err != nil {
		return err
	}
	_ = e.vectorIndex.Remove(key) // idempotent upsert; ignore NotFound
	return e.vectorIndex.Insert(key, v)
}

// GetVector returns the persisted vector for key, if any.
func (e *Engine) GetVector(key string) (vector.Vector, bool, error) {
	if e.vectorIndex == nil {
		return nil, false, errs.Unimplementedf("Engine.GetVector", "vector index is not enabled")
	}
	raw, ok, err := e.Get(vectorStorageKey(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := vector.Deserialize(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// SearchSimilar returns up to k nearest indexed vectors to q.
func (e *Engine) SearchSimilar(q vector.Vector, k int) ([]vector.SearchResult, error) {
	if e.vectorIndex == nil {
		return nil, errs.Unimplementedf("Engine.SearchSimilar", "vector index is not enabled")
	}
	return e.vectorIndex.Search(q, k)
}

// BatchPutVectors applies PutVector to every entry, stopping at the first
// error.
func (e *Engine) BatchPutVectors(vectors map[string]vector.Vector) error {
	for k, v := range vectors {
		if err := e.PutVector(k, v); err != nil {
			return err
		}
	}
	return nil
}

// BatchGetVectors performs n independent GetVectors and returns the found
// vectors keyed by key; absent keys are omitted.
func (e *Engine) BatchGetVectors(keys []string) (map[string]vector.Vector, error) {
	out := make(map[string]vector.Vector, len(keys))
	for _, k := range keys {
		v, ok, err := e.GetVector(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// GetVectorStats summarizes the HNSW index's configuration and population.
func (e *Engine) GetVectorStats() VectorStats {
	if e.vectorIndex == nil {
		return VectorStats{}
	}
	return VectorStats{
		Enabled:   true,
		Dimension: e.cfg.VectorDimension,
		Metric:    e.cfg.VectorMetric,
		Count:     e.vectorIndex.Len(),
	}
}

// GetStats returns a point-in-time snapshot of buffer-pool, bloom-filter,
// and per-operation latency counters.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var s Stats
	s.BufferPool = e.bufferPool.Stats()
	for _, sst := range e.lsm.GetAllSSTables() {
		saved, falsePos := sst.BloomStats()
		s.BloomSaved += saved
		s.BloomFalsePositives += falsePos
	}
	s.PutCount, s.AvgPutNanos = e.putStat.snapshot()
	s.GetCount, s.AvgGetNanos = e.getStat.snapshot()
	s.DeleteCount, s.AvgDeleteNanos = e.deleteStat.snapshot()
	s.ScanCount, s.AvgScanNanos = e.scanStat.snapshot()
	if e.vectorIndex != nil {
		s.VectorCount = e.vectorIndex.Len()
	}
	return s
}

// Close flushes every dirty buffer-pool page, syncs and closes the WAL,
// closes every resident SSTable's backing mmap, and closes the manifest
// and disk files. Every exit path releases every held resource.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(e.bufferPool.FlushAllPages())
	record(e.disk.Sync())
	record(e.disk.Close())
	record(e.wal.Close())
	record(e.lsm.Close())
	record(e.manifest.Close())
	return firstErr
}
