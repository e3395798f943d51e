package coreengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/oarkflow/coreengine/errs"
)

// Defaults for the leveled tree's trigger and sizing rules. base is the
// byte budget of L1; L(i) is budgeted base * 10^(i-1).
const (
	DefaultL0CompactionTrigger = 4
	DefaultBaseLevelBytes      = 10 << 20
	defaultTargetOutputBytes   = 2 << 20
)

// level is one tier of the tree: L0 holds overlapping SSTables ordered
// newest-first; L1..Ln hold pairwise key-disjoint SSTables in ascending
// key-range order.
type level struct {
	sstables []*SSTable
}

func (lv *level) totalBytes() int64 {
	var total int64
	for _, s := range lv.sstables {
		total += s.Size()
	}
	return total
}

// LeveledLSM owns the on-disk directory tree of level_N subdirectories,
// assigns sequential SSTable ids, and performs L0->L1 and Li->Li+1
// compaction per the recency and tombstone-dropping rules.
type LeveledLSM struct {
	mu         sync.Mutex
	dir        string
	levels     []*level
	nextID     uint64
	l0Trigger  int
	baseBytes  int64
	targetSize int64
}

// NewLeveledLSM creates (if absent) the root directory and an empty L0.
func NewLeveledLSM(dir string) (*LeveledLSM, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.IoErrorf("NewLeveledLSM", err)
	}
	return &LeveledLSM{
		dir:        dir,
		levels:     []*level{{}},
		nextID:     1,
		l0Trigger:  DefaultL0CompactionTrigger,
		baseBytes:  DefaultBaseLevelBytes,
		targetSize: defaultTargetOutputBytes,
	}, nil
}

// SetTuning overrides the L0 compaction trigger and the L1 byte budget
// (deeper levels scale from it by the 10x rule). Non-positive arguments
// leave the corresponding default in place.
func (t *LeveledLSM) SetTuning(l0Trigger int, baseBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l0Trigger > 0 {
		t.l0Trigger = l0Trigger
	}
	if baseBytes > 0 {
		t.baseBytes = baseBytes
	}
}

// NextID hands out the next sequential SSTable id, used both for the
// output file name and for the manifest record.
func (t *LeveledLSM) NextID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	return id
}

// SetNextID restores the id counter during recovery, so freshly-assigned
// ids never collide with ids already live in the manifest.
func (t *LeveledLSM) SetNextID(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= t.nextID {
		t.nextID = n + 1
	}
}

func (t *LeveledLSM) levelDir(i int) string {
	return filepath.Join(t.dir, fmt.Sprintf("level_%d", i))
}

// SSTablePath returns the conventional path for an SSTable id at a level.
func (t *LeveledLSM) SSTablePath(level, id int) string {
	return filepath.Join(t.levelDir(level), fmt.Sprintf("sstable_%d.sst", id))
}

func (t *LeveledLSM) ensureLevelLocked(i int) {
	for len(t.levels) <= i {
		t.levels = append(t.levels, &level{})
	}
}

// AddL0SSTable registers sst as the newest L0 run.
func (t *LeveledLSM) AddL0SSTable(sst *SSTable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels[0].sstables = append([]*SSTable{sst}, t.levels[0].sstables...)
}

// AddRecovered places an already-loaded SSTable at a known level during
// manifest-driven recovery, preserving L0's newest-first convention by
// assuming ids increase with recency.
func (t *LeveledLSM) AddRecovered(sst *SSTable, lvl int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLevelLocked(lvl)
	if lvl == 0 {
		l0 := append(t.levels[0].sstables, sst)
		sort.SliceStable(l0, func(i, j int) bool { return idFromPath(l0[i].Path()) > idFromPath(l0[j].Path()) })
		t.levels[0].sstables = l0
	} else {
		t.levels[lvl].sstables = append(t.levels[lvl].sstables, sst)
		sortLevelByKey(t.levels[lvl])
	}
}

func sortLevelByKey(lv *level) {
	sort.Slice(lv.sstables, func(i, j int) bool {
		minI, _ := lv.sstables[i].KeyRange()
		minJ, _ := lv.sstables[j].KeyRange()
		return compareKeys(minI, minJ) < 0
	})
}

// GetAllSSTables returns SSTables in read lookup order: L0 newest-to-oldest,
// then L1..Ln in their stored (disjoint, ascending) order.
func (t *LeveledLSM) GetAllSSTables() []*SSTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*SSTable
	for _, lv := range t.levels {
		out = append(out, lv.sstables...)
	}
	return out
}

// Close unmaps every resident SSTable's backing mmap, returning the first
// error encountered while closing the rest.
func (t *LeveledLSM) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, lv := range t.levels {
		for _, sst := range lv.sstables {
			if err := sst.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (t *LeveledLSM) maxBytes(i int) int64 {
	b := t.baseBytes
	for n := 1; n < i; n++ {
		b *= 10
	}
	return b
}

func rangesOverlap(minA, maxA, minB, maxB []byte) bool {
	return compareKeys(maxA, minB) >= 0 && compareKeys(maxB, minA) >= 0
}

func unionRange(sstables []*SSTable) (min, max []byte) {
	for i, s := range sstables {
		smin, smax := s.KeyRange()
		if i == 0 {
			min, max = smin, smax
			continue
		}
		if compareKeys(smin, min) < 0 {
			min = smin
		}
		if compareKeys(smax, max) > 0 {
			max = smax
		}
	}
	return min, max
}

// mergeNewestWins flattens entries from inputs (ordered newest source
// first) into one ascending-key slice, keeping only the newest-source copy
// of each key. dropTombstones discards tombstones from the final output,
// valid only when compacting into the deepest currently existing level.
func mergeNewestWins(inputs []*SSTable, dropTombstones bool) []sstableEntry {
	best := make(map[string]sstableEntry, 1024)
	seen := make(map[string]bool, 1024)
	for _, sst := range inputs {
		for _, e := range sst.Entries() {
			k := string(e.Key)
			if seen[k] {
				continue
			}
			seen[k] = true
			best[k] = e
		}
	}
	out := make([]sstableEntry, 0, len(best))
	for _, e := range best {
		if dropTombstones && e.Deleted {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return compareKeys(out[i].Key, out[j].Key) < 0 })
	return out
}

func (t *LeveledLSM) writeOutputs(merged []sstableEntry, lvl int) ([]*SSTable, error) {
	if len(merged) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(t.levelDir(lvl), 0755); err != nil {
		return nil, errs.IoErrorf("LeveledLSM.writeOutputs", err)
	}

	var outputs []*SSTable
	var chunk []*Entry
	var chunkBytes int64
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		id := t.NextID()
		path := t.SSTablePath(lvl, int(id))
		sst, err := BuildSSTable(path, chunk)
		if err != nil {
			return err
		}
		outputs = append(outputs, sst)
		chunk = nil
		chunkBytes = 0
		return nil
	}

	for _, e := range merged {
		entry := &Entry{Key: e.Key, Value: e.Value, Deleted: e.Deleted}
		chunk = append(chunk, entry)
		chunkBytes += int64(len(e.Key) + len(e.Value))
		if chunkBytes >= t.targetSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// MaybeCompact checks L0 then L1..Ln in order and performs at most one
// compaction per call, returning the ids added and removed so the caller
// can apply them to the manifest in that order.
func (t *LeveledLSM) MaybeCompact() (added []uint64, removed []uint64, err error) {
	t.mu.Lock()
	l0Count := len(t.levels[0].sstables)
	t.mu.Unlock()

	if l0Count >= t.l0Trigger {
		return t.compactL0()
	}

	t.mu.Lock()
	depth := len(t.levels)
	t.mu.Unlock()
	for i := 1; i < depth; i++ {
		t.mu.Lock()
		size := t.levels[i].totalBytes()
		limit := t.maxBytes(i)
		t.mu.Unlock()
		if size > limit {
			return t.compactLevel(i)
		}
	}
	return nil, nil, nil
}

func (t *LeveledLSM) compactL0() ([]uint64, []uint64, error) {
	t.mu.Lock()
	l0 := t.levels[0].sstables
	t.ensureLevelLocked(1)
	l1 := t.levels[1].sstables
	t.mu.Unlock()

	if len(l0) == 0 {
		return nil, nil, nil
	}
	lo, hi := unionRange(l0)

	var overlapping, keep []*SSTable
	for _, s := range l1 {
		smin, smax := s.KeyRange()
		if rangesOverlap(smin, smax, lo, hi) {
			overlapping = append(overlapping, s)
		} else {
			keep = append(keep, s)
		}
	}

	inputs := append(append([]*SSTable{}, l0...), overlapping...)

	t.mu.Lock()
	isDeepest := len(t.levels) == 2
	t.mu.Unlock()
	merged := mergeNewestWins(inputs, isDeepest)

	outputs, err := t.writeOutputs(merged, 1)
	if err != nil {
		return nil, nil, err
	}

	var removed []uint64
	for _, s := range l0 {
		removed = append(removed, idFromPath(s.Path()))
		s.Close()
	}
	for _, s := range overlapping {
		removed = append(removed, idFromPath(s.Path()))
		s.Close()
	}

	var added []uint64
	for _, s := range outputs {
		added = append(added, idFromPath(s.Path()))
	}

	t.mu.Lock()
	t.levels[0].sstables = nil
	newL1 := append(keep, outputs...)
	sortLevelByKey(&level{sstables: newL1})
	t.levels[1].sstables = newL1
	t.mu.Unlock()

	return added, removed, nil
}

// compactLevel picks the lowest-key oldest SSTable in Li (policy: the
// level is stored in ascending key order, so index 0 is the pick) and
// merges it with every overlapping SSTable in L(i+1).
func (t *LeveledLSM) compactLevel(i int) ([]uint64, []uint64, error) {
	t.mu.Lock()
	src := t.levels[i].sstables
	if len(src) == 0 {
		t.mu.Unlock()
		return nil, nil, nil
	}
	pick := src[0]
	t.ensureLevelLocked(i + 1)
	next := t.levels[i+1].sstables
	t.mu.Unlock()

	pmin, pmax := pick.KeyRange()
	var overlapping, keepNext []*SSTable
	for _, s := range next {
		smin, smax := s.KeyRange()
		if rangesOverlap(smin, smax, pmin, pmax) {
			overlapping = append(overlapping, s)
		} else {
			keepNext = append(keepNext, s)
		}
	}

	inputs := append([]*SSTable{pick}, overlapping...)

	t.mu.Lock()
	isDeepest := len(t.levels) == i+2
	t.mu.Unlock()
	merged := mergeNewestWins(inputs, isDeepest)

	outputs, err := t.writeOutputs(merged, i+1)
	if err != nil {
		return nil, nil, err
	}

	removed := []uint64{idFromPath(pick.Path())}
	pick.Close()
	for _, s := range overlapping {
		removed = append(removed, idFromPath(s.Path()))
		s.Close()
	}
	var added []uint64
	for _, s := range outputs {
		added = append(added, idFromPath(s.Path()))
	}

	t.mu.Lock()
	remaining := src[1:]
	t.levels[i].sstables = remaining
	newNext := append(keepNext, outputs...)
	sortLevelByKey(&level{sstables: newNext})
	t.levels[i+1].sstables = newNext
	t.mu.Unlock()

	return added, removed, nil
}

// idFromPath recovers the sequential id encoded in a "sstable_<id>.sst"
// path, for reporting compaction results back to the manifest.
func idFromPath(path string) uint64 {
	base := filepath.Base(path)
	var id uint64
	fmt.Sscanf(base, "sstable_%d.sst", &id)
	return id
}
