package coreengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"syscall"

	natomic "github.com/natefinch/atomic"

	"github.com/oarkflow/coreengine/errs"
)

// sstableMagic identifies an SSTable file; sstableMaxFieldLen bounds
// key_len/value_len the way the WAL bounds its own fields.
const (
	sstableMagic       = "SSTB"
	sstableMaxFieldLen = 64 << 20
	// tombstoneSentinel marks a deleted entry in the value_len field. It can
	// never collide with a real value_len, which is capped at
	// sstableMaxFieldLen.
	tombstoneSentinel = 0xFFFFFFFF
)

// sstableEntry is one parsed on-disk record.
type sstableEntry struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// SSTable is an immutable sorted on-disk run: a header (magic, entry count,
// Bloom-filter blob) followed by key/value entries, fully loaded into
// memory at open time and searched by binary search.
type SSTable struct {
	path    string
	bloom   *BloomFilter
	entries []sstableEntry
	size    int64

	mmapData []byte

	bloomSaved    uint64
	bloomFalsePos uint64
}

// BuildSSTable sorts entries by key and writes them to path atomically (via
// temp-file-plus-rename). The caller owns naming: the leveled tree names
// files "level_N/sstable_<id>.sst" using the same id it records in the
// manifest.
func BuildSSTable(path string, entries []*Entry) (*SSTable, error) {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return compareKeys(sorted[i].Key, sorted[j].Key) < 0 })

	bf := NewBloomFilter(len(sorted), DefaultBloomFilterBits)
	for _, e := range sorted {
		bf.Add(e.Key)
	}
	bloomBlob := bf.Marshal()

	var buf bytes.Buffer
	buf.WriteString(sstableMagic)
	writeUint32(&buf, uint32(len(sorted)))
	writeUint32(&buf, uint32(len(bloomBlob)))
	buf.Write(bloomBlob)

	for _, e := range sorted {
		if len(e.Key) > sstableMaxFieldLen || len(e.Value) > sstableMaxFieldLen {
			return nil, errs.InvalidArgf("BuildSSTable", "key or value exceeds %d bytes", sstableMaxFieldLen)
		}
		writeUint32(&buf, uint32(len(e.Key)))
		if e.Deleted {
			writeUint32(&buf, tombstoneSentinel)
		} else {
			writeUint32(&buf, uint32(len(e.Value)))
		}
		buf.Write(e.Key)
		if !e.Deleted {
			buf.Write(e.Value)
		}
	}

	if err := natomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return nil, errs.IoErrorf("BuildSSTable", err)
	}

	return LoadSSTable(path)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

// LoadSSTable opens and parses an existing SSTable file, validating the
// magic and loading all entries into memory.
func LoadSSTable(path string) (*SSTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IoErrorf("LoadSSTable", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.IoErrorf("LoadSSTable", err)
	}
	size := info.Size()
	if size < 12 {
		return nil, errs.Corruptf("LoadSSTable", "file too short for header: %d bytes", size)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, errs.IoErrorf("LoadSSTable", err)
	}

	r := &byteReader{buf: data}
	magic, err := r.readN(4)
	if err != nil || string(magic) != sstableMagic {
		syscall.Munmap(data)
		return nil, errs.Corruptf("LoadSSTable", "bad magic in %s", path)
	}
	entryCount, err := r.readUint32()
	if err != nil {
		syscall.Munmap(data)
		return nil, errs.Corruptf("LoadSSTable", "truncated header: %v", err)
	}
	bloomSize, err := r.readUint32()
	if err != nil {
		syscall.Munmap(data)
		return nil, errs.Corruptf("LoadSSTable", "truncated header: %v", err)
	}
	var bf *BloomFilter
	if bloomSize > 0 {
		blob, err := r.readN(int(bloomSize))
		if err != nil {
			syscall.Munmap(data)
			return nil, errs.Corruptf("LoadSSTable", "truncated bloom blob: %v", err)
		}
		bf, err = UnmarshalBloomFilter(blob)
		if err != nil {
			syscall.Munmap(data)
			return nil, err
		}
	}

	entries := make([]sstableEntry, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		keyLen, err := r.readUint32()
		if err != nil {
			syscall.Munmap(data)
			return nil, errs.Corruptf("LoadSSTable", "truncated entry %d: %v", i, err)
		}
		valueLen, err := r.readUint32()
		if err != nil {
			syscall.Munmap(data)
			return nil, errs.Corruptf("LoadSSTable", "truncated entry %d: %v", i, err)
		}
		if keyLen > sstableMaxFieldLen || (valueLen != tombstoneSentinel && valueLen > sstableMaxFieldLen) {
			syscall.Munmap(data)
			return nil, errs.Corruptf("LoadSSTable", "entry %d field length exceeds sanity cap", i)
		}
		key, err := r.readN(int(keyLen))
		if err != nil {
			syscall.Munmap(data)
			return nil, errs.Corruptf("LoadSSTable", "truncated key at entry %d: %v", i, err)
		}
		deleted := valueLen == tombstoneSentinel
		var value []byte
		if !deleted {
			value, err = r.readN(int(valueLen))
			if err != nil {
				syscall.Munmap(data)
				return nil, errs.Corruptf("LoadSSTable", "truncated value at entry %d: %v", i, err)
			}
		}
		entries = append(entries, sstableEntry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...), Deleted: deleted})
	}

	return &SSTable{path: path, bloom: bf, entries: entries, mmapData: data, size: size}, nil
}

// Size returns the on-disk file size in bytes.
func (s *SSTable) Size() int64 { return s.size }

// Get performs a Bloom check then binary search; absent keys and tombstones
// both report "not found" to the caller.
func (s *SSTable) Get(key []byte) ([]byte, bool) {
	if s.bloom != nil && !s.bloom.MayContain(key) {
		atomic.AddUint64(&s.bloomSaved, 1)
		return nil, false
	}
	idx := sort.Search(len(s.entries), func(i int) bool {
		return compareKeys(s.entries[i].Key, key) >= 0
	})
	if idx >= len(s.entries) || compareKeys(s.entries[idx].Key, key) != 0 {
		if s.bloom != nil {
			atomic.AddUint64(&s.bloomFalsePos, 1)
		}
		return nil, false
	}
	e := s.entries[idx]
	if e.Deleted {
		return nil, false
	}
	return append([]byte(nil), e.Value...), true
}

// GetRaw returns the raw entry (including deleted state) for callers that
// need to distinguish a tombstone from absence, e.g. Engine.Get, which
// stops at the first tombstone it meets.
func (s *SSTable) GetRaw(key []byte) (sstableEntry, bool) {
	if s.bloom != nil && !s.bloom.MayContain(key) {
		atomic.AddUint64(&s.bloomSaved, 1)
		return sstableEntry{}, false
	}
	idx := sort.Search(len(s.entries), func(i int) bool {
		return compareKeys(s.entries[i].Key, key) >= 0
	})
	if idx >= len(s.entries) || compareKeys(s.entries[idx].Key, key) != 0 {
		if s.bloom != nil {
			atomic.AddUint64(&s.bloomFalsePos, 1)
		}
		return sstableEntry{}, false
	}
	return s.entries[idx], true
}

// Entries returns all entries in ascending key order, including tombstones.
func (s *SSTable) Entries() []sstableEntry {
	return s.entries
}

// KeyRange returns the smallest and largest key in the table.
func (s *SSTable) KeyRange() (min, max []byte) {
	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.entries[0].Key, s.entries[len(s.entries)-1].Key
}

func (s *SSTable) Path() string { return s.path }

// BloomStats reports how many lookups the filter short-circuited and how
// many times it said "maybe" for an absent key.
func (s *SSTable) BloomStats() (saved, falsePositives uint64) {
	return atomic.LoadUint64(&s.bloomSaved), atomic.LoadUint64(&s.bloomFalsePos)
}

func (s *SSTable) Close() error {
	if s.mmapData != nil {
		err := syscall.Munmap(s.mmapData)
		s.mmapData = nil
		return err
	}
	return nil
}

// byteReader is a tiny cursor over an mmap'd buffer.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("short read: need %d, have %d", n, len(r.buf)-r.pos)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *byteReader) readUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
