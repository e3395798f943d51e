package coreengine

import (
	"hash/crc32"
	"sync"
	"time"
)

// BatchWriter is a streaming group-commit helper: Put/Delete accumulate
// locally and flush together once maxSize entries are pending, amortizing
// the WAL sync across many writes the way Engine.BeginBatch/EndBatch does
// for a caller-delimited span.
type BatchWriter struct {
	engine  *Engine
	entries []Entry
	mutex   sync.Mutex
	maxSize int
	crcBuf  []byte
}

// NewBatchWriter returns a BatchWriter bound to e that auto-flushes once
// maxSize entries accumulate.
func (e *Engine) NewBatchWriter(maxSize int) *BatchWriter {
	return &BatchWriter{
		engine:  e,
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
		crcBuf:  make([]byte, 0, 4096),
	}
}

func (bw *BatchWriter) Put(key, value []byte) error {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()

	bw.entries = append(bw.entries, Entry{
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
		Timestamp: uint64(time.Now().UnixNano()),
		Deleted:   false,
	})

	idx := len(bw.entries) - 1
	entry := &bw.entries[idx]
	bw.crcBuf = append(bw.crcBuf[:0], entry.Key...)
	bw.crcBuf = append(bw.crcBuf, entry.Value...)
	entry.checksum = crc32.ChecksumIEEE(bw.crcBuf)

	if len(bw.entries) >= bw.maxSize {
		return bw.flushUnsafe()
	}
	return nil
}

func (bw *BatchWriter) Delete(key []byte) error {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()

	bw.entries = append(bw.entries, Entry{
		Key:       append([]byte(nil), key...),
		Value:     nil,
		Timestamp: uint64(time.Now().UnixNano()),
		Deleted:   true,
	})

	idx := len(bw.entries) - 1
	entry := &bw.entries[idx]
	bw.crcBuf = append(bw.crcBuf[:0], entry.Key...)
	entry.checksum = crc32.ChecksumIEEE(bw.crcBuf)

	if len(bw.entries) >= bw.maxSize {
		return bw.flushUnsafe()
	}
	return nil
}

func (bw *BatchWriter) Flush() error {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()
	return bw.flushUnsafe()
}

func (bw *BatchWriter) Cancel() {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()
	bw.entries = bw.entries[:0]
}

func (bw *BatchWriter) flushUnsafe() error {
	if len(bw.entries) == 0 {
		return nil
	}

	ptrs := make([]*Entry, len(bw.entries))
	for i := range bw.entries {
		ptrs[i] = &bw.entries[i]
	}

	e := bw.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.WriteBatch(ptrs); err != nil {
		return err
	}

	for i := range bw.entries {
		entry := &bw.entries[i]
		if entry.Deleted {
			e.memTable.Delete(entry.Key)
			e.deletePageHint(entry.Key)
			if e.valueCache != nil {
				e.valueCache.Remove(string(entry.Key))
			}
		} else {
			e.memTable.Put(entry.Key, entry.Value)
			e.putPageHint(entry.Key, entry.Value)
			if e.valueCache != nil {
				e.valueCache.Put(string(entry.Key), entry.Value)
			}
		}
	}

	if err := e.maybeFlushAndCompactLocked(); err != nil {
		return err
	}

	bw.entries = bw.entries[:0]
	return nil
}
