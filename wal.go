package coreengine

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/coreengine/corelog"
	"github.com/oarkflow/coreengine/errs"
)

// WAL record types, per the on-disk format: u8 type || u32 key_len ||
// u32 value_len || key_bytes || value_bytes. Delete records carry
// value_len == 0.
const (
	walRecordPut    byte = 1
	walRecordDelete byte = 2

	// walMaxFieldLen is the 64 MiB sanity cap on key_len/value_len.
	walMaxFieldLen = 64 << 20
)

// SyncMode controls the WAL durability/performance trade-off.
type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncEveryWrite
	SyncPeriodic
)

// WAL is the LSM-side write-ahead log: a simple append-only record stream,
// replayed on Open to rebuild the MemTable. It is the authoritative durable
// log for the key/value path; the ARIES-style walrecord.LogManager is a
// separate, secondary surface for page-level callers (see walrecord).
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	w        *bufio.Writer
	path     string
	syncMode SyncMode

	rotationThreshold int64
	archiveDir        string
	bytesWritten      int64

	periodicTicker *time.Ticker
	stopPeriodic   chan struct{}
	closed         bool
}

// OpenWAL opens or creates the WAL file at path for append.
func OpenWAL(path string, mode SyncMode) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errs.IoErrorf("OpenWAL", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.IoErrorf("OpenWAL", err)
	}
	w := &WAL{
		file:         f,
		w:            bufio.NewWriter(f),
		path:         path,
		syncMode:     mode,
		bytesWritten: info.Size(),
	}
	if mode == SyncPeriodic {
		w.periodicTicker = time.NewTicker(200 * time.Millisecond)
		w.stopPeriodic = make(chan struct{})
		go w.periodicSyncLoop()
	}
	return w, nil
}

// EnableRotation turns on size-triggered rotation: once the live WAL
// exceeds thresholdBytes, the next AppendPut/AppendDelete archives the
// current file under archiveDir with a uuid-suffixed name and starts fresh.
func (w *WAL) EnableRotation(thresholdBytes int64, archiveDir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if thresholdBytes > 0 {
		if err := os.MkdirAll(archiveDir, 0755); err != nil {
			return errs.IoErrorf("WAL.EnableRotation", err)
		}
	}
	w.rotationThreshold = thresholdBytes
	w.archiveDir = archiveDir
	return nil
}

func (w *WAL) periodicSyncLoop() {
	for {
		select {
		case <-w.periodicTicker.C:
			w.mu.Lock()
			if !w.closed {
				if err := w.flushLocked(); err != nil {
					corelog.Warnf("wal: periodic sync failed: %v", err)
				}
			}
			w.mu.Unlock()
		case <-w.stopPeriodic:
			return
		}
	}
}

func encodeRecord(recType byte, key, value []byte) ([]byte, error) {
	if len(key) > walMaxFieldLen || len(value) > walMaxFieldLen {
		return nil, errs.InvalidArgf("WAL.encodeRecord", "key or value exceeds %d bytes", walMaxFieldLen)
	}
	buf := make([]byte, 1+4+4+len(key)+len(value))
	buf[0] = recType
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(value)))
	copy(buf[9:], key)
	copy(buf[9+len(key):], value)
	return buf, nil
}

func (w *WAL) appendLocked(recType byte, key, value []byte) error {
	if w.closed {
		return errs.Internalf("WAL.append", "wal is closed")
	}
	if err := w.maybeRotateLocked(); err != nil {
		return err
	}
	rec, err := encodeRecord(recType, key, value)
	if err != nil {
		return err
	}
	n, err := w.w.Write(rec)
	if err != nil {
		return errs.IoErrorf("WAL.append", err)
	}
	w.bytesWritten += int64(n)
	return nil
}

func (w *WAL) maybeRotateLocked() error {
	if w.rotationThreshold <= 0 || w.bytesWritten < w.rotationThreshold {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return errs.IoErrorf("WAL.rotate", err)
	}
	// The zero-padded timestamp prefix makes Replay's name sort chronological.
	archived := filepath.Join(w.archiveDir, fmt.Sprintf("wal-%020d-%s.log", time.Now().UnixNano(), uuid.NewString()))
	if err := os.Rename(w.path, archived); err != nil {
		return errs.IoErrorf("WAL.rotate", err)
	}
	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errs.IoErrorf("WAL.rotate", err)
	}
	w.file = f
	w.w = bufio.NewWriter(f)
	w.bytesWritten = 0
	return nil
}

func (w *WAL) flushLocked() error {
	if err := w.w.Flush(); err != nil {
		return errs.IoErrorf("WAL.flush", err)
	}
	if err := w.file.Sync(); err != nil {
		return errs.IoErrorf("WAL.flush", err)
	}
	return nil
}

// AppendPut appends a Put record and hands it to the OS before returning.
// It is synced to stable storage before returning only in SyncEveryWrite
// mode; SyncPeriodic syncs on a 200ms ticker and SyncNone never forces one.
func (w *WAL) AppendPut(key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appendLocked(walRecordPut, key, value); err != nil {
		return err
	}
	if w.syncMode == SyncEveryWrite {
		return w.flushLocked()
	}
	return w.w.Flush()
}

// AppendDelete appends a Delete record (value_len = 0) with the same
// per-SyncMode durability as AppendPut.
func (w *WAL) AppendDelete(key []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appendLocked(walRecordDelete, key, nil); err != nil {
		return err
	}
	if w.syncMode == SyncEveryWrite {
		return w.flushLocked()
	}
	return w.w.Flush()
}

// AppendPutDeferred appends a Put record without forcing a sync, for use
// only while a caller-managed batch (BeginBatch/EndBatch) is open; the
// caller is responsible for syncing before the batch is considered durable.
func (w *WAL) AppendPutDeferred(key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appendLocked(walRecordPut, key, value); err != nil {
		return err
	}
	return w.w.Flush()
}

// AppendDeleteDeferred is AppendDelete without the forced sync.
func (w *WAL) AppendDeleteDeferred(key []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appendLocked(walRecordDelete, key, nil); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteBatch appends every entry's record with a single sync at the end,
// used by BatchWriter's group commit.
func (w *WAL) WriteBatch(entries []*Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		recType := walRecordPut
		value := e.Value
		if e.Deleted {
			recType = walRecordDelete
			value = nil
		}
		if err := w.appendLocked(recType, e.Key, value); err != nil {
			return err
		}
	}
	return w.flushLocked()
}

// Sync forces any buffered records to stable storage without appending.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close flushes, syncs, and closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.periodicTicker != nil {
		w.periodicTicker.Stop()
		close(w.stopPeriodic)
	}
	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Replay invokes fn in append order for every record in path plus any
// rotated archives (oldest first), reconstructing the full logical history.
// Truncation or corruption mid-record is reported; the state before Open is
// never mutated on replay failure.
func Replay(path, archiveDir string, fn func(recType byte, key, value []byte) error) error {
	var files []string
	if archiveDir != "" {
		matches, _ := filepath.Glob(filepath.Join(archiveDir, "wal-*.log"))
		sort.Strings(matches)
		files = append(files, matches...)
	}
	if _, err := os.Stat(path); err == nil {
		files = append(files, path)
	}

	for _, p := range files {
		if err := replayFile(p, fn); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, fn func(recType byte, key, value []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.IoErrorf("WAL.Replay", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		recType, err := r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errs.Corruptf("WAL.Replay", "short read on record type: %v", err)
		}
		if recType != walRecordPut && recType != walRecordDelete {
			return errs.Corruptf("WAL.Replay", "unknown record type byte %d", recType)
		}

		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return errs.Corruptf("WAL.Replay", "truncated length fields: %v", err)
		}
		keyLen := binary.LittleEndian.Uint32(lenBuf[0:4])
		valueLen := binary.LittleEndian.Uint32(lenBuf[4:8])
		if keyLen > walMaxFieldLen || valueLen > walMaxFieldLen {
			return errs.Corruptf("WAL.Replay", "field length exceeds sanity cap")
		}

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return errs.Corruptf("WAL.Replay", "truncated key: %v", err)
		}
		var value []byte
		if valueLen > 0 {
			value = make([]byte, valueLen)
			if _, err := io.ReadFull(r, value); err != nil {
				return errs.Corruptf("WAL.Replay", "truncated value: %v", err)
			}
		}

		if err := fn(recType, key, value); err != nil {
			return err
		}
	}
}
