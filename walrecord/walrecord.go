// Package walrecord implements the ARIES-style LogManager: an append-only
// log of Begin/Update/Commit/Abort/CLR records ordered by monotonic LSNs,
// used for page-level recovery. It is the secondary log surface described
// alongside the LSM's own write-ahead log; the LSM WAL is authoritative for
// the key/value path (see the root package's wal.go), so this log manager
// serves only page-level callers that opt into the ARIES protocol.
package walrecord

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/oarkflow/coreengine/errs"
	"github.com/oarkflow/coreengine/storage"
)

// RecordType enumerates the ARIES record kinds.
type RecordType uint8

const (
	RecordInvalid RecordType = iota
	RecordBegin
	RecordUpdate
	RecordCommit
	RecordAbort
	RecordCLR
)

// TxnID is a monotonic 64-bit transaction identifier.
type TxnID uint64

// Record is one physical ARIES log record.
type Record struct {
	Type    RecordType
	LSN     storage.LSN
	Txn     TxnID
	PrevLSN storage.LSN
	PageID  storage.PageID
	Offset  uint32
	Pre     []byte
	Post    []byte
}

// LogManager issues monotonic LSNs and appends ARIES records to an
// append-only file.
type LogManager struct {
	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	nextLSN uint64
	durable uint64
}

// Open opens or creates the log file at path, positioned for append.
func Open(path string) (*LogManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errs.IoErrorf("LogManager.Open", err)
	}
	lm := &LogManager{file: f, w: bufio.NewWriter(f), nextLSN: 1}
	// Continue numbering after the highest LSN already in the file.
	if err := lm.Iterate(func(r Record) error {
		if uint64(r.LSN) >= lm.nextLSN {
			lm.nextLSN = uint64(r.LSN) + 1
		}
		return nil
	}); err != nil {
		f.Close()
		return nil, err
	}
	return lm, nil
}

func (lm *LogManager) allocLSN() storage.LSN {
	return storage.LSN(atomic.AddUint64(&lm.nextLSN, 1) - 1)
}

func (lm *LogManager) append(rec Record) (storage.LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	rec.LSN = lm.allocLSN()
	if err := writeRecord(lm.w, rec); err != nil {
		return 0, errs.IoErrorf("LogManager.append", err)
	}
	return rec.LSN, nil
}

// AppendBegin starts a new transaction record.
func (lm *LogManager) AppendBegin(txn TxnID) (storage.LSN, error) {
	return lm.append(Record{Type: RecordBegin, Txn: txn})
}

// AppendUpdate records a page mutation with its pre- and post-images.
func (lm *LogManager) AppendUpdate(txn TxnID, prevLSN storage.LSN, pageID storage.PageID, offset uint32, pre, post []byte) (storage.LSN, error) {
	return lm.append(Record{
		Type: RecordUpdate, Txn: txn, PrevLSN: prevLSN,
		PageID: pageID, Offset: offset, Pre: pre, Post: post,
	})
}

// AppendCommit marks a transaction committed. The record is not considered
// durable until ForceFlush covers its LSN.
func (lm *LogManager) AppendCommit(txn TxnID, prevLSN storage.LSN) (storage.LSN, error) {
	return lm.append(Record{Type: RecordCommit, Txn: txn, PrevLSN: prevLSN})
}

// AppendAbort marks a transaction aborted.
func (lm *LogManager) AppendAbort(txn TxnID, prevLSN storage.LSN) (storage.LSN, error) {
	return lm.append(Record{Type: RecordAbort, Txn: txn, PrevLSN: prevLSN})
}

// AppendCLR appends a compensation log record during undo.
func (lm *LogManager) AppendCLR(txn TxnID, prevLSN storage.LSN, pageID storage.PageID, offset uint32, post []byte) (storage.LSN, error) {
	return lm.append(Record{Type: RecordCLR, Txn: txn, PrevLSN: prevLSN, PageID: pageID, Offset: offset, Post: post})
}

// ForceFlush makes all buffered records durable. Commit records are not
// considered committed by any caller until this returns successfully for
// an LSN at or beyond the commit's LSN (the write-ahead rule).
func (lm *LogManager) ForceFlush() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.w.Flush(); err != nil {
		return errs.IoErrorf("LogManager.ForceFlush", err)
	}
	if err := lm.file.Sync(); err != nil {
		return errs.IoErrorf("LogManager.ForceFlush", err)
	}
	atomic.StoreUint64(&lm.durable, atomic.LoadUint64(&lm.nextLSN))
	return nil
}

// Close flushes and closes the log file.
func (lm *LogManager) Close() error {
	if err := lm.ForceFlush(); err != nil {
		lm.file.Close()
		return err
	}
	return lm.file.Close()
}

// Iterate replays every durable record in LSN order, invoking fn for each.
// A truncated trailing record stops iteration without error, mirroring torn
// writes at a crash boundary; an unknown record type, an over-cap length
// field, or any other read failure is reported as corruption.
func (lm *LogManager) Iterate(fn func(Record) error) error {
	f, err := os.Open(lm.file.Name())
	if err != nil {
		return errs.IoErrorf("LogManager.Iterate", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return errs.Corruptf("LogManager.Iterate", "%v", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// wire format: type(1) lsn(8) txn(8) prevLSN(8) pageID(4) offset(4)
// preLen(4) pre postLen(4) post
func writeRecord(w io.Writer, r Record) error {
	hdr := make([]byte, 1+8+8+8+4+4+4)
	hdr[0] = byte(r.Type)
	binary.LittleEndian.PutUint64(hdr[1:], uint64(r.LSN))
	binary.LittleEndian.PutUint64(hdr[9:], uint64(r.Txn))
	binary.LittleEndian.PutUint64(hdr[17:], uint64(r.PrevLSN))
	binary.LittleEndian.PutUint32(hdr[25:], uint32(r.PageID))
	binary.LittleEndian.PutUint32(hdr[29:], r.Offset)
	binary.LittleEndian.PutUint32(hdr[33:], uint32(len(r.Pre)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.Write(r.Pre); err != nil {
		return err
	}
	var postLen [4]byte
	binary.LittleEndian.PutUint32(postLen[:], uint32(len(r.Post)))
	if _, err := w.Write(postLen[:]); err != nil {
		return err
	}
	_, err := w.Write(r.Post)
	return err
}

func readRecord(r *bufio.Reader) (Record, error) {
	hdr := make([]byte, 1+8+8+8+4+4+4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Record{}, err
	}
	rec := Record{
		Type:    RecordType(hdr[0]),
		LSN:     storage.LSN(binary.LittleEndian.Uint64(hdr[1:])),
		Txn:     TxnID(binary.LittleEndian.Uint64(hdr[9:])),
		PrevLSN: storage.LSN(binary.LittleEndian.Uint64(hdr[17:])),
		PageID:  storage.PageID(binary.LittleEndian.Uint32(hdr[25:])),
		Offset:  binary.LittleEndian.Uint32(hdr[29:]),
	}
	preLen := binary.LittleEndian.Uint32(hdr[33:])
	const sanityCap = 64 << 20
	if preLen > sanityCap {
		return Record{}, errs.Corruptf("walrecord.readRecord", "pre-image length %d exceeds sanity cap", preLen)
	}
	if preLen > 0 {
		rec.Pre = make([]byte, preLen)
		if _, err := io.ReadFull(r, rec.Pre); err != nil {
			return Record{}, io.ErrUnexpectedEOF
		}
	}
	var postLenBuf [4]byte
	if _, err := io.ReadFull(r, postLenBuf[:]); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}
	postLen := binary.LittleEndian.Uint32(postLenBuf[:])
	if postLen > sanityCap {
		return Record{}, errs.Corruptf("walrecord.readRecord", "post-image length %d exceeds sanity cap", postLen)
	}
	if postLen > 0 {
		rec.Post = make([]byte, postLen)
		if _, err := io.ReadFull(r, rec.Post); err != nil {
			return Record{}, io.ErrUnexpectedEOF
		}
	}
	if rec.Type == RecordInvalid || rec.Type > RecordCLR {
		return Record{}, errs.Corruptf("walrecord.readRecord", "unknown record type %d", rec.Type)
	}
	return rec, nil
}
