package coreengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oarkflow/coreengine/errs"
)

func TestWALReplayRebuildsMemTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := OpenWAL(path, SyncEveryWrite)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	if err := w.AppendPut([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("AppendPut: %v", err)
	}
	if err := w.AppendPut([]byte("k2"), []byte("v2")); err != nil {
		t.Fatalf("AppendPut: %v", err)
	}
	if err := w.AppendDelete([]byte("k1")); err != nil {
		t.Fatalf("AppendDelete: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mt := NewMemTable()
	err = Replay(path, "", func(recType byte, key, value []byte) error {
		switch recType {
		case walRecordPut:
			mt.Put(key, value)
		case walRecordDelete:
			mt.Delete(key)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if e := mt.Get([]byte("k1")); e == nil || !e.Deleted {
		t.Fatalf("expected k1 tombstoned after replay, got %+v", e)
	}
	if e := mt.Get([]byte("k2")); e == nil || e.Deleted || string(e.Value) != "v2" {
		t.Fatalf("expected k2=v2 after replay, got %+v", e)
	}
}

func TestWALReplayIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	w, err := OpenWAL(path, SyncEveryWrite)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	w.AppendPut([]byte("a"), []byte("1"))
	w.Close()

	apply := func(mt *MemTable) {
		Replay(path, "", func(recType byte, key, value []byte) error {
			if recType == walRecordPut {
				mt.Put(key, value)
			} else {
				mt.Delete(key)
			}
			return nil
		})
	}

	mt1 := NewMemTable()
	apply(mt1)
	mt2 := NewMemTable()
	apply(mt2)
	apply(mt2)

	e1 := mt1.Get([]byte("a"))
	e2 := mt2.Get([]byte("a"))
	if string(e1.Value) != string(e2.Value) {
		t.Fatalf("replaying twice produced a different value: %q vs %q", e1.Value, e2.Value)
	}
}

func TestWALReplayRejectsTruncatedRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	w, err := OpenWAL(path, SyncEveryWrite)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	if err := w.AppendPut([]byte("key"), []byte("a value long enough to cut")); err != nil {
		t.Fatalf("AppendPut: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	err = Replay(path, "", func(recType byte, key, value []byte) error { return nil })
	if err == nil {
		t.Fatalf("expected corruption error for a record cut mid-value")
	}
	if !errs.Is(err, errs.Corruption) {
		t.Fatalf("expected Corruption kind, got %v", err)
	}
}

func TestWALReplayRejectsUnknownRecordType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	if err := os.WriteFile(path, []byte{99, 0, 0, 0, 0, 0, 0, 0, 0}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err := Replay(path, "", func(recType byte, key, value []byte) error { return nil })
	if !errs.Is(err, errs.Corruption) {
		t.Fatalf("expected Corruption for unknown type byte, got %v", err)
	}
}
