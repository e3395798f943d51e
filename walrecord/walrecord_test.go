package walrecord

import (
	"path/filepath"
	"testing"

	"github.com/oarkflow/coreengine/storage"
)

func TestLSNMonotonic(t *testing.T) {
	lm, err := Open(filepath.Join(t.TempDir(), "log.wal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lm.Close()

	l1, err := lm.AppendBegin(1)
	if err != nil {
		t.Fatalf("AppendBegin: %v", err)
	}
	l2, err := lm.AppendUpdate(1, l1, 5, 0, []byte("a"), []byte("b"))
	if err != nil {
		t.Fatalf("AppendUpdate: %v", err)
	}
	if l2 <= l1 {
		t.Fatalf("expected l2 > l1, got l1=%d l2=%d", l1, l2)
	}
}

func TestReplayInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.wal")
	lm, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	begin, _ := lm.AppendBegin(7)
	lm.AppendUpdate(7, begin, storage.PageID(2), 0, []byte{1}, []byte{2})
	lm.AppendCommit(7, begin)
	if err := lm.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	lm.Close()

	lm2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer lm2.Close()

	var types []RecordType
	var lastLSN storage.LSN
	err = lm2.Iterate(func(r Record) error {
		if r.LSN < lastLSN {
			t.Fatalf("non-monotonic replay: %d after %d", r.LSN, lastLSN)
		}
		lastLSN = r.LSN
		types = append(types, r.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(types) != 3 || types[0] != RecordBegin || types[1] != RecordUpdate || types[2] != RecordCommit {
		t.Fatalf("unexpected record sequence: %v", types)
	}
}
