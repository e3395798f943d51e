package coreengine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRepairSSTableTruncation(t *testing.T) {
	tmp := t.TempDir()
	inPath := filepath.Join(tmp, "sst_corrupt.sst")
	outPath := filepath.Join(tmp, "sst_repaired.sst")

	entries := []*Entry{
		newEntry([]byte("a"), []byte("1"), false),
		newEntry([]byte("b"), []byte("2"), false),
		newEntry([]byte("c"), []byte("3"), false),
	}
	if _, err := BuildSSTable(inPath, entries); err != nil {
		t.Fatalf("BuildSSTable: %v", err)
	}

	f, err := os.OpenFile(inPath, os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	stat, _ := f.Stat()
	if stat.Size() > 10 {
		if err := f.Truncate(stat.Size() - 10); err != nil {
			f.Close()
			t.Fatal(err)
		}
	}
	f.Close()

	count, err := RepairSSTable(inPath, outPath)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected to recover at least one entry")
	}

	sst, err := LoadSSTable(outPath)
	if err != nil {
		t.Fatalf("failed loading repaired sstable: %v", err)
	}
	defer sst.Close()

	if _, ok := sst.Get([]byte("a")); !ok {
		t.Fatalf("expected to find 'a' in repaired sstable")
	}
}

func TestRepairSSTableNoValidEntries(t *testing.T) {
	tmp := t.TempDir()
	inPath := filepath.Join(tmp, "empty.sst")
	outPath := filepath.Join(tmp, "out.sst")

	if err := os.WriteFile(inPath, []byte("SSTB"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := RepairSSTable(inPath, outPath); err == nil {
		t.Fatalf("expected an error for a header-only file with no entries")
	}
}
