package coreengine

import (
	"path/filepath"
	"testing"
)

func TestManifestReplayLiveSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	m, err := OpenManifest(path)
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	if err := m.AddSSTable(1, 0); err != nil {
		t.Fatalf("AddSSTable: %v", err)
	}
	if err := m.AddSSTable(2, 0); err != nil {
		t.Fatalf("AddSSTable: %v", err)
	}
	if err := m.AddSSTable(3, 1); err != nil {
		t.Fatalf("AddSSTable: %v", err)
	}
	if err := m.RemoveSSTables([]uint64{2}); err != nil {
		t.Fatalf("RemoveSSTables: %v", err)
	}

	ids, levels, err := m.LiveSet()
	if err != nil {
		t.Fatalf("LiveSet: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected live set: %v", ids)
	}
	if levels[1] != 0 || levels[3] != 1 {
		t.Fatalf("unexpected levels: %v", levels)
	}
}

func TestManifestLiveSetIndependentOfInterleaving(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	m, err := OpenManifest(path)
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	m.AddSSTable(10, 0)
	m.RemoveSSTables([]uint64{10})
	m.AddSSTable(10, 0)

	ids, _, err := m.LiveSet()
	if err != nil {
		t.Fatalf("LiveSet: %v", err)
	}
	if len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("expected id 10 live after re-add, got %v", ids)
	}
}

func TestManifestRejectsUnknownToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	m, err := OpenManifest(path)
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	m.file.WriteString("BOGUS 1\n")
	m.file.Sync()

	if _, _, err := m.LiveSet(); err == nil {
		t.Fatalf("expected corruption error for unknown command token")
	}
	m.Close()
}
