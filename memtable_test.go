package coreengine

import "testing"

func TestMemTableSortOrder(t *testing.T) {
	mt := NewMemTable()
	keys := []string{"delta", "alpha", "charlie", "bravo"}
	for _, k := range keys {
		mt.Put([]byte(k), []byte("v"))
	}

	entries := mt.SortedIterator()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if compareKeys(entries[i-1].Key, entries[i].Key) >= 0 {
			t.Fatalf("entries not strictly ascending at index %d: %s >= %s", i, entries[i-1].Key, entries[i].Key)
		}
	}
}

func TestMemTablePutGetDelete(t *testing.T) {
	mt := NewMemTable()
	mt.Put([]byte("k"), []byte("v1"))
	if e := mt.Get([]byte("k")); e == nil || e.Deleted || string(e.Value) != "v1" {
		t.Fatalf("expected v1, got %+v", e)
	}

	mt.Delete([]byte("k"))
	e := mt.Get([]byte("k"))
	if e == nil || !e.Deleted {
		t.Fatalf("expected tombstone entry, got %+v", e)
	}
}

func TestMemTableReplaceAdjustsSize(t *testing.T) {
	mt := NewMemTable()
	mt.Put([]byte("k"), []byte("short"))
	s1 := mt.Size()
	mt.Put([]byte("k"), []byte("a much longer value"))
	s2 := mt.Size()
	if s2 <= s1 {
		t.Fatalf("expected size to grow after replacing with a longer value: %d -> %d", s1, s2)
	}

	// Single key, replaced in place: exactly one entry.
	entries := mt.SortedIterator()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", len(entries))
	}
}
