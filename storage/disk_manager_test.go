package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenEmptyFileInitializesHeaderPage(t *testing.T) {
	dir := t.TempDir()
	dm, err := Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dm.Close()

	var hdr Page
	if err := dm.ReadPage(HeaderPageID, &hdr); err != nil {
		t.Fatalf("ReadPage(header): %v", err)
	}
	if hdr.Type() != PageTypeHeader {
		t.Fatalf("expected header page type, got %v", hdr.Type())
	}
}

func TestWriteReadPageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dm, err := Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dm.Close()

	id := dm.AllocatePage()
	p := NewPage()
	p.SetPageID(id)
	copy(p.Data(), []byte("payload"))

	if err := dm.WritePage(id, p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	var out Page
	if err := dm.ReadPage(id, &out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(out.Data()[:7]) != "payload" {
		t.Fatalf("data mismatch: got %q", out.Data()[:7])
	}
}

func TestDirectIOWriteReadPageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dm, err := OpenWithOptions(filepath.Join(dir, "direct.db"), true)
	if err != nil {
		t.Fatalf("OpenWithOptions: %v", err)
	}
	defer dm.Close()

	id := dm.AllocatePage()
	p := NewPage()
	p.SetPageID(id)
	copy(p.Data(), []byte("direct-io-payload"))

	if err := dm.WritePage(id, p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	var out Page
	if err := dm.ReadPage(id, &out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(out.Data()[:17]) != "direct-io-payload" {
		t.Fatalf("data mismatch: got %q", out.Data()[:17])
	}
}

func TestOpenRejectsMisalignedFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.db")
	dm, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dm.Close()

	// Truncate the file to a non-multiple-of-PageSize length.
	if err := os.Truncate(path, PageSize+1); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatalf("expected corruption error for misaligned file size")
	}
}
