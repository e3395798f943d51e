package storage

import "testing"

func TestChecksumRoundTrip(t *testing.T) {
	p := NewPage()
	p.SetPageID(7)
	p.SetPageLSN(42)
	copy(p.Data(), []byte("hello page"))
	p.UpdateChecksum()

	if !p.VerifyChecksum() {
		t.Fatalf("expected checksum to verify immediately after update")
	}

	var out Page
	out.CopyFrom(p)
	if !out.VerifyChecksum() {
		t.Fatalf("expected copied page to verify")
	}
	if string(out.Data()[:10]) != "hello page" {
		t.Fatalf("data mismatch after copy")
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	p := NewPage()
	p.SetPageID(3)
	p.UpdateChecksum()
	p.Data()[0] ^= 0xFF
	if p.VerifyChecksum() {
		t.Fatalf("expected checksum mismatch after corrupting data")
	}
}

func TestPinCountSaturatesAtZero(t *testing.T) {
	p := NewPage()
	p.DecPin()
	if p.PinCount() != 0 {
		t.Fatalf("expected pin count to saturate at 0, got %d", p.PinCount())
	}
	p.IncPin()
	p.IncPin()
	p.DecPin()
	if p.PinCount() != 1 {
		t.Fatalf("expected pin count 1, got %d", p.PinCount())
	}
}
