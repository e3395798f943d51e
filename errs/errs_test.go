package errs

import (
	"errors"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := NotFoundf("Get", "key %q missing", "alpha")
	if !Is(err, NotFound) {
		t.Fatalf("expected NotFound kind")
	}
	if Is(err, Corruption) {
		t.Fatalf("did not expect Corruption kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := IoErrorf("WritePage", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to unwrap")
	}
}

func TestKindString(t *testing.T) {
	if Corruption.String() != "corruption" {
		t.Fatalf("unexpected Kind string: %s", Corruption.String())
	}
}
