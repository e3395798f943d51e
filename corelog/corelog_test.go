package corelog

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": Debug,
		"INFO":  Info,
		"warn":  Warn,
		"error": Error,
	}
	for in, want := range cases {
		got, ok := parseLevel(in)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := parseLevel("bogus"); ok {
		t.Fatalf("expected bogus level to fail parsing")
	}
}

func TestSetLevelGatesOutput(t *testing.T) {
	SetLevel(Error)
	if enabled(Debug) {
		t.Fatalf("debug should be disabled when threshold is Error")
	}
	if !enabled(Error) {
		t.Fatalf("error should be enabled when threshold is Error")
	}
	SetLevel(Info)
}
