package debug

import (
	"strings"
	"testing"
)

type dumpTarget struct {
	Name  string
	Rules map[string]int
}

func TestDump_IsStable(t *testing.T) {
	v := &dumpTarget{Name: "lobby", Rules: map[string]int{"b": 2, "a": 1, "c": 3}}

	first := Dump(v)
	for i := 0; i < 10; i++ {
		if got := Dump(v); got != first {
			t.Fatalf("Dump() is non-deterministic:\n%s\nvs\n%s", first, got)
		}
	}
	if strings.Contains(first, "0x") {
		t.Errorf("expected pointer addresses to be omitted, got:\n%s", first)
	}
	if strings.Index(first, `"a"`) > strings.Index(first, `"b"`) {
		t.Errorf("expected map keys to be sorted, got:\n%s", first)
	}
}
