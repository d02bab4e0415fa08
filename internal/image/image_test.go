package image

import "testing"

func TestTableLookupReturnsStoredBytes(t *testing.T) {
	table := NewTable(map[string][]byte{"shell": {1, 2, 3}}, []string{"shell"})

	got, ok := table.Lookup("shell")
	if !ok || string(got) != string([]byte{1, 2, 3}) {
		t.Fatalf("got %v, %v; want [1 2 3], true", got, ok)
	}
}

func TestTableLookupMissingReturnsFalse(t *testing.T) {
	table := NewTable(map[string][]byte{}, nil)

	if _, ok := table.Lookup("missing"); ok {
		t.Fatal("expected lookup of missing program to fail")
	}
}

func TestTableNamesPreservesOrder(t *testing.T) {
	table := NewTable(map[string][]byte{"a": {0}, "b": {0}}, []string{"b", "a"})

	names := table.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("got %v, want [b a]", names)
	}
}
