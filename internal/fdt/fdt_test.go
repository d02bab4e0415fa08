package fdt

import (
	"encoding/binary"
	"testing"
)

// buildBlob assembles a minimal but well-formed FDT blob with a single
// root node carrying one string property, for round-tripping through
// Parse/Tokens.
func buildBlob(t *testing.T) []byte {
	t.Helper()

	var structBlock []byte
	appendU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		structBlock = append(structBlock, b[:]...)
	}
	appendPadded := func(s string) {
		structBlock = append(structBlock, s...)
		structBlock = append(structBlock, 0)
		for len(structBlock)%4 != 0 {
			structBlock = append(structBlock, 0)
		}
	}

	appendU32(tokBeginNode)
	appendPadded("")
	appendU32(tokProp)
	appendU32(uint32(len("riscv")))
	appendU32(0) // name at strings offset 0: "compatible"
	appendPadded("riscv")
	appendU32(tokEndNode)
	appendU32(tokEnd)

	stringsBlock := append([]byte("compatible"), 0)

	header := make([]byte, headerSize)
	off := uint32(headerSize)
	binary.BigEndian.PutUint32(header[0:4], magic)
	binary.BigEndian.PutUint32(header[4:8], headerSize+uint32(len(structBlock))+uint32(len(stringsBlock)))
	binary.BigEndian.PutUint32(header[8:12], off)               // off_dt_struct
	binary.BigEndian.PutUint32(header[12:16], off+uint32(len(structBlock))) // off_dt_strings
	binary.BigEndian.PutUint32(header[16:20], 0)                 // off_mem_rsvmap
	binary.BigEndian.PutUint32(header[20:24], supportedVersion)
	binary.BigEndian.PutUint32(header[24:28], supportedVersion)
	binary.BigEndian.PutUint32(header[28:32], 0) // boot_cpuid_phys
	binary.BigEndian.PutUint32(header[32:36], uint32(len(stringsBlock)))
	binary.BigEndian.PutUint32(header[36:40], uint32(len(structBlock)))

	blob := append(header, structBlock...)
	blob = append(blob, stringsBlock...)
	return blob
}

func TestPeekTotalSizeMatchesBlobLength(t *testing.T) {
	blob := buildBlob(t)

	size, err := PeekTotalSize(blob[:headerSize])
	if err != nil {
		t.Fatalf("PeekTotalSize: %v", err)
	}
	if int(size) != len(blob) {
		t.Fatalf("got total size %d, want %d", size, len(blob))
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	blob := buildBlob(t)
	blob[0] = 0

	if _, err := Parse(blob); err == nil {
		t.Fatal("expected error for corrupted magic")
	}
}

func TestParseRejectsWrongVersion(t *testing.T) {
	blob := buildBlob(t)
	binary.BigEndian.PutUint32(blob[20:24], supportedVersion+1)

	if _, err := Parse(blob); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestTokensWalksNodeAndProp(t *testing.T) {
	blob := buildBlob(t)
	tree, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var kinds []TokenKind
	var propName string
	var propData []byte
	err = tree.Tokens(func(tok Token) bool {
		kinds = append(kinds, tok.Kind)
		if tok.Kind == Prop {
			propName = tok.Name
			propData = tok.Data
		}
		return true
	})
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}

	want := []TokenKind{BeginNode, Prop, EndNode, End}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(kinds), len(want), kinds)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("token %d: got kind %d, want %d", i, kinds[i], k)
		}
	}
	if propName != "compatible" {
		t.Fatalf("got prop name %q, want compatible", propName)
	}
	if string(propData) != "riscv" {
		t.Fatalf("got prop data %q, want riscv", propData)
	}
}

func TestTokensStopsWhenVisitReturnsFalse(t *testing.T) {
	blob := buildBlob(t)
	tree, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	count := 0
	tree.Tokens(func(tok Token) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("got %d tokens visited, want 1", count)
	}
}
