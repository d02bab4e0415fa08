// Package fdt parses the flattened device tree blob the SBI firmware
// hands the kernel at boot, grounded directly on original_source's
// src/kernel/src/device_tree.rs: the same magic/version check, the same
// structure-block token walk (FDT_BEGIN_NODE/FDT_PROP/FDT_END_NODE/
// FDT_END), and the same strings-block lookup by offset. Translated from
// a zero-copy &[u8] reader over a live pointer into a zero-copy reader
// over a []byte, since the boot blob is handed to Go the same way it was
// handed to the original: a single contiguous byte region whose lifetime
// outlives kernel_init.
package fdt

import (
	"encoding/binary"
	"fmt"
)

const magic = 0xd00dfeed
const supportedVersion = 17

const headerSize = 40 // 10 big-endian uint32 fields

// PeekTotalSize reads just the totalsize field out of a header-sized
// prefix of the blob, letting a caller size the full []byte it then
// hands to Parse without knowing the blob's length up front (the boot
// loader hands kernel_init nothing but a pointer).
func PeekTotalSize(headerPrefix []byte) (uint32, error) {
	if len(headerPrefix) < headerSize {
		return 0, fmt.Errorf("fdt: header prefix too small (%d bytes)", len(headerPrefix))
	}
	return binary.BigEndian.Uint32(headerPrefix[4:8]), nil
}

// TokenKind identifies one structure-block token.
type TokenKind int

const (
	BeginNode TokenKind = iota
	EndNode
	Prop
	Nop
	End
)

const (
	tokBeginNode = 0x1
	tokEndNode   = 0x2
	tokProp      = 0x3
	tokNop       = 0x4
	tokEnd       = 0x9
)

// Token is one item yielded by walking the structure block.
type Token struct {
	Kind TokenKind
	Name string // BeginNode's node name, or Prop's property name
	Data []byte // Prop's raw value
}

// Tree is a parsed device tree header plus the byte ranges its
// structure and strings blocks live in, ready to be walked.
type Tree struct {
	raw []byte

	structOff, structSize uint32
	stringsOff            uint32
	stringsSize           uint32
}

// Parse validates the blob's magic and version and records the
// structure/strings block locations, mirroring device_tree::parse.
func Parse(raw []byte) (*Tree, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("fdt: blob too small for header (%d bytes)", len(raw))
	}
	fields := readHeaderFields(raw)
	if fields[0] != magic {
		return nil, fmt.Errorf("fdt: bad magic %#x, want %#x", fields[0], magic)
	}
	if fields[5] != supportedVersion {
		return nil, fmt.Errorf("fdt: unsupported version %d, want %d", fields[5], supportedVersion)
	}

	return &Tree{
		raw:         raw,
		structOff:   fields[2],
		structSize:  fields[9],
		stringsOff:  fields[3],
		stringsSize: fields[8],
	}, nil
}

// readHeaderFields reads the 10 big-endian uint32 header fields in
// declaration order: magic, totalsize, off_dt_struct, off_dt_strings,
// off_mem_rsvmap, version, last_comp_version, boot_cpuid_phys,
// size_dt_strings, size_dt_struct.
func readHeaderFields(raw []byte) [10]uint32 {
	var fields [10]uint32
	for i := range fields {
		fields[i] = binary.BigEndian.Uint32(raw[i*4 : i*4+4])
	}
	return fields
}

func (t *Tree) string(offset uint32) (string, error) {
	if offset >= t.stringsSize {
		return "", fmt.Errorf("fdt: string offset %d out of range", offset)
	}
	start := t.stringsOff + offset
	end := start
	for end < uint32(len(t.raw)) && t.raw[end] != 0 {
		end++
	}
	return string(t.raw[start:end]), nil
}

// Tokens walks the structure block, calling visit for every token until
// visit returns false, an error occurs, or FDT_END is reached.
func (t *Tree) Tokens(visit func(Token) bool) error {
	pos := t.structOff
	end := t.structOff + t.structSize

	for pos < end {
		if pos+4 > uint32(len(t.raw)) {
			return fmt.Errorf("fdt: structure block truncated at offset %d", pos)
		}
		tokenValue := binary.BigEndian.Uint32(t.raw[pos : pos+4])
		pos += 4

		var tok Token
		switch tokenValue {
		case tokBeginNode:
			name, consumed := readCString(t.raw[pos:])
			tok = Token{Kind: BeginNode, Name: name}
			pos += uint32(consumed)
			pos = align4(pos)
		case tokEndNode:
			tok = Token{Kind: EndNode}
		case tokProp:
			if pos+8 > uint32(len(t.raw)) {
				return fmt.Errorf("fdt: truncated prop header at offset %d", pos)
			}
			length := binary.BigEndian.Uint32(t.raw[pos : pos+4])
			nameOffset := binary.BigEndian.Uint32(t.raw[pos+4 : pos+8])
			pos += 8
			if pos+length > uint32(len(t.raw)) {
				return fmt.Errorf("fdt: prop value runs past blob at offset %d", pos)
			}
			data := t.raw[pos : pos+length]
			pos += length
			pos = align4(pos)

			name, err := t.string(nameOffset)
			if err != nil {
				return err
			}
			tok = Token{Kind: Prop, Name: name, Data: data}
		case tokNop:
			tok = Token{Kind: Nop}
		case tokEnd:
			visit(Token{Kind: End})
			return nil
		default:
			return fmt.Errorf("fdt: unknown structure token %#x at offset %d", tokenValue, pos-4)
		}

		if !visit(tok) {
			return nil
		}
	}
	return nil
}

func readCString(b []byte) (string, int) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1
		}
	}
	return string(b), len(b)
}

func align4(pos uint32) uint32 {
	return (pos + 3) &^ 3
}
