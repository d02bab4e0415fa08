// Package vm implements the sv39 page table tree described in spec.md §3
// (PageTable) and §4.3: up to three levels of 512-entry tables, each entry
// holding a 44-bit PPN plus V/R/W/X/U/G/A/D bits. Grounded on the teacher
// kernel's page.go (Page metadata via the bitfield package) generalized
// from a flat page-frame flag word to the sv39 PTE layout, and on
// gopher-os's vmm.go for the walk/translate shape.
package vm

import (
	"unsafe"

	"github.com/sysheap/yaos/internal/bitfield"
)

// PageSize is the sv39 base page size.
const PageSize = 4096

const (
	entriesPerTable = 512
	ppnBits         = 44
	pteFieldBits    = 54 // 8 flag bits + 2 RSW bits + 44 PPN bits
)

// pteFields is the sv39 PTE layout packed/unpacked through bitfield, the
// same reflect-tag mechanism the teacher kernel uses for its Page flags
// word (src/bitfield/page_flags.go) generalized to the full hardware bit
// layout.
type pteFields struct {
	V   bool   `bitfield:",1"`
	R   bool   `bitfield:",1"`
	W   bool   `bitfield:",1"`
	X   bool   `bitfield:",1"`
	U   bool   `bitfield:",1"`
	G   bool   `bitfield:",1"`
	A   bool   `bitfield:",1"`
	D   bool   `bitfield:",1"`
	RSW uint8  `bitfield:",2"`
	PPN uint64 `bitfield:",44"`
}

// Perm is the access permission mask requested of a mapping or a pointer
// validation check.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// Privilege selects whether a mapping is reachable from U-mode.
type Privilege int

const (
	Kernel Privilege = iota
	User
)

// pte is a single 8-byte page table entry, addressed directly as physical
// memory the way the teacher kernel addresses MMIO/page metadata: the
// kernel always runs under a linear/identity mapping (spec.md §4.3
// invariant), so a physical address is a valid Go pointer without any
// translation layer.
type pte uint64

func ptePointer(tableAddr uintptr, index int) *pte {
	return (*pte)(unsafe.Pointer(tableAddr + uintptr(index)*8))
}

func (p pte) fields() pteFields {
	var f pteFields
	// Unpack returns an error only for malformed struct tags or unsupported
	// field types, never for data, so the error is unreachable here.
	_ = bitfield.Unpack(uint64(p), &f)
	return f
}

func makePTE(ppn uint64, perm Perm, priv Privilege, global bool) pte {
	f := pteFields{
		V:   true,
		R:   perm&PermRead != 0,
		W:   perm&PermWrite != 0,
		X:   perm&PermExec != 0,
		U:   priv == User,
		G:   global,
		A:   true,
		D:   perm&PermWrite != 0,
		PPN: ppn,
	}
	packed, err := bitfield.Pack(f, &bitfield.Config{NumBits: pteFieldBits})
	if err != nil {
		panic("vm: makePTE: " + err.Error())
	}
	return pte(packed)
}

func pointerTablePTE(ppn uint64) pte {
	// A pointer to the next level table is valid, with no R/W/X bits set
	// (the encoding sv39 uses to distinguish "points at a table" from
	// "is itself a leaf").
	f := pteFields{V: true, PPN: ppn}
	packed, err := bitfield.Pack(f, &bitfield.Config{NumBits: pteFieldBits})
	if err != nil {
		panic("vm: pointerTablePTE: " + err.Error())
	}
	return pte(packed)
}

func (p pte) isValid() bool { return p.fields().V }
func (p pte) isLeaf() bool {
	f := p.fields()
	return f.R || f.W || f.X
}
func (p pte) ppn() uint64 { return p.fields().PPN }
func (p pte) physAddr() uintptr {
	return uintptr(p.ppn()) * PageSize
}
func (p pte) hasPerm(want Perm) bool {
	f := p.fields()
	if want&PermRead != 0 && !f.R {
		return false
	}
	if want&PermWrite != 0 && !f.W {
		return false
	}
	if want&PermExec != 0 && !f.X {
		return false
	}
	return true
}
func (p pte) isUser() bool { return p.fields().U }

// permString renders a leaf's R/W/X/U bits as a four-character string
// (e.g. "RWXU"), the Go side of the page-table dump the panic banner
// prints.
func (p pte) permString() string {
	f := p.fields()
	flag := func(set bool, c byte) byte {
		if set {
			return c
		}
		return '-'
	}
	return string([]byte{
		flag(f.R, 'R'),
		flag(f.W, 'W'),
		flag(f.X, 'X'),
		flag(f.U, 'U'),
	})
}

// vpn returns the VPN[level] index (0 = leaf level, 2 = root level) for a
// virtual address, per the sv39 address-splitting scheme.
func vpn(va uintptr, level int) int {
	shift := 12 + 9*level
	return int((va >> uint(shift)) & 0x1FF)
}

func pageOffset(va uintptr) uintptr { return va & (PageSize - 1) }

func addrToPPN(addr uintptr) uint64 { return uint64(addr / PageSize) }
