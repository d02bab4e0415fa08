// Package elfload is the narrow "produce a parsed ELF with loadable
// segments and an entry point" collaborator spec.md §1 names as
// external. It uses the standard library's debug/elf -- the one place in
// this module that reaches for stdlib over an example-pack dependency,
// justified in DESIGN.md: no example repo in the retrieval pool parses
// ELF (gopher-os and the teacher both boot from a bootloader-provided
// blob, not an ELF they parse themselves), and debug/elf is the obvious,
// already-in-every-Go-toolchain fit for "parse an ELF, walk PT_LOAD
// segments" with no decoding left to hand-roll. Grounded on
// original_source's Process::from_elf (named in scheduler.rs but not
// present in the retrieved source) for the shape: load every PT_LOAD
// segment at its linked virtual address, then attach a fixed-size user
// stack above it.
package elfload

import (
	"bytes"
	"debug/elf"
	"fmt"
	"unsafe"

	"github.com/sysheap/yaos/internal/vm"
)

// StackSize is the fixed user stack allocation every loaded program
// receives, matching the fixed per-process stack the original's
// Process::from_elf sets up (no demand-growth, per spec.md's Non-goals).
const StackSize = 16 * vm.PageSize

// StackTopVirtAddr is the virtual address the stack's top is mapped at.
// Chosen high and far from any plausible program image so a stack
// overflow hits an unmapped guard region instead of silently colliding
// with .bss.
const StackTopVirtAddr = 0x3f_0000_0000

// Loaded is a program ready to run: the address space it now owns, the
// entry point, and the top of its stack (the initial sp value).
type Loaded struct {
	Space    *vm.AddressSpace
	Entry    uintptr
	StackTop uintptr
}

// Load parses elfBytes, maps every PT_LOAD segment into a fresh
// AddressSpace at its linked virtual address with the segment's R/W/X
// flags, and attaches a StackSize-byte user stack at StackTopVirtAddr.
func Load(elfBytes []byte, frames vm.FrameSource) (*Loaded, error) {
	f, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		return nil, fmt.Errorf("elfload: parse: %w", err)
	}
	defer f.Close()

	space, err := vm.NewAddressSpace(frames)
	if err != nil {
		return nil, fmt.Errorf("elfload: new address space: %w", err)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(space, frames, prog); err != nil {
			return nil, err
		}
	}

	if err := attachStack(space, frames); err != nil {
		return nil, err
	}

	return &Loaded{
		Space:    space,
		Entry:    uintptr(f.Entry),
		StackTop: StackTopVirtAddr,
	}, nil
}

func loadSegment(space *vm.AddressSpace, frames vm.FrameSource, prog *elf.Prog) error {
	vaddr := uintptr(prog.Vaddr)
	pageVaddr := vaddr &^ (vm.PageSize - 1)
	offsetIntoFirstPage := vaddr - pageVaddr
	endVaddr := vaddr + uintptr(prog.Memsz)
	pageCount := int((endVaddr - pageVaddr + vm.PageSize - 1) / vm.PageSize)

	// Assemble the segment's full page-aligned image in a scratch buffer
	// first (file bytes followed by .bss zero padding), then split it
	// across however many physical pages back it -- far simpler than
	// tracking per-page byte ranges directly against possibly
	// non-contiguous frames.
	image := make([]byte, uintptr(pageCount)*vm.PageSize)
	fileBytes := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(fileBytes, 0); err != nil {
		return fmt.Errorf("elfload: read segment at %#x: %w", vaddr, err)
	}
	copy(image[offsetIntoFirstPage:], fileBytes)

	perm := progFlagsToPerm(prog.Flags)
	for i := 0; i < pageCount; i++ {
		pa, ok := frames.AllocPage()
		if !ok {
			return fmt.Errorf("elfload: out of frames loading segment at %#x", vaddr)
		}
		dst := (*[vm.PageSize]byte)(unsafe.Pointer(pa))
		copy(dst[:], image[uintptr(i)*vm.PageSize:uintptr(i+1)*vm.PageSize])

		if err := space.MapOwned(pageVaddr+uintptr(i)*vm.PageSize, pa, 1, perm); err != nil {
			return fmt.Errorf("elfload: map segment page: %w", err)
		}
	}
	return nil
}

func zeroPage(pa uintptr) {
	buf := (*[vm.PageSize]byte)(unsafe.Pointer(pa))
	for i := range buf {
		buf[i] = 0
	}
}

func progFlagsToPerm(flags elf.ProgFlag) vm.Perm {
	var perm vm.Perm
	if flags&elf.PF_R != 0 {
		perm |= vm.PermRead
	}
	if flags&elf.PF_W != 0 {
		perm |= vm.PermWrite
	}
	if flags&elf.PF_X != 0 {
		perm |= vm.PermExec
	}
	return perm
}

func attachStack(space *vm.AddressSpace, frames vm.FrameSource) error {
	pageCount := StackSize / vm.PageSize
	first, ok := frames.AllocPage()
	if !ok {
		return fmt.Errorf("elfload: out of frames allocating stack")
	}
	zeroPage(first)
	base := StackTopVirtAddr - uintptr(pageCount)*vm.PageSize
	if err := space.MapOwned(base, first, 1, vm.PermRead|vm.PermWrite); err != nil {
		return fmt.Errorf("elfload: map stack: %w", err)
	}
	for i := 1; i < pageCount; i++ {
		pa, ok := frames.AllocPage()
		if !ok {
			return fmt.Errorf("elfload: out of frames allocating stack")
		}
		zeroPage(pa)
		if err := space.MapOwned(base+uintptr(i)*vm.PageSize, pa, 1, vm.PermRead|vm.PermWrite); err != nil {
			return fmt.Errorf("elfload: map stack: %w", err)
		}
	}
	return nil
}
