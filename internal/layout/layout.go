// Package layout exposes the kernel image's linker-provided section ranges.
// In C or Rust these come from symbols the linker script defines
// (TEXT_START, RODATA_END, ...); Go has no linker-script integration, so we
// follow the teacher kernel's pattern (see mazarin's `__end` in heap.go) of
// declaring them as extern symbols resolved by `go:linkname` against the
// assembly/linker-script build step that is out of this module's scope.
package layout

import _ "unsafe" // for go:linkname

//go:linkname textStart runtime.text
var textStart uintptr

//go:linkname textEnd runtime.etext
var textEnd uintptr

// Sections describes the address ranges of the kernel image's loadable
// sections, used to build the kernel page table's identity mappings with
// the correct per-section XWR privileges (spec.md §4.3 invariant).
type Sections struct {
	TextStart, TextEnd     uintptr
	RodataStart, RodataEnd uintptr
	DataStart, DataEnd     uintptr
	HeapStart              uintptr
	HeapSize               uintptr
}

// TextSize, RodataSize and DataSize mirror LinkerInformation's *_size
// helpers from the original kernel's memory/linker_information.rs.
func (s Sections) TextSize() uintptr   { return s.TextEnd - s.TextStart }
func (s Sections) RodataSize() uintptr { return s.RodataEnd - s.RodataStart }
func (s Sections) DataSize() uintptr   { return s.DataEnd - s.DataStart }

// Current reads the linker-provided ranges. On real hardware these symbols
// are populated by the boot linker script; under `go test` (no linker
// script present) Current instead returns the caller-supplied fallback,
// mirroring the original's `cfg!(miri)` fallback to Self::default().
func Current(fallback Sections) Sections {
	if textStart == 0 && textEnd == 0 {
		return fallback
	}
	return Sections{
		TextStart: textStart,
		TextEnd:   textEnd,
	}
}
