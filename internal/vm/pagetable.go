package vm

import (
	"fmt"
	"strings"
	"unsafe"
)

// sv39 walks three levels: level 2 (root) -> level 1 -> level 0 (leaf).
const numLevels = 3

// FrameSource supplies page-aligned physical frames for new interior page
// tables and leaf mappings. Frames are not necessarily zeroed; PageTable
// zeroes every frame it takes for a table. In production this is backed by
// the pagealloc.Allocator; tests back it with a plain arena.
type FrameSource interface {
	AllocPage() (uintptr, bool)
	FreePage(addr uintptr)
}

// PageTable is a single sv39 root table plus the FrameSource used to grow
// the tree. It implements map/translate/unmap as in spec.md §4.3;
// activate() (the satp write + sfence.vma) is deliberately not here, since
// that is a CSR operation left to the external riscv collaborator.
type PageTable struct {
	root   uintptr
	frames FrameSource
}

// New allocates a root table and returns an empty PageTable.
func New(frames FrameSource) (*PageTable, error) {
	root, ok := frames.AllocPage()
	if !ok {
		return nil, fmt.Errorf("vm: no frame available for page table root")
	}
	zeroPage(root)
	return &PageTable{root: root, frames: frames}, nil
}

// Root is the physical address of the root table, the value satp must be
// programmed with (shifted and tagged by the riscv collaborator).
func (pt *PageTable) Root() uintptr { return pt.root }

func zeroPage(addr uintptr) {
	buf := (*[PageSize]byte)(unsafe.Pointer(addr))
	for i := range buf {
		buf[i] = 0
	}
}

// pageSizeAtLevel returns the span one entry covers at level (0 = 4 KiB
// leaf, 1 = 2 MiB superpage, 2 = 1 GiB superpage).
func pageSizeAtLevel(level int) uintptr {
	return PageSize << uint(9*level)
}

// walkTo descends from the root to the entry for va at exactly level,
// allocating an intermediate table for every level strictly above it
// when alloc is true. The caller decides what to do with the returned
// entry (install a leaf, or read one that may or may not be valid); this
// function never looks past level itself, so it is safe to use both for
// leaf installation (Map, at whatever level it picked) and for "walk to
// the 4 KiB level" when the caller already knows there are no
// intervening superpages.
func (pt *PageTable) walkTo(va uintptr, level int, alloc bool) (*pte, error) {
	tableAddr := pt.root
	for l := numLevels - 1; l > level; l-- {
		entry := ptePointer(tableAddr, vpn(va, l))
		if !entry.isValid() {
			if !alloc {
				return nil, nil
			}
			frame, ok := pt.frames.AllocPage()
			if !ok {
				return nil, fmt.Errorf("vm: out of frames while walking to level %d", l)
			}
			zeroPage(frame)
			*entry = pointerTablePTE(addrToPPN(frame))
		} else if entry.isLeaf() {
			return nil, fmt.Errorf("vm: walkTo(%#x, level=%d) hit a superpage leaf at level %d", va, level, l)
		}
		tableAddr = entry.physAddr()
	}
	return ptePointer(tableAddr, vpn(va, level)), nil
}

// walkLeaf returns the PTE backing va and the level it was found at: 0
// for an ordinary 4 KiB leaf, 1 or 2 for a superpage. It returns a nil
// entry if va is unmapped at any level along the way -- the "leaf may
// exist at any level" invariant of spec.md §3 means every reader of the
// tree (Translate, pointer validation, Unmap) must stop at whichever
// level first produces a leaf rather than assuming level 0.
func (pt *PageTable) walkLeaf(va uintptr) (*pte, int) {
	tableAddr := pt.root
	for level := numLevels - 1; level >= 0; level-- {
		entry := ptePointer(tableAddr, vpn(va, level))
		if !entry.isValid() {
			return nil, 0
		}
		if entry.isLeaf() {
			return entry, level
		}
		if level == 0 {
			return nil, 0
		}
		tableAddr = entry.physAddr()
	}
	return nil, 0
}

// bestLevel picks the largest level whose page size divides both va and
// pa's alignment and fits within remaining, the "use the largest natural
// page size that divides both the alignment and the span" rule spec.md
// §4.3 requires of Map.
func bestLevel(va, pa, remaining uintptr) int {
	for level := numLevels - 1; level > 0; level-- {
		step := pageSizeAtLevel(level)
		if va%step == 0 && pa%step == 0 && remaining >= step {
			return level
		}
	}
	return 0
}

// Map establishes va -> pa for a run of size bytes, using the largest
// natural page size (1 GiB, 2 MiB, or 4 KiB) that divides both addresses
// and fits the remaining span at each step, per spec.md §4.3. va, pa and
// size must all be page aligned and size must be a whole multiple of
// PageSize.
func (pt *PageTable) Map(va, pa, size uintptr, perm Perm, priv Privilege) error {
	if va%PageSize != 0 || pa%PageSize != 0 || size%PageSize != 0 {
		return fmt.Errorf("vm: Map(va=%#x, pa=%#x, size=%#x) not page aligned", va, pa, size)
	}
	if size == 0 {
		return fmt.Errorf("vm: Map called with zero size")
	}

	global := priv == Kernel
	end := va + size
	for va < end {
		level := bestLevel(va, pa, end-va)
		entry, err := pt.walkTo(va, level, true)
		if err != nil {
			return err
		}
		if entry.isValid() {
			return fmt.Errorf("vm: Map(va=%#x) already mapped", va)
		}
		*entry = makePTE(addrToPPN(pa), perm, priv, global)
		step := pageSizeAtLevel(level)
		va += step
		pa += step
	}
	return nil
}

// Translate resolves a virtual address to its backing physical address,
// honoring whatever offset it sits at within its leaf (a 4 KiB page
// offset for an ordinary leaf, or the wider in-superpage offset for a
// 2 MiB/1 GiB leaf), or reports that va is unmapped.
func (pt *PageTable) Translate(va uintptr) (uintptr, bool) {
	entry, level := pt.walkLeaf(va)
	if entry == nil || !entry.isValid() {
		return 0, false
	}
	offset := va & (pageSizeAtLevel(level) - 1)
	return entry.physAddr() + offset, true
}

// IsValidUserspacePointer reports whether every page touched by [ptr,
// ptr+length) is present, user-accessible, and carries the requested
// permission -- the check spec.md §4.3/§6 requires before the kernel
// dereferences any userspace-supplied pointer.
func (pt *PageTable) IsValidUserspacePointer(ptr uintptr, length uintptr, want Perm) bool {
	if length == 0 {
		return true
	}
	end := ptr + length
	for va := ptr; va < end; {
		entry, level := pt.walkLeaf(va)
		if entry == nil || !entry.isValid() || !entry.isUser() || !entry.hasPerm(want) {
			return false
		}
		step := pageSizeAtLevel(level)
		va = (va &^ (step - 1)) + step
	}
	return true
}

// TranslateUserspaceAddress validates and translates a single userspace
// pointer in one step, the common case syscall argument handling needs.
func (pt *PageTable) TranslateUserspaceAddress(ptr uintptr, want Perm) (uintptr, bool) {
	if !pt.IsValidUserspacePointer(ptr, 1, want) {
		return 0, false
	}
	return pt.Translate(ptr)
}

// Unmap clears the mapping covering [va, va+size) without freeing the
// backing frames -- callers that also own the frames (AddressSpace) free
// them separately through the release callback of UnmapOwned/Destroy.
func (pt *PageTable) Unmap(va, size uintptr) error {
	if va%PageSize != 0 || size%PageSize != 0 {
		return fmt.Errorf("vm: Unmap(va=%#x, size=%#x) not page aligned", va, size)
	}
	end := va + size
	for va < end {
		entry, level := pt.walkLeaf(va)
		if entry == nil || !entry.isValid() {
			va += PageSize
			continue
		}
		step := pageSizeAtLevel(level)
		leafBase := va &^ (step - 1)
		if leafBase != va || leafBase+step > end {
			return fmt.Errorf("vm: Unmap(va=%#x, size=%#x) partially covers a superpage leaf at level %d", va, size, level)
		}
		*entry = pte(0)
		va += step
	}
	return nil
}

// Destroy walks every level of the tree post-order, releasing interior
// table frames back to the frame source. It does not release leaf frames:
// those are owned by whatever mapped them (AddressSpace tracks its own
// user pages separately), matching the original's ownership split between
// page tables and the pages they merely point at.
func (pt *PageTable) Destroy() {
	pt.destroyLevel(pt.root, numLevels-1)
}

func (pt *PageTable) destroyLevel(tableAddr uintptr, level int) {
	if level > 0 {
		for i := 0; i < entriesPerTable; i++ {
			entry := ptePointer(tableAddr, i)
			if entry.isValid() && !entry.isLeaf() {
				pt.destroyLevel(entry.physAddr(), level-1)
			}
		}
	}
	pt.frames.FreePage(tableAddr)
}

// Dump renders every leaf mapping in the tree as one line per entry
// (virtual range, physical base, permission string, leaf size), the
// Go side of the page-table listing a kernel panic prints alongside the
// backtrace.
func (pt *PageTable) Dump() string {
	var b strings.Builder
	b.WriteString("Pagetables at ")
	fmt.Fprintf(&b, "%#x\n", pt.root)
	pt.dumpLevel(&b, pt.root, numLevels-1, 0)
	return b.String()
}

func (pt *PageTable) dumpLevel(b *strings.Builder, tableAddr uintptr, level int, vaPrefix uintptr) {
	step := pageSizeAtLevel(level)
	for i := 0; i < entriesPerTable; i++ {
		entry := ptePointer(tableAddr, i)
		if !entry.isValid() {
			continue
		}
		va := vaPrefix + uintptr(i)*step
		if entry.isLeaf() {
			fmt.Fprintf(b, "  %#016x-%#016x -> %#016x %s (%d KiB)\n",
				va, va+step-1, entry.physAddr(), entry.permString(), step/1024)
			continue
		}
		pt.dumpLevel(b, entry.physAddr(), level-1, va)
	}
}
