// Package pagealloc implements the kernel's physical page allocator: a
// first-fit scan over a byte-per-page metadata array, as described in
// spec.md §3 (PhysPage) and §4.1. It is grounded on the teacher kernel's
// page.go (Page metadata struct + free list) but replaces the teacher's
// doubly linked free list with the metadata-array scan spec.md requires
// (Free/Used/Last tri-state per page, so dealloc needs only the start
// pointer).
package pagealloc

import (
	"fmt"
	"unsafe"

	"gvisor.dev/gvisor/pkg/sync"
)

// PageSize is the hardware page size for sv39: 4 KiB.
const PageSize = 4096

// state is the per-page metadata byte. Free pages carry no further state;
// Used marks an interior page of a multi-page allocation; Last marks the
// final page of an allocation so dealloc can stop scanning.
type state uint8

const (
	free state = iota
	used
	last
)

// Allocator manages a contiguous byte arena [base, base+size) as PageSize
// frames. The leading portion of the arena is reserved for one metadata
// byte per page; the remainder, rounded down to a page boundary, is the
// usable frame pool.
type Allocator struct {
	mu sync.Mutex

	base      uintptr
	pageCount int
	metadata  []state
	poolBase  uintptr
}

// New reserves metadata inside [base, base+size) and returns an Allocator
// ready to serve pages from the rest of the arena. size must be large
// enough to hold at least one metadata byte and one page.
func New(base uintptr, size uintptr) (*Allocator, error) {
	if size < PageSize {
		return nil, fmt.Errorf("pagealloc: arena size %d smaller than one page", size)
	}

	// First-fit sizing: solve for the largest N such that N metadata bytes
	// plus N pages fit in size, after page-aligning the pool start.
	maxPages := int(size / PageSize)
	for maxPages > 0 {
		metadataEnd := base + uintptr(maxPages)
		poolBase := alignUp(metadataEnd, PageSize)
		usable := size - (poolBase - base)
		if int(usable/PageSize) >= maxPages {
			return &Allocator{
				base:      base,
				pageCount: maxPages,
				metadata:  make([]state, maxPages),
				poolBase:  poolBase,
			}, nil
		}
		maxPages--
	}

	return nil, fmt.Errorf("pagealloc: arena of size %d too small for any pages plus metadata", size)
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// pageAddr returns the physical address of the i'th frame in the pool.
func (a *Allocator) pageAddr(i int) uintptr {
	return a.poolBase + uintptr(i)*PageSize
}

// pageIndex returns the frame index for a physical address previously
// returned by Alloc, or -1 if p is not a page-aligned address inside the
// pool.
func (a *Allocator) pageIndex(p uintptr) int {
	if p < a.poolBase || (p-a.poolBase)%PageSize != 0 {
		return -1
	}
	idx := int((p - a.poolBase) / PageSize)
	if idx >= a.pageCount {
		return -1
	}
	return idx
}

// Alloc finds the first run of n consecutive free pages, marks them used
// (the last as Last), and returns the physical address of the first page.
// It returns (0, false) if no such run exists.
func (a *Allocator) Alloc(n int) (uintptr, bool) {
	if n <= 0 {
		return 0, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	run := 0
	for i := 0; i < a.pageCount; i++ {
		if a.metadata[i] == free {
			run++
			if run == n {
				start := i - n + 1
				for j := start; j < i; j++ {
					a.metadata[j] = used
				}
				a.metadata[i] = last
				return a.pageAddr(start), true
			}
		} else {
			run = 0
		}
	}

	return 0, false
}

// Zalloc behaves like Alloc but zeroes the returned pages through zero,
// which is supplied by the caller because pagealloc has no notion of how
// physical memory is mapped into the kernel's address space.
func (a *Allocator) Zalloc(n int, zero func(addr uintptr, size uintptr)) (uintptr, bool) {
	addr, ok := a.Alloc(n)
	if !ok {
		return 0, false
	}
	zero(addr, uintptr(n)*PageSize)
	return addr, true
}

// Dealloc frees the allocation starting at p, which must be a value
// previously returned by Alloc/Zalloc. It scans forward clearing Used
// entries until (inclusive) it reaches the Last entry.
func (a *Allocator) Dealloc(p uintptr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.pageIndex(p)
	if idx < 0 {
		panic(fmt.Sprintf("pagealloc: Dealloc called with invalid page address %#x", p))
	}

	for i := idx; i < a.pageCount; i++ {
		st := a.metadata[i]
		if st == free {
			panic(fmt.Sprintf("pagealloc: Dealloc found free page at index %d before a Last marker", i))
		}
		a.metadata[i] = free
		if st == last {
			return
		}
	}

	panic("pagealloc: Dealloc ran off the end of the arena without finding a Last marker")
}

// FreePageCount reports how many pages are currently Free, used by tests
// and the mmap exit-cleanup property in spec.md §8.
func (a *Allocator) FreePageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, st := range a.metadata {
		if st == free {
			n++
		}
	}
	return n
}

// PageCount is the total number of frames managed by this allocator.
func (a *Allocator) PageCount() int { return a.pageCount }

// AllocPage allocates a single frame, satisfying vm.FrameSource so page
// tables and address spaces can draw frames directly from the physical
// allocator.
func (a *Allocator) AllocPage() (uintptr, bool) { return a.Alloc(1) }

// FreePage releases a single frame previously returned by AllocPage,
// satisfying vm.FrameSource.
func (a *Allocator) FreePage(addr uintptr) { a.Dealloc(addr) }

// RequestPages allocates n zeroed, contiguous pages, satisfying
// heap.PageSource so the kernel heap can grow directly on top of the
// physical allocator the way AllocatedPages does in the original.
func (a *Allocator) RequestPages(n int) (uintptr, bool) {
	return a.Zalloc(n, func(addr, size uintptr) {
		buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
		for i := range buf {
			buf[i] = 0
		}
	})
}

// PageSize satisfies heap.PageSource.
func (a *Allocator) PageSize() uintptr { return PageSize }
