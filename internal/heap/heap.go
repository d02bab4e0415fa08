// Package heap implements the kernel's dynamic-storage allocator: a
// free-list allocator layered over the page allocator, as described in
// spec.md §3 (Heap free list) and §4.2. It is grounded on
// original_source/src/kernel/src/memory/heap.rs's FreeBlock/AlignedSizeWithMetadata
// design (best find-and-remove-first-fit, optional split, no coalescing).
package heap

import (
	"fmt"
	"unsafe"

	"gvisor.dev/gvisor/pkg/sync"
)

// DataAlignment is the alignment every returned allocation's data region
// honors, matching FreeBlock::DATA_ALIGNMENT in the original kernel.
const DataAlignment = 8

// freeBlock mirrors the original's #[repr(C, align(8))] FreeBlock: a header
// immediately followed by the data region it describes. next is nil once
// removed from the free list (asserted on dealloc, matching the original's
// corruption checks).
type freeBlock struct {
	next *freeBlock
	size uintptr // total size of this block, header included
}

// metadataSize is the size of the freeBlock header -- the Go analogue of
// Rust's offset_of!(FreeBlock, data).
var metadataSize = unsafe.Sizeof(freeBlock{})

// minimumSize is the smallest span worth keeping as its own block: header
// plus one DataAlignment-sized unit of usable data.
var minimumSize = metadataSize + DataAlignment

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func blockFromAddr(addr uintptr) *freeBlock {
	return (*freeBlock)(unsafe.Pointer(addr))
}

func dataPtr(b *freeBlock) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(b)) + metadataSize)
}

func blockFromDataPtr(ptr unsafe.Pointer) *freeBlock {
	return blockFromAddr(uintptr(ptr) - metadataSize)
}

func (b *freeBlock) dataSize() uintptr {
	return b.size - metadataSize
}

// PageSource supplies whole pages to the heap when no free block is big
// enough, mirroring AllocatedPages::<Ethernal, A>::zalloc in the original.
type PageSource interface {
	// RequestPages returns the address of n freshly zeroed, contiguous
	// pages, or (0, false) if none are available.
	RequestPages(n int) (uintptr, bool)
	PageSize() uintptr
}

// Heap is a singly linked free list of blocks backed by pages from a
// PageSource. It performs no coalescing: fragmentation is accepted as the
// cost of a simple, auditable allocator, exactly as documented in spec.md
// §4.2.
type Heap struct {
	mu     sync.Mutex
	genesis freeBlock // sentinel head; genesis.next is the real list head
	pages  PageSource
}

// New returns a Heap with an empty free list, backed by pages.
func New(pages PageSource) *Heap {
	return &Heap{pages: pages}
}

func requiredTotalSize(size uintptr) uintptr {
	return alignUp(size+metadataSize, DataAlignment)
}

func minimumPagesFor(totalSize uintptr, pageSize uintptr) int {
	return int((totalSize + pageSize - 1) / pageSize)
}

// Alloc returns a pointer to a size-byte region aligned to DataAlignment,
// or nil if the page source is exhausted.
func (h *Heap) Alloc(size uintptr) unsafe.Pointer {
	requested := requiredTotalSize(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	block := h.findAndRemove(requested)
	if block == nil {
		pages := minimumPagesFor(requested, h.pages.PageSize())
		addr, ok := h.pages.RequestPages(pages)
		if !ok {
			return nil
		}
		block = blockFromAddr(addr)
		block.next = nil
		block.size = uintptr(pages) * h.pages.PageSize()
	}

	h.splitIfNecessary(block, requested)

	return dataPtr(block)
}

// Dealloc returns the size-byte region at ptr (as previously returned by
// Alloc) to the free list. It performs the same corruption checks as the
// original: next must be nil and the block's data region must be at least
// as large as the caller's recorded size.
func (h *Heap) Dealloc(ptr unsafe.Pointer, size uintptr) {
	block := blockFromDataPtr(ptr)

	if block.next != nil {
		panic("heap: dealloc found non-nil next pointer -- heap metadata corruption")
	}
	if block.dataSize() < size {
		panic("heap: dealloc found block smaller than the recorded allocation size -- heap metadata corruption")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.insert(block)
}

func (h *Heap) insert(block *freeBlock) {
	if block.next != nil {
		panic("heap: insert of a block that already has a next pointer -- heap metadata corruption")
	}
	block.next = h.genesis.next
	h.genesis.next = block
}

func (h *Heap) splitIfNecessary(block *freeBlock, requested uintptr) {
	if block.size < requested {
		panic(fmt.Sprintf("heap: selected block of size %d smaller than requested %d", block.size, requested))
	}
	if block.size-requested < minimumSize {
		return
	}

	remaining := block.size - requested
	newBlockAddr := uintptr(unsafe.Pointer(block)) + requested
	newBlock := blockFromAddr(newBlockAddr)
	newBlock.next = nil
	newBlock.size = remaining

	block.size = requested
	h.insert(newBlock)
}

// findAndRemove unlinks and returns the first free block whose size is at
// least requested, or nil.
func (h *Heap) findAndRemove(requested uintptr) *freeBlock {
	prev := &h.genesis
	for prev.next != nil {
		if prev.next.size >= requested {
			found := prev.next
			prev.next = found.next
			found.next = nil
			return found
		}
		prev = prev.next
	}
	return nil
}

// freeListLength is a test/diagnostic helper exposing how many blocks are
// currently on the free list.
func (h *Heap) freeListLength() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for b := h.genesis.next; b != nil; b = b.next {
		n++
	}
	return n
}
