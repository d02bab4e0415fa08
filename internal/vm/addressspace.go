package vm

import "fmt"

// AddressSpace is a per-process page table plus the set of physical pages
// it owns outright (the loaded program image, the user stack, and any
// mmap'd pages requested at runtime). Grounded on spec.md §3's
// AddressSpace entity and §4.8's mmap_pages syscall, which needs the
// address space to track ownership so exit can release everything.
type AddressSpace struct {
	table *PageTable
	owned map[uintptr]int // page address -> page count, for owned (non-table) frames
}

// NewAddressSpace allocates a fresh root table with no mappings.
func NewAddressSpace(frames FrameSource) (*AddressSpace, error) {
	table, err := New(frames)
	if err != nil {
		return nil, err
	}
	return &AddressSpace{table: table, owned: make(map[uintptr]int)}, nil
}

// Table exposes the underlying PageTable for translate/validate calls.
func (as *AddressSpace) Table() *PageTable { return as.table }

// MapOwned maps va to a freshly owned physical range and records that
// ownership so Destroy releases it later. Used for the program image,
// user stack, and mmap_pages allocations alike.
func (as *AddressSpace) MapOwned(va, pa uintptr, pageCount int, perm Perm) error {
	size := uintptr(pageCount) * PageSize
	if err := as.table.Map(va, pa, size, perm, User); err != nil {
		return fmt.Errorf("vm: MapOwned: %w", err)
	}
	as.owned[pa] = pageCount
	return nil
}

// UnmapOwned reverses a prior MapOwned: it unmaps the virtual range and
// releases the backing frames through release. It returns an error if pa
// was never recorded as owned by this address space.
func (as *AddressSpace) UnmapOwned(va, pa uintptr, release func(pa uintptr)) error {
	count, ok := as.owned[pa]
	if !ok {
		return fmt.Errorf("vm: UnmapOwned: %#x is not owned by this address space", pa)
	}
	if err := as.table.Unmap(va, uintptr(count)*PageSize); err != nil {
		return err
	}
	delete(as.owned, pa)
	release(pa)
	return nil
}

// Destroy tears down every mapping: it frees every owned physical range
// through release, then destroys the page table tree itself. Called once
// when a process dies (spec.md §4.4's exit/kill path).
func (as *AddressSpace) Destroy(release func(pa uintptr)) {
	for pa := range as.owned {
		release(pa)
	}
	as.owned = nil
	as.table.Destroy()
}
