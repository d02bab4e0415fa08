// Package hostmem gives hosted tests a real page-aligned, anonymously
// mmap'd memory region to back a FrameSource/PageSource, rather than a
// plain make([]byte, ...) slice whose start address Go makes no
// page-alignment guarantee about. Grounded on golang.org/x/sys/unix,
// already a module dependency via the rest of this kernel's domain
// stack, used here purely as a test-tooling collaborator: nothing in
// the kernel's own build depends on it.
package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Region is a page-aligned anonymous mapping tests can treat as
// physical memory.
type Region struct {
	data []byte
}

// Map reserves pageCount*pageSize bytes of anonymous, read-write memory.
func Map(pageCount int, pageSize int) (*Region, error) {
	size := pageCount * pageSize
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap %d bytes: %w", size, err)
	}
	return &Region{data: data}, nil
}

// Bytes returns the mapped region as a byte slice.
func (r *Region) Bytes() []byte { return r.data }

// Unmap releases the mapping. Tests should defer this.
func (r *Region) Unmap() error {
	return unix.Munmap(r.data)
}
