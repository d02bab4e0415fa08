package syscalls

import "github.com/sysheap/yaos/internal/vm"

// Validator wraps a process's page table with the checks
// validate_and_translate_pointer needs, generalized to spans that may
// cross page boundaries: confirm the whole range is present, U=1, and
// (for mutable buffers) W=1, then copy to or from the kernel's own
// memory one backing page at a time. A single Translate(ptr) call is
// only ever valid for the one page it names -- elfload and mmap_pages
// hand out physical frames to consecutive virtual pages independently,
// so nothing guarantees a multi-page userspace buffer sits on a
// contiguous physical run. Grounded on handler.rs's
// validate_and_translate_pointer, widened past its single-translate
// shape to close that gap.
type Validator struct {
	table *vm.PageTable
}

func NewValidator(table *vm.PageTable) *Validator {
	return &Validator{table: table}
}

// ValidateRead reports whether every page in [ptr, ptr+length) is
// present, user-accessible, and readable.
func (v *Validator) ValidateRead(ptr, length uintptr) bool {
	return v.table.IsValidUserspacePointer(ptr, length, vm.PermRead)
}

// ValidateWrite reports whether every page in [ptr, ptr+length) is
// present, user-accessible, and writable.
func (v *Validator) ValidateWrite(ptr, length uintptr) bool {
	return v.table.IsValidUserspacePointer(ptr, length, vm.PermRead|vm.PermWrite)
}

// CopyIn validates a read-only userspace buffer and copies it into a
// freshly allocated kernel-owned slice, page by page.
func (v *Validator) CopyIn(ptr, length uintptr) ([]byte, error) {
	if !v.ValidateRead(ptr, length) {
		return nil, ErrInvalidPointer
	}
	out := make([]byte, length)
	if err := v.forEachPage(ptr, length, func(off int, pa uintptr, n int) {
		copy(out[off:off+n], bytesAt(pa, uintptr(n)))
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// CopyOut validates a writable userspace buffer and copies src into it,
// page by page.
func (v *Validator) CopyOut(ptr uintptr, src []byte) error {
	if !v.ValidateWrite(ptr, uintptr(len(src))) {
		return ErrInvalidPointer
	}
	return v.forEachPage(ptr, uintptr(len(src)), func(off int, pa uintptr, n int) {
		copy(bytesAt(pa, uintptr(n)), src[off:off+n])
	})
}

// forEachPage walks [ptr, ptr+length) one backing page at a time,
// translating each page independently (never assuming the next page's
// frame follows the current one) and invoking fn with the slice offset,
// physical address, and run length for that page.
func (v *Validator) forEachPage(ptr, length uintptr, fn func(off int, pa uintptr, n int)) error {
	end := ptr + length
	off := 0
	for va := ptr; va < end; {
		pageEnd := (va &^ (vm.PageSize - 1)) + vm.PageSize
		runEnd := end
		if pageEnd < runEnd {
			runEnd = pageEnd
		}
		n := int(runEnd - va)

		pa, ok := v.table.Translate(va)
		if !ok {
			return ErrInvalidPointer
		}
		fn(off, pa, n)

		off += n
		va += uintptr(n)
	}
	return nil
}
