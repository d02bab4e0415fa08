package syscalls

import "unsafe"

// bytesAt views length bytes at physical address pa as a []byte, the
// same direct unsafe.Pointer treatment of "physical == a dereferenceable
// Go pointer under the kernel's linear mapping" that internal/vm and
// internal/elfload rely on.
func bytesAt(pa uintptr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(pa)), int(length))
}
