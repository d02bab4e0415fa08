package hostmem

import (
	"testing"
	"unsafe"
)

func TestMapReturnsPageAlignedUsableMemory(t *testing.T) {
	region, err := Map(4, 4096)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer region.Unmap()

	addr := uintptr(unsafe.Pointer(&region.Bytes()[0]))
	if addr%4096 != 0 {
		t.Fatalf("got address %#x, want 4096-aligned", addr)
	}

	buf := region.Bytes()
	buf[0] = 0xAB
	if buf[0] != 0xAB {
		t.Fatal("expected write to mapped memory to be readable back")
	}
}
