package syscalls

import (
	"testing"
	"unsafe"

	"github.com/sysheap/yaos/internal/vm"
)

// scatterFrames is a FrameSource whose pages are deliberately not adjacent
// in physical memory -- the opposite of handler_test.go's testFrames,
// which hands out pages sequentially from one contiguous slice and so
// can't expose a bug that assumes a multi-page buffer is one contiguous
// physical span.
type scatterFrames struct {
	pool  []byte
	order []int
	next  int
}

func newScatterFrames(pages int) *scatterFrames {
	order := make([]int, pages)
	for i := range order {
		order[i] = pages - 1 - i // hand pages out back-to-front
	}
	return &scatterFrames{pool: make([]byte, pages*vm.PageSize), order: order}
}

func (f *scatterFrames) AllocPage() (uintptr, bool) {
	if f.next >= len(f.order) {
		return 0, false
	}
	idx := f.order[f.next]
	f.next++
	return uintptr(unsafe.Pointer(&f.pool[idx*vm.PageSize])), true
}

func (f *scatterFrames) FreePage(addr uintptr) {}

func TestCopyInHandlesNonContiguousPages(t *testing.T) {
	frames := newScatterFrames(5) // root + 2 interior tables + 2 data pages
	table, err := vm.New(frames)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}

	const va = 0x60_0000_0000
	want := make([]byte, 0, 2*vm.PageSize)
	for i := 0; i < 2; i++ {
		pa, ok := frames.AllocPage()
		if !ok {
			t.Fatal("AllocPage failed")
		}
		if err := table.Map(va+uintptr(i)*vm.PageSize, pa, vm.PageSize, vm.PermRead|vm.PermWrite, vm.User); err != nil {
			t.Fatalf("Map: %v", err)
		}
		page := unsafe.Slice((*byte)(unsafe.Pointer(pa)), vm.PageSize)
		for j := range page {
			page[j] = byte(i*100 + j%50)
		}
		want = append(want, page...)
	}

	got, err := NewValidator(table).CopyIn(va, uintptr(len(want)))
	if err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != string(want) {
		t.Fatal("CopyIn returned bytes from the wrong physical pages for a non-contiguous buffer")
	}
}

func TestCopyOutHandlesNonContiguousPages(t *testing.T) {
	frames := newScatterFrames(5) // root + 2 interior tables + 2 data pages
	table, err := vm.New(frames)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}

	const va = 0x61_0000_0000
	pas := make([]uintptr, 2)
	for i := range pas {
		pa, ok := frames.AllocPage()
		if !ok {
			t.Fatal("AllocPage failed")
		}
		pas[i] = pa
		if err := table.Map(va+uintptr(i)*vm.PageSize, pa, vm.PageSize, vm.PermRead|vm.PermWrite, vm.User); err != nil {
			t.Fatalf("Map: %v", err)
		}
	}

	src := make([]byte, 2*vm.PageSize)
	for i := range src {
		src[i] = byte(i)
	}

	if err := NewValidator(table).CopyOut(va, src); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}

	for i, pa := range pas {
		page := unsafe.Slice((*byte)(unsafe.Pointer(pa)), vm.PageSize)
		want := src[i*vm.PageSize : (i+1)*vm.PageSize]
		for j := range page {
			if page[j] != want[j] {
				t.Fatalf("page %d byte %d: got %d, want %d", i, j, page[j], want[j])
			}
		}
	}
}
