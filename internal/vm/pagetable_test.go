package vm

import (
	"strings"
	"testing"
	"unsafe"
)

// arenaFrames is a FrameSource over a single pinned Go byte slice, handing
// out pages bump-style and reusing freed ones from a free list, so the
// sv39 tree can be walked under a hosted go test binary.
type arenaFrames struct {
	backing []byte
	base    uintptr
	next    int
	free    []uintptr
}

func newArenaFrames(pages int) *arenaFrames {
	backing := make([]byte, pages*PageSize)
	return &arenaFrames{
		backing: backing,
		base:    uintptr(unsafe.Pointer(&backing[0])),
	}
}

func (a *arenaFrames) AllocPage() (uintptr, bool) {
	if len(a.free) > 0 {
		addr := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		return addr, true
	}
	total := len(a.backing) / PageSize
	if a.next >= total {
		return 0, false
	}
	addr := a.base + uintptr(a.next)*PageSize
	a.next++
	return addr, true
}

func (a *arenaFrames) FreePage(addr uintptr) {
	a.free = append(a.free, addr)
}

func TestMapThenTranslateRoundTrip(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	va := uintptr(0x1000_0000)
	pa, _ := frames.AllocPage()
	if err := table.Map(va, pa, PageSize, PermRead|PermWrite, User); err != nil {
		t.Fatalf("Map: %v", err)
	}

	got, ok := table.Translate(va + 0x10)
	if !ok {
		t.Fatal("expected va to translate")
	}
	if got != pa+0x10 {
		t.Fatalf("got %#x, want %#x", got, pa+0x10)
	}
}

func TestTranslateUnmappedFails(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := table.Translate(0x2000_0000); ok {
		t.Fatal("expected unmapped address to fail translation")
	}
}

func TestIsValidUserspacePointerRejectsKernelMapping(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	va := uintptr(0x3000_0000)
	pa, _ := frames.AllocPage()
	if err := table.Map(va, pa, PageSize, PermRead|PermWrite, Kernel); err != nil {
		t.Fatalf("Map: %v", err)
	}

	if table.IsValidUserspacePointer(va, 8, PermRead) {
		t.Fatal("expected kernel-only mapping to fail userspace validation")
	}
}

func TestIsValidUserspacePointerRejectsMissingWritePermission(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	va := uintptr(0x4000_0000)
	pa, _ := frames.AllocPage()
	if err := table.Map(va, pa, PageSize, PermRead, User); err != nil {
		t.Fatalf("Map: %v", err)
	}

	if !table.IsValidUserspacePointer(va, 8, PermRead) {
		t.Fatal("expected read-only mapping to validate for a read check")
	}
	if table.IsValidUserspacePointer(va, 8, PermWrite) {
		t.Fatal("expected read-only mapping to fail a write check")
	}
}

func TestIsValidUserspacePointerSpansMultiplePages(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	va := uintptr(0x5000_0000)
	for i := 0; i < 3; i++ {
		pa, _ := frames.AllocPage()
		if err := table.Map(va+uintptr(i)*PageSize, pa, PageSize, PermRead|PermWrite, User); err != nil {
			t.Fatalf("Map: %v", err)
		}
	}

	// A range spanning all three pages should validate in full; one missing
	// in the middle should not.
	if !table.IsValidUserspacePointer(va, 3*PageSize, PermRead) {
		t.Fatal("expected fully mapped 3-page span to validate")
	}
	if table.IsValidUserspacePointer(va, 4*PageSize, PermRead) {
		t.Fatal("expected span reaching past the mapped pages to fail")
	}
}

func TestAddressSpaceDestroyReleasesOwnedPages(t *testing.T) {
	frames := newArenaFrames(64)
	as, err := NewAddressSpace(frames)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}

	va := uintptr(0x6000_0000)
	pa, _ := frames.AllocPage()
	if err := as.MapOwned(va, pa, 1, PermRead|PermWrite); err != nil {
		t.Fatalf("MapOwned: %v", err)
	}

	released := 0
	as.Destroy(func(pa uintptr) {
		released++
		frames.FreePage(pa)
	})

	if released != 1 {
		t.Fatalf("expected 1 owned page released, got %d", released)
	}
}

func TestMapUsesSuperpageWhenAligned(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const twoMiB = 2 * 1024 * 1024
	va := uintptr(0x40_0000_0000)
	pa := uintptr(0x80_0000_0000)

	if err := table.Map(va, pa, twoMiB, PermRead|PermWrite, Kernel); err != nil {
		t.Fatalf("Map: %v", err)
	}

	// A single level-1 (2 MiB) leaf should cover the whole range: any
	// offset within it translates through that same leaf.
	got, ok := table.Translate(va + 0x1234)
	if !ok {
		t.Fatal("expected superpage-mapped va to translate")
	}
	if got != pa+0x1234 {
		t.Fatalf("got %#x, want %#x", got, pa+0x1234)
	}

	if dump := table.Dump(); !strings.Contains(dump, "2048 KiB") {
		t.Fatalf("expected dump to report a 2 MiB leaf, got: %s", dump)
	}
}

func TestUnmapRejectsPartialSuperpageCoverage(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const twoMiB = 2 * 1024 * 1024
	va := uintptr(0x44_0000_0000)
	pa := uintptr(0x84_0000_0000)
	if err := table.Map(va, pa, twoMiB, PermRead|PermWrite, Kernel); err != nil {
		t.Fatalf("Map: %v", err)
	}

	if err := table.Unmap(va, PageSize); err == nil {
		t.Fatal("expected unmapping one page out of a superpage leaf to fail")
	}

	if err := table.Unmap(va, twoMiB); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if _, ok := table.Translate(va); ok {
		t.Fatal("expected superpage to be gone after a full-range unmap")
	}
}

func TestMapRejectsUnalignedAddresses(t *testing.T) {
	frames := newArenaFrames(64)
	table, err := New(frames)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := table.Map(0x1001, 0x2000, PageSize, PermRead, User); err == nil {
		t.Fatal("expected unaligned va to be rejected")
	}
}
