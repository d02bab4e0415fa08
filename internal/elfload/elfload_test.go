package elfload

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/sysheap/yaos/internal/vm"
)

// buildMinimalELF assembles a tiny valid riscv64 ELF with one PT_LOAD
// segment containing a few bytes of "code", entry point equal to the
// segment's vaddr.
func buildMinimalELF(t *testing.T, vaddr uint64, payload []byte) []byte {
	t.Helper()

	const ehdrSize = 64
	const phdrSize = 56

	var buf bytes.Buffer

	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(elf.ET_EXEC))  // e_type
	binary.Write(&buf, binary.LittleEndian, uint16(elf.EM_RISCV)) // e_machine
	binary.Write(&buf, binary.LittleEndian, uint32(1))            // e_version
	binary.Write(&buf, binary.LittleEndian, uint64(vaddr))        // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(ehdrSize))     // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint64(0))            // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))            // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehdrSize))     // e_ehsize
	binary.Write(&buf, binary.LittleEndian, uint16(phdrSize))     // e_phentsize
	binary.Write(&buf, binary.LittleEndian, uint16(1))            // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))            // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0))            // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))            // e_shstrndx

	dataOffset := uint64(ehdrSize + phdrSize)
	binary.Write(&buf, binary.LittleEndian, uint32(elf.PT_LOAD))                        // p_type
	binary.Write(&buf, binary.LittleEndian, uint32(elf.PF_R|elf.PF_X))                   // p_flags
	binary.Write(&buf, binary.LittleEndian, dataOffset)                                  // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)                                       // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)                                       // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))                        // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))                        // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(vm.PageSize))                         // p_align

	buf.Write(payload)

	return buf.Bytes()
}

type testFrames struct {
	next int
	pool []byte
}

func newTestFrames(pages int) *testFrames {
	return &testFrames{pool: make([]byte, pages*vm.PageSize)}
}

func (f *testFrames) AllocPage() (uintptr, bool) {
	total := len(f.pool) / vm.PageSize
	if f.next >= total {
		return 0, false
	}
	addr := uintptr(unsafe.Pointer(&f.pool[f.next*vm.PageSize]))
	f.next++
	return addr, true
}

func (f *testFrames) FreePage(addr uintptr) {}

func TestLoadMapsEntrySegmentAtLinkedAddress(t *testing.T) {
	vaddr := uint64(0x1000_0000)
	payload := []byte{0x13, 0x00, 0x00, 0x00} // nop-ish riscv bytes
	elfBytes := buildMinimalELF(t, vaddr, payload)

	frames := newTestFrames(64)
	loaded, err := Load(elfBytes, frames)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Entry != uintptr(vaddr) {
		t.Fatalf("got entry %#x, want %#x", loaded.Entry, vaddr)
	}

	pa, ok := loaded.Space.Table().Translate(uintptr(vaddr))
	if !ok {
		t.Fatal("expected entry address to translate")
	}
	got := *(*byte)(unsafe.Pointer(pa))
	if got != payload[0] {
		t.Fatalf("got byte %#x at mapped entry, want %#x", got, payload[0])
	}
}

func TestLoadAttachesStackBelowStackTop(t *testing.T) {
	elfBytes := buildMinimalELF(t, 0x1000_0000, []byte{0})
	frames := newTestFrames(64)

	loaded, err := Load(elfBytes, frames)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := loaded.Space.Table().Translate(StackTopVirtAddr - 8); !ok {
		t.Fatal("expected stack top region to be mapped")
	}
}
