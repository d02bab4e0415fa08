// Package syscalls' Handler wires the 12 numbered syscalls of spec.md
// §4.7 to the scheduler, stdin buffer, program table, frame allocator,
// and console, matching handler.rs's SyscallHandler one method per
// syscall. Dispatch itself only ever reads a7 (number) and a0-a5
// (arguments) from the trap frame and writes a0 (return value); it
// never yields to the scheduler directly -- a process left in a
// non-Running state after Dispatch returns is the trap-entry glue's cue
// to call Scheduler.Schedule, exactly as the blocking-syscall pattern of
// spec.md §7 describes.
package syscalls

import (
	"fmt"

	"github.com/sysheap/yaos/internal/elfload"
	"github.com/sysheap/yaos/internal/klog"
	"github.com/sysheap/yaos/internal/process"
	"github.com/sysheap/yaos/internal/sched"
	"github.com/sysheap/yaos/internal/stdin"
	"github.com/sysheap/yaos/internal/trapframe"
	"github.com/sysheap/yaos/internal/vm"
)

// errorReturn is the sentinel a0 value a syscall leaves behind on
// failure: all bits set, matching the original's usize::MAX-as-error
// convention for the syscalls that don't have a richer status channel.
const errorReturn = ^uintptr(0)

// Console is the single-byte output collaborator write_char and
// print_programs use, implemented by the UART driver.
type Console interface {
	WriteByte(b byte)
}

// ProgramSource resolves a program name to its ELF image, the external
// collaborator execute and print_programs need per spec.md §1 (owned by
// the embedded program table, internal/image).
type ProgramSource interface {
	Lookup(name string) ([]byte, bool)
	Names() []string
}

// UDPSocket is the narrow contract a netstack socket exposes to the
// syscall layer: send a datagram to whatever address it last received
// from, and read buffered datagrams back.
type UDPSocket interface {
	Send(data []byte) error
	Recv(buf []byte) (int, error)
}

// NetStack opens UDP sockets bound to a local port, returning an error
// if the port is taken (netstack.ErrPortAlreadyUsed for the kernel's
// stack).
type NetStack interface {
	OpenUDPSocket(port uint16) (UDPSocket, error)
}

// mmapBaseVirtAddr is where a process's first mmap_pages call lands;
// later calls stack upward from the end of the previous range. Chosen
// well clear of both the loaded image and the stack region in
// internal/elfload.
const mmapBaseVirtAddr = 0x40_0000_0000

// Handler owns every external collaborator the 12 syscalls touch.
// Scheduler and Frames are required; Stdin/Programs/Console/Net are nil
// only in tests that don't exercise the syscalls needing them.
type Handler struct {
	Scheduler *sched.Scheduler
	Frames    vm.FrameSource
	Stdin     *stdin.Buffer
	Programs  ProgramSource
	Console   Console
	Net       NetStack

	// Panic halts the kernel with a full panic banner (process summary,
	// page-table dump, backtrace). It is wired to (*trap.Handler).Panic
	// by cmd/kernel/main.go once the trap handler exists; nil only in
	// tests that construct a Handler without a boot-time trap handler,
	// where sysPanic falls back to a soft kill so those tests don't need
	// one wired up.
	Panic func(reason string, tf *trapframe.TrapFrame)
}

// Dispatch implements handle_syscall: read the syscall number and
// arguments out of tf, run the matching sys_* handler against the
// scheduler's current process, and write the result into tf's a0 unless
// the syscall left the process in a non-Running state to be resolved by
// the scheduler instead.
func (h *Handler) Dispatch(tf *trapframe.TrapFrame) {
	current := h.Scheduler.Current()
	validator := NewValidator(current.AddressSpace().Table())

	switch Number(tf.SyscallNumber()) {
	case PrintPrograms:
		h.sysPrintPrograms()
	case Panic:
		h.sysPanic(current, validator, tf)
	case WriteChar:
		h.sysWriteChar(tf)
	case ReadInput:
		h.sysReadInput(tf)
	case ReadInputWait:
		h.sysReadInputWait(current, tf)
	case Exit:
		h.sysExit()
	case Execute:
		h.sysExecute(validator, tf)
	case Wait:
		h.sysWait(tf)
	case MmapPages:
		h.sysMmapPages(current, tf)
	case OpenUDPSocket:
		h.sysOpenUDPSocket(current, tf)
	case WriteUDPSocket:
		h.sysWriteUDPSocket(current, validator, tf)
	case ReadUDPSocket:
		h.sysReadUDPSocket(current, validator, tf)
	default:
		tf.SetReturn(errorReturn)
	}
}

func (h *Handler) sysPrintPrograms() {
	if h.Console == nil || h.Programs == nil {
		return
	}
	for _, name := range h.Programs.Names() {
		writeString(h.Console, name)
		h.Console.WriteByte('\n')
	}
}

// sysPanic implements sys_panic: userspace-triggered panics are fatal to
// the whole kernel, not just the calling process, per the original's
// literal panic!("Userspace triggered kernel panic") in handler.rs.
func (h *Handler) sysPanic(current *process.Process, v *Validator, tf *trapframe.TrapFrame) {
	ptr, length := tf.SyscallArg(0), tf.SyscallArg(1)
	message := "(message unreadable)"
	if msg, err := v.CopyIn(ptr, length); err == nil {
		message = string(msg)
	}
	reason := fmt.Sprintf("process %d (%s) panicked: %s", current.Pid(), current.Name(), message)

	if h.Panic != nil {
		h.Panic(reason, tf)
		return
	}

	klog.Warningf("%s", reason)
	h.Scheduler.KillCurrent(h.Frames.FreePage)
}

func (h *Handler) sysWriteChar(tf *trapframe.TrapFrame) {
	if h.Console != nil {
		h.Console.WriteByte(byte(tf.SyscallArg(0)))
	}
	tf.SetReturn(0)
}

func (h *Handler) sysReadInput(tf *trapframe.TrapFrame) {
	if h.Stdin == nil {
		tf.SetReturn(errorReturn)
		return
	}
	b, ok := h.Stdin.Pop()
	if !ok {
		tf.SetReturn(errorReturn)
		return
	}
	tf.SetReturn(uintptr(b))
}

func (h *Handler) sysReadInputWait(current *process.Process, tf *trapframe.TrapFrame) {
	if h.Stdin == nil {
		tf.SetReturn(errorReturn)
		return
	}
	if b, ok := h.Stdin.Pop(); ok {
		tf.SetReturn(uintptr(b))
		return
	}
	h.Stdin.RegisterWakeup(current.Pid())
	current.SetWaitingOnSyscall(process.SyscallResume{Action: process.ResumeDeliverByte})
}

func (h *Handler) sysExit() {
	h.Scheduler.KillCurrent(h.Frames.FreePage)
}

func (h *Handler) sysExecute(v *Validator, tf *trapframe.TrapFrame) {
	ptr, length := tf.SyscallArg(0), tf.SyscallArg(1)
	nameBytes, err := v.CopyIn(ptr, length)
	if err != nil {
		tf.SetReturn(errorReturn)
		return
	}
	name := string(nameBytes)

	elfBytes, ok := h.Programs.Lookup(name)
	if !ok {
		tf.SetReturn(errorReturn)
		return
	}

	loaded, err := elfload.Load(elfBytes, h.Frames)
	if err != nil {
		tf.SetReturn(errorReturn)
		return
	}

	pid := h.Scheduler.StartProcess(name, func(pid process.Pid) *process.Process {
		return process.New(pid, name, loaded.Space, loaded.Entry, loaded.StackTop)
	})
	tf.SetReturn(uintptr(pid))
}

func (h *Handler) sysWait(tf *trapframe.TrapFrame) {
	pid := process.Pid(tf.SyscallArg(0))
	if !h.Scheduler.WaitFor(pid) {
		tf.SetReturn(errorReturn)
	}
}

func (h *Handler) sysMmapPages(current *process.Process, tf *trapframe.TrapFrame) {
	pageCount := int(tf.SyscallArg(0))
	if pageCount <= 0 {
		tf.SetReturn(errorReturn)
		return
	}

	base := uintptr(mmapBaseVirtAddr)
	for _, r := range current.MmapRanges() {
		end := r.VirtAddr + uintptr(r.PageCount)*vm.PageSize
		if end > base {
			base = end
		}
	}

	space := current.AddressSpace()
	for i := 0; i < pageCount; i++ {
		pa, ok := h.Frames.AllocPage()
		if !ok {
			tf.SetReturn(errorReturn)
			return
		}
		va := base + uintptr(i)*vm.PageSize
		if err := space.MapOwned(va, pa, 1, vm.PermRead|vm.PermWrite); err != nil {
			tf.SetReturn(errorReturn)
			return
		}
	}

	current.AddMmapRange(process.MmapRange{VirtAddr: base, PhysAddr: 0, PageCount: pageCount})
	tf.SetReturn(base)
}

func (h *Handler) sysOpenUDPSocket(current *process.Process, tf *trapframe.TrapFrame) {
	if h.Net == nil {
		tf.SetReturn(errorReturn)
		return
	}
	port := uint16(tf.SyscallArg(0))
	socket, err := h.Net.OpenUDPSocket(port)
	if err != nil {
		tf.SetReturn(errorReturn)
		return
	}
	descriptor := current.PutUDPSocket(socket)
	tf.SetReturn(uintptr(descriptor))
}

func (h *Handler) sysWriteUDPSocket(current *process.Process, v *Validator, tf *trapframe.TrapFrame) {
	descriptor := uint32(tf.SyscallArg(0))
	ptr, length := tf.SyscallArg(1), tf.SyscallArg(2)

	socketAny, ok := current.UDPSocket(descriptor)
	if !ok {
		tf.SetReturn(errorReturn)
		return
	}
	socket := socketAny.(UDPSocket)

	payload, err := v.CopyIn(ptr, length)
	if err != nil {
		tf.SetReturn(errorReturn)
		return
	}
	if err := socket.Send(payload); err != nil {
		tf.SetReturn(errorReturn)
		return
	}
	tf.SetReturn(0)
}

func (h *Handler) sysReadUDPSocket(current *process.Process, v *Validator, tf *trapframe.TrapFrame) {
	descriptor := uint32(tf.SyscallArg(0))
	ptr, length := tf.SyscallArg(1), tf.SyscallArg(2)

	socketAny, ok := current.UDPSocket(descriptor)
	if !ok {
		tf.SetReturn(errorReturn)
		return
	}
	socket := socketAny.(UDPSocket)

	if !v.ValidateWrite(ptr, length) {
		tf.SetReturn(errorReturn)
		return
	}
	buf := make([]byte, length)
	n, err := socket.Recv(buf)
	if err != nil {
		tf.SetReturn(errorReturn)
		return
	}
	if err := v.CopyOut(ptr, buf[:n]); err != nil {
		tf.SetReturn(errorReturn)
		return
	}
	tf.SetReturn(uintptr(n))
}

func writeString(c Console, s string) {
	for i := 0; i < len(s); i++ {
		c.WriteByte(s[i])
	}
}
