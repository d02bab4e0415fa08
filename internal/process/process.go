// Package process implements the Process and ProcessTable entities of
// spec.md §3/§4.6. Grounded on original_source's
// kernel/src/processes/{process.rs is absent from the retrieval pack, but
// scheduler.rs and handler.rs show its surface} and
// kernel/src/io/stdin_buf.rs for the wakeup-queue shape; state machine
// transitions follow spec.md §4.5's diagram directly. Locking style
// (gvisor.dev/gvisor/pkg/sync.Mutex) follows the rest of this module's
// packages, which adopt it in place of the teacher's unsynchronized
// single-core globals -- this kernel's per-hart concurrency model needs
// real mutexes.
package process

import (
	"fmt"
	"sort"

	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sysheap/yaos/internal/trapframe"
	"github.com/sysheap/yaos/internal/vm"
)

// Pid identifies a process. Zero is reserved (NeverPid): no real process
// is ever assigned it, so it is safe to use as a sentinel "nobody" value
// in notify_on_die sets and comparisons.
type Pid uint64

// NeverPid is the sentinel used where no pid applies, matching the
// original's NEVER_PID.
const NeverPid Pid = 0

// DummyPid is the reserved pid of the placeholder process installed
// whenever no real process is current (the idle loop). It sits outside
// the range handed out to real processes.
const DummyPid Pid = ^Pid(0)

// State is a position in the per-process state machine of spec.md §4.5.
type State int

const (
	Runnable State = iota
	Running
	Waiting
	WaitingForInput
	Zombie
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "Runnable"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	case WaitingForInput:
		return "WaitingForInput"
	case Zombie:
		return "Zombie"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ResumeAction describes the pending "what to do when this process is
// next woken" tag, the Go analogue of resume_on_syscall / the documented
// "set a resume tag, yield" pattern for syscalls that mimic blocking.
type ResumeAction int

const (
	// ResumeNone means simply mark Runnable with the trap frame as-is.
	ResumeNone ResumeAction = iota
	// ResumeDeliverByte means write a pending byte into a0 before resuming,
	// the read_input_wait wakeup path.
	ResumeDeliverByte
)

// SyscallResume is the tagged "what value to deliver when resumed" state
// a blocked process carries, per spec.md §3's Process.syscall_resume
// field.
type SyscallResume struct {
	Action ResumeAction
	Byte   byte
}

// MmapRange is one page range a process obtained via mmap_pages,
// recorded so later mmap_pages calls place their range after it. Its
// backing frames are released at exit through the AddressSpace's own
// ownership record (MapOwned/Destroy), not through this list.
type MmapRange struct {
	VirtAddr  uintptr
	PhysAddr  uintptr
	PageCount int
}

// UDPSocketHandle is an opaque descriptor -> shared socket mapping slot.
// The socket implementation itself lives in the netstack package; Process
// only needs to own the descriptor table, per spec.md's udp_sockets
// field.
type UDPSocketHandle struct {
	Descriptor uint32
	Socket     interface{}
}

// Process is one schedulable unit of execution: its saved register
// state, its address space, and the bookkeeping the scheduler and
// syscall handler need to suspend and resume it faithfully.
type Process struct {
	mu sync.Mutex

	pid  Pid
	name string

	state State

	trapFrame    trapframe.TrapFrame
	pc           uintptr
	inKernelMode bool

	addressSpace *vm.AddressSpace

	mmapPages  []MmapRange
	udpSockets []UDPSocketHandle

	notifyOnDie map[Pid]struct{}

	syscallResume *SyscallResume
}

// New constructs a fresh, Runnable process around an already-built
// address space (the caller -- process_table/scheduler's start_program
// path -- is responsible for loading the ELF image and stack into it).
func New(pid Pid, name string, addressSpace *vm.AddressSpace, entry, stackTop uintptr) *Process {
	p := &Process{
		pid:          pid,
		name:         name,
		state:        Runnable,
		pc:           entry,
		inKernelMode: false,
		addressSpace: addressSpace,
		notifyOnDie:  make(map[Pid]struct{}),
	}
	p.trapFrame.Set(trapframe.SP, stackTop)
	return p
}

// newDummy builds the placeholder process installed whenever no real
// process is current.
func newDummy() *Process {
	return &Process{
		pid:         DummyPid,
		name:        "dummy",
		state:       Running,
		notifyOnDie: make(map[Pid]struct{}),
	}
}

func (p *Process) Pid() Pid   { return p.pid }
func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *Process) ProgramCounter() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

func (p *Process) SetProgramCounter(pc uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pc = pc
}

func (p *Process) InKernelMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inKernelMode
}

func (p *Process) SetInKernelMode(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inKernelMode = v
}

// TrapFrame returns a pointer to the process's saved register state. The
// caller must only touch it while the process is not Running (spec.md
// §5's shared-resource policy): the scheduler and wakeup paths are the
// only writers.
func (p *Process) TrapFrame() *trapframe.TrapFrame {
	return &p.trapFrame
}

func (p *Process) AddressSpace() *vm.AddressSpace {
	return p.addressSpace
}

// SetSyscallReturn writes a value into a0 of the saved trap frame, the
// "deposit the delivered byte/status" half of the resume-tag pattern.
func (p *Process) SetSyscallReturn(value uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trapFrame.SetReturn(value)
}

// SetWaitingOnSyscall marks the process WaitingForInput and tags it with the
// given resume action, the "set a resume tag, yield to the scheduler"
// half of modeling a blocking syscall described in spec.md §7.
func (p *Process) SetWaitingOnSyscall(action SyscallResume) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = WaitingForInput
	p.syscallResume = &action
}

// ResumeOnSyscall applies a pending resume action (if any delivers a
// byte) and marks the process Runnable, used by StdinBuffer.Push. (The
// scheduler's notify_on_die walk wakes waiters with SetState and
// SetSyscallReturn instead.)
func (p *Process) ResumeOnSyscall(byte byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syscallResume != nil && p.syscallResume.Action == ResumeDeliverByte {
		p.trapFrame.SetReturn(uintptr(byte))
	}
	p.syscallResume = nil
	p.state = Runnable
}

// AddNotifyOnDie registers pid to be woken (marked Runnable, return 0)
// when this process dies.
func (p *Process) AddNotifyOnDie(pid Pid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifyOnDie[pid] = struct{}{}
}

// NotifyOnDie returns the pids waiting on this process's death, sorted in
// ascending order, for the scheduler's kill_current to walk.
func (p *Process) NotifyOnDie() []Pid {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Pid, 0, len(p.notifyOnDie))
	for pid := range p.notifyOnDie {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AddMmapRange records a newly mapped owned range, called after the
// syscall handler asks the address space to back n pages at some
// virtual address.
func (p *Process) AddMmapRange(r MmapRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mmapPages = append(p.mmapPages, r)
}

func (p *Process) MmapRanges() []MmapRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MmapRange, len(p.mmapPages))
	copy(out, p.mmapPages)
	return out
}

// PutUDPSocket stores a new descriptor -> socket handle and returns the
// descriptor assigned.
func (p *Process) PutUDPSocket(socket interface{}) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	descriptor := uint32(len(p.udpSockets))
	p.udpSockets = append(p.udpSockets, UDPSocketHandle{Descriptor: descriptor, Socket: socket})
	return descriptor
}

func (p *Process) UDPSocket(descriptor uint32) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.udpSockets {
		if h.Descriptor == descriptor {
			return h.Socket, true
		}
	}
	return nil, false
}
