// Package sched implements the per-hart Scheduler of spec.md §4.5,
// grounded closely on original_source's
// kernel/src/processes/scheduler.rs -- schedule/kill_current_process/
// let_current_process_wait_for/send_ctrl_c/start_program map almost
// one-to-one onto Scheduler's methods here, translated from the Rust
// RuntimeInitializedData<Mutex<Scheduler>> singleton into an ordinary Go
// struct a per-hart cpu package owns (see internal/cpu).
package sched

import (
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sysheap/yaos/internal/process"
	"github.com/sysheap/yaos/internal/vm"
)

// Hooks are the external collaborators Schedule/KillCurrent must reach
// outside this package's own state: CSR access, the kernel page table,
// and timer arming. All are narrow, named contracts per spec.md §6,
// implemented by riscv/vm/timer glue at the call site rather than by this
// package, so Scheduler itself stays hosted-testable.
type Hooks struct {
	ActivatePageTable func(space *vm.AddressSpace)
	ActivateKernel    func()
	WriteSepc         func(pc uintptr)
	SetInKernelMode   func(v bool)
	ArmTimer          func(millis int)
	DisableTimer      func()
	IdleEntry         func() uintptr
	Shutdown          func()
}

// Scheduler owns one hart's process table and its notion of "the process
// currently executing," exactly as in the original's Scheduler struct.
// The live hart trap frame itself is not owned here: after Schedule
// returns, the caller points the scratch CSR at the incoming process's
// TrapFrame() (cpu.SetSscratchToProcessTrapFrame), so the next trap entry
// saves registers straight into that process's save area.
type Scheduler struct {
	mu sync.Mutex

	table   *process.Table
	current *process.Process

	hooks Hooks
}

// New builds a scheduler with an empty table (save for the dummy) and no
// current process other than the dummy, mirroring Scheduler::new before
// the init process is added; callers add the boot program separately via
// StartProcess so this package carries no ELF/program-table knowledge.
func New(hooks Hooks) *Scheduler {
	table := process.NewTable()
	return &Scheduler{
		table:   table,
		current: table.Dummy(),
		hooks:   hooks,
	}
}

// Table exposes the process table for syscall handlers that need direct
// lookups (execute/wait/exit).
func (s *Scheduler) Table() *process.Table { return s.table }

// Current returns the process presently marked Running on this hart.
func (s *Scheduler) Current() *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// swapCurrentWithDummy installs the dummy as current and returns whatever
// was current before, the Go analogue of swap_current_with_dummy.
func (s *Scheduler) swapCurrentWithDummy() *process.Process {
	old := s.current
	s.current = s.table.Dummy()
	return old
}

// queueCurrentProcessBack snapshots pc/mode into the outgoing process
// (unless it's the dummy) and returns its pid, or process.NeverPid for
// the dummy.
func (s *Scheduler) queueCurrentProcessBack(pc uintptr, inKernelMode bool) process.Pid {
	s.mu.Lock()
	outgoing := s.swapCurrentWithDummy()
	s.mu.Unlock()

	if outgoing.Pid() == process.DummyPid {
		return process.NeverPid
	}

	outgoing.SetProgramCounter(pc)
	outgoing.SetInKernelMode(inKernelMode)
	if outgoing.State() == process.Running {
		outgoing.SetState(process.Runnable)
	}
	return outgoing.Pid()
}

// Schedule implements schedule(): pick the next Runnable process after
// the one that was running, install it, and arm the timer; or, if none
// is Runnable, fall back to the kernel's idle loop. pc/inKernelMode are
// the CPU state sampled at the trap that led here.
func (s *Scheduler) Schedule(pc uintptr, inKernelMode bool) {
	oldPid := s.queueCurrentProcessBack(pc, inKernelMode)

	if s.table.IsEmpty() {
		if s.hooks.Shutdown != nil {
			s.hooks.Shutdown()
		}
		return
	}

	next, ok := s.table.NextRunnable(oldPid)
	if !ok {
		s.goIdle()
		return
	}

	next.SetState(process.Running)
	if s.hooks.WriteSepc != nil {
		s.hooks.WriteSepc(next.ProgramCounter())
	}
	if s.hooks.SetInKernelMode != nil {
		s.hooks.SetInKernelMode(next.InKernelMode())
	}
	if s.hooks.ActivatePageTable != nil {
		s.hooks.ActivatePageTable(next.AddressSpace())
	}
	if s.hooks.ArmTimer != nil {
		s.hooks.ArmTimer(10)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
}

func (s *Scheduler) goIdle() {
	if s.hooks.ActivateKernel != nil {
		s.hooks.ActivateKernel()
	}
	if s.hooks.DisableTimer != nil {
		s.hooks.DisableTimer()
	}
	if s.hooks.WriteSepc != nil && s.hooks.IdleEntry != nil {
		s.hooks.WriteSepc(s.hooks.IdleEntry())
	}
	if s.hooks.SetInKernelMode != nil {
		s.hooks.SetInKernelMode(true)
	}
	s.mu.Lock()
	s.current = s.table.Dummy()
	s.mu.Unlock()
}

// wakeWaiters marks every process registered in dying's notify_on_die set
// Runnable with a zero syscall return, the shared half of KillCurrent and
// SendCtrlC's victim teardown.
func (s *Scheduler) wakeWaiters(dying *process.Process) {
	for _, pid := range dying.NotifyOnDie() {
		if waiter, ok := s.table.Lookup(pid); ok {
			waiter.SetState(process.Runnable)
			waiter.SetSyscallReturn(0)
		}
	}
}

// KillCurrent implements kill_current(): swap current out for the dummy,
// activate the kernel page table (so the hart never executes against a
// page table about to be freed), wake everyone in notify_on_die, release
// the address space, and drop the process entry.
func (s *Scheduler) KillCurrent(releasePage func(pa uintptr)) {
	s.mu.Lock()
	dying := s.swapCurrentWithDummy()
	s.mu.Unlock()

	if dying.Pid() == process.DummyPid {
		return
	}

	if s.hooks.ActivateKernel != nil {
		s.hooks.ActivateKernel()
	}

	s.wakeWaiters(dying)

	if dying.AddressSpace() != nil {
		dying.AddressSpace().Destroy(releasePage)
	}
	s.table.Remove(dying.Pid())
}

// WaitFor implements let_current_process_wait_for(pid): marks the current
// process Waiting and registers it to be notified when pid dies. Returns
// false if pid does not name a live process, matching the original's
// unwrap_or_return false path.
func (s *Scheduler) WaitFor(pid process.Pid) bool {
	target, ok := s.table.Lookup(pid)
	if !ok {
		return false
	}

	current := s.Current()
	current.SetState(process.Waiting)
	current.SetSyscallReturn(0)
	target.AddNotifyOnDie(current.Pid())
	return true
}

// StartProcess inserts a freshly built process (the caller supplies a
// constructor closure that already has an ELF-loaded AddressSpace ready,
// since ELF parsing and image loading are external-collaborator concerns
// per spec.md §1) and returns its assigned pid.
func (s *Scheduler) StartProcess(name string, build func(pid process.Pid) *process.Process) process.Pid {
	p := s.table.Insert(name, build)
	return p.Pid()
}

// SendCtrlC implements send_ctrl_c(): requeue the current process, find
// the highest-pid process not named in excludeNames (conventionally the
// interactive shell), kill it, and reschedule.
func (s *Scheduler) SendCtrlC(pc uintptr, inKernelMode bool, releasePage func(pa uintptr), excludeNames ...string) {
	s.queueCurrentProcessBack(pc, inKernelMode)

	if pid, ok := s.table.HighestPidExcluding(excludeNames...); ok {
		if s.hooks.ActivateKernel != nil {
			s.hooks.ActivateKernel()
		}
		if victim, ok := s.table.Lookup(pid); ok {
			s.wakeWaiters(victim)
			if victim.AddressSpace() != nil {
				victim.AddressSpace().Destroy(releasePage)
			}
		}
		s.table.Remove(pid)
	}

	s.Schedule(pc, inKernelMode)
}
