// Package cpu holds per-hart state: the hart's own kernel trap frame, its
// Scheduler, and the "currently executing in kernel mode" flag, wiring
// the riscv CSR boundary to trapframe/sched the way original_source's
// cpu.rs (write_sscratch_register/write_sepc/read_sepc) and
// kernel/src/processes/scheduler.rs's Cpu::with_scheduler usage imply a
// per-hart owner exists, even though that owning struct itself was not
// present in the retrieved source files.
package cpu

import (
	"unsafe"

	"github.com/sysheap/yaos/internal/process"
	"github.com/sysheap/yaos/internal/riscv"
	"github.com/sysheap/yaos/internal/sched"
	"github.com/sysheap/yaos/internal/trapframe"
)

// CPU is the state owned by one hart: its private kernel trap frame (used
// whenever no process trap frame is active, i.e. while idling or before
// any process exists), its scheduler, and whether the saved context was
// executing privileged code.
type CPU struct {
	kernelTrapFrame trapframe.TrapFrame
	scheduler       *sched.Scheduler
	inKernelMode    bool
}

// New builds a CPU with a fresh kernel trap frame and the given
// scheduler, and programs sscratch to point at the kernel trap frame
// (the state every hart boots into, before any process has run).
func New(scheduler *sched.Scheduler) *CPU {
	c := &CPU{scheduler: scheduler, inKernelMode: true}
	c.SetSscratchToKernelTrapFrame()
	return c
}

// Scheduler returns this hart's scheduler.
func (c *CPU) Scheduler() *sched.Scheduler { return c.scheduler }

// InKernelMode reports whether the saved context for this hart was
// executing privileged code.
func (c *CPU) InKernelMode() bool { return c.inKernelMode }

// SetInKernelMode records the mode flag the scheduler restores into sret.
func (c *CPU) SetInKernelMode(v bool) { c.inKernelMode = v }

// SetSscratchToKernelTrapFrame points the scratch CSR at this hart's own
// kernel trap frame, the state installed whenever the scheduler has no
// process to run (idling) or before the first process is scheduled.
func (c *CPU) SetSscratchToKernelTrapFrame() {
	riscv.WriteSscratch(uintptr(unsafe.Pointer(&c.kernelTrapFrame)))
}

// SetSscratchToProcessTrapFrame points the scratch CSR at a process's own
// saved trap frame, the state installed whenever that process becomes
// Running, so the next trap entry saves directly into its save area.
func (c *CPU) SetSscratchToProcessTrapFrame(tf *trapframe.TrapFrame) {
	riscv.WriteSscratch(uintptr(unsafe.Pointer(tf)))
}

// IsEnergySaver reports whether the current process is the dummy, i.e.
// whether this hart is idling. (stdin's push path decides on re-arming
// the timer from the timer-armed flag, not from this method.)
func (c *CPU) IsEnergySaver() bool {
	return c.scheduler.Current().Pid() == process.DummyPid
}
