// Package trap implements the high-level half of spec.md §4.4's trap
// entry: everything after the assembly stub has saved registers and
// called into Go. Grounded directly on original_source's
// kernel/src/interrupts/trap.rs (supervisor_mode_trap/handle_exception/
// handle_interrupt) and src/trap.rs's get_reason cause-decoding table,
// now reused from the riscv package instead of being duplicated here.
package trap

import (
	"fmt"
	"runtime"

	"github.com/sysheap/yaos/internal/klog"
	"github.com/sysheap/yaos/internal/riscv"
	"github.com/sysheap/yaos/internal/trapframe"
)

// Handler wires the external collaborators SupervisorModeTrap needs:
// syscall dispatch, the timer tick, and the PLIC-backed external
// interrupt path (UART bytes). Each is a narrow contract per spec.md §6,
// so this package contains no UART/PLIC/syscall-table code itself.
type Handler struct {
	HandleSyscall        func(tf *trapframe.TrapFrame)
	HandleTimerInterrupt func()
	HandleExternalIRQ    func()
	IsUserspaceAddress   func(addr uintptr) bool

	// CurrentProcessSummary and DumpKernelPageTables feed the panic
	// banner's "Current Process"/"Kernel Page Tables" lines, matching
	// the original's debugging::dump() output (panic.rs's assertions).
	// Both are optional; a nil collaborator just omits its line.
	CurrentProcessSummary func() string
	DumpKernelPageTables  func() string
}

// SupervisorModeTrap is the Go entry point the assembly stub calls after
// saving registers, matching supervisor_mode_trap's signature modulo the
// trap frame now coming through trapframe.TrapFrame.
func (h *Handler) SupervisorModeTrap(cause riscv.Cause, stval, sepc uintptr, tf *trapframe.TrapFrame) {
	if cause.IsInterrupt() {
		h.handleInterrupt(cause)
		return
	}
	h.handleException(cause, stval, sepc, tf)
}

func (h *Handler) handleException(cause riscv.Cause, stval, sepc uintptr, tf *trapframe.TrapFrame) {
	switch cause.Code() {
	case riscv.ExcEnvironmentCallFromUMode:
		if h.HandleSyscall != nil {
			h.HandleSyscall(tf)
		}
		riscv.WriteSepc(sepc + 4) // skip the ecall instruction
	default:
		fromUserspace := false
		if h.IsUserspaceAddress != nil {
			fromUserspace = h.IsUserspaceAddress(sepc)
		}
		h.Panic(fmt.Sprintf(
			"Unhandled exception! (Name: %s) (Exception code: %d) (stval: %#x) (sepc: %#x) (From userspace: %t)",
			cause.Reason(), cause.Code(), stval, sepc, fromUserspace,
		), tf)
	}
}

func (h *Handler) handleInterrupt(cause riscv.Cause) {
	switch cause.Code() {
	case riscv.IntSupervisorTimer:
		if h.HandleTimerInterrupt != nil {
			h.HandleTimerInterrupt()
		}
	case riscv.IntSupervisorExternal:
		if h.HandleExternalIRQ != nil {
			h.HandleExternalIRQ()
		}
	default:
		panic(fmt.Sprintf("Unknown interrupt! (Name: %s)", cause.Reason()))
	}
}

// Panic halts the kernel: it logs the reason, the current process
// (PID/name/state), a full kernel page-table dump, the trap frame, and a
// Go backtrace, then panics for real -- no path returns from this. This is
// the Go counterpart of the original's bare panic!() in
// syscalls/handler.rs's sys_panic and the fatal-exception arm of
// handle_exception, with system-tests/src/tests/panic.rs's assertions on
// "Kernel Page Tables", "Current Process: PID=...", and the backtrace
// frame names driving the shape of this banner.
func (h *Handler) Panic(reason string, tf *trapframe.TrapFrame) {
	klog.Warningf("kernel trap fatal: %s", reason)

	if h.CurrentProcessSummary != nil {
		klog.Warningf("Current Process: %s", h.CurrentProcessSummary())
	}
	if h.DumpKernelPageTables != nil {
		klog.Warningf("Kernel Page Tables %s", h.DumpKernelPageTables())
	}
	if tf != nil {
		klog.Warningf("%s", tf.String())
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		klog.Warningf("  %s\n\t%s:%d", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}

	panic(reason)
}
